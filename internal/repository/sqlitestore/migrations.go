package sqlitestore

import "database/sql"

// schema runs on startup to ensure tables exist. The unique index on
// (item_id, bid_amount) backs the one-bid-per-amount rule.
const schema = `
CREATE TABLE IF NOT EXISTS items (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    artist TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    image_url TEXT NOT NULL DEFAULT '',
    starting_bid INTEGER NOT NULL DEFAULT 0,
    auction_end INTEGER
);

CREATE TABLE IF NOT EXISTS bids (
    id TEXT PRIMARY KEY,
    item_id TEXT NOT NULL,
    bidder_name TEXT NOT NULL,
    bidder_email TEXT,
    bidder_phone TEXT,
    bid_amount INTEGER NOT NULL CHECK (bid_amount > 0),
    created_at INTEGER NOT NULL,
    FOREIGN KEY (item_id) REFERENCES items(id) ON DELETE CASCADE
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_bids_item_amount ON bids(item_id, bid_amount);
CREATE INDEX IF NOT EXISTS idx_bids_item_created ON bids(item_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_bids_email ON bids(item_id, bidder_email);
CREATE INDEX IF NOT EXISTS idx_bids_phone ON bids(item_id, bidder_phone);
`

func runMigrations(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}

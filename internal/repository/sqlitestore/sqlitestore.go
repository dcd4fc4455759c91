// Package sqlitestore provides a SQLite-backed implementation of repository.AuctionDB
// for single-node deployments and local development.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"charity-auction/internal/biddingerrors"
	model "charity-auction/internal/models"
	"charity-auction/internal/repository"
)

// Ensure SQLiteStore implements the repository interfaces
var (
	_ repository.AuctionDB  = (*SQLiteStore)(nil)
	_ repository.ItemWriter = (*SQLiteStore)(nil)
)

const bidColumns = `id, item_id, bidder_name, bidder_email, bidder_phone, bid_amount, created_at`

// SQLiteStore implements repository.AuctionDB using SQLite. Inserts are
// announced to subscribers through an in-process feed.
type SQLiteStore struct {
	db   *sql.DB
	feed *repository.Feed
}

// New creates a new SQLiteStore with the given database path.
// It creates the parent directories and runs migrations automatically.
func New(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// a single writer keeps the conditional insert free of SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db, feed: repository.NewFeed()}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetItem retrieves an item by ID.
// Ping reports whether the database file is usable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlitestore: ping failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetItem(ctx context.Context, itemID string) (model.Item, error) {
	var (
		item model.Item
		end  sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, artist, description, image_url, starting_bid, auction_end
		 FROM items WHERE id = ?`,
		itemID,
	).Scan(&item.ItemID, &item.Title, &item.Artist, &item.Description, &item.ImageURL, &item.StartingBid, &end)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Item{}, fmt.Errorf("get item %s: %w", itemID, biddingerrors.ErrItemNotFound)
	}
	if err != nil {
		return model.Item{}, fmt.Errorf("failed to get item: %w", err)
	}
	if end.Valid {
		t := time.UnixMilli(end.Int64).UTC()
		item.AuctionEnd = &t
	}
	return item, nil
}

// UpsertItem inserts or replaces an item.
func (s *SQLiteStore) UpsertItem(ctx context.Context, item model.Item) error {
	if strings.TrimSpace(item.ItemID) == "" {
		return fmt.Errorf("upsert item: empty item id: %w", biddingerrors.ErrItemNotFound)
	}
	var end interface{}
	if item.AuctionEnd != nil {
		end = item.AuctionEnd.UnixMilli()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO items (id, title, artist, description, image_url, starting_bid, auction_end)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   title = excluded.title,
		   artist = excluded.artist,
		   description = excluded.description,
		   image_url = excluded.image_url,
		   starting_bid = excluded.starting_bid,
		   auction_end = excluded.auction_end`,
		item.ItemID, item.Title, item.Artist, item.Description, item.ImageURL, item.StartingBid, end,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert item: %w", err)
	}
	return nil
}

// GetHighestBid returns the highest bid for an item.
func (s *SQLiteStore) GetHighestBid(ctx context.Context, itemID string) (model.Bid, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+bidColumns+` FROM bids WHERE item_id = ?
		 ORDER BY bid_amount DESC, created_at ASC LIMIT 1`,
		itemID,
	)
	bid, err := scanBid(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Bid{}, fmt.Errorf("get highest bid for item %s: %w", itemID, biddingerrors.ErrNoBids)
	}
	if err != nil {
		return model.Bid{}, fmt.Errorf("failed to get highest bid: %w", err)
	}
	return bid, nil
}

// GetBidHistory returns up to limit bids for an item, newest first.
func (s *SQLiteStore) GetBidHistory(ctx context.Context, itemID string, limit int) ([]model.Bid, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+bidColumns+` FROM bids WHERE item_id = ?
		 ORDER BY created_at DESC LIMIT ?`,
		itemID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list bid history: %w", err)
	}
	return collectBids(rows)
}

// GetBidsByIdentity returns a bidder's bids on an item, newest first.
func (s *SQLiteStore) GetBidsByIdentity(ctx context.Context, itemID, email, phone string) ([]model.Bid, error) {
	clause, arg, ok := contactClause(email, phone)
	if !ok {
		return []model.Bid{}, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+bidColumns+` FROM bids WHERE item_id = ? AND `+clause+`
		 ORDER BY created_at DESC`,
		itemID, arg,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list bids by identity: %w", err)
	}
	return collectBids(rows)
}

// FindBidderByContact returns the identity on the latest bid carrying the contact.
func (s *SQLiteStore) FindBidderByContact(ctx context.Context, itemID, email, phone string) (model.BidderIdentity, error) {
	clause, arg, ok := contactClause(email, phone)
	if !ok {
		return model.BidderIdentity{}, fmt.Errorf("find bidder on item %s: %w", itemID, biddingerrors.ErrBidderNotFound)
	}

	var (
		identity     model.BidderIdentity
		mail, mobile sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT bidder_name, bidder_email, bidder_phone FROM bids
		 WHERE item_id = ? AND `+clause+`
		 ORDER BY created_at DESC LIMIT 1`,
		itemID, arg,
	).Scan(&identity.Name, &mail, &mobile)
	if errors.Is(err, sql.ErrNoRows) {
		return model.BidderIdentity{}, fmt.Errorf("find bidder on item %s: %w", itemID, biddingerrors.ErrBidderNotFound)
	}
	if err != nil {
		return model.BidderIdentity{}, fmt.Errorf("failed to find bidder: %w", err)
	}
	identity.Email = mail.String
	identity.Phone = mobile.String
	return identity, nil
}

// CreateBid inserts a bid only when the item exists and the amount beats the
// current maximum. The check and the insert are one statement.
func (s *SQLiteStore) CreateBid(ctx context.Context, bid model.Bid) (model.Bid, error) {
	if bid.CreatedAt.IsZero() {
		bid.CreatedAt = time.Now()
	}
	bid.BidderPhone = repository.NormalizePhone(bid.BidderPhone)
	bid.CreatedAt = bid.CreatedAt.UTC().Truncate(time.Millisecond)

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO bids (`+bidColumns+`)
		 SELECT ?, ?, ?, ?, ?, ?, ?
		 WHERE EXISTS (SELECT 1 FROM items WHERE id = ?)
		   AND ? > COALESCE((SELECT MAX(bid_amount) FROM bids WHERE item_id = ?), 0)`,
		bid.BidID, bid.ItemID, bid.BidderName, nullable(bid.BidderEmail), nullable(bid.BidderPhone),
		bid.Amount, bid.CreatedAt.UnixMilli(),
		bid.ItemID, bid.Amount, bid.ItemID,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return model.Bid{}, fmt.Errorf("create bid for item %s: %w", bid.ItemID, biddingerrors.ErrBidConflict)
		}
		return model.Bid{}, fmt.Errorf("failed to insert bid: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return model.Bid{}, fmt.Errorf("failed to insert bid: %w", err)
	}
	if n == 0 {
		if _, err := s.GetItem(ctx, bid.ItemID); err != nil {
			return model.Bid{}, err
		}
		return model.Bid{}, fmt.Errorf("create bid for item %s: amount %d not above current maximum: %w",
			bid.ItemID, bid.Amount, biddingerrors.ErrBidConflict)
	}

	s.feed.Publish(bid)
	return bid, nil
}

// SubscribeToNewBids registers onInsert for bids inserted through this store.
func (s *SQLiteStore) SubscribeToNewBids(_ context.Context, itemID string, onInsert func(model.Bid)) (func(), error) {
	return s.feed.Subscribe(itemID, onInsert), nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanBid(row scanner) (model.Bid, error) {
	var (
		bid          model.Bid
		mail, mobile sql.NullString
		created      int64
	)
	if err := row.Scan(&bid.BidID, &bid.ItemID, &bid.BidderName, &mail, &mobile, &bid.Amount, &created); err != nil {
		return model.Bid{}, err
	}
	bid.BidderEmail = mail.String
	bid.BidderPhone = mobile.String
	bid.CreatedAt = time.UnixMilli(created).UTC()
	return bid, nil
}

func collectBids(rows *sql.Rows) ([]model.Bid, error) {
	defer rows.Close()

	bids := []model.Bid{}
	for rows.Next() {
		bid, err := scanBid(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bid: %w", err)
		}
		bids = append(bids, bid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bids: %w", err)
	}
	return bids, nil
}

// contactClause prefers email over phone.
func contactClause(email, phone string) (string, string, bool) {
	email = strings.TrimSpace(email)
	phone = repository.NormalizePhone(phone)
	switch {
	case email != "":
		return "bidder_email = ? COLLATE NOCASE", email, true
	case phone != "":
		return "bidder_phone = ?", phone, true
	}
	return "", "", false
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

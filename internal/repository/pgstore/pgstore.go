// Package pgstore implements repository.AuctionDB on PostgreSQL. New bids are
// announced with LISTEN/NOTIFY, so every process sharing the database sees
// inserts made by the others.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"charity-auction/internal/biddingerrors"
	model "charity-auction/internal/models"
	"charity-auction/internal/repository"
	"charity-auction/utils"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	_ repository.AuctionDB  = (*Store)(nil)
	_ repository.ItemWriter = (*Store)(nil)
)

// Pool settings for the bidding workload.
const (
	maxConns          = 20
	minConns          = 2
	maxConnLifetime   = 60 * time.Minute
	maxConnIdleTime   = 10 * time.Minute
	healthCheckPeriod = time.Minute
	connectTimeout    = 5 * time.Second
	pingTimeout       = 2 * time.Second
)

const bidColumns = `id, item_id, bidder_name, bidder_email, bidder_phone, bid_amount, created_at`

// Store is a PostgreSQL AuctionDB.
type Store struct {
	pool     *pgxpool.Pool
	feed     *repository.Feed
	cancel   context.CancelFunc
	listener chan struct{}
}

// New connects to dsn, starts the notification listener and waits until it
// is subscribed. Migrations are not applied; call Migrate first.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pgstore: invalid DSN: %w", err)
	}
	cfg.MaxConns = maxConns
	cfg.MinConns = minConns
	cfg.MaxConnLifetime = maxConnLifetime
	cfg.MaxConnIdleTime = maxConnIdleTime
	cfg.HealthCheckPeriod = healthCheckPeriod
	cfg.ConnConfig.ConnectTimeout = connectTimeout

	connectCtx, cancelConnect := context.WithTimeout(ctx, connectTimeout)
	defer cancelConnect()

	pool, err := pgxpool.NewWithConfig(connectCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgstore: create pool: %w", err)
	}

	pingCtx, cancelPing := context.WithTimeout(ctx, pingTimeout)
	defer cancelPing()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgstore: ping failed: %w", err)
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	s := &Store{
		pool:     pool,
		feed:     repository.NewFeed(),
		cancel:   cancel,
		listener: make(chan struct{}),
	}

	ready := make(chan error, 1)
	go s.listen(listenCtx, ready)

	select {
	case err := <-ready:
		if err != nil {
			s.Close()
			return nil, err
		}
	case <-connectCtx.Done():
		s.Close()
		return nil, fmt.Errorf("pgstore: listener not ready: %w", connectCtx.Err())
	}

	stats := pool.Stat()
	utils.Info("pgstore: pool connected", map[string]any{
		"component":   "pgstore",
		"max_conns":   stats.MaxConns(),
		"total_conns": stats.TotalConns(),
	})
	return s, nil
}

// Close stops the listener and closes the pool.
func (s *Store) Close() {
	s.cancel()
	<-s.listener
	s.pool.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := s.pool.Ping(pingCtx); err != nil {
		return fmt.Errorf("pgstore: ping failed: %w", err)
	}
	return nil
}

// GetItem retrieves an item by ID.
func (s *Store) GetItem(ctx context.Context, itemID string) (model.Item, error) {
	var item model.Item
	err := s.pool.QueryRow(ctx,
		`SELECT id, title, artist, description, image_url, starting_bid, auction_end
		 FROM items WHERE id = $1`,
		itemID,
	).Scan(&item.ItemID, &item.Title, &item.Artist, &item.Description, &item.ImageURL, &item.StartingBid, &item.AuctionEnd)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Item{}, fmt.Errorf("get item %s: %w", itemID, biddingerrors.ErrItemNotFound)
	}
	if err != nil {
		return model.Item{}, fmt.Errorf("pgstore: get item: %w", err)
	}
	return item, nil
}

// UpsertItem inserts or replaces an item.
func (s *Store) UpsertItem(ctx context.Context, item model.Item) error {
	if strings.TrimSpace(item.ItemID) == "" {
		return fmt.Errorf("upsert item: empty item id: %w", biddingerrors.ErrItemNotFound)
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO items (id, title, artist, description, image_url, starting_bid, auction_end)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET
		   title = EXCLUDED.title,
		   artist = EXCLUDED.artist,
		   description = EXCLUDED.description,
		   image_url = EXCLUDED.image_url,
		   starting_bid = EXCLUDED.starting_bid,
		   auction_end = EXCLUDED.auction_end`,
		item.ItemID, item.Title, item.Artist, item.Description, item.ImageURL, item.StartingBid, item.AuctionEnd,
	)
	if err != nil {
		return fmt.Errorf("pgstore: upsert item: %w", err)
	}
	return nil
}

// GetHighestBid returns the highest bid for an item.
func (s *Store) GetHighestBid(ctx context.Context, itemID string) (model.Bid, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+bidColumns+` FROM bids WHERE item_id = $1
		 ORDER BY bid_amount DESC, created_at ASC LIMIT 1`,
		itemID,
	)
	if err != nil {
		return model.Bid{}, fmt.Errorf("pgstore: get highest bid: %w", err)
	}
	bid, err := pgx.CollectOneRow(rows, scanBid)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Bid{}, fmt.Errorf("get highest bid for item %s: %w", itemID, biddingerrors.ErrNoBids)
	}
	if err != nil {
		return model.Bid{}, fmt.Errorf("pgstore: get highest bid: %w", err)
	}
	return bid, nil
}

// GetBidHistory returns up to limit bids for an item, newest first.
func (s *Store) GetBidHistory(ctx context.Context, itemID string, limit int) ([]model.Bid, error) {
	var limitArg interface{}
	if limit > 0 {
		limitArg = limit
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+bidColumns+` FROM bids WHERE item_id = $1
		 ORDER BY created_at DESC LIMIT $2`,
		itemID, limitArg,
	)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list bid history: %w", err)
	}
	bids, err := pgx.CollectRows(rows, scanBid)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list bid history: %w", err)
	}
	return nonNil(bids), nil
}

// GetBidsByIdentity returns a bidder's bids on an item, newest first.
func (s *Store) GetBidsByIdentity(ctx context.Context, itemID, email, phone string) ([]model.Bid, error) {
	clause, arg, ok := contactClause(email, phone)
	if !ok {
		return []model.Bid{}, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+bidColumns+` FROM bids WHERE item_id = $1 AND `+clause+`
		 ORDER BY created_at DESC`,
		itemID, arg,
	)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list bids by identity: %w", err)
	}
	bids, err := pgx.CollectRows(rows, scanBid)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list bids by identity: %w", err)
	}
	return nonNil(bids), nil
}

// FindBidderByContact returns the identity on the latest bid carrying the contact.
func (s *Store) FindBidderByContact(ctx context.Context, itemID, email, phone string) (model.BidderIdentity, error) {
	clause, arg, ok := contactClause(email, phone)
	if !ok {
		return model.BidderIdentity{}, fmt.Errorf("find bidder on item %s: %w", itemID, biddingerrors.ErrBidderNotFound)
	}

	var (
		identity     model.BidderIdentity
		mail, mobile *string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT bidder_name, bidder_email, bidder_phone FROM bids
		 WHERE item_id = $1 AND `+clause+`
		 ORDER BY created_at DESC LIMIT 1`,
		itemID, arg,
	).Scan(&identity.Name, &mail, &mobile)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.BidderIdentity{}, fmt.Errorf("find bidder on item %s: %w", itemID, biddingerrors.ErrBidderNotFound)
	}
	if err != nil {
		return model.BidderIdentity{}, fmt.Errorf("pgstore: find bidder: %w", err)
	}
	identity.Email = deref(mail)
	identity.Phone = deref(mobile)
	return identity, nil
}

// CreateBid inserts a bid. The item row is locked for the duration of the
// transaction so concurrent inserts on one item are serialised.
func (s *Store) CreateBid(ctx context.Context, bid model.Bid) (model.Bid, error) {
	if bid.CreatedAt.IsZero() {
		bid.CreatedAt = time.Now()
	}
	bid.BidderPhone = repository.NormalizePhone(bid.BidderPhone)
	bid.CreatedAt = bid.CreatedAt.UTC().Truncate(time.Microsecond)

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var one int
		err := tx.QueryRow(ctx, `SELECT 1 FROM items WHERE id = $1 FOR UPDATE`, bid.ItemID).Scan(&one)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("create bid for item %s: %w", bid.ItemID, biddingerrors.ErrItemNotFound)
		}
		if err != nil {
			return err
		}

		tag, err := tx.Exec(ctx,
			`INSERT INTO bids (`+bidColumns+`)
			 SELECT $1::text, $2::text, $3::text, $4::text, $5::text, $6::bigint, $7::timestamptz
			 WHERE $6::bigint > COALESCE((SELECT MAX(bid_amount) FROM bids WHERE item_id = $2::text), 0)`,
			bid.BidID, bid.ItemID, bid.BidderName, nullable(bid.BidderEmail), nullable(bid.BidderPhone),
			bid.Amount, bid.CreatedAt,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("create bid for item %s: amount %d not above current maximum: %w",
				bid.ItemID, bid.Amount, biddingerrors.ErrBidConflict)
		}
		return nil
	})
	if err != nil {
		var pgErr *pgconn.PgError
		switch {
		case errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation:
			return model.Bid{}, fmt.Errorf("create bid for item %s: %w", bid.ItemID, biddingerrors.ErrBidConflict)
		case errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation:
			return model.Bid{}, fmt.Errorf("create bid for item %s: %w", bid.ItemID, biddingerrors.ErrItemNotFound)
		case errors.Is(err, biddingerrors.ErrBidConflict), errors.Is(err, biddingerrors.ErrItemNotFound):
			return model.Bid{}, err
		}
		return model.Bid{}, fmt.Errorf("pgstore: insert bid: %w", err)
	}
	return bid, nil
}

// SubscribeToNewBids registers onInsert for bids inserted by any process.
func (s *Store) SubscribeToNewBids(_ context.Context, itemID string, onInsert func(model.Bid)) (func(), error) {
	return s.feed.Subscribe(itemID, onInsert), nil
}

func scanBid(row pgx.CollectableRow) (model.Bid, error) {
	var (
		bid          model.Bid
		mail, mobile *string
	)
	if err := row.Scan(&bid.BidID, &bid.ItemID, &bid.BidderName, &mail, &mobile, &bid.Amount, &bid.CreatedAt); err != nil {
		return model.Bid{}, err
	}
	bid.BidderEmail = deref(mail)
	bid.BidderPhone = deref(mobile)
	bid.CreatedAt = bid.CreatedAt.UTC()
	return bid, nil
}

// contactClause prefers email over phone.
func contactClause(email, phone string) (string, string, bool) {
	email = strings.TrimSpace(email)
	phone = repository.NormalizePhone(phone)
	switch {
	case email != "":
		return "lower(bidder_email) = lower($2)", email, true
	case phone != "":
		return "bidder_phone = $2", phone, true
	}
	return "", "", false
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nonNil(bids []model.Bid) []model.Bid {
	if bids == nil {
		return []model.Bid{}
	}
	return bids
}

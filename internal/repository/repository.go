package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"charity-auction/internal/biddingerrors"
	model "charity-auction/internal/models"
)

// AuctionDB is the managed backend the bidding core reads from and inserts
// bids into. Bid rows are append-only.
type AuctionDB interface {
	GetItem(ctx context.Context, itemID string) (model.Item, error)
	// GetHighestBid returns ErrNoBids when the item has no bids yet.
	GetHighestBid(ctx context.Context, itemID string) (model.Bid, error)
	// GetBidHistory returns up to limit bids, newest first.
	GetBidHistory(ctx context.Context, itemID string, limit int) ([]model.Bid, error)
	// GetBidsByIdentity returns the bids placed on itemID by the bidder matching
	// email, or phone when email is empty, newest first.
	GetBidsByIdentity(ctx context.Context, itemID, email, phone string) ([]model.Bid, error)
	// CreateBid inserts bid. It returns ErrBidConflict when the amount is not
	// strictly above the current maximum or already exists for the item.
	CreateBid(ctx context.Context, bid model.Bid) (model.Bid, error)
	// FindBidderByContact returns ErrBidderNotFound when no bid on itemID
	// carries the contact.
	FindBidderByContact(ctx context.Context, itemID, email, phone string) (model.BidderIdentity, error)
	// SubscribeToNewBids calls onInsert for every bid inserted on itemID until
	// the returned unsubscribe func is called. Delivery is at-least-once and
	// not ordered relative to concurrent inserts.
	SubscribeToNewBids(ctx context.Context, itemID string, onInsert func(model.Bid)) (func(), error)
}

// ItemWriter is implemented by stores that accept item upserts from seeding
// and admin tooling.
type ItemWriter interface {
	UpsertItem(ctx context.Context, item model.Item) error
}

// MemoryRepo is a concurrency-safe in-memory implementation of AuctionDB
type MemoryRepo struct {
	mu    sync.RWMutex
	bids  map[string][]model.Bid // key: itemID -> value: bids in insertion order
	items map[string]model.Item  // key: itemID -> value: item
	feed  *Feed
	now   func() time.Time
}

var (
	_ AuctionDB  = (*MemoryRepo)(nil)
	_ ItemWriter = (*MemoryRepo)(nil)
)

// NewMemoryRepo creates a new in-memory repository instance
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		bids:  make(map[string][]model.Bid),
		items: make(map[string]model.Item),
		feed:  NewFeed(),
		now:   time.Now,
	}
}

// GetItem returns the item with the given ID
func (r *MemoryRepo) GetItem(_ context.Context, itemID string) (model.Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.items[itemID]
	if !ok {
		return model.Item{}, fmt.Errorf("get item %s: %w", itemID, biddingerrors.ErrItemNotFound)
	}
	return item, nil
}

// GetHighestBid returns the highest bid for an item
func (r *MemoryRepo) GetHighestBid(_ context.Context, itemID string) (model.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bids := r.bids[itemID]
	if len(bids) == 0 {
		return model.Bid{}, fmt.Errorf("get highest bid for item %s: %w", itemID, biddingerrors.ErrNoBids)
	}

	winning := bids[0]
	for _, b := range bids[1:] {
		if b.Amount > winning.Amount || (b.Amount == winning.Amount && b.CreatedAt.Before(winning.CreatedAt)) {
			winning = b
		}
	}
	return winning, nil
}

// GetBidHistory returns the most recent bids for an item
func (r *MemoryRepo) GetBidHistory(_ context.Context, itemID string, limit int) ([]model.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return newestFirst(r.bids[itemID], limit), nil
}

// GetBidsByIdentity returns every bid a bidder placed on an item
func (r *MemoryRepo) GetBidsByIdentity(_ context.Context, itemID, email, phone string) ([]model.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []model.Bid
	for _, b := range r.bids[itemID] {
		if matchesContact(b, email, phone) {
			matched = append(matched, b)
		}
	}
	return newestFirst(matched, 0), nil
}

// CreateBid records a bid after enforcing the backend constraints
func (r *MemoryRepo) CreateBid(_ context.Context, bid model.Bid) (model.Bid, error) {
	r.mu.Lock()

	if _, ok := r.items[bid.ItemID]; !ok {
		r.mu.Unlock()
		return model.Bid{}, fmt.Errorf("create bid for item %s: %w", bid.ItemID, biddingerrors.ErrItemNotFound)
	}

	for _, existing := range r.bids[bid.ItemID] {
		if bid.Amount <= existing.Amount {
			r.mu.Unlock()
			return model.Bid{}, fmt.Errorf("create bid for item %s: amount %d not above %d: %w",
				bid.ItemID, bid.Amount, existing.Amount, biddingerrors.ErrBidConflict)
		}
	}

	if bid.CreatedAt.IsZero() {
		bid.CreatedAt = r.now()
	}
	bid.BidderPhone = NormalizePhone(bid.BidderPhone)
	r.bids[bid.ItemID] = append(r.bids[bid.ItemID], bid)
	r.mu.Unlock()

	r.feed.Publish(bid)
	return bid, nil
}

// FindBidderByContact returns the identity of the latest bid carrying the contact
func (r *MemoryRepo) FindBidderByContact(_ context.Context, itemID, email, phone string) (model.BidderIdentity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bids := r.bids[itemID]
	for i := len(bids) - 1; i >= 0; i-- {
		if matchesContact(bids[i], email, phone) {
			return bids[i].Identity(), nil
		}
	}
	return model.BidderIdentity{}, fmt.Errorf("find bidder on item %s: %w", itemID, biddingerrors.ErrBidderNotFound)
}

// SubscribeToNewBids registers onInsert on the in-process feed
func (r *MemoryRepo) SubscribeToNewBids(_ context.Context, itemID string, onInsert func(model.Bid)) (func(), error) {
	return r.feed.Subscribe(itemID, onInsert), nil
}

// UpsertItem adds or replaces an item
func (r *MemoryRepo) UpsertItem(_ context.Context, item model.Item) error {
	if strings.TrimSpace(item.ItemID) == "" {
		return fmt.Errorf("upsert item: empty item id: %w", biddingerrors.ErrItemNotFound)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[item.ItemID] = item
	return nil
}

// AddItem adds an item to the repository. This method is intended for tests only.
func (r *MemoryRepo) AddItem(item model.Item) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[item.ItemID] = item
}

// matchesContact prefers email; phone is only consulted when email is empty.
func matchesContact(b model.Bid, email, phone string) bool {
	email = strings.TrimSpace(email)
	phone = NormalizePhone(phone)
	switch {
	case email != "":
		return strings.EqualFold(b.BidderEmail, email)
	case phone != "":
		return NormalizePhone(b.BidderPhone) == phone
	}
	return false
}

// newestFirst copies bids ordered by CreatedAt descending, truncated to limit when limit > 0.
func newestFirst(bids []model.Bid, limit int) []model.Bid {
	out := make([]model.Bid, len(bids))
	copy(out, bids)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

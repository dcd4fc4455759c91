package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"charity-auction/internal/biddingerrors"
	model "charity-auction/internal/models"

	"github.com/stretchr/testify/require"
)

// Helper to create a new Item
func newItem(itemID, title string, startingBid int64) model.Item {
	return model.Item{
		ItemID:      itemID,
		Title:       title,
		Description: fmt.Sprintf("%s description", title),
		StartingBid: startingBid,
	}
}

// Helper to create a new Bid
func newBid(bidID, itemID, name string, amount int64, createdAt time.Time) model.Bid {
	return model.Bid{
		BidID:       bidID,
		ItemID:      itemID,
		BidderName:  name,
		BidderEmail: name + "@example.mw",
		Amount:      amount,
		CreatedAt:   createdAt,
	}
}

// Test CreateBid
func TestMemoryRepo_CreateBid(t *testing.T) {
	t.Parallel() // Allow running in parallel with other test functions

	ctx := context.Background()
	base := time.Date(2025, 9, 6, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		seed    []int64
		bid     model.Bid
		wantErr error
	}{
		{name: "first_bid", bid: newBid("bid1", "item1", "alice", 1000, base)},
		{name: "higher_bid", seed: []int64{1000}, bid: newBid("bid2", "item1", "bob", 1050, base)},
		{name: "equal_amount_rejected", seed: []int64{1000}, bid: newBid("bid3", "item1", "bob", 1000, base), wantErr: biddingerrors.ErrBidConflict},
		{name: "lower_amount_rejected", seed: []int64{1000, 1200}, bid: newBid("bid4", "item1", "bob", 1100, base), wantErr: biddingerrors.ErrBidConflict},
		{name: "item_not_found", bid: newBid("bid5", "itemX", "alice", 1000, base), wantErr: biddingerrors.ErrItemNotFound},
		{name: "empty_itemID", bid: newBid("bid6", "", "alice", 1000, base), wantErr: biddingerrors.ErrItemNotFound},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel() // Run table test cases in parallel

			repo := NewMemoryRepo()
			repo.AddItem(newItem("item1", "Item 1", 500))
			for i, amount := range tc.seed {
				_, err := repo.CreateBid(ctx, newBid(fmt.Sprintf("seed-%d", i), "item1", "seed", amount, base.Add(-time.Hour)))
				require.NoError(t, err)
			}

			got, err := repo.CreateBid(ctx, tc.bid)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.bid, got)
		})
	}

	t.Run("created_at_defaults_to_now", func(t *testing.T) {
		t.Parallel()

		repo := NewMemoryRepo()
		repo.AddItem(newItem("item1", "Item 1", 500))
		repo.now = func() time.Time { return base }

		got, err := repo.CreateBid(ctx, model.Bid{BidID: "b", ItemID: "item1", BidderName: "Alice", Amount: 600})
		require.NoError(t, err)
		require.Equal(t, base, got.CreatedAt)
	})

	// concurrency test: only strictly increasing inserts may win
	t.Run("concurrent_bids_same_amount", func(t *testing.T) {
		t.Parallel() // Run concurrency test in parallel

		repo := NewMemoryRepo()
		repo.AddItem(newItem("item1", "Item 1", 50))

		var wg sync.WaitGroup
		var accepted, conflicts int32
		concurrentCount := 50

		for i := 0; i < concurrentCount; i++ {
			wg.Add(1)
			i := i
			go func() {
				defer wg.Done()
				_, err := repo.CreateBid(ctx, newBid(fmt.Sprintf("bid-%d", i), "item1", fmt.Sprintf("user%d", i), 100, time.Now()))
				switch {
				case err == nil:
					atomic.AddInt32(&accepted, 1)
				case errors.Is(err, biddingerrors.ErrBidConflict):
					atomic.AddInt32(&conflicts, 1)
				}
			}()
		}

		wg.Wait()

		require.EqualValues(t, 1, accepted)
		require.EqualValues(t, concurrentCount-1, conflicts)
	})
}

// Test GetHighestBid
func TestMemoryRepo_GetHighestBid(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewMemoryRepo()
	repo.AddItem(newItem("item1", "Item 1", 50))
	repo.AddItem(newItem("item2", "Item 2", 75))

	var last model.Bid
	for i := 0; i < 100; i++ {
		b, err := repo.CreateBid(ctx, newBid(fmt.Sprintf("bid-%d", i), "item1", "user", int64(100+i*50), time.Now()))
		require.NoError(t, err)
		last = b
	}

	tests := []struct {
		name    string
		itemID  string
		wantBid model.Bid
		wantErr error
	}{
		{name: "existing_item_with_bids", itemID: "item1", wantBid: last},
		{name: "existing_item_no_bids", itemID: "item2", wantErr: biddingerrors.ErrNoBids},
		{name: "non_existing_item", itemID: "itemX", wantErr: biddingerrors.ErrNoBids},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			bid, err := repo.GetHighestBid(ctx, tc.itemID)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.wantBid, bid)
		})
	}

	// Concurrent read test
	t.Run("concurrent_reads", func(t *testing.T) {
		t.Parallel()

		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				bid, err := repo.GetHighestBid(ctx, "item1")
				require.NoError(t, err)
				require.Equal(t, last, bid)
			}()
		}
		wg.Wait()
	})
}

// Test GetBidHistory
func TestMemoryRepo_GetBidHistory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	base := time.Date(2025, 9, 6, 10, 0, 0, 0, time.UTC)
	repo := NewMemoryRepo()
	repo.AddItem(newItem("item1", "Item 1", 50))
	repo.AddItem(newItem("item2", "Item 2", 50))

	for i := 0; i < 15; i++ {
		_, err := repo.CreateBid(ctx, newBid(fmt.Sprintf("bid-%d", i), "item1", "user", int64(100+i*50), base.Add(time.Duration(i)*time.Minute)))
		require.NoError(t, err)
	}

	history, err := repo.GetBidHistory(ctx, "item1", 10)
	require.NoError(t, err)
	require.Len(t, history, 10)
	require.Equal(t, "bid-14", history[0].BidID)
	require.Equal(t, "bid-5", history[9].BidID)
	for i := 1; i < len(history); i++ {
		require.True(t, history[i-1].CreatedAt.After(history[i].CreatedAt))
	}

	all, err := repo.GetBidHistory(ctx, "item1", 0)
	require.NoError(t, err)
	require.Len(t, all, 15)

	empty, err := repo.GetBidHistory(ctx, "item2", 10)
	require.NoError(t, err)
	require.Empty(t, empty)
}

// Test GetBidsByIdentity and FindBidderByContact
func TestMemoryRepo_BidderLookup(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	base := time.Date(2025, 9, 6, 10, 0, 0, 0, time.UTC)
	repo := NewMemoryRepo()
	repo.AddItem(newItem("item1", "Item 1", 50))

	seed := []model.Bid{
		{BidID: "b1", ItemID: "item1", BidderName: "Alice", BidderEmail: "alice@example.mw", BidderPhone: "0999111222", Amount: 100, CreatedAt: base},
		{BidID: "b2", ItemID: "item1", BidderName: "Bob", BidderPhone: "0888111222", Amount: 200, CreatedAt: base.Add(time.Minute)},
		{BidID: "b3", ItemID: "item1", BidderName: "Alice B", BidderEmail: "alice@example.mw", Amount: 300, CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, b := range seed {
		_, err := repo.CreateBid(ctx, b)
		require.NoError(t, err)
	}

	tests := []struct {
		name      string
		email     string
		phone     string
		wantIDs   []string
		wantName  string
		wantFound bool
	}{
		{name: "by_email_newest_first", email: "alice@example.mw", wantIDs: []string{"b3", "b1"}, wantName: "Alice B", wantFound: true},
		{name: "email_case_insensitive", email: "ALICE@example.mw", wantIDs: []string{"b3", "b1"}, wantName: "Alice B", wantFound: true},
		{name: "by_phone", phone: "0888111222", wantIDs: []string{"b2"}, wantName: "Bob", wantFound: true},
		{name: "email_preferred_over_phone", email: "nobody@example.mw", phone: "0888111222", wantIDs: nil},
		{name: "empty_contact", wantIDs: nil},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			bids, err := repo.GetBidsByIdentity(ctx, "item1", tc.email, tc.phone)
			require.NoError(t, err)
			ids := make([]string, 0, len(bids))
			for _, b := range bids {
				ids = append(ids, b.BidID)
			}
			if tc.wantIDs == nil {
				require.Empty(t, ids)
			} else {
				require.Equal(t, tc.wantIDs, ids)
			}

			identity, err := repo.FindBidderByContact(ctx, "item1", tc.email, tc.phone)
			if !tc.wantFound {
				require.ErrorIs(t, err, biddingerrors.ErrBidderNotFound)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.wantName, identity.Name)
		})
	}
}

// Test SubscribeToNewBids
func TestMemoryRepo_SubscribeToNewBids(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewMemoryRepo()
	repo.AddItem(newItem("item1", "Item 1", 50))
	repo.AddItem(newItem("item2", "Item 2", 50))

	received := make(chan model.Bid, 4)
	unsubscribe, err := repo.SubscribeToNewBids(ctx, "item1", func(b model.Bid) { received <- b })
	require.NoError(t, err)

	_, err = repo.CreateBid(ctx, newBid("other", "item2", "bob", 100, time.Now()))
	require.NoError(t, err)
	_, err = repo.CreateBid(ctx, newBid("mine", "item1", "alice", 100, time.Now()))
	require.NoError(t, err)

	select {
	case b := <-received:
		require.Equal(t, "mine", b.BidID)
	case <-time.After(time.Second):
		t.Fatal("bid was not delivered")
	}

	unsubscribe()
	unsubscribe()
	require.Equal(t, 0, repo.feed.Subscribers("item1"))

	_, err = repo.CreateBid(ctx, newBid("late", "item1", "alice", 200, time.Now()))
	require.NoError(t, err)
	select {
	case b := <-received:
		t.Fatalf("unexpected delivery after unsubscribe: %s", b.BidID)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryRepo_UpsertItem(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewMemoryRepo()

	require.Error(t, repo.UpsertItem(ctx, model.Item{}))

	require.NoError(t, repo.UpsertItem(ctx, newItem("item1", "First", 100)))
	require.NoError(t, repo.UpsertItem(ctx, newItem("item1", "Renamed", 100)))

	item, err := repo.GetItem(ctx, "item1")
	require.NoError(t, err)
	require.Equal(t, "Renamed", item.Title)

	_, err = repo.GetItem(ctx, "missing")
	require.ErrorIs(t, err, biddingerrors.ErrItemNotFound)
}

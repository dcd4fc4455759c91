// Package storetest holds the behaviour every AuctionDB implementation must
// share, so the memory, SQLite and PostgreSQL stores are held to one contract.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"charity-auction/internal/biddingerrors"
	model "charity-auction/internal/models"
	"charity-auction/internal/repository"
	"charity-auction/utils"

	"github.com/stretchr/testify/require"
)

// Store is an AuctionDB that also accepts item upserts.
type Store interface {
	repository.AuctionDB
	repository.ItemWriter
}

// Run exercises store against the shared contract. Item IDs are unique per
// call, so several runs may share one database.
func Run(t *testing.T, store Store) {
	t.Helper()

	ctx := context.Background()
	prefix := utils.GenerateID()[:8]
	base := time.Now().UTC().Truncate(time.Second).Add(-time.Hour)

	item := func(t *testing.T, name string) model.Item {
		t.Helper()
		it := model.Item{
			ItemID:      prefix + "-" + name,
			Title:       "Sunset over Lake Malawi",
			Artist:      "T. Phiri",
			StartingBid: 500,
		}
		require.NoError(t, store.UpsertItem(ctx, it))
		return it
	}
	bid := func(itemID, name, email, phone string, amount int64, offset time.Duration) model.Bid {
		return model.Bid{
			BidID:       utils.GenerateID(),
			ItemID:      itemID,
			BidderName:  name,
			BidderEmail: email,
			BidderPhone: phone,
			Amount:      amount,
			CreatedAt:   base.Add(offset),
		}
	}

	t.Run("get_item", func(t *testing.T) {
		it := item(t, "get")
		got, err := store.GetItem(ctx, it.ItemID)
		require.NoError(t, err)
		require.Equal(t, it.Title, got.Title)
		require.Equal(t, it.StartingBid, got.StartingBid)

		_, err = store.GetItem(ctx, prefix+"-missing")
		require.ErrorIs(t, err, biddingerrors.ErrItemNotFound)
	})

	t.Run("upsert_replaces", func(t *testing.T) {
		it := item(t, "upsert")
		end := base.Add(48 * time.Hour)
		it.Title = "Renamed"
		it.AuctionEnd = &end
		require.NoError(t, store.UpsertItem(ctx, it))

		got, err := store.GetItem(ctx, it.ItemID)
		require.NoError(t, err)
		require.Equal(t, "Renamed", got.Title)
		require.NotNil(t, got.AuctionEnd)
		require.True(t, end.Equal(*got.AuctionEnd))
	})

	t.Run("highest_bid", func(t *testing.T) {
		it := item(t, "highest")
		_, err := store.GetHighestBid(ctx, it.ItemID)
		require.ErrorIs(t, err, biddingerrors.ErrNoBids)

		for i, amount := range []int64{1000, 1050, 1200} {
			_, err := store.CreateBid(ctx, bid(it.ItemID, "Alice", "alice@example.mw", "", amount, time.Duration(i)*time.Minute))
			require.NoError(t, err)
		}
		got, err := store.GetHighestBid(ctx, it.ItemID)
		require.NoError(t, err)
		require.Equal(t, int64(1200), got.Amount)
	})

	t.Run("create_bid_constraints", func(t *testing.T) {
		it := item(t, "constraints")
		first := bid(it.ItemID, "Alice", "alice@example.mw", "", 1000, 0)
		created, err := store.CreateBid(ctx, first)
		require.NoError(t, err)
		require.Equal(t, first.BidID, created.BidID)
		require.Equal(t, first.Amount, created.Amount)

		_, err = store.CreateBid(ctx, bid(it.ItemID, "Bob", "", "0999111222", 1000, time.Minute))
		require.ErrorIs(t, err, biddingerrors.ErrBidConflict)

		_, err = store.CreateBid(ctx, bid(it.ItemID, "Bob", "", "0999111222", 900, time.Minute))
		require.ErrorIs(t, err, biddingerrors.ErrBidConflict)

		_, err = store.CreateBid(ctx, bid(prefix+"-nowhere", "Bob", "", "", 5000, time.Minute))
		require.ErrorIs(t, err, biddingerrors.ErrItemNotFound)
	})

	t.Run("concurrent_equal_amounts", func(t *testing.T) {
		it := item(t, "race")
		var wg sync.WaitGroup
		var mu sync.Mutex
		accepted := 0
		for i := 0; i < 10; i++ {
			wg.Add(1)
			i := i
			go func() {
				defer wg.Done()
				_, err := store.CreateBid(ctx, bid(it.ItemID, fmt.Sprintf("Bidder %d", i), "", "", 2000, 0))
				if err == nil {
					mu.Lock()
					accepted++
					mu.Unlock()
					return
				}
				if !errors.Is(err, biddingerrors.ErrBidConflict) {
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()
		require.Equal(t, 1, accepted)
	})

	t.Run("history_newest_first", func(t *testing.T) {
		it := item(t, "history")
		for i := 0; i < 12; i++ {
			_, err := store.CreateBid(ctx, bid(it.ItemID, "Alice", "", "", int64(1000+i*50), time.Duration(i)*time.Minute))
			require.NoError(t, err)
		}
		history, err := store.GetBidHistory(ctx, it.ItemID, 10)
		require.NoError(t, err)
		require.Len(t, history, 10)
		require.Equal(t, int64(1550), history[0].Amount)
		require.Equal(t, int64(1100), history[9].Amount)

		empty, err := store.GetBidHistory(ctx, item(t, "quiet").ItemID, 10)
		require.NoError(t, err)
		require.Empty(t, empty)
	})

	t.Run("bidder_lookup", func(t *testing.T) {
		it := item(t, "lookup")
		_, err := store.CreateBid(ctx, bid(it.ItemID, "Alice", "alice@example.mw", "0999111222", 1000, 0))
		require.NoError(t, err)
		_, err = store.CreateBid(ctx, bid(it.ItemID, "Bob", "", "0888111222", 1100, time.Minute))
		require.NoError(t, err)
		_, err = store.CreateBid(ctx, bid(it.ItemID, "Alice Banda", "alice@example.mw", "", 1200, 2*time.Minute))
		require.NoError(t, err)

		identity, err := store.FindBidderByContact(ctx, it.ItemID, "alice@example.mw", "")
		require.NoError(t, err)
		require.Equal(t, "Alice Banda", identity.Name)

		identity, err = store.FindBidderByContact(ctx, it.ItemID, "", "0888111222")
		require.NoError(t, err)
		require.Equal(t, "Bob", identity.Name)
		require.Empty(t, identity.Email)

		_, err = store.FindBidderByContact(ctx, it.ItemID, "nobody@example.mw", "0888111222")
		require.ErrorIs(t, err, biddingerrors.ErrBidderNotFound)

		mine, err := store.GetBidsByIdentity(ctx, it.ItemID, "alice@example.mw", "")
		require.NoError(t, err)
		require.Len(t, mine, 2)
		require.Equal(t, int64(1200), mine[0].Amount)
	})

	t.Run("phone_formatting_ignored", func(t *testing.T) {
		it := item(t, "phone")
		created, err := store.CreateBid(ctx, bid(it.ItemID, "Chikondi", "", "0991 234 567", 1000, 0))
		require.NoError(t, err)
		require.Equal(t, "0991234567", created.BidderPhone)

		for _, phone := range []string{"0991234567", "(0991) 234-567", " 0991-234-567 "} {
			identity, err := store.FindBidderByContact(ctx, it.ItemID, "", phone)
			require.NoError(t, err, phone)
			require.Equal(t, "Chikondi", identity.Name)
			require.Equal(t, "0991234567", identity.Phone)

			mine, err := store.GetBidsByIdentity(ctx, it.ItemID, "", phone)
			require.NoError(t, err, phone)
			require.Len(t, mine, 1)
		}
	})

	t.Run("subscribe", func(t *testing.T) {
		it := item(t, "feed")
		received := make(chan model.Bid, 4)
		unsubscribe, err := store.SubscribeToNewBids(ctx, it.ItemID, func(b model.Bid) { received <- b })
		require.NoError(t, err)
		defer unsubscribe()

		placed, err := store.CreateBid(ctx, bid(it.ItemID, "Alice", "", "", 1000, 0))
		require.NoError(t, err)

		select {
		case got := <-received:
			require.Equal(t, placed.BidID, got.BidID)
			require.Equal(t, placed.Amount, got.Amount)
		case <-time.After(5 * time.Second):
			t.Fatal("insert was not delivered to subscriber")
		}
	})
}

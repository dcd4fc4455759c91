package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"charity-auction/internal/biddingerrors"
	"charity-auction/internal/config"
	model "charity-auction/internal/models"
	"charity-auction/internal/repository"
	"charity-auction/internal/repository/pgstore"
	"charity-auction/internal/repository/sqlitestore"
	"charity-auction/utils"
)

// itemSeeder reads and writes catalogue items.
type itemSeeder interface {
	GetItem(ctx context.Context, itemID string) (model.Item, error)
	repository.ItemWriter
}

// store bundles the backend selected by STORE_DRIVER.
type store struct {
	db    repository.AuctionDB
	items itemSeeder
	ping  func(ctx context.Context) error
	close func()
}

func openStore(ctx context.Context, cfg *config.Config) (*store, error) {
	switch cfg.StoreDriver {
	case config.StoreSQLite:
		s, err := sqlitestore.New(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &store{
			db:    s,
			items: s,
			ping:  s.Ping,
			close: func() { _ = s.Close() },
		}, nil

	case config.StorePostgres:
		if err := pgstore.Migrate(cfg.DatabaseURL); err != nil {
			return nil, err
		}
		s, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return &store{db: s, items: s, ping: s.Ping, close: s.Close}, nil

	case config.StoreMemory:
		repo := repository.NewMemoryRepo()
		return &store{db: repo, items: repo, ping: nil, close: func() {}}, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

// prepopulateItems adds the demo items that are not in the store yet.
// Existing items are left as they are, so a restart never moves an auction end.
func prepopulateItems(ctx context.Context, items itemSeeder) error {
	end := time.Now().Add(7 * 24 * time.Hour).UTC().Truncate(time.Second)
	demo := []model.Item{
		{
			ItemID:      "lake-malawi-at-dusk",
			Title:       "Lake Malawi at Dusk",
			Artist:      "Chisomo Banda",
			Description: "Oil on canvas, 60 x 90 cm. All proceeds go to the school library fund.",
			StartingBid: 50000,
			AuctionEnd:  &end,
		},
		{
			ItemID:      "zomba-plateau-morning",
			Title:       "Zomba Plateau Morning",
			Artist:      "Thoko Mwale",
			Description: "Watercolour, 40 x 50 cm.",
			StartingBid: 25000,
			AuctionEnd:  &end,
		},
	}

	seeded := 0
	for _, item := range demo {
		_, err := items.GetItem(ctx, item.ItemID)
		switch {
		case err == nil:
			continue
		case !errors.Is(err, biddingerrors.ErrItemNotFound):
			return fmt.Errorf("seed item %s: %w", item.ItemID, err)
		}
		if err := items.UpsertItem(ctx, item); err != nil {
			return fmt.Errorf("seed item %s: %w", item.ItemID, err)
		}
		seeded++
	}
	utils.Info("demo items seeded", map[string]any{"component": "main", "count": seeded, "skipped": len(demo) - seeded})
	return nil
}

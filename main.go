package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	bidding "charity-auction/internal/biddingService"
	"charity-auction/internal/config"
	"charity-auction/internal/identity"
	"charity-auction/internal/reconciler"
	"charity-auction/internal/repository/pgstore"
	"charity-auction/internal/server"
	"charity-auction/internal/validation"
	"charity-auction/utils"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "charity-auction",
		Short: "Live bidding server for charity auctions",
		Long: `charity-auction serves the bid controller of a charity auction: bid validation,
returning-bidder lookup, per-session rate limiting and live price updates.

Configuration is read from the environment and an optional .env file.`,
		SilenceUsage: true,
		RunE:         runServe,
	}

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server (default)",
		RunE:  runServe,
	})
	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply pending PostgreSQL migrations and exit",
		RunE:  runMigrate,
	})
	return root
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	utils.Configure(cfg.LogLevel, cfg.LogFormat == config.LogFormatJSON)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	if cfg.SeedDemoItem {
		if err := prepopulateItems(ctx, st.items); err != nil {
			return err
		}
	}

	var sessions identity.SessionStore
	if cfg.RedisURL != "" {
		client, err := identity.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()
		sessions = identity.NewRedisSessionStore(client, cfg.SessionTTL)
	}

	biddingSvc := bidding.NewBiddingService(st.db, sessions, serviceConfig(cfg))

	router := server.SetupRouter(ctx, biddingSvc, server.Options{
		Currency:      cfg.Currency,
		HTTPRateRPS:   cfg.HTTPRateRPS,
		HTTPRateBurst: cfg.HTTPRateBurst,
		HealthCheck:   st.ping,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	// open event streams end when their views are closed
	srv.RegisterOnShutdown(biddingSvc.Close)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		utils.Info("starting auction server", map[string]any{
			"component": "main",
			"addr":      srv.Addr,
			"store":     cfg.StoreDriver,
			"redis":     cfg.RedisURL != "",
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		utils.Info("shutting down auction server", map[string]any{"component": "main"})
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	biddingSvc.Close()
	return err
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	utils.Configure(cfg.LogLevel, cfg.LogFormat == config.LogFormatJSON)

	if cfg.StoreDriver != config.StorePostgres {
		return fmt.Errorf("migrate: STORE_DRIVER is %q, migrations only apply to %q", cfg.StoreDriver, config.StorePostgres)
	}
	return pgstore.Migrate(cfg.DatabaseURL)
}

// serviceConfig maps the environment onto the bidding service settings.
func serviceConfig(cfg *config.Config) bidding.Config {
	rec := reconciler.DefaultOptions()
	rec.HistoryLimit = cfg.HistoryLimit
	rec.PollInterval = cfg.PollInterval
	rec.TickInterval = cfg.CountdownTick
	rec.FallbackPoll = cfg.FallbackPoll

	svc := bidding.DefaultConfig()
	svc.Policy = validation.Policy{
		IdentityRequired: cfg.IdentityPolicy == config.IdentityRequired,
		MinAmount:        cfg.MinBidAmount,
		MaxAmount:        cfg.MaxBidAmount,
		MinIncrement:     cfg.MinBidIncrement,
		Currency:         cfg.Currency,
	}
	svc.PersistSession = cfg.PersistBidderSession
	svc.SessionTTL = cfg.SessionTTL
	svc.RateLimit = cfg.RateLimitMax
	svc.RateWindow = cfg.RateLimitWindow
	svc.LookupDebounce = cfg.LookupDebounce
	svc.ViewIdleTTL = cfg.ViewIdleTTL
	svc.Reconciler = rec
	return svc
}

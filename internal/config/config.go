// Package config maps environment variables onto the server settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Store drivers.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Identity policies.
const (
	IdentityOptional = "optional"
	IdentityRequired = "required"
)

// Log output formats.
const (
	LogFormatJSON = "json"
	LogFormatText = "text"
)

// Config holds all runtime configuration of the auction server.
type Config struct {
	// Server settings
	Port        string `env:"PORT"        envDefault:"8080"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL"   envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT"  envDefault:"json"`

	// Backend
	StoreDriver string `env:"STORE_DRIVER" envDefault:"memory"`
	DatabaseURL string `env:"DATABASE_URL"`
	SQLitePath  string `env:"SQLITE_PATH"  envDefault:"./data/auction.db"`

	// Bidder sessions, kept in Redis when REDIS_URL is set
	RedisURL             string        `env:"REDIS_URL"`
	SessionTTL           time.Duration `env:"SESSION_TTL"            envDefault:"720h"`
	PersistBidderSession bool          `env:"PERSIST_BIDDER_SESSION" envDefault:"true"`
	IdentityPolicy       string        `env:"IDENTITY_POLICY"        envDefault:"optional"`

	// Bid rules
	Currency        string `env:"CURRENCY"          envDefault:"MWK"`
	MinBidIncrement int64  `env:"MIN_BID_INCREMENT" envDefault:"50"`
	MinBidAmount    int64  `env:"MIN_BID_AMOUNT"    envDefault:"1"`
	MaxBidAmount    int64  `env:"MAX_BID_AMOUNT"    envDefault:"1000000"`

	// Submission rate limit per browser session
	RateLimitWindow time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"60s"`
	RateLimitMax    int           `env:"RATE_LIMIT_MAX"    envDefault:"3"`

	// Live price reconciliation
	FallbackPoll   bool          `env:"FALLBACK_POLL"   envDefault:"true"`
	PollInterval   time.Duration `env:"POLL_INTERVAL"   envDefault:"5s"`
	CountdownTick  time.Duration `env:"COUNTDOWN_TICK"  envDefault:"1s"`
	LookupDebounce time.Duration `env:"LOOKUP_DEBOUNCE" envDefault:"1s"`
	HistoryLimit   int           `env:"HISTORY_LIMIT"   envDefault:"10"`
	ViewIdleTTL    time.Duration `env:"VIEW_IDLE_TTL"   envDefault:"30m"`

	// HTTP throttle per client IP
	HTTPRateRPS   float64 `env:"HTTP_RATE_RPS"   envDefault:"20"`
	HTTPRateBurst int     `env:"HTTP_RATE_BURST" envDefault:"40"`

	SeedDemoItem bool `env:"SEED_DEMO_ITEM" envDefault:"true"`
}

// Load reads an optional .env file and then parses the environment.
// Variables already set in the environment win over the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: failed to read .env: %w", err)
	}
	return Parse()
}

// Parse maps the current environment into a Config and validates it.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects inconsistent settings.
func (c *Config) Validate() error {
	var errs []error

	switch c.StoreDriver {
	case StoreMemory:
	case StoreSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for the sqlite store"))
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}

	if c.LogFormat != LogFormatJSON && c.LogFormat != LogFormatText {
		errs = append(errs, fmt.Errorf("unknown LOG_FORMAT %q", c.LogFormat))
	}
	if c.IdentityPolicy != IdentityOptional && c.IdentityPolicy != IdentityRequired {
		errs = append(errs, fmt.Errorf("unknown IDENTITY_POLICY %q", c.IdentityPolicy))
	}
	if c.MinBidAmount < 1 {
		errs = append(errs, errors.New("MIN_BID_AMOUNT must be at least 1"))
	}
	if c.MaxBidAmount < c.MinBidAmount {
		errs = append(errs, errors.New("MAX_BID_AMOUNT must not be below MIN_BID_AMOUNT"))
	}
	if c.MinBidIncrement < 1 {
		errs = append(errs, errors.New("MIN_BID_INCREMENT must be at least 1"))
	}
	if c.RateLimitMax < 1 || c.RateLimitWindow <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_MAX and RATE_LIMIT_WINDOW must be positive"))
	}
	if c.PollInterval <= 0 || c.CountdownTick <= 0 || c.LookupDebounce < 0 {
		errs = append(errs, errors.New("POLL_INTERVAL and COUNTDOWN_TICK must be positive"))
	}
	if c.HistoryLimit < 1 {
		errs = append(errs, errors.New("HISTORY_LIMIT must be at least 1"))
	}
	if c.HTTPRateRPS <= 0 || c.HTTPRateBurst < 1 {
		errs = append(errs, errors.New("HTTP_RATE_RPS and HTTP_RATE_BURST must be positive"))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: invalid configuration: %w", err)
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string { return ":" + c.Port }

// IsProduction reports whether the server is running in production mode.
func (c *Config) IsProduction() bool { return c.Environment == "production" }

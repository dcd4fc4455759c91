package pgstore

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"charity-auction/utils"

	"github.com/golang-migrate/migrate/v4"
	// pgx5 driver registers "pgx5" scheme for golang-migrate.
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies all pending up migrations to the database at dsn.
func Migrate(dsn string) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("pgstore: load migrations: %w", err)
	}

	migrator, err := migrate.NewWithSourceInstance("iofs", source, toPgx5DSN(dsn))
	if err != nil {
		return fmt.Errorf("pgstore: init migrations: %w", err)
	}
	defer func() {
		srcErr, dbErr := migrator.Close()
		if srcErr != nil || dbErr != nil {
			utils.Warn("pgstore: closing migrator failed", map[string]any{"component": "pgstore", "source_error": srcErr, "db_error": dbErr})
		}
	}()
	migrator.Log = migrateLogger{}

	from, dirty, err := migrator.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("pgstore: read migration version: %w", err)
	}
	if dirty {
		return fmt.Errorf("pgstore: database is dirty at migration version %d", from)
	}

	if err := migrator.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			utils.Info("pgstore: schema up to date", map[string]any{"component": "pgstore", "version": from})
			return nil
		}
		return fmt.Errorf("pgstore: migrate up: %w", err)
	}

	to, _, _ := migrator.Version()
	utils.Info("pgstore: migrations applied", map[string]any{"component": "pgstore", "from_version": from, "to_version": to})
	return nil
}

// toPgx5DSN rewrites postgres:// URLs to the pgx5:// scheme golang-migrate expects.
func toPgx5DSN(dsn string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(dsn, prefix) {
			return "pgx5://" + strings.TrimPrefix(dsn, prefix)
		}
	}
	return dsn
}

// migrateLogger routes golang-migrate output to the debug log.
type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...interface{}) {
	utils.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)), map[string]any{"component": "migrate"})
}

func (migrateLogger) Verbose() bool { return false }

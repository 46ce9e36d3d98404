package db

import (
	"embed"
	"errors"
	"fmt"
	"net/url"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

//go:embed migrations
var migrationsFS embed.FS

// Migration sets. The pgvector set is only applied when chunks live in
// Postgres, so metadata-only deployments never need the extension.
const (
	MetadataMigrations = "metadata"
	PgvectorMigrations = "pgvector"
)

// RunMigrations applies every pending migration of the given set. Each set
// tracks its version in its own table.
func RunMigrations(dsn, set string, logger *zap.Logger) error {
	source, err := iofs.New(migrationsFS, "migrations/"+set)
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	target, err := migrationURL(dsn, "schema_migrations_"+set)
	if err != nil {
		return err
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, target)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run %s migrations: %w", set, err)
	}

	version, dirty, _ := m.Version()
	logger.Info("migrations applied",
		zap.String("set", set),
		zap.Uint("version", version),
		zap.Bool("dirty", dirty),
	)
	return nil
}

// migrationURL rewrites a postgres:// DSN for the pgx5 migrate driver.
func migrationURL(dsn, table string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	u.Scheme = "pgx5"
	q := u.Query()
	q.Set("x-migrations-table", table)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

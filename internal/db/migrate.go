package db

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgconn"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	migrationMaxRetries  = 3
	migrationBaseBackoff = 100 * time.Millisecond
	migrationMaxBackoff  = 3 * time.Second
)

var retryablePgErrorCodes = map[string]struct{}{
	"40001": {}, // serialization_failure
	"40P01": {}, // deadlock_detected
	"55P03": {}, // lock_not_available
}

// NewMigrator returns a migrator for the embedded schema. postgres:// and
// postgresql:// URLs are rewritten to the pgx driver scheme.
func NewMigrator(databaseURL string) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("create migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, MigrateURL(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return m, nil
}

// MigrateURL rewrites a PostgreSQL connection URL for the pgx/v5 migrate driver.
func MigrateURL(databaseURL string) string {
	for _, prefix := range []string{"postgresql://", "postgres://"} {
		if strings.HasPrefix(databaseURL, prefix) {
			return "pgx5://" + strings.TrimPrefix(databaseURL, prefix)
		}
	}
	return databaseURL
}

// Migration is the result of a migrate command.
type Migration struct {
	Version uint
	Dirty   bool
}

// Migrate runs command ("up", "down" or "version") against databaseURL.
// Transient PostgreSQL failures are retried with exponential backoff.
func Migrate(ctx context.Context, databaseURL, command string, logger *slog.Logger) (Migration, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch command {
	case "", "up", "down", "version":
	default:
		return Migration{}, fmt.Errorf("unknown migrate command %q", command)
	}

	m, err := NewMigrator(databaseURL)
	if err != nil {
		return Migration{}, err
	}
	defer m.Close()

	var step func() error
	switch command {
	case "up", "":
		step = m.Up
	case "down":
		step = func() error { return m.Steps(-1) }
	default:
		step = func() error { return nil }
	}

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * migrationBaseBackoff
			if backoff > migrationMaxBackoff {
				backoff = migrationMaxBackoff
			}
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return Migration{}, ctx.Err()
			case <-timer.C:
			}
		}

		err = step()
		if err == nil || errors.Is(err, migrate.ErrNoChange) {
			break
		}
		if !shouldRetryMigration(err) || attempt >= migrationMaxRetries-1 {
			return Migration{}, fmt.Errorf("migrate %s: %w", command, err)
		}
		logger.Warn("transient migration error", "command", command, "attempt", attempt+1, "error", err)
	}

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return Migration{}, nil
	}
	if err != nil {
		return Migration{}, fmt.Errorf("read migration version: %w", err)
	}
	return Migration{Version: version, Dirty: dirty}, nil
}

func shouldRetryMigration(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, migrate.ErrLocked) || errors.Is(err, migrate.ErrLockTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		_, ok := retryablePgErrorCodes[pgErr.Code]
		return ok
	}
	return false
}

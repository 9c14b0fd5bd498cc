package repositories

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/cockroach-go/v2/testserver"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aora/backend/internal/models"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	server, err := testserver.NewTestServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "start cockroach test server: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, server.PGURL().String())
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect to cockroach test server: %v\n", err)
		server.Stop()
		os.Exit(1)
	}

	if err := applyMigrations(ctx, pool); err != nil {
		fmt.Fprintf(os.Stderr, "apply migrations: %v\n", err)
		pool.Close()
		server.Stop()
		os.Exit(1)
	}

	testPool = pool

	code := m.Run()

	pool.Close()
	server.Stop()

	os.Exit(code)
}

func TestPostgresOrphanJournal_RecordListResolve(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	journal := NewPostgresOrphanJournal(testPool)

	older := models.OrphanedAccount{
		AccountID: "acc-older",
		Email:     "older@example.com",
		Stage:     models.StageSignIn,
		Reason:    "connection reset",
		CreatedAt: time.Now().UTC().Add(-time.Hour).Truncate(time.Millisecond),
	}
	newer := models.OrphanedAccount{
		ID:        uuid.NewString(),
		AccountID: "acc-newer",
		Email:     "newer@example.com",
		Stage:     models.StageCreateDocument,
		Reason:    "database unavailable",
	}

	if err := journal.Record(ctx, older); err != nil {
		t.Fatalf("record older: %v", err)
	}
	if err := journal.Record(ctx, newer); err != nil {
		t.Fatalf("record newer: %v", err)
	}
	if err := journal.Record(ctx, newer); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate id, got %v", err)
	}

	open, err := journal.ListUnresolved(ctx, 10)
	if err != nil {
		t.Fatalf("list unresolved: %v", err)
	}
	if len(open) != 2 {
		t.Fatalf("expected 2 open entries, got %d", len(open))
	}
	if open[0].AccountID != "acc-older" || open[1].AccountID != "acc-newer" {
		t.Fatalf("expected oldest first, got %s then %s", open[0].AccountID, open[1].AccountID)
	}
	if !timesClose(open[0].CreatedAt, older.CreatedAt, time.Millisecond) {
		t.Fatalf("created_at not preserved: %v vs %v", open[0].CreatedAt, older.CreatedAt)
	}
	if open[1].ID != newer.ID || open[1].Stage != models.StageCreateDocument || open[1].ResolvedAt != nil {
		t.Fatalf("unexpected entry: %+v", open[1])
	}

	if err := journal.Resolve(ctx, newer.ID); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if err := journal.Resolve(ctx, newer.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound resolving twice, got %v", err)
	}
	if err := journal.Resolve(ctx, "not-a-uuid"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for malformed id, got %v", err)
	}

	open, err = journal.ListUnresolved(ctx, 10)
	if err != nil {
		t.Fatalf("list unresolved: %v", err)
	}
	if len(open) != 1 || open[0].AccountID != "acc-older" {
		t.Fatalf("expected only the older entry to remain, got %+v", open)
	}
}

func TestPostgresOrphanJournal_Validation(t *testing.T) {
	journal := NewPostgresOrphanJournal(testPool)
	if err := journal.Record(context.Background(), models.OrphanedAccount{Email: "x@example.com"}); err == nil {
		t.Fatal("expected error for entry without account id")
	}
}

func applyMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	migrationsDir := filepath.Join("..", "db", "migrations")
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".up.sql") {
			continue
		}
		contents, err := os.ReadFile(filepath.Join(migrationsDir, entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}

		if _, err := pool.Exec(ctx, string(contents)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
	}

	return nil
}

func resetDatabase(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	conn, err := testPool.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire connection: %v", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "TRUNCATE TABLE orphaned_accounts"); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
}

func timesClose(a, b time.Time, delta time.Duration) bool {
	diff := a.Sub(b)
	if diff < 0 {
		diff = -diff
	}
	return diff <= delta
}

package db

import (
	"errors"
	"io/fs"
	"strings"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestMigrateURL(t *testing.T) {
	tests := map[string]string{
		"postgres://u:p@localhost:5432/aora?sslmode=disable": "pgx5://u:p@localhost:5432/aora?sslmode=disable",
		"postgresql://localhost/aora":                        "pgx5://localhost/aora",
		"pgx5://localhost/aora":                              "pgx5://localhost/aora",
	}
	for in, want := range tests {
		if got := MigrateURL(in); got != want {
			t.Fatalf("MigrateURL(%q) = %q want %q", in, got, want)
		}
	}
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		t.Fatalf("read embedded migrations: %v", err)
	}

	ups, downs := map[string]bool{}, map[string]bool{}
	for _, entry := range entries {
		name := entry.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Fatalf("unexpected file %s", name)
		}
	}
	if len(ups) == 0 {
		t.Fatal("expected at least one migration")
	}
	for version := range ups {
		if !downs[version] {
			t.Fatalf("migration %s has no down script", version)
		}
	}
}

func TestShouldRetryMigration(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"locked", migrate.ErrLocked, true},
		{"serialization", &pgconn.PgError{Code: "40001"}, true},
		{"syntax", &pgconn.PgError{Code: "42601"}, false},
		{"other", errors.New("boom"), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := shouldRetryMigration(tc.err); got != tc.want {
				t.Fatalf("shouldRetryMigration(%v) = %v want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestMigrateRejectsUnknownCommand(t *testing.T) {
	if _, err := Migrate(t.Context(), "pgx5://localhost:1/none", "sideways", nil); err == nil {
		t.Fatal("expected error")
	}
}

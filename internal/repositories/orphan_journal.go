package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	crdbpgxv5 "github.com/cockroachdb/cockroach-go/v2/crdb/crdbpgxv5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/aora/backend/internal/db"
	"github.com/aora/backend/internal/models"
)

// OrphanJournal records accounts whose registration stopped before their user
// document was written, so an operator can finish or remove them.
type OrphanJournal interface {
	Record(ctx context.Context, orphan models.OrphanedAccount) error
	ListUnresolved(ctx context.Context, limit int) ([]models.OrphanedAccount, error)
	Resolve(ctx context.Context, id string) error
}

// PostgresOrphanJournal provides PostgreSQL-backed persistence for orphaned accounts.
type PostgresOrphanJournal struct {
	pool db.Pool
}

// NewPostgresOrphanJournal constructs a journal backed by PostgreSQL.
func NewPostgresOrphanJournal(pool db.Pool) *PostgresOrphanJournal {
	return &PostgresOrphanJournal{pool: pool}
}

// Record persists a new journal entry. Missing ids and timestamps are filled in.
func (r *PostgresOrphanJournal) Record(ctx context.Context, orphan models.OrphanedAccount) error {
	if strings.TrimSpace(orphan.AccountID) == "" {
		return errors.New("orphaned account id must be provided")
	}
	if orphan.ID == "" {
		orphan.ID = uuid.NewString()
	}
	if orphan.CreatedAt.IsZero() {
		orphan.CreatedAt = time.Now().UTC()
	}

	err := crdbpgxv5.ExecuteTx(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
            INSERT INTO orphaned_accounts (id, account_id, email, stage, reason, created_at)
            VALUES ($1, $2, $3, $4, $5, $6)
        `, orphan.ID, orphan.AccountID, orphan.Email, orphan.Stage, orphan.Reason, orphan.CreatedAt)
		return err
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return fmt.Errorf("insert orphaned account: %w", err)
	}
	return nil
}

// ListUnresolved returns open entries, oldest first.
func (r *PostgresOrphanJournal) ListUnresolved(ctx context.Context, limit int) ([]models.OrphanedAccount, error) {
	if limit <= 0 {
		limit = 100
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT id, account_id, email, stage, reason, created_at, resolved_at
        FROM orphaned_accounts
        WHERE resolved_at IS NULL
        ORDER BY created_at ASC
        LIMIT $1
    `, limit)
	if err != nil {
		return nil, fmt.Errorf("query orphaned accounts: %w", err)
	}
	defer rows.Close()

	orphans := []models.OrphanedAccount{}
	for rows.Next() {
		var (
			orphan     models.OrphanedAccount
			resolvedAt sql.NullTime
		)
		if err := rows.Scan(&orphan.ID, &orphan.AccountID, &orphan.Email, &orphan.Stage, &orphan.Reason, &orphan.CreatedAt, &resolvedAt); err != nil {
			return nil, fmt.Errorf("scan orphaned account: %w", err)
		}
		if resolvedAt.Valid {
			t := resolvedAt.Time.UTC()
			orphan.ResolvedAt = &t
		}
		orphans = append(orphans, orphan)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orphaned accounts: %w", err)
	}
	return orphans, nil
}

// Resolve marks an entry as handled.
func (r *PostgresOrphanJournal) Resolve(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}

	var affected int64
	err := crdbpgxv5.ExecuteTx(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
            UPDATE orphaned_accounts
            SET resolved_at = $2
            WHERE id = $1 AND resolved_at IS NULL
        `, id, time.Now().UTC())
		if err != nil {
			return err
		}
		affected = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return fmt.Errorf("resolve orphaned account: %w", err)
	}

	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

var _ OrphanJournal = (*PostgresOrphanJournal)(nil)

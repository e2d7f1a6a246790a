// Package postgres implements the claim ledger and quota gate on PostgreSQL.
//
// Claims use a plain INSERT guarded by the primary key: a unique violation
// means another delivery already claimed the key. Quota consumption is a
// single upsert whose update only fires while used is below the user's
// override, or the configured default when the user has none.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Ledger implements intake.ClaimLedger, intake.QuotaGate and intake.QuotaAdmin
type Ledger struct {
	db           DBTX
	defaultLimit int64
}

// New creates a ledger on db. Users without a quota row get defaultLimit.
func New(db DBTX, defaultLimit int64) *Ledger {
	return &Ledger{db: db, defaultLimit: defaultLimit}
}

// NewWithPool creates a ledger with connection pool
func NewWithPool(pool *pgxpool.Pool, defaultLimit int64) *Ledger {
	return &Ledger{db: pool, defaultLimit: defaultLimit}
}

const (
	uniqueViolation = "23505"
	undefinedTable  = "42P01"
)

func (l *Ledger) ClaimOnce(ctx context.Context, objectKey string) (bool, error) {
	query := `INSERT INTO upload_claims (object_key, claimed_at) VALUES ($1, now())`

	_, err := l.db.Exec(ctx, query, objectKey)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return false, nil
		}
		return false, handlePostgresError("claim object key", err)
	}
	return true, nil
}

func (l *Ledger) TryConsume(ctx context.Context, userID string) (bool, error) {
	// A NULL quota_limit means the user follows the configured default.
	query := `
		INSERT INTO upload_quotas (user_id, used, quota_limit, updated_at)
		SELECT $1::text, 1, NULL, now()
		WHERE $2::bigint > 0
		   OR EXISTS (SELECT 1 FROM upload_quotas WHERE user_id = $1::text)
		ON CONFLICT (user_id) DO UPDATE SET
			used = upload_quotas.used + 1,
			updated_at = now()
		WHERE upload_quotas.used < COALESCE(upload_quotas.quota_limit, $2::bigint)
		RETURNING used`

	var used int64
	err := l.db.QueryRow(ctx, query, userID, l.defaultLimit).Scan(&used)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, handlePostgresError("consume quota", err)
	}
	return true, nil
}

func (l *Ledger) SetLimit(ctx context.Context, userID string, limit int64) error {
	if limit < 0 {
		return fmt.Errorf("quota limit must not be negative: %d", limit)
	}

	query := `
		INSERT INTO upload_quotas (user_id, used, quota_limit, updated_at)
		VALUES ($1, 0, $2, now())
		ON CONFLICT (user_id) DO UPDATE SET
			quota_limit = EXCLUDED.quota_limit,
			updated_at = now()`

	if _, err := l.db.Exec(ctx, query, userID, limit); err != nil {
		return handlePostgresError("set quota limit", err)
	}
	return nil
}

func (l *Ledger) Usage(ctx context.Context, userID string) (int64, int64, error) {
	query := `SELECT used, COALESCE(quota_limit, $2) FROM upload_quotas WHERE user_id = $1`

	var used, limit int64
	err := l.db.QueryRow(ctx, query, userID, l.defaultLimit).Scan(&used, &limit)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, l.defaultLimit, nil
		}
		return 0, 0, handlePostgresError("read quota usage", err)
	}
	return used, limit, nil
}

// Error handling helper
func handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case undefinedTable:
			return fmt.Errorf("%s: table does not exist - database migration required: %w", operation, err)
		default:
			return fmt.Errorf("database error in %s: %s (code: %s): %w", operation, pgErr.Message, pgErr.Code, err)
		}
	}
	return fmt.Errorf("database error in %s: %w", operation, err)
}

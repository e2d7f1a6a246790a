package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRow struct {
	values []int64
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		*(d.(*int64)) = r.values[i]
	}
	return nil
}

type fakeDB struct {
	execErr  error
	row      fakeRow
	lastSQL  string
	lastArgs []interface{}
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	f.lastSQL, f.lastArgs = sql, args
	if f.execErr != nil {
		return pgconn.CommandTag{}, f.execErr
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakeDB) QueryRow(_ context.Context, sql string, args ...interface{}) pgx.Row {
	f.lastSQL, f.lastArgs = sql, args
	return f.row
}

func TestLedger_ClaimOnce_Fake(t *testing.T) {
	ctx := context.Background()

	t.Run("Inserted", func(t *testing.T) {
		db := &fakeDB{}
		ok, err := New(db, 5).ClaimOnce(ctx, "uploads/u1/a.mp4")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Contains(t, db.lastSQL, "INSERT INTO upload_claims")
		assert.Equal(t, []interface{}{"uploads/u1/a.mp4"}, db.lastArgs)
	})

	t.Run("UniqueViolationIsNotAnError", func(t *testing.T) {
		db := &fakeDB{execErr: &pgconn.PgError{Code: "23505", ConstraintName: "upload_claims_pkey"}}
		ok, err := New(db, 5).ClaimOnce(ctx, "uploads/u1/a.mp4")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("InfrastructureErrorPropagates", func(t *testing.T) {
		connErr := errors.New("connection refused")
		db := &fakeDB{execErr: connErr}
		ok, err := New(db, 5).ClaimOnce(ctx, "uploads/u1/a.mp4")
		require.Error(t, err)
		assert.ErrorIs(t, err, connErr)
		assert.False(t, ok)
	})

	t.Run("MissingTable", func(t *testing.T) {
		db := &fakeDB{execErr: &pgconn.PgError{Code: "42P01", Message: "relation does not exist"}}
		_, err := New(db, 5).ClaimOnce(ctx, "uploads/u1/a.mp4")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "migration required")
	})
}

func TestLedger_TryConsume_Fake(t *testing.T) {
	ctx := context.Background()

	t.Run("Granted", func(t *testing.T) {
		db := &fakeDB{row: fakeRow{values: []int64{3}}}
		ok, err := New(db, 5).TryConsume(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, []interface{}{"u1", int64(5)}, db.lastArgs)
		assert.Contains(t, db.lastSQL, "COALESCE(upload_quotas.quota_limit, $2::bigint)")
	})

	t.Run("NoRowMeansLimitReached", func(t *testing.T) {
		db := &fakeDB{row: fakeRow{err: pgx.ErrNoRows}}
		ok, err := New(db, 5).TryConsume(ctx, "u1")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("InfrastructureErrorPropagates", func(t *testing.T) {
		db := &fakeDB{row: fakeRow{err: errors.New("timeout")}}
		ok, err := New(db, 5).TryConsume(ctx, "u1")
		require.Error(t, err)
		assert.False(t, ok)
	})
}

func TestLedger_Usage_Fake(t *testing.T) {
	ctx := context.Background()

	db := &fakeDB{row: fakeRow{err: pgx.ErrNoRows}}
	used, limit, err := New(db, 7).Usage(ctx, "nobody")
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"nobody", int64(7)}, db.lastArgs)
	assert.Equal(t, int64(0), used)
	assert.Equal(t, int64(7), limit)

	used, limit, err = New(&fakeDB{row: fakeRow{values: []int64{2, 4}}}, 7).Usage(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), used)
	assert.Equal(t, int64(4), limit)

	err = New(&fakeDB{}, 7).SetLimit(ctx, "u1", -1)
	assert.Error(t, err)
}

func TestMigrate_UsesEmbeddedMigrations(t *testing.T) {
	orig := gooseUpContext
	t.Cleanup(func() { gooseUpContext = orig })

	var gotDir string
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		gotDir = dir
		entries, err := migrations.ReadDir(dir)
		require.NoError(t, err)
		require.NotEmpty(t, entries)
		return nil
	}

	require.NoError(t, Migrate(context.Background(), nil))
	assert.Equal(t, "migrations", gotDir)

	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return errors.New("boom")
	}
	err := Migrate(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "apply migrations")
}

// newTestPool connects to TEST_DATABASE_URL, migrates it and isolates the
// test in its own schema. Tests are skipped when no database is configured.
func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	connString := os.Getenv("TEST_DATABASE_URL")
	if connString == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	schema := "intake_test_" + strings.ReplaceAll(uuid.NewString()[:8], "-", "")

	admin, err := pgxpool.New(ctx, connString)
	require.NoError(t, err, "Failed to connect to test database")
	_, err = admin.Exec(ctx, "CREATE SCHEMA "+schema)
	require.NoError(t, err)

	cfg, err := pgxpool.ParseConfig(connString)
	require.NoError(t, err)
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	require.NoError(t, err)

	t.Cleanup(func() {
		pool.Close()
		_, _ = admin.Exec(ctx, fmt.Sprintf("DROP SCHEMA %s CASCADE", schema))
		admin.Close()
	})

	require.NoError(t, MigratePool(ctx, pool))
	return pool
}

func TestLedger_Postgres(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	ledger := NewWithPool(pool, 3)

	t.Run("ClaimOnceConcurrent", func(t *testing.T) {
		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := ledger.ClaimOnce(ctx, "uploads/u1/race.mp4")
				assert.NoError(t, err)
				if ok {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())
	})

	t.Run("TryConsumeConcurrent", func(t *testing.T) {
		var granted atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := ledger.TryConsume(ctx, "u-race")
				assert.NoError(t, err)
				if ok {
					granted.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(3), granted.Load())

		used, limit, err := ledger.Usage(ctx, "u-race")
		require.NoError(t, err)
		assert.Equal(t, int64(3), used)
		assert.Equal(t, int64(3), limit)
	})

	t.Run("SetLimit", func(t *testing.T) {
		require.NoError(t, ledger.SetLimit(ctx, "u-vip", 1))
		ok, err := ledger.TryConsume(ctx, "u-vip")
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = ledger.TryConsume(ctx, "u-vip")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("DefaultLimitChangeApplies", func(t *testing.T) {
		ok, err := New(pool, 1).TryConsume(ctx, "u-default")
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = New(pool, 1).TryConsume(ctx, "u-default")
		require.NoError(t, err)
		assert.False(t, ok)

		raised := New(pool, 2)
		ok, err = raised.TryConsume(ctx, "u-default")
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = raised.TryConsume(ctx, "u-default")
		require.NoError(t, err)
		assert.False(t, ok)

		used, limit, err := raised.Usage(ctx, "u-default")
		require.NoError(t, err)
		assert.Equal(t, int64(2), used)
		assert.Equal(t, int64(2), limit)
	})

	t.Run("OverrideWinsOverDefault", func(t *testing.T) {
		closed := New(pool, 0)
		ok, err := closed.TryConsume(ctx, "u-granted")
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, closed.SetLimit(ctx, "u-granted", 1))
		ok, err = closed.TryConsume(ctx, "u-granted")
		require.NoError(t, err)
		assert.True(t, ok)

		_, limit, err := New(pool, 50).Usage(ctx, "u-granted")
		require.NoError(t, err)
		assert.Equal(t, int64(1), limit)
	})
}

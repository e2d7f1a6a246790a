package redis_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/video-intake/pkg/intake"
	"github.com/tendant/video-intake/pkg/intake/ledger/redis"
)

var (
	_ intake.ClaimLedger = (*redis.Ledger)(nil)
	_ intake.QuotaGate   = (*redis.Ledger)(nil)
	_ intake.QuotaAdmin  = (*redis.Ledger)(nil)
)

func newLedger(t *testing.T, limit int64) (*redis.Ledger, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })
	return redis.New(client, "", limit), srv
}

func TestLedger_ClaimOnce(t *testing.T) {
	ledger, srv := newLedger(t, 5)
	ctx := context.Background()

	ok, err := ledger.ClaimOnce(ctx, "uploads/u1/a.mp4")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, srv.Exists(redis.DefaultPrefix+"claim:uploads/u1/a.mp4"))
	assert.Zero(t, srv.TTL(redis.DefaultPrefix+"claim:uploads/u1/a.mp4"))

	ok, err = ledger.ClaimOnce(ctx, "uploads/u1/a.mp4")
	require.NoError(t, err)
	assert.False(t, ok)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, err := ledger.ClaimOnce(ctx, "uploads/u1/race.mp4"); err == nil && ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestLedger_ClaimOnce_ServerDown(t *testing.T) {
	ledger, srv := newLedger(t, 5)
	srv.Close()

	ok, err := ledger.ClaimOnce(context.Background(), "uploads/u1/a.mp4")
	require.Error(t, err)
	assert.False(t, ok)
}

func TestLedger_TryConsume(t *testing.T) {
	ctx := context.Background()

	t.Run("DefaultLimit", func(t *testing.T) {
		ledger, _ := newLedger(t, 2)
		for i := 0; i < 2; i++ {
			ok, err := ledger.TryConsume(ctx, "u1")
			require.NoError(t, err)
			assert.True(t, ok)
		}
		ok, err := ledger.TryConsume(ctx, "u1")
		require.NoError(t, err)
		assert.False(t, ok)

		used, limit, err := ledger.Usage(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, int64(2), used)
		assert.Equal(t, int64(2), limit)
	})

	t.Run("LimitOverride", func(t *testing.T) {
		ledger, _ := newLedger(t, 2)
		require.NoError(t, ledger.SetLimit(ctx, "u1", 0))
		ok, err := ledger.TryConsume(ctx, "u1")
		require.NoError(t, err)
		assert.False(t, ok)

		used, limit, err := ledger.Usage(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, int64(0), used)
		assert.Equal(t, int64(0), limit)
	})

	t.Run("ConcurrentNearLimit", func(t *testing.T) {
		ledger, _ := newLedger(t, 3)
		var granted atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 30; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if ok, err := ledger.TryConsume(ctx, "u1"); err == nil && ok {
					granted.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(3), granted.Load())
	})
}

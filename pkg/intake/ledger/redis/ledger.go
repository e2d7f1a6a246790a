// Package redis implements the claim ledger and quota gate on Redis.
// Claims are SET NX without expiry; quota consumption runs as one Lua
// script so the limit check and the increment cannot interleave.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	r "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces all keys written by the ledger
const DefaultPrefix = "intake:"

var consumeScript = r.NewScript(`
local used = tonumber(redis.call('GET', KEYS[1]) or '0')
local limit = tonumber(redis.call('GET', KEYS[2]) or ARGV[1])
if used >= limit then
  return 0
end
redis.call('INCR', KEYS[1])
return 1
`)

// Ledger implements intake.ClaimLedger, intake.QuotaGate and intake.QuotaAdmin
type Ledger struct {
	client       r.UniversalClient
	prefix       string
	defaultLimit int64
}

// New creates a ledger on client. An empty prefix selects DefaultPrefix.
func New(client r.UniversalClient, prefix string, defaultLimit int64) *Ledger {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Ledger{client: client, prefix: prefix, defaultLimit: defaultLimit}
}

func (l *Ledger) claimKey(objectKey string) string { return l.prefix + "claim:" + objectKey }

// Both quota keys of a user hash to one cluster slot so the script may touch them together.
func (l *Ledger) usedKey(userID string) string  { return l.prefix + "quota:{" + userID + "}:used" }
func (l *Ledger) limitKey(userID string) string { return l.prefix + "quota:{" + userID + "}:limit" }

func (l *Ledger) ClaimOnce(ctx context.Context, objectKey string) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.claimKey(objectKey), time.Now().Unix(), 0).Result()
	if err != nil {
		return false, fmt.Errorf("redis claim %s: %w", objectKey, err)
	}
	return ok, nil
}

func (l *Ledger) TryConsume(ctx context.Context, userID string) (bool, error) {
	keys := []string{l.usedKey(userID), l.limitKey(userID)}
	res, err := consumeScript.Run(ctx, l.client, keys, l.defaultLimit).Int64()
	if err != nil {
		return false, fmt.Errorf("redis consume quota %s: %w", userID, err)
	}
	return res == 1, nil
}

func (l *Ledger) SetLimit(ctx context.Context, userID string, limit int64) error {
	if limit < 0 {
		return fmt.Errorf("quota limit must not be negative: %d", limit)
	}
	if err := l.client.Set(ctx, l.limitKey(userID), limit, 0).Err(); err != nil {
		return fmt.Errorf("redis set quota limit %s: %w", userID, err)
	}
	return nil
}

func (l *Ledger) Usage(ctx context.Context, userID string) (int64, int64, error) {
	used, err := l.getInt(ctx, l.usedKey(userID), 0)
	if err != nil {
		return 0, 0, err
	}
	limit, err := l.getInt(ctx, l.limitKey(userID), l.defaultLimit)
	if err != nil {
		return 0, 0, err
	}
	return used, limit, nil
}

func (l *Ledger) getInt(ctx context.Context, key string, fallback int64) (int64, error) {
	v, err := l.client.Get(ctx, key).Int64()
	if errors.Is(err, r.Nil) {
		return fallback, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, nil
}

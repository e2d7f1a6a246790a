// Package memory provides an in-process claim ledger and quota gate for
// tests and single-instance development setups.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Ledger implements intake.ClaimLedger, intake.QuotaGate and
// intake.QuotaAdmin using in-memory maps guarded by one mutex.
type Ledger struct {
	mu           sync.Mutex
	claims       map[string]time.Time // object key -> claimed at
	used         map[string]int64     // user id -> consumed units
	limits       map[string]int64     // user id -> limit override
	defaultLimit int64
}

// New creates an empty ledger where every user starts with defaultLimit units.
func New(defaultLimit int64) *Ledger {
	return &Ledger{
		claims:       make(map[string]time.Time),
		used:         make(map[string]int64),
		limits:       make(map[string]int64),
		defaultLimit: defaultLimit,
	}
}

func (l *Ledger) ClaimOnce(ctx context.Context, objectKey string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.claims[objectKey]; exists {
		return false, nil
	}
	l.claims[objectKey] = time.Now()
	return true, nil
}

func (l *Ledger) TryConsume(ctx context.Context, userID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.used[userID] >= l.limitLocked(userID) {
		return false, nil
	}
	l.used[userID]++
	return true, nil
}

func (l *Ledger) SetLimit(ctx context.Context, userID string, limit int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if limit < 0 {
		return fmt.Errorf("quota limit must not be negative: %d", limit)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.limits[userID] = limit
	return nil
}

func (l *Ledger) Usage(ctx context.Context, userID string) (int64, int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.used[userID], l.limitLocked(userID), nil
}

// Claimed reports whether objectKey has been claimed.
func (l *Ledger) Claimed(objectKey string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, ok := l.claims[objectKey]
	return ok
}

func (l *Ledger) limitLocked(userID string) int64 {
	if limit, ok := l.limits[userID]; ok {
		return limit
	}
	return l.defaultLimit
}

package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld indicates the critical section is already owned elsewhere.
var ErrLockHeld = errors.New("shared: lock already held")

// PeriodLockKey builds redis keys for the period close barrier. Close,
// Lock, and Post all compete on this key so that a racing post either
// completes before the close or fails after it.
func PeriodLockKey(periodID uuid.UUID) string {
	return fmt.Sprintf("ledger:period:%s:lock", periodID)
}

// ScheduleLockKey builds redis keys guarding recurring materialization.
func ScheduleLockKey(scheduleID uuid.UUID) string {
	return fmt.Sprintf("ledger:schedule:%s:lock", scheduleID)
}

// RedisMutex is a SET NX PX mutex over a shared redis instance.
type RedisMutex struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisMutex returns a mutex factory bound to one redis client.
func NewRedisMutex(client *redis.Client, ttl time.Duration) *RedisMutex {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisMutex{client: client, ttl: ttl}
}

// Acquire takes the named lock or fails fast with ErrLockHeld. The
// returned release function is safe to call once; expiry covers the
// crash case.
func (m *RedisMutex) Acquire(ctx context.Context, key string) (func(), error) {
	if m == nil || m.client == nil {
		// Single-process deployments run without redis; the row locks
		// still serialize writers.
		return func() {}, nil
	}
	token := uuid.NewString()
	ok, err := m.client.SetNX(ctx, key, token, m.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("shared: acquire %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	release := func() {
		const script = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`
		_ = m.client.Eval(context.Background(), script, []string{key}, token).Err()
	}
	return release, nil
}

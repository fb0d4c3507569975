package counter

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrStoreUnavailable marks any failure to reach the backing counter service,
// including timeouts. The store performs no retries; callers decide fail-open
// versus fail-closed.
var ErrStoreUnavailable = errors.New("counter store unavailable")

// historyMaxLen bounds the per-identity sample history kept for anomaly
// detection.
const historyMaxLen = 128

// Store abstracts the atomic counter / key-value service every engine
// depends on. Increments are atomic server-side; counter keys need no
// application-level locking.
type Store interface {
	// IncrementWithWindow atomically increments key and returns the new
	// count. The first increment of a key sets its expiry to window in the
	// same store-side step, so a key can never exist without a TTL.
	IncrementWithWindow(ctx context.Context, key string, window time.Duration) (int64, error)
	// IncrementByWithWindow is IncrementWithWindow with an arbitrary delta,
	// used for byte-volume accumulators.
	IncrementByWithWindow(ctx context.Context, key string, delta int64, window time.Duration) (int64, error)
	// Get returns the current count, 0 if the key is absent or expired.
	Get(ctx context.Context, key string) (int64, error)
	// Set writes a value with a TTL; used for advisory marker keys.
	Set(ctx context.Context, key string, value int64, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// TimeToLive returns the remaining window for key, 0 if absent/expired.
	TimeToLive(ctx context.Context, key string) (time.Duration, error)

	// RangeAppend appends a sample to the bounded history list under key,
	// refreshing its expiry to window.
	RangeAppend(ctx context.Context, key string, value int64, window time.Duration) error
	// RangeQuery returns the history list in append order.
	RangeQuery(ctx context.Context, key string) ([]int64, error)

	// Sorted set operations back ordered rule persistence.
	SortedAdd(ctx context.Context, key string, score float64, member string) error
	SortedRemove(ctx context.Context, key string, member string) error
	// SortedReplace removes oldMember and adds newMember with score in one
	// store-side step, so a failure can never leave only half the swap
	// applied.
	SortedReplace(ctx context.Context, key string, oldMember string, score float64, newMember string) error
	// SortedRange returns members ordered by descending score.
	SortedRange(ctx context.Context, key string) ([]string, error)
}

// Key namespaces a counter by signal and identity.
func Key(namespace, identity string) string {
	return fmt.Sprintf("%s:%s", namespace, identity)
}

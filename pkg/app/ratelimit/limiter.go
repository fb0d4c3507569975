package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/NeuralTrust/TrustShield/pkg/infra/counter"
	"github.com/sirupsen/logrus"
)

// Namespace for per-identity rate limit counters.
const Namespace = "rate_limit"

// ErrLimitExceeded is a verdict, not a fault: the identity spent its window
// quota.
var ErrLimitExceeded = errors.New("rate limit exceeded")

type Config struct {
	// Limit is the maximum number of events per fixed window.
	Limit int64
	// BurstSize is configuration metadata only; the fixed-window algorithm
	// does not enforce it.
	BurstSize int64
	Window    time.Duration
}

// Limiter enforces at most Limit events per fixed window per identity. All
// state lives in the counter store, so instances sharing a store enforce a
// globally consistent limit. Being a fixed window, up to 2x the limit can
// pass across a window boundary; that approximation is the contract.
type Limiter interface {
	// Check counts this event and returns nil, ErrLimitExceeded, or a store
	// error.
	Check(ctx context.Context, identity string) error
	// Reset deletes the counter, immediately restoring full quota.
	Reset(ctx context.Context, identity string) error
	// Remaining reports quota left in the current window, clamped to
	// [0, limit]. Best-effort: not transactional with concurrent checks.
	Remaining(ctx context.Context, identity string) (int64, error)
	// ResetTime reports the remaining window duration, 0 without an active
	// window.
	ResetTime(ctx context.Context, identity string) (time.Duration, error)
}

type limiter struct {
	store  counter.Store
	config Config
	logger *logrus.Logger
}

func NewLimiter(store counter.Store, config Config, logger *logrus.Logger) Limiter {
	if config.BurstSize > 0 {
		logger.WithField("burst_size", config.BurstSize).
			Debug("burst size configured but not enforced by the fixed-window algorithm")
	}
	return &limiter{
		store:  store,
		config: config,
		logger: logger,
	}
}

func (l *limiter) Check(ctx context.Context, identity string) error {
	key := counter.Key(Namespace, identity)
	count, err := l.store.IncrementWithWindow(ctx, key, l.config.Window)
	if err != nil {
		return err
	}
	if count > l.config.Limit {
		return ErrLimitExceeded
	}
	return nil
}

func (l *limiter) Reset(ctx context.Context, identity string) error {
	return l.store.Delete(ctx, counter.Key(Namespace, identity))
}

func (l *limiter) Remaining(ctx context.Context, identity string) (int64, error) {
	count, err := l.store.Get(ctx, counter.Key(Namespace, identity))
	if err != nil {
		return 0, err
	}
	remaining := l.config.Limit - count
	if remaining < 0 {
		remaining = 0
	}
	if remaining > l.config.Limit {
		remaining = l.config.Limit
	}
	return remaining, nil
}

func (l *limiter) ResetTime(ctx context.Context, identity string) (time.Duration, error) {
	return l.store.TimeToLive(ctx, counter.Key(Namespace, identity))
}

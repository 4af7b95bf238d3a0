package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/donorguard/store"
	"go.uber.org/zap"
)

// Config holds limiter behavior that is not per-call.
type Config struct {
	// FailOpen allows requests when the store is unreachable.
	FailOpen bool
}

// Decision is the outcome of a single Check.
type Decision struct {
	Allowed   bool
	Limit     int
	Count     int64
	Remaining int
	// Reset is the time until the current window ends.
	Reset time.Duration
	// Degraded is set when the store failed and the policy decided.
	Degraded bool
}

// RetryAfter returns the whole seconds a rejected caller should wait.
func (d Decision) RetryAfter() int {
	secs := int((d.Reset + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Limiter enforces fixed-window limits on a shared store.
type Limiter struct {
	store  store.Store
	config Config
	log    *zap.Logger
}

// New creates a [Limiter] backed by s.
func New(s store.Store, cfg Config, log *zap.Logger) *Limiter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Limiter{
		store:  s,
		config: cfg,
		log:    log,
	}
}

// Check counts one hit for identifier within scope and reports whether it
// is within limit hits per window.
func (l *Limiter) Check(ctx context.Context, scope, identifier string, limit int, window time.Duration) (Decision, error) {
	if scope == "" || identifier == "" || limit <= 0 || window <= 0 {
		return Decision{}, ErrInvalidPolicy
	}

	key := Key(scope, identifier)
	count, err := l.store.Increment(ctx, key, window)
	if err != nil {
		return l.degrade(scope, limit, window, err)
	}

	d := Decision{
		Allowed: count <= int64(limit),
		Limit:   limit,
		Count:   count,
		Reset:   window,
	}
	if rem := int64(limit) - count; rem > 0 {
		d.Remaining = int(rem)
	}

	if count > 1 {
		ttl, err := l.store.TTL(ctx, key)
		switch {
		case err == nil && ttl > 0:
			d.Reset = ttl
		case err != nil && !errors.Is(err, store.ErrNotFound):
			l.log.Warn("rate limit ttl lookup failed",
				zap.String("scope", scope),
				zap.Error(err),
			)
		}
	}

	return d, nil
}

// Reset clears the counter for identifier within scope.
func (l *Limiter) Reset(ctx context.Context, scope, identifier string) error {
	if _, err := l.store.Delete(ctx, Key(scope, identifier)); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// FailOpen reports the configured store-failure policy.
func (l *Limiter) FailOpen() bool {
	return l.config.FailOpen
}

func (l *Limiter) degrade(scope string, limit int, window time.Duration, cause error) (Decision, error) {
	if l.config.FailOpen {
		l.log.Warn("rate limiter store failure, allowing request",
			zap.String("scope", scope),
			zap.Error(cause),
		)
		return Decision{
			Allowed:   true,
			Limit:     limit,
			Remaining: limit,
			Reset:     window,
			Degraded:  true,
		}, nil
	}

	l.log.Error("rate limiter store failure, rejecting request",
		zap.String("scope", scope),
		zap.Error(cause),
	)
	return Decision{
		Allowed:  false,
		Limit:    limit,
		Reset:    window,
		Degraded: true,
	}, fmt.Errorf("%w: %v", ErrUnavailable, cause)
}

// Key returns the store key for a scope/identifier pair.
func Key(scope, identifier string) string {
	return "rl:" + scope + ":" + identifier
}

package donorguard

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/donorguard/abuse"
	"github.com/MrEthical07/donorguard/internal/captcha"
	"github.com/MrEthical07/donorguard/internal/otp"
	"github.com/MrEthical07/donorguard/internal/rate"
	"github.com/MrEthical07/donorguard/internal/replay"
	"github.com/MrEthical07/donorguard/store"
	"github.com/MrEthical07/donorguard/ticket"
	"go.uber.org/zap"
)

// Guard runs the anti-abuse flows. Build one with [New].
type Guard struct {
	config Config
	log    *zap.Logger
	store  store.Store

	limiter *rate.Limiter
	replay  *replay.Guard
	otp     *otp.Service
	captcha *captcha.Verifier
	tickets *ticket.Manager
	abuse   *abuse.Log

	notifier Notifier
	users    UserStore
	metrics  *Metrics
}

// Config returns a copy of the effective configuration.
func (g *Guard) Config() Config {
	return cloneConfig(g.config)
}

// MetricsSnapshot returns current counters.
func (g *Guard) MetricsSnapshot() MetricsSnapshot {
	if g == nil {
		return MetricsSnapshot{}
	}
	return g.metrics.Snapshot()
}

// AbuseDropped returns abuse events lost to dispatcher backpressure.
func (g *Guard) AbuseDropped() uint64 {
	if g == nil {
		return 0
	}
	return g.abuse.Dropped()
}

// Ping checks that the shared store answers.
func (g *Guard) Ping(ctx context.Context) error {
	if _, err := g.store.Exists(ctx, "health"); err != nil {
		return newError(CodeServiceError, err)
	}
	return nil
}

// Close drains asynchronous abuse delivery.
func (g *Guard) Close() {
	if g == nil {
		return
	}
	g.abuse.Close()
}

// RecordAbuse appends an abuse event. It never fails.
func (g *Guard) RecordAbuse(ctx context.Context, category AbuseCategory, detail, ip string, metadata map[string]string) {
	g.abuse.Record(ctx, category, detail, ip, metadata)
}

// CheckRate counts one hit against a caller-defined fixed window. Rejections
// return ErrRateLimited with RetryAfter set. Store failures follow
// Config.RateLimit.FailurePolicy.
func (g *Guard) CheckRate(ctx context.Context, scope, identifier string, limit int, window time.Duration) (RateDecision, error) {
	d, err := g.limiter.Check(ctx, scope, identifier, limit, window)
	out := RateDecision{
		Allowed:   d.Allowed,
		Limit:     d.Limit,
		Remaining: d.Remaining,
		Reset:     d.Reset,
		Degraded:  d.Degraded,
	}

	switch {
	case errors.Is(err, rate.ErrInvalidPolicy):
		return out, newError(CodeInvalidFormat, err)
	case err != nil:
		g.metrics.Inc(MetricRateLimitDegraded)
		g.abuse.Record(ctx, abuse.CategoryStoreDegraded, "rate limiter store failure", identifier,
			map[string]string{"scope": scope, "policy": FailClosed.String()})
		return out, newError(CodeServiceError, err)
	}

	if d.Degraded {
		g.metrics.Inc(MetricRateLimitDegraded)
	}
	if !d.Allowed {
		g.metrics.Inc(MetricRateLimitHit)
		g.abuse.Record(ctx, abuse.CategoryRateLimited, scope, identifier, nil)
		return out, newRetryError(CodeRateLimited, time.Duration(d.RetryAfter())*time.Second)
	}
	return out, nil
}

// checkLimit applies a configured budget. Disabled limits always pass.
func (g *Guard) checkLimit(ctx context.Context, scope, identifier string, l Limit) error {
	if !l.enabled() || identifier == "" {
		return nil
	}
	_, err := g.CheckRate(ctx, scope, identifier, l.Limit, l.Window)
	return err
}

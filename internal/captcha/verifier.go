package captcha

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/donorguard/internal/errcode"
	"github.com/MrEthical07/donorguard/internal/rate"
	"github.com/MrEthical07/donorguard/internal/replay"
	"go.uber.org/zap"
)

// RateScope is the limiter scope for per-IP validation attempts.
const RateScope = "captcha_ip"

// Config controls validation. Zero fields take the defaults from
// [DefaultConfig].
type Config struct {
	MinTokenLength int
	MaxTokenLength int

	RateLimit  int
	RateWindow time.Duration

	Timeout time.Duration

	// AtomicClaim reserves the token digest before the upstream call so two
	// concurrent submissions of one token cannot both be accepted.
	AtomicClaim bool
	// FailOpen accepts tokens while the provider is unreachable. Off by
	// default: a failed upstream call denies the request.
	FailOpen bool

	ExpectedHostname string
	ExpectedAction   string
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MinTokenLength: 20,
		MaxTokenLength: 2048,
		RateLimit:      10,
		RateWindow:     900 * time.Second,
		Timeout:        DefaultTimeout,
	}
}

// Result is the outcome of one validation. Code is errcode.None on success.
type Result struct {
	Success    bool
	Code       errcode.Code
	RetryAfter time.Duration
	// Degraded is set when a dependency failed and policy decided.
	Degraded bool
	// ProviderCodes echoes the provider's error codes on rejection.
	ProviderCodes []string
	// Upstream is the duration of the provider call, zero when none was made.
	Upstream time.Duration
}

// Verifier validates bot-verification tokens.
type Verifier struct {
	provider Provider
	limiter  *rate.Limiter
	replay   *replay.Guard
	config   Config
	log      *zap.Logger
}

// New creates a verifier. limiter may be nil to disable the per-IP limit.
func New(p Provider, limiter *rate.Limiter, guard *replay.Guard, cfg Config, log *zap.Logger) *Verifier {
	def := DefaultConfig()
	if cfg.MinTokenLength <= 0 {
		cfg.MinTokenLength = def.MinTokenLength
	}
	if cfg.MaxTokenLength <= 0 {
		cfg.MaxTokenLength = def.MaxTokenLength
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = def.RateLimit
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = def.RateWindow
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Verifier{
		provider: p,
		limiter:  limiter,
		replay:   guard,
		config:   cfg,
		log:      log,
	}
}

// Config returns the effective configuration.
func (v *Verifier) Config() Config {
	return v.config
}

// Validate checks token for clientIP. Steps run in order: format, per-IP
// limit, replay, upstream, then consumption.
func (v *Verifier) Validate(ctx context.Context, token, clientIP string) Result {
	if token == "" {
		return fail(errcode.MissingToken)
	}
	if len(token) < v.config.MinTokenLength || len(token) > v.config.MaxTokenLength {
		return fail(errcode.InvalidFormat)
	}

	if res, ok := v.checkRate(ctx, clientIP); !ok {
		return res
	}

	hash := replay.Hash(token)
	log := v.log.With(zap.String("token", hash[:12]), zap.String("ip", clientIP))

	if v.config.AtomicClaim {
		claimed, err := v.replay.Claim(ctx, hash)
		if err != nil {
			log.Error("replay claim failed", zap.Error(err))
			return fail(errcode.ServiceError)
		}
		if !claimed {
			return fail(errcode.TokenReused)
		}
	} else {
		used, err := v.replay.WasUsed(ctx, hash)
		if err != nil {
			log.Error("replay lookup failed", zap.Error(err))
			return fail(errcode.ServiceError)
		}
		if used {
			return fail(errcode.TokenReused)
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, v.config.Timeout)
	start := time.Now()
	verdict, err := v.provider.Verify(callCtx, token, clientIP)
	elapsed := time.Since(start)
	cancel()

	if err != nil {
		if !v.config.FailOpen {
			log.Warn("captcha provider unreachable, denying", zap.Duration("elapsed", elapsed), zap.Error(err))
			v.release(ctx, log, hash)
			res := fail(errcode.ValidationFailed)
			res.Degraded = true
			res.Upstream = elapsed
			return res
		}
		log.Warn("captcha provider unreachable, accepting", zap.Duration("elapsed", elapsed), zap.Error(err))
		res := v.consume(ctx, log, hash)
		res.Degraded = true
		res.Upstream = elapsed
		return res
	}

	if !verdict.Success {
		v.release(ctx, log, hash)
		res := fail(MapProviderCodes(verdict.ErrorCodes))
		res.ProviderCodes = verdict.ErrorCodes
		res.Upstream = elapsed
		return res
	}

	if !v.bindingMatches(verdict) {
		log.Warn("captcha verdict bound to another site or action",
			zap.String("hostname", verdict.Hostname),
			zap.String("action", verdict.Action),
		)
		v.release(ctx, log, hash)
		res := fail(errcode.InvalidToken)
		res.Upstream = elapsed
		return res
	}

	res := v.consume(ctx, log, hash)
	res.Upstream = elapsed
	return res
}

func (v *Verifier) checkRate(ctx context.Context, clientIP string) (Result, bool) {
	if v.limiter == nil {
		return Result{}, true
	}
	if clientIP == "" {
		clientIP = "unknown"
	}

	d, err := v.limiter.Check(ctx, RateScope, clientIP, v.config.RateLimit, v.config.RateWindow)
	if err != nil {
		if errors.Is(err, rate.ErrUnavailable) {
			return Result{Code: errcode.ServiceError, Degraded: true}, false
		}
		v.log.Error("captcha rate check failed", zap.Error(err))
		return fail(errcode.ServiceError), false
	}
	if !d.Allowed {
		return Result{
			Code:       errcode.RateLimited,
			RetryAfter: time.Duration(d.RetryAfter()) * time.Second,
		}, false
	}
	return Result{}, true
}

func (v *Verifier) bindingMatches(verdict Verdict) bool {
	if v.config.ExpectedHostname != "" && verdict.Hostname != v.config.ExpectedHostname {
		return false
	}
	if v.config.ExpectedAction != "" && verdict.Action != v.config.ExpectedAction {
		return false
	}
	return true
}

// consume marks the token used. Failing to record consumption denies the
// request, since the token could otherwise be replayed.
func (v *Verifier) consume(ctx context.Context, log *zap.Logger, hash string) Result {
	if err := v.replay.MarkUsed(ctx, hash); err != nil {
		log.Error("replay mark failed", zap.Error(err))
		v.release(ctx, log, hash)
		return fail(errcode.ServiceError)
	}
	return Result{Success: true}
}

func (v *Verifier) release(ctx context.Context, log *zap.Logger, hash string) {
	if !v.config.AtomicClaim {
		return
	}
	if err := v.replay.Release(ctx, hash); err != nil {
		log.Warn("replay claim release failed", zap.Error(err))
	}
}

func fail(code errcode.Code) Result {
	return Result{Code: code}
}

// MapProviderCodes folds provider error codes into one stable code. The
// first recognized code wins.
func MapProviderCodes(codes []string) errcode.Code {
	for _, c := range codes {
		switch c {
		case "timeout-or-duplicate":
			return errcode.TokenExpired
		case "invalid-input-response", "missing-input-response", "invalid-or-already-seen-response":
			return errcode.InvalidToken
		case "missing-input-secret", "invalid-input-secret", "internal-error", "bad-request":
			return errcode.ServiceError
		}
	}
	return errcode.ValidationFailed
}

package donorguard

import (
	"context"
	"strings"

	"github.com/MrEthical07/donorguard/abuse"
	"github.com/MrEthical07/donorguard/internal/captcha"
	"github.com/MrEthical07/donorguard/internal/errcode"
	"github.com/MrEthical07/donorguard/internal/replay"
)

// VerifyCaptcha validates a bot-verification token for ip. A token is
// consumed only when the provider accepts it. With Captcha.Enabled unset
// every call succeeds.
func (g *Guard) VerifyCaptcha(ctx context.Context, token, ip string) (CaptchaOutcome, error) {
	if g.captcha == nil {
		return CaptchaOutcome{}, nil
	}

	res := g.captcha.Validate(ctx, token, ip)
	if res.Upstream > 0 {
		g.metrics.Observe(MetricCaptchaLatency, res.Upstream)
	}

	if res.Success {
		g.metrics.Inc(MetricCaptchaSuccess)
		if res.Degraded {
			g.metrics.Inc(MetricCaptchaDegraded)
			g.abuse.Record(ctx, abuse.CategoryCaptchaDegraded, "accepted without provider verdict", ip,
				map[string]string{"token": tokenRef(token)})
		}
		return CaptchaOutcome{Degraded: res.Degraded}, nil
	}

	switch res.Code {
	case errcode.MissingToken, errcode.InvalidFormat:
		g.metrics.Inc(MetricCaptchaRejected)
	case errcode.RateLimited:
		g.metrics.Inc(MetricRateLimitHit)
		g.abuse.Record(ctx, abuse.CategoryRateLimited, captcha.RateScope, ip, nil)
	case errcode.TokenReused:
		g.metrics.Inc(MetricCaptchaReused)
		g.abuse.Record(ctx, abuse.CategoryTokenReused, "captcha token replayed", ip,
			map[string]string{"token": tokenRef(token)})
	case errcode.ServiceError:
		g.metrics.Inc(MetricCaptchaServiceError)
		if res.Degraded {
			g.abuse.Record(ctx, abuse.CategoryStoreDegraded, "captcha rate limiter store failure", ip, nil)
		}
	default:
		g.metrics.Inc(MetricCaptchaRejected)
		if res.Degraded {
			g.metrics.Inc(MetricCaptchaDegraded)
		}
		g.abuse.Record(ctx, abuse.CategoryCaptchaRejected, strings.Join(res.ProviderCodes, ","), ip,
			map[string]string{"code": string(res.Code), "token": tokenRef(token)})
	}

	e := newError(res.Code, nil)
	e.RetryAfter = res.RetryAfter
	return CaptchaOutcome{Degraded: res.Degraded}, e
}

// tokenRef is a short non-reversible reference for logs.
func tokenRef(token string) string {
	if token == "" {
		return ""
	}
	return replay.Hash(token)[:12]
}

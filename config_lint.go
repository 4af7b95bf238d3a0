package donorguard

import (
	"fmt"
	"time"
)

// LintSeverity ranks a lint warning.
type LintSeverity int

const (
	LintInfo LintSeverity = iota
	LintWarn
	LintHigh
)

func (s LintSeverity) String() string {
	switch s {
	case LintInfo:
		return "info"
	case LintWarn:
		return "warn"
	case LintHigh:
		return "high"
	default:
		return "unknown"
	}
}

// LintWarning flags a configuration that is valid but risky.
type LintWarning struct {
	Code     string
	Severity LintSeverity
	Message  string
}

// LintResult is the list returned by [Config.Lint].
type LintResult []LintWarning

// Codes returns the warning codes in order.
func (r LintResult) Codes() []string {
	out := make([]string, len(r))
	for i, w := range r {
		out[i] = w.Code
	}
	return out
}

// AtLeast returns warnings with severity >= min.
func (r LintResult) AtLeast(min LintSeverity) LintResult {
	var out LintResult
	for _, w := range r {
		if w.Severity >= min {
			out = append(out, w)
		}
	}
	return out
}

// Lint reports settings that pass Validate but weaken the layer.
func (c *Config) Lint() LintResult {
	var ws LintResult
	add := func(code string, sev LintSeverity, format string, args ...any) {
		ws = append(ws, LintWarning{Code: code, Severity: sev, Message: fmt.Sprintf(format, args...)})
	}

	if c.Captcha.Enabled && c.Captcha.UpstreamPolicy == FailOpen {
		add("captcha_fail_open", LintHigh,
			"CAPTCHA accepts tokens while the provider is unreachable")
	}
	if c.RateLimit.FailurePolicy == FailClosed {
		add("rate_limit_fail_closed", LintInfo,
			"a store outage will reject all rate-limited traffic")
	}
	if !c.Captcha.Enabled {
		add("captcha_disabled", LintWarn, "bot verification is disabled")
	}
	if c.Captcha.Enabled && !c.Captcha.PerIP.enabled() {
		add("captcha_ip_limit_disabled", LintWarn, "CAPTCHA validation is not rate limited per IP")
	}
	if c.Captcha.Enabled && !c.Captcha.AtomicClaim {
		add("captcha_double_accept", LintInfo,
			"concurrent submissions of one token can both be accepted; enable AtomicClaim to close this")
	}
	if c.Replay.TTL < time.Hour {
		add("replay_ttl_short", LintWarn,
			"replay memory of %s may be shorter than provider token validity", c.Replay.TTL)
	}
	if c.OTP.MaxAttempts > 5 {
		add("otp_attempts_high", LintWarn,
			"%d attempts per code weakens brute-force resistance", c.OTP.MaxAttempts)
	}
	if c.OTP.TTL > 15*time.Minute {
		add("otp_ttl_long", LintWarn, "codes live for %s", c.OTP.TTL)
	}
	if c.OTP.Cooldown < 30*time.Second {
		add("otp_cooldown_short", LintWarn, "issuance cooldown of %s allows notification flooding", c.OTP.Cooldown)
	}
	if !c.RateLimit.OTPVerifyPerIP.enabled() {
		add("otp_verify_unlimited", LintWarn, "OTP verification is not rate limited per IP")
	}
	if !c.RateLimit.OTPRequestPerSubject.enabled() && !c.RateLimit.OTPRequestPerIP.enabled() {
		add("otp_request_unlimited", LintWarn, "OTP issuance is not rate limited")
	}
	if c.Ticket.Enabled && c.Ticket.SigningMethod == "hs256" {
		add("ticket_symmetric_key", LintInfo, "verification tickets use a shared HMAC key")
	}
	if c.Abuse.Async && c.Abuse.DropIfFull {
		add("abuse_drop_if_full", LintInfo, "abuse events are dropped under backpressure")
	}

	return ws
}

package donorguard

import (
	"errors"
	"strings"
	"time"
)

// Config holds every tunable of a Guard.
type Config struct {
	KeyPrefix string
	RateLimit RateLimitConfig
	OTP       OTPConfig
	Captcha   CaptchaConfig
	Replay    ReplayConfig
	Ticket    TicketConfig
	Abuse     AbuseConfig
	Metrics   MetricsConfig
}

/*
====================================
FAILURE POLICY
====================================
*/

// FailurePolicy decides what happens when a dependency is unreachable.
type FailurePolicy int

const (
	// FailOpen admits the request and marks the outcome degraded.
	FailOpen FailurePolicy = iota
	// FailClosed denies the request.
	FailClosed
)

func (p FailurePolicy) String() string {
	switch p {
	case FailOpen:
		return "fail_open"
	case FailClosed:
		return "fail_closed"
	default:
		return "unknown"
	}
}

// ParseFailurePolicy accepts "open", "fail_open", "closed" or "fail_closed".
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "open", "fail_open", "fail-open":
		return FailOpen, nil
	case "closed", "fail_closed", "fail-closed":
		return FailClosed, nil
	default:
		return FailOpen, errors.New("unknown failure policy " + s)
	}
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// Limit is a fixed-window budget.
type Limit struct {
	Limit  int
	Window time.Duration
}

func (l Limit) enabled() bool {
	return l.Limit > 0 && l.Window > 0
}

// RateLimitConfig sets the per-flow budgets applied by Guard. A zero Limit
// disables that check.
type RateLimitConfig struct {
	FailurePolicy        FailurePolicy
	OTPRequestPerIP      Limit
	OTPRequestPerSubject Limit
	OTPVerifyPerIP       Limit
}

/*
====================================
OTP CONFIG
====================================
*/

// OTPConfig controls code lifetime and issuance rules.
type OTPConfig struct {
	TTL         time.Duration
	Cooldown    time.Duration
	MaxAttempts int
	// RequireCaptcha makes RequestOTP validate a bot-verification token first.
	RequireCaptcha bool
	// UniqueEmailPurposes lists purposes that refuse subjects which already
	// have an account, e.g. "registration".
	UniqueEmailPurposes []string
}

/*
====================================
CAPTCHA CONFIG
====================================
*/

// CaptchaConfig configures bot-verification.
type CaptchaConfig struct {
	Enabled        bool
	Endpoint       string
	Secret         string
	MinTokenLength int
	MaxTokenLength int
	PerIP          Limit
	Timeout        time.Duration
	// UpstreamPolicy applies when the provider cannot be reached.
	UpstreamPolicy FailurePolicy
	// AtomicClaim reserves a token before the provider call, closing the
	// window in which two concurrent submissions can both be accepted.
	AtomicClaim      bool
	ExpectedHostname string
	ExpectedAction   string
}

/*
====================================
REPLAY / TICKET / ABUSE / METRICS
====================================
*/

// ReplayConfig controls used-token memory.
type ReplayConfig struct {
	TTL      time.Duration
	ClaimTTL time.Duration
}

// TicketConfig controls verification tickets issued after OTP success.
type TicketConfig struct {
	Enabled       bool
	TTL           time.Duration
	SigningMethod string // "ed25519" (default) or "hs256"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
}

// AbuseConfig controls abuse-event delivery.
type AbuseConfig struct {
	Async      bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns production defaults: 600s codes with a 120s
// cooldown and 3 attempts, 10 CAPTCHA checks per IP per 900s, 24h replay
// memory, rate limiting fail-open and CAPTCHA fail-closed.
func DefaultConfig() Config {
	return Config{
		KeyPrefix: "dg",
		RateLimit: RateLimitConfig{
			FailurePolicy:        FailOpen,
			OTPRequestPerIP:      Limit{Limit: 20, Window: time.Hour},
			OTPRequestPerSubject: Limit{Limit: 5, Window: time.Hour},
			OTPVerifyPerIP:       Limit{Limit: 30, Window: 15 * time.Minute},
		},
		OTP: OTPConfig{
			TTL:                 600 * time.Second,
			Cooldown:            120 * time.Second,
			MaxAttempts:         3,
			UniqueEmailPurposes: []string{"registration"},
		},
		Captcha: CaptchaConfig{
			Enabled:        false,
			MinTokenLength: 20,
			MaxTokenLength: 2048,
			PerIP:          Limit{Limit: 10, Window: 900 * time.Second},
			Timeout:        10 * time.Second,
			UpstreamPolicy: FailClosed,
		},
		Replay: ReplayConfig{
			TTL:      24 * time.Hour,
			ClaimTTL: 30 * time.Second,
		},
		Ticket: TicketConfig{
			TTL:           10 * time.Minute,
			SigningMethod: "ed25519",
			Issuer:        "donorguard",
		},
		Abuse: AbuseConfig{
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.OTP.UniqueEmailPurposes = append([]string(nil), cfg.OTP.UniqueEmailPurposes...)
	out.Ticket.PrivateKey = cloneBytes(cfg.Ticket.PrivateKey)
	out.Ticket.PublicKey = cloneBytes(cfg.Ticket.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate rejects configurations that cannot run.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if strings.ContainsAny(c.KeyPrefix, " \t\r\n") {
		return errors.New("KeyPrefix must not contain whitespace")
	}

	if c.RateLimit.FailurePolicy != FailOpen && c.RateLimit.FailurePolicy != FailClosed {
		return errors.New("RateLimit.FailurePolicy is invalid")
	}
	for name, l := range map[string]Limit{
		"OTPRequestPerIP":      c.RateLimit.OTPRequestPerIP,
		"OTPRequestPerSubject": c.RateLimit.OTPRequestPerSubject,
		"OTPVerifyPerIP":       c.RateLimit.OTPVerifyPerIP,
		"Captcha.PerIP":        c.Captcha.PerIP,
	} {
		if l.Limit < 0 || l.Window < 0 {
			return errors.New(name + " must not be negative")
		}
		if (l.Limit > 0) != (l.Window > 0) {
			return errors.New(name + " needs both Limit and Window")
		}
	}

	if c.OTP.TTL <= 0 {
		return errors.New("OTP.TTL must be > 0")
	}
	if c.OTP.Cooldown <= 0 || c.OTP.Cooldown > c.OTP.TTL {
		return errors.New("OTP.Cooldown must be in (0, OTP.TTL]")
	}
	if c.OTP.MaxAttempts <= 0 || c.OTP.MaxAttempts > 255 {
		return errors.New("OTP.MaxAttempts must be in [1,255]")
	}
	if c.OTP.RequireCaptcha && !c.Captcha.Enabled {
		return errors.New("OTP.RequireCaptcha requires Captcha.Enabled")
	}

	if c.Captcha.Enabled {
		if c.Captcha.MinTokenLength <= 0 || c.Captcha.MaxTokenLength < c.Captcha.MinTokenLength {
			return errors.New("Captcha token length bounds are invalid")
		}
		if c.Captcha.Timeout <= 0 {
			return errors.New("Captcha.Timeout must be > 0")
		}
		if c.Captcha.UpstreamPolicy != FailOpen && c.Captcha.UpstreamPolicy != FailClosed {
			return errors.New("Captcha.UpstreamPolicy is invalid")
		}
		if c.Captcha.AtomicClaim && c.Replay.ClaimTTL > 0 && c.Replay.ClaimTTL <= c.Captcha.Timeout {
			return errors.New("Replay.ClaimTTL must exceed Captcha.Timeout")
		}
	}

	if c.Replay.TTL <= 0 {
		return errors.New("Replay.TTL must be > 0")
	}

	if c.Ticket.Enabled {
		if c.Ticket.TTL <= 0 {
			return errors.New("Ticket.TTL must be > 0")
		}
		switch c.Ticket.SigningMethod {
		case "ed25519", "hs256":
		default:
			return errors.New("Ticket.SigningMethod must be ed25519 or hs256")
		}
		if len(c.Ticket.PrivateKey) == 0 {
			return errors.New("Ticket.PrivateKey is required")
		}
	}

	if c.Abuse.Async && c.Abuse.BufferSize <= 0 {
		return errors.New("Abuse.BufferSize must be > 0 when Async")
	}

	return nil
}

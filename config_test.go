package donorguard

import (
	"testing"
	"time"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.OTP.TTL != 600*time.Second || cfg.OTP.Cooldown != 120*time.Second || cfg.OTP.MaxAttempts != 3 {
		t.Fatalf("unexpected otp defaults: %+v", cfg.OTP)
	}
	if cfg.Captcha.PerIP.Limit != 10 || cfg.Captcha.PerIP.Window != 900*time.Second {
		t.Fatalf("unexpected captcha defaults: %+v", cfg.Captcha.PerIP)
	}
	if cfg.RateLimit.FailurePolicy != FailOpen || cfg.Captcha.UpstreamPolicy != FailClosed {
		t.Fatal("expected rate limit fail-open and captcha fail-closed")
	}
}

func TestConfigValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"prefix whitespace", func(c *Config) { c.KeyPrefix = "d g" }},
		{"half limit", func(c *Config) { c.RateLimit.OTPVerifyPerIP = Limit{Limit: 5} }},
		{"negative limit", func(c *Config) { c.Captcha.PerIP = Limit{Limit: -1, Window: time.Minute} }},
		{"zero otp ttl", func(c *Config) { c.OTP.TTL = 0 }},
		{"cooldown longer than ttl", func(c *Config) { c.OTP.Cooldown = c.OTP.TTL + time.Second }},
		{"zero cooldown", func(c *Config) { c.OTP.Cooldown = 0 }},
		{"zero attempts", func(c *Config) { c.OTP.MaxAttempts = 0 }},
		{"attempts overflow", func(c *Config) { c.OTP.MaxAttempts = 256 }},
		{"captcha required but disabled", func(c *Config) { c.OTP.RequireCaptcha = true }},
		{"token bounds", func(c *Config) {
			c.Captcha.Enabled = true
			c.Captcha.MaxTokenLength = 10
		}},
		{"claim shorter than timeout", func(c *Config) {
			c.Captcha.Enabled = true
			c.Captcha.AtomicClaim = true
			c.Replay.ClaimTTL = 5 * time.Second
		}},
		{"zero replay ttl", func(c *Config) { c.Replay.TTL = 0 }},
		{"ticket without key", func(c *Config) { c.Ticket.Enabled = true }},
		{"ticket bad method", func(c *Config) {
			c.Ticket.Enabled = true
			c.Ticket.SigningMethod = "rs256"
			c.Ticket.PrivateKey = []byte("k")
		}},
		{"async without buffer", func(c *Config) {
			c.Abuse.Async = true
			c.Abuse.BufferSize = 0
		}},
		{"bad policy", func(c *Config) { c.RateLimit.FailurePolicy = FailurePolicy(7) }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestCloneConfigIsolatesSlices(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Ticket.PrivateKey = []byte("secret-secret-secret-secret-1234")

	clone := cloneConfig(cfg)
	clone.OTP.UniqueEmailPurposes[0] = "mutated"
	clone.Ticket.PrivateKey[0] = 'X'

	if cfg.OTP.UniqueEmailPurposes[0] != "registration" {
		t.Fatal("UniqueEmailPurposes shared with clone")
	}
	if cfg.Ticket.PrivateKey[0] != 's' {
		t.Fatal("PrivateKey shared with clone")
	}
}

func TestParseFailurePolicy(t *testing.T) {
	for in, want := range map[string]FailurePolicy{
		"open":         FailOpen,
		"FAIL_OPEN":    FailOpen,
		"closed":       FailClosed,
		" fail-closed": FailClosed,
	} {
		got, err := ParseFailurePolicy(in)
		if err != nil || got != want {
			t.Fatalf("%q: got %v %v", in, got, err)
		}
	}
	if _, err := ParseFailurePolicy("sometimes"); err == nil {
		t.Fatal("expected error for unknown policy")
	}
}

// Package config loads service settings from DONORGUARD_* environment
// variables and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	donorguard "github.com/MrEthical07/donorguard"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "DONORGUARD"

// Settings holds everything cmd/donorguard needs.
type Settings struct {
	HTTPAddr    string `mapstructure:"HTTP_ADDR"`
	CORSOrigins string `mapstructure:"CORS_ORIGINS"`
	TrustProxy  bool   `mapstructure:"TRUST_PROXY"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`
	LogDev      bool   `mapstructure:"LOG_DEV"`

	RedisURL  string `mapstructure:"REDIS_URL"`
	KeyPrefix string `mapstructure:"KEY_PREFIX"`
	// EmbeddedRedis starts an in-process miniredis when RedisURL is empty.
	EmbeddedRedis bool `mapstructure:"EMBEDDED_REDIS"`

	DatabaseURL string `mapstructure:"DATABASE_URL"`
	UsersTable  string `mapstructure:"USERS_TABLE"`

	RabbitMQURL    string `mapstructure:"RABBITMQ_URL"`
	NotifyExchange string `mapstructure:"NOTIFY_EXCHANGE"`
	AbuseExchange  string `mapstructure:"ABUSE_EXCHANGE"`
	AbuseStream    string `mapstructure:"ABUSE_STREAM"`
	AbuseAsync     bool   `mapstructure:"ABUSE_ASYNC"`
	AbuseBuffer    int    `mapstructure:"ABUSE_BUFFER"`

	RateLimitPolicy string `mapstructure:"RATE_LIMIT_POLICY"`

	OTPTTL            time.Duration `mapstructure:"OTP_TTL"`
	OTPCooldown       time.Duration `mapstructure:"OTP_COOLDOWN"`
	OTPMaxAttempts    int           `mapstructure:"OTP_MAX_ATTEMPTS"`
	OTPRequireCaptcha bool          `mapstructure:"OTP_REQUIRE_CAPTCHA"`
	OTPUniquePurposes string        `mapstructure:"OTP_UNIQUE_PURPOSES"`

	CaptchaEnabled     bool          `mapstructure:"CAPTCHA_ENABLED"`
	CaptchaEndpoint    string        `mapstructure:"CAPTCHA_ENDPOINT"`
	CaptchaSecret      string        `mapstructure:"CAPTCHA_SECRET"`
	CaptchaTimeout     time.Duration `mapstructure:"CAPTCHA_TIMEOUT"`
	CaptchaPolicy      string        `mapstructure:"CAPTCHA_POLICY"`
	CaptchaAtomicClaim bool          `mapstructure:"CAPTCHA_ATOMIC_CLAIM"`
	CaptchaHostname    string        `mapstructure:"CAPTCHA_HOSTNAME"`
	CaptchaIPLimit     int           `mapstructure:"CAPTCHA_IP_LIMIT"`
	CaptchaIPWindow    time.Duration `mapstructure:"CAPTCHA_IP_WINDOW"`

	ReplayTTL time.Duration `mapstructure:"REPLAY_TTL"`

	TicketEnabled       bool          `mapstructure:"TICKET_ENABLED"`
	TicketSigningMethod string        `mapstructure:"TICKET_SIGNING_METHOD"`
	TicketKey           string        `mapstructure:"TICKET_KEY"`
	TicketTTL           time.Duration `mapstructure:"TICKET_TTL"`
	TicketAudience      string        `mapstructure:"TICKET_AUDIENCE"`
}

// Load reads dir/.env when present, then the environment. Environment
// variables win over the file.
func Load(dir string) (Settings, error) {
	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Settings{}, fmt.Errorf("read .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	def := donorguard.DefaultConfig()
	for key, value := range map[string]any{
		"HTTP_ADDR":             ":8080",
		"CORS_ORIGINS":          "*",
		"TRUST_PROXY":           false,
		"LOG_LEVEL":             "info",
		"LOG_DEV":               false,
		"REDIS_URL":             "",
		"KEY_PREFIX":            def.KeyPrefix,
		"EMBEDDED_REDIS":        false,
		"DATABASE_URL":          "",
		"USERS_TABLE":           "users",
		"RABBITMQ_URL":          "",
		"NOTIFY_EXCHANGE":       "donorguard.notifications",
		"ABUSE_EXCHANGE":        "donorguard.abuse",
		"ABUSE_STREAM":          "dg:abuse",
		"ABUSE_ASYNC":           true,
		"ABUSE_BUFFER":          def.Abuse.BufferSize,
		"RATE_LIMIT_POLICY":     def.RateLimit.FailurePolicy.String(),
		"OTP_TTL":               def.OTP.TTL,
		"OTP_COOLDOWN":          def.OTP.Cooldown,
		"OTP_MAX_ATTEMPTS":      def.OTP.MaxAttempts,
		"OTP_REQUIRE_CAPTCHA":   false,
		"OTP_UNIQUE_PURPOSES":   strings.Join(def.OTP.UniqueEmailPurposes, ","),
		"CAPTCHA_ENABLED":       false,
		"CAPTCHA_ENDPOINT":      "",
		"CAPTCHA_SECRET":        "",
		"CAPTCHA_TIMEOUT":       def.Captcha.Timeout,
		"CAPTCHA_POLICY":        def.Captcha.UpstreamPolicy.String(),
		"CAPTCHA_ATOMIC_CLAIM":  false,
		"CAPTCHA_HOSTNAME":      "",
		"CAPTCHA_IP_LIMIT":      def.Captcha.PerIP.Limit,
		"CAPTCHA_IP_WINDOW":     def.Captcha.PerIP.Window,
		"REPLAY_TTL":            def.Replay.TTL,
		"TICKET_ENABLED":        false,
		"TICKET_SIGNING_METHOD": def.Ticket.SigningMethod,
		"TICKET_KEY":            "",
		"TICKET_TTL":            def.Ticket.TTL,
		"TICKET_AUDIENCE":       "",
	} {
		v.SetDefault(key, value)
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	return s, nil
}

// Origins splits CORSOrigins.
func (s Settings) Origins() []string {
	return splitList(s.CORSOrigins)
}

// GuardConfig maps settings onto a validated Guard configuration.
func (s Settings) GuardConfig() (donorguard.Config, error) {
	cfg := donorguard.DefaultConfig()
	cfg.KeyPrefix = s.KeyPrefix

	ratePolicy, err := donorguard.ParseFailurePolicy(s.RateLimitPolicy)
	if err != nil {
		return cfg, fmt.Errorf("RATE_LIMIT_POLICY: %w", err)
	}
	cfg.RateLimit.FailurePolicy = ratePolicy

	cfg.OTP.TTL = s.OTPTTL
	cfg.OTP.Cooldown = s.OTPCooldown
	cfg.OTP.MaxAttempts = s.OTPMaxAttempts
	cfg.OTP.RequireCaptcha = s.OTPRequireCaptcha
	cfg.OTP.UniqueEmailPurposes = splitList(s.OTPUniquePurposes)

	captchaPolicy, err := donorguard.ParseFailurePolicy(s.CaptchaPolicy)
	if err != nil {
		return cfg, fmt.Errorf("CAPTCHA_POLICY: %w", err)
	}
	cfg.Captcha.Enabled = s.CaptchaEnabled
	cfg.Captcha.Endpoint = s.CaptchaEndpoint
	cfg.Captcha.Secret = s.CaptchaSecret
	cfg.Captcha.Timeout = s.CaptchaTimeout
	cfg.Captcha.UpstreamPolicy = captchaPolicy
	cfg.Captcha.AtomicClaim = s.CaptchaAtomicClaim
	cfg.Captcha.ExpectedHostname = s.CaptchaHostname
	cfg.Captcha.PerIP = donorguard.Limit{Limit: s.CaptchaIPLimit, Window: s.CaptchaIPWindow}

	cfg.Replay.TTL = s.ReplayTTL

	cfg.Ticket.Enabled = s.TicketEnabled
	cfg.Ticket.SigningMethod = strings.ToLower(s.TicketSigningMethod)
	cfg.Ticket.TTL = s.TicketTTL
	cfg.Ticket.Audience = s.TicketAudience
	if s.TicketKey != "" {
		cfg.Ticket.PrivateKey = []byte(s.TicketKey)
	}

	cfg.Abuse.Async = s.AbuseAsync
	cfg.Abuse.BufferSize = s.AbuseBuffer

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

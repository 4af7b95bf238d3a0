package otp

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/donorguard/store"
	"go.uber.org/zap"
)

var (
	// ErrUnavailable is returned when the store fails. Callers must reject.
	ErrUnavailable = errors.New("otp store unavailable")
	// ErrInvalidInput is returned for an empty subject or purpose.
	ErrInvalidInput = errors.New("invalid otp request")
)

// Config controls OTP lifetimes and the brute-force budget.
type Config struct {
	TTL         time.Duration
	Cooldown    time.Duration
	MaxAttempts int
}

// DefaultConfig returns 600s lifetime, 120s cooldown and 3 attempts.
func DefaultConfig() Config {
	return Config{
		TTL:         600 * time.Second,
		Cooldown:    120 * time.Second,
		MaxAttempts: 3,
	}
}

// Outcome is the result of a verification attempt.
type Outcome int

const (
	OutcomeSuccess Outcome = iota + 1
	OutcomeMismatch
	OutcomeLocked
	OutcomeNotFound
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeMismatch:
		return "mismatch"
	case OutcomeLocked:
		return "locked"
	case OutcomeNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Issue is the result of Generate. Exactly one of Code or RetryAfter is set.
type Issue struct {
	Issued     bool
	Code       string
	ExpiresIn  time.Duration
	RetryAfter time.Duration
}

// Verification is the result of Verify.
type Verification struct {
	Outcome           Outcome
	AttemptsRemaining int
	Purpose           string
}

// Service issues and verifies OTPs against the shared store.
type Service struct {
	store   store.Store
	config  Config
	log     *zap.Logger
	newCode func() (string, error)
	now     func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithCodeGenerator replaces the random code source.
func WithCodeGenerator(fn func() (string, error)) Option {
	return func(s *Service) {
		if fn != nil {
			s.newCode = fn
		}
	}
}

// WithClock replaces the clock used for IssuedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates an OTP service.
func New(st store.Store, cfg Config, log *zap.Logger, opts ...Option) *Service {
	def := DefaultConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if log == nil {
		log = zap.NewNop()
	}

	s := &Service{
		store:   st,
		config:  cfg,
		log:     log,
		newCode: newCode,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the effective configuration.
func (s *Service) Config() Config {
	return s.config
}

// NormalizeSubject canonicalizes an email or phone subject key.
func NormalizeSubject(subject string) string {
	return strings.ToLower(strings.TrimSpace(subject))
}

// Generate issues a new code for subject unless one was issued within the
// cooldown and is still live.
func (s *Service) Generate(ctx context.Context, subjectKey, purpose, requestIP string) (Issue, error) {
	subject := NormalizeSubject(subjectKey)
	purpose = strings.TrimSpace(purpose)
	if subject == "" || purpose == "" {
		return Issue{}, ErrInvalidInput
	}

	claimed, err := s.store.SetNX(ctx, cooldownKey(subject), "1", s.config.Cooldown)
	if err != nil {
		return Issue{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if !claimed {
		live, err := s.store.Exists(ctx, recordKey(subject))
		if err != nil {
			return Issue{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if live {
			return Issue{RetryAfter: s.cooldownRemaining(ctx, subject)}, nil
		}
		// The previous code was consumed or locked out; restart the cooldown.
		if err := s.store.Set(ctx, cooldownKey(subject), "1", s.config.Cooldown); err != nil {
			return Issue{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	code, err := s.newCode()
	if err != nil {
		s.releaseCooldown(ctx, subject)
		return Issue{}, fmt.Errorf("generate otp: %w", err)
	}
	nonce, err := newNonce()
	if err != nil {
		s.releaseCooldown(ctx, subject)
		return Issue{}, fmt.Errorf("generate otp nonce: %w", err)
	}

	encoded, err := encodeRecord(&Record{
		Code:        code,
		SubjectKey:  subject,
		Purpose:     purpose,
		IssuedAt:    s.now(),
		MaxAttempts: s.config.MaxAttempts,
		RequestIP:   requestIP,
		Nonce:       nonce,
	})
	if err != nil {
		s.releaseCooldown(ctx, subject)
		return Issue{}, fmt.Errorf("encode otp record: %w", err)
	}

	if _, err := s.store.Delete(ctx, attemptsKey(subject)); err != nil {
		s.releaseCooldown(ctx, subject)
		return Issue{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := s.store.Set(ctx, recordKey(subject), string(encoded), s.config.TTL); err != nil {
		s.releaseCooldown(ctx, subject)
		return Issue{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return Issue{
		Issued:    true,
		Code:      code,
		ExpiresIn: s.config.TTL,
	}, nil
}

// Verify checks supplied against the live record for subject. An empty
// purpose matches any record.
func (s *Service) Verify(ctx context.Context, subjectKey, purpose, supplied string) (Verification, error) {
	subject := NormalizeSubject(subjectKey)
	if subject == "" {
		return Verification{}, ErrInvalidInput
	}

	rec, raw, err := s.load(ctx, subject)
	if err != nil {
		return Verification{}, err
	}
	if rec == nil {
		return Verification{Outcome: OutcomeNotFound}, nil
	}

	purpose = strings.TrimSpace(purpose)
	if purpose != "" && rec.Purpose != purpose {
		return Verification{Outcome: OutcomeNotFound}, nil
	}

	if codesEqual(rec.Code, supplied) {
		return s.consume(ctx, subject, rec, raw)
	}

	ttl, err := s.store.TTL(ctx, recordKey(subject))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Verification{Outcome: OutcomeNotFound}, nil
		}
		return Verification{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if ttl == store.NoExpiry {
		ttl = s.config.TTL
	}

	attempts, err := s.store.Increment(ctx, attemptsKey(subject), ttl)
	if err != nil {
		return Verification{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	// The attempts counter outlives the record so stragglers that loaded the
	// record before the lockout keep counting past the budget. A guess that
	// lands after a re-issue counts against the new code, but only the
	// record that was checked is removed.
	if attempts >= int64(rec.MaxAttempts) {
		s.purgeRecord(ctx, subject, raw)
		return Verification{Outcome: OutcomeLocked, Purpose: rec.Purpose}, nil
	}

	return Verification{
		Outcome:           OutcomeMismatch,
		AttemptsRemaining: rec.MaxAttempts - int(attempts),
		Purpose:           rec.Purpose,
	}, nil
}

// Inspect returns the live record for subject with its attempts counter and
// remaining lifetime, or nil when there is none.
func (s *Service) Inspect(ctx context.Context, subjectKey string) (*Record, time.Duration, error) {
	subject := NormalizeSubject(subjectKey)
	rec, _, err := s.load(ctx, subject)
	if err != nil || rec == nil {
		return nil, 0, err
	}

	attempts, err := s.attempts(ctx, subject)
	if err != nil {
		return nil, 0, err
	}
	rec.Attempts = attempts

	ttl, err := s.store.TTL(ctx, recordKey(subject))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return rec, ttl, nil
}

// consume removes the record only while it still holds raw. That decides
// which of several concurrent correct submissions wins, and a code that was
// replaced by a re-issue can no longer succeed.
func (s *Service) consume(ctx context.Context, subject string, rec *Record, raw string) (Verification, error) {
	attempts, err := s.attempts(ctx, subject)
	if err != nil {
		return Verification{}, err
	}
	if attempts >= rec.MaxAttempts {
		s.purgeRecord(ctx, subject, raw)
		return Verification{Outcome: OutcomeLocked, Purpose: rec.Purpose}, nil
	}

	deleted, err := s.store.DeleteIfEquals(ctx, recordKey(subject), raw)
	if err != nil {
		return Verification{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !deleted {
		return Verification{Outcome: OutcomeNotFound}, nil
	}
	s.purge(ctx, attemptsKey(subject))

	return Verification{Outcome: OutcomeSuccess, Purpose: rec.Purpose}, nil
}

// load returns the record with its encoded form, or a nil record when no
// usable one exists. Corrupt records are purged so the subject can request
// a fresh code.
func (s *Service) load(ctx context.Context, subject string) (*Record, string, error) {
	raw, err := s.store.Get(ctx, recordKey(subject))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, "", nil
		}
		return nil, "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	rec, err := decodeRecord([]byte(raw))
	if err != nil {
		s.log.Warn("purging unreadable otp record", zap.Error(err))
		if deleted, derr := s.store.DeleteIfEquals(ctx, recordKey(subject), raw); derr == nil && deleted {
			s.purge(ctx, attemptsKey(subject), cooldownKey(subject))
		}
		return nil, "", nil
	}
	return rec, raw, nil
}

func (s *Service) attempts(ctx context.Context, subject string) (int, error) {
	raw, err := s.store.Get(ctx, attemptsKey(subject))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, nil
	}
	return n, nil
}

func (s *Service) cooldownRemaining(ctx context.Context, subject string) time.Duration {
	ttl, err := s.store.TTL(ctx, cooldownKey(subject))
	if err != nil || ttl <= 0 {
		return time.Second
	}
	return ttl
}

func (s *Service) releaseCooldown(ctx context.Context, subject string) {
	s.purge(ctx, cooldownKey(subject))
}

func (s *Service) purgeRecord(ctx context.Context, subject, raw string) {
	if _, err := s.store.DeleteIfEquals(ctx, recordKey(subject), raw); err != nil {
		s.log.Warn("otp record cleanup failed", zap.Error(err))
	}
}

func (s *Service) purge(ctx context.Context, keys ...string) {
	if _, err := s.store.Delete(ctx, keys...); err != nil {
		s.log.Warn("otp key cleanup failed",
			zap.Int("keys", len(keys)),
			zap.Error(err),
		)
	}
}

func codesEqual(stored, supplied string) bool {
	supplied = strings.TrimSpace(supplied)
	return subtle.ConstantTimeCompare([]byte(stored), []byte(supplied)) == 1
}

func recordKey(subject string) string   { return "otp:rec:" + subject }
func attemptsKey(subject string) string { return "otp:att:" + subject }
func cooldownKey(subject string) string { return "otp:cd:" + subject }

package abuse

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Category classifies a suspicious event.
type Category string

const (
	CategoryRateLimited     Category = "rate_limited"
	CategoryTokenReused     Category = "token_reused"
	CategoryCaptchaRejected Category = "captcha_rejected"
	CategoryCaptchaDegraded Category = "captcha_degraded"
	CategoryOTPMismatch     Category = "otp_mismatch"
	CategoryOTPLocked       Category = "otp_locked"
	CategoryOTPCooldown     Category = "otp_cooldown"
	CategoryStoreDegraded   Category = "store_degraded"
)

// Event is one append-only abuse signal. ID is a ULID so events sort by
// time across processes.
type Event struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	IP        string            `json:"ip,omitempty"`
	Category  Category          `json:"category"`
	Detail    string            `json:"detail,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

func newID(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	id, err := ulid.New(ulid.Timestamp(t), entropy)
	if err != nil {
		// Monotonic entropy overflows only within one millisecond; fall
		// back to fresh randomness.
		return ulid.MustNew(ulid.Timestamp(t), rand.Reader).String()
	}
	return id.String()
}

package donorguard

import (
	"context"
	"time"

	"github.com/MrEthical07/donorguard/abuse"
	"github.com/MrEthical07/donorguard/internal/captcha"
	"github.com/MrEthical07/donorguard/notify"
)

// CaptchaProvider verifies a token with the upstream bot-verification
// service.
type CaptchaProvider = captcha.Provider

// CaptchaProviderFunc adapts a function to CaptchaProvider.
type CaptchaProviderFunc = captcha.ProviderFunc

// CaptchaVerdict is a provider's answer for one token.
type CaptchaVerdict = captcha.Verdict

// Notifier delivers issued codes. Its failure never rolls back issuance.
type Notifier = notify.Notifier

// OTPNotification is what a Notifier receives.
type OTPNotification = notify.Notification

// UserStore answers whether an email already belongs to an account.
type UserStore interface {
	ExistsByEmail(ctx context.Context, email string) (bool, error)
}

// AbuseCategory classifies abuse events.
type AbuseCategory = abuse.Category

// OTPRequest asks for a code to be sent to Subject.
type OTPRequest struct {
	Subject      string
	Purpose      string
	IP           string
	CaptchaToken string
}

// OTPIssued describes a freshly issued code. The code itself only goes to
// the Notifier.
type OTPIssued struct {
	Subject   string
	Purpose   string
	ExpiresIn time.Duration
	// ResendAfter is the earliest a new code can be requested.
	ResendAfter time.Duration
}

// OTPVerifyRequest submits a code for Subject. An empty Purpose matches any
// live code.
type OTPVerifyRequest struct {
	Subject string
	Purpose string
	Code    string
	IP      string
}

// OTPVerification is returned by VerifyOTP. On INVALID_OTP it is returned
// alongside the error with AttemptsRemaining set.
type OTPVerification struct {
	Verified          bool
	Subject           string
	Purpose           string
	AttemptsRemaining int
	Ticket            string
	TicketExpiresAt   time.Time
}

// CaptchaOutcome is returned by VerifyCaptcha on success.
type CaptchaOutcome struct {
	// Degraded is set when the provider was unreachable and the upstream
	// policy is fail-open.
	Degraded bool
}

// RateDecision is the outcome of CheckRate.
type RateDecision struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Duration
	Degraded  bool
}

// TicketClaims describe a redeemed verification ticket.
type TicketClaims struct {
	ID        string
	Subject   string
	Purpose   string
	ExpiresAt time.Time
}

package donorguard

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/donorguard/abuse"
	"github.com/MrEthical07/donorguard/internal/otp"
	"github.com/MrEthical07/donorguard/ticket"
	"go.uber.org/zap"
)

const (
	scopeOTPRequestIP      = "otp_request_ip"
	scopeOTPRequestSubject = "otp_request_subject"
	scopeOTPVerifyIP       = "otp_verify_ip"

	otpCodeLength = 6
)

// RequestOTP issues a code for req.Subject and hands it to the Notifier.
//
// Order of checks: per-IP then per-subject rate limits, the CAPTCHA token
// when OTP.RequireCaptcha is set, account uniqueness for purposes listed in
// OTP.UniqueEmailPurposes, then the issuance cooldown.
func (g *Guard) RequestOTP(ctx context.Context, req OTPRequest) (OTPIssued, error) {
	subject := otp.NormalizeSubject(req.Subject)
	purpose := strings.TrimSpace(req.Purpose)
	if subject == "" || purpose == "" {
		return OTPIssued{}, newError(CodeInvalidFormat, nil)
	}

	if err := g.checkLimit(ctx, scopeOTPRequestIP, req.IP, g.config.RateLimit.OTPRequestPerIP); err != nil {
		return OTPIssued{}, err
	}
	if err := g.checkLimit(ctx, scopeOTPRequestSubject, subject, g.config.RateLimit.OTPRequestPerSubject); err != nil {
		return OTPIssued{}, err
	}

	if g.config.OTP.RequireCaptcha {
		if _, err := g.VerifyCaptcha(ctx, req.CaptchaToken, req.IP); err != nil {
			return OTPIssued{}, err
		}
	}

	if g.users != nil && slices.Contains(g.config.OTP.UniqueEmailPurposes, purpose) {
		taken, err := g.users.ExistsByEmail(ctx, subject)
		if err != nil {
			g.metrics.Inc(MetricOTPServiceError)
			g.log.Error("user lookup failed", zap.String("purpose", purpose), zap.Error(err))
			return OTPIssued{}, newError(CodeServiceError, err)
		}
		if taken {
			g.metrics.Inc(MetricEmailTaken)
			return OTPIssued{}, newError(CodeEmailTaken, nil)
		}
	}

	issue, err := g.otp.Generate(ctx, subject, purpose, req.IP)
	if err != nil {
		g.metrics.Inc(MetricOTPServiceError)
		g.log.Error("otp issuance failed", zap.String("purpose", purpose), zap.Error(err))
		return OTPIssued{}, newError(CodeServiceError, err)
	}
	if !issue.Issued {
		g.metrics.Inc(MetricOTPCooldown)
		g.abuse.Record(ctx, abuse.CategoryOTPCooldown, "resend inside cooldown", req.IP,
			map[string]string{"purpose": purpose})
		return OTPIssued{}, newRetryError(CodeCooldownActive, issue.RetryAfter)
	}
	g.metrics.Inc(MetricOTPIssued)

	if g.notifier != nil {
		err := g.notifier.Notify(ctx, OTPNotification{
			Subject:   subject,
			Purpose:   purpose,
			Code:      issue.Code,
			ExpiresIn: issue.ExpiresIn,
			IssuedAt:  time.Now(),
			RequestIP: req.IP,
		})
		if err != nil {
			g.metrics.Inc(MetricOTPNotifyFailure)
			g.log.Warn("otp notification failed",
				zap.String("purpose", purpose),
				zap.Error(err),
			)
		}
	}

	return OTPIssued{
		Subject:     subject,
		Purpose:     purpose,
		ExpiresIn:   issue.ExpiresIn,
		ResendAfter: g.config.OTP.Cooldown,
	}, nil
}

// VerifyOTP checks a submitted code. On INVALID_OTP the returned
// OTPVerification carries AttemptsRemaining. With tickets enabled a
// successful verification carries a single-use Ticket.
func (g *Guard) VerifyOTP(ctx context.Context, req OTPVerifyRequest) (OTPVerification, error) {
	subject := otp.NormalizeSubject(req.Subject)
	code := strings.TrimSpace(req.Code)
	if subject == "" || !isOTPCode(code) {
		return OTPVerification{}, newError(CodeInvalidFormat, nil)
	}

	if err := g.checkLimit(ctx, scopeOTPVerifyIP, req.IP, g.config.RateLimit.OTPVerifyPerIP); err != nil {
		return OTPVerification{}, err
	}

	v, err := g.otp.Verify(ctx, subject, req.Purpose, code)
	if err != nil {
		g.metrics.Inc(MetricOTPServiceError)
		g.log.Error("otp verification failed", zap.Error(err))
		return OTPVerification{}, newError(CodeServiceError, err)
	}

	out := OTPVerification{Subject: subject, Purpose: v.Purpose}
	switch v.Outcome {
	case otp.OutcomeSuccess:
		g.metrics.Inc(MetricOTPVerifySuccess)
	case otp.OutcomeMismatch:
		g.metrics.Inc(MetricOTPMismatch)
		g.abuse.Record(ctx, abuse.CategoryOTPMismatch, "wrong code", req.IP,
			map[string]string{"remaining": strconv.Itoa(v.AttemptsRemaining)})
		out.AttemptsRemaining = v.AttemptsRemaining
		return out, newError(CodeInvalidOTP, nil)
	case otp.OutcomeLocked:
		g.metrics.Inc(MetricOTPLocked)
		g.abuse.Record(ctx, abuse.CategoryOTPLocked, "attempt budget exhausted", req.IP,
			map[string]string{"purpose": v.Purpose})
		return out, newError(CodeTooManyFailedAttempts, nil)
	default:
		g.metrics.Inc(MetricOTPNotFound)
		return out, newError(CodeOTPExpired, nil)
	}

	out.Verified = true
	if g.tickets == nil {
		return out, nil
	}

	signed, claims, err := g.tickets.Issue(subject, v.Purpose)
	if err != nil {
		// The code is already consumed; the caller has to start over.
		g.metrics.Inc(MetricOTPServiceError)
		g.log.Error("ticket issuance failed", zap.Error(err))
		return OTPVerification{}, newError(CodeServiceError, err)
	}
	g.metrics.Inc(MetricTicketIssued)
	out.Ticket = signed
	out.TicketExpiresAt = claims.ExpiresAt.Time
	return out, nil
}

// RedeemTicket accepts a verification ticket once. An empty purpose accepts
// a ticket for any purpose.
func (g *Guard) RedeemTicket(ctx context.Context, token, purpose string) (TicketClaims, error) {
	if strings.TrimSpace(token) == "" {
		return TicketClaims{}, newError(CodeMissingToken, nil)
	}
	if g.tickets == nil {
		return TicketClaims{}, newError(CodeServiceError, errors.New("tickets disabled"))
	}

	claims, err := g.tickets.Redeem(ctx, token, strings.TrimSpace(purpose))
	switch {
	case errors.Is(err, ticket.ErrTicketRedeemed):
		g.metrics.Inc(MetricTicketRejected)
		g.abuse.Record(ctx, abuse.CategoryTokenReused, "verification ticket replayed", "", nil)
		return TicketClaims{}, newError(CodeTokenReused, err)
	case errors.Is(err, ticket.ErrUnavailable):
		g.metrics.Inc(MetricTicketRejected)
		return TicketClaims{}, newError(CodeServiceError, err)
	case err != nil:
		g.metrics.Inc(MetricTicketRejected)
		return TicketClaims{}, newError(CodeInvalidToken, err)
	}

	g.metrics.Inc(MetricTicketRedeemed)
	return TicketClaims{
		ID:        claims.ID,
		Subject:   claims.Subject,
		Purpose:   claims.Purpose,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func isOTPCode(s string) bool {
	if len(s) != otpCodeLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

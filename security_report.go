package donorguard

import "time"

type SecurityReport struct {
	KeyPrefix              string
	RateLimitPolicy        FailurePolicy
	CaptchaEnabled         bool
	CaptchaUpstreamPolicy  FailurePolicy
	CaptchaAtomicClaim     bool
	CaptchaIPLimitActive   bool
	CaptchaHostnameBound   bool
	OTPTTL                 time.Duration
	OTPCooldown            time.Duration
	OTPMaxAttempts         int
	OTPCaptchaRequired     bool
	OTPRateLimitsActive    bool
	ReplayTTL              time.Duration
	TicketsEnabled         bool
	TicketSigningAlgorithm string
	AbuseAsync             bool
	// PolicyAsymmetric is set when rate limiting fails open while CAPTCHA
	// fails closed, which is the recommended combination.
	PolicyAsymmetric bool
}

func (g *Guard) SecurityReport() SecurityReport {
	if g == nil {
		return SecurityReport{}
	}
	c := g.config

	otpLimits := c.RateLimit.OTPRequestPerIP.enabled() &&
		c.RateLimit.OTPRequestPerSubject.enabled() &&
		c.RateLimit.OTPVerifyPerIP.enabled()

	r := SecurityReport{
		KeyPrefix:             c.KeyPrefix,
		RateLimitPolicy:       c.RateLimit.FailurePolicy,
		CaptchaEnabled:        c.Captcha.Enabled,
		CaptchaUpstreamPolicy: c.Captcha.UpstreamPolicy,
		CaptchaAtomicClaim:    c.Captcha.Enabled && c.Captcha.AtomicClaim,
		CaptchaIPLimitActive:  c.Captcha.Enabled && c.Captcha.PerIP.enabled(),
		CaptchaHostnameBound:  c.Captcha.Enabled && c.Captcha.ExpectedHostname != "",
		OTPTTL:                c.OTP.TTL,
		OTPCooldown:           c.OTP.Cooldown,
		OTPMaxAttempts:        c.OTP.MaxAttempts,
		OTPCaptchaRequired:    c.OTP.RequireCaptcha,
		OTPRateLimitsActive:   otpLimits,
		ReplayTTL:             c.Replay.TTL,
		TicketsEnabled:        c.Ticket.Enabled,
		AbuseAsync:            c.Abuse.Async,
		PolicyAsymmetric: c.RateLimit.FailurePolicy == FailOpen &&
			c.Captcha.UpstreamPolicy == FailClosed,
	}
	if c.Ticket.Enabled {
		r.TicketSigningAlgorithm = c.Ticket.SigningMethod
	}
	return r
}

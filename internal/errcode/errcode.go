// Package errcode holds the stable machine codes shared by every component.
// The root package re-exports them; internal packages return them inside
// their result values so no layer has to translate strings.
package errcode

// Code is a stable, client-visible error identifier.
type Code string

const (
	None Code = ""

	MissingToken     Code = "MISSING_TOKEN"
	InvalidFormat    Code = "INVALID_FORMAT"
	RateLimited      Code = "RATE_LIMITED"
	TokenReused      Code = "TOKEN_REUSED"
	TokenExpired     Code = "TOKEN_EXPIRED"
	InvalidToken     Code = "INVALID_TOKEN"
	ServiceError     Code = "SERVICE_ERROR"
	ValidationFailed Code = "VALIDATION_FAILED"

	OTPExpired            Code = "OTP_EXPIRED"
	InvalidOTP            Code = "INVALID_OTP"
	TooManyFailedAttempts Code = "TOO_MANY_FAILED_ATTEMPTS"
	CooldownActive        Code = "COOLDOWN_ACTIVE"

	EmailTaken Code = "EMAIL_TAKEN"
)

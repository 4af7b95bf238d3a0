package donorguard

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MrEthical07/donorguard/internal/errcode"
)

// Code is a stable machine-readable error identifier.
type Code = errcode.Code

const (
	CodeMissingToken          = errcode.MissingToken
	CodeInvalidFormat         = errcode.InvalidFormat
	CodeRateLimited           = errcode.RateLimited
	CodeTokenReused           = errcode.TokenReused
	CodeTokenExpired          = errcode.TokenExpired
	CodeInvalidToken          = errcode.InvalidToken
	CodeServiceError          = errcode.ServiceError
	CodeValidationFailed      = errcode.ValidationFailed
	CodeOTPExpired            = errcode.OTPExpired
	CodeInvalidOTP            = errcode.InvalidOTP
	CodeTooManyFailedAttempts = errcode.TooManyFailedAttempts
	CodeCooldownActive        = errcode.CooldownActive
	CodeEmailTaken            = errcode.EmailTaken
)

// Error is returned by every Guard operation. Code is stable; Message is
// for humans and may change.
type Error struct {
	Code       Code
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return string(e.Code) + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same code, so errors.Is(err,
// ErrRateLimited) holds regardless of RetryAfter or cause.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// HTTPStatus returns the status code a handler should respond with.
func (e *Error) HTTPStatus() int {
	return HTTPStatus(e.Code)
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, minimum 1 when
// set.
func (e *Error) RetryAfterSeconds() int {
	if e.RetryAfter <= 0 {
		return 0
	}
	secs := int((e.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

var (
	ErrMissingToken          = &Error{Code: CodeMissingToken, Message: "verification token is required"}
	ErrInvalidFormat         = &Error{Code: CodeInvalidFormat, Message: "request is malformed"}
	ErrRateLimited           = &Error{Code: CodeRateLimited, Message: "too many requests"}
	ErrTokenReused           = &Error{Code: CodeTokenReused, Message: "verification token was already used"}
	ErrTokenExpired          = &Error{Code: CodeTokenExpired, Message: "verification token expired"}
	ErrInvalidToken          = &Error{Code: CodeInvalidToken, Message: "verification token is invalid"}
	ErrServiceError          = &Error{Code: CodeServiceError, Message: "verification service unavailable"}
	ErrValidationFailed      = &Error{Code: CodeValidationFailed, Message: "verification failed"}
	ErrOTPExpired            = &Error{Code: CodeOTPExpired, Message: "code expired or not found"}
	ErrInvalidOTP            = &Error{Code: CodeInvalidOTP, Message: "code is incorrect"}
	ErrTooManyFailedAttempts = &Error{Code: CodeTooManyFailedAttempts, Message: "too many failed attempts, request a new code"}
	ErrCooldownActive        = &Error{Code: CodeCooldownActive, Message: "a code was sent recently"}
	ErrEmailTaken            = &Error{Code: CodeEmailTaken, Message: "an account already uses this email"}
)

var sentinels = map[Code]*Error{
	CodeMissingToken:          ErrMissingToken,
	CodeInvalidFormat:         ErrInvalidFormat,
	CodeRateLimited:           ErrRateLimited,
	CodeTokenReused:           ErrTokenReused,
	CodeTokenExpired:          ErrTokenExpired,
	CodeInvalidToken:          ErrInvalidToken,
	CodeServiceError:          ErrServiceError,
	CodeValidationFailed:      ErrValidationFailed,
	CodeOTPExpired:            ErrOTPExpired,
	CodeInvalidOTP:            ErrInvalidOTP,
	CodeTooManyFailedAttempts: ErrTooManyFailedAttempts,
	CodeCooldownActive:        ErrCooldownActive,
	CodeEmailTaken:            ErrEmailTaken,
}

func newError(code Code, cause error) *Error {
	msg := "request rejected"
	if s, ok := sentinels[code]; ok {
		msg = s.Message
	}
	return &Error{Code: code, Message: msg, Err: cause}
}

func newRetryError(code Code, retryAfter time.Duration) *Error {
	e := newError(code, nil)
	e.RetryAfter = retryAfter
	return e
}

// CodeOf extracts the code from err, or CodeServiceError for foreign errors.
func CodeOf(err error) Code {
	if err == nil {
		return errcode.None
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeServiceError
}

// HTTPStatus maps a code to its HTTP status.
func HTTPStatus(code Code) int {
	switch code {
	case CodeMissingToken, CodeInvalidFormat, CodeTokenReused, CodeTokenExpired,
		CodeInvalidToken, CodeValidationFailed, CodeInvalidOTP, CodeTooManyFailedAttempts:
		return http.StatusBadRequest
	case CodeOTPExpired:
		return http.StatusNotFound
	case CodeEmailTaken:
		return http.StatusConflict
	// Lockout is not throttling: the subject may request a new code at once.
	case CodeRateLimited, CodeCooldownActive:
		return http.StatusTooManyRequests
	case errcode.None:
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}

package middleware

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"

	donorguard "github.com/MrEthical07/donorguard"
)

type errorBody struct {
	Code              string `json:"code"`
	Message           string `json:"message"`
	RetryAfterSeconds int    `json:"retry_after_seconds,omitempty"`
	AttemptsRemaining *int   `json:"attempts_remaining,omitempty"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

// WriteError renders err with the status mapped from its code. Foreign
// errors become SERVICE_ERROR without leaking their text.
func WriteError(w http.ResponseWriter, err error) {
	WriteErrorWithAttempts(w, err, -1)
}

// WriteErrorWithAttempts is WriteError plus attempts_remaining when
// attempts is not negative.
func WriteErrorWithAttempts(w http.ResponseWriter, err error, attempts int) {
	body := errorBody{
		Code:    string(donorguard.CodeServiceError),
		Message: donorguard.ErrServiceError.Message,
	}
	status := http.StatusInternalServerError

	if e, ok := asGuardError(err); ok {
		body.Code = string(e.Code)
		body.Message = e.Message
		body.RetryAfterSeconds = e.RetryAfterSeconds()
		status = e.HTTPStatus()
	}
	if attempts >= 0 {
		body.AttemptsRemaining = &attempts
	}

	if body.RetryAfterSeconds > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(body.RetryAfterSeconds))
	}
	WriteJSON(w, status, errorEnvelope{Error: body})
}

// WriteJSON writes v with status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ClientIP returns the host part of RemoteAddr.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func asGuardError(err error) (*donorguard.Error, bool) {
	var e *donorguard.Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

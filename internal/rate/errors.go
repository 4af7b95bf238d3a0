package rate

import "errors"

var (
	// ErrInvalidPolicy is returned for an empty scope/identifier or a non-positive limit or window.
	ErrInvalidPolicy = errors.New("invalid rate limit policy")
	// ErrUnavailable is returned when the store fails and the limiter fails closed.
	ErrUnavailable = errors.New("rate limiter unavailable")
)

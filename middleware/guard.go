package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	donorguard "github.com/MrEthical07/donorguard"
)

// CaptchaHeader carries the bot-verification token for [RequireCaptcha].
const CaptchaHeader = "X-Captcha-Token"

type ticketContextKey struct{}

// TicketFromContext returns claims injected by [RequireTicket].
func TicketFromContext(ctx context.Context) (donorguard.TicketClaims, bool) {
	c, ok := ctx.Value(ticketContextKey{}).(donorguard.TicketClaims)
	return c, ok
}

// KeyFunc derives the rate-limit identifier for a request. An empty result
// skips the check.
type KeyFunc func(r *http.Request) string

// RateLimit rejects requests over limit per window with 429 and
// Retry-After. Responses carry X-RateLimit-Limit, X-RateLimit-Remaining and
// X-RateLimit-Reset (whole seconds until the window ends).
func RateLimit(g *donorguard.Guard, scope string, limit int, window time.Duration, key KeyFunc) func(http.Handler) http.Handler {
	if key == nil {
		key = ClientIP
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := key(r)
			if id == "" {
				next.ServeHTTP(w, r)
				return
			}

			d, err := g.CheckRate(r.Context(), scope, id, limit, window)
			if d.Limit > 0 {
				h := w.Header()
				h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
				h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
				h.Set("X-RateLimit-Reset", strconv.Itoa(resetSeconds(d.Reset)))
			}
			if err != nil {
				WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireCaptcha validates the token in [CaptchaHeader] for the client IP.
func RequireCaptcha(g *donorguard.Guard) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := strings.TrimSpace(r.Header.Get(CaptchaHeader))
			if _, err := g.VerifyCaptcha(r.Context(), token, ClientIP(r)); err != nil {
				WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireTicket redeems a verification ticket for purpose from the
// Authorization bearer header. Each ticket passes once.
func RequireTicket(g *donorguard.Guard, purpose string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				WriteError(w, donorguard.ErrMissingToken)
				return
			}

			claims, err := g.RedeemTicket(r.Context(), token, purpose)
			if err != nil {
				if errors.Is(err, donorguard.ErrTokenReused) || errors.Is(err, donorguard.ErrInvalidToken) {
					w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
				}
				WriteError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), ticketContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func resetSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 0 {
		return 0
	}
	return secs
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}

package captcha

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout bounds one upstream verification call.
const DefaultTimeout = 10 * time.Second

// maxResponseBytes caps how much of a provider reply is read.
const maxResponseBytes = 64 << 10

// ErrTransport is returned when the provider could not be reached or replied
// with something other than a verification verdict.
var ErrTransport = errors.New("captcha provider transport failure")

// Verdict is the provider's answer for one token.
type Verdict struct {
	Success     bool     `json:"success"`
	ErrorCodes  []string `json:"error-codes"`
	Hostname    string   `json:"hostname,omitempty"`
	Action      string   `json:"action,omitempty"`
	ChallengeTS string   `json:"challenge_ts,omitempty"`
}

// Provider verifies an opaque token with the upstream service.
type Provider interface {
	Verify(ctx context.Context, token, remoteIP string) (Verdict, error)
}

// ProviderFunc adapts a function to [Provider].
type ProviderFunc func(ctx context.Context, token, remoteIP string) (Verdict, error)

// Verify calls f.
func (f ProviderFunc) Verify(ctx context.Context, token, remoteIP string) (Verdict, error) {
	return f(ctx, token, remoteIP)
}

// HTTPProvider speaks the siteverify protocol shared by reCAPTCHA, hCaptcha
// and Turnstile: form POST of secret/response/remoteip, JSON verdict back.
type HTTPProvider struct {
	endpoint string
	secret   string
	client   *http.Client
}

// NewHTTPProvider returns a provider posting to endpoint. A nil client gets
// one with [DefaultTimeout].
func NewHTTPProvider(endpoint, secret string, client *http.Client) *HTTPProvider {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &HTTPProvider{
		endpoint: endpoint,
		secret:   secret,
		client:   client,
	}
}

// Verify posts token to the provider.
func (p *HTTPProvider) Verify(ctx context.Context, token, remoteIP string) (Verdict, error) {
	form := url.Values{}
	form.Set("secret", p.secret)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return Verdict{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return Verdict{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return Verdict{}, fmt.Errorf("%w: status %d", ErrTransport, resp.StatusCode)
	}

	var v Verdict
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&v); err != nil {
		return Verdict{}, fmt.Errorf("%w: decode verdict: %v", ErrTransport, err)
	}
	return v, nil
}

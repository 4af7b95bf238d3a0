package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	donorguard "github.com/MrEthical07/donorguard"
	"github.com/MrEthical07/donorguard/store"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newServer(t *testing.T, cfg donorguard.Config) *httptest.Server {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	g, err := donorguard.New().
		WithConfig(cfg).
		WithStore(store.NewRedisStore(rdb, "http")).
		WithCaptchaProvider(donorguard.CaptchaProviderFunc(func(context.Context, string, string) (donorguard.CaptchaVerdict, error) {
			return donorguard.CaptchaVerdict{Success: true}, nil
		})).
		WithOTPCodeGenerator(func() (string, error) { return "482913", nil }).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(g.Close)

	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	srv := httptest.NewServer(NewRouter(NewHandler(g, nil), Options{Metrics: metrics}))
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, srv *httptest.Server, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(srv.URL+path, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s failed: %v", path, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestOTPFlowOverHTTP(t *testing.T) {
	srv := newServer(t, donorguard.DefaultConfig())

	resp, body := post(t, srv, "/v1/otp/request", `{"subject":"a@b.com","purpose":"donation"}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("request: expected 202, got %d %v", resp.StatusCode, body)
	}
	if body["expires_in_seconds"] != float64(600) {
		t.Fatalf("unexpected body %v", body)
	}

	resp, body = post(t, srv, "/v1/otp/request", `{"subject":"a@b.com","purpose":"donation"}`)
	if resp.StatusCode != http.StatusTooManyRequests || errorCode(body) != "COOLDOWN_ACTIVE" {
		t.Fatalf("resend: expected 429 COOLDOWN_ACTIVE, got %d %v", resp.StatusCode, body)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Fatal("expected Retry-After on cooldown")
	}

	resp, body = post(t, srv, "/v1/otp/verify", `{"subject":"a@b.com","code":"000000"}`)
	if resp.StatusCode != http.StatusBadRequest || errorCode(body) != "INVALID_OTP" {
		t.Fatalf("wrong code: expected 400 INVALID_OTP, got %d %v", resp.StatusCode, body)
	}
	if e := body["error"].(map[string]any); e["attempts_remaining"] != float64(2) {
		t.Fatalf("expected attempts_remaining 2, got %v", e)
	}

	resp, body = post(t, srv, "/v1/otp/verify", `{"subject":"a@b.com","code":"482913"}`)
	if resp.StatusCode != http.StatusOK || body["verified"] != true {
		t.Fatalf("right code: expected verified, got %d %v", resp.StatusCode, body)
	}

	resp, body = post(t, srv, "/v1/otp/verify", `{"subject":"a@b.com","code":"482913"}`)
	if resp.StatusCode != http.StatusNotFound || errorCode(body) != "OTP_EXPIRED" {
		t.Fatalf("reuse: expected 404 OTP_EXPIRED, got %d %v", resp.StatusCode, body)
	}
}

func TestCaptchaEndpoint(t *testing.T) {
	cfg := donorguard.DefaultConfig()
	cfg.Captcha.Enabled = true
	srv := newServer(t, cfg)

	resp, body := post(t, srv, "/v1/captcha/verify", `{"token":""}`)
	if resp.StatusCode != http.StatusBadRequest || errorCode(body) != "MISSING_TOKEN" {
		t.Fatalf("expected MISSING_TOKEN, got %d %v", resp.StatusCode, body)
	}

	tok := `{"token":"0.captcha-token-abcdefghijklmnopqrstuvwxyz"}`
	resp, body = post(t, srv, "/v1/captcha/verify", tok)
	if resp.StatusCode != http.StatusOK || body["success"] != true {
		t.Fatalf("expected success, got %d %v", resp.StatusCode, body)
	}
	resp, body = post(t, srv, "/v1/captcha/verify", tok)
	if errorCode(body) != "TOKEN_REUSED" {
		t.Fatalf("expected TOKEN_REUSED, got %d %v", resp.StatusCode, body)
	}
}

func TestMalformedBody(t *testing.T) {
	srv := newServer(t, donorguard.DefaultConfig())
	for _, body := range []string{`{`, `{"subject":"a@b.com","unknown":1}`} {
		resp, out := post(t, srv, "/v1/otp/request", body)
		if resp.StatusCode != http.StatusBadRequest || errorCode(out) != "INVALID_FORMAT" {
			t.Fatalf("%s: expected INVALID_FORMAT, got %d %v", body, resp.StatusCode, out)
		}
	}
}

func TestHealthMetricsAndRequestID(t *testing.T) {
	srv := newServer(t, donorguard.DefaultConfig())

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("expected X-Request-ID header")
	}

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

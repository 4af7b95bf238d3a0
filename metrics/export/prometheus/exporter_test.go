package prometheus

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	donorguard "github.com/MrEthical07/donorguard"
	"github.com/MrEthical07/donorguard/store"
	"github.com/prometheus/client_golang/prometheus"
)

type fakeSource struct {
	snapshot donorguard.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() donorguard.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AbuseDropped() uint64                        { return f.dropped }

func scrape(t *testing.T, src fakeSource) string {
	t.Helper()
	h, err := Handler(NewCollectorFromSource(src))
	if err != nil {
		t.Fatalf("Handler failed: %v", err)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	return string(body)
}

func TestScrapeIncludesCounterAndHistogram(t *testing.T) {
	out := scrape(t, fakeSource{
		snapshot: donorguard.MetricsSnapshot{
			Counters: map[donorguard.MetricID]uint64{
				donorguard.MetricOTPIssued: 7,
			},
			Histograms: map[donorguard.MetricID][]uint64{
				donorguard.MetricCaptchaLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	for _, want := range []string{
		"donorguard_otp_issued_total 7",
		`donorguard_captcha_upstream_seconds_bucket{le="0.05"} 1`,
		`donorguard_captcha_upstream_seconds_bucket{le="+Inf"} 36`,
		"donorguard_captcha_upstream_seconds_count 36",
		"donorguard_abuse_dropped_total 2",
		"go_goroutines",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
}

func TestHistogramOmittedWhenDisabled(t *testing.T) {
	out := scrape(t, fakeSource{
		snapshot: donorguard.MetricsSnapshot{
			Counters:   map[donorguard.MetricID]uint64{},
			Histograms: map[donorguard.MetricID][]uint64{},
		},
	})
	if strings.Contains(out, "donorguard_captcha_upstream_seconds_bucket") {
		t.Fatalf("histogram should be absent, got:\n%s", out)
	}
	if !strings.Contains(out, "donorguard_otp_issued_total 0") {
		t.Fatalf("counters should still be exported, got:\n%s", out)
	}
}

func TestCollectorFromGuard(t *testing.T) {
	g, err := donorguard.New().WithStore(store.NewMemoryStore()).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer g.Close()

	reg := prometheus.NewPedanticRegistry()
	if err := reg.Register(NewCollector(g)); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	if want := len(g.MetricsSnapshot().Counters) + 2; len(families) != want {
		t.Fatalf("expected %d metric families, got %d", want, len(families))
	}
}

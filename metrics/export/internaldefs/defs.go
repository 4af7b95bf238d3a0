package internaldefs

import (
	donorguard "github.com/MrEthical07/donorguard"
)

// CounterDef names one Guard counter for exporters.
type CounterDef struct {
	ID   donorguard.MetricID
	Name string
	Help string
}

// HistogramDef names one Guard histogram for exporters.
type HistogramDef struct {
	ID   donorguard.MetricID
	Name string
	Help string
}

// AbuseDroppedName is the counter for abuse events lost to backpressure.
const (
	AbuseDroppedName = "donorguard_abuse_dropped_total"
	AbuseDroppedHelp = "Abuse events dropped due to dispatcher backpressure."
)

var CounterDefs = []CounterDef{
	{ID: donorguard.MetricCaptchaSuccess, Name: "donorguard_captcha_success_total", Help: "Accepted bot-verification tokens."},
	{ID: donorguard.MetricCaptchaRejected, Name: "donorguard_captcha_rejected_total", Help: "Bot-verification tokens rejected by format checks or the provider."},
	{ID: donorguard.MetricCaptchaReused, Name: "donorguard_captcha_reused_total", Help: "Bot-verification tokens submitted again after use."},
	{ID: donorguard.MetricCaptchaDegraded, Name: "donorguard_captcha_degraded_total", Help: "Bot-verification outcomes decided without a provider verdict."},
	{ID: donorguard.MetricCaptchaServiceError, Name: "donorguard_captcha_service_error_total", Help: "Bot-verification calls failed by store or provider configuration errors."},
	{ID: donorguard.MetricRateLimitHit, Name: "donorguard_rate_limit_hit_total", Help: "Rate-limit checks that denied requests."},
	{ID: donorguard.MetricRateLimitDegraded, Name: "donorguard_rate_limit_degraded_total", Help: "Rate-limit checks decided by failure policy during a store outage."},
	{ID: donorguard.MetricOTPIssued, Name: "donorguard_otp_issued_total", Help: "Issued one-time codes."},
	{ID: donorguard.MetricOTPCooldown, Name: "donorguard_otp_cooldown_total", Help: "Code requests refused inside the issuance cooldown."},
	{ID: donorguard.MetricOTPVerifySuccess, Name: "donorguard_otp_verify_success_total", Help: "Successful code verifications."},
	{ID: donorguard.MetricOTPMismatch, Name: "donorguard_otp_mismatch_total", Help: "Wrong codes submitted."},
	{ID: donorguard.MetricOTPLocked, Name: "donorguard_otp_locked_total", Help: "Codes invalidated after exhausting the attempt budget."},
	{ID: donorguard.MetricOTPNotFound, Name: "donorguard_otp_not_found_total", Help: "Verifications with no live code."},
	{ID: donorguard.MetricOTPNotifyFailure, Name: "donorguard_otp_notify_failure_total", Help: "Issued codes whose delivery failed."},
	{ID: donorguard.MetricOTPServiceError, Name: "donorguard_otp_service_error_total", Help: "Code operations failed by store errors."},
	{ID: donorguard.MetricEmailTaken, Name: "donorguard_email_taken_total", Help: "Code requests refused because the email has an account."},
	{ID: donorguard.MetricTicketIssued, Name: "donorguard_ticket_issued_total", Help: "Issued verification tickets."},
	{ID: donorguard.MetricTicketRedeemed, Name: "donorguard_ticket_redeemed_total", Help: "Redeemed verification tickets."},
	{ID: donorguard.MetricTicketRejected, Name: "donorguard_ticket_rejected_total", Help: "Rejected verification tickets."},
}

var HistogramDefs = []HistogramDef{
	{ID: donorguard.MetricCaptchaLatency, Name: "donorguard_captcha_upstream_seconds", Help: "Bot-verification provider round-trip latency."},
}

// HistogramUpperBounds are the bucket limits in seconds, excluding +Inf.
// They match the Guard's millisecond buckets.
var HistogramUpperBounds = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

var HistogramBounds = []string{
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"1",
	"2.5",
	"5",
	"+Inf",
}

// NormalizeBuckets pads or truncates raw to the fixed bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}

// ApproxSum estimates the histogram sum, which the Guard does not
// track, by assuming each sample sits at its bucket's upper bound. The +Inf
// bucket counts at twice the last finite bound.
func ApproxSum(raw [8]uint64) float64 {
	var sum float64
	for i, n := range raw {
		bound := 2 * HistogramUpperBounds[len(HistogramUpperBounds)-1]
		if i < len(HistogramUpperBounds) {
			bound = HistogramUpperBounds[i]
		}
		sum += float64(n) * bound
	}
	return sum
}

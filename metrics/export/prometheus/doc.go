// Package prometheus exposes Guard metrics through client_golang.
//
// [Collector] turns each scrape into a [donorguard.Guard.MetricsSnapshot]
// read, so counters are never double-registered and the Guard keeps its
// lock-free atomics. Counter names are donorguard_*_total; the upstream
// latency histogram is donorguard_captcha_upstream_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in the global Prometheus registry. Callers mount
//     [Handler] or register the Collector themselves.
//   - Mutate Guard state.
package prometheus

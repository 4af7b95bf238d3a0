// Package otel publishes Guard metrics through an OpenTelemetry meter.
//
// [NewExporter] registers one Int64ObservableCounter per Guard counter and a
// bucket gauge carrying an "le" attribute for the upstream latency
// histogram. A single callback reads [donorguard.Guard.MetricsSnapshot] on
// each collection cycle.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate Guard state.
package otel

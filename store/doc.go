// Package store defines the shared counter store contract used by every
// donorguard component, along with a Redis implementation and an in-memory
// implementation for tests and single-process development.
//
// # Contract
//
// Values are strings with a per-key expiry. Increment is the only mutation
// counters may use: it is atomic, creates the key at 1 when absent, and
// applies the supplied ttl on creation. Components never read-then-write a
// counter. Records that can be replaced concurrently are removed with
// DeleteIfEquals so a reader only ever deletes the value it checked.
//
// # Architecture boundaries
//
// This package owns persistence only. It does NOT know about OTPs, rate
// limits or replay records; key naming belongs to the owning component.
//
// # What this package must NOT do
//
//   - Import donorguard or any internal package.
//   - Swallow backend errors: every failure wraps [ErrUnavailable] so callers
//     can apply their own fail-open or fail-closed policy.
package store

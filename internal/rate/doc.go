// Package rate implements the distributed fixed-window rate limiter shared by
// every donorguard flow.
//
// # Window semantics
//
// Fixed-window counters: one atomic increment per check, expiry applied on the
// first hit of a window. Bursts straddling a window edge are accepted; this is
// not a sliding window. Key layout: rl:<scope>:<identifier>.
//
// # Failure policy
//
// A store failure is resolved by the limiter's configured policy. FailOpen
// allows the request and marks the decision Degraded; FailClosed rejects it
// and returns [ErrUnavailable].
//
// # What this package must NOT do
//
//   - Read-then-write a counter.
//   - Decide consequences of a rejection (abuse logging, HTTP status).
package rate

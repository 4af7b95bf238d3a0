// Package donorguard is the anti-abuse layer of a donation-crowdfunding
// platform: OTP issuance and verification, bot-verification token checks
// with replay prevention, and distributed rate limiting over one shared
// key-value store.
//
// [Guard] methods are safe to call from any number of goroutines and any
// number of processes sharing the same store. No decision depends on
// in-process state.
//
// # Architecture boundaries
//
// donorguard is the public surface. It exposes [Guard], [Builder], [Config],
// the [Error] taxonomy and value types. Counter, replay, OTP and CAPTCHA
// mechanics live under internal/ and are reached only through Guard.
//
// # Failure policy
//
// Generic rate limiting fails open by default: a store outage admits the
// request and marks the decision degraded. CAPTCHA validation, OTP
// verification and replay checks fail closed: a store or provider outage
// denies the action. Both policies are set in [Config] and reported by
// [Guard.SecurityReport].
//
// # What this package must NOT do
//
//   - Return raw OTP codes or CAPTCHA tokens to callers other than the
//     configured [Notifier].
//   - Authenticate a subject when a dependency failed.
//   - Let abuse logging change the outcome of a request.
package donorguard

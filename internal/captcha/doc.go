// Package captcha validates opaque bot-verification tokens against an
// upstream siteverify endpoint.
//
// # Validation order
//
//  1. Format: empty or out-of-range length is rejected without store access.
//  2. Per-IP fixed-window limit (scope captcha_ip, 10 per 900s by default).
//  3. Replay lookup on the token digest.
//  4. Upstream call bounded by [Config.Timeout].
//  5. On upstream success the digest is marked used; on rejection the
//     provider's error codes are mapped and the token stays unconsumed.
//
// # Failure policy
//
// Upstream failure denies the request with VALIDATION_FAILED unless
// [Config.FailOpen] is set. Store failure on the replay path always denies
// with SERVICE_ERROR. This is the opposite of the generic rate limiter's
// default.
//
// # What this package must NOT do
//
//   - Log or persist raw tokens.
//   - Mark a token used before the provider accepted it.
package captcha

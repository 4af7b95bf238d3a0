// Package middleware exposes HTTP adapters over donorguard.Guard.
//
// # Guards
//
//   - [RateLimit] counts each request against a fixed window keyed by a
//     caller-chosen identifier, the client IP by default.
//   - [RequireCaptcha] validates a bot-verification token before the handler runs.
//   - [RequireTicket] redeems a single-use verification ticket from the
//     Authorization header and injects its claims into the request context.
//
// Rejections are written with [WriteError] as a JSON envelope carrying the
// stable error code, with Retry-After set on 429 responses.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Guard calls. Every decision is
// delegated to the Guard.
//
// # What this package must NOT do
//
//   - Access Redis directly.
//   - Parse verification tickets itself.
//   - Trust forwarding headers. Put chi's RealIP in front when the service
//     runs behind a proxy.
package middleware

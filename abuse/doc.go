// Package abuse records suspicious events for operators.
//
// # Components
//
//   - [Log]: best-effort append API used on the request path.
//   - [Sink]: delivery target (channel, JSON lines, zap, Redis stream, RabbitMQ, fan-out).
//   - [Dispatcher]: optional buffered async relay with drop-if-full semantics.
//
// # Architecture boundaries
//
// Events are a side channel. Nothing in donorguard reads them back to make
// a decision, and recording one never changes the outcome of a request.
//
// # What this package must NOT do
//
//   - Return errors or panic into the caller of [Log.Record].
//   - Receive raw tokens or OTP codes in Detail or Metadata.
package abuse

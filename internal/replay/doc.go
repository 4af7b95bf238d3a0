// Package replay enforces single use of opaque bot-verification tokens.
//
// Tokens are never stored: only their SHA-256 digest is written, under
// rp:<hex digest>, with a lifetime longer than the upstream token's own
// validity so a replay is rejected even while the provider would still
// accept it.
//
// Callers must check [Guard.WasUsed] before calling the upstream verifier and
// call [Guard.MarkUsed] only after upstream success. Under that ordering two
// concurrent submissions of one token can both pass the check; [Guard.Claim]
// closes that window when the caller opts in.
package replay

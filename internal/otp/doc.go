// Package otp issues and verifies short-lived numeric one-time passwords.
//
// # Storage layout
//
// Per subject, three keys share the store:
//
//	otp:rec:<subject>  versioned binary record, TTL = code lifetime
//	otp:att:<subject>  failed-attempt counter, advanced by atomic increment
//	otp:cd:<subject>   issuance cooldown marker, claimed with set-if-absent
//
// A record is deleted on success, on reaching its attempt budget, or by TTL.
// Of several concurrent correct submissions only the one whose delete
// removed the record succeeds.
//
// # What this package must NOT do
//
//   - Deliver codes. Notification is the caller's concern.
//   - Log codes or persist them anywhere but the record key.
//   - Treat a store failure as a successful verification.
package otp

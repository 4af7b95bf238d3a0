// Package users provides account-existence lookups used to refuse OTP
// issuance for purposes that require an unregistered email.
package users

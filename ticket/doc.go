// Package ticket issues short-lived signed verification tickets after a
// successful OTP check, so a later request (account creation, donation
// submission) can prove the subject was verified without repeating it.
package ticket

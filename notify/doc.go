// Package notify delivers issued OTP codes to the subject out of band.
package notify

// Package httpapi exposes a Guard over HTTP with chi.
//
// Routes:
//
//	POST /v1/captcha/verify   {"token"}
//	POST /v1/otp/request      {"subject","purpose","captcha_token"}
//	POST /v1/otp/verify       {"subject","purpose","code"}
//	POST /v1/tickets/redeem   {"ticket","purpose"}
//	GET  /healthz
//	GET  /metrics             when Options.Metrics is set
//
// Errors use the middleware package's JSON envelope. Status codes follow
// donorguard.HTTPStatus.
package httpapi

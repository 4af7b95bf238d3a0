package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	donorguard "github.com/MrEthical07/donorguard"
	"github.com/MrEthical07/donorguard/middleware"
	"go.uber.org/zap"
)

const maxBodyBytes = 16 << 10

// Handler serves the anti-abuse endpoints over a Guard.
type Handler struct {
	guard *donorguard.Guard
	log   *zap.Logger
}

func NewHandler(g *donorguard.Guard, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{guard: g, log: log}
}

type captchaRequest struct {
	Token string `json:"token"`
}

type captchaResponse struct {
	Success  bool `json:"success"`
	Degraded bool `json:"degraded,omitempty"`
}

type otpRequestBody struct {
	Subject      string `json:"subject"`
	Purpose      string `json:"purpose"`
	CaptchaToken string `json:"captcha_token,omitempty"`
}

type otpRequestResponse struct {
	Subject            string `json:"subject"`
	Purpose            string `json:"purpose"`
	ExpiresInSeconds   int64  `json:"expires_in_seconds"`
	ResendAfterSeconds int64  `json:"resend_after_seconds"`
}

type otpVerifyBody struct {
	Subject string `json:"subject"`
	Purpose string `json:"purpose,omitempty"`
	Code    string `json:"code"`
}

type otpVerifyResponse struct {
	Verified        bool       `json:"verified"`
	Subject         string     `json:"subject"`
	Purpose         string     `json:"purpose"`
	Ticket          string     `json:"ticket,omitempty"`
	TicketExpiresAt *time.Time `json:"ticket_expires_at,omitempty"`
}

type ticketRedeemBody struct {
	Ticket  string `json:"ticket"`
	Purpose string `json:"purpose,omitempty"`
}

type ticketRedeemResponse struct {
	ID        string    `json:"id"`
	Subject   string    `json:"subject"`
	Purpose   string    `json:"purpose"`
	ExpiresAt time.Time `json:"expires_at"`
}

// VerifyCaptcha handles POST /v1/captcha/verify.
func (h *Handler) VerifyCaptcha(w http.ResponseWriter, r *http.Request) {
	var body captchaRequest
	if !decodeBody(w, r, &body) {
		return
	}
	out, err := h.guard.VerifyCaptcha(r.Context(), body.Token, middleware.ClientIP(r))
	if err != nil {
		h.reject(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, captchaResponse{Success: true, Degraded: out.Degraded})
}

// RequestOTP handles POST /v1/otp/request.
func (h *Handler) RequestOTP(w http.ResponseWriter, r *http.Request) {
	var body otpRequestBody
	if !decodeBody(w, r, &body) {
		return
	}
	if body.CaptchaToken == "" {
		body.CaptchaToken = r.Header.Get(middleware.CaptchaHeader)
	}

	issued, err := h.guard.RequestOTP(r.Context(), donorguard.OTPRequest{
		Subject:      body.Subject,
		Purpose:      body.Purpose,
		IP:           middleware.ClientIP(r),
		CaptchaToken: body.CaptchaToken,
	})
	if err != nil {
		h.reject(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusAccepted, otpRequestResponse{
		Subject:            issued.Subject,
		Purpose:            issued.Purpose,
		ExpiresInSeconds:   int64(issued.ExpiresIn / time.Second),
		ResendAfterSeconds: int64(issued.ResendAfter / time.Second),
	})
}

// VerifyOTP handles POST /v1/otp/verify.
func (h *Handler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var body otpVerifyBody
	if !decodeBody(w, r, &body) {
		return
	}

	v, err := h.guard.VerifyOTP(r.Context(), donorguard.OTPVerifyRequest{
		Subject: body.Subject,
		Purpose: body.Purpose,
		Code:    body.Code,
		IP:      middleware.ClientIP(r),
	})
	if err != nil {
		if errors.Is(err, donorguard.ErrInvalidOTP) {
			middleware.WriteErrorWithAttempts(w, err, v.AttemptsRemaining)
			return
		}
		h.reject(w, r, err)
		return
	}

	resp := otpVerifyResponse{
		Verified: v.Verified,
		Subject:  v.Subject,
		Purpose:  v.Purpose,
		Ticket:   v.Ticket,
	}
	if v.Ticket != "" {
		resp.TicketExpiresAt = &v.TicketExpiresAt
	}
	middleware.WriteJSON(w, http.StatusOK, resp)
}

// RedeemTicket handles POST /v1/tickets/redeem.
func (h *Handler) RedeemTicket(w http.ResponseWriter, r *http.Request) {
	var body ticketRedeemBody
	if !decodeBody(w, r, &body) {
		return
	}
	claims, err := h.guard.RedeemTicket(r.Context(), body.Ticket, body.Purpose)
	if err != nil {
		h.reject(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, ticketRedeemResponse(claims))
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.guard.Ping(r.Context()); err != nil {
		h.log.Warn("health check failed", zap.Error(err))
		middleware.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request, err error) {
	if donorguard.CodeOf(err) == donorguard.CodeServiceError {
		h.log.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", RequestIDFromContext(r.Context())),
			zap.Error(err),
		)
	}
	middleware.WriteError(w, err)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		middleware.WriteError(w, donorguard.ErrInvalidFormat)
		return false
	}
	return true
}

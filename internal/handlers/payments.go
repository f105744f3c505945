package handlers

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tiffinbox/api/internal/platform/httpx"
	"github.com/tiffinbox/api/internal/services"
)

const (
	defaultVerifyRateLimit  = 30
	defaultVerifyRateWindow = time.Minute
)

type verifyPaymentRequest struct {
	GatewayOrderID string `json:"gatewayOrderId"`
	PaymentID      string `json:"paymentId"`
	Signature      string `json:"signature"`
}

type verifyPaymentResponse struct {
	Message         string         `json:"message"`
	Payment         paymentPayload `json:"payment"`
	Order           orderPayload   `json:"order"`
	AlreadyVerified bool           `json:"alreadyVerified"`
}

// PaymentHandlers serves the gateway verification callback.
type PaymentHandlers struct {
	payments services.PaymentService
	limiter  rateLimiter
	clock    func() time.Time
}

// PaymentHandlersOption customises PaymentHandlers.
type PaymentHandlersOption func(*PaymentHandlers)

// WithPaymentRateLimit caps verification attempts per client address.
func WithPaymentRateLimit(limit int, window time.Duration) PaymentHandlersOption {
	return func(h *PaymentHandlers) {
		h.limiter = newSimpleRateLimiter(limit, window, func() time.Time { return h.clock() })
	}
}

// WithPaymentClock overrides the clock used by the rate limiter.
func WithPaymentClock(clock func() time.Time) PaymentHandlersOption {
	return func(h *PaymentHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// NewPaymentHandlers constructs PaymentHandlers.
func NewPaymentHandlers(payments services.PaymentService, opts ...PaymentHandlersOption) *PaymentHandlers {
	h := &PaymentHandlers{payments: payments, clock: time.Now}
	h.limiter = newSimpleRateLimiter(defaultVerifyRateLimit, defaultVerifyRateWindow, func() time.Time { return h.clock() })
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes registers POST /payments:verify. The gateway signature authenticates the call.
func (h *PaymentHandlers) Routes(r chi.Router) {
	r.Post("/payments:verify", h.verifyPayment)
}

func (h *PaymentHandlers) verifyPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		writeUnavailable(ctx, w, "payment")
		return
	}
	if !allowRequest(w, r, h.limiter, clientAddress(r), "too many verification attempts") {
		return
	}

	var req verifyPaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeBadRequest(ctx, w, err.Error())
		return
	}

	result, err := h.payments.Verify(ctx, services.VerifyPaymentCommand{
		GatewayOrderID: strings.TrimSpace(req.GatewayOrderID),
		PaymentID:      strings.TrimSpace(req.PaymentID),
		Signature:      strings.TrimSpace(req.Signature),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	message := "Payment successful"
	if result.AlreadyVerified {
		message = "Payment already verified"
	}
	httpx.WriteJSON(w, http.StatusOK, verifyPaymentResponse{
		Message:         message,
		Payment:         buildPaymentPayload(result.Payment, nil),
		Order:           buildOrderPayload(result.Order),
		AlreadyVerified: result.AlreadyVerified,
	})
}

func clientAddress(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

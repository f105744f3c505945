package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/tiffinbox/api/internal/platform/httpx"
	"github.com/tiffinbox/api/internal/platform/requestctx"
	"github.com/tiffinbox/api/internal/services"
)

// InternalHandlers serves scheduler-triggered maintenance endpoints.
type InternalHandlers struct {
	payments       services.PaymentService
	pendingTimeout time.Duration
}

// NewInternalHandlers constructs InternalHandlers. pendingTimeout is the age after which pending
// payments are expired.
func NewInternalHandlers(payments services.PaymentService, pendingTimeout time.Duration) *InternalHandlers {
	return &InternalHandlers{payments: payments, pendingTimeout: pendingTimeout}
}

// Routes registers the /internal endpoints. Authentication is applied by the router group.
func (h *InternalHandlers) Routes(r chi.Router) {
	r.Post("/payments:sweep", h.sweepPayments)
}

func (h *InternalHandlers) sweepPayments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		writeUnavailable(ctx, w, "payment")
		return
	}

	removed, err := h.payments.ExpireStale(ctx, h.pendingTimeout)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	requestctx.Logger(ctx).Info("pending payments swept", zap.Int("removed", removed), zap.Duration("older_than", h.pendingTimeout))
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"removed": removed})
}

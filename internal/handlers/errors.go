package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/tiffinbox/api/internal/platform/httpx"
	"github.com/tiffinbox/api/internal/repositories"
	"github.com/tiffinbox/api/internal/services"
)

type errorMapping struct {
	target  error
	code    string
	status  int
	message string
}

// serviceErrors maps service sentinels to API errors. Order matters where sentinels overlap.
var serviceErrors = []errorMapping{
	{services.ErrOrderNotFound, "order_not_found", http.StatusNotFound, "order not found"},
	{services.ErrOrderCartNotFound, "cart_not_found", http.StatusNotFound, "cart not found"},
	{services.ErrOrderAddressNotFound, "address_not_found", http.StatusNotFound, "delivery address not found"},
	{services.ErrOrderInvalidInput, "invalid_request", http.StatusBadRequest, "invalid order request"},
	{services.ErrOrderForbidden, "order_forbidden", http.StatusBadRequest, "not allowed to modify this order"},
	{services.ErrOrderAlreadyCancelled, "order_cancelled", http.StatusBadRequest, "order has already been cancelled"},
	{services.ErrOrderTerminalState, "order_terminal", http.StatusBadRequest, "order cannot advance further"},
	{services.ErrOrderInvalidState, "order_invalid_state", http.StatusBadRequest, "invalid order status transition"},
	{services.ErrOrderConflict, "order_conflict", http.StatusConflict, "order was modified concurrently"},

	{services.ErrCouponNotFound, "coupon_not_found", http.StatusNotFound, "Invalid coupon code"},
	{services.ErrCouponCartNotFound, "cart_not_found", http.StatusNotFound, "cart not found"},
	{services.ErrCouponInactive, "coupon_inactive", http.StatusBadRequest, "Coupon is inactive"},
	{services.ErrCouponExpired, "coupon_expired", http.StatusBadRequest, "Coupon has expired"},
	{services.ErrCouponMinimumNotMet, "coupon_minimum_not_met", http.StatusBadRequest, "minimum order value not met"},
	{services.ErrCouponInvalidInput, "invalid_request", http.StatusBadRequest, "invalid coupon request"},
	{services.ErrCouponConflict, "coupon_conflict", http.StatusConflict, "coupon code already exists"},

	{services.ErrPaymentOrderNotFound, "order_not_found", http.StatusNotFound, "order not found"},
	{services.ErrPaymentNotFound, "payment_not_found", http.StatusNotFound, "payment not found"},
	{services.ErrPaymentInvalidInput, "invalid_request", http.StatusBadRequest, "invalid payment request"},
	{services.ErrPaymentForbidden, "payment_forbidden", http.StatusBadRequest, "not allowed to pay for this order"},
	{services.ErrPaymentInvalidState, "payment_invalid_state", http.StatusBadRequest, "order is not payable"},
	{services.ErrPaymentInvalidAmount, "payment_invalid_amount", http.StatusBadRequest, "order amount is invalid"},
	{services.ErrPaymentSignatureMismatch, "signature_mismatch", http.StatusBadRequest, "Invalid payment signature"},
	{services.ErrPaymentDuplicate, "payment_duplicate", http.StatusBadRequest, "order has already been paid"},
	{services.ErrPaymentConflict, "payment_conflict", http.StatusConflict, "payment verification already in progress"},
	{services.ErrPaymentUpstream, "payment_gateway_error", http.StatusInternalServerError, "payment gateway request failed"},
	{services.ErrPaymentReconciliation, "payment_reconciliation_failed", http.StatusInternalServerError, "payment could not be reconciled"},

	{services.ErrMenuItemNotFound, "menu_item_not_found", http.StatusNotFound, "menu item not found"},
	{services.ErrMenuInvalidInput, "invalid_request", http.StatusBadRequest, "invalid menu request"},
}

// writeServiceError translates a service error into the API error envelope. Reason messages
// attached by services replace the generic message.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	for _, mapping := range serviceErrors {
		if errors.Is(err, mapping.target) {
			message := mapping.message
			if reason, ok := services.ErrorReason(err); ok && reason != "" && mapping.status < http.StatusInternalServerError {
				message = reason
			}
			httpx.WriteError(ctx, w, httpx.NewError(mapping.code, message, mapping.status))
			return
		}
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsUnavailable() {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "storage temporarily unavailable", http.StatusServiceUnavailable))
		return
	}
	httpx.WriteError(ctx, w, httpx.NewError("internal_error", "internal server error", http.StatusInternalServerError))
}

func writeBadRequest(ctx context.Context, w http.ResponseWriter, message string) {
	httpx.WriteError(ctx, w, httpx.NewError("invalid_request", message, http.StatusBadRequest))
}

func writeUnauthenticated(ctx context.Context, w http.ResponseWriter) {
	httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
}

func writeUnavailable(ctx context.Context, w http.ResponseWriter, name string) {
	httpx.WriteError(ctx, w, httpx.NewError(name+"_unavailable", name+" service unavailable", http.StatusServiceUnavailable))
}

func writeRateLimited(ctx context.Context, w http.ResponseWriter, message string) {
	httpx.WriteError(ctx, w, httpx.NewError("rate_limited", message, http.StatusTooManyRequests))
}

package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/tiffinbox/api/internal/platform/auth"
	"github.com/tiffinbox/api/internal/platform/httpx"
	"github.com/tiffinbox/api/internal/services"
)

type upsertCouponRequest struct {
	Code               string          `json:"code"`
	Description        string          `json:"description"`
	Active             *bool           `json:"active"`
	ExpiresAt          string          `json:"expiresAt"`
	MinOrderValue      decimal.Decimal `json:"minOrderValue"`
	DiscountPercentage decimal.Decimal `json:"discountPercentage"`
	MaxDiscountValue   decimal.Decimal `json:"maxDiscountValue"`
}

// AdminHandlers exposes operator endpoints for orders, payments and coupons.
type AdminHandlers struct {
	authn    *auth.Authenticator
	orders   services.OrderService
	payments services.PaymentService
	coupons  services.CouponService
}

// NewAdminHandlers constructs AdminHandlers.
func NewAdminHandlers(authn *auth.Authenticator, orders services.OrderService, payments services.PaymentService, coupons services.CouponService) *AdminHandlers {
	return &AdminHandlers{authn: authn, orders: orders, payments: payments, coupons: coupons}
}

// Routes registers the /admin endpoints. Every route requires the operator role.
func (h *AdminHandlers) Routes(r chi.Router) {
	if h.authn != nil {
		r.Use(h.authn.RequireOperator())
	}
	r.Get("/orders", h.listOrders)
	r.Post("/orders/{orderID}:advance", h.advanceOrder)
	r.Get("/payments", h.listPayments)
	r.Route("/coupons", func(rt chi.Router) {
		rt.Get("/", h.listCoupons)
		rt.Post("/", h.createCoupon)
		rt.Get("/{couponID}", h.getCoupon)
		rt.Put("/{couponID}", h.updateCoupon)
		rt.Delete("/{couponID}", h.deleteCoupon)
	})
}

func (h *AdminHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order")
		return
	}
	orders, err := h.orders.ListAll(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": buildOrderPayloads(orders)})
}

func (h *AdminHandlers) advanceOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order")
		return
	}
	actor, ok := actorFromRequest(r)
	if !ok {
		writeUnauthenticated(ctx, w)
		return
	}
	orderID, ok := pathID(w, r, "orderID")
	if !ok {
		return
	}

	order, err := h.orders.Advance(ctx, services.AdvanceOrderCommand{OrderID: orderID, ActorID: actor.ID})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildOrderPayload(order))
}

func (h *AdminHandlers) listPayments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		writeUnavailable(ctx, w, "payment")
		return
	}
	payments, err := h.payments.List(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	items := make([]paymentPayload, 0, len(payments))
	for _, entry := range payments {
		items = append(items, buildPaymentPayload(entry.Payment, entry.User))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *AdminHandlers) listCoupons(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.coupons == nil {
		writeUnavailable(ctx, w, "coupon")
		return
	}
	coupons, err := h.coupons.List(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	items := make([]couponPayload, 0, len(coupons))
	for _, coupon := range coupons {
		items = append(items, buildCouponPayload(coupon))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *AdminHandlers) getCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.coupons == nil {
		writeUnavailable(ctx, w, "coupon")
		return
	}
	couponID, ok := pathID(w, r, "couponID")
	if !ok {
		return
	}
	coupon, err := h.coupons.Get(ctx, couponID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildCouponPayload(coupon))
}

func (h *AdminHandlers) createCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.coupons == nil {
		writeUnavailable(ctx, w, "coupon")
		return
	}
	cmd, ok := decodeCouponCommand(w, r)
	if !ok {
		return
	}
	coupon, err := h.coupons.Create(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, buildCouponPayload(coupon))
}

func (h *AdminHandlers) updateCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.coupons == nil {
		writeUnavailable(ctx, w, "coupon")
		return
	}
	couponID, ok := pathID(w, r, "couponID")
	if !ok {
		return
	}
	cmd, ok := decodeCouponCommand(w, r)
	if !ok {
		return
	}
	coupon, err := h.coupons.Update(ctx, couponID, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildCouponPayload(coupon))
}

func (h *AdminHandlers) deleteCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.coupons == nil {
		writeUnavailable(ctx, w, "coupon")
		return
	}
	couponID, ok := pathID(w, r, "couponID")
	if !ok {
		return
	}
	if err := h.coupons.Delete(ctx, couponID); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeCouponCommand(w http.ResponseWriter, r *http.Request) (services.UpsertCouponCommand, bool) {
	var req upsertCouponRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeBadRequest(r.Context(), w, err.Error())
		return services.UpsertCouponCommand{}, false
	}

	var expiresAt time.Time
	if raw := strings.TrimSpace(req.ExpiresAt); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeBadRequest(r.Context(), w, "expiresAt must be an RFC3339 timestamp")
			return services.UpsertCouponCommand{}, false
		}
		expiresAt = parsed
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return services.UpsertCouponCommand{
		Code:               req.Code,
		Description:        req.Description,
		Active:             active,
		ExpiresAt:          expiresAt,
		MinOrderValue:      req.MinOrderValue,
		DiscountPercentage: req.DiscountPercentage,
		MaxDiscountValue:   req.MaxDiscountValue,
	}, true
}

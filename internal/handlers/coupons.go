package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tiffinbox/api/internal/platform/auth"
	"github.com/tiffinbox/api/internal/platform/httpx"
	"github.com/tiffinbox/api/internal/services"
)

const (
	defaultApplyRateLimit  = 20
	defaultApplyRateWindow = time.Minute
)

type applyCouponRequest struct {
	CartID string `json:"cartId"`
	Code   string `json:"code"`
}

type applyCouponResponse struct {
	CartID  string         `json:"cartId"`
	Coupon  couponPayload  `json:"coupon"`
	Pricing pricingPayload `json:"pricing"`
}

// CouponHandlers lets customers preview a coupon against their cart.
type CouponHandlers struct {
	authn   *auth.Authenticator
	coupons services.CouponService
	limiter rateLimiter
}

// NewCouponHandlers constructs CouponHandlers. Preview attempts are limited per user.
func NewCouponHandlers(authn *auth.Authenticator, coupons services.CouponService) *CouponHandlers {
	return &CouponHandlers{
		authn:   authn,
		coupons: coupons,
		limiter: newSimpleRateLimiter(defaultApplyRateLimit, defaultApplyRateWindow, nil),
	}
}

// Routes registers POST /coupons:apply.
func (h *CouponHandlers) Routes(r chi.Router) {
	rt := r
	if h.authn != nil {
		rt = r.With(h.authn.RequireAuth())
	}
	rt.Post("/coupons:apply", h.applyCoupon)
}

func (h *CouponHandlers) applyCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.coupons == nil {
		writeUnavailable(ctx, w, "coupon")
		return
	}
	actor, ok := actorFromRequest(r)
	if !ok {
		writeUnauthenticated(ctx, w)
		return
	}
	if !allowRequest(w, r, h.limiter, actor.ID, "too many coupon attempts") {
		return
	}

	var req applyCouponRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeBadRequest(ctx, w, err.Error())
		return
	}

	preview, err := h.coupons.Apply(ctx, services.ApplyCouponCommand{
		UserID: actor.ID,
		CartID: strings.TrimSpace(req.CartID),
		Code:   req.Code,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, applyCouponResponse{
		CartID:  preview.CartID,
		Coupon:  buildCouponPayload(preview.Coupon),
		Pricing: buildPricingPayload(preview.Pricing),
	})
}

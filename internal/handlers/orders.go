package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tiffinbox/api/internal/platform/auth"
	"github.com/tiffinbox/api/internal/platform/httpx"
	"github.com/tiffinbox/api/internal/services"
)

type createOrderRequest struct {
	CartID            string `json:"cartId"`
	CouponCode        string `json:"couponCode"`
	DeliveryAddressID string `json:"deliveryAddressId"`
}

type updateOrderRequest struct {
	CouponCode        *string `json:"couponCode"`
	DeliveryAddressID *string `json:"deliveryAddressId"`
	Status            *string `json:"status"`
}

type paymentIntentResponse struct {
	Payment        paymentPayload `json:"payment"`
	GatewayOrderID string         `json:"gatewayOrderId"`
	ClientSecret   string         `json:"clientSecret,omitempty"`
	AmountMinor    int64          `json:"amount"`
	Currency       string         `json:"currency"`
	Receipt        string         `json:"receipt"`
}

// OrderHandlers exposes the customer order endpoints.
type OrderHandlers struct {
	authn       *auth.Authenticator
	orders      services.OrderService
	payments    services.PaymentService
	idempotency func(http.Handler) http.Handler
}

// OrderHandlersOption customises OrderHandlers.
type OrderHandlersOption func(*OrderHandlers)

// WithOrderIdempotency guards order creation and payment initiation with mw.
func WithOrderIdempotency(mw func(http.Handler) http.Handler) OrderHandlersOption {
	return func(h *OrderHandlers) {
		h.idempotency = mw
	}
}

// NewOrderHandlers constructs OrderHandlers.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, payments services.PaymentService, opts ...OrderHandlersOption) *OrderHandlers {
	h := &OrderHandlers{authn: authn, orders: orders, payments: payments}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	guarded := r
	if h.idempotency != nil {
		guarded = r.With(h.idempotency)
	}
	guarded.Post("/", h.createOrder)
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Patch("/{orderID}", h.updateOrder)
	guarded.Post("/{orderID}/payments", h.initiatePayment)
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
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

	var req createOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeBadRequest(ctx, w, err.Error())
		return
	}

	order, err := h.orders.Create(ctx, services.CreateOrderCommand{
		UserID:            actor.ID,
		CartID:            strings.TrimSpace(req.CartID),
		CouponCode:        req.CouponCode,
		DeliveryAddressID: strings.TrimSpace(req.DeliveryAddressID),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, buildOrderPayload(order))
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
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

	orders, err := h.orders.ListByUser(ctx, actor.ID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": buildOrderPayloads(orders)})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
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

	detail, err := h.orders.Get(ctx, orderID, actor)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildOrderDetailPayload(detail))
}

func (h *OrderHandlers) updateOrder(w http.ResponseWriter, r *http.Request) {
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

	var req updateOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeBadRequest(ctx, w, err.Error())
		return
	}
	if req.CouponCode == nil && req.DeliveryAddressID == nil && req.Status == nil {
		writeBadRequest(ctx, w, "no updatable fields supplied")
		return
	}

	cmd := services.UserUpdateOrderCommand{
		OrderID:           orderID,
		Actor:             actor,
		CouponCode:        req.CouponCode,
		DeliveryAddressID: req.DeliveryAddressID,
	}
	if req.Status != nil {
		status := services.OrderStatus(strings.ToLower(strings.TrimSpace(*req.Status)))
		cmd.Status = &status
	}

	order, err := h.orders.UpdateByUser(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildOrderPayload(order))
}

func (h *OrderHandlers) initiatePayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		writeUnavailable(ctx, w, "payment")
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

	intent, err := h.payments.Initiate(ctx, services.InitiatePaymentCommand{OrderID: orderID, Actor: actor})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, paymentIntentResponse{
		Payment:        buildPaymentPayload(intent.Payment, nil),
		GatewayOrderID: intent.GatewayOrderID,
		ClientSecret:   intent.ClientSecret,
		AmountMinor:    intent.AmountMinor,
		Currency:       intent.Currency,
		Receipt:        intent.Receipt,
	})
}

// actorFromRequest derives the service actor from the authenticated identity.
func actorFromRequest(r *http.Request) (services.Actor, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || strings.TrimSpace(identity.UID) == "" {
		return services.Actor{}, false
	}
	return services.Actor{ID: identity.UID, Operator: identity.IsOperator()}, true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	id := strings.TrimSpace(chi.URLParam(r, name))
	if id == "" {
		writeBadRequest(r.Context(), w, name+" is required")
		return "", false
	}
	return id, true
}

package handlers

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/tiffinbox/api/internal/services"
)

type orderCouponPayload struct {
	ID                 string `json:"id"`
	Code               string `json:"code"`
	DiscountPercentage string `json:"discountPercentage"`
	MaxDiscountValue   string `json:"maxDiscountValue"`
}

type orderPayload struct {
	ID                string              `json:"id"`
	UserID            string              `json:"userId"`
	CartID            string              `json:"cartId"`
	DeliveryAddressID string              `json:"deliveryAddressId"`
	Coupon            *orderCouponPayload `json:"coupon,omitempty"`
	Currency          string              `json:"currency"`
	TotalAmount       string              `json:"totalAmount"`
	Discount          string              `json:"discount"`
	FinalPrice        string              `json:"finalPrice"`
	Status            string              `json:"status"`
	CreatedAt         string              `json:"createdAt"`
	UpdatedAt         string              `json:"updatedAt,omitempty"`
	ConfirmedAt       string              `json:"confirmedAt,omitempty"`
	DeliveredAt       string              `json:"deliveredAt,omitempty"`
	CancelledAt       string              `json:"cancelledAt,omitempty"`
}

type userPayload struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type cartItemPayload struct {
	MenuItemID string `json:"menuItemId"`
	Name       string `json:"name"`
	Quantity   int    `json:"quantity"`
	UnitPrice  string `json:"unitPrice"`
}

type cartPayload struct {
	ID         string            `json:"id"`
	Items      []cartItemPayload `json:"items"`
	TotalPrice string            `json:"totalPrice"`
	Status     string            `json:"status"`
}

type addressPayload struct {
	ID         string `json:"id"`
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
}

type orderDetailPayload struct {
	orderPayload
	User    *userPayload    `json:"user,omitempty"`
	Cart    *cartPayload    `json:"cart,omitempty"`
	Address *addressPayload `json:"deliveryAddress,omitempty"`
}

type paymentPayload struct {
	ID               string       `json:"id"`
	OrderID          string       `json:"orderId"`
	UserID           string       `json:"userId"`
	Amount           string       `json:"amount"`
	Currency         string       `json:"currency"`
	Status           string       `json:"status"`
	TransactionID    string       `json:"transactionId"`
	GatewayPaymentID string       `json:"gatewayPaymentId,omitempty"`
	Receipt          string       `json:"receipt,omitempty"`
	CreatedAt        string       `json:"createdAt"`
	VerifiedAt       string       `json:"verifiedAt,omitempty"`
	User             *userPayload `json:"user,omitempty"`
}

type couponPayload struct {
	ID                 string `json:"id"`
	Code               string `json:"code"`
	Description        string `json:"description,omitempty"`
	Active             bool   `json:"active"`
	ExpiresAt          string `json:"expiresAt"`
	MinOrderValue      string `json:"minOrderValue"`
	DiscountPercentage string `json:"discountPercentage"`
	MaxDiscountValue   string `json:"maxDiscountValue"`
	CreatedAt          string `json:"createdAt,omitempty"`
	UpdatedAt          string `json:"updatedAt,omitempty"`
}

type pricingPayload struct {
	Currency   string `json:"currency"`
	Total      string `json:"total"`
	Discount   string `json:"discount"`
	FinalPrice string `json:"finalPrice"`
	CouponCode string `json:"couponCode,omitempty"`
}

type menuItemPayload struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Category    string   `json:"category"`
	Price       string   `json:"price"`
	Available   bool     `json:"available"`
	ImageURL    string   `json:"imageUrl,omitempty"`
	Ingredients []string `json:"ingredients,omitempty"`
}

func money(value decimal.Decimal) string {
	return value.StringFixed(2)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:                order.ID,
		UserID:            order.UserID,
		CartID:            order.CartID,
		DeliveryAddressID: order.DeliveryAddressID,
		Currency:          order.Currency,
		TotalAmount:       money(order.TotalAmount),
		Discount:          money(order.Discount),
		FinalPrice:        money(order.FinalPrice),
		Status:            string(order.Status),
		CreatedAt:         formatTime(order.CreatedAt),
		UpdatedAt:         formatTime(order.UpdatedAt),
		ConfirmedAt:       formatTimePtr(order.ConfirmedAt),
		DeliveredAt:       formatTimePtr(order.DeliveredAt),
		CancelledAt:       formatTimePtr(order.CancelledAt),
	}
	if order.Coupon != nil {
		payload.Coupon = &orderCouponPayload{
			ID:                 order.Coupon.ID,
			Code:               order.Coupon.Code,
			DiscountPercentage: order.Coupon.DiscountPercentage.String(),
			MaxDiscountValue:   money(order.Coupon.MaxDiscountValue),
		}
	}
	return payload
}

func buildOrderPayloads(orders []services.Order) []orderPayload {
	items := make([]orderPayload, 0, len(orders))
	for _, order := range orders {
		items = append(items, buildOrderPayload(order))
	}
	return items
}

func buildOrderDetailPayload(detail services.OrderDetail) orderDetailPayload {
	payload := orderDetailPayload{
		orderPayload: buildOrderPayload(detail.Order),
		User:         buildUserPayload(detail.User),
	}
	if cart := detail.Cart; cart != nil {
		items := make([]cartItemPayload, 0, len(cart.Items))
		for _, item := range cart.Items {
			items = append(items, cartItemPayload{
				MenuItemID: item.MenuItemID,
				Name:       item.Name,
				Quantity:   item.Quantity,
				UnitPrice:  money(item.UnitPrice),
			})
		}
		payload.Cart = &cartPayload{ID: cart.ID, Items: items, TotalPrice: money(cart.TotalPrice), Status: string(cart.Status)}
	}
	if addr := detail.Address; addr != nil {
		payload.Address = &addressPayload{
			ID:         addr.ID,
			Street:     addr.Street,
			City:       addr.City,
			State:      addr.State,
			PostalCode: addr.PostalCode,
		}
	}
	return payload
}

func buildUserPayload(user *services.UserSummary) *userPayload {
	if user == nil {
		return nil
	}
	return &userPayload{ID: user.ID, Name: user.Name, Email: user.Email, Phone: user.Phone}
}

func buildPaymentPayload(payment services.Payment, user *services.UserSummary) paymentPayload {
	return paymentPayload{
		ID:               payment.ID,
		OrderID:          payment.OrderID,
		UserID:           payment.UserID,
		Amount:           money(payment.Amount),
		Currency:         payment.Currency,
		Status:           string(payment.Status),
		TransactionID:    payment.TransactionID,
		GatewayPaymentID: payment.GatewayPaymentID,
		Receipt:          payment.Receipt,
		CreatedAt:        formatTime(payment.CreatedAt),
		VerifiedAt:       formatTimePtr(payment.VerifiedAt),
		User:             buildUserPayload(user),
	}
}

func buildCouponPayload(coupon services.Coupon) couponPayload {
	return couponPayload{
		ID:                 coupon.ID,
		Code:               coupon.Code,
		Description:        coupon.Description,
		Active:             coupon.Active,
		ExpiresAt:          formatTime(coupon.ExpiresAt),
		MinOrderValue:      money(coupon.MinOrderValue),
		DiscountPercentage: coupon.DiscountPercentage.String(),
		MaxDiscountValue:   money(coupon.MaxDiscountValue),
		CreatedAt:          formatTime(coupon.CreatedAt),
		UpdatedAt:          formatTime(coupon.UpdatedAt),
	}
}

func buildPricingPayload(pricing services.PricingBreakdown) pricingPayload {
	return pricingPayload{
		Currency:   pricing.Currency,
		Total:      money(pricing.Total),
		Discount:   money(pricing.Discount),
		FinalPrice: money(pricing.FinalPrice),
		CouponCode: pricing.CouponCode,
	}
}

func buildMenuItemPayload(item services.MenuItem) menuItemPayload {
	return menuItemPayload{
		ID:          item.ID,
		Name:        item.Name,
		Description: item.Description,
		Category:    item.Category,
		Price:       money(item.Price),
		Available:   item.Available,
		ImageURL:    item.ImageURL,
		Ingredients: item.Ingredients,
	}
}

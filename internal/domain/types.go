package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is the ISO currency used for every order and payment.
const DefaultCurrency = "INR"

// SortOrder enumerates supported sort directions for list queries.
type SortOrder string

const (
	// SortAsc sorts ascending.
	SortAsc SortOrder = "asc"
	// SortDesc sorts descending.
	SortDesc SortOrder = "desc"
)

// OrderStatus enumerates the lifecycle states of an order.
type OrderStatus string

const (
	OrderStatusPending        OrderStatus = "pending"
	OrderStatusConfirmed      OrderStatus = "confirmed"
	OrderStatusPreparing      OrderStatus = "preparing"
	OrderStatusOutForDelivery OrderStatus = "out for delivery"
	OrderStatusDelivered      OrderStatus = "delivered"
	OrderStatusCancelled      OrderStatus = "cancelled"
)

// OrderProgression lists the forward fulfilment sequence. Cancelled is a side exit and not part of it.
var OrderProgression = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusPreparing,
	OrderStatusOutForDelivery,
	OrderStatusDelivered,
}

// IsTerminal reports whether no further transition is possible from the status.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// Valid reports whether the status is a recognised lifecycle value.
func (s OrderStatus) Valid() bool {
	if s == OrderStatusCancelled {
		return true
	}
	for _, candidate := range OrderProgression {
		if candidate == s {
			return true
		}
	}
	return false
}

// Order captures a purchase attempt placed against a cart.
type Order struct {
	ID                string
	UserID            string
	CartID            string
	Coupon            *OrderCoupon
	DeliveryAddressID string
	Currency          string
	TotalAmount       decimal.Decimal
	Discount          decimal.Decimal
	FinalPrice        decimal.Decimal
	Status            OrderStatus
	CreatedAt         time.Time
	UpdatedAt         time.Time
	ConfirmedAt       *time.Time
	DeliveredAt       *time.Time
	CancelledAt       *time.Time
}

// OrderCoupon snapshots the coupon terms applied when the order was priced.
type OrderCoupon struct {
	ID                 string
	Code               string
	DiscountPercentage decimal.Decimal
	MaxDiscountValue   decimal.Decimal
}

// Coupon is a discount rule identified by a unique code.
type Coupon struct {
	ID                 string
	Code               string
	Description        string
	Active             bool
	ExpiresAt          time.Time
	MinOrderValue      decimal.Decimal
	DiscountPercentage decimal.Decimal
	MaxDiscountValue   decimal.Decimal
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// PaymentStatus enumerates payment attempt states.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusSuccess PaymentStatus = "success"
)

// Payment records one attempt to pay for an order.
type Payment struct {
	ID               string
	OrderID          string
	UserID           string
	Amount           decimal.Decimal
	Currency         string
	Status           PaymentStatus
	TransactionID    string
	GatewayPaymentID string
	Receipt          string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	VerifiedAt       *time.Time
	NotifiedAt       *time.Time
}

// CartStatus enumerates cart states.
type CartStatus string

const (
	CartStatusActive  CartStatus = "active"
	CartStatusOrdered CartStatus = "ordered"
)

// Cart holds the line items a user intends to order.
type Cart struct {
	ID         string
	UserID     string
	Items      []CartItem
	TotalPrice decimal.Decimal
	Status     CartStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// CartItem is a single menu line in a cart.
type CartItem struct {
	MenuItemID string
	Name       string
	Quantity   int
	UnitPrice  decimal.Decimal
}

// Address is a delivery destination owned by a user.
type Address struct {
	ID         string
	UserID     string
	Street     string
	City       string
	State      string
	PostalCode string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// User carries the profile fields exposed alongside orders and payments.
type User struct {
	ID        string
	Name      string
	Email     string
	Phone     string
	Role      string
	CreatedAt time.Time
}

// MenuItem is a dish available for ordering.
type MenuItem struct {
	ID          string
	Name        string
	Description string
	Category    string
	Price       decimal.Decimal
	Available   bool
	Quantity    int
	ImageURL    string
	Ingredients []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

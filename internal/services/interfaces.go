package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/tiffinbox/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Order              = domain.Order
	OrderCoupon        = domain.OrderCoupon
	OrderStatus        = domain.OrderStatus
	Coupon             = domain.Coupon
	Payment            = domain.Payment
	PaymentStatus      = domain.PaymentStatus
	Cart               = domain.Cart
	CartItem           = domain.CartItem
	Address            = domain.Address
	User               = domain.User
	MenuItem           = domain.MenuItem
	PricingBreakdown   = domain.PricingBreakdown
	SystemHealthReport = domain.SystemHealthReport
)

// Actor identifies the caller of a service operation. Operator is set for staff roles
// allowed to act on any user's resources.
type Actor struct {
	ID       string
	Operator bool
}

// CanAccess reports whether the actor may read or act on a resource owned by ownerID.
func (a Actor) CanAccess(ownerID string) bool {
	return a.Operator || (a.ID != "" && a.ID == ownerID)
}

// PricingEngine computes discount and final price for a cart total.
type PricingEngine interface {
	Price(ctx context.Context, input PricingInput) (PricingBreakdown, error)
}

// PricingInput is the cart total plus the optional coupon to apply.
type PricingInput struct {
	CartTotal decimal.Decimal
	Coupon    *Coupon
}

// CouponValidator decides whether a coupon code applies to a cart total.
type CouponValidator interface {
	Validate(ctx context.Context, code string, cartTotal decimal.Decimal) (Coupon, error)
}

// CouponService manages coupon definitions and previews their effect on a cart.
type CouponService interface {
	List(ctx context.Context) ([]Coupon, error)
	Get(ctx context.Context, couponID string) (Coupon, error)
	Create(ctx context.Context, cmd UpsertCouponCommand) (Coupon, error)
	Update(ctx context.Context, couponID string, cmd UpsertCouponCommand) (Coupon, error)
	Delete(ctx context.Context, couponID string) error
	Apply(ctx context.Context, cmd ApplyCouponCommand) (CouponPreview, error)
}

// UpsertCouponCommand carries the editable coupon fields.
type UpsertCouponCommand struct {
	Code               string
	Description        string
	Active             bool
	ExpiresAt          time.Time
	MinOrderValue      decimal.Decimal
	DiscountPercentage decimal.Decimal
	MaxDiscountValue   decimal.Decimal
}

// ApplyCouponCommand previews a coupon against one of the user's carts.
type ApplyCouponCommand struct {
	UserID string
	CartID string
	Code   string
}

// CouponPreview is the priced result of applying a coupon without placing an order.
type CouponPreview struct {
	Coupon  Coupon
	CartID  string
	Pricing PricingBreakdown
}

// OrderService drives the order lifecycle.
type OrderService interface {
	Create(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	ListAll(ctx context.Context) ([]Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	Get(ctx context.Context, orderID string, actor Actor) (OrderDetail, error)
	UpdateByUser(ctx context.Context, cmd UserUpdateOrderCommand) (Order, error)
	Advance(ctx context.Context, cmd AdvanceOrderCommand) (Order, error)
}

// CreateOrderCommand places an order for a cart.
type CreateOrderCommand struct {
	UserID            string
	CartID            string
	CouponCode        string
	DeliveryAddressID string
}

// UserUpdateOrderCommand carries the fields a customer may change. Nil fields are left untouched.
type UserUpdateOrderCommand struct {
	OrderID           string
	Actor             Actor
	CouponCode        *string
	DeliveryAddressID *string
	Status            *OrderStatus
}

// AdvanceOrderCommand moves an order one step forward.
type AdvanceOrderCommand struct {
	OrderID string
	ActorID string
}

// OrderDetail composes an order with the documents it references.
type OrderDetail struct {
	Order   Order
	User    *UserSummary
	Cart    *Cart
	Address *Address
}

// UserSummary is the subset of a profile exposed next to orders and payments.
type UserSummary struct {
	ID    string
	Name  string
	Email string
	Phone string
}

// PaymentService reconciles gateway payments with orders.
type PaymentService interface {
	Initiate(ctx context.Context, cmd InitiatePaymentCommand) (PaymentIntent, error)
	Verify(ctx context.Context, cmd VerifyPaymentCommand) (VerifyPaymentResult, error)
	List(ctx context.Context) ([]PaymentWithUser, error)
	ExpireStale(ctx context.Context, olderThan time.Duration) (int, error)
}

// InitiatePaymentCommand starts a gateway payment for an order.
type InitiatePaymentCommand struct {
	OrderID string
	Actor   Actor
}

// PaymentIntent is returned to the client to complete payment with the gateway.
type PaymentIntent struct {
	Payment        Payment
	GatewayOrderID string
	ClientSecret   string
	AmountMinor    int64
	Currency       string
	Receipt        string
}

// VerifyPaymentCommand is the gateway callback payload.
type VerifyPaymentCommand struct {
	GatewayOrderID string
	PaymentID      string
	Signature      string
}

// VerifyPaymentResult reports the reconciled payment. AlreadyVerified marks a replayed callback.
type VerifyPaymentResult struct {
	Payment         Payment
	Order           Order
	AlreadyVerified bool
}

// PaymentWithUser composes a payment with its payer's profile.
type PaymentWithUser struct {
	Payment Payment
	User    *UserSummary
}

// MenuService serves the dish catalog.
type MenuService interface {
	List(ctx context.Context, filter MenuFilter) ([]MenuItem, error)
	Get(ctx context.Context, itemID string) (MenuItem, error)
	Search(ctx context.Context, name string) ([]MenuItem, error)
}

// MenuFilter narrows menu listings.
type MenuFilter struct {
	Category      string
	AvailableOnly bool
}

// SystemService exposes operational metadata for health endpoints.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string
	OrderID        string
	UserID         string
	PreviousStatus string
	CurrentStatus  string
	ActorID        string
	FinalPrice     string
	OccurredAt     time.Time
}

// OperatorNotifier tells restaurant staff that an order has been paid.
type OperatorNotifier interface {
	NotifyPaymentReceived(ctx context.Context, notice PaymentNotice) error
}

// PaymentNotice is the content of the operator notification.
type PaymentNotice struct {
	OrderID    string
	PaymentID  string
	UserID     string
	UserName   string
	UserEmail  string
	Amount     string
	Currency   string
	VerifiedAt time.Time
}

// PaymentLocker serialises verification of a single gateway transaction across instances.
type PaymentLocker interface {
	Acquire(ctx context.Context, key string) (release func(context.Context) error, err error)
}

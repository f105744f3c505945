package repositories

import (
	"context"
	"time"

	domain "github.com/tiffinbox/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	Payments() PaymentRepository
	Carts() CartRepository
	Coupons() CouponRepository
	Addresses() AddressRepository
	Users() UserRepository
	Menu() MenuRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
// Reads issued through fn must precede its writes.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderRepository persists order documents.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) ([]domain.Order, error)
}

// OrderListFilter narrows order listings. An empty UserID lists every order.
type OrderListFilter struct {
	UserID string
	Limit  int
}

// PaymentRepository persists payment attempts keyed by payment id and looked up by gateway transaction id.
type PaymentRepository interface {
	Insert(ctx context.Context, payment domain.Payment) error
	Update(ctx context.Context, payment domain.Payment) error
	FindByID(ctx context.Context, paymentID string) (domain.Payment, error)
	FindByTransactionID(ctx context.Context, transactionID string) (domain.Payment, error)
	ListByOrder(ctx context.Context, orderID string) ([]domain.Payment, error)
	List(ctx context.Context, filter PaymentListFilter) ([]domain.Payment, error)
	ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Payment, error)
	Delete(ctx context.Context, paymentID string) error
}

// PaymentListFilter narrows payment listings.
type PaymentListFilter struct {
	Status domain.PaymentStatus
	Limit  int
}

// CartRepository reads carts and flips their status once ordered.
type CartRepository interface {
	FindByID(ctx context.Context, cartID string) (domain.Cart, error)
	UpdateStatus(ctx context.Context, cartID string, status domain.CartStatus, updatedAt time.Time) error
}

// CouponRepository stores coupon definitions keyed by id with a unique normalised code.
type CouponRepository interface {
	Insert(ctx context.Context, coupon domain.Coupon) error
	Update(ctx context.Context, coupon domain.Coupon) error
	Delete(ctx context.Context, couponID string) error
	FindByID(ctx context.Context, couponID string) (domain.Coupon, error)
	FindByCode(ctx context.Context, code string) (domain.Coupon, error)
	List(ctx context.Context) ([]domain.Coupon, error)
}

// AddressRepository reads delivery addresses.
type AddressRepository interface {
	FindByID(ctx context.Context, addressID string) (domain.Address, error)
}

// UserRepository reads user profiles.
type UserRepository interface {
	FindByID(ctx context.Context, userID string) (domain.User, error)
	FindByIDs(ctx context.Context, userIDs []string) ([]domain.User, error)
}

// MenuRepository reads the dish catalog.
type MenuRepository interface {
	List(ctx context.Context, filter MenuListFilter) ([]domain.MenuItem, error)
	FindByID(ctx context.Context, itemID string) (domain.MenuItem, error)
	Upsert(ctx context.Context, item domain.MenuItem) error
}

// MenuListFilter narrows menu listings.
type MenuListFilter struct {
	Category      string
	AvailableOnly bool
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

package firestore

import (
	"context"
	"errors"
	"fmt"

	pfirestore "github.com/tiffinbox/api/internal/platform/firestore"
	"github.com/tiffinbox/api/internal/repositories"
)

// Registry exposes the Firestore repositories behind repositories.Registry.
type Registry struct {
	provider  *pfirestore.Provider
	orders    *OrderRepository
	payments  *PaymentRepository
	carts     *CartRepository
	coupons   *CouponRepository
	addresses *AddressRepository
	users     *UserRepository
	menu      *MenuRepository
	health    repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry builds every repository on the shared provider. health may be nil.
func NewRegistry(provider *pfirestore.Provider, health repositories.HealthRepository) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry requires provider")
	}
	reg := &Registry{provider: provider, health: health}

	var err error
	if reg.orders, err = NewOrderRepository(provider); err != nil {
		return nil, fmt.Errorf("orders: %w", err)
	}
	if reg.payments, err = NewPaymentRepository(provider); err != nil {
		return nil, fmt.Errorf("payments: %w", err)
	}
	if reg.carts, err = NewCartRepository(provider); err != nil {
		return nil, fmt.Errorf("carts: %w", err)
	}
	if reg.coupons, err = NewCouponRepository(provider); err != nil {
		return nil, fmt.Errorf("coupons: %w", err)
	}
	if reg.addresses, err = NewAddressRepository(provider); err != nil {
		return nil, fmt.Errorf("addresses: %w", err)
	}
	if reg.users, err = NewUserRepository(provider); err != nil {
		return nil, fmt.Errorf("users: %w", err)
	}
	if reg.menu, err = NewMenuRepository(provider); err != nil {
		return nil, fmt.Errorf("menu: %w", err)
	}
	return reg, nil
}

func (r *Registry) Close(ctx context.Context) error { return r.provider.Close(ctx) }

func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.provider.RunInTx(ctx, fn)
}

func (r *Registry) Orders() repositories.OrderRepository { return r.orders }
func (r *Registry) Payments() repositories.PaymentRepository { return r.payments }
func (r *Registry) Carts() repositories.CartRepository { return r.carts }
func (r *Registry) Coupons() repositories.CouponRepository { return r.coupons }
func (r *Registry) Addresses() repositories.AddressRepository { return r.addresses }
func (r *Registry) Users() repositories.UserRepository { return r.users }
func (r *Registry) Menu() repositories.MenuRepository { return r.menu }
func (r *Registry) Health() repositories.HealthRepository { return r.health }

package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/tiffinbox/api/internal/payments"
	"github.com/tiffinbox/api/internal/platform/config"
	"github.com/tiffinbox/api/internal/repositories"
	"github.com/tiffinbox/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Pricing  services.PricingEngine
	Coupons  services.CouponService
	Orders   services.OrderService
	Payments services.PaymentService
	Menu     services.MenuService
	System   services.SystemService
}

// Infrastructure carries the external adapters the services depend on. Optional members may be
// nil: orders are then placed without events, payments verified without locks or operator
// notices.
type Infrastructure struct {
	Gateway    payments.Gateway
	Signatures services.SignatureVerifier
	Locker     services.PaymentLocker
	Notifier   services.OperatorNotifier
	Events     services.OrderEventPublisher
	Meter      metric.Meter
	Logger     func(ctx context.Context, event string, fields map[string]any)
	Build      services.BuildInfo
	Clock      func() time.Time
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
	Reaper       *services.PendingPaymentReaper
}

// NewContainer constructs the runtime dependencies. Production wiring provides Firestore
// repositories, while tests can supply in-memory registries.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, infra Infrastructure) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}
	if infra.Clock == nil {
		infra.Clock = time.Now
	}

	reaper := services.NewPendingPaymentReaper(services.PendingPaymentReaperConfig{
		Timeout:       cfg.Payments.PendingTimeout,
		SweepInterval: cfg.Payments.SweepInterval,
		Logger:        infra.Logger,
	})

	svc, err := buildServices(ctx, reg, cfg, infra, reaper)
	if err != nil {
		reaper.Stop()
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
		Reaper:       reaper,
	}, nil
}

// Close stops pending payment timers and releases repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	if c.Reaper != nil {
		c.Reaper.Stop()
	}
	if c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, reg repositories.Registry, cfg config.Config, infra Infrastructure, reaper *services.PendingPaymentReaper) (Services, error) {
	var svc Services

	svc.Pricing = services.NewPricingEngine(cfg.Gateway.Currency)

	validator, err := services.NewCouponValidator(services.CouponValidatorDeps{
		Coupons: reg.Coupons(),
		Clock:   infra.Clock,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build coupon validator: %w", err)
	}

	couponSvc, err := services.NewCouponService(services.CouponServiceDeps{
		Coupons:   reg.Coupons(),
		Carts:     reg.Carts(),
		Validator: validator,
		Pricing:   svc.Pricing,
		Clock:     infra.Clock,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build coupon service: %w", err)
	}
	svc.Coupons = couponSvc

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:     reg.Orders(),
		Carts:      reg.Carts(),
		Addresses:  reg.Addresses(),
		Users:      reg.Users(),
		Coupons:    validator,
		Pricing:    svc.Pricing,
		UnitOfWork: reg,
		Clock:      infra.Clock,
		Events:     infra.Events,
		Logger:     infra.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	paymentSvc, err := services.NewPaymentService(services.PaymentServiceDeps{
		Payments:   reg.Payments(),
		Orders:     reg.Orders(),
		Carts:      reg.Carts(),
		Users:      reg.Users(),
		Gateway:    infra.Gateway,
		Signatures: infra.Signatures,
		Locker:     infra.Locker,
		Notifier:   infra.Notifier,
		Scheduler:  reaper,
		Events:     infra.Events,
		UnitOfWork: reg,
		Meter:      infra.Meter,
		Currency:   cfg.Gateway.Currency,
		SweepBatch: cfg.Payments.SweepBatch,
		Clock:      infra.Clock,
		Logger:     infra.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build payment service: %w", err)
	}
	svc.Payments = paymentSvc

	menuSvc, err := services.NewMenuService(services.MenuServiceDeps{Menu: reg.Menu()})
	if err != nil {
		return Services{}, fmt.Errorf("build menu service: %w", err)
	}
	svc.Menu = menuSvc

	if healthRepo := reg.Health(); healthRepo != nil {
		build := infra.Build
		if build.Environment == "" {
			build.Environment = cfg.Security.Environment
		}
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            infra.Clock,
			Build:            build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}

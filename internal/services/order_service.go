package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	domain "github.com/tiffinbox/api/internal/domain"
	"github.com/tiffinbox/api/internal/repositories"
)

const (
	orderEventCreated       = "order.created"
	orderEventStatusChanged = "order.status_changed"
	orderEventCancelled     = "order.cancelled"
	orderEventRepriced      = "order.repriced"

	orderIDPrefix = "ord_"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderCartNotFound indicates the referenced cart is missing or belongs to someone else.
	ErrOrderCartNotFound = errors.New("order: cart not found")
	// ErrOrderAddressNotFound indicates the delivery address is missing or belongs to someone else.
	ErrOrderAddressNotFound = errors.New("order: delivery address not found")
	// ErrOrderInvalidState indicates the requested change is not allowed in the current status.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrOrderForbidden indicates the caller may not perform the operation on this order.
	ErrOrderForbidden = errors.New("order: forbidden")
	// ErrOrderAlreadyCancelled indicates the order was cancelled and can no longer change.
	ErrOrderAlreadyCancelled = errors.New("order: already cancelled")
	// ErrOrderTerminalState indicates the order cannot advance any further.
	ErrOrderTerminalState = errors.New("order: terminal state")
	// ErrOrderConflict indicates a concurrent write or duplicate.
	ErrOrderConflict = errors.New("order: conflict")
)

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Carts       repositories.CartRepository
	Addresses   repositories.AddressRepository
	Users       repositories.UserRepository
	Coupons     CouponValidator
	Pricing     PricingEngine
	UnitOfWork  repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders     repositories.OrderRepository
	carts      repositories.CartRepository
	addresses  repositories.AddressRepository
	users      repositories.UserRepository
	coupons    CouponValidator
	pricing    PricingEngine
	unitOfWork repositories.UnitOfWork
	clock      func() time.Time
	newID      func() string
	events     OrderEventPublisher
	logger     func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Carts == nil {
		return nil, errors.New("order service: cart repository is required")
	}
	if deps.Addresses == nil {
		return nil, errors.New("order service: address repository is required")
	}
	if deps.Coupons == nil {
		return nil, errors.New("order service: coupon validator is required")
	}

	pricing := deps.Pricing
	if pricing == nil {
		pricing = NewPricingEngine(domain.DefaultCurrency)
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:     deps.Orders,
		carts:      deps.Carts,
		addresses:  deps.Addresses,
		users:      deps.Users,
		coupons:    deps.Coupons,
		pricing:    pricing,
		unitOfWork: unit,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		events: deps.Events,
		logger: logger,
	}, nil
}

func (s *orderService) Create(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Order{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	cartID := strings.TrimSpace(cmd.CartID)
	if cartID == "" {
		return Order{}, newReasonError(ErrOrderInvalidInput, "Cart is required")
	}
	addressID := strings.TrimSpace(cmd.DeliveryAddressID)
	if addressID == "" {
		return Order{}, newReasonError(ErrOrderInvalidInput, "Delivery address is required")
	}

	var order Order
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		cart, err := s.loadCart(txCtx, cartID, userID)
		if err != nil {
			return err
		}
		if cart.Status != domain.CartStatusActive {
			return newReasonError(ErrOrderInvalidState, "Cart has already been ordered")
		}
		if err := s.checkAddress(txCtx, addressID, userID); err != nil {
			return err
		}

		pricing, coupon, err := s.price(txCtx, cart.TotalPrice, cmd.CouponCode)
		if err != nil {
			return err
		}

		now := s.now()
		order = Order{
			ID:                s.nextOrderID(),
			UserID:            userID,
			CartID:            cart.ID,
			Coupon:            coupon,
			DeliveryAddressID: addressID,
			Currency:          pricing.Currency,
			TotalAmount:       pricing.Total,
			Discount:          pricing.Discount,
			FinalPrice:        pricing.FinalPrice,
			Status:            domain.OrderStatusPending,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := s.orders.Insert(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventCreated,
		OrderID:       order.ID,
		UserID:        order.UserID,
		CurrentStatus: string(order.Status),
		ActorID:       userID,
		FinalPrice:    order.FinalPrice.StringFixed(2),
		OccurredAt:    order.CreatedAt,
	})
	return order, nil
}

func (s *orderService) ListAll(ctx context.Context) ([]Order, error) {
	orders, err := s.orders.List(ctx, repositories.OrderListFilter{})
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return orders, nil
}

func (s *orderService) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	orders, err := s.orders.List(ctx, repositories.OrderListFilter{UserID: userID})
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return orders, nil
}

// Get returns the order with its user, cart and address. Missing references are left nil.
func (s *orderService) Get(ctx context.Context, orderID string, actor Actor) (OrderDetail, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return OrderDetail{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return OrderDetail{}, s.mapRepositoryError(err)
	}
	if !actor.CanAccess(order.UserID) {
		return OrderDetail{}, newReasonError(ErrOrderForbidden, "You are not allowed to view this order")
	}

	detail := OrderDetail{Order: order}

	if s.users != nil {
		user, err := s.users.FindByID(ctx, order.UserID)
		switch {
		case err == nil:
			detail.User = summarizeUser(user)
		case !isRepositoryNotFound(err):
			return OrderDetail{}, s.mapRepositoryError(err)
		}
	}

	cart, err := s.carts.FindByID(ctx, order.CartID)
	switch {
	case err == nil:
		detail.Cart = &cart
	case !isRepositoryNotFound(err):
		return OrderDetail{}, s.mapRepositoryError(err)
	}

	address, err := s.addresses.FindByID(ctx, order.DeliveryAddressID)
	switch {
	case err == nil:
		detail.Address = &address
	case !isRepositoryNotFound(err):
		return OrderDetail{}, s.mapRepositoryError(err)
	}

	return detail, nil
}

// UpdateByUser applies coupon, address and status changes requested through the customer API.
// The only status accepted here is cancelled; forward moves go through Advance. Coupon and address
// changes are accepted only while the order is pending, and coupon changes re-price it.
func (s *orderService) UpdateByUser(ctx context.Context, cmd UserUpdateOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if cmd.CouponCode == nil && cmd.DeliveryAddressID == nil && cmd.Status == nil {
		return Order{}, newReasonError(ErrOrderInvalidInput, "No changes requested")
	}

	var (
		updated  Order
		previous OrderStatus
		repriced bool
	)
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if !cmd.Actor.CanAccess(order.UserID) {
			return newReasonError(ErrOrderForbidden, "You are not allowed to update this order")
		}
		if order.Status == domain.OrderStatusCancelled {
			return newReasonError(ErrOrderAlreadyCancelled, "Order is already cancelled")
		}
		previous = order.Status
		now := s.now()

		if cmd.DeliveryAddressID != nil {
			if order.Status != domain.OrderStatusPending {
				return newReasonError(ErrOrderInvalidState, "Delivery address can only be changed before payment")
			}
			addressID := strings.TrimSpace(*cmd.DeliveryAddressID)
			if addressID == "" {
				return newReasonError(ErrOrderInvalidInput, "Delivery address is required")
			}
			if err := s.checkAddress(txCtx, addressID, order.UserID); err != nil {
				return err
			}
			order.DeliveryAddressID = addressID
		}

		if cmd.CouponCode != nil {
			if order.Status != domain.OrderStatusPending {
				return newReasonError(ErrOrderInvalidState, "Coupon can only be changed before payment")
			}
			pricing, coupon, err := s.price(txCtx, order.TotalAmount, *cmd.CouponCode)
			if err != nil {
				return err
			}
			order.Coupon = coupon
			order.Discount = pricing.Discount
			order.FinalPrice = pricing.FinalPrice
			repriced = true
		}

		if cmd.Status != nil {
			if err := s.applyUserStatus(&order, *cmd.Status, cmd.Actor, now); err != nil {
				return err
			}
		}

		order.UpdatedAt = now
		if err := s.orders.Update(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		updated = order
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	event := OrderEvent{
		OrderID:        updated.ID,
		UserID:         updated.UserID,
		PreviousStatus: string(previous),
		CurrentStatus:  string(updated.Status),
		ActorID:        cmd.Actor.ID,
		FinalPrice:     updated.FinalPrice.StringFixed(2),
		OccurredAt:     updated.UpdatedAt,
	}
	switch {
	case updated.Status == domain.OrderStatusCancelled:
		event.Type = orderEventCancelled
		s.publishEvent(ctx, event)
	case updated.Status != previous:
		event.Type = orderEventStatusChanged
		s.publishEvent(ctx, event)
	case repriced:
		event.Type = orderEventRepriced
		s.publishEvent(ctx, event)
	}
	return updated, nil
}

// Advance moves the order to the next fulfilment status.
func (s *orderService) Advance(ctx context.Context, cmd AdvanceOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	var (
		updated  Order
		previous OrderStatus
	)
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		next, ok := nextStatus(order.Status)
		if !ok {
			return newReasonError(ErrOrderTerminalState, "Order cannot be advanced from status %q", order.Status)
		}
		previous = order.Status
		now := s.now()
		order.Status = next
		order.UpdatedAt = now
		stampStatus(&order, next, now)
		if err := s.orders.Update(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		updated = order
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        updated.ID,
		UserID:         updated.UserID,
		PreviousStatus: string(previous),
		CurrentStatus:  string(updated.Status),
		ActorID:        strings.TrimSpace(cmd.ActorID),
		FinalPrice:     updated.FinalPrice.StringFixed(2),
		OccurredAt:     updated.UpdatedAt,
	})
	return updated, nil
}

func (s *orderService) applyUserStatus(order *Order, target OrderStatus, actor Actor, now time.Time) error {
	target = OrderStatus(strings.TrimSpace(string(target)))
	if target != domain.OrderStatusCancelled {
		if !actor.Operator {
			return newReasonError(ErrOrderForbidden, "users are only allowed to cancel orders")
		}
		return newReasonError(ErrOrderInvalidState, "Order status %q can only be reached through the advance endpoint", target)
	}
	if order.Status.IsTerminal() {
		return newReasonError(ErrOrderInvalidState, "Delivered orders cannot be cancelled")
	}
	order.Status = domain.OrderStatusCancelled
	stampStatus(order, target, now)
	return nil
}

func (s *orderService) loadCart(ctx context.Context, cartID, userID string) (Cart, error) {
	cart, err := s.carts.FindByID(ctx, cartID)
	if err != nil {
		if isRepositoryNotFound(err) {
			return Cart{}, newReasonError(ErrOrderCartNotFound, "Cart not found")
		}
		return Cart{}, s.mapRepositoryError(err)
	}
	if cart.UserID != userID {
		return Cart{}, newReasonError(ErrOrderCartNotFound, "Cart not found")
	}
	return cart, nil
}

func (s *orderService) checkAddress(ctx context.Context, addressID, userID string) error {
	address, err := s.addresses.FindByID(ctx, addressID)
	if err != nil {
		if isRepositoryNotFound(err) {
			return newReasonError(ErrOrderAddressNotFound, "Delivery address not found")
		}
		return s.mapRepositoryError(err)
	}
	if address.UserID != userID {
		return newReasonError(ErrOrderAddressNotFound, "Delivery address not found")
	}
	return nil
}

// price validates the optional coupon against total and returns the breakdown plus the snapshot
// stored on the order. An empty code prices without a coupon.
func (s *orderService) price(ctx context.Context, total decimal.Decimal, code string) (PricingBreakdown, *OrderCoupon, error) {
	var (
		coupon   *Coupon
		snapshot *OrderCoupon
	)
	if strings.TrimSpace(code) != "" {
		validated, err := s.coupons.Validate(ctx, code, total)
		if err != nil {
			return PricingBreakdown{}, nil, err
		}
		coupon = &validated
		snapshot = &OrderCoupon{
			ID:                 validated.ID,
			Code:               validated.Code,
			DiscountPercentage: validated.DiscountPercentage,
			MaxDiscountValue:   validated.MaxDiscountValue,
		}
	}
	pricing, err := s.pricing.Price(ctx, PricingInput{CartTotal: total, Coupon: coupon})
	if err != nil {
		return PricingBreakdown{}, nil, fmt.Errorf("%w: %v", ErrOrderInvalidInput, err)
	}
	return pricing, snapshot, nil
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) nextOrderID() string {
	return orderIDPrefix + s.newID()
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": event.CurrentStatus,
		})
	}
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

// nextStatus returns the status after current in the fulfilment progression.
func nextStatus(current OrderStatus) (OrderStatus, bool) {
	idx := slices.Index(domain.OrderProgression, current)
	if idx < 0 || idx == len(domain.OrderProgression)-1 {
		return "", false
	}
	return domain.OrderProgression[idx+1], true
}

func stampStatus(order *Order, status OrderStatus, now time.Time) {
	switch status {
	case domain.OrderStatusConfirmed:
		if order.ConfirmedAt == nil {
			order.ConfirmedAt = &now
		}
	case domain.OrderStatusDelivered:
		order.DeliveredAt = &now
	case domain.OrderStatusCancelled:
		if order.CancelledAt == nil {
			order.CancelledAt = &now
		}
	}
}

func summarizeUser(user User) *UserSummary {
	return &UserSummary{
		ID:    user.ID,
		Name:  user.Name,
		Email: user.Email,
		Phone: user.Phone,
	}
}

func isRepositoryNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

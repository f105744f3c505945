package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/tiffinbox/api/internal/domain"
)

type orderFixture struct {
	now       time.Time
	orders    *memOrderRepo
	carts     *memCartRepo
	coupons   *memCouponRepo
	addresses *memAddressRepo
	users     *memUserRepo
	events    *captureOrderEvents
	unit      *countingUnitOfWork
	svc       OrderService
}

func newOrderFixture(t *testing.T, orders ...domain.Order) *orderFixture {
	t.Helper()
	now := time.Date(2025, time.April, 2, 12, 0, 0, 0, time.UTC)
	f := &orderFixture{
		now:    now,
		orders: newMemOrderRepo(orders...),
		carts: newMemCartRepo(
			domain.Cart{ID: "cart_1", UserID: "user_1", TotalPrice: dec(t, "1000"), Status: domain.CartStatusActive},
			domain.Cart{ID: "cart_big", UserID: "user_1", TotalPrice: dec(t, "2000"), Status: domain.CartStatusActive},
			domain.Cart{ID: "cart_done", UserID: "user_1", TotalPrice: dec(t, "300"), Status: domain.CartStatusOrdered},
			domain.Cart{ID: "cart_other", UserID: "user_2", TotalPrice: dec(t, "300"), Status: domain.CartStatusActive},
		),
		coupons: newMemCouponRepo(domain.Coupon{
			ID:                 "cpn_save",
			Code:               "SAVE10",
			Active:             true,
			ExpiresAt:          now.Add(24 * time.Hour),
			MinOrderValue:      dec(t, "500"),
			DiscountPercentage: dec(t, "10"),
			MaxDiscountValue:   dec(t, "150"),
		}, domain.Coupon{
			ID:                 "cpn_big",
			Code:               "BIG20",
			Active:             true,
			ExpiresAt:          now.Add(24 * time.Hour),
			MinOrderValue:      dec(t, "0"),
			DiscountPercentage: dec(t, "20"),
			MaxDiscountValue:   dec(t, "150"),
		}),
		addresses: &memAddressRepo{addresses: map[string]domain.Address{
			"addr_1":     {ID: "addr_1", UserID: "user_1", Street: "12 MG Road", City: "Pune"},
			"addr_2":     {ID: "addr_2", UserID: "user_1", Street: "4 FC Road", City: "Pune"},
			"addr_other": {ID: "addr_other", UserID: "user_2"},
		}},
		users: &memUserRepo{users: map[string]domain.User{
			"user_1": {ID: "user_1", Name: "Asha", Email: "asha@example.com"},
		}},
		events: &captureOrderEvents{},
		unit:   &countingUnitOfWork{},
	}

	validator, err := NewCouponValidator(CouponValidatorDeps{Coupons: f.coupons, Clock: fixedClock(now)})
	if err != nil {
		t.Fatalf("NewCouponValidator: %v", err)
	}
	svc, err := NewOrderService(OrderServiceDeps{
		Orders:      f.orders,
		Carts:       f.carts,
		Addresses:   f.addresses,
		Users:       f.users,
		Coupons:     validator,
		UnitOfWork:  f.unit,
		Clock:       fixedClock(now),
		IDGenerator: sequentialIDs("A", "B", "C"),
		Events:      f.events,
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}
	f.svc = svc
	return f
}

func pendingOrder(t *testing.T, id string) domain.Order {
	t.Helper()
	return domain.Order{
		ID:                id,
		UserID:            "user_1",
		CartID:            "cart_1",
		DeliveryAddressID: "addr_1",
		Currency:          "INR",
		TotalAmount:       dec(t, "1000"),
		Discount:          dec(t, "0"),
		FinalPrice:        dec(t, "1000"),
		Status:            domain.OrderStatusPending,
	}
}

func statusPtr(status domain.OrderStatus) *domain.OrderStatus { return &status }
func strPtr(value string) *string                             { return &value }

func TestOrderServiceCreateAppliesCoupon(t *testing.T) {
	f := newOrderFixture(t)

	order, err := f.svc.Create(context.Background(), CreateOrderCommand{
		UserID:            "user_1",
		CartID:            "cart_1",
		CouponCode:        "save10",
		DeliveryAddressID: "addr_1",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if order.ID != "ord_A" {
		t.Fatalf("expected generated id ord_A, got %s", order.ID)
	}
	if order.Status != domain.OrderStatusPending {
		t.Fatalf("expected pending, got %s", order.Status)
	}
	if got := order.FinalPrice.StringFixed(2); got != "900.00" {
		t.Fatalf("expected final price 900.00, got %s", got)
	}
	if order.Coupon == nil || order.Coupon.ID != "cpn_save" {
		t.Fatalf("expected coupon snapshot, got %#v", order.Coupon)
	}
	if !order.CreatedAt.Equal(f.now) {
		t.Fatalf("expected createdAt %s, got %s", f.now, order.CreatedAt)
	}
	if f.unit.calls != 1 {
		t.Fatalf("expected single transaction, got %d", f.unit.calls)
	}
	if len(f.events.events) != 1 || f.events.events[0].Type != orderEventCreated {
		t.Fatalf("expected created event, got %#v", f.events.events)
	}
	if _, err := f.orders.FindByID(context.Background(), order.ID); err != nil {
		t.Fatalf("expected order persisted: %v", err)
	}
}

func TestOrderServiceCreateCapsDiscount(t *testing.T) {
	f := newOrderFixture(t)

	order, err := f.svc.Create(context.Background(), CreateOrderCommand{
		UserID: "user_1", CartID: "cart_big", CouponCode: "BIG20", DeliveryAddressID: "addr_1",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if got := order.FinalPrice.StringFixed(2); got != "1850.00" {
		t.Fatalf("expected 1850.00, got %s", got)
	}
	if got := order.Discount.StringFixed(2); got != "150.00" {
		t.Fatalf("expected capped discount 150.00, got %s", got)
	}
}

func TestOrderServiceCreateFailures(t *testing.T) {
	cases := []struct {
		name string
		cmd  CreateOrderCommand
		want error
	}{
		{name: "missing cart", cmd: CreateOrderCommand{UserID: "user_1", DeliveryAddressID: "addr_1"}, want: ErrOrderInvalidInput},
		{name: "missing address", cmd: CreateOrderCommand{UserID: "user_1", CartID: "cart_1"}, want: ErrOrderInvalidInput},
		{name: "unknown cart", cmd: CreateOrderCommand{UserID: "user_1", CartID: "cart_x", DeliveryAddressID: "addr_1"}, want: ErrOrderCartNotFound},
		{name: "someone else's cart", cmd: CreateOrderCommand{UserID: "user_1", CartID: "cart_other", DeliveryAddressID: "addr_1"}, want: ErrOrderCartNotFound},
		{name: "already ordered cart", cmd: CreateOrderCommand{UserID: "user_1", CartID: "cart_done", DeliveryAddressID: "addr_1"}, want: ErrOrderInvalidState},
		{name: "someone else's address", cmd: CreateOrderCommand{UserID: "user_1", CartID: "cart_1", DeliveryAddressID: "addr_other"}, want: ErrOrderAddressNotFound},
		{name: "invalid coupon", cmd: CreateOrderCommand{UserID: "user_1", CartID: "cart_1", DeliveryAddressID: "addr_1", CouponCode: "NOPE"}, want: ErrCouponNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newOrderFixture(t)
			_, err := f.svc.Create(context.Background(), tc.cmd)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if len(f.orders.orders) != 0 {
				t.Fatalf("expected no order persisted")
			}
			if len(f.events.events) != 0 {
				t.Fatalf("expected no events")
			}
		})
	}
}

func TestOrderServiceGetEnforcesOwnership(t *testing.T) {
	f := newOrderFixture(t, pendingOrder(t, "ord_1"))
	ctx := context.Background()

	detail, err := f.svc.Get(ctx, "ord_1", Actor{ID: "user_1"})
	if err != nil {
		t.Fatalf("owner Get: %v", err)
	}
	if detail.User == nil || detail.User.Email != "asha@example.com" {
		t.Fatalf("expected user composition, got %#v", detail.User)
	}
	if detail.Cart == nil || detail.Address == nil || detail.Address.City != "Pune" {
		t.Fatalf("expected cart and address composition, got %#v", detail)
	}

	if _, err := f.svc.Get(ctx, "ord_1", Actor{ID: "admin_1", Operator: true}); err != nil {
		t.Fatalf("operator Get: %v", err)
	}
	if _, err := f.svc.Get(ctx, "ord_1", Actor{ID: "user_2"}); !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("expected forbidden for stranger, got %v", err)
	}
	if _, err := f.svc.Get(ctx, "ord_missing", Actor{ID: "user_1"}); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestOrderServiceListsNewestFirst(t *testing.T) {
	older := pendingOrder(t, "ord_old")
	older.CreatedAt = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	newer := pendingOrder(t, "ord_new")
	newer.CreatedAt = time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC)
	foreign := pendingOrder(t, "ord_foreign")
	foreign.UserID = "user_2"
	foreign.CreatedAt = time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	f := newOrderFixture(t, older, newer, foreign)

	mine, err := f.svc.ListByUser(context.Background(), "user_1")
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(mine) != 2 || mine[0].ID != "ord_new" {
		t.Fatalf("unexpected user listing %#v", mine)
	}

	all, err := f.svc.ListAll(context.Background())
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(all) != 3 || all[0].ID != "ord_foreign" {
		t.Fatalf("unexpected full listing %#v", all)
	}
}

func TestOrderServiceUpdateByUserCancel(t *testing.T) {
	f := newOrderFixture(t, pendingOrder(t, "ord_1"))

	order, err := f.svc.UpdateByUser(context.Background(), UserUpdateOrderCommand{
		OrderID: "ord_1",
		Actor:   Actor{ID: "user_1"},
		Status:  statusPtr(domain.OrderStatusCancelled),
	})
	if err != nil {
		t.Fatalf("UpdateByUser: %v", err)
	}
	if order.Status != domain.OrderStatusCancelled || order.CancelledAt == nil {
		t.Fatalf("expected cancelled order with timestamp, got %#v", order)
	}
	if len(f.events.events) != 1 || f.events.events[0].Type != orderEventCancelled {
		t.Fatalf("expected cancelled event, got %#v", f.events.events)
	}

	_, err = f.svc.UpdateByUser(context.Background(), UserUpdateOrderCommand{
		OrderID:           "ord_1",
		Actor:             Actor{ID: "user_1"},
		DeliveryAddressID: strPtr("addr_2"),
	})
	if !errors.Is(err, ErrOrderAlreadyCancelled) {
		t.Fatalf("expected already cancelled, got %v", err)
	}
}

func TestOrderServiceUpdateByUserRestrictsStatus(t *testing.T) {
	f := newOrderFixture(t, pendingOrder(t, "ord_1"))

	_, err := f.svc.UpdateByUser(context.Background(), UserUpdateOrderCommand{
		OrderID: "ord_1",
		Actor:   Actor{ID: "user_1"},
		Status:  statusPtr(domain.OrderStatusDelivered),
	})
	if !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if reason, _ := ErrorReason(err); reason != "users are only allowed to cancel orders" {
		t.Fatalf("unexpected reason %q", reason)
	}
	if f.orders.updates != 0 {
		t.Fatalf("expected no write")
	}

	_, err = f.svc.UpdateByUser(context.Background(), UserUpdateOrderCommand{
		OrderID: "ord_1",
		Actor:   Actor{ID: "user_1"},
		Status:  statusPtr(domain.OrderStatusPending),
	})
	if !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("expected forbidden for unchanged status, got %v", err)
	}
	if f.orders.updates != 0 || len(f.events.events) != 0 {
		t.Fatalf("expected no write or event for unchanged status")
	}

	_, err = f.svc.UpdateByUser(context.Background(), UserUpdateOrderCommand{
		OrderID: "ord_1",
		Actor:   Actor{ID: "user_2"},
		Status:  statusPtr(domain.OrderStatusCancelled),
	})
	if !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("expected forbidden for non-owner, got %v", err)
	}
}

func TestOrderServiceUpdateByUserOperatorMayOnlyCancel(t *testing.T) {
	order := pendingOrder(t, "ord_1")
	order.Status = domain.OrderStatusPreparing
	f := newOrderFixture(t, order)
	operator := Actor{ID: "admin_1", Operator: true}

	for _, target := range []domain.OrderStatus{
		domain.OrderStatusDelivered,
		domain.OrderStatusOutForDelivery,
		domain.OrderStatusPreparing,
		domain.OrderStatusPending,
	} {
		_, err := f.svc.UpdateByUser(context.Background(), UserUpdateOrderCommand{
			OrderID: "ord_1", Actor: operator, Status: statusPtr(target),
		})
		if !errors.Is(err, ErrOrderInvalidState) {
			t.Fatalf("expected invalid state for %s, got %v", target, err)
		}
	}
	if f.orders.updates != 0 {
		t.Fatalf("expected no write, got %d", f.orders.updates)
	}
	if stored := f.orders.get("ord_1"); stored.Status != domain.OrderStatusPreparing || stored.DeliveredAt != nil {
		t.Fatalf("expected order untouched, got %#v", stored)
	}

	updated, err := f.svc.UpdateByUser(context.Background(), UserUpdateOrderCommand{
		OrderID: "ord_1", Actor: operator, Status: statusPtr(domain.OrderStatusCancelled),
	})
	if err != nil {
		t.Fatalf("operator cancel: %v", err)
	}
	if updated.Status != domain.OrderStatusCancelled || updated.CancelledAt == nil {
		t.Fatalf("expected cancelled, got %#v", updated)
	}
}

func TestOrderServiceUpdateByUserCannotCancelDelivered(t *testing.T) {
	order := pendingOrder(t, "ord_1")
	order.Status = domain.OrderStatusDelivered
	f := newOrderFixture(t, order)

	_, err := f.svc.UpdateByUser(context.Background(), UserUpdateOrderCommand{
		OrderID: "ord_1", Actor: Actor{ID: "admin_1", Operator: true}, Status: statusPtr(domain.OrderStatusCancelled),
	})
	if !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected invalid state cancelling delivered order, got %v", err)
	}
}

func TestOrderServiceUpdateByUserRepricesCoupon(t *testing.T) {
	f := newOrderFixture(t, pendingOrder(t, "ord_1"))

	updated, err := f.svc.UpdateByUser(context.Background(), UserUpdateOrderCommand{
		OrderID:           "ord_1",
		Actor:             Actor{ID: "user_1"},
		CouponCode:        strPtr("SAVE10"),
		DeliveryAddressID: strPtr("addr_2"),
	})
	if err != nil {
		t.Fatalf("UpdateByUser: %v", err)
	}
	if got := updated.FinalPrice.StringFixed(2); got != "900.00" {
		t.Fatalf("expected repriced 900.00, got %s", got)
	}
	if updated.DeliveryAddressID != "addr_2" {
		t.Fatalf("expected address change, got %s", updated.DeliveryAddressID)
	}
	if len(f.events.events) != 1 || f.events.events[0].Type != orderEventRepriced {
		t.Fatalf("expected repriced event, got %#v", f.events.events)
	}

	cleared, err := f.svc.UpdateByUser(context.Background(), UserUpdateOrderCommand{
		OrderID: "ord_1", Actor: Actor{ID: "user_1"}, CouponCode: strPtr(""),
	})
	if err != nil {
		t.Fatalf("clear coupon: %v", err)
	}
	if cleared.Coupon != nil || cleared.FinalPrice.StringFixed(2) != "1000.00" {
		t.Fatalf("expected coupon removed and full price, got %#v", cleared)
	}
}

func TestOrderServiceUpdateByUserCouponFrozenAfterPayment(t *testing.T) {
	order := pendingOrder(t, "ord_1")
	order.Status = domain.OrderStatusConfirmed
	f := newOrderFixture(t, order)

	_, err := f.svc.UpdateByUser(context.Background(), UserUpdateOrderCommand{
		OrderID: "ord_1", Actor: Actor{ID: "user_1"}, CouponCode: strPtr("SAVE10"),
	})
	if !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
}

func TestOrderServiceUpdateByUserAddressFrozenAfterPayment(t *testing.T) {
	for _, status := range []domain.OrderStatus{
		domain.OrderStatusConfirmed,
		domain.OrderStatusPreparing,
		domain.OrderStatusOutForDelivery,
	} {
		order := pendingOrder(t, "ord_1")
		order.Status = status
		f := newOrderFixture(t, order)

		_, err := f.svc.UpdateByUser(context.Background(), UserUpdateOrderCommand{
			OrderID: "ord_1", Actor: Actor{ID: "user_1"}, DeliveryAddressID: strPtr("addr_2"),
		})
		if !errors.Is(err, ErrOrderInvalidState) {
			t.Fatalf("expected invalid state for %s, got %v", status, err)
		}
		if stored := f.orders.get("ord_1"); stored.DeliveryAddressID != order.DeliveryAddressID {
			t.Fatalf("expected address unchanged for %s, got %s", status, stored.DeliveryAddressID)
		}
	}
}

func TestOrderServiceUpdateByUserRequiresChanges(t *testing.T) {
	f := newOrderFixture(t, pendingOrder(t, "ord_1"))
	_, err := f.svc.UpdateByUser(context.Background(), UserUpdateOrderCommand{OrderID: "ord_1", Actor: Actor{ID: "user_1"}})
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestOrderServiceAdvanceWalksProgression(t *testing.T) {
	f := newOrderFixture(t, pendingOrder(t, "ord_1"))
	ctx := context.Background()

	expected := []domain.OrderStatus{
		domain.OrderStatusConfirmed,
		domain.OrderStatusPreparing,
		domain.OrderStatusOutForDelivery,
		domain.OrderStatusDelivered,
	}
	for _, want := range expected {
		order, err := f.svc.Advance(ctx, AdvanceOrderCommand{OrderID: "ord_1", ActorID: "admin_1"})
		if err != nil {
			t.Fatalf("Advance to %s: %v", want, err)
		}
		if order.Status != want {
			t.Fatalf("expected %s, got %s", want, order.Status)
		}
	}

	if _, err := f.svc.Advance(ctx, AdvanceOrderCommand{OrderID: "ord_1"}); !errors.Is(err, ErrOrderTerminalState) {
		t.Fatalf("expected terminal state error, got %v", err)
	}
	if len(f.events.events) != len(expected) {
		t.Fatalf("expected %d events, got %d", len(expected), len(f.events.events))
	}
	stored := f.orders.get("ord_1")
	if stored.ConfirmedAt == nil || stored.DeliveredAt == nil {
		t.Fatalf("expected lifecycle timestamps, got %#v", stored)
	}
}

func TestOrderServiceAdvanceRejectsCancelled(t *testing.T) {
	order := pendingOrder(t, "ord_1")
	order.Status = domain.OrderStatusCancelled
	f := newOrderFixture(t, order)

	if _, err := f.svc.Advance(context.Background(), AdvanceOrderCommand{OrderID: "ord_1"}); !errors.Is(err, ErrOrderTerminalState) {
		t.Fatalf("expected terminal state, got %v", err)
	}
}

func TestOrderServiceEventFailureIsLogged(t *testing.T) {
	f := newOrderFixture(t, pendingOrder(t, "ord_1"))
	f.events.err = errBoom
	var logged []string
	svc, err := NewOrderService(OrderServiceDeps{
		Orders:    f.orders,
		Carts:     f.carts,
		Addresses: f.addresses,
		Coupons:   mustValidator(t, f),
		Events:    f.events,
		Logger: func(_ context.Context, event string, _ map[string]any) {
			logged = append(logged, event)
		},
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}

	if _, err := svc.Advance(context.Background(), AdvanceOrderCommand{OrderID: "ord_1"}); err != nil {
		t.Fatalf("Advance should not fail on publish error: %v", err)
	}
	if len(logged) != 1 || logged[0] != "order.event.publish.failed" {
		t.Fatalf("expected publish failure log, got %v", logged)
	}
}

func mustValidator(t *testing.T, f *orderFixture) CouponValidator {
	t.Helper()
	validator, err := NewCouponValidator(CouponValidatorDeps{Coupons: f.coupons, Clock: fixedClock(f.now)})
	if err != nil {
		t.Fatalf("NewCouponValidator: %v", err)
	}
	return validator
}

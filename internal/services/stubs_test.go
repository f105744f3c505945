package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	domain "github.com/tiffinbox/api/internal/domain"
	"github.com/tiffinbox/api/internal/payments"
	"github.com/tiffinbox/api/internal/repositories"
)

type repoErr struct {
	msg         string
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e repoErr) Error() string       { return e.msg }
func (e repoErr) IsNotFound() bool    { return e.notFound }
func (e repoErr) IsConflict() bool    { return e.conflict }
func (e repoErr) IsUnavailable() bool { return e.unavailable }

func notFound(what string) error { return repoErr{msg: what + " not found", notFound: true} }

var _ repositories.RepositoryError = repoErr{}

type memOrderRepo struct {
	mu        sync.Mutex
	orders    map[string]domain.Order
	updateErr error
	updates   int
}

func newMemOrderRepo(orders ...domain.Order) *memOrderRepo {
	repo := &memOrderRepo{orders: map[string]domain.Order{}}
	for _, order := range orders {
		repo.orders[order.ID] = order
	}
	return repo
}

func (r *memOrderRepo) Insert(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[order.ID]; ok {
		return repoErr{msg: "order exists", conflict: true}
	}
	r.orders[order.ID] = order
	return nil
}

func (r *memOrderRepo) Update(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	r.updates++
	r.orders[order.ID] = order
	return nil
}

func (r *memOrderRepo) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return domain.Order{}, notFound("order")
	}
	return order, nil
}

func (r *memOrderRepo) List(_ context.Context, filter repositories.OrderListFilter) ([]domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Order
	for _, order := range r.orders {
		if filter.UserID != "" && order.UserID != filter.UserID {
			continue
		}
		result = append(result, order)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (r *memOrderRepo) get(id string) domain.Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.orders[id]
}

type memPaymentRepo struct {
	mu        sync.Mutex
	payments  map[string]domain.Payment
	insertErr error
	updateErr error
	deleted   []string
}

func newMemPaymentRepo(payments ...domain.Payment) *memPaymentRepo {
	repo := &memPaymentRepo{payments: map[string]domain.Payment{}}
	for _, payment := range payments {
		repo.payments[payment.ID] = payment
	}
	return repo
}

func (r *memPaymentRepo) Insert(_ context.Context, payment domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return r.insertErr
	}
	r.payments[payment.ID] = payment
	return nil
}

func (r *memPaymentRepo) Update(_ context.Context, payment domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	r.payments[payment.ID] = payment
	return nil
}

func (r *memPaymentRepo) FindByID(_ context.Context, paymentID string) (domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	payment, ok := r.payments[paymentID]
	if !ok {
		return domain.Payment{}, notFound("payment")
	}
	return payment, nil
}

func (r *memPaymentRepo) FindByTransactionID(_ context.Context, transactionID string) (domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, payment := range r.payments {
		if payment.TransactionID == transactionID {
			return payment, nil
		}
	}
	return domain.Payment{}, notFound("payment")
}

func (r *memPaymentRepo) ListByOrder(_ context.Context, orderID string) ([]domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Payment
	for _, payment := range r.payments {
		if payment.OrderID == orderID {
			result = append(result, payment)
		}
	}
	return result, nil
}

func (r *memPaymentRepo) List(_ context.Context, filter repositories.PaymentListFilter) ([]domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Payment
	for _, payment := range r.payments {
		if filter.Status != "" && payment.Status != filter.Status {
			continue
		}
		result = append(result, payment)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (r *memPaymentRepo) ListPendingBefore(_ context.Context, cutoff time.Time, limit int) ([]domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Payment
	for _, payment := range r.payments {
		if payment.Status == domain.PaymentStatusPending && payment.CreatedAt.Before(cutoff) {
			result = append(result, payment)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *memPaymentRepo) Delete(_ context.Context, paymentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.payments[paymentID]; !ok {
		return notFound("payment")
	}
	delete(r.payments, paymentID)
	r.deleted = append(r.deleted, paymentID)
	return nil
}

func (r *memPaymentRepo) get(id string) (domain.Payment, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	payment, ok := r.payments[id]
	return payment, ok
}

func (r *memPaymentRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.payments)
}

type memCartRepo struct {
	mu        sync.Mutex
	carts     map[string]domain.Cart
	updateErr error
}

func newMemCartRepo(carts ...domain.Cart) *memCartRepo {
	repo := &memCartRepo{carts: map[string]domain.Cart{}}
	for _, cart := range carts {
		repo.carts[cart.ID] = cart
	}
	return repo
}

func (r *memCartRepo) FindByID(_ context.Context, cartID string) (domain.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cart, ok := r.carts[cartID]
	if !ok {
		return domain.Cart{}, notFound("cart")
	}
	return cart, nil
}

func (r *memCartRepo) UpdateStatus(_ context.Context, cartID string, status domain.CartStatus, updatedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	cart, ok := r.carts[cartID]
	if !ok {
		return notFound("cart")
	}
	cart.Status = status
	cart.UpdatedAt = updatedAt
	r.carts[cartID] = cart
	return nil
}

type memCouponRepo struct {
	mu      sync.Mutex
	coupons map[string]domain.Coupon
}

func newMemCouponRepo(coupons ...domain.Coupon) *memCouponRepo {
	repo := &memCouponRepo{coupons: map[string]domain.Coupon{}}
	for _, coupon := range coupons {
		repo.coupons[coupon.ID] = coupon
	}
	return repo
}

func (r *memCouponRepo) Insert(_ context.Context, coupon domain.Coupon) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.coupons {
		if existing.Code == coupon.Code {
			return repoErr{msg: "code exists", conflict: true}
		}
	}
	r.coupons[coupon.ID] = coupon
	return nil
}

func (r *memCouponRepo) Update(_ context.Context, coupon domain.Coupon) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.coupons[coupon.ID]; !ok {
		return notFound("coupon")
	}
	r.coupons[coupon.ID] = coupon
	return nil
}

func (r *memCouponRepo) Delete(_ context.Context, couponID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.coupons[couponID]; !ok {
		return notFound("coupon")
	}
	delete(r.coupons, couponID)
	return nil
}

func (r *memCouponRepo) FindByID(_ context.Context, couponID string) (domain.Coupon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	coupon, ok := r.coupons[couponID]
	if !ok {
		return domain.Coupon{}, notFound("coupon")
	}
	return coupon, nil
}

func (r *memCouponRepo) FindByCode(_ context.Context, code string) (domain.Coupon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, coupon := range r.coupons {
		if coupon.Code == code {
			return coupon, nil
		}
	}
	return domain.Coupon{}, notFound("coupon")
}

func (r *memCouponRepo) List(context.Context) ([]domain.Coupon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]domain.Coupon, 0, len(r.coupons))
	for _, coupon := range r.coupons {
		result = append(result, coupon)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Code < result[j].Code })
	return result, nil
}

type memAddressRepo struct {
	addresses map[string]domain.Address
}

func (r *memAddressRepo) FindByID(_ context.Context, addressID string) (domain.Address, error) {
	addr, ok := r.addresses[addressID]
	if !ok {
		return domain.Address{}, notFound("address")
	}
	return addr, nil
}

type memUserRepo struct {
	users    map[string]domain.User
	batchIDs [][]string
}

func (r *memUserRepo) FindByID(_ context.Context, userID string) (domain.User, error) {
	user, ok := r.users[userID]
	if !ok {
		return domain.User{}, notFound("user")
	}
	return user, nil
}

func (r *memUserRepo) FindByIDs(_ context.Context, userIDs []string) ([]domain.User, error) {
	r.batchIDs = append(r.batchIDs, append([]string(nil), userIDs...))
	var result []domain.User
	for _, id := range userIDs {
		if user, ok := r.users[id]; ok {
			result = append(result, user)
		}
	}
	return result, nil
}

type countingUnitOfWork struct {
	calls int
}

func (u *countingUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	u.calls++
	return fn(ctx)
}

type captureOrderEvents struct {
	mu     sync.Mutex
	events []OrderEvent
	err    error
}

func (c *captureOrderEvents) PublishOrderEvent(_ context.Context, event OrderEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return c.err
}

type stubNotifier struct {
	mu      sync.Mutex
	notices []PaymentNotice
	err     error
}

func (s *stubNotifier) NotifyPaymentReceived(_ context.Context, notice PaymentNotice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notices = append(s.notices, notice)
	return s.err
}

func (s *stubNotifier) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.notices)
}

type stubLocker struct {
	mu       sync.Mutex
	acquired []string
	released int
	err      error
}

func (s *stubLocker) Acquire(_ context.Context, key string) (func(context.Context) error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.acquired = append(s.acquired, key)
	return func(context.Context) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.released++
		return nil
	}, nil
}

type stubGateway struct {
	requests []payments.IntentRequest
	createFn func(context.Context, payments.IntentRequest) (payments.Intent, error)
}

func (g *stubGateway) CreateIntent(ctx context.Context, req payments.IntentRequest) (payments.Intent, error) {
	g.requests = append(g.requests, req)
	if g.createFn != nil {
		return g.createFn(ctx, req)
	}
	return payments.Intent{ID: "pi_" + strings.ToLower(req.Receipt), ClientSecret: "secret", Amount: req.Amount, Currency: req.Currency}, nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func sequentialIDs(ids ...string) func() string {
	var mu sync.Mutex
	i := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		if i >= len(ids) {
			return "extra"
		}
		id := ids[i]
		i++
		return id
	}
}

var errBoom = errors.New("boom")

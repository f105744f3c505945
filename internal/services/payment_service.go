package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	domain "github.com/tiffinbox/api/internal/domain"
	"github.com/tiffinbox/api/internal/payments"
	"github.com/tiffinbox/api/internal/repositories"
)

const (
	paymentIDPrefix      = "pay_"
	paymentMeterName     = "github.com/tiffinbox/api/services/payments"
	paymentLockKeyPrefix = "payments:verify:"
	defaultSweepBatch    = 100
)

var (
	// ErrPaymentInvalidInput signals the caller provided invalid data.
	ErrPaymentInvalidInput = errors.New("payment: invalid input")
	// ErrPaymentOrderNotFound indicates the order being paid for does not exist.
	ErrPaymentOrderNotFound = errors.New("payment: order not found")
	// ErrPaymentNotFound indicates no payment matches the gateway transaction.
	ErrPaymentNotFound = errors.New("payment: not found")
	// ErrPaymentForbidden indicates the caller may not pay for this order.
	ErrPaymentForbidden = errors.New("payment: forbidden")
	// ErrPaymentInvalidState indicates the order status does not accept payment.
	ErrPaymentInvalidState = errors.New("payment: order not payable")
	// ErrPaymentInvalidAmount indicates the order amount cannot be charged.
	ErrPaymentInvalidAmount = errors.New("payment: invalid amount")
	// ErrPaymentUpstream indicates the payment gateway rejected or failed the request.
	ErrPaymentUpstream = errors.New("payment: gateway failure")
	// ErrPaymentSignatureMismatch indicates the callback signature did not verify.
	ErrPaymentSignatureMismatch = errors.New("payment: signature mismatch")
	// ErrPaymentDuplicate indicates the order already has a successful payment.
	ErrPaymentDuplicate = errors.New("payment: order already paid")
	// ErrPaymentConflict indicates a concurrent verification holds the lock.
	ErrPaymentConflict = errors.New("payment: conflict")
	// ErrPaymentReconciliation indicates the payment could not be fully reconciled with its order.
	ErrPaymentReconciliation = errors.New("payment: reconciliation failed")
)

// SignatureVerifier checks gateway callback signatures.
type SignatureVerifier interface {
	Verify(gatewayOrderID, paymentID, signature string) error
}

// PaymentScheduler arranges cleanup of payments left pending.
type PaymentScheduler interface {
	Schedule(paymentID string, expire func(context.Context) error)
	Cancel(paymentID string)
}

// PaymentServiceDeps bundles collaborators required to construct the payment service.
type PaymentServiceDeps struct {
	Payments    repositories.PaymentRepository
	Orders      repositories.OrderRepository
	Carts       repositories.CartRepository
	Users       repositories.UserRepository
	Gateway     payments.Gateway
	Signatures  SignatureVerifier
	Locker      PaymentLocker
	Notifier    OperatorNotifier
	Scheduler   PaymentScheduler
	Events      OrderEventPublisher
	UnitOfWork  repositories.UnitOfWork
	Meter       metric.Meter
	Currency    string
	SweepBatch  int
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type paymentService struct {
	payments   repositories.PaymentRepository
	orders     repositories.OrderRepository
	carts      repositories.CartRepository
	users      repositories.UserRepository
	gateway    payments.Gateway
	signatures SignatureVerifier
	locker     PaymentLocker
	notifier   OperatorNotifier
	scheduler  PaymentScheduler
	events     OrderEventPublisher
	unitOfWork repositories.UnitOfWork
	metrics    paymentMetrics
	currency   string
	sweepBatch int
	clock      func() time.Time
	newID      func() string
	logger     func(context.Context, string, map[string]any)
}

type paymentMetrics struct {
	initiated         metric.Int64Counter
	verified          metric.Int64Counter
	signatureMismatch metric.Int64Counter
	expired           metric.Int64Counter
}

// NewPaymentService wires dependencies into a concrete PaymentService implementation.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Payments == nil {
		return nil, errors.New("payment service: payment repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("payment service: order repository is required")
	}
	if deps.Carts == nil {
		return nil, errors.New("payment service: cart repository is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("payment service: gateway is required")
	}
	if deps.Signatures == nil {
		return nil, errors.New("payment service: signature verifier is required")
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

	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = domain.DefaultCurrency
	}

	batch := deps.SweepBatch
	if batch <= 0 {
		batch = defaultSweepBatch
	}

	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(paymentMeterName)
	}

	return &paymentService{
		payments:   deps.Payments,
		orders:     deps.Orders,
		carts:      deps.Carts,
		users:      deps.Users,
		gateway:    deps.Gateway,
		signatures: deps.Signatures,
		locker:     deps.Locker,
		notifier:   deps.Notifier,
		scheduler:  deps.Scheduler,
		events:     deps.Events,
		unitOfWork: unit,
		metrics:    newPaymentMetrics(meter, logger),
		currency:   currency,
		sweepBatch: batch,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func newPaymentMetrics(meter metric.Meter, logger func(context.Context, string, map[string]any)) paymentMetrics {
	counter := func(name, description string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(description))
		if err != nil {
			logger(context.Background(), "payment.metric.register.failed", map[string]any{
				"metric": name,
				"error":  err.Error(),
			})
			return nil
		}
		return c
	}
	return paymentMetrics{
		initiated:         counter("payments.initiated", "Count of payment intents opened with the gateway"),
		verified:          counter("payments.verified", "Count of payments reconciled as successful"),
		signatureMismatch: counter("payments.signature_mismatch", "Count of payment callbacks rejected for a bad signature"),
		expired:           counter("payments.expired", "Count of pending payments removed after timing out"),
	}
}

func (m paymentMetrics) add(ctx context.Context, counter metric.Int64Counter, n int64, attrs ...attribute.KeyValue) {
	if counter == nil || n == 0 {
		return
	}
	counter.Add(ctx, n, metric.WithAttributes(attrs...))
}

// Initiate opens a gateway payment for a pending order and records it as pending.
func (s *paymentService) Initiate(ctx context.Context, cmd InitiatePaymentCommand) (PaymentIntent, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return PaymentIntent{}, newReasonError(ErrPaymentInvalidInput, "Order id is required")
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if isRepositoryNotFound(err) {
			return PaymentIntent{}, newReasonError(ErrPaymentOrderNotFound, "Order not found")
		}
		return PaymentIntent{}, s.mapRepositoryError(err)
	}
	if !cmd.Actor.CanAccess(order.UserID) {
		return PaymentIntent{}, newReasonError(ErrPaymentForbidden, "You are not allowed to pay for this order")
	}

	switch order.Status {
	case domain.OrderStatusPending:
	case domain.OrderStatusCancelled:
		return PaymentIntent{}, newReasonError(ErrPaymentInvalidState, "cannot make payment for cancelled order")
	case domain.OrderStatusDelivered:
		return PaymentIntent{}, newReasonError(ErrPaymentInvalidState, "You have already received your order")
	default:
		return PaymentIntent{}, newReasonError(ErrPaymentInvalidState, "You have already made the payment for this order, your order is on the way")
	}

	amountMinor := domain.ToMinorUnits(order.FinalPrice)
	if amountMinor <= 0 {
		return PaymentIntent{}, newReasonError(ErrPaymentInvalidAmount, "Order amount must be greater than zero")
	}

	now := s.now()
	receipt := fmt.Sprintf("receipt_%d", now.UnixMilli())
	intent, err := s.gateway.CreateIntent(ctx, payments.IntentRequest{
		Amount:   amountMinor,
		Currency: s.currency,
		Receipt:  receipt,
		Metadata: map[string]string{
			"orderId": order.ID,
			"userId":  order.UserID,
		},
		IdempotencyKey: order.ID + ":" + receipt,
	})
	if err != nil {
		s.logger(ctx, "payment.gateway.failed", map[string]any{
			"order": order.ID,
			"error": err.Error(),
		})
		return PaymentIntent{}, fmt.Errorf("%w: %w", newReasonError(ErrPaymentUpstream, "Unable to reach the payment gateway"), err)
	}

	payment := Payment{
		ID:            paymentIDPrefix + s.newID(),
		OrderID:       order.ID,
		UserID:        order.UserID,
		Amount:        domain.FromMinorUnits(amountMinor),
		Currency:      s.currency,
		Status:        domain.PaymentStatusPending,
		TransactionID: intent.ID,
		Receipt:       receipt,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.payments.Insert(ctx, payment); err != nil {
		return PaymentIntent{}, s.mapRepositoryError(err)
	}

	if s.scheduler != nil {
		paymentID := payment.ID
		s.scheduler.Schedule(paymentID, func(ctx context.Context) error {
			_, err := s.expirePending(ctx, paymentID)
			return err
		})
	}
	s.metrics.add(ctx, s.metrics.initiated, 1, attribute.String("currency", s.currency))

	return PaymentIntent{
		Payment:        payment,
		GatewayOrderID: intent.ID,
		ClientSecret:   intent.ClientSecret,
		AmountMinor:    amountMinor,
		Currency:       s.currency,
		Receipt:        receipt,
	}, nil
}

// Verify reconciles a gateway callback: the payment becomes success, its order confirmed and
// its cart ordered, all in one transaction. Replays of an already verified payment are no-ops.
func (s *paymentService) Verify(ctx context.Context, cmd VerifyPaymentCommand) (VerifyPaymentResult, error) {
	gatewayOrderID := strings.TrimSpace(cmd.GatewayOrderID)
	gatewayPaymentID := strings.TrimSpace(cmd.PaymentID)
	signature := strings.TrimSpace(cmd.Signature)
	if gatewayOrderID == "" || gatewayPaymentID == "" || signature == "" {
		return VerifyPaymentResult{}, newReasonError(ErrPaymentInvalidInput, "Order id, payment id and signature are required")
	}

	if err := s.signatures.Verify(gatewayOrderID, gatewayPaymentID, signature); err != nil {
		s.metrics.add(ctx, s.metrics.signatureMismatch, 1)
		s.logger(ctx, "payment.signature.mismatch", map[string]any{
			"transaction": gatewayOrderID,
		})
		return VerifyPaymentResult{}, fmt.Errorf("%w: %w", newReasonError(ErrPaymentSignatureMismatch, "Invalid payment signature"), err)
	}

	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, paymentLockKeyPrefix+gatewayOrderID)
		if err != nil {
			return VerifyPaymentResult{}, fmt.Errorf("%w: %w", newReasonError(ErrPaymentConflict, "Payment verification already in progress"), err)
		}
		defer func() {
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := release(releaseCtx); err != nil {
				s.logger(ctx, "payment.lock.release.failed", map[string]any{
					"transaction": gatewayOrderID,
					"error":       err.Error(),
				})
			}
		}()
	}

	var (
		result   VerifyPaymentResult
		previous OrderStatus
	)
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		result = VerifyPaymentResult{}

		payment, err := s.payments.FindByTransactionID(txCtx, gatewayOrderID)
		if err != nil {
			if isRepositoryNotFound(err) {
				return newReasonError(ErrPaymentNotFound, "Payment not found")
			}
			return s.reconciliationError("load payment", err)
		}

		order, err := s.orders.FindByID(txCtx, payment.OrderID)
		if err != nil {
			if isRepositoryNotFound(err) {
				return newReasonError(ErrPaymentOrderNotFound, "Order not found")
			}
			return s.reconciliationError("load order", err)
		}

		if payment.Status == domain.PaymentStatusSuccess {
			result = VerifyPaymentResult{Payment: payment, Order: order, AlreadyVerified: true}
			return nil
		}

		siblings, err := s.payments.ListByOrder(txCtx, payment.OrderID)
		if err != nil {
			return s.reconciliationError("list order payments", err)
		}
		for _, sibling := range siblings {
			if sibling.ID != payment.ID && sibling.Status == domain.PaymentStatusSuccess {
				return newReasonError(ErrPaymentDuplicate, "Order has already been paid")
			}
		}
		if order.Status == domain.OrderStatusCancelled {
			return newReasonError(ErrPaymentInvalidState, "cannot make payment for cancelled order")
		}

		now := s.now()
		payment.Status = domain.PaymentStatusSuccess
		payment.GatewayPaymentID = gatewayPaymentID
		payment.VerifiedAt = &now
		payment.UpdatedAt = now
		if err := s.payments.Update(txCtx, payment); err != nil {
			return s.reconciliationError("update payment", err)
		}

		previous = order.Status
		if order.Status == domain.OrderStatusPending {
			order.Status = domain.OrderStatusConfirmed
			stampStatus(&order, domain.OrderStatusConfirmed, now)
		}
		order.UpdatedAt = now
		if err := s.orders.Update(txCtx, order); err != nil {
			return s.reconciliationError("confirm order", err)
		}

		if err := s.carts.UpdateStatus(txCtx, order.CartID, domain.CartStatusOrdered, now); err != nil {
			return s.reconciliationError("close cart", err)
		}

		result = VerifyPaymentResult{Payment: payment, Order: order}
		return nil
	})
	if err != nil {
		return VerifyPaymentResult{}, err
	}
	if result.AlreadyVerified {
		if result.Payment.NotifiedAt != nil {
			return result, nil
		}
		return result, s.deliverNotice(ctx, &result.Payment)
	}

	if s.scheduler != nil {
		s.scheduler.Cancel(result.Payment.ID)
	}
	s.metrics.add(ctx, s.metrics.verified, 1, attribute.String("currency", result.Payment.Currency))

	if s.events != nil && previous != result.Order.Status {
		if err := s.events.PublishOrderEvent(ctx, OrderEvent{
			Type:           orderEventStatusChanged,
			OrderID:        result.Order.ID,
			UserID:         result.Order.UserID,
			PreviousStatus: string(previous),
			CurrentStatus:  string(result.Order.Status),
			ActorID:        result.Payment.UserID,
			FinalPrice:     result.Order.FinalPrice.StringFixed(2),
			OccurredAt:     result.Order.UpdatedAt,
		}); err != nil {
			s.logger(ctx, "order.event.publish.failed", map[string]any{
				"type":  orderEventStatusChanged,
				"order": result.Order.ID,
				"error": err.Error(),
			})
		}
	}

	return result, s.deliverNotice(ctx, &result.Payment)
}

// deliverNotice notifies the operator and records notifiedAt so replays of a verified payment only
// re-send while no notice has gone out.
func (s *paymentService) deliverNotice(ctx context.Context, payment *Payment) error {
	if s.notifier == nil {
		return nil
	}
	if err := s.notifyOperator(ctx, *payment); err != nil {
		s.logger(ctx, "payment.notify.failed", map[string]any{
			"payment": payment.ID,
			"order":   payment.OrderID,
			"error":   err.Error(),
		})
		return fmt.Errorf("%w: notify operator: %w", ErrPaymentReconciliation, err)
	}

	now := s.now()
	payment.NotifiedAt = &now
	if err := s.payments.Update(ctx, *payment); err != nil {
		s.logger(ctx, "payment.notify.mark.failed", map[string]any{
			"payment": payment.ID,
			"error":   err.Error(),
		})
	}
	return nil
}

// List returns every payment newest first with the payer's profile attached.
func (s *paymentService) List(ctx context.Context) ([]PaymentWithUser, error) {
	items, err := s.payments.List(ctx, repositories.PaymentListFilter{})
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}

	users := map[string]User{}
	if s.users != nil && len(items) > 0 {
		ids := make([]string, 0, len(items))
		seen := make(map[string]struct{}, len(items))
		for _, item := range items {
			if item.UserID == "" {
				continue
			}
			if _, ok := seen[item.UserID]; ok {
				continue
			}
			seen[item.UserID] = struct{}{}
			ids = append(ids, item.UserID)
		}
		if len(ids) > 0 {
			found, err := s.users.FindByIDs(ctx, ids)
			if err != nil {
				return nil, s.mapRepositoryError(err)
			}
			for _, user := range found {
				users[user.ID] = user
			}
		}
	}

	result := make([]PaymentWithUser, 0, len(items))
	for _, item := range items {
		entry := PaymentWithUser{Payment: item}
		if user, ok := users[item.UserID]; ok {
			entry.User = summarizeUser(user)
		}
		result = append(result, entry)
	}
	return result, nil
}

// ExpireStale deletes payments still pending that were created more than olderThan ago.
func (s *paymentService) ExpireStale(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		return 0, newReasonError(ErrPaymentInvalidInput, "Expiry window must be positive")
	}
	cutoff := s.now().Add(-olderThan)

	stale, err := s.payments.ListPendingBefore(ctx, cutoff, s.sweepBatch)
	if err != nil {
		return 0, s.mapRepositoryError(err)
	}

	expired := 0
	for _, payment := range stale {
		if err := ctx.Err(); err != nil {
			return expired, err
		}
		removed, err := s.expirePending(ctx, payment.ID)
		if err != nil {
			return expired, err
		}
		if removed {
			if s.scheduler != nil {
				s.scheduler.Cancel(payment.ID)
			}
			expired++
		}
	}
	return expired, nil
}

// expirePending deletes the payment if it is still pending. Missing or settled payments are left alone.
func (s *paymentService) expirePending(ctx context.Context, paymentID string) (bool, error) {
	removed := false
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		removed = false
		payment, err := s.payments.FindByID(txCtx, paymentID)
		if err != nil {
			if isRepositoryNotFound(err) {
				return nil
			}
			return s.mapRepositoryError(err)
		}
		if payment.Status != domain.PaymentStatusPending {
			return nil
		}
		if err := s.payments.Delete(txCtx, paymentID); err != nil {
			if isRepositoryNotFound(err) {
				return nil
			}
			return s.mapRepositoryError(err)
		}
		removed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if removed {
		s.metrics.add(ctx, s.metrics.expired, 1)
		s.logger(ctx, "payment.expired", map[string]any{"payment": paymentID})
	}
	return removed, nil
}

func (s *paymentService) notifyOperator(ctx context.Context, payment Payment) error {
	if s.notifier == nil {
		return nil
	}
	notice := PaymentNotice{
		OrderID:   payment.OrderID,
		PaymentID: payment.ID,
		UserID:    payment.UserID,
		Amount:    payment.Amount.StringFixed(2),
		Currency:  payment.Currency,
	}
	if payment.VerifiedAt != nil {
		notice.VerifiedAt = *payment.VerifiedAt
	}
	if s.users != nil && payment.UserID != "" {
		user, err := s.users.FindByID(ctx, payment.UserID)
		switch {
		case err == nil:
			notice.UserName = user.Name
			notice.UserEmail = user.Email
		case !isRepositoryNotFound(err):
			s.logger(ctx, "payment.notify.user_lookup.failed", map[string]any{
				"user":  payment.UserID,
				"error": err.Error(),
			})
		}
	}
	return s.notifier.NotifyPaymentReceived(ctx, notice)
}

func (s *paymentService) reconciliationError(step string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPaymentReconciliation, step, err)
}

func (s *paymentService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrPaymentNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrPaymentConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("payment: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *paymentService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *paymentService) now() time.Time {
	return s.clock()
}

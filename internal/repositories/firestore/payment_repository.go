package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/tiffinbox/api/internal/domain"
	pfirestore "github.com/tiffinbox/api/internal/platform/firestore"
	"github.com/tiffinbox/api/internal/repositories"
)

const paymentCollection = "payments"

// PaymentRepository persists payment attempts in Firestore.
type PaymentRepository struct {
	base *pfirestore.BaseRepository[paymentDocument]
}

var _ repositories.PaymentRepository = (*PaymentRepository)(nil)

// NewPaymentRepository constructs a Firestore-backed payment repository.
func NewPaymentRepository(provider *pfirestore.Provider) (*PaymentRepository, error) {
	if provider == nil {
		return nil, errors.New("payment repository requires firestore provider")
	}
	return &PaymentRepository{base: pfirestore.NewBaseRepository[paymentDocument](provider, paymentCollection)}, nil
}

func (r *PaymentRepository) Insert(ctx context.Context, payment domain.Payment) error {
	_, err := r.base.Create(ctx, payment.ID, encodePayment(payment))
	return err
}

func (r *PaymentRepository) Update(ctx context.Context, payment domain.Payment) error {
	_, err := r.base.Replace(ctx, payment.ID, encodePayment(payment))
	return err
}

func (r *PaymentRepository) FindByID(ctx context.Context, paymentID string) (domain.Payment, error) {
	doc, err := r.base.Get(ctx, paymentID)
	if err != nil {
		return domain.Payment{}, err
	}
	return decodePayment(doc)
}

// FindByTransactionID looks a payment up by the gateway order id recorded at initiation.
func (r *PaymentRepository) FindByTransactionID(ctx context.Context, transactionID string) (domain.Payment, error) {
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return domain.Payment{}, pfirestore.NotFound("payments.find_by_transaction", "transaction id is required")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("transactionId", "==", transactionID).Limit(1)
	})
	if err != nil {
		return domain.Payment{}, err
	}
	if len(docs) == 0 {
		return domain.Payment{}, pfirestore.NotFound("payments.find_by_transaction", "payment not found")
	}
	return decodePayment(docs[0])
}

// ListByOrder returns every payment attempt recorded for the order.
func (r *PaymentRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.Payment, error) {
	return r.query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderId", "==", strings.TrimSpace(orderID))
	})
}

// List returns payments newest first.
func (r *PaymentRepository) List(ctx context.Context, filter repositories.PaymentListFilter) ([]domain.Payment, error) {
	return r.query(ctx, func(q firestore.Query) firestore.Query {
		if filter.Status != "" {
			q = q.Where("status", "==", string(filter.Status))
		}
		q = q.OrderBy("createdAt", firestore.Desc)
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		return q
	})
}

// ListPendingBefore returns the oldest pending payments created before cutoff.
func (r *PaymentRepository) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Payment, error) {
	return r.query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("status", "==", string(domain.PaymentStatusPending)).
			Where("createdAt", "<", cutoff.UTC()).
			OrderBy("createdAt", firestore.Asc)
		if limit > 0 {
			q = q.Limit(limit)
		}
		return q
	})
}

func (r *PaymentRepository) Delete(ctx context.Context, paymentID string) error {
	return r.base.Delete(ctx, paymentID)
}

func (r *PaymentRepository) query(ctx context.Context, build pfirestore.QueryBuilder) ([]domain.Payment, error) {
	docs, err := r.base.Query(ctx, build)
	if err != nil {
		return nil, err
	}
	payments := make([]domain.Payment, 0, len(docs))
	for _, doc := range docs {
		payment, err := decodePayment(doc)
		if err != nil {
			return nil, err
		}
		payments = append(payments, payment)
	}
	return payments, nil
}

type paymentDocument struct {
	OrderID          string     `firestore:"orderId"`
	UserID           string     `firestore:"userId"`
	Amount           string     `firestore:"amount"`
	Currency         string     `firestore:"currency"`
	Status           string     `firestore:"status"`
	TransactionID    string     `firestore:"transactionId"`
	GatewayPaymentID string     `firestore:"gatewayPaymentId,omitempty"`
	Receipt          string     `firestore:"receipt"`
	CreatedAt        time.Time  `firestore:"createdAt"`
	UpdatedAt        time.Time  `firestore:"updatedAt"`
	VerifiedAt       *time.Time `firestore:"verifiedAt,omitempty"`
	NotifiedAt       *time.Time `firestore:"notifiedAt,omitempty"`
}

func encodePayment(payment domain.Payment) paymentDocument {
	return paymentDocument{
		OrderID:          payment.OrderID,
		UserID:           payment.UserID,
		Amount:           encodeDecimal(payment.Amount),
		Currency:         payment.Currency,
		Status:           string(payment.Status),
		TransactionID:    payment.TransactionID,
		GatewayPaymentID: payment.GatewayPaymentID,
		Receipt:          payment.Receipt,
		CreatedAt:        payment.CreatedAt.UTC(),
		UpdatedAt:        payment.UpdatedAt.UTC(),
		VerifiedAt:       cloneTime(payment.VerifiedAt),
		NotifiedAt:       cloneTime(payment.NotifiedAt),
	}
}

func decodePayment(doc pfirestore.Document[paymentDocument]) (domain.Payment, error) {
	amount, err := decodeDecimal("amount", doc.Data.Amount)
	if err != nil {
		return domain.Payment{}, err
	}
	return domain.Payment{
		ID:               doc.ID,
		OrderID:          doc.Data.OrderID,
		UserID:           doc.Data.UserID,
		Amount:           amount,
		Currency:         doc.Data.Currency,
		Status:           domain.PaymentStatus(doc.Data.Status),
		TransactionID:    doc.Data.TransactionID,
		GatewayPaymentID: doc.Data.GatewayPaymentID,
		Receipt:          doc.Data.Receipt,
		CreatedAt:        orFallback(doc.Data.CreatedAt, doc.CreateTime),
		UpdatedAt:        orFallback(doc.Data.UpdatedAt, doc.UpdateTime),
		VerifiedAt:       cloneTime(doc.Data.VerifiedAt),
		NotifiedAt:       cloneTime(doc.Data.NotifiedAt),
	}, nil
}

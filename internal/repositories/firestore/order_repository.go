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

const orderCollection = "orders"

// OrderRepository persists orders in Firestore.
type OrderRepository struct {
	base *pfirestore.BaseRepository[orderDocument]
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{base: pfirestore.NewBaseRepository[orderDocument](provider, orderCollection)}, nil
}

// Insert creates the order document, failing when the ID is taken.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	_, err := r.base.Create(ctx, order.ID, encodeOrder(order))
	return err
}

// Update overwrites the order document. The order must already exist.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	_, err := r.base.Replace(ctx, order.ID, encodeOrder(order))
	return err
}

// FindByID loads a single order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.base.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrder(doc)
}

// List returns orders newest first, optionally restricted to one user.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) ([]domain.Order, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if userID := strings.TrimSpace(filter.UserID); userID != "" {
			q = q.Where("userId", "==", userID)
		}
		q = q.OrderBy("createdAt", firestore.Desc)
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		return q
	})
	if err != nil {
		return nil, err
	}
	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		order, err := decodeOrder(doc)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, nil
}

type orderDocument struct {
	UserID            string               `firestore:"userId"`
	CartID            string               `firestore:"cartId"`
	Coupon            *orderCouponDocument `firestore:"coupon,omitempty"`
	DeliveryAddressID string               `firestore:"deliveryAddressId"`
	Currency          string               `firestore:"currency"`
	TotalAmount       string               `firestore:"totalAmount"`
	Discount          string               `firestore:"discount"`
	FinalPrice        string               `firestore:"finalPrice"`
	Status            string               `firestore:"status"`
	CreatedAt         time.Time            `firestore:"createdAt"`
	UpdatedAt         time.Time            `firestore:"updatedAt"`
	ConfirmedAt       *time.Time           `firestore:"confirmedAt,omitempty"`
	DeliveredAt       *time.Time           `firestore:"deliveredAt,omitempty"`
	CancelledAt       *time.Time           `firestore:"cancelledAt,omitempty"`
}

type orderCouponDocument struct {
	ID                 string `firestore:"id"`
	Code               string `firestore:"code"`
	DiscountPercentage string `firestore:"discountPercentage"`
	MaxDiscountValue   string `firestore:"maxDiscountValue"`
}

func encodeOrder(order domain.Order) orderDocument {
	doc := orderDocument{
		UserID:            order.UserID,
		CartID:            order.CartID,
		DeliveryAddressID: order.DeliveryAddressID,
		Currency:          order.Currency,
		TotalAmount:       encodeDecimal(order.TotalAmount),
		Discount:          encodeDecimal(order.Discount),
		FinalPrice:        encodeDecimal(order.FinalPrice),
		Status:            string(order.Status),
		CreatedAt:         order.CreatedAt.UTC(),
		UpdatedAt:         order.UpdatedAt.UTC(),
		ConfirmedAt:       cloneTime(order.ConfirmedAt),
		DeliveredAt:       cloneTime(order.DeliveredAt),
		CancelledAt:       cloneTime(order.CancelledAt),
	}
	if order.Coupon != nil {
		doc.Coupon = &orderCouponDocument{
			ID:                 order.Coupon.ID,
			Code:               order.Coupon.Code,
			DiscountPercentage: encodeDecimal(order.Coupon.DiscountPercentage),
			MaxDiscountValue:   encodeDecimal(order.Coupon.MaxDiscountValue),
		}
	}
	return doc
}

func decodeOrder(doc pfirestore.Document[orderDocument]) (domain.Order, error) {
	data := doc.Data
	total, err := decodeDecimal("totalAmount", data.TotalAmount)
	if err != nil {
		return domain.Order{}, err
	}
	discount, err := decodeDecimal("discount", data.Discount)
	if err != nil {
		return domain.Order{}, err
	}
	final, err := decodeDecimal("finalPrice", data.FinalPrice)
	if err != nil {
		return domain.Order{}, err
	}

	order := domain.Order{
		ID:                doc.ID,
		UserID:            data.UserID,
		CartID:            data.CartID,
		DeliveryAddressID: data.DeliveryAddressID,
		Currency:          data.Currency,
		TotalAmount:       total,
		Discount:          discount,
		FinalPrice:        final,
		Status:            domain.OrderStatus(data.Status),
		CreatedAt:         orFallback(data.CreatedAt, doc.CreateTime),
		UpdatedAt:         orFallback(data.UpdatedAt, doc.UpdateTime),
		ConfirmedAt:       cloneTime(data.ConfirmedAt),
		DeliveredAt:       cloneTime(data.DeliveredAt),
		CancelledAt:       cloneTime(data.CancelledAt),
	}
	if data.Coupon != nil {
		pct, err := decodeDecimal("coupon.discountPercentage", data.Coupon.DiscountPercentage)
		if err != nil {
			return domain.Order{}, err
		}
		maxDiscount, err := decodeDecimal("coupon.maxDiscountValue", data.Coupon.MaxDiscountValue)
		if err != nil {
			return domain.Order{}, err
		}
		order.Coupon = &domain.OrderCoupon{
			ID:                 data.Coupon.ID,
			Code:               data.Coupon.Code,
			DiscountPercentage: pct,
			MaxDiscountValue:   maxDiscount,
		}
	}
	return order, nil
}

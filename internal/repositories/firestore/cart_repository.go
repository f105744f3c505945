package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/tiffinbox/api/internal/domain"
	pfirestore "github.com/tiffinbox/api/internal/platform/firestore"
	"github.com/tiffinbox/api/internal/repositories"
)

const cartCollection = "carts"

// CartRepository reads carts from Firestore.
type CartRepository struct {
	base *pfirestore.BaseRepository[cartDocument]
}

var _ repositories.CartRepository = (*CartRepository)(nil)

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	return &CartRepository{base: pfirestore.NewBaseRepository[cartDocument](provider, cartCollection)}, nil
}

func (r *CartRepository) FindByID(ctx context.Context, cartID string) (domain.Cart, error) {
	doc, err := r.base.Get(ctx, cartID)
	if err != nil {
		return domain.Cart{}, err
	}
	return decodeCart(doc)
}

// UpdateStatus flips the cart status. Missing carts surface as not found.
func (r *CartRepository) UpdateStatus(ctx context.Context, cartID string, status domain.CartStatus, updatedAt time.Time) error {
	_, err := r.base.Update(ctx, cartID, []firestore.Update{
		{Path: "status", Value: string(status)},
		{Path: "updatedAt", Value: updatedAt.UTC()},
	})
	return err
}

type cartDocument struct {
	UserID     string             `firestore:"userId"`
	Items      []cartItemDocument `firestore:"items"`
	TotalPrice string             `firestore:"totalPrice"`
	Status     string             `firestore:"status"`
	CreatedAt  time.Time          `firestore:"createdAt"`
	UpdatedAt  time.Time          `firestore:"updatedAt"`
}

type cartItemDocument struct {
	MenuItemID string `firestore:"menuItemId"`
	Name       string `firestore:"name"`
	Quantity   int    `firestore:"quantity"`
	UnitPrice  string `firestore:"unitPrice"`
}

func decodeCart(doc pfirestore.Document[cartDocument]) (domain.Cart, error) {
	total, err := decodeDecimal("totalPrice", doc.Data.TotalPrice)
	if err != nil {
		return domain.Cart{}, err
	}
	items := make([]domain.CartItem, 0, len(doc.Data.Items))
	for _, item := range doc.Data.Items {
		price, err := decodeDecimal("items.unitPrice", item.UnitPrice)
		if err != nil {
			return domain.Cart{}, err
		}
		items = append(items, domain.CartItem{
			MenuItemID: item.MenuItemID,
			Name:       item.Name,
			Quantity:   item.Quantity,
			UnitPrice:  price,
		})
	}
	status := domain.CartStatus(doc.Data.Status)
	if status == "" {
		status = domain.CartStatusActive
	}
	return domain.Cart{
		ID:         doc.ID,
		UserID:     doc.Data.UserID,
		Items:      items,
		TotalPrice: total,
		Status:     status,
		CreatedAt:  orFallback(doc.Data.CreatedAt, doc.CreateTime),
		UpdatedAt:  orFallback(doc.Data.UpdatedAt, doc.UpdateTime),
	}, nil
}

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

const menuCollection = "menuItems"

// MenuRepository persists the dish catalog in Firestore.
type MenuRepository struct {
	base *pfirestore.BaseRepository[menuItemDocument]
}

var _ repositories.MenuRepository = (*MenuRepository)(nil)

// NewMenuRepository constructs a Firestore-backed menu repository.
func NewMenuRepository(provider *pfirestore.Provider) (*MenuRepository, error) {
	if provider == nil {
		return nil, errors.New("menu repository requires firestore provider")
	}
	return &MenuRepository{base: pfirestore.NewBaseRepository[menuItemDocument](provider, menuCollection)}, nil
}

// List returns menu items ordered by name.
func (r *MenuRepository) List(ctx context.Context, filter repositories.MenuListFilter) ([]domain.MenuItem, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if category := strings.TrimSpace(filter.Category); category != "" {
			q = q.Where("category", "==", category)
		}
		if filter.AvailableOnly {
			q = q.Where("available", "==", true)
		}
		return q.OrderBy("name", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	items := make([]domain.MenuItem, 0, len(docs))
	for _, doc := range docs {
		item, err := decodeMenuItem(doc)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func (r *MenuRepository) FindByID(ctx context.Context, itemID string) (domain.MenuItem, error) {
	doc, err := r.base.Get(ctx, itemID)
	if err != nil {
		return domain.MenuItem{}, err
	}
	return decodeMenuItem(doc)
}

// Upsert writes the item under its ID.
func (r *MenuRepository) Upsert(ctx context.Context, item domain.MenuItem) error {
	_, err := r.base.Set(ctx, item.ID, menuItemDocument{
		Name:        item.Name,
		Description: item.Description,
		Category:    item.Category,
		Price:       encodeDecimal(item.Price),
		Available:   item.Available,
		Quantity:    item.Quantity,
		ImageURL:    item.ImageURL,
		Ingredients: append([]string(nil), item.Ingredients...),
		CreatedAt:   item.CreatedAt.UTC(),
		UpdatedAt:   item.UpdatedAt.UTC(),
	})
	return err
}

type menuItemDocument struct {
	Name        string    `firestore:"name"`
	Description string    `firestore:"description,omitempty"`
	Category    string    `firestore:"category"`
	Price       string    `firestore:"price"`
	Available   bool      `firestore:"available"`
	Quantity    int       `firestore:"quantity"`
	ImageURL    string    `firestore:"imageUrl,omitempty"`
	Ingredients []string  `firestore:"ingredients,omitempty"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

func decodeMenuItem(doc pfirestore.Document[menuItemDocument]) (domain.MenuItem, error) {
	price, err := decodeDecimal("price", doc.Data.Price)
	if err != nil {
		return domain.MenuItem{}, err
	}
	return domain.MenuItem{
		ID:          doc.ID,
		Name:        doc.Data.Name,
		Description: doc.Data.Description,
		Category:    doc.Data.Category,
		Price:       price,
		Available:   doc.Data.Available,
		Quantity:    doc.Data.Quantity,
		ImageURL:    doc.Data.ImageURL,
		Ingredients: doc.Data.Ingredients,
		CreatedAt:   orFallback(doc.Data.CreatedAt, doc.CreateTime),
		UpdatedAt:   orFallback(doc.Data.UpdatedAt, doc.UpdateTime),
	}, nil
}

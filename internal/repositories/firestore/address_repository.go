package firestore

import (
	"context"
	"errors"
	"time"

	domain "github.com/tiffinbox/api/internal/domain"
	pfirestore "github.com/tiffinbox/api/internal/platform/firestore"
	"github.com/tiffinbox/api/internal/repositories"
)

const addressCollection = "addresses"

// AddressRepository reads delivery addresses from Firestore.
type AddressRepository struct {
	base *pfirestore.BaseRepository[addressDocument]
}

var _ repositories.AddressRepository = (*AddressRepository)(nil)

// NewAddressRepository constructs a Firestore-backed address repository.
func NewAddressRepository(provider *pfirestore.Provider) (*AddressRepository, error) {
	if provider == nil {
		return nil, errors.New("address repository requires firestore provider")
	}
	return &AddressRepository{base: pfirestore.NewBaseRepository[addressDocument](provider, addressCollection)}, nil
}

func (r *AddressRepository) FindByID(ctx context.Context, addressID string) (domain.Address, error) {
	doc, err := r.base.Get(ctx, addressID)
	if err != nil {
		return domain.Address{}, err
	}
	return domain.Address{
		ID:         doc.ID,
		UserID:     doc.Data.UserID,
		Street:     doc.Data.Street,
		City:       doc.Data.City,
		State:      doc.Data.State,
		PostalCode: doc.Data.PostalCode,
		CreatedAt:  orFallback(doc.Data.CreatedAt, doc.CreateTime),
		UpdatedAt:  orFallback(doc.Data.UpdatedAt, doc.UpdateTime),
	}, nil
}

type addressDocument struct {
	UserID     string    `firestore:"userId"`
	Street     string    `firestore:"street"`
	City       string    `firestore:"city"`
	State      string    `firestore:"state"`
	PostalCode string    `firestore:"postalCode"`
	CreatedAt  time.Time `firestore:"createdAt"`
	UpdatedAt  time.Time `firestore:"updatedAt"`
}

package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/tiffinbox/api/internal/domain"
	pfirestore "github.com/tiffinbox/api/internal/platform/firestore"
	"github.com/tiffinbox/api/internal/repositories"
)

const userCollection = "users"

// UserRepository reads user profiles from Firestore.
type UserRepository struct {
	base *pfirestore.BaseRepository[userDocument]
}

var _ repositories.UserRepository = (*UserRepository)(nil)

// NewUserRepository constructs a Firestore-backed user repository.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}
	return &UserRepository{base: pfirestore.NewBaseRepository[userDocument](provider, userCollection)}, nil
}

// FindByID loads the user profile by UID.
func (r *UserRepository) FindByID(ctx context.Context, userID string) (domain.User, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.User{}, errors.New("user id is required")
	}
	doc, err := r.base.Get(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	return decodeUser(doc), nil
}

// FindByIDs loads several profiles in one round trip. Unknown IDs are omitted.
func (r *UserRepository) FindByIDs(ctx context.Context, userIDs []string) ([]domain.User, error) {
	docs, err := r.base.GetAll(ctx, userIDs)
	if err != nil {
		return nil, err
	}
	users := make([]domain.User, 0, len(docs))
	for _, doc := range docs {
		users = append(users, decodeUser(doc))
	}
	return users, nil
}

type userDocument struct {
	Name      string    `firestore:"name"`
	Email     string    `firestore:"email"`
	Phone     string    `firestore:"phone,omitempty"`
	Role      string    `firestore:"role,omitempty"`
	CreatedAt time.Time `firestore:"createdAt"`
}

func decodeUser(doc pfirestore.Document[userDocument]) domain.User {
	return domain.User{
		ID:        doc.ID,
		Name:      doc.Data.Name,
		Email:     doc.Data.Email,
		Phone:     doc.Data.Phone,
		Role:      doc.Data.Role,
		CreatedAt: orFallback(doc.Data.CreatedAt, doc.CreateTime),
	}
}

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

const couponCollection = "coupons"

// CouponRepository persists coupons in Firestore. Codes are unique; writes check for an existing
// holder of the code inside a transaction.
type CouponRepository struct {
	base     *pfirestore.BaseRepository[couponDocument]
	provider *pfirestore.Provider
}

var _ repositories.CouponRepository = (*CouponRepository)(nil)

// NewCouponRepository constructs a Firestore-backed coupon repository.
func NewCouponRepository(provider *pfirestore.Provider) (*CouponRepository, error) {
	if provider == nil {
		return nil, errors.New("coupon repository requires firestore provider")
	}
	return &CouponRepository{
		base:     pfirestore.NewBaseRepository[couponDocument](provider, couponCollection),
		provider: provider,
	}, nil
}

func (r *CouponRepository) Insert(ctx context.Context, coupon domain.Coupon) error {
	return r.provider.RunInTx(ctx, func(ctx context.Context) error {
		if err := r.ensureCodeFree(ctx, coupon.Code, ""); err != nil {
			return err
		}
		_, err := r.base.Create(ctx, coupon.ID, encodeCoupon(coupon))
		return err
	})
}

func (r *CouponRepository) Update(ctx context.Context, coupon domain.Coupon) error {
	return r.provider.RunInTx(ctx, func(ctx context.Context) error {
		if err := r.ensureCodeFree(ctx, coupon.Code, coupon.ID); err != nil {
			return err
		}
		if _, err := r.base.Get(ctx, coupon.ID); err != nil {
			return err
		}
		_, err := r.base.Set(ctx, coupon.ID, encodeCoupon(coupon))
		return err
	})
}

// Delete removes the coupon, reporting not found when it does not exist.
func (r *CouponRepository) Delete(ctx context.Context, couponID string) error {
	return r.base.Delete(ctx, couponID, firestore.Exists)
}

func (r *CouponRepository) FindByID(ctx context.Context, couponID string) (domain.Coupon, error) {
	doc, err := r.base.Get(ctx, couponID)
	if err != nil {
		return domain.Coupon{}, err
	}
	return decodeCoupon(doc)
}

// FindByCode looks up a coupon by its normalised code.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (domain.Coupon, error) {
	docs, err := r.byCode(ctx, code)
	if err != nil {
		return domain.Coupon{}, err
	}
	if len(docs) == 0 {
		return domain.Coupon{}, pfirestore.NotFound("coupons.find_by_code", "coupon not found")
	}
	return decodeCoupon(docs[0])
}

// List returns coupons ordered by code.
func (r *CouponRepository) List(ctx context.Context) ([]domain.Coupon, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("code", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	coupons := make([]domain.Coupon, 0, len(docs))
	for _, doc := range docs {
		coupon, err := decodeCoupon(doc)
		if err != nil {
			return nil, err
		}
		coupons = append(coupons, coupon)
	}
	return coupons, nil
}

func (r *CouponRepository) byCode(ctx context.Context, code string) ([]pfirestore.Document[couponDocument], error) {
	code = strings.TrimSpace(code)
	return r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("code", "==", code).Limit(2)
	})
}

func (r *CouponRepository) ensureCodeFree(ctx context.Context, code, ownerID string) error {
	docs, err := r.byCode(ctx, code)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		if doc.ID != ownerID {
			return pfirestore.Conflict("coupons.code", "coupon code already exists")
		}
	}
	return nil
}

type couponDocument struct {
	Code               string    `firestore:"code"`
	Description        string    `firestore:"description,omitempty"`
	Active             bool      `firestore:"active"`
	ExpiresAt          time.Time `firestore:"expiresAt"`
	MinOrderValue      string    `firestore:"minOrderValue"`
	DiscountPercentage string    `firestore:"discountPercentage"`
	MaxDiscountValue   string    `firestore:"maxDiscountValue"`
	CreatedAt          time.Time `firestore:"createdAt"`
	UpdatedAt          time.Time `firestore:"updatedAt"`
}

func encodeCoupon(coupon domain.Coupon) couponDocument {
	return couponDocument{
		Code:               coupon.Code,
		Description:        coupon.Description,
		Active:             coupon.Active,
		ExpiresAt:          coupon.ExpiresAt.UTC(),
		MinOrderValue:      encodeDecimal(coupon.MinOrderValue),
		DiscountPercentage: encodeDecimal(coupon.DiscountPercentage),
		MaxDiscountValue:   encodeDecimal(coupon.MaxDiscountValue),
		CreatedAt:          coupon.CreatedAt.UTC(),
		UpdatedAt:          coupon.UpdatedAt.UTC(),
	}
}

func decodeCoupon(doc pfirestore.Document[couponDocument]) (domain.Coupon, error) {
	minOrder, err := decodeDecimal("minOrderValue", doc.Data.MinOrderValue)
	if err != nil {
		return domain.Coupon{}, err
	}
	pct, err := decodeDecimal("discountPercentage", doc.Data.DiscountPercentage)
	if err != nil {
		return domain.Coupon{}, err
	}
	maxDiscount, err := decodeDecimal("maxDiscountValue", doc.Data.MaxDiscountValue)
	if err != nil {
		return domain.Coupon{}, err
	}
	return domain.Coupon{
		ID:                 doc.ID,
		Code:               doc.Data.Code,
		Description:        doc.Data.Description,
		Active:             doc.Data.Active,
		ExpiresAt:          doc.Data.ExpiresAt.UTC(),
		MinOrderValue:      minOrder,
		DiscountPercentage: pct,
		MaxDiscountValue:   maxDiscount,
		CreatedAt:          orFallback(doc.Data.CreatedAt, doc.CreateTime),
		UpdatedAt:          orFallback(doc.Data.UpdatedAt, doc.UpdateTime),
	}, nil
}

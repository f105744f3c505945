package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tiffinbox/api/internal/platform/textutil"
	"github.com/tiffinbox/api/internal/repositories"
)

var (
	// ErrCouponNotFound indicates no coupon matches the supplied code.
	ErrCouponNotFound = errors.New("coupon: not found")
	// ErrCouponInactive indicates the coupon exists but is switched off.
	ErrCouponInactive = errors.New("coupon: inactive")
	// ErrCouponExpired indicates the coupon is past its expiry.
	ErrCouponExpired = errors.New("coupon: expired")
	// ErrCouponMinimumNotMet indicates the cart total is below the coupon minimum.
	ErrCouponMinimumNotMet = errors.New("coupon: minimum order value not met")
)

// CouponValidatorDeps bundles collaborators for the coupon validator.
type CouponValidatorDeps struct {
	Coupons repositories.CouponRepository
	Clock   func() time.Time
}

type couponValidator struct {
	coupons repositories.CouponRepository
	clock   func() time.Time
}

// NewCouponValidator constructs a read-only coupon validator.
func NewCouponValidator(deps CouponValidatorDeps) (CouponValidator, error) {
	if deps.Coupons == nil {
		return nil, errors.New("coupon validator: coupon repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &couponValidator{
		coupons: deps.Coupons,
		clock: func() time.Time {
			return clock().UTC()
		},
	}, nil
}

// Validate runs the checks in order and stops at the first failure: existence, active flag,
// expiry (valid through ExpiresAt inclusive), then minimum order value.
func (v *couponValidator) Validate(ctx context.Context, code string, cartTotal decimal.Decimal) (Coupon, error) {
	normalized := textutil.NormalizeCode(code)
	if normalized == "" {
		return Coupon{}, newReasonError(ErrCouponNotFound, "Invalid coupon code")
	}

	coupon, err := v.coupons.FindByCode(ctx, normalized)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return Coupon{}, newReasonError(ErrCouponNotFound, "Invalid coupon code")
		}
		return Coupon{}, fmt.Errorf("coupon: lookup %s: %w", normalized, err)
	}

	if !coupon.Active {
		return Coupon{}, newReasonError(ErrCouponInactive, "Coupon is inactive")
	}
	if v.clock().After(coupon.ExpiresAt) {
		return Coupon{}, newReasonError(ErrCouponExpired, "Coupon has expired")
	}
	if cartTotal.LessThan(coupon.MinOrderValue) {
		return Coupon{}, newReasonError(ErrCouponMinimumNotMet, "Minimum order value must be ₹%s", coupon.MinOrderValue.String())
	}
	return coupon, nil
}

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	domain "github.com/tiffinbox/api/internal/domain"
	"github.com/tiffinbox/api/internal/platform/textutil"
	"github.com/tiffinbox/api/internal/repositories"
)

const (
	couponIDPrefix          = "cpn_"
	maxCouponCodeLength     = 32
	maxCouponDescriptionLen = 280
)

var (
	// ErrCouponInvalidInput indicates the coupon definition failed validation.
	ErrCouponInvalidInput = errors.New("coupon: invalid input")
	// ErrCouponConflict indicates another coupon already uses the code.
	ErrCouponConflict = errors.New("coupon: code already exists")
	// ErrCouponCartNotFound indicates the cart to preview against is missing or not the caller's.
	ErrCouponCartNotFound = errors.New("coupon: cart not found")
)

// CouponServiceDeps bundles collaborators for coupon management.
type CouponServiceDeps struct {
	Coupons     repositories.CouponRepository
	Carts       repositories.CartRepository
	Validator   CouponValidator
	Pricing     PricingEngine
	Clock       func() time.Time
	IDGenerator func() string
}

type couponService struct {
	coupons   repositories.CouponRepository
	carts     repositories.CartRepository
	validator CouponValidator
	pricing   PricingEngine
	clock     func() time.Time
	newID     func() string
}

// NewCouponService constructs the coupon management service.
func NewCouponService(deps CouponServiceDeps) (CouponService, error) {
	if deps.Coupons == nil {
		return nil, errors.New("coupon service: coupon repository is required")
	}
	if deps.Carts == nil {
		return nil, errors.New("coupon service: cart repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	validator := deps.Validator
	if validator == nil {
		v, err := NewCouponValidator(CouponValidatorDeps{Coupons: deps.Coupons, Clock: clock})
		if err != nil {
			return nil, err
		}
		validator = v
	}
	pricing := deps.Pricing
	if pricing == nil {
		pricing = NewPricingEngine(domain.DefaultCurrency)
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	return &couponService{
		coupons:   deps.Coupons,
		carts:     deps.Carts,
		validator: validator,
		pricing:   pricing,
		clock:     func() time.Time { return clock().UTC() },
		newID:     idGen,
	}, nil
}

func (s *couponService) List(ctx context.Context) ([]Coupon, error) {
	coupons, err := s.coupons.List(ctx)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return coupons, nil
}

func (s *couponService) Get(ctx context.Context, couponID string) (Coupon, error) {
	couponID = strings.TrimSpace(couponID)
	if couponID == "" {
		return Coupon{}, newReasonError(ErrCouponInvalidInput, "Coupon id is required")
	}
	coupon, err := s.coupons.FindByID(ctx, couponID)
	if err != nil {
		return Coupon{}, s.mapRepositoryError(err)
	}
	return coupon, nil
}

func (s *couponService) Create(ctx context.Context, cmd UpsertCouponCommand) (Coupon, error) {
	coupon, err := s.normalize(cmd)
	if err != nil {
		return Coupon{}, err
	}
	now := s.clock()
	coupon.ID = couponIDPrefix + s.newID()
	coupon.CreatedAt = now
	coupon.UpdatedAt = now
	if err := s.coupons.Insert(ctx, coupon); err != nil {
		return Coupon{}, s.mapRepositoryError(err)
	}
	return coupon, nil
}

func (s *couponService) Update(ctx context.Context, couponID string, cmd UpsertCouponCommand) (Coupon, error) {
	couponID = strings.TrimSpace(couponID)
	if couponID == "" {
		return Coupon{}, newReasonError(ErrCouponInvalidInput, "Coupon id is required")
	}
	existing, err := s.coupons.FindByID(ctx, couponID)
	if err != nil {
		return Coupon{}, s.mapRepositoryError(err)
	}
	coupon, err := s.normalize(cmd)
	if err != nil {
		return Coupon{}, err
	}
	coupon.ID = existing.ID
	coupon.CreatedAt = existing.CreatedAt
	coupon.UpdatedAt = s.clock()
	if err := s.coupons.Update(ctx, coupon); err != nil {
		return Coupon{}, s.mapRepositoryError(err)
	}
	return coupon, nil
}

func (s *couponService) Delete(ctx context.Context, couponID string) error {
	couponID = strings.TrimSpace(couponID)
	if couponID == "" {
		return newReasonError(ErrCouponInvalidInput, "Coupon id is required")
	}
	if err := s.coupons.Delete(ctx, couponID); err != nil {
		return s.mapRepositoryError(err)
	}
	return nil
}

// Apply prices the caller's cart with the coupon without placing an order.
func (s *couponService) Apply(ctx context.Context, cmd ApplyCouponCommand) (CouponPreview, error) {
	userID := strings.TrimSpace(cmd.UserID)
	cartID := strings.TrimSpace(cmd.CartID)
	if userID == "" || cartID == "" {
		return CouponPreview{}, newReasonError(ErrCouponInvalidInput, "Cart is required")
	}

	cart, err := s.carts.FindByID(ctx, cartID)
	if err != nil {
		if isRepositoryNotFound(err) {
			return CouponPreview{}, newReasonError(ErrCouponCartNotFound, "Cart not found")
		}
		return CouponPreview{}, s.mapRepositoryError(err)
	}
	if cart.UserID != userID {
		return CouponPreview{}, newReasonError(ErrCouponCartNotFound, "Cart not found")
	}

	coupon, err := s.validator.Validate(ctx, cmd.Code, cart.TotalPrice)
	if err != nil {
		return CouponPreview{}, err
	}
	pricing, err := s.pricing.Price(ctx, PricingInput{CartTotal: cart.TotalPrice, Coupon: &coupon})
	if err != nil {
		return CouponPreview{}, fmt.Errorf("%w: %v", ErrCouponInvalidInput, err)
	}
	return CouponPreview{Coupon: coupon, CartID: cart.ID, Pricing: pricing}, nil
}

func (s *couponService) normalize(cmd UpsertCouponCommand) (Coupon, error) {
	code := textutil.NormalizeCode(cmd.Code)
	switch {
	case code == "":
		return Coupon{}, newReasonError(ErrCouponInvalidInput, "Coupon code is required")
	case utf8.RuneCountInString(code) > maxCouponCodeLength:
		return Coupon{}, newReasonError(ErrCouponInvalidInput, "Coupon code must be at most %d characters", maxCouponCodeLength)
	case strings.ContainsAny(code, " \t\r\n"):
		return Coupon{}, newReasonError(ErrCouponInvalidInput, "Coupon code must not contain spaces")
	}

	description := textutil.PlainText(cmd.Description)
	if utf8.RuneCountInString(description) > maxCouponDescriptionLen {
		return Coupon{}, newReasonError(ErrCouponInvalidInput, "Description must be at most %d characters", maxCouponDescriptionLen)
	}

	if cmd.ExpiresAt.IsZero() {
		return Coupon{}, newReasonError(ErrCouponInvalidInput, "Expiry date is required")
	}
	if cmd.DiscountPercentage.IsNegative() || cmd.DiscountPercentage.GreaterThan(hundred) {
		return Coupon{}, newReasonError(ErrCouponInvalidInput, "Discount percentage must be between 0 and 100")
	}
	if cmd.MaxDiscountValue.IsNegative() {
		return Coupon{}, newReasonError(ErrCouponInvalidInput, "Maximum discount must not be negative")
	}
	if cmd.MinOrderValue.IsNegative() {
		return Coupon{}, newReasonError(ErrCouponInvalidInput, "Minimum order value must not be negative")
	}

	return Coupon{
		Code:               code,
		Description:        description,
		Active:             cmd.Active,
		ExpiresAt:          cmd.ExpiresAt.UTC(),
		MinOrderValue:      cmd.MinOrderValue,
		DiscountPercentage: cmd.DiscountPercentage,
		MaxDiscountValue:   cmd.MaxDiscountValue,
	}, nil
}

func (s *couponService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %w", newReasonError(ErrCouponNotFound, "Coupon not found"), err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %w", newReasonError(ErrCouponConflict, "Coupon code already exists"), err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("coupon: repository unavailable: %w", err)
		}
	}

	return err
}

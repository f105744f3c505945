package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	domain "github.com/tiffinbox/api/internal/domain"
)

// ErrPricingInvalidAmount signals a negative total or malformed coupon terms.
var ErrPricingInvalidAmount = errors.New("pricing: invalid amount")

var hundred = decimal.NewFromInt(100)

type pricingEngine struct {
	currency string
}

// NewPricingEngine constructs the coupon-aware pricing engine. An empty currency defaults to INR.
func NewPricingEngine(currency string) PricingEngine {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = domain.DefaultCurrency
	}
	return &pricingEngine{currency: currency}
}

// Price applies the percentage discount capped at the coupon's maximum. The final price never
// goes below zero and is rounded half-up to two decimals.
func (e *pricingEngine) Price(_ context.Context, input PricingInput) (PricingBreakdown, error) {
	total := input.CartTotal
	if total.IsNegative() {
		return PricingBreakdown{}, fmt.Errorf("%w: cart total %s is negative", ErrPricingInvalidAmount, total.StringFixed(2))
	}

	breakdown := PricingBreakdown{
		Currency:   e.currency,
		Total:      total.Round(2),
		Discount:   decimal.Zero,
		FinalPrice: total.Round(2),
	}
	if input.Coupon == nil {
		return breakdown, nil
	}

	coupon := input.Coupon
	if coupon.DiscountPercentage.IsNegative() || coupon.MaxDiscountValue.IsNegative() {
		return PricingBreakdown{}, fmt.Errorf("%w: coupon %s has negative terms", ErrPricingInvalidAmount, coupon.Code)
	}

	discount := total.Mul(coupon.DiscountPercentage).Div(hundred)
	if discount.GreaterThan(coupon.MaxDiscountValue) {
		discount = coupon.MaxDiscountValue
	}
	if discount.GreaterThan(total) {
		discount = total
	}

	breakdown.Discount = discount.Round(2)
	breakdown.FinalPrice = decimal.Max(decimal.Zero, total.Sub(discount)).Round(2)
	breakdown.CouponCode = coupon.Code
	return breakdown, nil
}

package domain

import "github.com/shopspring/decimal"

// MinorUnitsPerMajor is the number of gateway minor units (paise) per rupee.
const MinorUnitsPerMajor = 100

var minorUnitScale = decimal.NewFromInt(MinorUnitsPerMajor)

// PricingBreakdown captures the monetary result of pricing a cart total.
type PricingBreakdown struct {
	Currency   string
	Total      decimal.Decimal
	Discount   decimal.Decimal
	FinalPrice decimal.Decimal
	CouponCode string
}

// ToMinorUnits converts a major-unit amount into integer minor units, rounding half away from zero.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(minorUnitScale).Round(0).IntPart()
}

// FromMinorUnits converts integer minor units back to a two-decimal major amount.
func FromMinorUnits(units int64) decimal.Decimal {
	return decimal.NewFromInt(units).Div(minorUnitScale).Round(2)
}

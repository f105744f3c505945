package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseFixtures(t *testing.T) {
	now := time.Date(2025, time.June, 1, 8, 0, 0, 0, time.UTC)
	raw := []byte(`
menu:
  - id: thali
    name: " Veg Thali "
    category: mains
    price: "249.50"
  - id: kheer
    name: Kheer
    price: "80"
    available: false
coupons:
  - code: LUNCH10
    validFor: 24h
    discountPercentage: "10"
    maxDiscountValue: "75"
`)

	data, err := parseFixtures(raw, now)
	require.NoError(t, err)
	require.Len(t, data.Menu, 2)
	require.Equal(t, "Veg Thali", data.Menu[0].Name)
	require.Equal(t, "249.50", data.Menu[0].Price.StringFixed(2))
	require.True(t, data.Menu[0].Available)
	require.False(t, data.Menu[1].Available)
	require.Equal(t, now, data.Menu[0].CreatedAt)

	require.Len(t, data.Coupons, 1)
	coupon := data.Coupons[0]
	require.True(t, coupon.Active)
	require.Equal(t, now.Add(24*time.Hour), coupon.ExpiresAt)
	require.True(t, coupon.MinOrderValue.IsZero())
	require.Equal(t, "10", coupon.DiscountPercentage.String())
}

func TestParseFixturesRejectsInvalidEntries(t *testing.T) {
	now := time.Now()
	cases := map[string]string{
		"missing name":     "menu:\n  - id: x\n    price: \"10\"\n",
		"bad price":        "menu:\n  - id: x\n    name: X\n    price: ten\n",
		"negative price":   "menu:\n  - id: x\n    name: X\n    price: \"-1\"\n",
		"missing validFor": "coupons:\n  - code: A\n    discountPercentage: \"5\"\n",
		"bad amount":       "coupons:\n  - code: A\n    validFor: 1h\n    maxDiscountValue: lots\n",
		"not yaml":         "menu: [",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := parseFixtures([]byte(raw), now)
			require.Error(t, err)
		})
	}
}

func TestBundledFixturesParse(t *testing.T) {
	data, err := loadFixtures("fixtures.yaml", time.Now())
	require.NoError(t, err)
	require.NotEmpty(t, data.Menu)
	require.NotEmpty(t, data.Coupons)
}

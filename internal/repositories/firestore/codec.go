package firestore

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Money is persisted as decimal strings so amounts round-trip exactly.
func encodeDecimal(value decimal.Decimal) string {
	return value.String()
}

func decodeDecimal(field, raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("decode %s: %w", field, err)
	}
	return value, nil
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	value := t.UTC()
	return &value
}

func orFallback(t, fallback time.Time) time.Time {
	if t.IsZero() {
		return fallback
	}
	return t
}

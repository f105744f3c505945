package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	domain "github.com/tiffinbox/api/internal/domain"
	"github.com/tiffinbox/api/internal/services"
)

// fixtureFile is the on-disk seed format.
type fixtureFile struct {
	Menu    []menuFixture   `yaml:"menu"`
	Coupons []couponFixture `yaml:"coupons"`
}

type menuFixture struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Category    string   `yaml:"category"`
	Price       string   `yaml:"price"`
	Available   *bool    `yaml:"available"`
	Quantity    int      `yaml:"quantity"`
	ImageURL    string   `yaml:"imageUrl"`
	Ingredients []string `yaml:"ingredients"`
}

type couponFixture struct {
	Code               string `yaml:"code"`
	Description        string `yaml:"description"`
	Active             *bool  `yaml:"active"`
	ValidFor           string `yaml:"validFor"`
	MinOrderValue      string `yaml:"minOrderValue"`
	DiscountPercentage string `yaml:"discountPercentage"`
	MaxDiscountValue   string `yaml:"maxDiscountValue"`
}

type fixtures struct {
	Menu    []domain.MenuItem
	Coupons []services.UpsertCouponCommand
}

func loadFixtures(path string, now time.Time) (fixtures, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fixtures{}, fmt.Errorf("read fixtures: %w", err)
	}
	return parseFixtures(raw, now)
}

// parseFixtures decodes seed YAML. Coupon expiry is expressed relative to now.
func parseFixtures(raw []byte, now time.Time) (fixtures, error) {
	var file fixtureFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fixtures{}, fmt.Errorf("decode fixtures: %w", err)
	}

	var out fixtures
	for i, item := range file.Menu {
		if strings.TrimSpace(item.ID) == "" || strings.TrimSpace(item.Name) == "" {
			return fixtures{}, fmt.Errorf("menu[%d]: id and name are required", i)
		}
		price, err := decimal.NewFromString(strings.TrimSpace(item.Price))
		if err != nil {
			return fixtures{}, fmt.Errorf("menu[%d]: invalid price %q: %w", i, item.Price, err)
		}
		if price.IsNegative() {
			return fixtures{}, fmt.Errorf("menu[%d]: price must not be negative", i)
		}
		out.Menu = append(out.Menu, domain.MenuItem{
			ID:          strings.TrimSpace(item.ID),
			Name:        strings.TrimSpace(item.Name),
			Description: strings.TrimSpace(item.Description),
			Category:    strings.TrimSpace(item.Category),
			Price:       price,
			Available:   boolOr(item.Available, true),
			Quantity:    item.Quantity,
			ImageURL:    strings.TrimSpace(item.ImageURL),
			Ingredients: item.Ingredients,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}

	for i, coupon := range file.Coupons {
		validFor, err := time.ParseDuration(strings.TrimSpace(coupon.ValidFor))
		if err != nil || validFor <= 0 {
			return fixtures{}, fmt.Errorf("coupons[%d]: validFor must be a positive duration", i)
		}
		minimum, errMin := parseAmount(coupon.MinOrderValue)
		percentage, errPct := parseAmount(coupon.DiscountPercentage)
		maximum, errMax := parseAmount(coupon.MaxDiscountValue)
		if err := errors.Join(errMin, errPct, errMax); err != nil {
			return fixtures{}, fmt.Errorf("coupons[%d]: %w", i, err)
		}
		out.Coupons = append(out.Coupons, services.UpsertCouponCommand{
			Code:               coupon.Code,
			Description:        coupon.Description,
			Active:             boolOr(coupon.Active, true),
			ExpiresAt:          now.Add(validFor),
			MinOrderValue:      minimum,
			DiscountPercentage: percentage,
			MaxDiscountValue:   maximum,
		})
	}
	return out, nil
}

func parseAmount(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid amount %q", raw)
	}
	return value, nil
}

func boolOr(value *bool, fallback bool) bool {
	if value == nil {
		return fallback
	}
	return *value
}

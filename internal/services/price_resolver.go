package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	domain "github.com/hanko-field/storefront/internal/domain"
)

var (
	// ErrPriceCurrencyMismatch indicates no price entry exists for the requested currency.
	ErrPriceCurrencyMismatch = errors.New("price resolver: no price for currency")
	// ErrPriceInvalidInput indicates an empty currency id.
	ErrPriceInvalidInput = errors.New("price resolver: invalid input")
)

// ResolvePrice picks the entry whose currency id matches exactly.
func ResolvePrice(prices []domain.VariantPrice, currencyID string) (decimal.Decimal, error) {
	currencyID = strings.TrimSpace(currencyID)
	if currencyID == "" {
		return decimal.Zero, ErrPriceInvalidInput
	}
	for _, p := range prices {
		if strings.TrimSpace(p.CurrencyID) == currencyID {
			return p.Price, nil
		}
	}
	return decimal.Zero, fmt.Errorf("%w %q", ErrPriceCurrencyMismatch, currencyID)
}

// resolveVariantPrice wraps mismatches with the variant id.
func resolveVariantPrice(variant domain.Variant, currencyID string) (decimal.Decimal, error) {
	price, err := ResolvePrice(variant.Prices, currencyID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("variant %s: %w", variant.ID, err)
	}
	return price, nil
}

package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	domain "github.com/hanko-field/storefront/internal/domain"
)

// ErrShippingMethodNotFound indicates the selected shipping method is not offered.
var ErrShippingMethodNotFound = errors.New("totals: shipping method not found")

const moneyPlaces = 2

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// TotalsInput feeds CalculateTotals.
type TotalsInput struct {
	CurrencyID string
	Subtotal   decimal.Decimal
	Shipping   decimal.Decimal
	Settings   domain.ShopSettings
}

// CalculateTotals derives tax and total from the subtotal. Inclusive prices already
// contain tax, so tax is extracted and not added again.
func CalculateTotals(in TotalsInput) domain.Totals {
	percent := domain.DefaultTaxPercent
	if in.Settings.TaxValue != nil {
		percent = *in.Settings.TaxValue
	}
	rate := percent.Div(hundred)
	subtotal := in.Subtotal

	var tax, total decimal.Decimal
	if in.Settings.TaxesIncluded {
		tax = subtotal.Sub(subtotal.Div(one.Add(rate)))
		total = subtotal.Add(in.Shipping)
	} else {
		tax = subtotal.Mul(rate)
		total = subtotal.Add(tax).Add(in.Shipping)
	}

	return domain.Totals{
		CurrencyID:    in.CurrencyID,
		Subtotal:      subtotal.Round(moneyPlaces),
		Tax:           tax.Round(moneyPlaces),
		Shipping:      in.Shipping.Round(moneyPlaces),
		Discounts:     decimal.Zero,
		Total:         total.Round(moneyPlaces),
		TaxRate:       rate,
		TaxesIncluded: in.Settings.TaxesIncluded,
	}
}

// ShippingCost prices the selected method. No selection or no methods costs nothing.
func ShippingCost(methods []domain.ShippingMethod, selectedID, currencyID string) (decimal.Decimal, error) {
	selectedID = strings.TrimSpace(selectedID)
	if selectedID == "" || len(methods) == 0 {
		return decimal.Zero, nil
	}
	for _, m := range methods {
		if m.ID == selectedID {
			price, err := ResolvePrice(m.Prices, currencyID)
			if err != nil {
				return decimal.Zero, fmt.Errorf("shipping method %s: %w", m.ID, err)
			}
			return price, nil
		}
	}
	return decimal.Zero, fmt.Errorf("%w: %s", ErrShippingMethodNotFound, selectedID)
}

// CartSubtotal sums price times quantity in the cart currency.
func CartSubtotal(cart domain.Cart) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, item := range cart.Items {
		price, err := resolveVariantPrice(item.Variant, cart.CurrencyID)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total, nil
}

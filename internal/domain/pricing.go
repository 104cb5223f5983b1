package domain

import "github.com/shopspring/decimal"

// DefaultTaxPercent applies when the shop settings leave the tax value unset.
var DefaultTaxPercent = decimal.NewFromInt(18)

// Totals is the monetary breakdown shown on the order summary and submitted with the order.
type Totals struct {
	CurrencyID    string          `json:"currencyId"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Tax           decimal.Decimal `json:"tax"`
	Shipping      decimal.Decimal `json:"shipping"`
	Discounts     decimal.Decimal `json:"discounts"`
	Total         decimal.Decimal `json:"total"`
	TaxRate       decimal.Decimal `json:"taxRate"`
	TaxesIncluded bool            `json:"taxesIncluded"`
}

package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// FinancialStatus mirrors the backend payment state of an order.
type FinancialStatus string

// FulfillmentStatus mirrors the backend fulfilment state of an order.
type FulfillmentStatus string

// ShippingStatus mirrors the backend delivery state of an order.
type ShippingStatus string

const (
	FinancialStatusPending       FinancialStatus   = "PENDING"
	FulfillmentStatusUnfulfilled FulfillmentStatus = "UNFULFILLED"
	ShippingStatusPending        ShippingStatus    = "PENDING"

	// OrderSourceWeb tags orders placed through the storefront.
	OrderSourceWeb = "web"
)

// OrderLineItem is a line of the order submission payload.
type OrderLineItem struct {
	VariantID     string          `json:"variantId"`
	Title         string          `json:"title"`
	Price         decimal.Decimal `json:"price"`
	Quantity      int             `json:"quantity"`
	TotalDiscount decimal.Decimal `json:"totalDiscount"`
}

// OrderPayload is sent once per checkout to create the order.
type OrderPayload struct {
	CustomerID        string            `json:"customerId"`
	CurrencyID        string            `json:"currencyId"`
	TotalPrice        decimal.Decimal   `json:"totalPrice"`
	SubtotalPrice     decimal.Decimal   `json:"subtotalPrice"`
	TotalTax          decimal.Decimal   `json:"totalTax"`
	TotalDiscounts    decimal.Decimal   `json:"totalDiscounts"`
	LineItems         []OrderLineItem   `json:"lineItems"`
	ShippingAddressID string            `json:"shippingAddressId"`
	BillingAddressID  string            `json:"billingAddressId"`
	PaymentProviderID string            `json:"paymentProviderId"`
	ShippingMethodID  string            `json:"shippingMethodId"`
	FinancialStatus   FinancialStatus   `json:"financialStatus"`
	FulfillmentStatus FulfillmentStatus `json:"fulfillmentStatus"`
	ShippingStatus    ShippingStatus    `json:"shippingStatus"`
	CustomerNotes     string            `json:"customerNotes,omitempty"`
	Source            string            `json:"source"`
}

// Order is the backend representation returned after creation.
type Order struct {
	ID                string            `json:"id"`
	OrderNumber       string            `json:"orderNumber,omitempty"`
	CustomerID        string            `json:"customerId"`
	CurrencyID        string            `json:"currencyId"`
	TotalPrice        decimal.Decimal   `json:"totalPrice"`
	FinancialStatus   FinancialStatus   `json:"financialStatus"`
	FulfillmentStatus FulfillmentStatus `json:"fulfillmentStatus"`
	CreatedAt         time.Time         `json:"createdAt"`
}

// OrderUpdate patches an existing order.
type OrderUpdate struct {
	FinancialStatus   *FinancialStatus   `json:"financialStatus,omitempty"`
	FulfillmentStatus *FulfillmentStatus `json:"fulfillmentStatus,omitempty"`
	ShippingStatus    *ShippingStatus    `json:"shippingStatus,omitempty"`
	CustomerNotes     *string            `json:"customerNotes,omitempty"`
}

// Refund requests a refund against an order.
type Refund struct {
	OrderID string          `json:"orderId"`
	Amount  decimal.Decimal `json:"amount"`
	Reason  string          `json:"reason,omitempty"`
}

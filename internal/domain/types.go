package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Product is a catalogue entry as returned by the commerce backend.
type Product struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Slug        string    `json:"slug,omitempty"`
	Description string    `json:"description,omitempty"`
	ImageURL    string    `json:"imageUrl,omitempty"`
	Status      string    `json:"status,omitempty"`
	CategoryIDs []string  `json:"categoryIds,omitempty"`
	Variants    []Variant `json:"variants,omitempty"`
}

// Ref returns the snapshot stored alongside cart lines.
func (p Product) Ref() ProductRef {
	return ProductRef{ID: p.ID, Title: p.Title, Slug: p.Slug, ImageURL: p.ImageURL}
}

// Variant finds a variant by id.
func (p Product) Variant(variantID string) (Variant, bool) {
	variantID = strings.TrimSpace(variantID)
	for _, v := range p.Variants {
		if v.ID == variantID {
			return v, true
		}
	}
	return Variant{}, false
}

// ProductRef is the denormalised product snapshot kept on a cart line.
type ProductRef struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Slug     string `json:"slug,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// Variant is a purchasable option of a product. It owns the price list and inventory count.
type Variant struct {
	ID                string         `json:"id"`
	ProductID         string         `json:"productId,omitempty"`
	Title             string         `json:"title"`
	SKU               string         `json:"sku,omitempty"`
	InventoryQuantity int            `json:"inventoryQuantity"`
	ImageURL          string         `json:"imageUrl,omitempty"`
	Prices            []VariantPrice `json:"prices"`
}

// VariantPrice is a price entry for a single currency.
type VariantPrice struct {
	CurrencyID    string           `json:"currencyId"`
	Price         decimal.Decimal  `json:"price"`
	OriginalPrice *decimal.Decimal `json:"originalPrice,omitempty"`
}

// Category groups products for navigation.
type Category struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Slug     string `json:"slug,omitempty"`
	ParentID string `json:"parentId,omitempty"`
}

// Collection is a curated list of products.
type Collection struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Slug       string   `json:"slug,omitempty"`
	ProductIDs []string `json:"productIds,omitempty"`
}

// CartItem is a single (product, variant) line in the cart ledger.
type CartItem struct {
	Product  ProductRef `json:"product"`
	Variant  Variant    `json:"variant"`
	Quantity int        `json:"quantity"`
}

// Cart holds the ledger for one storefront session.
type Cart struct {
	SessionID  string     `json:"sessionId"`
	CurrencyID string     `json:"currencyId"`
	Items      []CartItem `json:"items"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// IsEmpty reports whether the cart has no lines.
func (c Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// ItemCount sums the quantities of every line.
func (c Cart) ItemCount() int {
	count := 0
	for _, item := range c.Items {
		count += item.Quantity
	}
	return count
}

// Address is a postal address owned by a customer.
type Address struct {
	ID        string `json:"id,omitempty"`
	Address1  string `json:"address1"`
	Address2  string `json:"address2,omitempty"`
	City      string `json:"city"`
	Province  string `json:"province"`
	Zip       string `json:"zip"`
	Phone     string `json:"phone,omitempty"`
	Company   string `json:"company,omitempty"`
	IsDefault bool   `json:"isDefault"`
}

// Fields strips identity from the address.
func (a Address) Fields() AddressFields {
	return AddressFields{
		Address1: a.Address1,
		Address2: a.Address2,
		City:     a.City,
		Province: a.Province,
		Zip:      a.Zip,
		Phone:    a.Phone,
		Company:  a.Company,
	}
}

// AddressFields are the editable fields of an address form.
type AddressFields struct {
	Address1 string `json:"address1"`
	Address2 string `json:"address2,omitempty"`
	City     string `json:"city"`
	Province string `json:"province"`
	Zip      string `json:"zip"`
	Phone    string `json:"phone,omitempty"`
	Company  string `json:"company,omitempty"`
}

// IsZero reports whether every field is blank.
func (f AddressFields) IsZero() bool {
	return strings.TrimSpace(f.Address1) == "" &&
		strings.TrimSpace(f.Address2) == "" &&
		strings.TrimSpace(f.City) == "" &&
		strings.TrimSpace(f.Province) == "" &&
		strings.TrimSpace(f.Zip) == "" &&
		strings.TrimSpace(f.Phone) == "" &&
		strings.TrimSpace(f.Company) == ""
}

// Address converts form fields into an address without an id.
func (f AddressFields) Address(isDefault bool) Address {
	return Address{
		Address1:  strings.TrimSpace(f.Address1),
		Address2:  strings.TrimSpace(f.Address2),
		City:      strings.TrimSpace(f.City),
		Province:  strings.TrimSpace(f.Province),
		Zip:       strings.TrimSpace(f.Zip),
		Phone:     strings.TrimSpace(f.Phone),
		Company:   strings.TrimSpace(f.Company),
		IsDefault: isDefault,
	}
}

// Customer is a registered or guest buyer known to the backend.
type Customer struct {
	ID        string    `json:"id"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	Addresses []Address `json:"addresses,omitempty"`
}

// FullName joins first and last name.
func (c Customer) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(c.FirstName) + " " + strings.TrimSpace(c.LastName))
}

// AddressByID returns the address with the given id.
func (c Customer) AddressByID(id string) (Address, bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Address{}, false
	}
	for _, addr := range c.Addresses {
		if addr.ID == id {
			return addr, true
		}
	}
	return Address{}, false
}

// DefaultAddress returns the default address, falling back to the first one.
func (c Customer) DefaultAddress() (Address, bool) {
	for _, addr := range c.Addresses {
		if addr.IsDefault {
			return addr, true
		}
	}
	if len(c.Addresses) > 0 {
		return c.Addresses[0], true
	}
	return Address{}, false
}

// CustomerFields are the contact fields collected during checkout.
type CustomerFields struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

// Currency describes a currency accepted by the shop.
type Currency struct {
	ID     string `json:"id"`
	Code   string `json:"code"`
	Symbol string `json:"symbol,omitempty"`
	Name   string `json:"name,omitempty"`
}

// ShopSettings carries the store-wide settings relevant to pricing.
type ShopSettings struct {
	Name               string           `json:"name"`
	Email              string           `json:"email,omitempty"`
	DefaultCurrencyID  string           `json:"defaultCurrencyId"`
	TaxesIncluded      bool             `json:"taxesIncluded"`
	TaxValue           *decimal.Decimal `json:"taxValue,omitempty"`
	AcceptedCurrencies []Currency       `json:"acceptedCurrencies,omitempty"`
}

// Currency finds an accepted currency by id.
func (s ShopSettings) Currency(id string) (Currency, bool) {
	for _, c := range s.AcceptedCurrencies {
		if c.ID == id {
			return c, true
		}
	}
	return Currency{}, false
}

// ShippingMethod is a delivery option priced per currency.
type ShippingMethod struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Prices      []VariantPrice `json:"prices"`
	IsActive    bool           `json:"isActive"`
}

// PaymentProvider is a payment option configured on the backend.
type PaymentProvider struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	IsActive bool   `json:"isActive"`
}

// Clone returns a deep copy so stores never share slices with callers.
func (c Cart) Clone() Cart {
	dup := c
	if c.Items != nil {
		dup.Items = make([]CartItem, len(c.Items))
		for i, item := range c.Items {
			item.Variant = item.Variant.Clone()
			dup.Items[i] = item
		}
	}
	return dup
}

// Clone returns a deep copy of the variant including its price list.
func (v Variant) Clone() Variant {
	dup := v
	if v.Prices != nil {
		dup.Prices = make([]VariantPrice, len(v.Prices))
		copy(dup.Prices, v.Prices)
	}
	return dup
}

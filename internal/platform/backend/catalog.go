package backend

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	domain "github.com/hanko-field/storefront/internal/domain"
)

// ListQuery narrows catalogue listings.
type ListQuery struct {
	Search     string
	CategoryID string
	Limit      int
	Offset     int
}

func (q ListQuery) values() url.Values {
	v := url.Values{}
	if s := strings.TrimSpace(q.Search); s != "" {
		v.Set("search", s)
	}
	if s := strings.TrimSpace(q.CategoryID); s != "" {
		v.Set("categoryId", s)
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		v.Set("offset", strconv.Itoa(q.Offset))
	}
	return v
}

// ProductInput creates a catalogue product.
type ProductInput struct {
	Title       string           `json:"title"`
	Slug        string           `json:"slug,omitempty"`
	Description string           `json:"description,omitempty"`
	CategoryIDs []string         `json:"categoryIds,omitempty"`
	Variants    []domain.Variant `json:"variants,omitempty"`
}

func (c *Client) ListProducts(ctx context.Context, q ListQuery) ([]domain.Product, error) {
	var out []domain.Product
	err := c.call(ctx, "list products", http.MethodGet, "/products", nil, &out, withQuery(q.values()))
	return out, err
}

func (c *Client) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	var out domain.Product
	err := c.call(ctx, "get product", http.MethodGet, "/products/"+url.PathEscape(id), nil, &out)
	return out, err
}

func (c *Client) CreateProduct(ctx context.Context, in ProductInput) (domain.Product, error) {
	var out domain.Product
	err := c.call(ctx, "create product", http.MethodPost, "/products", in, &out)
	return out, err
}

func (c *Client) ListVariants(ctx context.Context, productID string) ([]domain.Variant, error) {
	q := url.Values{}
	if productID = strings.TrimSpace(productID); productID != "" {
		q.Set("productId", productID)
	}
	var out []domain.Variant
	err := c.call(ctx, "list variants", http.MethodGet, "/product-variants", nil, &out, withQuery(q))
	return out, err
}

func (c *Client) GetVariant(ctx context.Context, id string) (domain.Variant, error) {
	var out domain.Variant
	err := c.call(ctx, "get variant", http.MethodGet, "/product-variants/"+url.PathEscape(id), nil, &out)
	return out, err
}

func (c *Client) ListCategories(ctx context.Context) ([]domain.Category, error) {
	var out []domain.Category
	err := c.call(ctx, "list categories", http.MethodGet, "/categories", nil, &out)
	return out, err
}

func (c *Client) ListCollections(ctx context.Context) ([]domain.Collection, error) {
	var out []domain.Collection
	err := c.call(ctx, "list collections", http.MethodGet, "/collections", nil, &out)
	return out, err
}

func (c *Client) ListShippingMethods(ctx context.Context) ([]domain.ShippingMethod, error) {
	var out []domain.ShippingMethod
	err := c.call(ctx, "list shipping methods", http.MethodGet, "/shipping-methods", nil, &out)
	return out, err
}

func (c *Client) ListPaymentProviders(ctx context.Context) ([]domain.PaymentProvider, error) {
	var out []domain.PaymentProvider
	err := c.call(ctx, "list payment providers", http.MethodGet, "/payment-providers", nil, &out)
	return out, err
}

// GetShop returns the shop settings that drive tax and currency.
func (c *Client) GetShop(ctx context.Context) (domain.ShopSettings, error) {
	var out domain.ShopSettings
	err := c.call(ctx, "get shop", http.MethodGet, "/shop", nil, &out)
	return out, err
}

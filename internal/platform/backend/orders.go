package backend

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	domain "github.com/hanko-field/storefront/internal/domain"
)

// CreateOrder posts the order payload once per checkout.
func (c *Client) CreateOrder(ctx context.Context, payload domain.OrderPayload, idempotencyKey string) (domain.Order, error) {
	var out domain.Order
	err := c.call(ctx, "create order", http.MethodPost, "/order", payload, &out, withIdempotencyKey(idempotencyKey))
	return out, err
}

// ListOrders lists orders, optionally for one customer.
func (c *Client) ListOrders(ctx context.Context, customerID string) ([]domain.Order, error) {
	q := url.Values{}
	if customerID = strings.TrimSpace(customerID); customerID != "" {
		q.Set("customerId", customerID)
	}
	var out []domain.Order
	err := c.call(ctx, "list orders", http.MethodGet, "/order", nil, &out, withQuery(q))
	return out, err
}

func (c *Client) UpdateOrder(ctx context.Context, id string, update domain.OrderUpdate) (domain.Order, error) {
	var out domain.Order
	err := c.call(ctx, "update order", http.MethodPatch, "/order/"+url.PathEscape(id), update, &out)
	return out, err
}

func (c *Client) CreateRefund(ctx context.Context, refund domain.Refund) error {
	return c.call(ctx, "create refund", http.MethodPost, "/refund", refund, nil)
}

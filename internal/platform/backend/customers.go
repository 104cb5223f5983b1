package backend

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	domain "github.com/hanko-field/storefront/internal/domain"
)

// CustomerInput creates a customer. Guest checkouts embed their addresses.
type CustomerInput struct {
	FirstName string           `json:"firstName"`
	LastName  string           `json:"lastName"`
	Email     string           `json:"email"`
	Phone     string           `json:"phone,omitempty"`
	Addresses []domain.Address `json:"addresses,omitempty"`
}

// CustomerPatch updates a customer. A non-nil Addresses replaces the stored list.
type CustomerPatch struct {
	FirstName *string          `json:"firstName,omitempty"`
	LastName  *string          `json:"lastName,omitempty"`
	Phone     *string          `json:"phone,omitempty"`
	Addresses []domain.Address `json:"addresses,omitempty"`
}

// LoginResult is the backend answer to a customer login.
type LoginResult struct {
	Token    string          `json:"token"`
	Customer domain.Customer `json:"customer"`
}

// CreateCustomer posts a new customer. idempotencyKey lets the backend deduplicate retries.
func (c *Client) CreateCustomer(ctx context.Context, in CustomerInput, idempotencyKey string) (domain.Customer, error) {
	var out domain.Customer
	err := c.call(ctx, "create customer", http.MethodPost, "/customers", in, &out, withIdempotencyKey(idempotencyKey))
	return out, err
}

func (c *Client) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	var out domain.Customer
	err := c.call(ctx, "get customer", http.MethodGet, "/customers/"+url.PathEscape(id), nil, &out)
	return out, err
}

func (c *Client) UpdateCustomer(ctx context.Context, id string, patch CustomerPatch) (domain.Customer, error) {
	var out domain.Customer
	err := c.call(ctx, "update customer", http.MethodPatch, "/customers/"+url.PathEscape(id), patch, &out)
	return out, err
}

// Login exchanges credentials for a customer JWT.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return LoginResult{}, errors.New("backend: email and password are required")
	}
	var out LoginResult
	body := map[string]string{"email": email, "password": password}
	err := c.call(ctx, "login", http.MethodPost, "/customers/login", body, &out)
	return out, err
}

package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/services"
)

func mugCart() domain.Cart {
	return domain.Cart{
		SessionID:  testSessionID,
		CurrencyID: "PEN",
		UpdatedAt:  time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Items: []domain.CartItem{{
			Product: domain.ProductRef{ID: "prod-mug", Title: "Mug"},
			Variant: domain.Variant{
				ID:                "var-blue",
				Title:             "Blue",
				InventoryQuantity: 10,
				Prices:            []domain.VariantPrice{{CurrencyID: "PEN", Price: decimal.RequireFromString("100")}},
			},
			Quantity: 2,
		}},
	}
}

func newCartRouter(carts *stubCartService, catalog *stubCatalogService) http.Handler {
	h := NewCartHandlers(carts, catalog)
	return NewRouter(WithAPIMiddlewares(withSession), WithCartRoutes(h.Routes))
}

func TestCartHandlersGetCart(t *testing.T) {
	carts := &stubCartService{cart: mugCart()}
	rr := serve(t, newCartRouter(carts, &stubCatalogService{}), http.MethodGet, "/api/v1/cart", "")

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var body struct {
		ItemsCount int    `json:"itemsCount"`
		Subtotal   string `json:"subtotal"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.ItemsCount != 2 || body.Subtotal != "200.00" {
		t.Fatalf("unexpected body %+v", body)
	}
	if rr.Header().Get("ETag") == "" || rr.Header().Get("Cache-Control") != "no-store" {
		t.Fatalf("expected cache headers, got %v", rr.Header())
	}
}

func TestCartHandlersEmptyCartRendersEmptyItems(t *testing.T) {
	carts := &stubCartService{cart: domain.Cart{SessionID: testSessionID}}
	rr := serve(t, newCartRouter(carts, &stubCatalogService{}), http.MethodGet, "/api/v1/cart", "")

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body struct {
		Cart struct {
			Items []any `json:"items"`
		} `json:"cart"`
		Subtotal string `json:"subtotal"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Cart.Items == nil || len(body.Cart.Items) != 0 || body.Subtotal != "0.00" {
		t.Fatalf("unexpected body %s", rr.Body.String())
	}
}

func TestCartHandlersAddItemResolvesProduct(t *testing.T) {
	cart := mugCart()
	product := domain.Product{ID: "prod-mug", Title: "Mug", Variants: []domain.Variant{cart.Items[0].Variant}}
	carts := &stubCartService{cart: cart}
	catalog := &stubCatalogService{products: map[string]domain.Product{"prod-mug": product}}

	rr := serve(t, newCartRouter(carts, catalog), http.MethodPost, "/api/v1/cart/items",
		`{"productId":" prod-mug ","variantId":"var-blue","quantity":2}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(carts.added) != 1 {
		t.Fatalf("expected one add, got %d", len(carts.added))
	}
	cmd := carts.added[0]
	if cmd.SessionID != testSessionID || cmd.Product.ID != "prod-mug" || cmd.VariantID != "var-blue" || cmd.Quantity != 2 {
		t.Fatalf("unexpected command %+v", cmd)
	}
}

func TestCartHandlersAddItemErrors(t *testing.T) {
	product := domain.Product{ID: "prod-mug"}
	tests := []struct {
		name   string
		body   string
		err    error
		status int
		code   string
	}{
		{name: "missing product", body: `{"variantId":"var-blue","quantity":1}`, status: http.StatusBadRequest, code: "invalid_request"},
		{name: "unknown product", body: `{"productId":"nope","variantId":"var-blue","quantity":1}`, status: http.StatusNotFound, code: "not_found"},
		{name: "malformed json", body: `{"productId":`, status: http.StatusBadRequest, code: "invalid_request"},
		{name: "insufficient stock", body: `{"productId":"prod-mug","variantId":"var-blue","quantity":99}`, err: services.ErrCartInsufficientStock, status: http.StatusConflict, code: "insufficient_stock"},
		{name: "currency mismatch", body: `{"productId":"prod-mug","variantId":"var-blue","quantity":1}`, err: fmt.Errorf("%w: USD", services.ErrPriceCurrencyMismatch), status: http.StatusUnprocessableEntity, code: "currency_mismatch"},
		{name: "store down", body: `{"productId":"prod-mug","variantId":"var-blue","quantity":1}`, err: services.ErrCartUnavailable, status: http.StatusServiceUnavailable, code: "service_unavailable"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			carts := &stubCartService{err: tc.err}
			catalog := &stubCatalogService{products: map[string]domain.Product{"prod-mug": product}}
			rr := serve(t, newCartRouter(carts, catalog), http.MethodPost, "/api/v1/cart/items", tc.body)

			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rr.Code, rr.Body.String())
			}
			var body map[string]any
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["error"] != tc.code {
				t.Fatalf("expected code %s, got %v", tc.code, body["error"])
			}
		})
	}
}

func TestCartHandlersItemMutations(t *testing.T) {
	carts := &stubCartService{cart: mugCart()}
	router := newCartRouter(carts, &stubCatalogService{})

	if rr := serve(t, router, http.MethodPatch, "/api/v1/cart/items/var-blue", `{"quantity":5}`); rr.Code != http.StatusOK {
		t.Fatalf("patch: expected 200, got %d", rr.Code)
	}
	if carts.updated["var-blue"] != 5 {
		t.Fatalf("expected quantity 5, got %v", carts.updated)
	}
	if rr := serve(t, router, http.MethodDelete, "/api/v1/cart/items/var-blue", ""); rr.Code != http.StatusOK {
		t.Fatalf("delete item: expected 200, got %d", rr.Code)
	}
	if len(carts.removed) != 1 || carts.removed[0] != "var-blue" {
		t.Fatalf("unexpected removals %v", carts.removed)
	}
	if rr := serve(t, router, http.MethodPut, "/api/v1/cart/currency", `{"currencyId":"USD"}`); rr.Code != http.StatusOK {
		t.Fatalf("currency: expected 200, got %d", rr.Code)
	}
	if len(carts.currencies) != 1 || carts.currencies[0] != "USD" {
		t.Fatalf("unexpected currency calls %v", carts.currencies)
	}
	if rr := serve(t, router, http.MethodDelete, "/api/v1/cart", ""); rr.Code != http.StatusNoContent {
		t.Fatalf("clear: expected 204, got %d", rr.Code)
	}
	if carts.cleared != 1 {
		t.Fatalf("expected one clear, got %d", carts.cleared)
	}
}

func TestCartHandlersUnpricedLineSurfacesMismatch(t *testing.T) {
	cart := mugCart()
	cart.CurrencyID = "USD"
	rr := serve(t, newCartRouter(&stubCartService{cart: cart}, &stubCatalogService{}), http.MethodGet, "/api/v1/cart", "")

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestCartHandlersRequireSession(t *testing.T) {
	h := NewCartHandlers(&stubCartService{}, &stubCatalogService{})
	router := NewRouter(WithCartRoutes(h.Routes))

	rr := serve(t, router, http.MethodGet, "/api/v1/cart", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without a session, got %d", rr.Code)
	}
}

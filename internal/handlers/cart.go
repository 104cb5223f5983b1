package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/platform/httpx"
	"github.com/hanko-field/storefront/internal/services"
)

const maxCartBodySize = 16 * 1024

// CartHandlers exposes the session cart ledger.
type CartHandlers struct {
	carts   services.CartService
	catalog services.CatalogService
}

// NewCartHandlers constructs cart handlers. The catalog resolves products for add-to-cart.
func NewCartHandlers(carts services.CartService, catalog services.CatalogService) *CartHandlers {
	return &CartHandlers{carts: carts, catalog: catalog}
}

// Routes wires the /cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.getCart)
	r.Delete("/", h.clearCart)
	r.Post("/items", h.addItem)
	r.Patch("/items/{variantID}", h.updateItem)
	r.Delete("/items/{variantID}", h.removeItem)
	r.Put("/currency", h.setCurrency)
}

type addItemRequest struct {
	ProductID string `json:"productId"`
	VariantID string `json:"variantId"`
	Quantity  int    `json:"quantity"`
}

type updateItemRequest struct {
	Quantity int `json:"quantity"`
}

type currencyRequest struct {
	CurrencyID string `json:"currencyId"`
}

type cartResponse struct {
	Cart       domain.Cart `json:"cart"`
	ItemsCount int         `json:"itemsCount"`
	Subtotal   string      `json:"subtotal"`
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	sid, ok := sessionID(w, r)
	if !ok {
		return
	}
	cart, err := h.carts.GetCart(r.Context(), sid)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeCart(r.Context(), w, http.StatusOK, cart)
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	sid, ok := sessionID(w, r)
	if !ok {
		return
	}
	if err := h.carts.Clear(r.Context(), sid); err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(w, r) {
		return
	}
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}
	sid, ok := sessionID(w, r)
	if !ok {
		return
	}
	var req addItemRequest
	if !decodeBody(w, r, maxCartBodySize, &req) {
		return
	}
	productID := strings.TrimSpace(req.ProductID)
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "productId is required", http.StatusBadRequest))
		return
	}

	product, err := h.catalog.GetProduct(ctx, productID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	cart, err := h.carts.AddItem(ctx, services.AddCartItemCommand{
		SessionID: sid,
		Product:   product,
		VariantID: strings.TrimSpace(req.VariantID),
		Quantity:  req.Quantity,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeCart(r.Context(), w, http.StatusOK, cart)
}

func (h *CartHandlers) updateItem(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	sid, ok := sessionID(w, r)
	if !ok {
		return
	}
	var req updateItemRequest
	if !decodeBody(w, r, maxCartBodySize, &req) {
		return
	}
	cart, err := h.carts.UpdateQuantity(r.Context(), sid, chi.URLParam(r, "variantID"), req.Quantity)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeCart(r.Context(), w, http.StatusOK, cart)
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	sid, ok := sessionID(w, r)
	if !ok {
		return
	}
	cart, err := h.carts.RemoveItem(r.Context(), sid, chi.URLParam(r, "variantID"))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeCart(r.Context(), w, http.StatusOK, cart)
}

func (h *CartHandlers) setCurrency(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	sid, ok := sessionID(w, r)
	if !ok {
		return
	}
	var req currencyRequest
	if !decodeBody(w, r, maxCartBodySize, &req) {
		return
	}
	cart, err := h.carts.SetCurrency(r.Context(), sid, req.CurrencyID)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeCart(r.Context(), w, http.StatusOK, cart)
}

func (h *CartHandlers) ready(w http.ResponseWriter, r *http.Request) bool {
	if h == nil || h.carts == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return false
	}
	return true
}

// writeCart renders the cart with its subtotal. A line with no price in the
// cart currency surfaces as a 422 rather than a silently wrong subtotal.
func writeCart(ctx context.Context, w http.ResponseWriter, status int, cart domain.Cart) {
	subtotal := decimal.Zero
	if !cart.IsEmpty() {
		var err error
		subtotal, err = services.CartSubtotal(cart)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("currency_mismatch", err.Error(), http.StatusUnprocessableEntity))
			return
		}
	}
	if cart.Items == nil {
		cart.Items = []domain.CartItem{}
	}
	setCartResponseHeaders(w, cart)
	writeJSONResponse(w, status, cartResponse{
		Cart:       cart,
		ItemsCount: cart.ItemCount(),
		Subtotal:   subtotal.StringFixed(2),
	})
}

func setCartResponseHeaders(w http.ResponseWriter, cart domain.Cart) {
	w.Header().Set("Pragma", "no-cache")
	if !cart.UpdatedAt.IsZero() {
		w.Header().Set("Last-Modified", cart.UpdatedAt.UTC().Format(http.TimeFormat))
	}
	if etag := buildCartETag(cart); etag != "" {
		w.Header().Set("ETag", etag)
	}
}

func buildCartETag(cart domain.Cart) string {
	if strings.TrimSpace(cart.SessionID) == "" || cart.UpdatedAt.IsZero() {
		return ""
	}
	input := fmt.Sprintf("%s:%d:%d", strings.TrimSpace(cart.SessionID), cart.UpdatedAt.UTC().UnixNano(), cart.ItemCount())
	sum := sha256.Sum256([]byte(input))
	return fmt.Sprintf(`W/"%s"`, hex.EncodeToString(sum[:8]))
}

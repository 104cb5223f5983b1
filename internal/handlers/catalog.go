package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/platform/backend"
	"github.com/hanko-field/storefront/internal/platform/httpx"
	"github.com/hanko-field/storefront/internal/services"
)

const (
	catalogCacheControl = "public, max-age=60"
	maxProductPageSize  = 100
)

// CatalogHandlers serves read-only catalogue and shop configuration.
type CatalogHandlers struct {
	catalog services.CatalogService
}

// NewCatalogHandlers constructs catalogue handlers.
func NewCatalogHandlers(catalog services.CatalogService) *CatalogHandlers {
	return &CatalogHandlers{catalog: catalog}
}

// Routes registers catalogue endpoints.
func (h *CatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/products", h.listProducts)
	r.Get("/products/{productID}", h.getProduct)
	r.Get("/shipping-methods", h.shippingMethods)
	r.Get("/payment-providers", h.paymentProviders)
	r.Get("/shop", h.shop)
}

type productListResponse struct {
	Items []domain.Product `json:"items"`
}

func (h *CatalogHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(w, r) {
		return
	}
	query, err := parseListQuery(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	products, err := h.catalog.ListProducts(ctx, query)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	if products == nil {
		products = []domain.Product{}
	}
	writeCatalogJSON(w, productListResponse{Items: products})
}

func (h *CatalogHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	product, err := h.catalog.GetProduct(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeCatalogJSON(w, product)
}

func (h *CatalogHandlers) shippingMethods(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	methods, err := h.catalog.ShippingMethods(r.Context())
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	if methods == nil {
		methods = []domain.ShippingMethod{}
	}
	writeCatalogJSON(w, map[string]any{"items": methods})
}

func (h *CatalogHandlers) paymentProviders(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	providers, err := h.catalog.PaymentProviders(r.Context())
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	if providers == nil {
		providers = []domain.PaymentProvider{}
	}
	writeCatalogJSON(w, map[string]any{"items": providers})
}

func (h *CatalogHandlers) shop(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	settings, err := h.catalog.ShopSettings(r.Context())
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeCatalogJSON(w, settings)
}

func (h *CatalogHandlers) ready(w http.ResponseWriter, r *http.Request) bool {
	if h == nil || h.catalog == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return false
	}
	return true
}

func parseListQuery(r *http.Request) (backend.ListQuery, error) {
	values := r.URL.Query()
	query := backend.ListQuery{
		Search:     strings.TrimSpace(values.Get("search")),
		CategoryID: strings.TrimSpace(values.Get("categoryId")),
	}
	var err error
	if query.Limit, err = parseNonNegative(values.Get("limit"), "limit"); err != nil {
		return backend.ListQuery{}, err
	}
	if query.Limit > maxProductPageSize {
		query.Limit = maxProductPageSize
	}
	if query.Offset, err = parseNonNegative(values.Get("offset"), "offset"); err != nil {
		return backend.ListQuery{}, err
	}
	return query, nil
}

func parseNonNegative(raw, name string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, &queryError{name: name}
	}
	return n, nil
}

type queryError struct{ name string }

func (e *queryError) Error() string { return e.name + " must be a non-negative integer" }

func writeCatalogJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Cache-Control", catalogCacheControl)
	httpx.WriteJSON(w, http.StatusOK, payload)
}

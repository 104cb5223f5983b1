package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/platform/auth"
	"github.com/hanko-field/storefront/internal/platform/backend"
	"github.com/hanko-field/storefront/internal/platform/requestctx"
	"github.com/hanko-field/storefront/internal/services"
)

const testSessionID = "sess-1"

// withSession mimics the session cookie middleware.
func withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(requestctx.WithSessionID(r.Context(), testSessionID)))
	})
}

// withCustomer mimics the customer authenticator for a signed-in shopper.
func withCustomer(id string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := auth.WithIdentity(r.Context(), &auth.Identity{CustomerID: id, Token: "jwt"})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func serve(t *testing.T, h http.Handler, method, target, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

type stubCartService struct {
	cart       domain.Cart
	err        error
	added      []services.AddCartItemCommand
	updated    map[string]int
	removed    []string
	cleared    int
	currencies []string
}

func (s *stubCartService) GetCart(context.Context, string) (domain.Cart, error) {
	return s.cart, s.err
}

func (s *stubCartService) AddItem(_ context.Context, cmd services.AddCartItemCommand) (domain.Cart, error) {
	s.added = append(s.added, cmd)
	return s.cart, s.err
}

func (s *stubCartService) UpdateQuantity(_ context.Context, _ string, variantID string, quantity int) (domain.Cart, error) {
	if s.updated == nil {
		s.updated = map[string]int{}
	}
	s.updated[variantID] = quantity
	return s.cart, s.err
}

func (s *stubCartService) RemoveItem(_ context.Context, _ string, variantID string) (domain.Cart, error) {
	s.removed = append(s.removed, variantID)
	return s.cart, s.err
}

func (s *stubCartService) Clear(context.Context, string) error {
	s.cleared++
	return s.err
}

func (s *stubCartService) GetTotal(context.Context, string) (decimal.Decimal, error) {
	return decimal.Zero, s.err
}

func (s *stubCartService) SetCurrency(_ context.Context, _ string, currencyID string) (domain.Cart, error) {
	s.currencies = append(s.currencies, currencyID)
	return s.cart, s.err
}

type stubCatalogService struct {
	products  map[string]domain.Product
	queries   []backend.ListQuery
	settings  domain.ShopSettings
	methods   []domain.ShippingMethod
	providers []domain.PaymentProvider
	err       error
}

func (s *stubCatalogService) ListProducts(_ context.Context, q backend.ListQuery) ([]domain.Product, error) {
	s.queries = append(s.queries, q)
	out := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	return out, s.err
}

func (s *stubCatalogService) GetProduct(_ context.Context, id string) (domain.Product, error) {
	if s.err != nil {
		return domain.Product{}, s.err
	}
	p, ok := s.products[id]
	if !ok {
		return domain.Product{}, services.ErrCatalogNotFound
	}
	return p, nil
}

func (s *stubCatalogService) ShopSettings(context.Context) (domain.ShopSettings, error) {
	return s.settings, s.err
}

func (s *stubCatalogService) ShippingMethods(context.Context) ([]domain.ShippingMethod, error) {
	return s.methods, s.err
}

func (s *stubCatalogService) PaymentProviders(context.Context) ([]domain.PaymentProvider, error) {
	return s.providers, s.err
}

type stubCheckoutService struct {
	view      services.CheckoutView
	summary   services.CheckoutSummary
	result    services.SubmitResult
	err       error
	calls     []string
	customers []string
	patch     services.FormPatch
	role      domain.AddressRole
	addressID string
	same      *bool
}

func (s *stubCheckoutService) record(name, customerID string) {
	s.calls = append(s.calls, name)
	s.customers = append(s.customers, customerID)
}

func (s *stubCheckoutService) Start(_ context.Context, _ string, customerID string) (services.CheckoutView, error) {
	s.record("start", customerID)
	return s.view, s.err
}

func (s *stubCheckoutService) UpdateForm(_ context.Context, _ string, patch services.FormPatch) (services.CheckoutView, error) {
	s.record("update", "")
	s.patch = patch
	return s.view, s.err
}

func (s *stubCheckoutService) SelectAddress(_ context.Context, _ string, customerID string, role domain.AddressRole, addressID string) (services.CheckoutView, error) {
	s.record("select", customerID)
	s.role, s.addressID = role, addressID
	return s.view, s.err
}

func (s *stubCheckoutService) EnterNewAddress(_ context.Context, _ string, role domain.AddressRole) (services.CheckoutView, error) {
	s.record("new", "")
	s.role = role
	return s.view, s.err
}

func (s *stubCheckoutService) ToggleSameBilling(_ context.Context, _ string, on bool) (services.CheckoutView, error) {
	s.record("toggle", "")
	s.same = &on
	return s.view, s.err
}

func (s *stubCheckoutService) Next(_ context.Context, _ string, customerID string) (services.CheckoutView, error) {
	s.record("next", customerID)
	return s.view, s.err
}

func (s *stubCheckoutService) Prev(context.Context, string) (services.CheckoutView, error) {
	s.record("prev", "")
	return s.view, s.err
}

func (s *stubCheckoutService) Summary(context.Context, string) (services.CheckoutSummary, error) {
	s.record("summary", "")
	return s.summary, s.err
}

func (s *stubCheckoutService) Submit(_ context.Context, _ string, customerID string) (services.SubmitResult, error) {
	s.record("submit", customerID)
	return s.result, s.err
}

func (s *stubCheckoutService) Guard(context.Context, string) error {
	s.record("guard", "")
	return s.err
}

func (s *stubCheckoutService) Reset(context.Context, string) error {
	s.record("reset", "")
	return s.err
}

type stubSessionService struct {
	session domain.CheckoutSession
	login   services.LoginResult
	err     error
	logins  int
}

func (s *stubSessionService) Load(_ context.Context, sessionID string) (domain.CheckoutSession, error) {
	out := s.session
	out.SessionID = sessionID
	return out, s.err
}

func (s *stubSessionService) Save(_ context.Context, session domain.CheckoutSession) (domain.CheckoutSession, error) {
	return session, s.err
}

func (s *stubSessionService) Discard(context.Context, string) error { return s.err }

func (s *stubSessionService) Login(context.Context, string, string) (services.LoginResult, error) {
	s.logins++
	return s.login, s.err
}

var (
	_ services.CartService     = (*stubCartService)(nil)
	_ services.CatalogService  = (*stubCatalogService)(nil)
	_ services.CheckoutService = (*stubCheckoutService)(nil)
	_ services.SessionService  = (*stubSessionService)(nil)
)

package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/platform/httpx"
	"github.com/hanko-field/storefront/internal/services"
)

const maxCheckoutRequestBody = 32 * 1024

// CheckoutHandlers drives the checkout wizard for guests and signed-in customers.
type CheckoutHandlers struct {
	checkout services.CheckoutService
	// submitGuard wraps the submit route, typically with the idempotency middleware.
	submitGuard func(http.Handler) http.Handler
}

// CheckoutHandlersOption customises checkout handlers.
type CheckoutHandlersOption func(*CheckoutHandlers)

// WithSubmitMiddleware wraps POST /checkout/submit.
func WithSubmitMiddleware(mw func(http.Handler) http.Handler) CheckoutHandlersOption {
	return func(h *CheckoutHandlers) {
		h.submitGuard = mw
	}
}

// NewCheckoutHandlers constructs checkout handlers.
func NewCheckoutHandlers(checkout services.CheckoutService, opts ...CheckoutHandlersOption) *CheckoutHandlers {
	h := &CheckoutHandlers{checkout: checkout}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers checkout endpoints under the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.start)
	r.Delete("/", h.reset)
	r.Patch("/form", h.updateForm)
	r.Post("/addresses/{role}/select", h.selectAddress)
	r.Post("/addresses/{role}/new", h.enterNewAddress)
	r.Post("/same-billing", h.toggleSameBilling)
	r.Post("/next", h.next)
	r.Post("/prev", h.prev)
	r.Get("/summary", h.summary)
	r.Get("/guard", h.guard)

	submit := http.Handler(http.HandlerFunc(h.submit))
	if h.submitGuard != nil {
		submit = h.submitGuard(submit)
	}
	r.Method(http.MethodPost, "/submit", submit)
}

type selectAddressRequest struct {
	AddressID string `json:"addressId"`
}

type sameBillingRequest struct {
	SameBilling bool `json:"sameBilling"`
}

func (h *CheckoutHandlers) start(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	sid, ok := sessionID(w, r)
	if !ok {
		return
	}
	view, err := h.checkout.Start(r.Context(), sid, customerID(r.Context()))
	writeView(w, r, view, err)
}

func (h *CheckoutHandlers) updateForm(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	sid, ok := sessionID(w, r)
	if !ok {
		return
	}
	var patch services.FormPatch
	if !decodeBody(w, r, maxCheckoutRequestBody, &patch) {
		return
	}
	view, err := h.checkout.UpdateForm(r.Context(), sid, patch)
	writeView(w, r, view, err)
}

func (h *CheckoutHandlers) selectAddress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(w, r) {
		return
	}
	sid, ok := sessionID(w, r)
	if !ok {
		return
	}
	role, ok := addressRole(w, r)
	if !ok {
		return
	}
	customer := customerID(ctx)
	if customer == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "saved addresses require a signed-in customer", http.StatusUnauthorized))
		return
	}
	var req selectAddressRequest
	if !decodeBody(w, r, maxCheckoutRequestBody, &req) {
		return
	}
	view, err := h.checkout.SelectAddress(ctx, sid, customer, role, req.AddressID)
	writeView(w, r, view, err)
}

func (h *CheckoutHandlers) enterNewAddress(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	sid, ok := sessionID(w, r)
	if !ok {
		return
	}
	role, ok := addressRole(w, r)
	if !ok {
		return
	}
	view, err := h.checkout.EnterNewAddress(r.Context(), sid, role)
	writeView(w, r, view, err)
}

func (h *CheckoutHandlers) toggleSameBilling(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	sid, ok := sessionID(w, r)
	if !ok {
		return
	}
	var req sameBillingRequest
	if !decodeBody(w, r, maxCheckoutRequestBody, &req) {
		return
	}
	view, err := h.checkout.ToggleSameBilling(r.Context(), sid, req.SameBilling)
	writeView(w, r, view, err)
}

func (h *CheckoutHandlers) next(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	sid, ok := sessionID(w, r)
	if !ok {
		return
	}
	view, err := h.checkout.Next(r.Context(), sid, customerID(r.Context()))
	writeView(w, r, view, err)
}

func (h *CheckoutHandlers) prev(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	sid, ok := sessionID(w, r)
	if !ok {
		return
	}
	view, err := h.checkout.Prev(r.Context(), sid)
	writeView(w, r, view, err)
}

func (h *CheckoutHandlers) summary(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	sid, ok := sessionID(w, r)
	if !ok {
		return
	}
	summary, err := h.checkout.Summary(r.Context(), sid)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, summary)
}

func (h *CheckoutHandlers) guard(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	sid, ok := sessionID(w, r)
	if !ok {
		return
	}
	if err := h.checkout.Guard(r.Context(), sid); err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CheckoutHandlers) submit(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	sid, ok := sessionID(w, r)
	if !ok {
		return
	}
	result, err := h.checkout.Submit(r.Context(), sid, customerID(r.Context()))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	if result.PaymentRedirectURL != "" {
		w.Header().Set("Location", result.PaymentRedirectURL)
	}
	writeJSONResponse(w, http.StatusCreated, result)
}

func (h *CheckoutHandlers) reset(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	sid, ok := sessionID(w, r)
	if !ok {
		return
	}
	if err := h.checkout.Reset(r.Context(), sid); err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CheckoutHandlers) ready(w http.ResponseWriter, r *http.Request) bool {
	if h == nil || h.checkout == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return false
	}
	return true
}

func addressRole(w http.ResponseWriter, r *http.Request) (domain.AddressRole, bool) {
	role, err := domain.ParseAddressRole(chi.URLParam(r, "role"))
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return "", false
	}
	return role, true
}

func writeView(w http.ResponseWriter, r *http.Request, view services.CheckoutView, err error) {
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	if view.Cart.Items == nil {
		view.Cart.Items = []domain.CartItem{}
	}
	writeJSONResponse(w, http.StatusOK, view)
}

package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/payments"
	"github.com/hanko-field/storefront/internal/platform/backend"
	"github.com/hanko-field/storefront/internal/platform/idempotency"
)

const (
	defaultGuestReservationTTL = 24 * time.Hour
	guestReservationPrefix     = "guest-customer:"
)

var (
	// ErrCheckoutInvalidInput indicates the caller supplied invalid input parameters.
	ErrCheckoutInvalidInput = errors.New("checkout service: invalid input")
	// ErrCheckoutUnavailable indicates checkout dependencies are currently unavailable.
	ErrCheckoutUnavailable = errors.New("checkout service: unavailable")
	// ErrCartEmpty indicates checkout was reached with nothing in the cart.
	ErrCartEmpty = errors.New("checkout service: cart is empty")
	// ErrCheckoutInProgress indicates another submission for the session is still running.
	ErrCheckoutInProgress = errors.New("checkout service: submission in progress")
	// ErrInvalidStepTransition is returned for moves the step machine does not allow.
	ErrInvalidStepTransition = domain.ErrInvalidStepTransition
)

// CheckoutServiceDeps wires the dependencies required by the checkout service.
type CheckoutServiceDeps struct {
	Carts         CartService
	Sessions      SessionService
	Catalog       CatalogService
	Customers     CustomerGateway
	Orders        OrderGateway
	Addresses     *AddressResolver
	Notifications NotificationDispatcher
	// Payments is optional; without it card providers fall back to a pending order.
	Payments PaymentSessions
	// Idempotency is optional; the session-stored key still guards guest creation.
	Idempotency    idempotency.Store
	Summaries      *OrderSummaryRenderer
	BusinessEmail  string
	IdempotencyTTL time.Duration
	Clock          func() time.Time
	IDGenerator    func() string
	Logger         func(ctx context.Context, event string, fields map[string]any)
}

type checkoutService struct {
	carts         CartService
	sessions      SessionService
	catalog       CatalogService
	customers     CustomerGateway
	orders        OrderGateway
	addresses     *AddressResolver
	notifications NotificationDispatcher
	payments      PaymentSessions
	idempotency   idempotency.Store
	summaries     *OrderSummaryRenderer
	businessEmail string
	guestTTL      time.Duration
	notes         *bluemonday.Policy
	now           func() time.Time
	newID         func() string
	logger        func(ctx context.Context, event string, fields map[string]any)
}

// NewCheckoutService constructs a CheckoutService validating required dependencies.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	switch {
	case deps.Carts == nil:
		return nil, errors.New("checkout service: cart service is required")
	case deps.Sessions == nil:
		return nil, errors.New("checkout service: session service is required")
	case deps.Catalog == nil:
		return nil, errors.New("checkout service: catalog service is required")
	case deps.Customers == nil:
		return nil, errors.New("checkout service: customer gateway is required")
	case deps.Orders == nil:
		return nil, errors.New("checkout service: order gateway is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	newID := deps.IDGenerator
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}
	resolver := deps.Addresses
	if resolver == nil {
		resolver = NewAddressResolver(deps.Customers, logger)
	}
	summaries := deps.Summaries
	if summaries == nil {
		summaries = NewOrderSummaryRenderer(defaultSummaryLocale)
	}
	ttl := deps.IdempotencyTTL
	if ttl <= 0 {
		ttl = defaultGuestReservationTTL
	}

	return &checkoutService{
		carts:         deps.Carts,
		sessions:      deps.Sessions,
		catalog:       deps.Catalog,
		customers:     deps.Customers,
		orders:        deps.Orders,
		addresses:     resolver,
		notifications: deps.Notifications,
		payments:      deps.Payments,
		idempotency:   deps.Idempotency,
		summaries:     summaries,
		businessEmail: strings.TrimSpace(deps.BusinessEmail),
		guestTTL:      ttl,
		notes:         bluemonday.StrictPolicy(),
		now: func() time.Time {
			return clock().UTC()
		},
		newID:  newID,
		logger: logger,
	}, nil
}

// Start loads the checkout and pre-fills it from the signed-in customer's profile.
func (s *checkoutService) Start(ctx context.Context, sessionID, customerID string) (CheckoutView, error) {
	session, cart, err := s.guarded(ctx, sessionID)
	if err != nil {
		return CheckoutView{}, err
	}

	customerID = strings.TrimSpace(customerID)
	if customerID != "" && session.CustomerID != customerID && session.Step != domain.StepConfirmation {
		customer, err := s.customers.GetCustomer(ctx, customerID)
		if err != nil {
			return CheckoutView{}, s.unavailable("load customer", err)
		}
		prefillCustomer(&session.Form, customer)
		if addr, ok := customer.DefaultAddress(); ok && addr.ID != "" {
			if err := s.addresses.SelectExisting(&session.Form, domain.AddressRoleShipping, addr); err != nil {
				return CheckoutView{}, err
			}
		}
		session.CustomerID = customerID
		s.logger(ctx, "checkout.prefilled", map[string]any{"sessionId": session.SessionID, "customerId": customerID})
	}

	return s.save(ctx, session, cart)
}

func prefillCustomer(form *domain.CheckoutFormState, customer domain.Customer) {
	fill := func(dst *string, value string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = strings.TrimSpace(value)
		}
	}
	fill(&form.Customer.FirstName, customer.FirstName)
	fill(&form.Customer.LastName, customer.LastName)
	fill(&form.Customer.Email, customer.Email)
	fill(&form.Customer.Phone, customer.Phone)
}

// UpdateForm merges the patch into the checkout form.
func (s *checkoutService) UpdateForm(ctx context.Context, sessionID string, patch FormPatch) (CheckoutView, error) {
	session, cart, err := s.editable(ctx, sessionID)
	if err != nil {
		return CheckoutView{}, err
	}
	form := &session.Form

	if patch.Customer != nil {
		form.Customer = trimCustomer(*patch.Customer)
	}
	if patch.Shipping != nil {
		fields := trimAddress(*patch.Shipping)
		if fields != form.Shipping {
			form.Shipping = fields
			form.ShippingSelection = domain.EnteringNew()
		}
	}
	// Billing input is ignored while it mirrors shipping.
	if patch.Billing != nil && !form.SameBilling {
		fields := trimAddress(*patch.Billing)
		current := domain.AddressFields{}
		if form.Billing != nil {
			current = *form.Billing
		}
		if fields != current {
			form.Billing = &fields
			form.BillingSelection = domain.EnteringNew()
		}
	}
	if patch.ShippingMethodID != nil {
		form.ShippingMethodID = strings.TrimSpace(*patch.ShippingMethodID)
	}
	if patch.PaymentProviderID != nil {
		form.PaymentProviderID = strings.TrimSpace(*patch.PaymentProviderID)
	}
	if patch.Notes != nil {
		form.Notes = strings.TrimSpace(s.notes.Sanitize(*patch.Notes))
	}
	mirrorBilling(form)

	return s.save(ctx, session, cart)
}

func trimCustomer(c domain.CustomerFields) domain.CustomerFields {
	return domain.CustomerFields{
		FirstName: strings.TrimSpace(c.FirstName),
		LastName:  strings.TrimSpace(c.LastName),
		Email:     strings.TrimSpace(c.Email),
		Phone:     strings.TrimSpace(c.Phone),
	}
}

func trimAddress(f domain.AddressFields) domain.AddressFields {
	addr := f.Address(false)
	return addr.Fields()
}

// SelectAddress points role at one of the signed-in customer's saved addresses.
func (s *checkoutService) SelectAddress(ctx context.Context, sessionID, customerID string, role domain.AddressRole, addressID string) (CheckoutView, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return CheckoutView{}, fmt.Errorf("%w: saved addresses require a signed-in customer", ErrCheckoutInvalidInput)
	}
	session, cart, err := s.editable(ctx, sessionID)
	if err != nil {
		return CheckoutView{}, err
	}
	customer, err := s.customers.GetCustomer(ctx, customerID)
	if err != nil {
		return CheckoutView{}, s.unavailable("load customer", err)
	}
	addr, ok := customer.AddressByID(addressID)
	if !ok {
		return CheckoutView{}, fmt.Errorf("%w: %s", ErrAddressNotFound, strings.TrimSpace(addressID))
	}
	if err := s.addresses.SelectExisting(&session.Form, role, addr); err != nil {
		return CheckoutView{}, err
	}
	return s.save(ctx, session, cart)
}

// EnterNewAddress switches role back to manual entry.
func (s *checkoutService) EnterNewAddress(ctx context.Context, sessionID string, role domain.AddressRole) (CheckoutView, error) {
	session, cart, err := s.editable(ctx, sessionID)
	if err != nil {
		return CheckoutView{}, err
	}
	if err := s.addresses.EnterNew(&session.Form, role); err != nil {
		return CheckoutView{}, err
	}
	return s.save(ctx, session, cart)
}

// ToggleSameBilling switches billing mirroring.
func (s *checkoutService) ToggleSameBilling(ctx context.Context, sessionID string, on bool) (CheckoutView, error) {
	session, cart, err := s.editable(ctx, sessionID)
	if err != nil {
		return CheckoutView{}, err
	}
	s.addresses.ToggleSameAsShipping(&session.Form, on)
	return s.save(ctx, session, cart)
}

// Next advances one step, validating the form when leaving CustomerInfo.
func (s *checkoutService) Next(ctx context.Context, sessionID, customerID string) (CheckoutView, error) {
	session, cart, err := s.guarded(ctx, sessionID)
	if err != nil {
		return CheckoutView{}, err
	}
	next, err := session.Step.Next()
	if err != nil {
		return CheckoutView{}, err
	}

	if session.Step == domain.StepCustomerInfo {
		if err := validateCustomerStep(session.Form); err != nil {
			return CheckoutView{}, err
		}
		if customerID = strings.TrimSpace(customerID); customerID != "" {
			customer, err := s.customers.GetCustomer(ctx, customerID)
			if err != nil {
				return CheckoutView{}, s.unavailable("load customer", err)
			}
			if _, err := s.addresses.PersistPending(ctx, customer, &session.Form); err != nil {
				return CheckoutView{}, err
			}
			session.CustomerID = customerID
		}
	}

	s.logger(ctx, "checkout.step", map[string]any{"sessionId": session.SessionID, "from": string(session.Step), "to": string(next)})
	session.Step = next
	return s.save(ctx, session, cart)
}

// Prev moves back one step without side effects.
func (s *checkoutService) Prev(ctx context.Context, sessionID string) (CheckoutView, error) {
	session, cart, err := s.guarded(ctx, sessionID)
	if err != nil {
		return CheckoutView{}, err
	}
	prev, err := session.Step.Prev()
	if err != nil {
		return CheckoutView{}, err
	}
	session.Step = prev
	return s.save(ctx, session, cart)
}

// Summary prices the cart with the selected shipping method.
func (s *checkoutService) Summary(ctx context.Context, sessionID string) (CheckoutSummary, error) {
	session, cart, err := s.guarded(ctx, sessionID)
	if err != nil {
		return CheckoutSummary{}, err
	}
	q, err := s.quote(ctx, cart, session.Form)
	if err != nil {
		return CheckoutSummary{}, err
	}
	providers, err := s.catalog.PaymentProviders(ctx)
	if err != nil {
		return CheckoutSummary{}, s.unavailable("payment providers", err)
	}
	currency, ok := q.settings.Currency(cart.CurrencyID)
	if !ok {
		currency = domain.Currency{ID: cart.CurrencyID}
	}
	return CheckoutSummary{
		Cart:             cart,
		Totals:           q.totals,
		Currency:         currency,
		ShippingMethods:  q.methods,
		PaymentProviders: providers,
	}, nil
}

type quote struct {
	totals   domain.Totals
	settings domain.ShopSettings
	methods  []domain.ShippingMethod
}

// quote is shared by Summary and Submit so the displayed and submitted totals agree.
func (s *checkoutService) quote(ctx context.Context, cart domain.Cart, form domain.CheckoutFormState) (quote, error) {
	settings, err := s.catalog.ShopSettings(ctx)
	if err != nil {
		return quote{}, s.unavailable("shop settings", err)
	}
	methods, err := s.catalog.ShippingMethods(ctx)
	if err != nil {
		return quote{}, s.unavailable("shipping methods", err)
	}
	subtotal, err := CartSubtotal(cart)
	if err != nil {
		return quote{}, fmt.Errorf("%w: %w", ErrCheckoutInvalidInput, err)
	}
	shipping, err := ShippingCost(methods, form.ShippingMethodID, cart.CurrencyID)
	if err != nil {
		return quote{}, fmt.Errorf("%w: %w", ErrCheckoutInvalidInput, err)
	}
	return quote{
		totals: CalculateTotals(TotalsInput{
			CurrencyID: cart.CurrencyID,
			Subtotal:   subtotal,
			Shipping:   shipping,
			Settings:   settings,
		}),
		settings: settings,
		methods:  methods,
	}, nil
}

// Submit creates the order. Steps run strictly in order and any failure leaves the
// session on ShippingPayment.
func (s *checkoutService) Submit(ctx context.Context, sessionID, customerID string) (SubmitResult, error) {
	session, cart, err := s.guarded(ctx, sessionID)
	if err != nil {
		return SubmitResult{}, err
	}
	if session.Step != domain.StepShippingPayment {
		return SubmitResult{}, fmt.Errorf("%w: submit from %q", ErrInvalidStepTransition, session.Step)
	}
	if err := validateSubmit(session.Form); err != nil {
		return SubmitResult{}, err
	}

	customerID = strings.TrimSpace(customerID)
	authenticated := customerID != ""

	var customer domain.Customer
	if authenticated {
		customer, err = s.customers.GetCustomer(ctx, customerID)
		if err != nil {
			return SubmitResult{}, s.unavailable("load customer", err)
		}
		customer, err = s.addresses.PersistPending(ctx, customer, &session.Form)
		if err != nil {
			return SubmitResult{}, err
		}
		session.CustomerID = customerID
		if session, err = s.sessions.Save(ctx, session); err != nil {
			return SubmitResult{}, s.unavailable("save session", err)
		}
	} else {
		customer, session, err = s.resolveGuest(ctx, session)
		if err != nil {
			return SubmitResult{}, err
		}
	}

	shippingID, billingID, err := ResolveAddressIDs(session.Form, customer)
	if err != nil {
		return SubmitResult{}, err
	}

	lines, err := orderLines(cart)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("%w: %w", ErrCheckoutInvalidInput, err)
	}

	q, err := s.quote(ctx, cart, session.Form)
	if err != nil {
		return SubmitResult{}, err
	}

	payload := domain.OrderPayload{
		CustomerID:        customer.ID,
		CurrencyID:        cart.CurrencyID,
		TotalPrice:        q.totals.Total,
		SubtotalPrice:     q.totals.Subtotal,
		TotalTax:          q.totals.Tax,
		TotalDiscounts:    decimal.Zero,
		LineItems:         lines,
		ShippingAddressID: shippingID,
		BillingAddressID:  billingID,
		PaymentProviderID: session.Form.PaymentProviderID,
		ShippingMethodID:  session.Form.ShippingMethodID,
		FinancialStatus:   domain.FinancialStatusPending,
		FulfillmentStatus: domain.FulfillmentStatusUnfulfilled,
		ShippingStatus:    domain.ShippingStatusPending,
		CustomerNotes:     session.Form.Notes,
		Source:            domain.OrderSourceWeb,
	}
	order, err := s.orders.CreateOrder(ctx, payload, orderIdempotencyKey(session.SessionID, cart))
	if err != nil {
		s.logger(ctx, "checkout.order_failed", map[string]any{"sessionId": session.SessionID, "error": err})
		return SubmitResult{}, s.unavailable("create order", err)
	}

	return s.complete(ctx, session, cart, customer, order, q, authenticated), nil
}

// resolveGuest creates the guest customer at most once per session. The idempotency
// key is persisted on the session before the backend call so retries reuse it.
func (s *checkoutService) resolveGuest(ctx context.Context, session domain.CheckoutSession) (domain.Customer, domain.CheckoutSession, error) {
	if session.GuestCustomerID != "" {
		return s.reuseGuest(ctx, session)
	}

	var err error
	if session.GuestIdempotencyKey == "" {
		session.GuestIdempotencyKey = s.newID()
		if session, err = s.sessions.Save(ctx, session); err != nil {
			return domain.Customer{}, session, s.unavailable("save session", err)
		}
	}
	key := session.GuestIdempotencyKey
	reservationKey := guestReservationPrefix + session.SessionID

	if s.idempotency != nil {
		reservation, err := s.idempotency.Reserve(ctx, reservationKey, key, s.now(), s.guestTTL)
		if err != nil {
			return domain.Customer{}, session, s.unavailable("reserve guest", err)
		}
		switch reservation.Outcome {
		case idempotency.OutcomeInFlight:
			return domain.Customer{}, session, ErrCheckoutInProgress
		case idempotency.OutcomeReplay:
			var stored guestRecord
			if err := json.Unmarshal(reservation.Record.Body, &stored); err != nil || stored.CustomerID == "" {
				return domain.Customer{}, session, s.unavailable("replay guest", fmt.Errorf("corrupt guest record: %v", err))
			}
			session.GuestCustomerID = stored.CustomerID
			session.GuestAddressIDs = stored.AddressIDs
			adoptGuestAddresses(&session.Form, stored.AddressIDs)
			if session, err = s.sessions.Save(ctx, session); err != nil {
				return domain.Customer{}, session, s.unavailable("save session", err)
			}
			s.logger(ctx, "checkout.guest_replayed", map[string]any{"sessionId": session.SessionID, "customerId": stored.CustomerID})
			return guestCustomer(session), session, nil
		}
	}

	form := session.Form
	addresses := []domain.Address{form.Shipping.Address(true)}
	if !form.SameBilling && form.Billing != nil && !form.Billing.IsZero() {
		addresses = append(addresses, form.Billing.Address(false))
	}
	created, err := s.customers.CreateCustomer(ctx, guestInput(form, addresses), key)
	if err != nil {
		if s.idempotency != nil {
			if releaseErr := s.idempotency.Release(ctx, reservationKey); releaseErr != nil {
				s.logger(ctx, "checkout.guest_release_failed", map[string]any{"sessionId": session.SessionID, "error": releaseErr})
			}
		}
		return domain.Customer{}, session, s.unavailable("create guest", err)
	}

	record := guestRecord{CustomerID: created.ID}
	for _, addr := range created.Addresses {
		if addr.ID != "" {
			record.AddressIDs = append(record.AddressIDs, addr.ID)
		}
	}
	if s.idempotency != nil {
		body, _ := json.Marshal(record)
		resp := idempotency.Response{StatusCode: http.StatusCreated, Body: body}
		if err := s.idempotency.Complete(ctx, reservationKey, key, resp, s.now(), s.guestTTL); err != nil {
			s.logger(ctx, "checkout.guest_complete_failed", map[string]any{"sessionId": session.SessionID, "error": err})
		}
	}

	session.GuestCustomerID = record.CustomerID
	session.GuestAddressIDs = record.AddressIDs
	adoptGuestAddresses(&session.Form, record.AddressIDs)
	if session, err = s.sessions.Save(ctx, session); err != nil {
		return domain.Customer{}, session, s.unavailable("save session", err)
	}
	s.logger(ctx, "checkout.guest_created", map[string]any{"sessionId": session.SessionID, "customerId": created.ID})
	return guestCustomer(session), session, nil
}

// reuseGuest returns the session's guest. Addresses typed in after the guest was
// created are appended to it so the order never points at a stale address.
func (s *checkoutService) reuseGuest(ctx context.Context, session domain.CheckoutSession) (domain.Customer, domain.CheckoutSession, error) {
	if len(pendingAddressRoles(session.Form)) == 0 {
		return guestCustomer(session), session, nil
	}
	stored, err := s.customers.GetCustomer(ctx, session.GuestCustomerID)
	if err != nil {
		return domain.Customer{}, session, s.unavailable("load guest", err)
	}
	updated, err := s.addresses.PersistPending(ctx, stored, &session.Form)
	if err != nil {
		return domain.Customer{}, session, err
	}
	ids := make([]string, 0, len(updated.Addresses))
	for _, addr := range updated.Addresses {
		if addr.ID != "" {
			ids = append(ids, addr.ID)
		}
	}
	session.GuestAddressIDs = ids
	if session, err = s.sessions.Save(ctx, session); err != nil {
		return domain.Customer{}, session, s.unavailable("save session", err)
	}
	s.logger(ctx, "checkout.guest_addresses_updated", map[string]any{"sessionId": session.SessionID, "customerId": session.GuestCustomerID})
	return updated, session, nil
}

// adoptGuestAddresses points the roles entered at guest creation at the ids the
// backend assigned, in the order they were sent.
func adoptGuestAddresses(form *domain.CheckoutFormState, ids []string) {
	if len(ids) > 0 && form.ShippingSelection.Mode == domain.AddressModeNew {
		form.ShippingSelection = domain.UsingExisting(ids[0])
	}
	if len(ids) > 1 && !form.SameBilling && form.BillingSelection.Mode == domain.AddressModeNew {
		form.BillingSelection = domain.UsingExisting(ids[1])
	}
}

type guestRecord struct {
	CustomerID string   `json:"customerId"`
	AddressIDs []string `json:"addressIds"`
}

func guestInput(form domain.CheckoutFormState, addresses []domain.Address) backend.CustomerInput {
	return backend.CustomerInput{
		FirstName: form.Customer.FirstName,
		LastName:  form.Customer.LastName,
		Email:     form.Customer.Email,
		Phone:     form.Customer.Phone,
		Addresses: addresses,
	}
}

func guestCustomer(session domain.CheckoutSession) domain.Customer {
	customer := domain.Customer{
		ID:        session.GuestCustomerID,
		FirstName: session.Form.Customer.FirstName,
		LastName:  session.Form.Customer.LastName,
		Email:     session.Form.Customer.Email,
	}
	for i, id := range session.GuestAddressIDs {
		customer.Addresses = append(customer.Addresses, domain.Address{ID: id, IsDefault: i == 0})
	}
	return customer
}

func orderLines(cart domain.Cart) ([]domain.OrderLineItem, error) {
	lines := make([]domain.OrderLineItem, 0, len(cart.Items))
	for _, item := range cart.Items {
		price, err := resolveVariantPrice(item.Variant, cart.CurrencyID)
		if err != nil {
			return nil, err
		}
		title := strings.TrimSpace(item.Product.Title)
		if variant := strings.TrimSpace(item.Variant.Title); variant != "" {
			title += " - " + variant
		}
		lines = append(lines, domain.OrderLineItem{
			VariantID:     item.Variant.ID,
			Title:         title,
			Price:         price,
			Quantity:      item.Quantity,
			TotalDiscount: decimal.Zero,
		})
	}
	return lines, nil
}

// orderIdempotencyKey changes whenever the cart does, so a retried submit of the same
// cart never creates a second order.
func orderIdempotencyKey(sessionID string, cart domain.Cart) string {
	return fmt.Sprintf("order:%s:%d", sessionID, cart.UpdatedAt.UnixNano())
}

// complete runs the post-order side effects. None of them can fail the submission.
func (s *checkoutService) complete(ctx context.Context, session domain.CheckoutSession, cart domain.Cart, customer domain.Customer, order domain.Order, q quote, authenticated bool) SubmitResult {
	if err := s.carts.Clear(ctx, session.SessionID); err != nil {
		s.logger(ctx, "checkout.cart_clear_failed", map[string]any{"sessionId": session.SessionID, "error": err})
	}

	if step, err := session.Step.Complete(); err == nil {
		session.Step = step
	}
	session.OrderID = order.ID

	if url := s.startPayment(ctx, session, cart, order, q); url != "" {
		session.PaymentRedirectURL = url
	}

	saved, err := s.sessions.Save(ctx, session)
	if err != nil {
		s.logger(ctx, "checkout.session_save_failed", map[string]any{"sessionId": session.SessionID, "orderId": order.ID, "error": err})
	} else {
		session = saved
	}

	s.notify(ctx, session, cart, customer, order, q, authenticated)
	s.logger(ctx, "checkout.order_created", map[string]any{
		"sessionId":  session.SessionID,
		"orderId":    order.ID,
		"customerId": customer.ID,
		"total":      q.totals.Total.String(),
	})

	return SubmitResult{
		Order:              order,
		Totals:             q.totals,
		Session:            session,
		PaymentRedirectURL: session.PaymentRedirectURL,
	}
}

func (s *checkoutService) startPayment(ctx context.Context, session domain.CheckoutSession, cart domain.Cart, order domain.Order, q quote) string {
	if s.payments == nil {
		return ""
	}
	providers, err := s.catalog.PaymentProviders(ctx)
	if err != nil {
		s.logger(ctx, "checkout.payment_lookup_failed", map[string]any{"orderId": order.ID, "error": err})
		return ""
	}
	var provider domain.PaymentProvider
	for _, p := range providers {
		if p.ID == session.Form.PaymentProviderID {
			provider = p
			break
		}
	}
	if !strings.EqualFold(provider.Type, payments.ProviderTypeStripe) {
		return ""
	}

	currency, ok := q.settings.Currency(cart.CurrencyID)
	code := currency.Code
	if !ok || code == "" {
		code = cart.CurrencyID
	}
	lines := make([]payments.Line, 0, len(cart.Items))
	items, _ := orderLines(cart)
	for _, line := range items {
		lines = append(lines, payments.Line{Name: line.Title, UnitPrice: line.Price, Quantity: int64(line.Quantity)})
	}
	tax := decimal.Zero
	if !q.totals.TaxesIncluded {
		tax = q.totals.Tax
	}
	paymentSession, err := s.payments.CreateSession(ctx, payments.SessionRequest{
		OrderID:      order.ID,
		CurrencyCode: code,
		Email:        session.Form.Customer.Email,
		Lines:        lines,
		Shipping:     q.totals.Shipping,
		Tax:          tax,
	})
	if err != nil {
		s.logger(ctx, "checkout.payment_session_failed", map[string]any{"orderId": order.ID, "error": err})
		return ""
	}
	return paymentSession.RedirectURL
}

func (s *checkoutService) notify(ctx context.Context, session domain.CheckoutSession, cart domain.Cart, customer domain.Customer, order domain.Order, q quote, authenticated bool) {
	if s.notifications == nil {
		return
	}
	lines, _ := orderLines(cart)
	currency, ok := q.settings.Currency(cart.CurrencyID)
	code := currency.Code
	if !ok || code == "" {
		code = cart.CurrencyID
	}
	html, err := s.summaries.Render(OrderSummary{
		OrderID:      order.ID,
		CustomerName: strings.TrimSpace(session.Form.Customer.FirstName + " " + session.Form.Customer.LastName),
		Email:        session.Form.Customer.Email,
		CurrencyCode: code,
		Lines:        lines,
		Totals:       q.totals,
		Notes:        session.Form.Notes,
	})
	if err != nil {
		s.logger(ctx, "checkout.summary_render_failed", map[string]any{"orderId": order.ID, "error": err})
		return
	}

	now := s.now()
	var tasks []domain.NotificationTask
	if authenticated && session.Form.Customer.Email != "" {
		tasks = append(tasks, domain.NotificationTask{
			Kind:       domain.NotificationOrderConfirmation,
			OrderID:    order.ID,
			To:         session.Form.Customer.Email,
			Subject:    fmt.Sprintf("Order %s confirmed", orderLabel(order)),
			HTML:       html,
			EnqueuedAt: now,
		})
	}
	business := s.businessEmail
	if business == "" {
		business = q.settings.Email
	}
	if business != "" {
		tasks = append(tasks, domain.NotificationTask{
			Kind:    domain.NotificationBusiness,
			OrderID: order.ID,
			To:      business,
			Subject: fmt.Sprintf("New order %s", orderLabel(order)),
			HTML:    html,
			Fields: map[string]string{
				"customerId": customer.ID,
				"name":       session.Form.Customer.FirstName + " " + session.Form.Customer.LastName,
				"email":      session.Form.Customer.Email,
				"phone":      session.Form.Customer.Phone,
				"total":      q.totals.Total.StringFixed(moneyPlaces),
				"currency":   code,
			},
			EnqueuedAt: now,
		})
	}
	for _, task := range tasks {
		if err := s.notifications.Enqueue(ctx, task); err != nil {
			s.logger(ctx, "checkout.notification_enqueue_failed", map[string]any{"orderId": order.ID, "kind": string(task.Kind), "error": err})
		}
	}
}

func orderLabel(order domain.Order) string {
	if order.OrderNumber != "" {
		return "#" + order.OrderNumber
	}
	return order.ID
}

// Guard rejects checkout access with an empty cart unless the order is already placed.
func (s *checkoutService) Guard(ctx context.Context, sessionID string) error {
	_, _, err := s.guarded(ctx, sessionID)
	return err
}

// Reset discards the checkout session and its guest reservation.
func (s *checkoutService) Reset(ctx context.Context, sessionID string) error {
	sid := strings.TrimSpace(sessionID)
	if sid == "" {
		return fmt.Errorf("%w: session id is required", ErrCheckoutInvalidInput)
	}
	if err := s.sessions.Discard(ctx, sid); err != nil {
		return s.unavailable("discard session", err)
	}
	if s.idempotency != nil {
		if err := s.idempotency.Release(ctx, guestReservationPrefix+sid); err != nil {
			s.logger(ctx, "checkout.guest_release_failed", map[string]any{"sessionId": sid, "error": err})
		}
	}
	return nil
}

func (s *checkoutService) guarded(ctx context.Context, sessionID string) (domain.CheckoutSession, domain.Cart, error) {
	sid := strings.TrimSpace(sessionID)
	if sid == "" {
		return domain.CheckoutSession{}, domain.Cart{}, fmt.Errorf("%w: session id is required", ErrCheckoutInvalidInput)
	}
	session, err := s.sessions.Load(ctx, sid)
	if err != nil {
		return domain.CheckoutSession{}, domain.Cart{}, s.unavailable("load session", err)
	}
	cart, err := s.carts.GetCart(ctx, sid)
	if err != nil {
		return domain.CheckoutSession{}, domain.Cart{}, s.unavailable("load cart", err)
	}
	// A confirmed checkout is discarded once the shopper fills a new cart.
	if session.Step == domain.StepConfirmation && !cart.IsEmpty() {
		previousOrder := session.OrderID
		if err := s.Reset(ctx, sid); err != nil {
			return domain.CheckoutSession{}, domain.Cart{}, err
		}
		if session, err = s.sessions.Load(ctx, sid); err != nil {
			return domain.CheckoutSession{}, domain.Cart{}, s.unavailable("load session", err)
		}
		s.logger(ctx, "checkout.restarted", map[string]any{"sessionId": sid, "previousOrderId": previousOrder})
	}
	if cart.IsEmpty() && session.Step != domain.StepConfirmation {
		return session, cart, ErrCartEmpty
	}
	return session, cart, nil
}

// editable is guarded plus the rule that a confirmed checkout is read-only.
func (s *checkoutService) editable(ctx context.Context, sessionID string) (domain.CheckoutSession, domain.Cart, error) {
	session, cart, err := s.guarded(ctx, sessionID)
	if err != nil {
		return session, cart, err
	}
	if session.Step == domain.StepConfirmation {
		return session, cart, fmt.Errorf("%w: checkout already confirmed", ErrInvalidStepTransition)
	}
	return session, cart, nil
}

func (s *checkoutService) save(ctx context.Context, session domain.CheckoutSession, cart domain.Cart) (CheckoutView, error) {
	saved, err := s.sessions.Save(ctx, session)
	if err != nil {
		return CheckoutView{}, s.unavailable("save session", err)
	}
	return CheckoutView{Session: saved, Cart: cart}, nil
}

func (s *checkoutService) unavailable(op string, err error) error {
	if errors.Is(err, ErrCheckoutUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrCheckoutUnavailable, op, err)
}

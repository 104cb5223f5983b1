package services

import (
	"context"

	"github.com/shopspring/decimal"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/payments"
	"github.com/hanko-field/storefront/internal/platform/backend"
)

// CartService maintains the cart ledger of a storefront session.
type CartService interface {
	GetCart(ctx context.Context, sessionID string) (domain.Cart, error)
	AddItem(ctx context.Context, cmd AddCartItemCommand) (domain.Cart, error)
	UpdateQuantity(ctx context.Context, sessionID, variantID string, quantity int) (domain.Cart, error)
	RemoveItem(ctx context.Context, sessionID, variantID string) (domain.Cart, error)
	Clear(ctx context.Context, sessionID string) error
	GetTotal(ctx context.Context, sessionID string) (decimal.Decimal, error)
	SetCurrency(ctx context.Context, sessionID, currencyID string) (domain.Cart, error)
}

// CatalogService exposes read-through catalogue lookups.
type CatalogService interface {
	ListProducts(ctx context.Context, query backend.ListQuery) ([]domain.Product, error)
	GetProduct(ctx context.Context, productID string) (domain.Product, error)
	ShopSettings(ctx context.Context) (domain.ShopSettings, error)
	ShippingMethods(ctx context.Context) ([]domain.ShippingMethod, error)
	PaymentProviders(ctx context.Context) ([]domain.PaymentProvider, error)
}

// SessionService owns the server-side checkout session and customer login.
type SessionService interface {
	// Load returns the stored session or a fresh one at CartReview.
	Load(ctx context.Context, sessionID string) (domain.CheckoutSession, error)
	Save(ctx context.Context, session domain.CheckoutSession) (domain.CheckoutSession, error)
	Discard(ctx context.Context, sessionID string) error
	Login(ctx context.Context, email, password string) (LoginResult, error)
}

// CheckoutService orchestrates the four-step checkout.
type CheckoutService interface {
	Start(ctx context.Context, sessionID, customerID string) (CheckoutView, error)
	UpdateForm(ctx context.Context, sessionID string, patch FormPatch) (CheckoutView, error)
	SelectAddress(ctx context.Context, sessionID, customerID string, role domain.AddressRole, addressID string) (CheckoutView, error)
	EnterNewAddress(ctx context.Context, sessionID string, role domain.AddressRole) (CheckoutView, error)
	ToggleSameBilling(ctx context.Context, sessionID string, on bool) (CheckoutView, error)
	Next(ctx context.Context, sessionID, customerID string) (CheckoutView, error)
	Prev(ctx context.Context, sessionID string) (CheckoutView, error)
	Summary(ctx context.Context, sessionID string) (CheckoutSummary, error)
	Submit(ctx context.Context, sessionID, customerID string) (SubmitResult, error)
	Guard(ctx context.Context, sessionID string) error
	Reset(ctx context.Context, sessionID string) error
}

// NotificationDispatcher queues post-order messages for asynchronous delivery.
type NotificationDispatcher interface {
	Enqueue(ctx context.Context, task domain.NotificationTask) error
	Close(ctx context.Context) error
}

// NotificationSender delivers a single notification task.
type NotificationSender interface {
	Send(ctx context.Context, task domain.NotificationTask) error
}

// CatalogGateway is the backend surface used by the catalog service.
type CatalogGateway interface {
	ListProducts(ctx context.Context, query backend.ListQuery) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (domain.Product, error)
	GetShop(ctx context.Context) (domain.ShopSettings, error)
	ListShippingMethods(ctx context.Context) ([]domain.ShippingMethod, error)
	ListPaymentProviders(ctx context.Context) ([]domain.PaymentProvider, error)
}

// CustomerGateway is the backend surface used for customer and address persistence.
type CustomerGateway interface {
	CreateCustomer(ctx context.Context, in backend.CustomerInput, idempotencyKey string) (domain.Customer, error)
	GetCustomer(ctx context.Context, id string) (domain.Customer, error)
	UpdateCustomer(ctx context.Context, id string, patch backend.CustomerPatch) (domain.Customer, error)
}

// OrderGateway creates orders on the backend.
type OrderGateway interface {
	CreateOrder(ctx context.Context, payload domain.OrderPayload, idempotencyKey string) (domain.Order, error)
}

// LoginGateway exchanges customer credentials for a token.
type LoginGateway interface {
	Login(ctx context.Context, email, password string) (backend.LoginResult, error)
}

// PaymentSessions creates hosted payment pages for card providers.
type PaymentSessions interface {
	CreateSession(ctx context.Context, req payments.SessionRequest) (payments.Session, error)
}

// AddCartItemCommand adds quantity units of a variant to the session cart.
type AddCartItemCommand struct {
	SessionID string
	Product   domain.Product
	VariantID string
	Quantity  int
}

// LoginResult carries the backend token back to the browser.
type LoginResult struct {
	Token    string          `json:"token"`
	Customer domain.Customer `json:"customer"`
}

// FormPatch merges partial checkout form input. Nil fields are left untouched.
type FormPatch struct {
	Customer          *domain.CustomerFields `json:"customer,omitempty"`
	Shipping          *domain.AddressFields  `json:"shipping,omitempty"`
	Billing           *domain.AddressFields  `json:"billing,omitempty"`
	ShippingMethodID  *string                `json:"shippingMethodId,omitempty"`
	PaymentProviderID *string                `json:"paymentProviderId,omitempty"`
	Notes             *string                `json:"notes,omitempty"`
}

// CheckoutView is the checkout state returned after every operation.
type CheckoutView struct {
	Session domain.CheckoutSession `json:"session"`
	Cart    domain.Cart            `json:"cart"`
}

// CheckoutSummary is the order summary panel.
type CheckoutSummary struct {
	Cart             domain.Cart              `json:"cart"`
	Totals           domain.Totals            `json:"totals"`
	Currency         domain.Currency          `json:"currency"`
	ShippingMethods  []domain.ShippingMethod  `json:"shippingMethods"`
	PaymentProviders []domain.PaymentProvider `json:"paymentProviders"`
}

// SubmitResult is returned after a successful order submission.
type SubmitResult struct {
	Order              domain.Order           `json:"order"`
	Totals             domain.Totals          `json:"totals"`
	Session            domain.CheckoutSession `json:"session"`
	PaymentRedirectURL string                 `json:"paymentRedirectUrl,omitempty"`
}

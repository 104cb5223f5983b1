// Package payments creates hosted payment sessions for orders placed through the storefront.
package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"golang.org/x/text/currency"
)

// ProviderTypeStripe is the payment provider type that triggers a Stripe session.
const ProviderTypeStripe = "stripe"

// ErrInvalidRequest is returned for requests that cannot be priced.
var ErrInvalidRequest = errors.New("payments: invalid request")

// Line is one priced entry of the hosted payment page.
type Line struct {
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int64
}

// SessionRequest describes the order to collect payment for.
type SessionRequest struct {
	OrderID      string
	CurrencyCode string
	Email        string
	Lines        []Line
	// Shipping and Tax are added as separate lines when positive.
	Shipping decimal.Decimal
	Tax      decimal.Decimal
}

// Session is the created hosted payment page.
type Session struct {
	ID          string
	RedirectURL string
	ExpiresAt   time.Time
}

type stripeSessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// StripeConfig configures StripeSessions.
type StripeConfig struct {
	APIKey     string
	SuccessURL string
	CancelURL  string
	Backends   *stripe.Backends
	Logger     func(ctx context.Context, event string, fields map[string]any)
	sessions   stripeSessionAPI
}

// StripeSessions creates Stripe Checkout sessions.
type StripeSessions struct {
	sessions   stripeSessionAPI
	successURL string
	cancelURL  string
	logger     func(context.Context, string, map[string]any)
}

// NewStripeSessions builds the session creator.
func NewStripeSessions(cfg StripeConfig) (*StripeSessions, error) {
	sessions := cfg.sessions
	if sessions == nil {
		key := strings.TrimSpace(cfg.APIKey)
		if key == "" {
			return nil, errors.New("payments: stripe api key is required")
		}
		sessions = client.New(key, cfg.Backends).CheckoutSessions
	}
	if strings.TrimSpace(cfg.SuccessURL) == "" || strings.TrimSpace(cfg.CancelURL) == "" {
		return nil, errors.New("payments: success and cancel URLs are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &StripeSessions{
		sessions:   sessions,
		successURL: cfg.SuccessURL,
		cancelURL:  cfg.CancelURL,
		logger:     logger,
	}, nil
}

// CreateSession creates a payment-mode Checkout session for the order. The order id is
// used as idempotency key and metadata so webhooks can be correlated.
func (s *StripeSessions) CreateSession(ctx context.Context, req SessionRequest) (Session, error) {
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		return Session{}, fmt.Errorf("%w: order id is required", ErrInvalidRequest)
	}
	unit, err := currency.ParseISO(strings.TrimSpace(req.CurrencyCode))
	if err != nil {
		return Session{}, fmt.Errorf("%w: currency %q: %v", ErrInvalidRequest, req.CurrencyCode, err)
	}
	code := strings.ToLower(unit.String())

	lines := make([]*stripe.CheckoutSessionLineItemParams, 0, len(req.Lines)+2)
	add := func(name string, price decimal.Decimal, qty int64) {
		if qty < 1 {
			qty = 1
		}
		lines = append(lines, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(qty),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(code),
				UnitAmount:  stripe.Int64(MinorUnits(price, unit)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{Name: stripe.String(name)},
			},
		})
	}
	for _, line := range req.Lines {
		add(line.Name, line.UnitPrice, line.Quantity)
	}
	if req.Shipping.IsPositive() {
		add("Shipping", req.Shipping, 1)
	}
	if req.Tax.IsPositive() {
		add("Tax", req.Tax, 1)
	}
	if len(lines) == 0 {
		return Session{}, fmt.Errorf("%w: no lines", ErrInvalidRequest)
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(s.successURL),
		CancelURL:         stripe.String(s.cancelURL),
		ClientReferenceID: stripe.String(orderID),
		LineItems:         lines,
		Metadata:          map[string]string{"orderId": orderID},
	}
	if email := strings.TrimSpace(req.Email); email != "" {
		params.CustomerEmail = stripe.String(email)
	}
	params.Context = ctx
	params.SetIdempotencyKey("order-" + orderID)

	session, err := s.sessions.New(params)
	if err != nil {
		return Session{}, fmt.Errorf("payments: create stripe session: %w", err)
	}
	s.logger(ctx, "payments.stripe.session_created", map[string]any{
		"orderId":   orderID,
		"sessionId": session.ID,
	})

	out := Session{ID: session.ID, RedirectURL: session.URL}
	if session.ExpiresAt > 0 {
		out.ExpiresAt = time.Unix(session.ExpiresAt, 0).UTC()
	}
	return out, nil
}

// MinorUnits converts amount into the smallest unit of the currency, e.g. cents.
func MinorUnits(amount decimal.Decimal, unit currency.Unit) int64 {
	scale, _ := currency.Standard.Rounding(unit)
	return amount.Shift(int32(scale)).Round(0).IntPart()
}

package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v78"
	"golang.org/x/text/currency"
)

type fakeSessions struct {
	params *stripe.CheckoutSessionParams
	err    error
}

func (f *fakeSessions) New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	f.params = params
	if f.err != nil {
		return nil, f.err
	}
	return &stripe.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.stripe.test/cs_test_1", ExpiresAt: 1735732800}, nil
}

func newTestSessions(t *testing.T, fake *fakeSessions) *StripeSessions {
	t.Helper()
	s, err := NewStripeSessions(StripeConfig{SuccessURL: "https://shop.test/ok", CancelURL: "https://shop.test/cancel", sessions: fake})
	if err != nil {
		t.Fatalf("NewStripeSessions: %v", err)
	}
	return s
}

func TestCreateSessionBuildsLines(t *testing.T) {
	fake := &fakeSessions{}
	s := newTestSessions(t, fake)

	session, err := s.CreateSession(context.Background(), SessionRequest{
		OrderID:      "ord-1",
		CurrencyCode: "PEN",
		Email:        "ana@example.com",
		Lines:        []Line{{Name: "Mug - Blue", UnitPrice: decimal.RequireFromString("100.00"), Quantity: 2}},
		Shipping:     decimal.NewFromInt(10),
		Tax:          decimal.NewFromInt(36),
	})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if session.RedirectURL == "" || session.ExpiresAt.IsZero() {
		t.Fatalf("unexpected session %+v", session)
	}
	if len(fake.params.LineItems) != 3 {
		t.Fatalf("expected item, shipping and tax lines, got %d", len(fake.params.LineItems))
	}
	first := fake.params.LineItems[0]
	if *first.PriceData.UnitAmount != 10000 || *first.Quantity != 2 || *first.PriceData.Currency != "pen" {
		t.Fatalf("unexpected first line %+v", first.PriceData)
	}
	if fake.params.Metadata["orderId"] != "ord-1" || *fake.params.CustomerEmail != "ana@example.com" {
		t.Fatalf("unexpected params %+v", fake.params)
	}
}

func TestCreateSessionRejectsBadInput(t *testing.T) {
	s := newTestSessions(t, &fakeSessions{})
	if _, err := s.CreateSession(context.Background(), SessionRequest{CurrencyCode: "PEN"}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected missing order id to fail, got %v", err)
	}
	if _, err := s.CreateSession(context.Background(), SessionRequest{OrderID: "o", CurrencyCode: "nope"}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected bad currency to fail, got %v", err)
	}
}

func TestCreateSessionWrapsStripeErrors(t *testing.T) {
	s := newTestSessions(t, &fakeSessions{err: errors.New("card_declined")})
	_, err := s.CreateSession(context.Background(), SessionRequest{
		OrderID: "o", CurrencyCode: "USD",
		Lines: []Line{{Name: "x", UnitPrice: decimal.NewFromInt(1), Quantity: 1}},
	})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestMinorUnits(t *testing.T) {
	cases := []struct {
		amount string
		unit   currency.Unit
		want   int64
	}{
		{"12.34", currency.USD, 1234},
		{"30.505", currency.MustParseISO("PEN"), 3051},
		{"1500", currency.JPY, 1500},
	}
	for _, tc := range cases {
		if got := MinorUnits(decimal.RequireFromString(tc.amount), tc.unit); got != tc.want {
			t.Errorf("MinorUnits(%s, %s) = %d, want %d", tc.amount, tc.unit, got, tc.want)
		}
	}
}

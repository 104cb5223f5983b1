package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/platform/auth"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, mutate ...func(*Options)) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	opts := Options{BaseURL: server.URL + "/api", APIKey: "static-key", Timeout: 2 * time.Second}
	for _, m := range mutate {
		m(&opts)
	}
	client, err := NewClient(opts)
	require.NoError(t, err)
	return client
}

func TestAuthTransportUsesAPIKeyForGuests(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/shop", r.URL.Path)
		assert.Equal(t, "static-key", r.Header.Get("X-API-Key"))
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"name":"Shop","defaultCurrencyId":"PEN","taxesIncluded":false,"taxValue":"18"}`))
	})

	shop, err := client.GetShop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "PEN", shop.DefaultCurrencyID)
	require.NotNil(t, shop.TaxValue)
	assert.True(t, shop.TaxValue.Equal(decimal.NewFromInt(18)))
}

func TestAuthTransportPrefersBearerToken(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer jwt-1", r.Header.Get("Authorization"))
		assert.Empty(t, r.Header.Get("X-API-Key"))
		_, _ = w.Write([]byte(`{"id":"cust-1","firstName":"Ana","addresses":[{"id":"a1","address1":"Av. Larco 1"}]}`))
	})

	ctx := auth.WithIdentity(context.Background(), &auth.Identity{CustomerID: "cust-1", Token: "jwt-1"})
	customer, err := client.GetCustomer(ctx, "cust-1")
	require.NoError(t, err)
	assert.Equal(t, "cust-1", customer.ID)
	require.Len(t, customer.Addresses, 1)
}

func TestDecodesDataEnvelope(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"id":"sm-1","name":"Express","isActive":true,"prices":[{"currencyId":"PEN","price":"15.00"}]}],"total":1}`))
	})
	methods, err := client.ListShippingMethods(context.Background())
	require.NoError(t, err)
	require.Len(t, methods, 1)
	assert.Equal(t, "sm-1", methods[0].ID)
}

func TestCreateCustomerSendsIdempotencyKey(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "guest-key", r.Header.Get("Idempotency-Key"))
		var in CustomerInput
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Len(t, in.Addresses, 2)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"cust-9","addresses":[{"id":"a1"},{"id":"a2"}]}`))
	})
	customer, err := client.CreateCustomer(context.Background(), CustomerInput{
		FirstName: "Ana",
		Email:     "ana@example.com",
		Addresses: []domain.Address{{Address1: "A"}, {Address1: "B"}},
	}, "guest-key")
	require.NoError(t, err)
	assert.Equal(t, "cust-9", customer.ID)
}

func TestErrorResponsesAreClassified(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"code":"email_taken","message":"email already registered"}`))
	})
	_, err := client.CreateCustomer(context.Background(), CustomerInput{Email: "a@b.c"}, "")
	var be *Error
	require.ErrorAs(t, err, &be)
	assert.Equal(t, http.StatusConflict, be.Status)
	assert.Equal(t, "email_taken", be.Code)
	assert.True(t, IsConflict(err))
	assert.False(t, IsUnavailable(err))
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var hits atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}, func(o *Options) {
		o.BreakerFailures = 2
		o.BreakerOpenTimeout = time.Minute
	})

	for i := 0; i < 2; i++ {
		_, err := client.ListProducts(context.Background(), ListQuery{})
		require.True(t, IsUnavailable(err), "attempt %d: %v", i, err)
	}
	_, err := client.ListProducts(context.Background(), ListQuery{})
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(2), hits.Load())
}

func TestClientErrorsDoNotTripBreaker(t *testing.T) {
	var hits atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}, func(o *Options) { o.BreakerFailures = 1 })

	for i := 0; i < 3; i++ {
		_, err := client.GetProduct(context.Background(), "missing")
		require.True(t, IsNotFound(err))
	}
	assert.Equal(t, int32(3), hits.Load())
}

func TestListProductsEncodesQuery(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "mug", r.URL.Query().Get("search"))
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`[]`))
	})
	products, err := client.ListProducts(context.Background(), ListQuery{Search: "mug", Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, products)
}

func TestEmailSenderRoutesByKind(t *testing.T) {
	paths := make(chan string, 2)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.NotEmpty(t, body)
		paths <- r.URL.Path
		w.WriteHeader(http.StatusAccepted)
	})
	sender := NewEmailSender(client)

	require.NoError(t, sender.Send(context.Background(), domain.NotificationTask{Kind: domain.NotificationOrderConfirmation, To: "ana@example.com"}))
	require.NoError(t, sender.Send(context.Background(), domain.NotificationTask{Kind: domain.NotificationBusiness, Fields: map[string]string{"orderId": "o1"}}))
	assert.Equal(t, "/api/email/send", <-paths)
	assert.Equal(t, "/api/email/submit-form", <-paths)

	err := sender.Send(context.Background(), domain.NotificationTask{Kind: "sms"})
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrUnavailable))
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	_, err := NewClient(Options{})
	require.Error(t, err)
}

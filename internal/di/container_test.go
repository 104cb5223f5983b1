package di

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/platform/config"
)

type recordingSender struct {
	sent atomic.Int32
}

func (s *recordingSender) Send(context.Context, domain.NotificationTask) error {
	s.sent.Add(1)
	return nil
}

func testConfig(backendURL string) config.Config {
	return config.Config{
		Server:  config.ServerConfig{Port: "8080"},
		Backend: config.BackendConfig{BaseURL: backendURL, APIKey: "key", Timeout: time.Second, BreakerFailures: 5},
		Session: config.SessionConfig{Secret: "s3cret", CookieName: "sf_session", TTL: time.Hour},
		Storage: config.StorageConfig{CartStore: "memory"},
		Catalog: config.CatalogConfig{CacheTTL: time.Minute, DefaultCurrency: "PEN"},
		Notifications: config.NotificationConfig{
			Workers:     1,
			QueueSize:   4,
			MaxAttempts: 2,
			Backoff:     time.Millisecond,
			MaxBackoff:  time.Millisecond,
		},
		Idempotency: config.IdempotencyConfig{Header: "Idempotency-Key", TTL: time.Hour},
	}
}

func TestNewContainerMemoryStore(t *testing.T) {
	var apiKeys atomic.Int32
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != "" {
			apiKeys.Add(1)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"name":"Tienda","defaultCurrencyId":"PEN"}}`))
	}))
	defer backend.Close()

	sender := &recordingSender{}
	c, err := NewContainer(context.Background(), testConfig(backend.URL), nil, WithNotificationSender(sender))
	require.NoError(t, err)

	assert.NotNil(t, c.Services.Catalog)
	assert.NotNil(t, c.Services.Cart)
	assert.NotNil(t, c.Services.Sessions)
	assert.NotNil(t, c.Services.Checkout)
	assert.NotNil(t, c.Idempotency)
	assert.NotNil(t, c.Cookies)
	assert.NotNil(t, c.Customers)

	report, err := c.Repositories.Health().Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.HealthStatusOK, report.Status)
	assert.Contains(t, report.Checks, "backend")
	assert.Positive(t, apiKeys.Load())

	shop, err := c.Services.Catalog.ShopSettings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Tienda", shop.Name)

	require.NoError(t, c.Services.Notifications.Enqueue(context.Background(), domain.NotificationTask{Kind: domain.NotificationOrderConfirmation, To: "ana@example.com"}))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Close(ctx))
	assert.Equal(t, int32(1), sender.sent.Load())
}

func TestNewContainerReadinessReportsBackendOutage(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer backend.Close()

	c, err := NewContainer(context.Background(), testConfig(backend.URL), nil, WithNotificationSender(&recordingSender{}))
	require.NoError(t, err)
	defer func() { _ = c.Close(context.Background()) }()

	report, err := c.Repositories.Health().Collect(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, domain.HealthStatusOK, report.Status)
	assert.NotEqual(t, domain.HealthStatusOK, report.Checks["backend"].Status)
}

func TestNewContainerRequiresSessionSecret(t *testing.T) {
	cfg := testConfig("http://backend.invalid")
	cfg.Session.Secret = ""

	_, err := NewContainer(context.Background(), cfg, nil, WithNotificationSender(&recordingSender{}))
	require.Error(t, err)
}

func TestNewContainerRequiresBackendURL(t *testing.T) {
	cfg := testConfig("")

	_, err := NewContainer(context.Background(), cfg, nil, WithNotificationSender(&recordingSender{}))
	require.Error(t, err)
}

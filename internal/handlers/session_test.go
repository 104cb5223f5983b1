package handlers

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/services"
)

func TestSessionHandlersLogin(t *testing.T) {
	sessions := &stubSessionService{login: services.LoginResult{Token: "jwt-1", Customer: domain.Customer{ID: "cus-1"}}}
	h := NewSessionHandlers(sessions)
	router := NewRouter(WithAPIMiddlewares(withSession), WithSessionRoutes(h.Routes))

	rr := serve(t, router, http.MethodPost, "/api/v1/session/login", `{"email":"ana@example.com","password":"secret"}`)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var body services.LoginResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "jwt-1", body.Token)
	assert.Equal(t, "cus-1", body.Customer.ID)
}

func TestSessionHandlersLoginRejected(t *testing.T) {
	sessions := &stubSessionService{err: services.ErrSessionUnauthorized}
	router := NewRouter(WithSessionRoutes(NewSessionHandlers(sessions).Routes))

	rr := serve(t, router, http.MethodPost, "/api/v1/session/login", `{"email":"ana@example.com","password":"wrong"}`)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestSessionHandlersLoginRateLimited(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	sessions := &stubSessionService{err: services.ErrSessionUnauthorized}
	h := NewSessionHandlers(sessions,
		WithLoginRateLimit(2, time.Minute),
		WithSessionClock(func() time.Time { return now }),
	)
	router := NewRouter(WithSessionRoutes(h.Routes))
	body := `{"email":"Ana@Example.com","password":"wrong"}`

	for i := 0; i < 2; i++ {
		rr := serve(t, router, http.MethodPost, "/api/v1/session/login", body)
		require.Equal(t, http.StatusUnauthorized, rr.Code)
	}
	rr := serve(t, router, http.MethodPost, "/api/v1/session/login", body)
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))
	assert.Equal(t, 2, sessions.logins)

	now = now.Add(time.Minute)
	rr = serve(t, router, http.MethodPost, "/api/v1/session/login", body)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestSessionHandlersCurrent(t *testing.T) {
	sessions := &stubSessionService{session: domain.CheckoutSession{Step: domain.StepShippingPayment}}
	router := NewRouter(
		WithAPIMiddlewares(withSession, withCustomer("cus-3")),
		WithSessionRoutes(NewSessionHandlers(sessions).Routes),
	)

	rr := serve(t, router, http.MethodGet, "/api/v1/session", "")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"sessionId":"sess-1","customerId":"cus-3","step":"shipping_payment"}`, rr.Body.String())
}

func TestWindowLimiterIsolatesKeys(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := newWindowLimiter(1, time.Second, func() time.Time { return now })

	ok, _ := limiter.Allow("a")
	assert.True(t, ok)
	ok, wait := limiter.Allow("A ")
	assert.False(t, ok)
	assert.Equal(t, time.Second, wait)
	ok, _ = limiter.Allow("b")
	assert.True(t, ok)
	assert.Nil(t, newWindowLimiter(0, time.Second, nil))
}

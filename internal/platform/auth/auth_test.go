package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	jwt "github.com/golang-jwt/jwt/v4"

	"github.com/hanko-field/storefront/internal/platform/requestctx"
)

var fixedNow = time.Date(2025, time.March, 3, 10, 0, 0, 0, time.UTC)

func signHS256(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return token
}

func TestAuthenticateHS256(t *testing.T) {
	authn := NewCustomerAuthenticator(WithSharedSecret("s3cret"), WithClock(func() time.Time { return fixedNow }))
	raw := signHS256(t, "s3cret", jwt.MapClaims{
		"customerId": "cust_1",
		"email":      "ana@example.com",
		"exp":        fixedNow.Add(time.Hour).Unix(),
	})

	identity, err := authn.Authenticate(context.Background(), raw)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if identity.CustomerID != "cust_1" || identity.Email != "ana@example.com" || identity.Token != raw {
		t.Fatalf("unexpected identity %+v", identity)
	}
}

func TestAuthenticateFallsBackToSubject(t *testing.T) {
	authn := NewCustomerAuthenticator(WithSharedSecret("s3cret"), WithClock(func() time.Time { return fixedNow }))
	raw := signHS256(t, "s3cret", jwt.MapClaims{"sub": "cust_9"})
	identity, err := authn.Authenticate(context.Background(), raw)
	if err != nil || identity.CustomerID != "cust_9" {
		t.Fatalf("expected subject as customer id, got %+v err=%v", identity, err)
	}
}

func TestAuthenticateRejects(t *testing.T) {
	authn := NewCustomerAuthenticator(WithSharedSecret("s3cret"), WithIssuer("shop-api"), WithClock(func() time.Time { return fixedNow }))
	cases := map[string]string{
		"expired":      signHS256(t, "s3cret", jwt.MapClaims{"sub": "c", "iss": "shop-api", "exp": fixedNow.Add(-time.Minute).Unix()}),
		"wrong secret": signHS256(t, "other", jwt.MapClaims{"sub": "c", "iss": "shop-api"}),
		"wrong issuer": signHS256(t, "s3cret", jwt.MapClaims{"sub": "c", "iss": "evil"}),
		"no subject":   signHS256(t, "s3cret", jwt.MapClaims{"iss": "shop-api"}),
		"garbage":      "not-a-jwt",
	}
	for name, raw := range cases {
		if _, err := authn.Authenticate(context.Background(), raw); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}
}

func TestAuthenticateNotConfigured(t *testing.T) {
	if _, err := NewCustomerAuthenticator().Authenticate(context.Background(), "x"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestAuthenticateRS256ViaJWKS(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	var mu sync.Mutex
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		requests++
		mu.Unlock()
		w.Header().Set("Cache-Control", "public, max-age=600")
		_ = json.NewEncoder(w).Encode(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{
			Key: &key.PublicKey, KeyID: "k1", Algorithm: "RS256", Use: "sig",
		}}})
	}))
	t.Cleanup(server.Close)

	cache := NewJWKSCache(server.URL, WithJWKSClock(func() time.Time { return fixedNow }))
	authn := NewCustomerAuthenticator(WithJWKS(cache), WithClock(func() time.Time { return fixedNow }))

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{"sub": "cust_rs", "email": "rs@example.com"})
	token.Header["kid"] = "k1"
	raw, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	for i := 0; i < 2; i++ {
		identity, err := authn.Authenticate(context.Background(), raw)
		if err != nil {
			t.Fatalf("Authenticate: %v", err)
		}
		if identity.CustomerID != "cust_rs" {
			t.Fatalf("unexpected identity %+v", identity)
		}
	}
	mu.Lock()
	defer mu.Unlock()
	if requests != 1 {
		t.Fatalf("expected one jwks fetch, got %d", requests)
	}

	hs := signHS256(t, "whatever", jwt.MapClaims{"sub": "c"})
	if _, err := authn.Authenticate(context.Background(), hs); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected hs256 to be refused without a shared secret, got %v", err)
	}
}

func TestJWKSCacheUnknownKid(t *testing.T) {
	key, _ := rsa.GenerateKey(rand.Reader, 2048)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{Key: &key.PublicKey, KeyID: "k1", Algorithm: "RS256", Use: "sig"}}})
	}))
	t.Cleanup(server.Close)

	_, err := NewJWKSCache(server.URL).Key(context.Background(), "missing")
	if !errors.Is(err, ErrJWKSKeyNotFound) {
		t.Fatalf("expected ErrJWKSKeyNotFound, got %v", err)
	}
}

func TestMiddlewareGuestAndRejection(t *testing.T) {
	authn := NewCustomerAuthenticator(WithSharedSecret("s3cret"), WithClock(func() time.Time { return fixedNow }))
	var seen *Identity
	handler := authn.Middleware()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen, _ = IdentityFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil))
	if rec.Code != http.StatusOK || seen != nil {
		t.Fatalf("expected guest pass-through, got %d %+v", rec.Code, seen)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set("Authorization", "Bearer "+signHS256(t, "s3cret", jwt.MapClaims{"sub": "cust_1"}))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if seen == nil || seen.CustomerID != "cust_1" {
		t.Fatalf("expected identity, got %+v", seen)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set("Authorization", "Bearer broken")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestSessionCodecRoundTrip(t *testing.T) {
	codec, err := NewSessionCodec("session-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewSessionCodec: %v", err)
	}
	id := "01HZX3J3T9K6W2A7Q8R5M4N3P2"
	value, err := codec.Encode("sf_session", id)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := codec.Decode("sf_session", value)
	if err != nil || got != id {
		t.Fatalf("expected round trip, got %q err=%v", got, err)
	}

	other, _ := NewSessionCodec("other-secret", time.Hour)
	if _, err := other.Decode("sf_session", value); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected signature mismatch, got %v", err)
	}
	if _, err := codec.Decode("other_cookie", value); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected cookie name binding, got %v", err)
	}
	if _, err := codec.Decode("sf_session", "garbage"); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected malformed cookie error, got %v", err)
	}

	notULID, _ := codec.Encode("sf_session", "chosen-by-client")
	if _, err := codec.Decode("sf_session", notULID); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected non ulid id to be rejected, got %v", err)
	}

	if _, err := NewSessionCodec(" ", time.Hour); err == nil {
		t.Fatalf("expected empty secret to be rejected")
	}
	if _, err := NewSessionCodec("session-secret", 0); err == nil {
		t.Fatalf("expected zero max age to be rejected")
	}
}

func TestSessionCodecRejectsExpiredValues(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for the cookie timestamp to age")
	}
	codec, err := NewSessionCodec("session-secret", time.Second)
	if err != nil {
		t.Fatalf("NewSessionCodec: %v", err)
	}
	value, err := codec.Encode("sf_session", "01HZX3J3T9K6W2A7Q8R5M4N3P2")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	time.Sleep(2100 * time.Millisecond)
	if _, err := codec.Decode("sf_session", value); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected expired cookie to be rejected, got %v", err)
	}
}

func TestSessionCookiesMiddleware(t *testing.T) {
	codec, _ := NewSessionCodec("session-secret", time.Hour)
	cookies := NewSessionCookies(codec, "sf_session", true, time.Hour, func() string { return "01HZX3J3T9K6W2A7Q8R5M4N3P2" })

	var sessionID string
	handler := cookies.Middleware()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		sessionID = requestctx.SessionID(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if sessionID != "01HZX3J3T9K6W2A7Q8R5M4N3P2" {
		t.Fatalf("expected new session id, got %q", sessionID)
	}
	issued := rec.Result().Cookies()
	if len(issued) != 1 || !issued[0].HttpOnly || !issued[0].Secure {
		t.Fatalf("unexpected cookie %+v", issued)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(issued[0])
	rec = httptest.NewRecorder()
	sessionID = ""
	handler.ServeHTTP(rec, req)
	if sessionID != "01HZX3J3T9K6W2A7Q8R5M4N3P2" {
		t.Fatalf("expected session reuse, got %q", sessionID)
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Fatalf("expected no new cookie for a valid session")
	}
}

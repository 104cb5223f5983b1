package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"

	"github.com/hanko-field/storefront/internal/platform/httpx"
	"github.com/hanko-field/storefront/internal/platform/requestctx"
)

var (
	// ErrInvalidToken covers malformed, expired or wrongly signed customer tokens.
	ErrInvalidToken = errors.New("auth: invalid customer token")
	// ErrNotConfigured is returned when neither a shared secret nor a JWKS URL is set.
	ErrNotConfigured = errors.New("auth: customer token verification not configured")
)

// CustomerAuthenticator verifies backend-issued customer JWTs. HS256 tokens are checked
// against a shared secret and RS256 tokens against the backend JWKS.
type CustomerAuthenticator struct {
	secret []byte
	jwks   *JWKSCache
	issuer string
	now    func() time.Time
}

// CustomerAuthOption customises the authenticator.
type CustomerAuthOption func(*CustomerAuthenticator)

// WithSharedSecret enables HS256 verification.
func WithSharedSecret(secret string) CustomerAuthOption {
	return func(a *CustomerAuthenticator) {
		if s := strings.TrimSpace(secret); s != "" {
			a.secret = []byte(s)
		}
	}
}

// WithJWKS enables RS256 verification against the given key cache.
func WithJWKS(cache *JWKSCache) CustomerAuthOption {
	return func(a *CustomerAuthenticator) { a.jwks = cache }
}

// WithIssuer requires the iss claim to match.
func WithIssuer(issuer string) CustomerAuthOption {
	return func(a *CustomerAuthenticator) { a.issuer = strings.TrimSpace(issuer) }
}

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) CustomerAuthOption {
	return func(a *CustomerAuthenticator) {
		if now != nil {
			a.now = now
		}
	}
}

// NewCustomerAuthenticator builds an authenticator from the supplied options.
func NewCustomerAuthenticator(opts ...CustomerAuthOption) *CustomerAuthenticator {
	a := &CustomerAuthenticator{now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

type customerClaims struct {
	CustomerID string `json:"customerId"`
	ID         string `json:"id"`
	Email      string `json:"email"`
	jwt.RegisteredClaims
}

func (c customerClaims) customerID() string {
	for _, candidate := range []string{c.CustomerID, c.ID, c.Subject} {
		if v := strings.TrimSpace(candidate); v != "" {
			return v
		}
	}
	return ""
}

// Authenticate verifies raw and returns the customer identity it carries.
func (a *CustomerAuthenticator) Authenticate(ctx context.Context, raw string) (*Identity, error) {
	if a == nil || (len(a.secret) == 0 && a.jwks == nil) {
		return nil, ErrNotConfigured
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodRS256.Alg()}))
	parser.SkipClaimsValidation = true

	var claims customerClaims
	token, err := parser.ParseWithClaims(raw, &claims, a.keyfunc(ctx))
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	now := a.now()
	if !claims.VerifyExpiresAt(now, false) {
		return nil, fmt.Errorf("%w: token expired", ErrInvalidToken)
	}
	if !claims.VerifyNotBefore(now, false) {
		return nil, fmt.Errorf("%w: token not yet valid", ErrInvalidToken)
	}
	if a.issuer != "" && !claims.VerifyIssuer(a.issuer, true) {
		return nil, fmt.Errorf("%w: unexpected issuer %q", ErrInvalidToken, claims.Issuer)
	}
	customerID := claims.customerID()
	if customerID == "" {
		return nil, fmt.Errorf("%w: missing customer id", ErrInvalidToken)
	}
	return &Identity{CustomerID: customerID, Email: strings.TrimSpace(claims.Email), Token: raw}, nil
}

func (a *CustomerAuthenticator) keyfunc(ctx context.Context) jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		switch token.Method.Alg() {
		case jwt.SigningMethodHS256.Alg():
			if len(a.secret) == 0 {
				return nil, errors.New("auth: hs256 tokens not accepted")
			}
			return a.secret, nil
		case jwt.SigningMethodRS256.Alg():
			if a.jwks == nil {
				return nil, errors.New("auth: rs256 tokens not accepted")
			}
			return a.jwks.Keyfunc(ctx)(token)
		default:
			return nil, fmt.Errorf("auth: unexpected signing method %s", token.Method.Alg())
		}
	}
}

// Middleware attaches the identity for requests that carry a bearer token. Requests
// without one continue as guests. A token that fails verification is rejected with 401.
func (a *CustomerAuthenticator) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			identity, err := a.Authenticate(ctx, raw)
			if err != nil {
				requestctx.Logger(ctx).Warn("customer token rejected", zap.Error(err))
				httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "invalid or expired customer token", http.StatusUnauthorized))
				return
			}
			ctx = WithIdentity(ctx, identity)
			ctx = requestctx.WithLogger(ctx, requestctx.Logger(ctx).With(zap.String("customer_id", identity.CustomerID)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractBearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

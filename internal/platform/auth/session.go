package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/hanko-field/storefront/internal/platform/requestctx"
)

// ErrInvalidSession is returned for cookies that are malformed, expired or fail the signature check.
var ErrInvalidSession = errors.New("auth: invalid session cookie")

// SessionCodec signs opaque session ids so clients cannot pick another browser's id.
// Values carry an issue timestamp and stop decoding once maxAge has passed.
type SessionCodec struct {
	codec *securecookie.SecureCookie
}

// NewSessionCodec constructs a signing-only codec keyed by secret. The secret must not be empty.
func NewSessionCodec(secret string, maxAge time.Duration) (*SessionCodec, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: session secret is required")
	}
	if maxAge < time.Second {
		return nil, errors.New("auth: session max age must be at least one second")
	}
	codec := securecookie.New([]byte(secret), nil)
	codec.SetSerializer(securecookie.JSONEncoder{})
	codec.MaxAge(int(maxAge / time.Second))
	return &SessionCodec{codec: codec}, nil
}

// Encode signs id for the named cookie.
func (s *SessionCodec) Encode(name, id string) (string, error) {
	return s.codec.Encode(name, id)
}

// Decode returns the session id carried by a signed value.
func (s *SessionCodec) Decode(name, value string) (string, error) {
	var id string
	if err := s.codec.Decode(name, value, &id); err != nil {
		return "", errors.Join(ErrInvalidSession, err)
	}
	if _, err := ulid.ParseStrict(id); err != nil {
		return "", ErrInvalidSession
	}
	return id, nil
}

// SessionCookies issues and reads the storefront session cookie.
type SessionCookies struct {
	codec  *SessionCodec
	name   string
	secure bool
	ttl    time.Duration
	newID  func() string
}

// NewSessionCookies wires the cookie settings. newID defaults to ULIDs.
func NewSessionCookies(codec *SessionCodec, name string, secure bool, ttl time.Duration, newID func() string) *SessionCookies {
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}
	if strings.TrimSpace(name) == "" {
		name = "sf_session"
	}
	return &SessionCookies{codec: codec, name: name, secure: secure, ttl: ttl, newID: newID}
}

// Middleware guarantees every request runs inside a session. A missing or tampered
// cookie is replaced by a fresh session id.
func (c *SessionCookies) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			var sessionID string
			if cookie, err := r.Cookie(c.name); err == nil {
				if id, verr := c.codec.Decode(c.name, cookie.Value); verr == nil {
					sessionID = id
				} else {
					requestctx.Logger(ctx).Info("session cookie rejected", zap.Error(verr))
				}
			}
			if sessionID == "" {
				sessionID = c.newID()
				if cookie, err := c.cookie(sessionID); err == nil {
					http.SetCookie(w, cookie)
				} else {
					requestctx.Logger(ctx).Error("session cookie encode failed", zap.Error(err))
				}
			}

			ctx = requestctx.WithSessionID(ctx, sessionID)
			ctx = requestctx.WithLogger(ctx, requestctx.Logger(ctx).With(zap.String("session_id", sessionID)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (c *SessionCookies) cookie(sessionID string) (*http.Cookie, error) {
	value, err := c.codec.Encode(c.name, sessionID)
	if err != nil {
		return nil, err
	}
	return &http.Cookie{
		Name:     c.name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(c.ttl / time.Second),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	}, nil
}

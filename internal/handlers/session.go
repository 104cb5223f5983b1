package handlers

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hanko-field/storefront/internal/platform/httpx"
	"github.com/hanko-field/storefront/internal/services"
)

const (
	maxLoginBodySize     = 4 * 1024
	defaultLoginAttempts = 10
	defaultLoginWindow   = time.Minute
)

// SessionHandlers exposes the storefront session and customer login.
type SessionHandlers struct {
	sessions services.SessionService
	limiter  rateLimiter
}

// SessionHandlersOption customises session handlers.
type SessionHandlersOption func(*sessionHandlersConfig)

type sessionHandlersConfig struct {
	attempts int
	window   time.Duration
	clock    func() time.Time
}

// WithLoginRateLimit caps login attempts per client and email within window.
func WithLoginRateLimit(attempts int, window time.Duration) SessionHandlersOption {
	return func(cfg *sessionHandlersConfig) {
		cfg.attempts = attempts
		cfg.window = window
	}
}

// WithSessionClock overrides the limiter clock.
func WithSessionClock(clock func() time.Time) SessionHandlersOption {
	return func(cfg *sessionHandlersConfig) {
		cfg.clock = clock
	}
}

// NewSessionHandlers constructs session handlers.
func NewSessionHandlers(sessions services.SessionService, opts ...SessionHandlersOption) *SessionHandlers {
	cfg := sessionHandlersConfig{attempts: defaultLoginAttempts, window: defaultLoginWindow, clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return &SessionHandlers{
		sessions: sessions,
		limiter:  newWindowLimiter(cfg.attempts, cfg.window, cfg.clock),
	}
}

// Routes registers /session endpoints.
func (h *SessionHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.current)
	r.Post("/login", h.login)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	SessionID  string `json:"sessionId"`
	CustomerID string `json:"customerId,omitempty"`
	Step       string `json:"step"`
}

func (h *SessionHandlers) current(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	sid, ok := sessionID(w, r)
	if !ok {
		return
	}
	session, err := h.sessions.Load(r.Context(), sid)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, sessionResponse{
		SessionID:  sid,
		CustomerID: customerID(r.Context()),
		Step:       string(session.Step),
	})
}

func (h *SessionHandlers) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(w, r) {
		return
	}
	var req loginRequest
	if !decodeBody(w, r, maxLoginBodySize, &req) {
		return
	}

	if h.limiter != nil {
		if allowed, wait := h.limiter.Allow(clientKey(r) + "|" + strings.TrimSpace(req.Email)); !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many login attempts", http.StatusTooManyRequests))
			return
		}
	}

	result, err := h.sessions.Login(ctx, req.Email, req.Password)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, result)
}

func (h *SessionHandlers) ready(w http.ResponseWriter, r *http.Request) bool {
	if h == nil || h.sessions == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("session_service_unavailable", "session service is unavailable", http.StatusServiceUnavailable))
		return false
	}
	return true
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}

package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/platform/backend"
	"github.com/hanko-field/storefront/internal/repositories"
)

var (
	// ErrSessionInvalidInput indicates a missing session id or credentials.
	ErrSessionInvalidInput = errors.New("session service: invalid input")
	// ErrSessionUnauthorized indicates the backend rejected the credentials.
	ErrSessionUnauthorized = errors.New("session service: invalid credentials")
	// ErrSessionUnavailable indicates the session store or backend failed.
	ErrSessionUnavailable = errors.New("session service: unavailable")
)

// SessionServiceDeps wires the session service.
type SessionServiceDeps struct {
	Repository repositories.CheckoutSessionRepository
	Login      LoginGateway
	Clock      func() time.Time
	Logger     func(context.Context, string, map[string]any)
}

type sessionService struct {
	repo   repositories.CheckoutSessionRepository
	login  LoginGateway
	now    func() time.Time
	logger func(context.Context, string, map[string]any)
}

// NewSessionService constructs a SessionService.
func NewSessionService(deps SessionServiceDeps) (SessionService, error) {
	if deps.Repository == nil {
		return nil, errors.New("session service: repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &sessionService{
		repo:   deps.Repository,
		login:  deps.Login,
		now:    func() time.Time { return clock().UTC() },
		logger: logger,
	}, nil
}

func (s *sessionService) Load(ctx context.Context, sessionID string) (domain.CheckoutSession, error) {
	sid := strings.TrimSpace(sessionID)
	if sid == "" {
		return domain.CheckoutSession{}, fmt.Errorf("%w: session id is required", ErrSessionInvalidInput)
	}
	session, err := s.repo.GetSession(ctx, sid)
	if err == nil {
		if !session.Step.Valid() {
			session.Step = domain.StepCartReview
		}
		return session, nil
	}
	if !isRepoNotFound(err) {
		return domain.CheckoutSession{}, fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	}
	now := s.now()
	return domain.CheckoutSession{
		SessionID: sid,
		Step:      domain.StepCartReview,
		Form:      domain.NewCheckoutFormState(),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *sessionService) Save(ctx context.Context, session domain.CheckoutSession) (domain.CheckoutSession, error) {
	if strings.TrimSpace(session.SessionID) == "" {
		return domain.CheckoutSession{}, fmt.Errorf("%w: session id is required", ErrSessionInvalidInput)
	}
	now := s.now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now
	saved, err := s.repo.SaveSession(ctx, session)
	if err != nil {
		s.logger(ctx, "session.save_failed", map[string]any{"sessionId": session.SessionID, "error": err})
		return domain.CheckoutSession{}, fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	}
	return saved, nil
}

func (s *sessionService) Discard(ctx context.Context, sessionID string) error {
	if err := s.repo.DeleteSession(ctx, strings.TrimSpace(sessionID)); err != nil && !isRepoNotFound(err) {
		return fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	}
	return nil
}

func (s *sessionService) Login(ctx context.Context, email, password string) (LoginResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return LoginResult{}, fmt.Errorf("%w: email and password are required", ErrSessionInvalidInput)
	}
	if s.login == nil {
		return LoginResult{}, fmt.Errorf("%w: login gateway not configured", ErrSessionUnavailable)
	}
	res, err := s.login.Login(ctx, email, password)
	if err != nil {
		var be *backend.Error
		if errors.As(err, &be) && rejectedLogin(be.Status) {
			s.logger(ctx, "session.login_rejected", map[string]any{"status": be.Status})
			return LoginResult{}, ErrSessionUnauthorized
		}
		return LoginResult{}, fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	}
	s.logger(ctx, "session.login", map[string]any{"customerId": res.Customer.ID})
	return LoginResult{Token: res.Token, Customer: res.Customer}, nil
}

func rejectedLogin(status int) bool {
	switch status {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return true
	}
	return false
}

// Package memory provides in-process repositories for local development and tests.
package memory

import (
	"context"
	"errors"
	"strings"
	"sync"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
)

var errSessionIDRequired = errors.New("session id is required")

// CartRepository keeps carts in a map guarded by a mutex.
type CartRepository struct {
	mu    sync.Mutex
	carts map[string]domain.Cart
}

// NewCartRepository constructs an empty cart store.
func NewCartRepository() *CartRepository {
	return &CartRepository{carts: make(map[string]domain.Cart)}
}

// GetCart implements repositories.CartRepository.
func (r *CartRepository) GetCart(_ context.Context, sessionID string) (domain.Cart, error) {
	sessionID = strings.TrimSpace(sessionID)
	r.mu.Lock()
	defer r.mu.Unlock()
	cart, ok := r.carts[sessionID]
	if !ok {
		return domain.Cart{}, repositories.NewNotFoundError("memory.carts.get")
	}
	return cart.Clone(), nil
}

// SaveCart implements repositories.CartRepository.
func (r *CartRepository) SaveCart(_ context.Context, cart domain.Cart) (domain.Cart, error) {
	sessionID := strings.TrimSpace(cart.SessionID)
	if sessionID == "" {
		return domain.Cart{}, repositories.NewError("memory.carts.save", repositories.ErrorKindUnknown, errSessionIDRequired)
	}
	cart.SessionID = sessionID
	r.mu.Lock()
	defer r.mu.Unlock()
	r.carts[sessionID] = cart.Clone()
	return cart.Clone(), nil
}

// DeleteCart implements repositories.CartRepository.
func (r *CartRepository) DeleteCart(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.carts, strings.TrimSpace(sessionID))
	return nil
}

// CheckoutSessionRepository keeps checkout sessions in a map guarded by a mutex.
type CheckoutSessionRepository struct {
	mu       sync.Mutex
	sessions map[string]domain.CheckoutSession
}

// NewCheckoutSessionRepository constructs an empty session store.
func NewCheckoutSessionRepository() *CheckoutSessionRepository {
	return &CheckoutSessionRepository{sessions: make(map[string]domain.CheckoutSession)}
}

// GetSession implements repositories.CheckoutSessionRepository.
func (r *CheckoutSessionRepository) GetSession(_ context.Context, sessionID string) (domain.CheckoutSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[strings.TrimSpace(sessionID)]
	if !ok {
		return domain.CheckoutSession{}, repositories.NewNotFoundError("memory.checkout_sessions.get")
	}
	return session.Clone(), nil
}

// SaveSession implements repositories.CheckoutSessionRepository.
func (r *CheckoutSessionRepository) SaveSession(_ context.Context, session domain.CheckoutSession) (domain.CheckoutSession, error) {
	sessionID := strings.TrimSpace(session.SessionID)
	if sessionID == "" {
		return domain.CheckoutSession{}, repositories.NewError("memory.checkout_sessions.save", repositories.ErrorKindUnknown, errSessionIDRequired)
	}
	session.SessionID = sessionID
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sessionID] = session.Clone()
	return session.Clone(), nil
}

// DeleteSession implements repositories.CheckoutSessionRepository.
func (r *CheckoutSessionRepository) DeleteSession(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, strings.TrimSpace(sessionID))
	return nil
}

var (
	_ repositories.CartRepository            = (*CartRepository)(nil)
	_ repositories.CheckoutSessionRepository = (*CheckoutSessionRepository)(nil)
)

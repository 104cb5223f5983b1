package repositories

import (
	"context"

	domain "github.com/hanko-field/storefront/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Carts() CartRepository
	CheckoutSessions() CheckoutSessionRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// CartRepository persists the cart ledger keyed by storefront session id.
type CartRepository interface {
	// GetCart returns a RepositoryError with IsNotFound when the session has no cart yet.
	GetCart(ctx context.Context, sessionID string) (domain.Cart, error)
	SaveCart(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	DeleteCart(ctx context.Context, sessionID string) error
}

// CheckoutSessionRepository persists checkout wizard state keyed by storefront session id.
type CheckoutSessionRepository interface {
	// GetSession returns a RepositoryError with IsNotFound when no checkout is in progress.
	GetSession(ctx context.Context, sessionID string) (domain.CheckoutSession, error)
	SaveSession(ctx context.Context, session domain.CheckoutSession) (domain.CheckoutSession, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/hanko-field/storefront/internal/platform/config"
	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
	"github.com/hanko-field/storefront/internal/platform/idempotency"
	"github.com/hanko-field/storefront/internal/repositories"
	firestoreRepo "github.com/hanko-field/storefront/internal/repositories/firestore"
	"github.com/hanko-field/storefront/internal/repositories/memory"
	redisRepo "github.com/hanko-field/storefront/internal/repositories/redis"
)

const (
	idempotencyCollection = "idempotencyKeys"
	dependencyTimeout     = 2 * time.Second
)

// storeRegistry implements repositories.Registry over one of the supported cart stores.
type storeRegistry struct {
	carts    repositories.CartRepository
	sessions repositories.CheckoutSessionRepository
	health   repositories.HealthRepository
	// idempotency follows the cart store: durable stores get durable keys.
	idempotency idempotency.Store
	checks      []repositories.DependencyCheck
	closers     []func(context.Context) error
}

func (r *storeRegistry) Carts() repositories.CartRepository { return r.carts }

func (r *storeRegistry) CheckoutSessions() repositories.CheckoutSessionRepository {
	return r.sessions
}

func (r *storeRegistry) Health() repositories.HealthRepository { return r.health }

func (r *storeRegistry) Close(ctx context.Context) error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// newStoreRegistry opens the cart store selected by CART_STORE. extra checks are probed by
// readiness alongside the store.
func newStoreRegistry(ctx context.Context, cfg config.Config, extra ...repositories.DependencyCheck) (*storeRegistry, error) {
	reg := &storeRegistry{}

	switch cfg.Storage.CartStore {
	case "firestore":
		provider := pfirestore.NewProvider(cfg.Firestore)
		if _, err := provider.Client(ctx); err != nil {
			return nil, fmt.Errorf("firestore client: %w", err)
		}
		reg.closers = append(reg.closers, func(context.Context) error { return provider.Close() })

		carts, err := firestoreRepo.NewCartRepository(provider)
		if err != nil {
			return nil, err
		}
		sessions, err := firestoreRepo.NewCheckoutSessionRepository(provider)
		if err != nil {
			return nil, err
		}
		store, err := idempotency.NewFirestoreStore(provider, idempotencyCollection)
		if err != nil {
			return nil, err
		}
		reg.carts, reg.sessions, reg.idempotency = carts, sessions, store
		reg.checks = append(reg.checks, repositories.DependencyCheck{Name: "firestore", Check: provider.Ping})

	case "redis":
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		reg.closers = append(reg.closers, func(context.Context) error { return client.Close() })

		opts := []redisRepo.Option{redisRepo.WithKeyPrefix(cfg.Redis.KeyPrefix), redisRepo.WithTTL(cfg.Session.TTL)}
		carts, err := redisRepo.NewCartRepository(client, opts...)
		if err != nil {
			return nil, err
		}
		sessions, err := redisRepo.NewCheckoutSessionRepository(client, opts...)
		if err != nil {
			return nil, err
		}
		reg.carts, reg.sessions, reg.idempotency = carts, sessions, idempotency.NewMemoryStore()
		reg.checks = append(reg.checks, repositories.DependencyCheck{Name: "redis", Check: carts.Ping})

	default:
		reg.carts = memory.NewCartRepository()
		reg.sessions = memory.NewCheckoutSessionRepository()
		reg.idempotency = idempotency.NewMemoryStore()
	}

	checks := append(append([]repositories.DependencyCheck(nil), reg.checks...), extra...)
	if len(checks) > 0 {
		health, err := repositories.NewDependencyHealthRepository(checks, repositories.WithDependencyTimeout(dependencyTimeout))
		if err != nil {
			return nil, err
		}
		reg.health = health
	}
	return reg, nil
}

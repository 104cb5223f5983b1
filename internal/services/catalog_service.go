package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/platform/backend"
)

const defaultCatalogCacheTTL = 5 * time.Minute

var (
	// ErrCatalogNotFound indicates the product does not exist.
	ErrCatalogNotFound = errors.New("catalog service: not found")
	// ErrCatalogUnavailable indicates the backend could not answer.
	ErrCatalogUnavailable = errors.New("catalog service: unavailable")
)

// CatalogServiceDeps wires the catalog service.
type CatalogServiceDeps struct {
	Gateway  CatalogGateway
	CacheTTL time.Duration
	Clock    func() time.Time
	Logger   func(context.Context, string, map[string]any)
}

type cacheEntry struct {
	value   any
	expires time.Time
}

type catalogService struct {
	gateway CatalogGateway
	ttl     time.Duration
	now     func() time.Time
	logger  func(context.Context, string, map[string]any)

	group singleflight.Group
	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// NewCatalogService constructs a CatalogService.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Gateway == nil {
		return nil, errors.New("catalog service: gateway is required")
	}
	ttl := deps.CacheTTL
	if ttl <= 0 {
		ttl = defaultCatalogCacheTTL
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &catalogService{
		gateway: deps.Gateway,
		ttl:     ttl,
		now:     func() time.Time { return clock().UTC() },
		logger:  logger,
		cache:   make(map[string]cacheEntry),
	}, nil
}

func (s *catalogService) ListProducts(ctx context.Context, query backend.ListQuery) ([]domain.Product, error) {
	products, err := s.gateway.ListProducts(ctx, query)
	if err != nil {
		return nil, s.translate(err)
	}
	return products, nil
}

func (s *catalogService) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.Product{}, fmt.Errorf("%w: product id is required", ErrCatalogNotFound)
	}
	product, err := s.gateway.GetProduct(ctx, productID)
	if err != nil {
		return domain.Product{}, s.translate(err)
	}
	return product, nil
}

func (s *catalogService) ShopSettings(ctx context.Context) (domain.ShopSettings, error) {
	v, err := s.cached(ctx, "shop", func(ctx context.Context) (any, error) {
		return s.gateway.GetShop(ctx)
	})
	if err != nil {
		return domain.ShopSettings{}, err
	}
	return v.(domain.ShopSettings), nil
}

func (s *catalogService) ShippingMethods(ctx context.Context) ([]domain.ShippingMethod, error) {
	v, err := s.cached(ctx, "shipping-methods", func(ctx context.Context) (any, error) {
		methods, err := s.gateway.ListShippingMethods(ctx)
		if err != nil {
			return nil, err
		}
		active := make([]domain.ShippingMethod, 0, len(methods))
		for _, m := range methods {
			if m.IsActive {
				active = append(active, m)
			}
		}
		return active, nil
	})
	if err != nil {
		return nil, err
	}
	return append([]domain.ShippingMethod(nil), v.([]domain.ShippingMethod)...), nil
}

func (s *catalogService) PaymentProviders(ctx context.Context) ([]domain.PaymentProvider, error) {
	v, err := s.cached(ctx, "payment-providers", func(ctx context.Context) (any, error) {
		providers, err := s.gateway.ListPaymentProviders(ctx)
		if err != nil {
			return nil, err
		}
		active := make([]domain.PaymentProvider, 0, len(providers))
		for _, p := range providers {
			if p.IsActive {
				active = append(active, p)
			}
		}
		return active, nil
	})
	if err != nil {
		return nil, err
	}
	return append([]domain.PaymentProvider(nil), v.([]domain.PaymentProvider)...), nil
}

// cached serves key from memory and collapses concurrent misses into one backend call.
func (s *catalogService) cached(ctx context.Context, key string, load func(context.Context) (any, error)) (any, error) {
	s.mu.RLock()
	entry, ok := s.cache[key]
	s.mu.RUnlock()
	if ok && s.now().Before(entry.expires) {
		return entry.value, nil
	}

	v, err, shared := s.group.Do(key, func() (any, error) {
		value, err := load(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.cache[key] = cacheEntry{value: value, expires: s.now().Add(s.ttl)}
		s.mu.Unlock()
		return value, nil
	})
	if err != nil {
		s.logger(ctx, "catalog.load_failed", map[string]any{"key": key, "shared": shared, "error": err})
		return nil, s.translate(err)
	}
	return v, nil
}

func (s *catalogService) translate(err error) error {
	switch {
	case err == nil:
		return nil
	case backend.IsNotFound(err):
		return fmt.Errorf("%w: %v", ErrCatalogNotFound, err)
	case backend.IsUnavailable(err):
		return fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}
}

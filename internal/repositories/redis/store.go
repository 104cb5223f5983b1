// Package redis stores carts and checkout sessions as JSON blobs in Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
)

const (
	defaultCartTTL    = 30 * 24 * time.Hour
	defaultSessionTTL = 24 * time.Hour
)

// Option customises the Redis repositories.
type Option func(*options)

type options struct {
	prefix string
	ttl    time.Duration
}

// WithKeyPrefix namespaces keys, e.g. per environment.
func WithKeyPrefix(prefix string) Option {
	return func(o *options) {
		o.prefix = strings.TrimSpace(prefix)
	}
}

// WithTTL overrides how long an untouched record is kept.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

func buildOptions(defaultTTL time.Duration, opts []Option) options {
	o := options{prefix: "storefront", ttl: defaultTTL}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// CartRepository persists carts under "<prefix>:cart:<session>".
type CartRepository struct {
	client goredis.UniversalClient
	opts   options
}

// NewCartRepository constructs a Redis-backed cart store.
func NewCartRepository(client goredis.UniversalClient, opts ...Option) (*CartRepository, error) {
	if client == nil {
		return nil, errors.New("redis cart repository: client is required")
	}
	return &CartRepository{client: client, opts: buildOptions(defaultCartTTL, opts)}, nil
}

func (r *CartRepository) key(sessionID string) string {
	return fmt.Sprintf("%s:cart:%s", r.opts.prefix, strings.TrimSpace(sessionID))
}

// GetCart implements repositories.CartRepository.
func (r *CartRepository) GetCart(ctx context.Context, sessionID string) (domain.Cart, error) {
	var cart domain.Cart
	if err := getJSON(ctx, r.client, r.key(sessionID), "redis.carts.get", &cart); err != nil {
		return domain.Cart{}, err
	}
	return cart, nil
}

// SaveCart implements repositories.CartRepository. Each save refreshes the TTL.
func (r *CartRepository) SaveCart(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if strings.TrimSpace(cart.SessionID) == "" {
		return domain.Cart{}, repositories.NewError("redis.carts.save", repositories.ErrorKindUnknown, errors.New("session id is required"))
	}
	if err := setJSON(ctx, r.client, r.key(cart.SessionID), "redis.carts.save", cart, r.opts.ttl); err != nil {
		return domain.Cart{}, err
	}
	return cart, nil
}

// DeleteCart implements repositories.CartRepository.
func (r *CartRepository) DeleteCart(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, r.key(sessionID)).Err(); err != nil {
		return wrapError("redis.carts.delete", err)
	}
	return nil
}

// Ping reports whether Redis is reachable.
func (r *CartRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// CheckoutSessionRepository persists checkout sessions under "<prefix>:checkout:<session>".
type CheckoutSessionRepository struct {
	client goredis.UniversalClient
	opts   options
}

// NewCheckoutSessionRepository constructs a Redis-backed checkout session store.
func NewCheckoutSessionRepository(client goredis.UniversalClient, opts ...Option) (*CheckoutSessionRepository, error) {
	if client == nil {
		return nil, errors.New("redis checkout session repository: client is required")
	}
	return &CheckoutSessionRepository{client: client, opts: buildOptions(defaultSessionTTL, opts)}, nil
}

func (r *CheckoutSessionRepository) key(sessionID string) string {
	return fmt.Sprintf("%s:checkout:%s", r.opts.prefix, strings.TrimSpace(sessionID))
}

// GetSession implements repositories.CheckoutSessionRepository.
func (r *CheckoutSessionRepository) GetSession(ctx context.Context, sessionID string) (domain.CheckoutSession, error) {
	var session domain.CheckoutSession
	if err := getJSON(ctx, r.client, r.key(sessionID), "redis.checkout_sessions.get", &session); err != nil {
		return domain.CheckoutSession{}, err
	}
	return session, nil
}

// SaveSession implements repositories.CheckoutSessionRepository.
func (r *CheckoutSessionRepository) SaveSession(ctx context.Context, session domain.CheckoutSession) (domain.CheckoutSession, error) {
	if strings.TrimSpace(session.SessionID) == "" {
		return domain.CheckoutSession{}, repositories.NewError("redis.checkout_sessions.save", repositories.ErrorKindUnknown, errors.New("session id is required"))
	}
	if err := setJSON(ctx, r.client, r.key(session.SessionID), "redis.checkout_sessions.save", session, r.opts.ttl); err != nil {
		return domain.CheckoutSession{}, err
	}
	return session, nil
}

// DeleteSession implements repositories.CheckoutSessionRepository.
func (r *CheckoutSessionRepository) DeleteSession(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, r.key(sessionID)).Err(); err != nil {
		return wrapError("redis.checkout_sessions.delete", err)
	}
	return nil
}

func getJSON(ctx context.Context, client goredis.UniversalClient, key, op string, target any) error {
	data, err := client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return repositories.NewNotFoundError(op)
	}
	if err != nil {
		return wrapError(op, err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return repositories.NewError(op, repositories.ErrorKindUnknown, fmt.Errorf("decode: %w", err))
	}
	return nil
}

func setJSON(ctx context.Context, client goredis.UniversalClient, key, op string, value any, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return repositories.NewError(op, repositories.ErrorKindUnknown, fmt.Errorf("encode: %w", err))
	}
	if err := client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return wrapError(op, err)
	}
	return nil
}

func wrapError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return repositories.NewError(op, repositories.ErrorKindUnavailable, err)
}

var (
	_ repositories.CartRepository            = (*CartRepository)(nil)
	_ repositories.CheckoutSessionRepository = (*CheckoutSessionRepository)(nil)
)

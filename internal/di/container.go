package di

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/hanko-field/storefront/internal/payments"
	"github.com/hanko-field/storefront/internal/platform/auth"
	"github.com/hanko-field/storefront/internal/platform/backend"
	"github.com/hanko-field/storefront/internal/platform/config"
	"github.com/hanko-field/storefront/internal/platform/idempotency"
	"github.com/hanko-field/storefront/internal/platform/jobs"
	"github.com/hanko-field/storefront/internal/platform/observability"
	"github.com/hanko-field/storefront/internal/repositories"
	"github.com/hanko-field/storefront/internal/services"
)

const backendProbeTimeout = 2 * time.Second

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Catalog       services.CatalogService
	Cart          services.CartService
	Sessions      services.SessionService
	Checkout      services.CheckoutService
	Notifications services.NotificationDispatcher
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Backend      *backend.Client
	Idempotency  idempotency.Store
	Customers    *auth.CustomerAuthenticator
	Cookies      *auth.SessionCookies
	Services     Services

	closers []func(context.Context) error
}

// Option customises container construction, mostly for tests.
type Option func(*containerOptions)

type containerOptions struct {
	transport http.RoundTripper
	sender    services.NotificationSender
	clock     func() time.Time
}

// WithBackendTransport replaces the HTTP transport used for backend calls.
func WithBackendTransport(rt http.RoundTripper) Option {
	return func(o *containerOptions) { o.transport = rt }
}

// WithNotificationSender bypasses Pub/Sub and the backend mailer.
func WithNotificationSender(sender services.NotificationSender) Option {
	return func(o *containerOptions) { o.sender = sender }
}

// WithClock overrides the clock handed to services.
func WithClock(clock func() time.Time) Option {
	return func(o *containerOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// NewContainer constructs the runtime dependencies.
func NewContainer(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (_ *Container, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	options := containerOptions{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	c := &Container{Config: cfg}
	defer func() {
		if err != nil {
			_ = c.Close(context.Background())
		}
	}()

	client, err := backend.NewClient(backend.Options{
		BaseURL:            cfg.Backend.BaseURL,
		APIKey:             cfg.Backend.APIKey,
		APIKeyHeader:       cfg.Backend.APIKeyHeader,
		Timeout:            cfg.Backend.Timeout,
		BreakerFailures:    uint32(cfg.Backend.BreakerFailures),
		BreakerOpenTimeout: cfg.Backend.BreakerOpenTimeout,
		Transport:          options.transport,
		Logger:             logger.Named("backend"),
	})
	if err != nil {
		return nil, fmt.Errorf("build backend client: %w", err)
	}
	c.Backend = client

	reg, err := newStoreRegistry(ctx, cfg, repositories.DependencyCheck{
		Name:    "backend",
		Timeout: backendProbeTimeout,
		Check: func(ctx context.Context) error {
			_, err := client.GetShop(ctx)
			return err
		},
	})
	if err != nil {
		return nil, fmt.Errorf("build repositories: %w", err)
	}
	c.Repositories = reg
	c.Idempotency = reg.idempotency

	if err := c.buildAuth(cfg); err != nil {
		return nil, err
	}

	sender := options.sender
	if sender == nil {
		if sender, err = c.notificationSender(ctx, cfg, client); err != nil {
			return nil, err
		}
	}

	c.Services, err = c.buildServices(cfg, reg, client, sender, options.clock, logger)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Close drains the notification queue and releases clients, newest first.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.Services.Notifications != nil {
		if err := c.Services.Notifications.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("notifications: %w", err))
		}
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Repositories != nil {
		if err := c.Repositories.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("repositories: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (c *Container) buildAuth(cfg config.Config) error {
	codec, err := auth.NewSessionCodec(cfg.Session.Secret, cfg.Session.TTL)
	if err != nil {
		return fmt.Errorf("build session codec: %w", err)
	}
	c.Cookies = auth.NewSessionCookies(codec, cfg.Session.CookieName, cfg.Session.CookieSecure, cfg.Session.TTL, nil)

	var authOpts []auth.CustomerAuthOption
	if secret := strings.TrimSpace(cfg.Session.CustomerJWTSecret); secret != "" {
		authOpts = append(authOpts, auth.WithSharedSecret(secret))
	}
	if url := strings.TrimSpace(cfg.Session.CustomerJWKSURL); url != "" {
		authOpts = append(authOpts, auth.WithJWKS(auth.NewJWKSCache(url)))
	}
	if issuer := strings.TrimSpace(cfg.Session.CustomerIssuer); issuer != "" {
		authOpts = append(authOpts, auth.WithIssuer(issuer))
	}
	c.Customers = auth.NewCustomerAuthenticator(authOpts...)
	return nil
}

// notificationSender publishes to Pub/Sub when a topic is configured and otherwise
// mails through the backend.
func (c *Container) notificationSender(ctx context.Context, cfg config.Config, client *backend.Client) (services.NotificationSender, error) {
	topicID := strings.TrimSpace(cfg.Notifications.Topic)
	if topicID == "" {
		return backend.NewEmailSender(client), nil
	}
	ps, err := pubsub.NewClient(ctx, cfg.Notifications.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("build pubsub client: %w", err)
	}
	c.closers = append(c.closers, func(context.Context) error { return ps.Close() })

	publisher, err := jobs.NewNotificationPublisher(ps.Topic(topicID))
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, func(context.Context) error {
		publisher.Stop()
		return nil
	})
	return publisher, nil
}

func (c *Container) buildServices(
	cfg config.Config,
	reg repositories.Registry,
	client *backend.Client,
	sender services.NotificationSender,
	clock func() time.Time,
	logger *zap.Logger,
) (Services, error) {
	var svc Services
	events := func(name string) observability.EventLogger {
		return observability.NewEventLogger(logger.Named(name))
	}

	catalog, err := services.NewCatalogService(services.CatalogServiceDeps{
		Gateway:  client,
		CacheTTL: cfg.Catalog.CacheTTL,
		Clock:    clock,
		Logger:   events("catalog"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}
	svc.Catalog = catalog

	carts, err := services.NewCartService(services.CartServiceDeps{
		Repository:      reg.Carts(),
		Clock:           clock,
		DefaultCurrency: cfg.Catalog.DefaultCurrency,
		Logger:          events("cart"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}
	svc.Cart = carts

	sessions, err := services.NewSessionService(services.SessionServiceDeps{
		Repository: reg.CheckoutSessions(),
		Login:      client,
		Clock:      clock,
		Logger:     events("session"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build session service: %w", err)
	}
	svc.Sessions = sessions

	dispatcher, err := services.NewNotificationDispatcher(services.NotificationDispatcherDeps{
		Sender:      sender,
		Workers:     cfg.Notifications.Workers,
		QueueSize:   cfg.Notifications.QueueSize,
		MaxAttempts: cfg.Notifications.MaxAttempts,
		Backoff:     cfg.Notifications.Backoff,
		MaxBackoff:  cfg.Notifications.MaxBackoff,
		Clock:       clock,
		Logger:      events("notifications"),
		Meter:       otel.Meter("github.com/hanko-field/storefront/internal/services"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build notification dispatcher: %w", err)
	}
	svc.Notifications = dispatcher

	var paymentSessions services.PaymentSessions
	if strings.TrimSpace(cfg.Payments.StripeAPIKey) != "" {
		stripeSessions, err := payments.NewStripeSessions(payments.StripeConfig{
			APIKey:     cfg.Payments.StripeAPIKey,
			SuccessURL: cfg.Payments.SuccessURL,
			CancelURL:  cfg.Payments.CancelURL,
			Logger:     events("payments"),
		})
		if err != nil {
			return Services{}, fmt.Errorf("build stripe sessions: %w", err)
		}
		paymentSessions = stripeSessions
	}

	checkoutLogger := events("checkout")
	checkout, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Carts:          carts,
		Sessions:       sessions,
		Catalog:        catalog,
		Customers:      client,
		Orders:         client,
		Addresses:      services.NewAddressResolver(client, checkoutLogger),
		Notifications:  dispatcher,
		Payments:       paymentSessions,
		Idempotency:    c.Idempotency,
		Summaries:      services.NewOrderSummaryRenderer(language.LatinAmericanSpanish),
		BusinessEmail:  cfg.Notifications.BusinessEmail,
		IdempotencyTTL: cfg.Idempotency.TTL,
		Clock:          clock,
		Logger:         checkoutLogger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build checkout service: %w", err)
	}
	svc.Checkout = checkout
	return svc, nil
}

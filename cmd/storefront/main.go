package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hanko-field/storefront/internal/di"
	"github.com/hanko-field/storefront/internal/handlers"
	"github.com/hanko-field/storefront/internal/platform/config"
	"github.com/hanko-field/storefront/internal/platform/idempotency"
	"github.com/hanko-field/storefront/internal/platform/observability"
	"github.com/hanko-field/storefront/internal/platform/secrets"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("storefront")

	fetcher, err := newSecretFetcher(ctx, logger)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(fetcher),
		config.WithRequiredSecrets("Backend.APIKey", "Session.Secret"),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.Names()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	container, err := di.NewContainer(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to build dependencies", zap.Error(err))
	}

	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	janitorDone := make(chan struct{})
	go func() {
		defer close(janitorDone)
		idempotency.RunJanitor(janitorCtx, container.Idempotency, cfg.Idempotency.CleanupInterval, logger.Named("idempotency"))
	}()

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      newRouter(cfg, container, logger, startedAt),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr), zap.String("cart_store", cfg.Storage.CartStore))
	go func() {
		serverLogger.Info("storefront listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	stopJanitor()
	<-janitorDone
	// Pending confirmation emails get whatever time the HTTP drain left over.
	if err := container.Close(shutdownCtx); err != nil {
		logger.Warn("dependency close error", zap.Error(err))
	}
}

func newRouter(cfg config.Config, c *di.Container, logger *zap.Logger, startedAt time.Time) http.Handler {
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfoFromEnv(startedAt)),
		handlers.WithHealthReporter(c.Repositories.Health()),
	)

	idempotencyMiddleware := idempotency.Middleware(
		c.Idempotency,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
	)

	catalogHandlers := handlers.NewCatalogHandlers(c.Services.Catalog)
	cartHandlers := handlers.NewCartHandlers(c.Services.Cart, c.Services.Catalog)
	checkoutHandlers := handlers.NewCheckoutHandlers(c.Services.Checkout, handlers.WithSubmitMiddleware(idempotencyMiddleware))
	sessionHandlers := handlers.NewSessionHandlers(c.Services.Sessions)

	return handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger.Named("http")),
			observability.TraceMiddleware(),
			observability.RecoveryMiddleware(),
			observability.RequestLoggerMiddleware(),
			handlers.CORSMiddleware(cfg.Server.AllowedOrigins),
		),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithAPIMiddlewares(
			c.Cookies.Middleware(),
			c.Customers.Middleware(),
		),
		handlers.WithCatalogRoutes(catalogHandlers.Routes),
		handlers.WithCartRoutes(cartHandlers.Routes),
		handlers.WithCheckoutRoutes(checkoutHandlers.Routes),
		handlers.WithSessionRoutes(sessionHandlers.Routes),
	)
}

func buildInfoFromEnv(started time.Time) handlers.BuildInfo {
	lookup := func(key, fallback string) string {
		value, err := config.Lookup(key)
		if err != nil || value == "" {
			return fallback
		}
		return value
	}
	return handlers.BuildInfo{
		Version:     lookup("STOREFRONT_BUILD_VERSION", "dev"),
		CommitSHA:   lookup("STOREFRONT_BUILD_COMMIT_SHA", "unknown"),
		Environment: strings.ToLower(lookup("STOREFRONT_ENVIRONMENT", "local")),
		StartedAt:   started,
	}
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		value, _ := config.Lookup(key)
		return value
	}

	opts := []secrets.Option{secrets.WithLogger(logger.Named("secrets"))}
	project := lookup("SECRET_DEFAULT_PROJECT_ID")
	if project == "" {
		project = lookup("GOOGLE_CLOUD_PROJECT")
	}
	if project != "" {
		opts = append(opts, secrets.WithDefaultProject(project))
	}
	if path := lookup("SECRET_FALLBACK_FILE"); path != "" {
		opts = append(opts, secrets.WithFallbackFile(path))
	}
	return secrets.NewFetcher(ctx, opts...)
}

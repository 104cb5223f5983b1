package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultEnvFile            = ".env"
	defaultPort               = "8080"
	defaultReadTimeout        = 15 * time.Second
	defaultWriteTimeout       = 30 * time.Second
	defaultIdleTimeout        = 120 * time.Second
	defaultBackendTimeout     = 10 * time.Second
	defaultAPIKeyHeader       = "X-API-Key"
	defaultBreakerFailures    = 5
	defaultBreakerOpenTimeout = 30 * time.Second
	defaultCartStore          = "memory"
	defaultCatalogCacheTTL    = 5 * time.Minute
	defaultSessionCookie      = "sf_session"
	defaultSessionTTL         = 30 * 24 * time.Hour
	defaultNotifyWorkers      = 2
	defaultNotifyQueueSize    = 256
	defaultNotifyMaxAttempts  = 5
	defaultNotifyBackoff      = 500 * time.Millisecond
	defaultNotifyMaxBackoff   = 30 * time.Second
	defaultIdempotencyHeader  = "Idempotency-Key"
	defaultIdempotencyTTL     = 24 * time.Hour
	defaultIdempotencyCleanup = time.Hour
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server        ServerConfig
	Backend       BackendConfig
	Session       SessionConfig
	Storage       StorageConfig
	Firestore     FirestoreConfig
	Redis         RedisConfig
	Catalog       CatalogConfig
	Notifications NotificationConfig
	Payments      PaymentsConfig
	Idempotency   IdempotencyConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	AllowedOrigins []string
}

// BackendConfig locates the commerce REST backend.
type BackendConfig struct {
	BaseURL            string
	APIKey             string
	APIKeyHeader       string
	Timeout            time.Duration
	BreakerFailures    int
	BreakerOpenTimeout time.Duration
}

// SessionConfig controls storefront session cookies and customer token verification.
type SessionConfig struct {
	Secret            string
	CookieName        string
	CookieSecure      bool
	TTL               time.Duration
	CustomerJWTSecret string
	CustomerJWKSURL   string
	CustomerIssuer    string
}

// StorageConfig selects where carts and checkout sessions live.
type StorageConfig struct {
	CartStore string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// RedisConfig stores Redis connection parameters.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// CatalogConfig controls catalogue lookups.
type CatalogConfig struct {
	CacheTTL        time.Duration
	DefaultCurrency string
}

// NotificationConfig controls the notification dispatcher.
type NotificationConfig struct {
	Topic         string
	ProjectID     string
	BusinessEmail string
	Workers       int
	QueueSize     int
	MaxAttempts   int
	Backoff       time.Duration
	MaxBackoff    time.Duration
}

// PaymentsConfig collects payment provider credentials.
type PaymentsConfig struct {
	StripeAPIKey string
	SuccessURL   string
	CancelURL    string
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Header          string
	TTL             time.Duration
	CleanupInterval time.Duration
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError indicates that one or more required secrets are empty after resolution.
type MissingSecretsError struct {
	names []string
}

// Error implements the error interface. Names are redacted.
func (e *MissingSecretsError) Error() string {
	if e == nil || len(e.names) == 0 {
		return "missing required secrets"
	}
	redacted := make([]string, 0, len(e.names))
	for _, name := range e.names {
		redacted = append(redacted, redactSecretName(name))
	}
	sort.Strings(redacted)
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(redacted, ", "))
}

// Names returns the underlying secret identifiers.
func (e *MissingSecretsError) Names() []string {
	if e == nil {
		return nil
	}
	out := append([]string(nil), e.names...)
	sort.Strings(out)
	return out
}

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile         string
	envMap          map[string]string
	useSystemEnv    bool
	secret          SecretResolver
	requiredSecrets []string
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map that takes precedence over the system environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets the resolver used for secret:// and sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// WithRequiredSecrets marks secret fields as mandatory, e.g. "Backend.APIKey".
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) {
		o.requiredSecrets = append(o.requiredSecrets, names...)
	}
}

// Lookup returns a single raw value using the same precedence as Load. It lets callers
// build dependencies (such as the secret resolver) before the full load.
func Lookup(key string, opts ...Option) (string, error) {
	options := defaultLoaderOptions(opts)
	lookup, err := options.lookupFunc()
	if err != nil {
		return "", err
	}
	value, _ := lookup(key)
	return strings.TrimSpace(value), nil
}

// Load assembles the configuration from defaults, the .env file, the environment and
// Secret Manager references. Precedence: explicit map > environment > .env.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := defaultLoaderOptions(opts)
	lookup, err := options.lookupFunc()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Server: ServerConfig{
			Port:           stringWithDefault(lookup, "STOREFRONT_HTTP_PORT", stringWithDefault(lookup, "PORT", defaultPort)),
			ReadTimeout:    durationWithDefault(lookup, "STOREFRONT_HTTP_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:   durationWithDefault(lookup, "STOREFRONT_HTTP_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:    durationWithDefault(lookup, "STOREFRONT_HTTP_IDLE_TIMEOUT", defaultIdleTimeout),
			AllowedOrigins: csvWithDefault(lookup, "STOREFRONT_ALLOWED_ORIGINS"),
		},
		Backend: BackendConfig{
			BaseURL:            stringWithDefault(lookup, "STOREFRONT_BACKEND_URL", ""),
			APIKey:             stringWithDefault(lookup, "BACKEND_API_KEY", ""),
			APIKeyHeader:       stringWithDefault(lookup, "BACKEND_API_KEY_HEADER", defaultAPIKeyHeader),
			Timeout:            durationWithDefault(lookup, "BACKEND_TIMEOUT", defaultBackendTimeout),
			BreakerFailures:    intWithDefault(lookup, "BACKEND_BREAKER_FAILURES", defaultBreakerFailures),
			BreakerOpenTimeout: durationWithDefault(lookup, "BACKEND_BREAKER_OPEN_TIMEOUT", defaultBreakerOpenTimeout),
		},
		Session: SessionConfig{
			Secret:            stringWithDefault(lookup, "SESSION_SECRET", ""),
			CookieName:        stringWithDefault(lookup, "SESSION_COOKIE_NAME", defaultSessionCookie),
			CookieSecure:      boolWithDefault(lookup, "SESSION_COOKIE_SECURE", true),
			TTL:               durationWithDefault(lookup, "SESSION_TTL", defaultSessionTTL),
			CustomerJWTSecret: stringWithDefault(lookup, "CUSTOMER_JWT_SECRET", ""),
			CustomerJWKSURL:   stringWithDefault(lookup, "CUSTOMER_JWKS_URL", ""),
			CustomerIssuer:    stringWithDefault(lookup, "CUSTOMER_JWT_ISSUER", ""),
		},
		Storage: StorageConfig{
			CartStore: strings.ToLower(stringWithDefault(lookup, "CART_STORE", defaultCartStore)),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "FIRESTORE_PROJECT_ID", stringWithDefault(lookup, "GOOGLE_CLOUD_PROJECT", "")),
			EmulatorHost: stringWithDefault(lookup, "FIRESTORE_EMULATOR_HOST", ""),
		},
		Redis: RedisConfig{
			Addr:      stringWithDefault(lookup, "REDIS_ADDR", ""),
			Password:  stringWithDefault(lookup, "REDIS_PASSWORD", ""),
			DB:        intWithDefault(lookup, "REDIS_DB", 0),
			KeyPrefix: stringWithDefault(lookup, "REDIS_KEY_PREFIX", "storefront"),
		},
		Catalog: CatalogConfig{
			CacheTTL:        durationWithDefault(lookup, "CATALOG_CACHE_TTL", defaultCatalogCacheTTL),
			DefaultCurrency: stringWithDefault(lookup, "DEFAULT_CURRENCY", ""),
		},
		Notifications: NotificationConfig{
			Topic:         stringWithDefault(lookup, "NOTIFICATIONS_TOPIC", ""),
			ProjectID:     stringWithDefault(lookup, "PUBSUB_PROJECT_ID", stringWithDefault(lookup, "GOOGLE_CLOUD_PROJECT", "")),
			BusinessEmail: stringWithDefault(lookup, "BUSINESS_EMAIL", ""),
			Workers:       intWithDefault(lookup, "NOTIFICATION_WORKERS", defaultNotifyWorkers),
			QueueSize:     intWithDefault(lookup, "NOTIFICATION_QUEUE_SIZE", defaultNotifyQueueSize),
			MaxAttempts:   intWithDefault(lookup, "NOTIFICATION_MAX_ATTEMPTS", defaultNotifyMaxAttempts),
			Backoff:       durationWithDefault(lookup, "NOTIFICATION_BACKOFF", defaultNotifyBackoff),
			MaxBackoff:    durationWithDefault(lookup, "NOTIFICATION_MAX_BACKOFF", defaultNotifyMaxBackoff),
		},
		Payments: PaymentsConfig{
			StripeAPIKey: stringWithDefault(lookup, "STRIPE_SECRET_KEY", ""),
			SuccessURL:   stringWithDefault(lookup, "CHECKOUT_SUCCESS_URL", ""),
			CancelURL:    stringWithDefault(lookup, "CHECKOUT_CANCEL_URL", ""),
		},
		Idempotency: IdempotencyConfig{
			Header:          stringWithDefault(lookup, "IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:             durationWithDefault(lookup, "IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			CleanupInterval: durationWithDefault(lookup, "IDEMPOTENCY_CLEANUP_INTERVAL", defaultIdempotencyCleanup),
		},
	}

	secretFields := []struct {
		name  string
		field *string
	}{
		{"Backend.APIKey", &cfg.Backend.APIKey},
		{"Session.Secret", &cfg.Session.Secret},
		{"Session.CustomerJWTSecret", &cfg.Session.CustomerJWTSecret},
		{"Redis.Password", &cfg.Redis.Password},
		{"Payments.StripeAPIKey", &cfg.Payments.StripeAPIKey},
	}
	resolved := make(map[string]string, len(secretFields))
	for _, target := range secretFields {
		value, err := resolveSecret(ctx, *target.field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*target.field = value
		resolved[target.name] = strings.TrimSpace(value)
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	if missing := findMissingSecrets(options.requiredSecrets, resolved); missing != nil {
		return Config{}, missing
	}
	return cfg, nil
}

func defaultLoaderOptions(opts []Option) loaderOptions {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	return options
}

func (o loaderOptions) lookupFunc() (func(string) (string, bool), error) {
	dotEnvValues, err := loadDotEnv(o.envFile)
	if err != nil {
		return nil, err
	}
	return func(key string) (string, bool) {
		if o.envMap != nil {
			if value, ok := o.envMap[key]; ok {
				return value, true
			}
		}
		if o.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if value, ok := dotEnvValues[key]; ok {
			return value, true
		}
		return "", false
	}, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if value == "" || !isSecretReference(value) {
		return value, nil
	}
	normalized := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: normalized, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, normalized)
	if err != nil {
		return "", &SecretError{Ref: normalized, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if cfg.Backend.Timeout <= 0 {
		missing = append(missing, "Backend.Timeout")
	}
	if cfg.Backend.BreakerFailures <= 0 {
		missing = append(missing, "Backend.BreakerFailures")
	}
	switch cfg.Storage.CartStore {
	case "memory":
	case "firestore":
		if cfg.Firestore.ProjectID == "" {
			missing = append(missing, "Firestore.ProjectID")
		}
	case "redis":
		if cfg.Redis.Addr == "" {
			missing = append(missing, "Redis.Addr")
		}
	default:
		missing = append(missing, "Storage.CartStore")
	}
	if cfg.Notifications.Topic != "" && cfg.Notifications.ProjectID == "" {
		missing = append(missing, "Notifications.ProjectID")
	}
	if cfg.Notifications.Workers <= 0 {
		missing = append(missing, "Notifications.Workers")
	}
	if cfg.Notifications.MaxAttempts <= 0 {
		missing = append(missing, "Notifications.MaxAttempts")
	}
	if strings.TrimSpace(cfg.Idempotency.Header) == "" {
		missing = append(missing, "Idempotency.Header")
	}
	if cfg.Idempotency.TTL <= 0 {
		missing = append(missing, "Idempotency.TTL")
	}
	if cfg.Session.TTL < time.Second {
		missing = append(missing, "Session.TTL")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func findMissingSecrets(required []string, resolved map[string]string) *MissingSecretsError {
	var names []string
	seen := make(map[string]struct{})
	for _, name := range required {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		if resolved[trimmed] == "" {
			names = append(names, trimmed)
		}
	}
	if len(names) == 0 {
		return nil
	}
	return &MissingSecretsError{names: names}
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "sm://") {
		return "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	return trimmed
}

func redactSecretName(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:8])
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}
	values, err := godotenv.Read(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}

func csvWithDefault(lookup func(string) (string, bool), key string) []string {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

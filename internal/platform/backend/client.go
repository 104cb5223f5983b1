// Package backend is the REST client for the commerce backend that owns products,
// customers and orders.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/hanko-field/storefront/internal/platform/auth"
	"github.com/hanko-field/storefront/internal/platform/requestctx"
)

const (
	defaultTimeout         = 10 * time.Second
	defaultAPIKeyHeader    = "X-API-Key"
	defaultBreakerFailures = 5
	defaultBreakerOpen     = 30 * time.Second
	maxErrorBody           = 64 << 10
	idempotencyHeader      = "Idempotency-Key"
)

// Options configures Client.
type Options struct {
	BaseURL            string
	APIKey             string
	APIKeyHeader       string
	Timeout            time.Duration
	BreakerFailures    uint32
	BreakerOpenTimeout time.Duration
	Transport          http.RoundTripper
	Logger             *zap.Logger
}

// Client issues typed calls against the backend. Safe for concurrent use.
type Client struct {
	base    *url.URL
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[response]
	logger  *zap.Logger
}

type response struct {
	status int
	body   []byte
}

// NewClient validates opts and builds a client.
func NewClient(opts Options) (*Client, error) {
	raw := strings.TrimSpace(opts.BaseURL)
	if raw == "" {
		return nil, errors.New("backend: base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("backend: parse base URL: %w", err)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.APIKeyHeader == "" {
		opts.APIKeyHeader = defaultAPIKeyHeader
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = defaultBreakerFailures
	}
	if opts.BreakerOpenTimeout <= 0 {
		opts.BreakerOpenTimeout = defaultBreakerOpen
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	next := opts.Transport
	if next == nil {
		next = http.DefaultTransport
	}

	failures := opts.BreakerFailures
	logger := opts.Logger
	breaker := gobreaker.NewCircuitBreaker[response](gobreaker.Settings{
		Name:    "commerce-backend",
		Timeout: opts.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &Client{
		base: base,
		http: &http.Client{
			Timeout:   opts.Timeout,
			Transport: &authTransport{next: next, apiKey: strings.TrimSpace(opts.APIKey), apiKeyHeader: opts.APIKeyHeader},
		},
		breaker: breaker,
		logger:  logger,
	}, nil
}

// authTransport attaches exactly one credential: the customer's bearer token when the
// request context carries one, otherwise the static API key.
type authTransport struct {
	next         http.RoundTripper
	apiKey       string
	apiKeyHeader string
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	if identity, ok := auth.IdentityFromContext(req.Context()); ok && identity != nil && identity.Token != "" {
		req.Header.Set("Authorization", "Bearer "+identity.Token)
		req.Header.Del(t.apiKeyHeader)
	} else if t.apiKey != "" {
		req.Header.Set(t.apiKeyHeader, t.apiKey)
		req.Header.Del("Authorization")
	}
	return t.next.RoundTrip(req)
}

type requestOption func(*http.Request)

func withIdempotencyKey(key string) requestOption {
	return func(r *http.Request) {
		if key = strings.TrimSpace(key); key != "" {
			r.Header.Set(idempotencyHeader, key)
		}
	}
}

func withQuery(values url.Values) requestOption {
	return func(r *http.Request) {
		if len(values) > 0 {
			r.URL.RawQuery = values.Encode()
		}
	}
}

// call performs one request through the breaker and decodes a 2xx body into out.
func (c *Client) call(ctx context.Context, op, method, path string, in, out any, opts ...requestOption) error {
	var payload []byte
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("backend %s: encode request: %w", op, err)
		}
		payload = encoded
	}

	endpoint := c.base.JoinPath(path)
	started := time.Now()
	res, err := c.breaker.Execute(func() (response, error) {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
		if err != nil {
			return response{}, err
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		for _, opt := range opts {
			opt(req)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return response{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return response{}, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
		}
		res := response{status: resp.StatusCode, body: data}
		if resp.StatusCode >= http.StatusInternalServerError {
			return res, decodeError(op, res)
		}
		return res, nil
	})

	requestctx.Logger(ctx).Debug("backend call",
		zap.String("op", op),
		zap.String("method", method),
		zap.String("path", endpoint.Path),
		zap.Int("status", res.status),
		zap.Duration("latency", time.Since(started)),
		zap.Error(err))

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
		}
		return err
	}
	if res.status >= http.StatusBadRequest {
		return decodeError(op, res)
	}
	if out == nil || len(bytes.TrimSpace(res.body)) == 0 {
		return nil
	}
	if err := decodeEnvelope(res.body, out); err != nil {
		return fmt.Errorf("backend %s: decode response: %w", op, err)
	}
	return nil
}

func decodeError(op string, res response) error {
	be := &Error{Status: res.status, Op: op}
	body := res.body
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	var payload struct {
		Code    string `json:"code"`
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil {
		be.Code = payload.Code
		if be.Code == "" {
			be.Code = payload.Error
		}
		be.Message = payload.Message
	} else {
		be.Message = strings.TrimSpace(string(body))
	}
	return be
}

// decodeEnvelope accepts both bare payloads and {"data": ...} envelopes.
func decodeEnvelope(body []byte, out any) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var envelope map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &envelope); err == nil {
			if data, ok := envelope["data"]; ok {
				return json.Unmarshal(data, out)
			}
		}
	}
	return json.Unmarshal(trimmed, out)
}

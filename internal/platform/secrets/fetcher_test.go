package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestResolveCachesRemoteSecret(t *testing.T) {
	ctx := context.Background()
	client := newFakeSecretClient()
	resource := "projects/shop/secrets/backend_api_key/versions/latest"
	client.values[resource] = "remote-secret"

	fetcher, err := NewFetcher(ctx, withClient(client), WithDefaultProject("shop"), WithLogger(zap.NewNop()), WithFallbackFile(""))
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	defer fetcher.Close()

	for i := 0; i < 2; i++ {
		got, err := fetcher.ResolveSecret(ctx, "secret://backend_api_key")
		if err != nil {
			t.Fatalf("Resolve returned error: %v", err)
		}
		if got != "remote-secret" {
			t.Fatalf("expected remote-secret, got %s", got)
		}
	}
	if calls := client.callCount(resource); calls != 1 {
		t.Fatalf("expected remote fetch once, got %d", calls)
	}
}

func TestResolveRecordsMetrics(t *testing.T) {
	ctx := context.Background()
	client := newFakeSecretClient()
	client.values["projects/shop/secrets/session/versions/latest"] = "remote"
	meter := &recordingMeter{}

	fetcher, err := NewFetcher(ctx, withClient(client), WithDefaultProject("shop"), WithFallbackFile(""), WithMeter(meter))
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := fetcher.Resolve(ctx, "secret://session"); err != nil {
			t.Fatalf("Resolve returned error: %v", err)
		}
	}
	if meter.latency.count() != 1 {
		t.Fatalf("expected one latency sample, got %d", meter.latency.count())
	}
	if meter.hits.count() != 2 {
		t.Fatalf("expected two cache hits, got %d", meter.hits.count())
	}
}

func TestResolveHonoursVersionAndProjectQuery(t *testing.T) {
	client := newFakeSecretClient()
	client.values["projects/other/secrets/session/versions/3"] = "v3"
	fetcher, _ := NewFetcher(context.Background(), withClient(client), WithDefaultProject("shop"), WithFallbackFile(""))

	got, err := fetcher.Resolve(context.Background(), "secret://session?version=3&project=other")
	if err != nil || got != "v3" {
		t.Fatalf("expected pinned version, got %q err=%v", got, err)
	}
}

func TestResolveFallsBackWhenSecretManagerUnavailable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".secrets.local")
	if err := os.WriteFile(path, []byte("stripe_key=sk_test_local\nsession=local-session\n"), 0o600); err != nil {
		t.Fatalf("write fallback: %v", err)
	}
	client := newFakeSecretClient()
	client.errors["projects/shop/secrets/stripe_key/versions/latest"] = status.Error(codes.Unavailable, "offline")
	client.errors["projects/shop/secrets/session/versions/2"] = status.Error(codes.PermissionDenied, "denied")

	fetcher, _ := NewFetcher(context.Background(), withClient(client), WithDefaultProject("shop"), WithFallbackFile(path))

	got, err := fetcher.Resolve(context.Background(), "secret://stripe_key")
	if err != nil || got != "sk_test_local" {
		t.Fatalf("expected fallback value, got %q err=%v", got, err)
	}
	got, err = fetcher.Resolve(context.Background(), "secret://session?version=2")
	if err != nil || got != "local-session" {
		t.Fatalf("expected second fallback value, got %q err=%v", got, err)
	}
}

func TestResolveDoesNotFallbackOnNotFound(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".secrets.local")
	_ = os.WriteFile(path, []byte("missing=local\n"), 0o600)

	fetcher, _ := NewFetcher(context.Background(), withClient(newFakeSecretClient()), WithDefaultProject("shop"), WithFallbackFile(path))
	_, err := fetcher.Resolve(context.Background(), "secret://missing")
	if err == nil || status.Code(errors.Unwrap(err)) != codes.NotFound {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestNewFetcherWithoutCredentialsUsesFallback(t *testing.T) {
	original := secretManagerClientFactory
	secretManagerClientFactory = func(context.Context, ...option.ClientOption) (secretManagerClient, error) {
		return nil, errors.New("no credentials")
	}
	t.Cleanup(func() { secretManagerClientFactory = original })

	path := filepath.Join(t.TempDir(), ".secrets.local")
	_ = os.WriteFile(path, []byte("backend_api_key=plain\n"), 0o600)

	fetcher, err := NewFetcher(context.Background(), WithDefaultProject("shop"), WithFallbackFile(path))
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	got, err := fetcher.Resolve(context.Background(), "secret://backend_api_key")
	if err != nil || got != "plain" {
		t.Fatalf("expected fallback value, got %q err=%v", got, err)
	}
}

func TestParseReferenceRejectsOtherSchemes(t *testing.T) {
	if _, err := parseReference("https://example.com"); err == nil || !strings.Contains(err.Error(), "unsupported scheme") {
		t.Fatalf("expected scheme error, got %v", err)
	}
	if _, err := parseReference("  "); err == nil {
		t.Fatalf("expected empty reference error")
	}
}

type fakeSecretClient struct {
	mu      sync.Mutex
	values  map[string]string
	errors  map[string]error
	counter map[string]int
}

func newFakeSecretClient() *fakeSecretClient {
	return &fakeSecretClient{
		values:  make(map[string]string),
		errors:  make(map[string]error),
		counter: make(map[string]int),
	}
}

func (f *fakeSecretClient) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := req.GetName()
	f.counter[name]++
	if err, ok := f.errors[name]; ok {
		return nil, err
	}
	if value, ok := f.values[name]; ok {
		return &secretmanagerpb.AccessSecretVersionResponse{
			Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)},
		}, nil
	}
	return nil, status.Error(codes.NotFound, "not found")
}

func (f *fakeSecretClient) Close() error { return nil }

func (f *fakeSecretClient) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counter[name]
}

type recordingMeter struct {
	noop.Meter
	latency recordingHistogram
	hits    recordingCounter
}

func (m *recordingMeter) Float64Histogram(string, ...metric.Float64HistogramOption) (metric.Float64Histogram, error) {
	return &m.latency, nil
}

func (m *recordingMeter) Int64Counter(string, ...metric.Int64CounterOption) (metric.Int64Counter, error) {
	return &m.hits, nil
}

type recordingHistogram struct {
	noop.Float64Histogram
	mu      sync.Mutex
	samples []float64
}

func (h *recordingHistogram) Record(_ context.Context, v float64, _ ...metric.RecordOption) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.samples = append(h.samples, v)
}

func (h *recordingHistogram) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.samples)
}

type recordingCounter struct {
	noop.Int64Counter
	mu    sync.Mutex
	total int64
}

func (c *recordingCounter) Add(_ context.Context, v int64, _ ...metric.AddOption) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.total += v
}

func (c *recordingCounter) count() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

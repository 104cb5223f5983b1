package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hanko-field/storefront/internal/platform/requestctx"
)

func TestEventLoggerPicksLevelFromFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := NewEventLogger(zap.New(core))

	log(context.Background(), "cart.item_added", map[string]any{"variantId": "v1", "quantity": 2})
	log(context.Background(), "checkout.email_failed", map[string]any{"error": errors.New("smtp down")})

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Level != zapcore.InfoLevel || entries[0].ContextMap()["variantId"] != "v1" {
		t.Fatalf("unexpected first entry %+v", entries[0])
	}
	if entries[1].Level != zapcore.ErrorLevel || entries[1].ContextMap()["error"] != "smtp down" {
		t.Fatalf("unexpected second entry %+v", entries[1])
	}
}

func TestEventLoggerPrefersRequestLogger(t *testing.T) {
	baseCore, baseLogs := observer.New(zapcore.InfoLevel)
	reqCore, reqLogs := observer.New(zapcore.InfoLevel)
	log := NewEventLogger(zap.New(baseCore))

	ctx := requestctx.WithLogger(context.Background(), zap.New(reqCore))
	log(ctx, "checkout.started", nil)

	if baseLogs.Len() != 0 || reqLogs.Len() != 1 {
		t.Fatalf("expected request logger to receive the event (base=%d req=%d)", baseLogs.Len(), reqLogs.Len())
	}
}

func TestRecoveryMiddlewareWritesJSON500(t *testing.T) {
	handler := RecoveryMiddleware()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if rec.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("expected json content type")
	}
}

func TestRequestLoggerLogsCompletion(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	handler := InjectLoggerMiddleware(zap.New(core))(RequestLoggerMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/checkout/next", nil))

	entries := logs.FilterMessage("request completed").All()
	if len(entries) != 1 || entries[0].Level != zapcore.WarnLevel {
		t.Fatalf("expected one warn completion entry, got %+v", entries)
	}
	if entries[0].ContextMap()["status"] != int64(http.StatusConflict) {
		t.Fatalf("unexpected status field %v", entries[0].ContextMap()["status"])
	}
}

func TestTraceMiddlewareStoresTraceID(t *testing.T) {
	var traceID string
	handler := TraceMiddleware()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		traceID = requestctx.TraceID(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if traceID != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Fatalf("expected incoming trace id to be continued, got %q", traceID)
	}
}

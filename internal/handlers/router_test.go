package handlers

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/hanko-field/storefront/internal/domain"
)

func TestNewRouter_DefaultMounts(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	healthHandlers := NewHealthHandlers(
		WithHealthReporter(stubHealthReporter{report: domain.HealthReport{
			Status: domain.HealthStatusOK,
			Checks: map[string]domain.HealthCheck{"backend": {Status: domain.HealthStatusOK}},
		}}),
		WithHealthClock(func() time.Time { return now }),
	)

	router := NewRouter(WithHealthHandlers(healthHandlers))

	t.Run("healthz", func(t *testing.T) {
		rr := serve(t, router, http.MethodGet, "/healthz", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
			t.Fatalf("expected content-type application/json, got %s", ct)
		}
	})

	t.Run("api healthz", func(t *testing.T) {
		if rr := serve(t, router, http.MethodGet, "/api/v1/healthz", ""); rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
	})

	t.Run("readyz", func(t *testing.T) {
		if rr := serve(t, router, http.MethodGet, "/readyz", ""); rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
	})

	t.Run("default not implemented group", func(t *testing.T) {
		rr := serve(t, router, http.MethodGet, "/api/v1/checkout/summary", "")
		if rr.Code != http.StatusNotImplemented {
			t.Fatalf("expected status 501, got %d", rr.Code)
		}
		var body map[string]any
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if body["error"] != "not_implemented" {
			t.Fatalf("expected not_implemented, got %v", body["error"])
		}
	})

	t.Run("unknown route", func(t *testing.T) {
		rr := serve(t, router, http.MethodGet, "/nope", "")
		if rr.Code != http.StatusNotFound {
			t.Fatalf("expected status 404, got %d", rr.Code)
		}
	})
}

func TestNewRouter_APIMiddlewaresSkipHealth(t *testing.T) {
	var hits []string
	tracking := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits = append(hits, r.URL.Path)
			next.ServeHTTP(w, r)
		})
	}
	router := NewRouter(
		WithAPIMiddlewares(tracking),
		WithCartRoutes(func(r chi.Router) {
			r.Get("/", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) })
		}),
	)

	if rr := serve(t, router, http.MethodGet, "/healthz", ""); rr.Code != http.StatusOK {
		t.Fatalf("expected healthz 200, got %d", rr.Code)
	}
	if rr := serve(t, router, http.MethodGet, "/api/v1/cart", ""); rr.Code != http.StatusTeapot {
		t.Fatalf("expected custom cart handler, got %d", rr.Code)
	}
	if len(hits) != 1 || hits[0] != "/api/v1/cart" {
		t.Fatalf("expected api middleware on cart only, got %v", hits)
	}
}

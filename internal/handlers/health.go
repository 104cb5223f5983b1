package handlers

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/platform/requestctx"
	"go.uber.org/zap"
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// HealthReporter probes downstream dependencies for readiness.
type HealthReporter interface {
	Collect(ctx context.Context) (domain.HealthReport, error)
}

// HealthHandlers serves liveness and readiness endpoints.
type HealthHandlers struct {
	build    BuildInfo
	reporter HealthReporter
	clock    func() time.Time
}

// HealthOption customises health handlers.
type HealthOption func(*HealthHandlers)

// WithHealthBuildInfo sets the build metadata echoed by /healthz.
func WithHealthBuildInfo(info BuildInfo) HealthOption {
	return func(h *HealthHandlers) {
		h.build = info
	}
}

// WithHealthReporter sets the dependency prober used by /readyz.
func WithHealthReporter(reporter HealthReporter) HealthOption {
	return func(h *HealthHandlers) {
		h.reporter = reporter
	}
}

// WithHealthClock overrides the clock.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// NewHealthHandlers constructs health handlers.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.build.StartedAt.IsZero() {
		h.build.StartedAt = h.clock()
	}
	return h
}

type healthzResponse struct {
	Status      domain.HealthStatus `json:"status"`
	Version     string              `json:"version,omitempty"`
	CommitSHA   string              `json:"commitSha,omitempty"`
	Environment string              `json:"environment,omitempty"`
	Uptime      string              `json:"uptime"`
	Timestamp   string              `json:"timestamp"`
}

type readyzResponse struct {
	Status      domain.HealthStatus           `json:"status"`
	Checks      map[string]domain.HealthCheck `json:"checks,omitempty"`
	Details     []string                      `json:"details,omitempty"`
	GeneratedAt string                        `json:"generatedAt"`
}

// Healthz reports liveness without touching dependencies.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.clock().UTC()
	writeJSONResponse(w, http.StatusOK, healthzResponse{
		Status:      domain.HealthStatusOK,
		Version:     strings.TrimSpace(h.build.Version),
		CommitSHA:   strings.TrimSpace(h.build.CommitSHA),
		Environment: strings.TrimSpace(h.build.Environment),
		Uptime:      now.Sub(h.build.StartedAt).Round(time.Second).String(),
		Timestamp:   now.Format(time.RFC3339),
	})
}

// Readyz probes dependencies. Anything but ok answers 503 so the load balancer drains the instance.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	now := h.clock().UTC()
	if h.reporter == nil {
		writeJSONResponse(w, http.StatusOK, readyzResponse{Status: domain.HealthStatusOK, GeneratedAt: now.Format(time.RFC3339)})
		return
	}

	report, err := h.reporter.Collect(r.Context())
	if err != nil {
		requestctx.Logger(r.Context()).Error("readiness probe failed", zap.Error(err))
		writeJSONResponse(w, http.StatusServiceUnavailable, readyzResponse{
			Status:      domain.HealthStatusError,
			Details:     []string{err.Error()},
			GeneratedAt: now.Format(time.RFC3339),
		})
		return
	}

	resp := readyzResponse{
		Status:      report.Status,
		Checks:      report.Checks,
		GeneratedAt: now.Format(time.RFC3339),
	}
	names := make([]string, 0, len(report.Checks))
	for name := range report.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		check := report.Checks[name]
		if check.Status != domain.HealthStatusOK && check.Detail != "" {
			resp.Details = append(resp.Details, name+": "+check.Detail)
		}
	}

	status := http.StatusOK
	if report.Status != domain.HealthStatusOK {
		status = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, status, resp)
}

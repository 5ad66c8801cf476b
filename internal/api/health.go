package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

const defaultHealthCheckTimeout = 5 * time.Second

// Check is one named dependency probe.
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	checks  []Check
	timeout time.Duration
}

// NewHealthHandler creates a health handler over checks.
func NewHealthHandler(timeout time.Duration, checks ...Check) *HealthHandler {
	if timeout <= 0 {
		timeout = defaultHealthCheckTimeout
	}
	return &HealthHandler{checks: checks, timeout: timeout}
}

// Run executes every check and reports per-check results.
func (h *HealthHandler) Run(ctx context.Context) (map[string]string, bool) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	results := map[string]string{"api": "ok"}
	healthy := true
	for _, c := range h.checks {
		if err := c.Fn(ctx); err != nil {
			slog.Error("Health check failed", "check", c.Name, "error", err)
			results[c.Name] = "unreachable"
			healthy = false
			continue
		}
		results[c.Name] = "ok"
	}
	return results, healthy
}

// Health returns the health status of the API and its dependencies.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	checks, healthy := h.Run(r.Context())

	status := map[string]interface{}{
		"status": "healthy",
		"checks": checks,
	}
	statusCode := http.StatusOK
	if !healthy {
		status["status"] = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	JSON(w, statusCode, status)
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/api/health", h.Health)
}

package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"
)

// Pinger is a dependency the health check probes.
type Pinger func(ctx context.Context) error

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	checks  map[string]Pinger
	started time.Time
	clock   clockwork.Clock
	logger  *slog.Logger
}

// NewHealthHandler creates a HealthHandler. checks maps a dependency name
// (postgres, redis, s3) to its probe and may be empty.
func NewHealthHandler(checks map[string]Pinger, clock clockwork.Clock, logger *slog.Logger) *HealthHandler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &HealthHandler{
		checks:  checks,
		started: clock.Now(),
		clock:   clock,
		logger:  logHandler(logger, "health"),
	}
}

// HealthCheck probes every dependency and reports "ok", or "degraded" with
// a 503 when any probe fails.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status, code := "ok", http.StatusOK
	deps := make(map[string]string, len(names))
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			h.logger.WarnContext(ctx, "dependency unhealthy",
				slog.String("dependency", name),
				slog.String("error", err.Error()),
			)
			deps[name] = err.Error()
			status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}

	now := h.clock.Now()
	writeJSON(w, code, map[string]any{
		"status":         status,
		"dependencies":   deps,
		"uptime_seconds": int64(now.Sub(h.started).Seconds()),
		"timestamp":      now.UTC().Format(time.RFC3339),
	})
}

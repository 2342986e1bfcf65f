package api

import (
	"net/http"
	"runtime"
	"time"
)

// HealthHandler handles health check requests.
type HealthHandler struct {
	version   string
	startedAt time.Time
	responder
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(version string, rsp responder) *HealthHandler {
	return &HealthHandler{version: version, startedAt: time.Now(), responder: rsp}
}

// HandleHealth handles GET /api/v1/health.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.ok(w, r, http.StatusOK, map[string]any{
		"status":    "UP",
		"service":   ServiceName,
		"version":   h.version,
		"timestamp": time.Now().UTC(),
	}, "service is healthy")
}

// HandleInfo handles GET /api/v1/health/info.
func (h *HealthHandler) HandleInfo(w http.ResponseWriter, r *http.Request) {
	h.ok(w, r, http.StatusOK, map[string]any{
		"name":        ServiceName,
		"description": "Grade management and aggregation for the school platform",
		"version":     h.version,
		"goVersion":   runtime.Version(),
		"goroutines":  runtime.NumGoroutine(),
		"uptime":      time.Since(h.startedAt).Round(time.Second).String(),
		"features": []string{
			"grade management",
			"class summaries",
			"postgres and sqlite storage",
			"redis cache",
			"kafka events",
			"prometheus metrics",
			"xlsx export",
		},
	}, "service information")
}

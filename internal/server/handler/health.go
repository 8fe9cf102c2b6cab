package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// HealthHandler answers liveness checks. It reports process uptime so a
// restart loop shows up in monitoring even when every check passes.
type HealthHandler struct {
	started time.Time
	logger  *slog.Logger
}

// NewHealthHandler creates the handler; uptime counts from this call.
func NewHealthHandler(logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		started: time.Now().UTC(),
		logger:  logger,
	}
}

// HealthCheck handles GET /api/health.
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"uptime":    time.Since(h.started).Round(time.Second).String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

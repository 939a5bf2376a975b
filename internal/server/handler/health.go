package handler

import (
	"net/http"
	"time"

	"dexradar/internal/feed"
	"dexradar/internal/orchestrator"
	"dexradar/internal/registry"
)

// HealthHandler serves the readiness endpoint. The service is "ready" once
// every pool source has completed at least one successful fetch and the
// reference feed is active or recently active; before that it reports
// "degraded" with a 503 so load balancers hold traffic back.
type HealthHandler struct {
	orch    *orchestrator.Orchestrator
	feed    *feed.UpbitFeed
	reg     *registry.Registry
	started time.Time
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(orch *orchestrator.Orchestrator, f *feed.UpbitFeed, reg *registry.Registry, started time.Time) *HealthHandler {
	return &HealthHandler{orch: orch, feed: f, reg: reg, started: started}
}

// HealthCheck reports readiness plus per-source and feed detail.
// GET /health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ready := h.orch.Ready()
	status := "ready"
	code := http.StatusOK
	if !ready {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	state, attempts := h.feed.State()
	writeJSON(w, code, map[string]any{
		"status":         status,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
		"pools_tracked":  h.reg.Len(),
		"feed": map[string]any{
			"state":              state.String(),
			"reconnect_attempts": attempts,
		},
		"sources": h.orch.Status(),
	})
}

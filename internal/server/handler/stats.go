package handler

import (
	"net/http"
	"time"

	"dexradar/internal/broadcast"
	"dexradar/internal/detector"
	"dexradar/internal/feed"
	"dexradar/internal/orchestrator"
	"dexradar/internal/registry"
)

// StatsHandler serves the aggregate runtime statistics endpoint.
type StatsHandler struct {
	orch       *orchestrator.Orchestrator
	reg        *registry.Registry
	det        *detector.Detector
	feed       *feed.UpbitFeed
	bc         *broadcast.Broadcaster
	feedMaxAge time.Duration
	started    time.Time
}

// NewStatsHandler creates a StatsHandler.
func NewStatsHandler(
	orch *orchestrator.Orchestrator,
	reg *registry.Registry,
	det *detector.Detector,
	f *feed.UpbitFeed,
	bc *broadcast.Broadcaster,
	feedMaxAge time.Duration,
	started time.Time,
) *StatsHandler {
	return &StatsHandler{
		orch:       orch,
		reg:        reg,
		det:        det,
		feed:       f,
		bc:         bc,
		feedMaxAge: feedMaxAge,
		started:    started,
	}
}

// Stats reports pipeline-wide counters in one JSON document.
// GET /stats
func (h *StatsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	admitted := len(h.reg.Snapshot(registry.AdmittedOnly, ""))
	state, attempts := h.feed.State()

	writeJSON(w, http.StatusOK, map[string]any{
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
		"pools": map[string]any{
			"total":    h.reg.Len(),
			"admitted": admitted,
		},
		"sources": h.orch.Status(),
		"feed": map[string]any{
			"state":              state.String(),
			"reconnect_attempts": attempts,
			"fresh_symbols":      len(h.feed.FreshPrices(h.feedMaxAge)),
		},
		"recent_opportunities": len(h.det.Recent()),
		"ws_subscribers":       h.bc.SubscriberCount(),
	})
}

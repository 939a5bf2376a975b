package handler

import (
	"net/http"
	"time"

	"dexradar/internal/detector"
	"dexradar/internal/feed"
	"dexradar/internal/registry"
)

// ArbHandler serves arbitrage opportunity endpoints.
type ArbHandler struct {
	det        *detector.Detector
	reg        *registry.Registry
	feed       *feed.UpbitFeed
	feedMaxAge time.Duration
	regMaxAge  time.Duration
}

// NewArbHandler creates an ArbHandler.
func NewArbHandler(det *detector.Detector, reg *registry.Registry, f *feed.UpbitFeed, feedMaxAge, regMaxAge time.Duration) *ArbHandler {
	return &ArbHandler{det: det, reg: reg, feed: f, feedMaxAge: feedMaxAge, regMaxAge: regMaxAge}
}

// List computes opportunities over the current admitted snapshot. With
// ?recent=true it returns the bounded history of past detections instead.
// GET /arbitrage
func (h *ArbHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 100, 500)

	if r.URL.Query().Get("recent") == "true" {
		opps := h.det.Recent()
		if len(opps) > limit {
			opps = opps[len(opps)-limit:]
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"count":         len(opps),
			"opportunities": opps,
		})
		return
	}

	now := time.Now()
	// Staleness flags lag behind the last cycle tick; recompute them so a
	// pool aged past max_age since then never enters a spread computation.
	h.reg.MarkStale(now, h.regMaxAge)
	pools := h.reg.Snapshot(registry.AdmittedOnly, "")
	refs := h.feed.FreshPrices(h.feedMaxAge)
	opps := h.det.Detect(pools, refs, now)
	if len(opps) > limit {
		opps = opps[:limit]
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"computed_at":   now.UTC().Format(time.RFC3339),
		"count":         len(opps),
		"opportunities": opps,
	})
}

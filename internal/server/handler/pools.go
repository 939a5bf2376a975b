package handler

import (
	"net/http"
	"strings"
	"time"

	"dexradar/internal/orchestrator"
	"dexradar/internal/registry"
)

// PoolsHandler serves pool snapshot endpoints.
type PoolsHandler struct {
	orch      *orchestrator.Orchestrator
	reg       *registry.Registry
	regMaxAge time.Duration
}

// NewPoolsHandler creates a PoolsHandler.
func NewPoolsHandler(orch *orchestrator.Orchestrator, reg *registry.Registry, regMaxAge time.Duration) *PoolsHandler {
	return &PoolsHandler{orch: orch, reg: reg, regMaxAge: regMaxAge}
}

// Refresh forces one fetch round across every source and returns the
// resulting snapshot. Sources that fail keep their cached pools in place, so
// this always answers with the best known state.
// GET /pools
func (h *PoolsHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	pools := h.orch.TriggerFullRefresh(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"refreshed_at": time.Now().UTC().Format(time.RFC3339),
		"count":        len(pools),
		"pools":        pools,
	})
}

// ListCached returns the in-memory snapshot without touching any source.
// Query parameters: view=all|admitted (default all), symbol=<token symbol>.
// GET /pools/cached
func (h *PoolsHandler) ListCached(w http.ResponseWriter, r *http.Request) {
	view := registry.All
	switch strings.ToLower(r.URL.Query().Get("view")) {
	case "", "all":
	case "admitted":
		view = registry.AdmittedOnly
	default:
		writeError(w, http.StatusBadRequest, "view must be all or admitted")
		return
	}

	symbol := strings.ToUpper(r.URL.Query().Get("symbol"))
	h.reg.MarkStale(time.Now(), h.regMaxAge)
	pools := h.reg.Snapshot(view, symbol)
	writeJSON(w, http.StatusOK, map[string]any{
		"count": len(pools),
		"pools": pools,
	})
}

package api

import (
	"net/http"
)

// StatsProvider defines the interface for getting service statistics.
type StatsProvider interface {
	GetStats() map[string]any
}

// StatsHandler handles stats requests.
type StatsHandler struct {
	statsProvider StatsProvider
	responder
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(statsProvider StatsProvider, rsp responder) *StatsHandler {
	return &StatsHandler{statsProvider: statsProvider, responder: rsp}
}

// HandleStats handles GET /api/v1/stats.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	var stats map[string]any
	if h.statsProvider != nil {
		stats = h.statsProvider.GetStats()
	}
	if stats == nil {
		stats = map[string]any{}
	}
	h.ok(w, r, http.StatusOK, stats, "")
}

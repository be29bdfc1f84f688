package api

import (
	"net/http"

	"cicerone/pkg/tour"
	"cicerone/pkg/tracker"
)

// StatsHandler serves usage statistics.
type StatsHandler struct {
	tracker  *tracker.Tracker
	registry *tour.Registry
}

// NewStatsHandler creates a StatsHandler.
func NewStatsHandler(t *tracker.Tracker, registry *tour.Registry) *StatsHandler {
	return &StatsHandler{tracker: t, registry: registry}
}

// ProviderStatsDTO is the JSON shape for one provider's counters.
type ProviderStatsDTO struct {
	CacheHits    int64   `json:"cache_hits"`
	CacheMisses  int64   `json:"cache_misses"`
	APISuccess   int64   `json:"api_success"`
	APIFailures  int64   `json:"api_failures"`
	StaleDropped int64   `json:"stale_dropped"`
	HitRate      float64 `json:"hit_rate"`
}

type statsResponse struct {
	Providers      map[string]ProviderStatsDTO `json:"providers"`
	ActiveSessions int                         `json:"active_sessions"`
}

func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	snapshot := h.tracker.Snapshot()

	resp := statsResponse{
		Providers:      make(map[string]ProviderStatsDTO, len(snapshot)),
		ActiveSessions: h.registry.Len(),
	}
	for provider, s := range snapshot {
		dto := ProviderStatsDTO{
			CacheHits:    s.CacheHits,
			CacheMisses:  s.CacheMisses,
			APISuccess:   s.APISuccess,
			APIFailures:  s.APIFailures,
			StaleDropped: s.StaleDropped,
		}
		if total := s.CacheHits + s.CacheMisses; total > 0 {
			dto.HitRate = float64(s.CacheHits) / float64(total)
		}
		resp.Providers[provider] = dto
	}

	writeJSON(w, resp)
}

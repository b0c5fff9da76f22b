package api

import (
	"net/http"
	"runtime"
	"time"

	"bharatvista/pkg/tracker"
)

// StatsHandler reports provider usage, live sessions and process diagnostics.
type StatsHandler struct {
	tracker  *tracker.Tracker
	sessions func() int
	started  time.Time
}

// NewStatsHandler creates a new StatsHandler. sessions may be nil.
func NewStatsHandler(t *tracker.Tracker, sessions func() int) *StatsHandler {
	return &StatsHandler{tracker: t, sessions: sessions, started: time.Now()}
}

type ProviderStatsDTO struct {
	CacheHits   int64 `json:"cache_hits"`
	CacheMisses int64 `json:"cache_misses"`
	APISuccess  int64 `json:"api_success"`
	APIFailures int64 `json:"api_errors"`
	Bytes       int64 `json:"bytes"`
	HitRate     int64 `json:"hit_rate"`
}

type Diagnostics struct {
	MemoryMB   uint64 `json:"memory_mb"`
	Goroutines int    `json:"goroutines"`
	Uptime     string `json:"uptime"`
}

type StatsResponse struct {
	Diagnostics    Diagnostics                 `json:"diagnostics"`
	ActiveSessions int                         `json:"active_sessions"`
	Providers      map[string]ProviderStatsDTO `json:"providers"`
}

func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	resp := StatsResponse{
		Diagnostics: Diagnostics{
			MemoryMB:   bToMb(mem.Alloc),
			Goroutines: runtime.NumGoroutine(),
			Uptime:     time.Since(h.started).Round(time.Second).String(),
		},
		Providers: make(map[string]ProviderStatsDTO),
	}
	if h.sessions != nil {
		resp.ActiveSessions = h.sessions()
	}

	if h.tracker != nil {
		for provider, stats := range h.tracker.Snapshot() {
			totalCache := stats.CacheHits + stats.CacheMisses
			hitRate := int64(0)
			if totalCache > 0 {
				hitRate = (stats.CacheHits * 100) / totalCache
			}
			resp.Providers[provider] = ProviderStatsDTO{
				CacheHits:   stats.CacheHits,
				CacheMisses: stats.CacheMisses,
				APISuccess:  stats.Success,
				APIFailures: stats.Failures,
				Bytes:       stats.Bytes,
				HitRate:     hitRate,
			}
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func bToMb(b uint64) uint64 {
	return b / 1024 / 1024
}

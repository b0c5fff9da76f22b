package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"bharatvista/pkg/version"
)

// Handlers groups the endpoint handlers mounted by NewServer. Nil handlers leave
// their routes unmounted.
type Handlers struct {
	Monuments *MonumentHandler
	Narration *NarrationHandler
	Passport  *PassportHandler
	Config    *ConfigHandler
	Stats     *StatsHandler
	// StaticDir serves the player UI and bundled audio. Empty disables it.
	StaticDir string
}

// NewServer creates and configures the HTTP server.
func NewServer(addr string, h Handlers, shutdown func()) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", handleHealth)
	mux.HandleFunc("GET /api/version", handleVersion)
	mux.HandleFunc("GET /api/log/latest", handleLatestLog)
	mux.HandleFunc("GET /api/log/events/latest", handleLatestEvent)

	if h.Config != nil {
		mux.HandleFunc("/api/config", h.Config.HandleConfig)
	}
	if h.Stats != nil {
		mux.Handle("GET /api/stats", h.Stats)
	}

	if m := h.Monuments; m != nil {
		mux.HandleFunc("GET /api/monuments", m.HandleList)
		mux.HandleFunc("GET /api/monuments/featured", m.HandleFeatured)
		mux.HandleFunc("GET /api/monuments/{id}", m.HandleGet)
		mux.HandleFunc("GET /api/monuments/{id}/nearby", m.HandleNearby)
		mux.HandleFunc("GET /api/monuments/{id}/related", m.HandleRelated)
		mux.HandleFunc("GET /api/monuments/{id}/guide", m.HandleGreeting)
		mux.HandleFunc("POST /api/monuments/{id}/guide", m.HandleGuide)
		mux.HandleFunc("GET /api/states", m.HandleStates)
		mux.HandleFunc("GET /api/states/{slug}", m.HandleState)
		mux.HandleFunc("GET /api/search/states", m.HandleStateNames)
		mux.HandleFunc("GET /api/categories", m.HandleCategories)
	}

	if n := h.Narration; n != nil {
		mux.HandleFunc("POST /api/narration/sessions", n.HandleOpen)
		mux.HandleFunc("GET /api/narration/sessions/{id}", n.HandleGet)
		mux.HandleFunc("DELETE /api/narration/sessions/{id}", n.HandleClose)
		mux.HandleFunc("POST /api/narration/sessions/{id}/control", n.HandleControl)
		mux.HandleFunc("POST /api/narration/sessions/{id}/language", n.HandleLanguage)
		mux.HandleFunc("POST /api/narration/sessions/{id}/volume", n.HandleVolume)
		mux.HandleFunc("GET /api/narration/sessions/{id}/text", n.HandleText)
		mux.HandleFunc("GET /api/narration/sessions/{id}/ws", n.HandleWebsocket)
		mux.HandleFunc("GET /api/narration/history", n.HandleHistory)
		mux.HandleFunc("GET /api/narration/voices", n.HandleVoices)
	}

	if p := h.Passport; p != nil {
		mux.HandleFunc("GET /api/passport", p.HandleList)
		mux.HandleFunc("POST /api/passport/checkins", p.HandleCheckIn)
		mux.HandleFunc("GET /api/passport/checkins/{id}", p.HandleHas)
	}

	mux.HandleFunc("POST /api/shutdown", func(w http.ResponseWriter, r *http.Request) {
		slog.Info("Graceful shutdown initiated via API")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("Shutting down...")); err != nil {
			slog.Error("Failed to write shutdown response", "error", err)
		}
		// Let the response flush first
		go func() {
			time.Sleep(100 * time.Millisecond)
			if shutdown != nil {
				shutdown()
			}
		}()
	})

	if h.StaticDir != "" {
		mux.Handle("/", http.FileServer(&spaFileSystem{root: http.Dir(h.StaticDir)}))
	}

	// No WriteTimeout: the websocket stream is long-lived.
	return &http.Server{
		Addr:        addr,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		slog.Error("Failed to write health response", "error", err)
	}
}

func handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if _, err := fmt.Fprintf(w, `{"version": "%s"}`, version.Version); err != nil {
		slog.Error("Failed to write version response", "error", err)
	}
}

package api

import (
	"context"
	"log/slog"
	"net/http"

	"bharatvista/pkg/config"
	"bharatvista/pkg/model"
)

// ConfigHandler handles configuration API requests.
type ConfigHandler struct {
	cfgProv config.Provider
}

// NewConfigHandler creates a new ConfigHandler.
func NewConfigHandler(cfg config.Provider) *ConfigHandler {
	return &ConfigHandler{cfgProv: cfg}
}

// ConfigResponse represents the config API response.
type ConfigResponse struct {
	Volume            float64            `json:"volume"`
	Muted             bool               `json:"muted"`
	PreferredLanguage string             `json:"preferred_language"`
	Language          model.LanguageInfo `json:"language"`
	SpeechEngine      string             `json:"speech_engine"`
	SpeechRate        float64            `json:"speech_rate"`
	ResumeCeiling     float64            `json:"resume_ceiling"`
	SessionTTL        string             `json:"session_ttl"`
	HandsetEffect     bool               `json:"handset_effect"`
}

// ConfigRequest updates the user-adjustable settings. Pointers detect false vs missing.
type ConfigRequest struct {
	Volume            *float64 `json:"volume,omitempty"`
	Muted             *bool    `json:"muted,omitempty"`
	PreferredLanguage *string  `json:"preferred_language,omitempty"`
}

// HandleConfig is a unified handler for all config-related methods, facilitating CORS/OPTIONS.
func (h *ConfigHandler) HandleConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.getConfigResponse(r.Context()))
	case http.MethodPut, http.MethodPost:
		h.HandleSetConfig(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *ConfigHandler) getConfigResponse(ctx context.Context) ConfigResponse {
	lang := h.cfgProv.PreferredLanguage(ctx)
	app := h.cfgProv.AppConfig()
	return ConfigResponse{
		Volume:            h.cfgProv.Volume(ctx),
		Muted:             h.cfgProv.Muted(ctx),
		PreferredLanguage: lang,
		Language:          model.DescribeLanguage(lang),
		SpeechEngine:      h.cfgProv.SpeechEngine(ctx),
		SpeechRate:        h.cfgProv.SpeechRate(ctx),
		ResumeCeiling:     h.cfgProv.ResumeCeiling(ctx),
		SessionTTL:        h.cfgProv.SessionTTL(ctx).String(),
		HandsetEffect:     app != nil && app.Audio.Handset.Enabled,
	}
}

// HandleSetConfig applies a ConfigRequest and returns the resulting configuration.
func (h *ConfigHandler) HandleSetConfig(w http.ResponseWriter, r *http.Request) {
	var req ConfigRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Volume != nil && (*req.Volume < 0 || *req.Volume > 1) {
		writeError(w, http.StatusBadRequest, "volume must be within [0,1]")
		return
	}

	ctx := r.Context()
	var errs int
	if req.Volume != nil {
		if err := h.cfgProv.SetVolume(ctx, *req.Volume); err != nil {
			slog.Error("Failed to save volume", "error", err)
			errs++
		}
	}
	if req.Muted != nil {
		if err := h.cfgProv.SetMuted(ctx, *req.Muted); err != nil {
			slog.Error("Failed to save mute", "error", err)
			errs++
		}
	}
	if req.PreferredLanguage != nil {
		if err := h.cfgProv.SetPreferredLanguage(ctx, *req.PreferredLanguage); err != nil {
			slog.Error("Failed to save preferred language", "error", err)
			errs++
		}
	}
	if errs > 0 {
		writeError(w, http.StatusInternalServerError, "failed to save settings")
		return
	}
	writeJSON(w, http.StatusOK, h.getConfigResponse(ctx))
}

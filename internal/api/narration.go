package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"bharatvista/pkg/config"
	"bharatvista/pkg/model"
	"bharatvista/pkg/narration"
	"bharatvista/pkg/store"
)

const (
	wsWriteWait  = 5 * time.Second
	wsPingPeriod = 30 * time.Second
	wsPongWait   = 2 * wsPingPeriod

	defaultHistoryWindow = 30 * 24 * time.Hour
)

// NarrationHandler exposes narration sessions to the player UI.
type NarrationHandler struct {
	registry *narration.Registry
	cfg      config.Provider
	history  store.HistoryStore
	speech   narration.SpeechEngine
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewNarrationHandler creates a new NarrationHandler. history and speech may be nil.
func NewNarrationHandler(reg *narration.Registry, cfg config.Provider, history store.HistoryStore, speech narration.SpeechEngine) *NarrationHandler {
	return &NarrationHandler{
		registry: reg,
		cfg:      cfg,
		history:  history,
		speech:   speech,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     localOrigin,
		},
		logger: slog.With("component", "api_narration"),
	}
}

// OpenRequest opens a session for a monument.
type OpenRequest struct {
	MonumentID string `json:"monument_id"`
}

// ControlRequest is a transport command.
type ControlRequest struct {
	Action  string  `json:"action"` // "play", "pause", "toggle", "restart", "seek"
	Percent float64 `json:"percent,omitempty"`
}

// LanguageRequest selects the narration language.
type LanguageRequest struct {
	Language string `json:"language"`
}

// VolumeRequest changes volume and/or mute. Missing fields are left alone.
type VolumeRequest struct {
	Volume *float64 `json:"volume,omitempty"`
	Muted  *bool    `json:"muted,omitempty"`
}

// TextResponse is the narration text being spoken, for captions.
type TextResponse struct {
	Language   string             `json:"language"`
	IsFallback bool               `json:"is_fallback"`
	Text       string             `json:"text"`
	Info       model.LanguageInfo `json:"info"`
}

// HandleOpen handles POST /api/narration/sessions
func (h *NarrationHandler) HandleOpen(w http.ResponseWriter, r *http.Request) {
	var req OpenRequest
	if err := decodeBody(w, r, &req); err != nil || strings.TrimSpace(req.MonumentID) == "" {
		writeError(w, http.StatusBadRequest, "monument_id is required")
		return
	}
	id, s, err := h.registry.Open(req.MonumentID)
	if err != nil {
		if errors.Is(err, narration.ErrMonumentNotFound) {
			writeError(w, http.StatusNotFound, "monument not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if h.history != nil {
		narration.RecordHistory(s, h.history)
	}
	writeJSON(w, http.StatusCreated, withID(id, s.Snapshot()))
}

// HandleGet handles GET /api/narration/sessions/{id}
func (h *NarrationHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, withID(id, s.Snapshot()))
}

// HandleClose handles DELETE /api/narration/sessions/{id}
func (h *NarrationHandler) HandleClose(w http.ResponseWriter, r *http.Request) {
	if !h.registry.Close(r.PathValue("id")) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleControl handles POST /api/narration/sessions/{id}/control
func (h *NarrationHandler) HandleControl(w http.ResponseWriter, r *http.Request) {
	id, s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req ControlRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if status, msg := applyControl(s, req); status != http.StatusOK {
		writeError(w, status, msg)
		return
	}
	h.logger.Debug("Narration control", "session", id, "action", req.Action)
	writeJSON(w, http.StatusOK, withID(id, s.Snapshot()))
}

// applyControl runs one transport command and maps its outcome to a status code.
func applyControl(s *narration.Session, req ControlRequest) (int, string) {
	switch req.Action {
	case "play":
		s.Play()
	case "pause":
		s.Pause()
	case "toggle":
		if s.Snapshot().State == narration.StatePlaying {
			s.Pause()
		} else {
			s.Play()
		}
	case "restart":
		s.Restart()
	case "seek":
		// Unsupported seeks leave the session untouched; the snapshot's can_seek
		// already tells the UI.
		if err := s.Seek(req.Percent); err != nil &&
			!errors.Is(err, narration.ErrSeekUnsupported) && !errors.Is(err, narration.ErrNarrationUnavailable) {
			return http.StatusInternalServerError, err.Error()
		}
	default:
		return http.StatusBadRequest, "unknown action"
	}
	return http.StatusOK, ""
}

// HandleLanguage handles POST /api/narration/sessions/{id}/language
func (h *NarrationHandler) HandleLanguage(w http.ResponseWriter, r *http.Request) {
	id, s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req LanguageRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.SetLanguage(req.Language)
	if h.cfg != nil {
		if err := h.cfg.SetPreferredLanguage(r.Context(), req.Language); err != nil {
			h.logger.Error("Failed to persist language", "error", err)
		}
	}
	writeJSON(w, http.StatusOK, withID(id, s.Snapshot()))
}

// HandleVolume handles POST /api/narration/sessions/{id}/volume
func (h *NarrationHandler) HandleVolume(w http.ResponseWriter, r *http.Request) {
	id, s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req VolumeRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Volume != nil {
		if *req.Volume < 0 || *req.Volume > 1 {
			writeError(w, http.StatusBadRequest, "volume must be within [0,1]")
			return
		}
		s.SetVolume(*req.Volume)
	}
	if req.Muted != nil {
		s.SetMuted(*req.Muted)
	}

	snap := s.Snapshot()
	if h.cfg != nil {
		ctx := r.Context()
		if snap.Volume > 0 {
			if err := h.cfg.SetVolume(ctx, snap.Volume); err != nil {
				h.logger.Error("Failed to persist volume", "error", err)
			}
		}
		if err := h.cfg.SetMuted(ctx, snap.Muted); err != nil {
			h.logger.Error("Failed to persist mute", "error", err)
		}
	}
	writeJSON(w, http.StatusOK, withID(id, snap))
}

// HandleText handles GET /api/narration/sessions/{id}/text
func (h *NarrationHandler) HandleText(w http.ResponseWriter, r *http.Request) {
	_, s, ok := h.session(w, r)
	if !ok {
		return
	}
	snap := s.Snapshot()
	text, fallback := s.Text()
	writeJSON(w, http.StatusOK, TextResponse{
		Language:   snap.Language,
		IsFallback: fallback,
		Text:       text,
		Info:       model.DescribeLanguage(snap.Language),
	})
}

// HandleHistory handles GET /api/narration/history?days=&limit=
func (h *NarrationHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeJSON(w, http.StatusOK, []store.NarrationRecord{})
		return
	}
	days, err := intParam(r, "days", int(defaultHistoryWindow/(24*time.Hour)))
	if err != nil || days <= 0 {
		writeError(w, http.StatusBadRequest, "invalid days")
		return
	}
	limit, err := intParam(r, "limit", 50)
	if err != nil || limit <= 0 {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	since := time.Now().Add(-time.Duration(days) * 24 * time.Hour)
	recs, err := h.history.RecentNarrations(r.Context(), since, limit)
	if err != nil {
		h.logger.Error("Failed to read narration history", "error", err)
		writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	if recs == nil {
		recs = []store.NarrationRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// HandleVoices handles GET /api/narration/voices
func (h *NarrationHandler) HandleVoices(w http.ResponseWriter, r *http.Request) {
	resp := struct {
		Available bool              `json:"available"`
		Voices    []narration.Voice `json:"voices"`
	}{Voices: []narration.Voice{}}

	if h.speech != nil && h.speech.Available() {
		resp.Available = true
		voices, err := h.speech.Voices(r.Context())
		if err != nil {
			h.logger.Warn("Failed to list voices", "error", err)
		} else if voices != nil {
			resp.Voices = voices
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleWebsocket handles GET /api/narration/sessions/{id}/ws. The server pushes a
// snapshot on connect and after every change; the client may send ControlRequests.
func (h *NarrationHandler) HandleWebsocket(w http.ResponseWriter, r *http.Request) {
	id, s, ok := h.session(w, r)
	if !ok {
		return
	}
	// A connected view keeps its session alive without further requests.
	release, err := h.registry.Hold(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	defer release()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Latest snapshot wins; the UI only renders the newest state.
	updates := make(chan narration.Snapshot, 1)
	var pushMu sync.Mutex
	var pushed uint64
	push := func(snap narration.Snapshot) {
		pushMu.Lock()
		defer pushMu.Unlock()
		if snap.Seq < pushed {
			return
		}
		pushed = snap.Seq
		select {
		case <-updates:
		default:
		}
		select {
		case updates <- snap:
		default:
		}
	}
	unsubscribe := s.Subscribe(push)
	defer unsubscribe()
	push(s.Snapshot())

	go h.readControls(ctx, cancel, conn, s)

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-updates:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(withID(id, snap)); err != nil {
				return
			}
			if snap.Closed {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"),
					time.Now().Add(wsWriteWait))
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

func (h *NarrationHandler) readControls(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, s *narration.Session) {
	defer cancel()
	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for ctx.Err() == nil {
		var req ControlRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("Websocket read ended", "error", err)
			}
			return
		}
		if status, msg := applyControl(s, req); status != http.StatusOK {
			h.logger.Debug("Ignoring websocket control", "action", req.Action, "reason", msg)
		}
	}
}

func (h *NarrationHandler) session(w http.ResponseWriter, r *http.Request) (string, *narration.Session, bool) {
	id := r.PathValue("id")
	s, err := h.registry.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return "", nil, false
	}
	return id, s, true
}

func withID(id string, snap narration.Snapshot) narration.Snapshot {
	snap.SessionID = id
	return snap
}

// localOrigin accepts requests without an Origin header and those from a loopback host.
func localOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, host := range []string{"://localhost", "://127.0.0.1", "://[::1]"} {
		if strings.Contains(origin, host) {
			return true
		}
	}
	return strings.Contains(origin, "://"+r.Host)
}

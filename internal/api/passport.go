package api

import (
	"errors"
	"net/http"
	"strings"

	"bharatvista/pkg/model"
	"bharatvista/pkg/passport"
)

// PassportHandler serves heritage check-ins.
type PassportHandler struct {
	tracker   *passport.Tracker
	monuments interface {
		Get(id string) (*model.Monument, bool)
	}
}

// NewPassportHandler creates a new PassportHandler. monuments validates ids; nil
// accepts any id.
func NewPassportHandler(t *passport.Tracker, monuments interface {
	Get(id string) (*model.Monument, bool)
}) *PassportHandler {
	return &PassportHandler{tracker: t, monuments: monuments}
}

// CheckInRequest stamps a monument.
type CheckInRequest struct {
	MonumentID string `json:"monument_id"`
}

// PassportResponse lists the stamps.
type PassportResponse struct {
	Count    int             `json:"count"`
	Checkins []model.Checkin `json:"checkins"`
}

// CheckInStatus reports whether a monument is stamped.
type CheckInStatus struct {
	MonumentID string `json:"monument_id"`
	CheckedIn  bool   `json:"checked_in"`
}

// HandleList handles GET /api/passport
func (h *PassportHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	list := h.tracker.List()
	if list == nil {
		list = []model.Checkin{}
	}
	writeJSON(w, http.StatusOK, PassportResponse{Count: len(list), Checkins: list})
}

// HandleCheckIn handles POST /api/passport/checkins
func (h *PassportHandler) HandleCheckIn(w http.ResponseWriter, r *http.Request) {
	var req CheckInRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	id := strings.TrimSpace(req.MonumentID)
	if h.monuments != nil && id != "" {
		if _, ok := h.monuments.Get(id); !ok {
			writeError(w, http.StatusNotFound, "monument not found")
			return
		}
	}

	c, err := h.tracker.CheckIn(r.Context(), id)
	switch {
	case errors.Is(err, passport.ErrEmptyMonumentID):
		writeError(w, http.StatusBadRequest, "monument_id is required")
	case errors.Is(err, passport.ErrDuplicateCheckin):
		writeError(w, http.StatusConflict, "already checked in")
	case err != nil:
		writeError(w, http.StatusInternalServerError, "failed to save check-in")
	default:
		writeJSON(w, http.StatusCreated, c)
	}
}

// HandleHas handles GET /api/passport/checkins/{id}
func (h *PassportHandler) HandleHas(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	writeJSON(w, http.StatusOK, CheckInStatus{MonumentID: id, CheckedIn: h.tracker.Has(id)})
}

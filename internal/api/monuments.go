package api

import (
	"net/http"
	"strconv"
	"strings"

	"bharatvista/pkg/catalogue"
	"bharatvista/pkg/guide"
	"bharatvista/pkg/model"
)

// MonumentHandler serves catalogue queries and the heritage guide.
type MonumentHandler struct {
	cat *catalogue.Catalogue
	// nearbyKm is the radius used when a nearby request names none.
	nearbyKm float64
}

// NewMonumentHandler creates a new MonumentHandler.
func NewMonumentHandler(cat *catalogue.Catalogue, nearbyKm float64) *MonumentHandler {
	if nearbyKm <= 0 {
		nearbyKm = 50
	}
	return &MonumentHandler{cat: cat, nearbyKm: nearbyKm}
}

// StateResponse is a region with its monuments.
type StateResponse struct {
	model.Region
	Monuments []*model.Monument `json:"monuments"`
}

// GuideRequest is a visitor question.
type GuideRequest struct {
	Question string `json:"question"`
}

// GuideResponse is the guide's reply.
type GuideResponse struct {
	MonumentID string `json:"monument_id"`
	Answer     string `json:"answer"`
}

// HandleList handles GET /api/monuments?q=&state=&category=
func (h *MonumentHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	result := h.cat.Search(q.Get("q"), q.Get("state"))

	if c := q.Get("category"); c != "" {
		cat := model.Category(strings.ToLower(c))
		if !cat.Valid() {
			writeError(w, http.StatusBadRequest, "unknown category")
			return
		}
		filtered := result[:0:0]
		for _, m := range result {
			if m.Category == cat {
				filtered = append(filtered, m)
			}
		}
		result = filtered
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleFeatured handles GET /api/monuments/featured
func (h *MonumentHandler) HandleFeatured(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.cat.Featured())
}

// HandleGet handles GET /api/monuments/{id}
func (h *MonumentHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	m, ok := h.monument(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// HandleNearby handles GET /api/monuments/{id}/nearby?radius_km=&limit=
func (h *MonumentHandler) HandleNearby(w http.ResponseWriter, r *http.Request) {
	m, ok := h.monument(w, r)
	if !ok {
		return
	}
	radius, err := floatParam(r, "radius_km", h.nearbyKm)
	if err != nil || radius <= 0 {
		writeError(w, http.StatusBadRequest, "invalid radius_km")
		return
	}
	limit, err := intParam(r, "limit", 0)
	if err != nil || limit < 0 {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}

	// One extra to make room for the monument itself
	lookup := limit
	if lookup > 0 {
		lookup++
	}
	out := make([]*model.Monument, 0)
	for _, n := range h.cat.Nearby(m.Location.Lat, m.Location.Lng, radius, lookup) {
		if n.ID == m.ID {
			continue
		}
		out = append(out, n)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleRelated handles GET /api/monuments/{id}/related?limit=
func (h *MonumentHandler) HandleRelated(w http.ResponseWriter, r *http.Request) {
	m, ok := h.monument(w, r)
	if !ok {
		return
	}
	limit, err := intParam(r, "limit", 3)
	if err != nil || limit < 0 {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	writeJSON(w, http.StatusOK, h.cat.Related(m.ID, limit))
}

// HandleGreeting handles GET /api/monuments/{id}/guide
func (h *MonumentHandler) HandleGreeting(w http.ResponseWriter, r *http.Request) {
	m, ok := h.monument(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, GuideResponse{MonumentID: m.ID, Answer: guide.Greeting(m)})
}

// HandleGuide handles POST /api/monuments/{id}/guide
func (h *MonumentHandler) HandleGuide(w http.ResponseWriter, r *http.Request) {
	m, ok := h.monument(w, r)
	if !ok {
		return
	}
	var req GuideRequest
	if err := decodeBody(w, r, &req); err != nil || strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}
	writeJSON(w, http.StatusOK, GuideResponse{MonumentID: m.ID, Answer: guide.Answer(m, req.Question)})
}

// HandleStates handles GET /api/states
func (h *MonumentHandler) HandleStates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.cat.States())
}

// HandleStateNames handles GET /api/search/states, the search filter options.
func (h *MonumentHandler) HandleStateNames(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.cat.StateNames())
}

// HandleState handles GET /api/states/{slug}
func (h *MonumentHandler) HandleState(w http.ResponseWriter, r *http.Request) {
	region, ok := h.cat.StateBySlug(r.PathValue("slug"))
	if !ok {
		writeError(w, http.StatusNotFound, "state not found")
		return
	}
	writeJSON(w, http.StatusOK, StateResponse{Region: *region, Monuments: h.cat.ByState(region.Name)})
}

// HandleCategories handles GET /api/categories
func (h *MonumentHandler) HandleCategories(w http.ResponseWriter, r *http.Request) {
	type categoryCount struct {
		Category model.Category `json:"category"`
		Count    int            `json:"count"`
	}
	out := make([]categoryCount, 0, len(model.Categories))
	for _, c := range model.Categories {
		out = append(out, categoryCount{Category: c, Count: len(h.cat.ByCategory(c))})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *MonumentHandler) monument(w http.ResponseWriter, r *http.Request) (*model.Monument, bool) {
	m, ok := h.cat.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "monument not found")
		return nil, false
	}
	return m, true
}

func floatParam(r *http.Request, name string, fallback float64) (float64, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(s, 64)
}

func intParam(r *http.Request, name string, fallback int) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return fallback, nil
	}
	return strconv.Atoi(s)
}

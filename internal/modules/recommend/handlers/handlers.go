// Package handlers exposes the recommendation engine over HTTP.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/pranavkh/fundsage/internal/domain"
	"github.com/pranavkh/fundsage/internal/modules/recommend"
)

// Handler handles recommendation HTTP requests.
type Handler struct {
	engine *recommend.Engine
	log    zerolog.Logger
}

// NewHandler creates a recommendation handler.
func NewHandler(engine *recommend.Engine, log zerolog.Logger) *Handler {
	return &Handler{
		engine: engine,
		log:    log.With().Str("component", "recommend_handlers").Logger(),
	}
}

// HandleNewInvestor recommends funds for a first-time investor.
// POST /api/recommend/new
func (h *Handler) HandleNewInvestor(w http.ResponseWriter, r *http.Request) {
	var req domain.NewInvestorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	result, err := h.engine.NewInvestor(req)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// HandleExistingInvestor evaluates a current holding.
// POST /api/recommend/existing
func (h *Handler) HandleExistingInvestor(w http.ResponseWriter, r *http.Request) {
	var req domain.ExistingInvestorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	result, err := h.engine.ExistingInvestor(req)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// respondError maps domain error kinds to status codes. Request errors
// are the caller's problem; everything else is ours.
func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrEmptyResult):
		h.writeError(w, http.StatusNotFound, err.Error())
	default:
		h.log.Error().Err(err).Msg("recommendation request failed")
		h.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"trendpulse/internal/domain/trend"
)

// TrendHandler handles trend feed HTTP requests
type TrendHandler struct {
	engine trend.Engine
}

// NewTrendHandler creates a new trend handler
func NewTrendHandler(engine trend.Engine) *TrendHandler {
	return &TrendHandler{engine: engine}
}

// GetFeed returns the trending feed: trending events updated within the
// recency window, paginated by rank.
func (h *TrendHandler) GetFeed(w http.ResponseWriter, r *http.Request) {
	filter := trend.Filter{
		TrendingOnly:  true,
		UpdatedWithin: 24 * time.Hour,
		Limit:         50,
	}

	if window := r.URL.Query().Get("window"); window != "" {
		d, err := time.ParseDuration(window)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid window")
			return
		}
		filter.UpdatedWithin = d
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit <= 0 {
			respondWithError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		filter.Limit = limit
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil || offset < 0 {
			respondWithError(w, http.StatusBadRequest, "Invalid offset")
			return
		}
		filter.Offset = offset
	}

	if r.URL.Query().Get("all") == "true" {
		filter.TrendingOnly = false
	}

	events, err := h.engine.Feed(r.Context(), filter)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to get trends")
		return
	}

	respondWithJSON(w, http.StatusOK, events)
}

// GetEvent returns a specific trend event by key, including the
// confidence breakdown for audit.
func (h *TrendHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if key == "" {
		respondWithError(w, http.StatusBadRequest, "Missing event key")
		return
	}

	e, err := h.engine.Event(r.Context(), key)
	if err != nil {
		if errors.Is(err, trend.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, "Trend event not found")
		} else {
			respondWithError(w, http.StatusInternalServerError, "Failed to get trend event")
		}
		return
	}

	respondWithJSON(w, http.StatusOK, e)
}

// RunScoringPass triggers one scoring pass. Called by the external
// scheduler on its cadence; safe to invoke for overlapping windows.
func (h *TrendHandler) RunScoringPass(w http.ResponseWriter, r *http.Request) {
	batchWindow := 15 * time.Minute
	if windowStr := r.URL.Query().Get("batch_window"); windowStr != "" {
		d, err := time.ParseDuration(windowStr)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid batch_window")
			return
		}
		batchWindow = d
	}

	report, err := h.engine.RunScoringPass(r.Context(), batchWindow)
	if err != nil {
		respondWithJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error":  err.Error(),
			"report": report,
		})
		return
	}

	respondWithJSON(w, http.StatusOK, report)
}

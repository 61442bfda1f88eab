package handlers

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"

	"github.com/govbatch/govbatch/internal/core/engine"
	"github.com/govbatch/govbatch/internal/core/store"
	apperrors "github.com/govbatch/govbatch/internal/errors"
)

// RateLimitHandler exposes the live rate windows and their stored
// history.
type RateLimitHandler struct {
	Tracker *engine.Tracker
	Store   *store.Store
}

// Snapshot handles GET /v1/rate-limits.
func (h *RateLimitHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	usages := h.Tracker.Snapshot()
	sort.Slice(usages, func(i, j int) bool { return usages[i].Category < usages[j].Category })

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{"categories": usages})
}

// History handles GET /v1/rate-limits/history.
func (h *RateLimitHandler) History(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		apperrors.RespondWithEnvelope(w, r, apperrors.NewDatabaseError("rate observation store is not configured"))
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			apperrors.RespondWithEnvelope(w, r, apperrors.NewInvalidInputError("limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	observations, err := h.Store.ListRateObservations(r.Context(), r.URL.Query().Get("category"), limit)
	if err != nil {
		apperrors.RespondWithEnvelope(w, r, apperrors.WrapDatabaseError(r.Context(), err, "failed to list rate observations"))
		return
	}
	if observations == nil {
		observations = []store.RateObservation{}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{"observations": observations})
}

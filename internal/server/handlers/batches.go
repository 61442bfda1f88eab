package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/govbatch/govbatch/internal/config"
	"github.com/govbatch/govbatch/internal/core"
	"github.com/govbatch/govbatch/internal/core/engine"
	"github.com/govbatch/govbatch/internal/core/store"
	apperrors "github.com/govbatch/govbatch/internal/errors"
)

// maxBatchRequestBytes bounds a single batch submission body.
const maxBatchRequestBytes = 4 << 20

// BatchHandler executes ad-hoc batches submitted over HTTP and serves
// the stored audit trail.
type BatchHandler struct {
	Runner   *engine.Runner
	Store    *store.Store
	Defaults config.BatchConfig
}

// BatchRequest is the submission body for POST /v1/batches. Timeout is
// a Go duration string; zero values fall back to the server's batch
// defaults.
type BatchRequest struct {
	Tasks          []core.Task `json:"tasks"`
	Concurrency    int         `json:"concurrency,omitempty"`
	PerTaskTimeout string      `json:"per_task_timeout,omitempty"`
	MaxRetries     int         `json:"max_retries,omitempty"`
}

// BatchResponse pairs the run id with the full ordered result.
type BatchResponse struct {
	RunID  string            `json:"run_id"`
	Result *core.BatchResult `json:"result"`
}

// Execute handles POST /v1/batches.
func (h *BatchHandler) Execute(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBatchRequestBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		apperrors.RespondWithEnvelope(w, r, apperrors.WrapInvalidInput(r.Context(), err, "invalid batch request body"))
		return
	}

	job := core.BatchJob{
		Tasks:          req.Tasks,
		Concurrency:    req.Concurrency,
		PerTaskTimeout: h.Defaults.PerTaskTimeout,
		MaxRetries:     req.MaxRetries,
	}
	if job.Concurrency <= 0 {
		job.Concurrency = h.Defaults.Concurrency
	}
	if req.PerTaskTimeout != "" {
		timeout, err := time.ParseDuration(req.PerTaskTimeout)
		if err != nil {
			apperrors.RespondWithEnvelope(w, r, apperrors.WrapInvalidInput(r.Context(), err, "invalid per_task_timeout"))
			return
		}
		job.PerTaskTimeout = timeout
	}

	result, err := h.Runner.Run(r.Context(), job)
	if err != nil {
		apperrors.RespondWithEnvelope(w, r, apperrors.WrapInvalidInput(r.Context(), err, "batch rejected"))
		return
	}

	runID := uuid.New().String()
	if h.Store != nil {
		if err := h.Store.SaveBatch(r.Context(), runID, "api", result); err != nil {
			apperrors.RespondWithEnvelope(w, r, apperrors.WrapDatabaseError(r.Context(), err, "batch executed but audit save failed"))
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(BatchResponse{RunID: runID, Result: result})
}

// List handles GET /v1/batches.
func (h *BatchHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		apperrors.RespondWithEnvelope(w, r, apperrors.NewDatabaseError("batch audit store is not configured"))
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			apperrors.RespondWithEnvelope(w, r, apperrors.NewInvalidInputError("limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	runs, err := h.Store.ListBatches(r.Context(), limit)
	if err != nil {
		apperrors.RespondWithEnvelope(w, r, apperrors.WrapDatabaseError(r.Context(), err, "failed to list batch runs"))
		return
	}
	if runs == nil {
		runs = []store.BatchRun{}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{"runs": runs})
}

// Get handles GET /v1/batches/{id}.
func (h *BatchHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		apperrors.RespondWithEnvelope(w, r, apperrors.NewDatabaseError("batch audit store is not configured"))
		return
	}

	id := chi.URLParam(r, "id")
	run, outcomes, err := h.Store.GetBatch(r.Context(), id)
	if err != nil {
		apperrors.RespondWithEnvelope(w, r, apperrors.WrapDatabaseError(r.Context(), err, "failed to fetch batch run"))
		return
	}
	if run == nil {
		apperrors.RespondWithEnvelope(w, r, apperrors.NewNotFoundError("batch run not found"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{"run": run, "outcomes": outcomes})
}

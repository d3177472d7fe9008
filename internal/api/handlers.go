package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bobarin/beatreel/internal/db"
	"github.com/bobarin/beatreel/internal/ledger"
	xlog "github.com/bobarin/beatreel/internal/log"
	"github.com/bobarin/beatreel/internal/models"
	"github.com/bobarin/beatreel/internal/planner"
	"github.com/bobarin/beatreel/internal/progress"
)

const maxBodyBytes = 1 << 20

// RunEnqueuer hands accepted runs to the worker.
type RunEnqueuer interface {
	EnqueueRun(ctx context.Context, runID uuid.UUID) error
}

// ProgressSource reads progress published by another instance.
type ProgressSource interface {
	LatestProgress(ctx context.Context) (*models.ProgressState, error)
}

type Handler struct {
	store   db.RunStore
	queue   RunEnqueuer
	planner *planner.Planner
	ledger  *ledger.Ledger
	tracker *progress.Tracker
	remote  ProgressSource // optional
	logger  zerolog.Logger
}

func NewHandler(
	store db.RunStore,
	q RunEnqueuer,
	p *planner.Planner,
	l *ledger.Ledger,
	tracker *progress.Tracker,
	remote ProgressSource,
) *Handler {
	return &Handler{
		store:   store,
		queue:   q,
		planner: p,
		ledger:  l,
		tracker: tracker,
		remote:  remote,
		logger:  xlog.WithComponent("api"),
	}
}

// Analyze handles POST /v1/analyze. It previews the plan for a feature
// record without submitting any job.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	features, ok := decodeFeatures(w, r)
	if !ok {
		return
	}

	plan, err := h.planner.Plan(features)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, models.AnalyzeResponse{
		Status:   "success",
		Analysis: features,
		Plan:     plan,
		Message:  "Music analysis complete",
	})
}

// CreateRun handles POST /v1/runs
func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	features, ok := decodeFeatures(w, r)
	if !ok {
		return
	}
	if err := features.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	run := &models.Run{
		ID:       uuid.New(),
		Status:   models.RunStatusQueued,
		Features: features,
	}
	if err := h.store.CreateRun(r.Context(), run); err != nil {
		h.logger.Error().Err(err).Msg("failed to create run")
		respondError(w, http.StatusInternalServerError, "Failed to create run")
		return
	}

	if err := h.queue.EnqueueRun(r.Context(), run.ID); err != nil {
		h.logger.Error().Err(err).Str("run_id", run.ID.String()).Msg("failed to enqueue run")
		// The run would otherwise sit in queued forever.
		_ = h.store.FailRun(context.WithoutCancel(r.Context()), run.ID, "failed to enqueue run", nil)
		respondError(w, http.StatusInternalServerError, "Failed to enqueue run")
		return
	}

	respondJSON(w, http.StatusAccepted, models.CreateRunResponse{
		RunID:  run.ID,
		Status: run.Status,
	})
}

// ListRuns handles GET /v1/runs
// Query params:
//   - limit:  max results per page (default 20, max 100)
//   - offset: number of results to skip (default 0)
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > 100 {
		limit = 100
	}

	offset := 0
	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	runs, total, err := h.store.ListRuns(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list runs")
		respondError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}
	if runs == nil {
		runs = []models.Run{}
	}

	respondJSON(w, http.StatusOK, models.ListRunsResponse{
		Runs:   runs,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// GetRun handles GET /v1/runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid run ID")
		return
	}

	run, err := h.store.GetRun(r.Context(), id)
	if errors.Is(err, db.ErrRunNotFound) {
		respondError(w, http.StatusNotFound, "Run not found")
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("run_id", id.String()).Msg("failed to get run")
		respondError(w, http.StatusInternalServerError, "Failed to get run")
		return
	}

	respondJSON(w, http.StatusOK, run)
}

// Progress handles GET /v1/progress. The Redis mirror wins when present so
// every instance reports the worker's view; the local tracker is the fallback.
func (h *Handler) Progress(w http.ResponseWriter, r *http.Request) {
	if h.remote != nil {
		state, err := h.remote.LatestProgress(r.Context())
		if err != nil {
			h.logger.Warn().Err(err).Msg("progress mirror unavailable")
		} else if state != nil {
			respondJSON(w, http.StatusOK, state)
			return
		}
	}
	respondJSON(w, http.StatusOK, h.tracker.Snapshot())
}

// Budget handles GET /v1/budget
func (h *Handler) Budget(w http.ResponseWriter, r *http.Request) {
	s := h.ledger.Snapshot()
	respondJSON(w, http.StatusOK, models.BudgetResponse{
		Used:           s.Used,
		Remaining:      s.Remaining,
		Total:          s.Total,
		PercentageUsed: s.Percent,
	})
}

func decodeFeatures(w http.ResponseWriter, r *http.Request) (models.AudioFeatures, bool) {
	var features models.AudioFeatures
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&features); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return features, false
	}
	return features, true
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// Health check
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/oversight-labs/amlsentry/internal/domain"
)

// RunService is the service surface the run handlers depend on.
type RunService interface {
	Execute(ctx context.Context) (domain.Run, error)
	GetRun(ctx context.Context, id string) (domain.Run, error)
	ListRuns(ctx context.Context, limit int) ([]domain.Run, error)
	GetSummary(ctx context.Context, runID string) (domain.RunSummary, error)
	ListResults(ctx context.Context, runID string, opts domain.ListOpts) ([]domain.ResultRecord, int, error)
	GetResult(ctx context.Context, runID string, txnID int64) (domain.ResultRecord, error)
}

// RunHandler serves the scoring run endpoints.
type RunHandler struct {
	svc    RunService
	logger *slog.Logger
}

// NewRunHandler creates a RunHandler.
func NewRunHandler(svc RunService, logger *slog.Logger) *RunHandler {
	return &RunHandler{svc: svc, logger: logger}
}

// runResponse is the wire shape for a run.
type runResponse struct {
	RunID                string     `json:"run_id"`
	Status               string     `json:"status"`
	StartedAt            time.Time  `json:"started_at"`
	FinishedAt           *time.Time `json:"finished_at,omitempty"`
	ErrorMessage         string     `json:"error_message,omitempty"`
	TotalTransactions    int        `json:"total_transactions"`
	FlaggedTransactions  int        `json:"flagged_transactions"`
	ExcludedTransactions int        `json:"excluded_transactions"`
	ReasoningFailures    int        `json:"reasoning_failures"`
}

func toRunResponse(run domain.Run) runResponse {
	return runResponse{
		RunID:                run.ID,
		Status:               string(run.Status),
		StartedAt:            run.StartedAt,
		FinishedAt:           run.FinishedAt,
		ErrorMessage:         run.ErrorMessage,
		TotalTransactions:    run.TotalTransactions,
		FlaggedTransactions:  run.FlaggedTransactions,
		ExcludedTransactions: run.ExcludedTransactions,
		ReasoningFailures:    run.ReasoningFailures,
	}
}

// TriggerRun executes one scoring run over the configured input batch and
// returns the finished run. The call blocks until the run completes.
// POST /api/runs
func (h *RunHandler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	log := logHandler(h.logger, "trigger_run")
	log.InfoContext(r.Context(), "run requested")

	run, err := h.svc.Execute(r.Context())
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrRunInProgress):
			writeError(w, http.StatusConflict, "a run is already in progress")
		case run.ID != "":
			// The run was created and recorded as failed; surface it.
			writeJSON(w, http.StatusInternalServerError, toRunResponse(run))
		default:
			log.ErrorContext(r.Context(), "run failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "run failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, toRunResponse(run))
}

// ListRuns returns recent runs, newest first.
// GET /api/runs
func (h *RunHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	runs, err := h.svc.ListRuns(r.Context(), limit)
	if err != nil {
		logHandler(h.logger, "list_runs").ErrorContext(r.Context(), "list runs failed",
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}

	out := make([]runResponse, 0, len(runs))
	for _, run := range runs {
		out = append(out, toRunResponse(run))
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": out})
}

// GetSummary returns the aggregate view of one run.
// GET /api/runs/{id}/summary
func (h *RunHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	runID := pathParam(r, "id")

	summary, err := h.svc.GetSummary(r.Context(), runID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		logHandler(h.logger, "get_summary").ErrorContext(r.Context(), "get summary failed",
			slog.String("run_id", runID),
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to get summary")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// ListResults returns one page of a run's per-transaction results, in
// original input order. Supports limit, offset, and flagged_only.
// GET /api/runs/{id}
func (h *RunHandler) ListResults(w http.ResponseWriter, r *http.Request) {
	runID := pathParam(r, "id")
	opts := parseListOpts(r)

	records, total, err := h.svc.ListResults(r.Context(), runID, opts)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		logHandler(h.logger, "list_results").ErrorContext(r.Context(), "list results failed",
			slog.String("run_id", runID),
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list results")
		return
	}

	if records == nil {
		records = []domain.ResultRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":  runID,
		"total":   total,
		"limit":   opts.Limit,
		"offset":  opts.Offset,
		"results": records,
	})
}

// GetResult returns the result for a single transaction within a run.
// GET /api/runs/{id}/transactions/{txn_id}
func (h *RunHandler) GetResult(w http.ResponseWriter, r *http.Request) {
	runID := pathParam(r, "id")

	txnID, err := strconv.ParseInt(pathParam(r, "txn_id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid transaction id")
		return
	}

	rec, err := h.svc.GetResult(r.Context(), runID, txnID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "transaction not found in run")
			return
		}
		logHandler(h.logger, "get_result").ErrorContext(r.Context(), "get result failed",
			slog.String("run_id", runID),
			slog.Int64("txn_id", txnID),
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to get result")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

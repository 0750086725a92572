// Package service coordinates the domain operations behind the API: run
// execution, run queries, and result queries.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/oversight-labs/amlsentry/internal/domain"
	"github.com/oversight-labs/amlsentry/internal/ingest"
	"github.com/oversight-labs/amlsentry/internal/pipeline"
)

const (
	// runLockKey guards the pipeline. One run at a time across all replicas.
	runLockKey = "pipeline:run"
	runLockTTL = 30 * time.Minute

	summaryTTL = 10 * time.Minute
)

// BatchSource produces the input batch for a scoring run.
type BatchSource interface {
	Load(ctx context.Context) ([]domain.Transaction, ingest.Stats, error)
}

// Notifier receives run lifecycle events. Satisfied by notify.Notifier.
type Notifier interface {
	RunCompleted(ctx context.Context, run domain.Run) error
	RunFailed(ctx context.Context, run domain.Run) error
}

// RunService executes scoring runs and answers run queries.
type RunService struct {
	source   BatchSource
	pipeline *pipeline.Orchestrator
	runs     domain.RunStore
	results  domain.ResultStore
	summary  domain.SummaryCache
	archiver domain.RunArchiver
	locks    domain.LockManager
	notifier Notifier
	logger   *slog.Logger
}

// NewRunService creates a RunService. The summary cache, archiver, lock
// manager, and notifier are optional; pass nil to disable the corresponding
// behavior.
func NewRunService(
	source BatchSource,
	pl *pipeline.Orchestrator,
	runs domain.RunStore,
	results domain.ResultStore,
	summary domain.SummaryCache,
	archiver domain.RunArchiver,
	locks domain.LockManager,
	notifier Notifier,
	logger *slog.Logger,
) *RunService {
	return &RunService{
		source:   source,
		pipeline: pl,
		runs:     runs,
		results:  results,
		summary:  summary,
		archiver: archiver,
		locks:    locks,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "run_service")),
	}
}

// Execute performs one full scoring run: load the batch, score it, persist
// the results, archive them, and record the run outcome. It returns the
// finished run. Only one run may execute at a time; concurrent calls get
// domain.ErrRunInProgress.
func (s *RunService) Execute(ctx context.Context) (domain.Run, error) {
	if s.locks != nil {
		unlock, err := s.locks.Acquire(ctx, runLockKey, runLockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				return domain.Run{}, domain.ErrRunInProgress
			}
			return domain.Run{}, fmt.Errorf("run_service: acquire run lock: %w", err)
		}
		defer unlock()
	}

	run := domain.Run{
		ID:        uuid.New().String(),
		Status:    domain.RunRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := s.runs.Create(ctx, run); err != nil {
		return domain.Run{}, fmt.Errorf("run_service: create run: %w", err)
	}

	s.logger.InfoContext(ctx, "run started", slog.String("run_id", run.ID))

	outcome, err := s.execute(ctx, run.ID)
	now := time.Now().UTC()
	run.FinishedAt = &now

	if err != nil {
		run.Status = domain.RunFailed
		run.ErrorMessage = err.Error()
		if finishErr := s.runs.Finish(ctx, run); finishErr != nil {
			s.logger.ErrorContext(ctx, "record failed run",
				slog.String("run_id", run.ID),
				slog.String("error", finishErr.Error()),
			)
		}
		// A concurrent summary read may have cached the run mid-flight;
		// drop the stale entry now that the run is terminal.
		s.invalidateSummary(ctx, run.ID)
		s.notifyFailed(ctx, run)
		return run, fmt.Errorf("run_service: run %s: %w", run.ID, err)
	}

	run.Status = domain.RunSucceeded
	run.TotalTransactions = outcome.Total
	run.FlaggedTransactions = outcome.Flagged
	run.ExcludedTransactions = outcome.Excluded
	run.ReasoningFailures = outcome.ReasoningFailures

	if err := s.runs.Finish(ctx, run); err != nil {
		return run, fmt.Errorf("run_service: finish run %s: %w", run.ID, err)
	}
	s.cacheSummary(ctx, run)

	s.logger.InfoContext(ctx, "run completed",
		slog.String("run_id", run.ID),
		slog.Int("total", run.TotalTransactions),
		slog.Int("flagged", run.FlaggedTransactions),
		slog.Int("excluded", run.ExcludedTransactions),
		slog.Int("reasoning_failures", run.ReasoningFailures),
	)

	if s.notifier != nil {
		if err := s.notifier.RunCompleted(ctx, run); err != nil {
			s.logger.WarnContext(ctx, "run completion notify failed",
				slog.String("run_id", run.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return run, nil
}

// execute is the fallible middle of Execute: everything between run creation
// and the terminal status write.
func (s *RunService) execute(ctx context.Context, runID string) (*pipeline.Outcome, error) {
	batch, stats, err := s.source.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load batch: %w", err)
	}

	outcome, err := s.pipeline.Score(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("score batch: %w", err)
	}
	// Rows dropped at ingest and rows dropped at partitioning are both
	// exclusions from the run's perspective.
	outcome.Excluded += stats.Excluded()

	if err := s.results.InsertBatch(ctx, runID, outcome.Records); err != nil {
		return nil, fmt.Errorf("persist results: %w", err)
	}

	if s.archiver != nil {
		path, err := s.archiver.ArchiveRun(ctx, runID, outcome.Records)
		if err != nil {
			// Archival is best effort; the primary store has the data.
			s.logger.WarnContext(ctx, "run archive failed",
				slog.String("run_id", runID),
				slog.String("error", err.Error()),
			)
		} else {
			s.logger.InfoContext(ctx, "run archived",
				slog.String("run_id", runID),
				slog.String("path", path),
			)
		}
	}
	return outcome, nil
}

func (s *RunService) notifyFailed(ctx context.Context, run domain.Run) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.RunFailed(ctx, run); err != nil {
		s.logger.WarnContext(ctx, "run failure notify failed",
			slog.String("run_id", run.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *RunService) invalidateSummary(ctx context.Context, runID string) {
	if s.summary == nil {
		return
	}
	if err := s.summary.Invalidate(ctx, runID); err != nil {
		s.logger.WarnContext(ctx, "invalidate summary failed",
			slog.String("run_id", runID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *RunService) cacheSummary(ctx context.Context, run domain.Run) {
	if s.summary == nil {
		return
	}
	if err := s.summary.SetSummary(ctx, run.Summary(), summaryTTL); err != nil {
		s.logger.WarnContext(ctx, "cache summary failed",
			slog.String("run_id", run.ID),
			slog.String("error", err.Error()),
		)
	}
}

// GetRun returns a single run by ID.
func (s *RunService) GetRun(ctx context.Context, id string) (domain.Run, error) {
	run, err := s.runs.GetByID(ctx, id)
	if err != nil {
		return domain.Run{}, fmt.Errorf("run_service: get run %q: %w", id, err)
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *RunService) ListRuns(ctx context.Context, limit int) ([]domain.Run, error) {
	runs, err := s.runs.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("run_service: list runs: %w", err)
	}
	return runs, nil
}

// GetSummary returns the summary view of a run, served from the cache when
// warm and rebuilt from the run store on a miss.
func (s *RunService) GetSummary(ctx context.Context, runID string) (domain.RunSummary, error) {
	if s.summary != nil {
		summary, err := s.summary.GetSummary(ctx, runID)
		if err == nil {
			return summary, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "summary cache read failed",
				slog.String("run_id", runID),
				slog.String("error", err.Error()),
			)
		}
	}

	run, err := s.runs.GetByID(ctx, runID)
	if err != nil {
		return domain.RunSummary{}, fmt.Errorf("run_service: summary for run %q: %w", runID, err)
	}

	summary := run.Summary()
	if s.summary != nil {
		if err := s.summary.SetSummary(ctx, summary, summaryTTL); err != nil {
			s.logger.WarnContext(ctx, "summary cache write failed",
				slog.String("run_id", runID),
				slog.String("error", err.Error()),
			)
		}
	}
	return summary, nil
}

// ListResults returns one page of a run's results plus the total matching
// count. The run must exist.
func (s *RunService) ListResults(ctx context.Context, runID string, opts domain.ListOpts) ([]domain.ResultRecord, int, error) {
	if _, err := s.runs.GetByID(ctx, runID); err != nil {
		return nil, 0, fmt.Errorf("run_service: list results for run %q: %w", runID, err)
	}
	records, total, err := s.results.ListByRun(ctx, runID, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("run_service: list results for run %q: %w", runID, err)
	}
	return records, total, nil
}

// GetResult returns a single transaction's result within a run.
func (s *RunService) GetResult(ctx context.Context, runID string, txnID int64) (domain.ResultRecord, error) {
	rec, err := s.results.GetByTxnID(ctx, runID, txnID)
	if err != nil {
		return domain.ResultRecord{}, fmt.Errorf("run_service: get result %d in run %q: %w", txnID, runID, err)
	}
	return rec, nil
}

package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit       int
	Offset      int
	FlaggedOnly bool
}

// RunStore persists scoring runs.
type RunStore interface {
	Create(ctx context.Context, run Run) error
	Finish(ctx context.Context, run Run) error
	GetByID(ctx context.Context, id string) (Run, error)
	ListRecent(ctx context.Context, limit int) ([]Run, error)
}

// ResultStore persists per-transaction result records. ListByRun returns the
// page of records plus the total count matching the filter.
type ResultStore interface {
	InsertBatch(ctx context.Context, runID string, records []ResultRecord) error
	ListByRun(ctx context.Context, runID string, opts ListOpts) ([]ResultRecord, int, error)
	GetByTxnID(ctx context.Context, runID string, txnID int64) (ResultRecord, error)
}

// SummaryCache fronts the run store for the hot summary endpoint.
type SummaryCache interface {
	GetSummary(ctx context.Context, runID string) (RunSummary, error)
	SetSummary(ctx context.Context, summary RunSummary, ttl time.Duration) error
	Invalidate(ctx context.Context, runID string) error
}

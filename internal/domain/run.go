package domain

import "time"

// RunStatus enumerates the lifecycle of a scoring run.
type RunStatus string

const (
	RunRunning   RunStatus = "RUNNING"
	RunSucceeded RunStatus = "SUCCEEDED"
	RunFailed    RunStatus = "FAILED"
)

// Run records one end-to-end execution of the scoring pipeline over an input
// batch.
type Run struct {
	ID           string
	Status       RunStatus
	StartedAt    time.Time
	FinishedAt   *time.Time
	ErrorMessage string

	TotalTransactions   int
	FlaggedTransactions int
	// ExcludedTransactions counts input rows dropped for data-quality
	// reasons (unparseable timestamp, missing amount). Exclusions are
	// observable here rather than silent.
	ExcludedTransactions int
	ReasoningFailures    int
}

// RunSummary is the lightweight view served by the summary endpoint and kept
// in the cache.
type RunSummary struct {
	RunID                string     `json:"run_id"`
	Status               RunStatus  `json:"status"`
	TotalTransactions    int        `json:"total_transactions"`
	FlaggedTransactions  int        `json:"flagged_transactions"`
	ExcludedTransactions int        `json:"excluded_transactions"`
	ReasoningFailures    int        `json:"reasoning_failures"`
	StartedAt            time.Time  `json:"started_at"`
	FinishedAt           *time.Time `json:"finished_at,omitempty"`
}

// Summary projects a Run into its cacheable summary view.
func (r Run) Summary() RunSummary {
	return RunSummary{
		RunID:                r.ID,
		Status:               r.Status,
		TotalTransactions:    r.TotalTransactions,
		FlaggedTransactions:  r.FlaggedTransactions,
		ExcludedTransactions: r.ExcludedTransactions,
		ReasoningFailures:    r.ReasoningFailures,
		StartedAt:            r.StartedAt,
		FinishedAt:           r.FinishedAt,
	}
}

package notify

import (
	"context"
	"fmt"

	"github.com/oversight-labs/amlsentry/internal/domain"
)

// Event types emitted by the scoring pipeline. Operators filter on these in
// the notifier config.
const (
	EventRunCompleted = "run.completed"
	EventRunFailed    = "run.failed"
)

// RunCompleted notifies operators that a scoring run finished, including the
// flagged count and any reasoning degradations.
func (n *Notifier) RunCompleted(ctx context.Context, run domain.Run) error {
	title := fmt.Sprintf("Scoring run %s completed", run.ID)
	message := fmt.Sprintf(
		"Transactions: %d\nFlagged: %d\nExcluded: %d\nReasoning failures: %d",
		run.TotalTransactions, run.FlaggedTransactions,
		run.ExcludedTransactions, run.ReasoningFailures,
	)
	return n.Notify(ctx, EventRunCompleted, title, message)
}

// RunFailed notifies operators that a scoring run aborted.
func (n *Notifier) RunFailed(ctx context.Context, run domain.Run) error {
	title := fmt.Sprintf("Scoring run %s FAILED", run.ID)
	return n.Notify(ctx, EventRunFailed, title, run.ErrorMessage)
}

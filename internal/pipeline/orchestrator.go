// Package pipeline drives a scoring run end to end: partition the batch by
// entity, aggregate window signals, evaluate rules, request reasoning for
// flagged transactions, verify the reasoning text, and emit result records
// in original input order.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/oversight-labs/amlsentry/internal/domain"
	"github.com/oversight-labs/amlsentry/internal/engine"
)

// Outcome is the product of one scoring run over a batch.
type Outcome struct {
	Records []domain.ResultRecord // ordered by original input index

	Total             int
	Flagged           int
	Excluded          int
	ReasoningFailures int
}

// Orchestrator coordinates the scoring stages. Aggregation parallelism and
// the reasoning pool are sized independently: entities are cheap CPU work,
// while reasoning calls hit a shared, rate-limited external service.
type Orchestrator struct {
	aggregator *engine.Aggregator
	evaluator  *engine.Evaluator
	reasoner   domain.Reasoner
	verifier   domain.Verifier

	entityWorkers    int
	reasoningWorkers int
	logger           *slog.Logger
}

// NewOrchestrator creates an Orchestrator. Worker counts below 1 are clamped
// to 1.
func NewOrchestrator(
	aggregator *engine.Aggregator,
	evaluator *engine.Evaluator,
	reasoner domain.Reasoner,
	verifier domain.Verifier,
	entityWorkers int,
	reasoningWorkers int,
	logger *slog.Logger,
) *Orchestrator {
	if entityWorkers < 1 {
		entityWorkers = 1
	}
	if reasoningWorkers < 1 {
		reasoningWorkers = 1
	}
	return &Orchestrator{
		aggregator:       aggregator,
		evaluator:        evaluator,
		reasoner:         reasoner,
		verifier:         verifier,
		entityWorkers:    entityWorkers,
		reasoningWorkers: reasoningWorkers,
		logger:           logger.With(slog.String("component", "pipeline")),
	}
}

// Score runs the full pipeline over the batch. Per-transaction failures are
// contained: a reasoning failure degrades that transaction's output, a
// malformed row is excluded and counted. Score itself fails only on
// structural problems (empty batch, cancelled context).
func (o *Orchestrator) Score(ctx context.Context, batch []domain.Transaction) (*Outcome, error) {
	if len(batch) == 0 {
		return nil, domain.ErrEmptyBatch
	}

	median := engine.MedianAmount(batch)
	partitions, excluded := engine.Partition(batch)

	o.logger.InfoContext(ctx, "scoring batch",
		slog.Int("transactions", len(batch)),
		slog.Int("entities", len(partitions)),
		slog.Int("excluded", excluded),
	)

	scored, err := o.aggregateAndEvaluate(ctx, partitions, median)
	if err != nil {
		return nil, err
	}

	records, failures, flagged, err := o.reasonAndVerify(ctx, scored)
	if err != nil {
		return nil, err
	}

	o.logger.InfoContext(ctx, "batch scored",
		slog.Int("results", len(records)),
		slog.Int("flagged", flagged),
		slog.Int("reasoning_failures", failures),
	)

	return &Outcome{
		Records:           records,
		Total:             len(records),
		Flagged:           flagged,
		Excluded:          excluded,
		ReasoningFailures: failures,
	}, nil
}

// aggregateAndEvaluate fans entities out across the worker pool. Entities
// share no state, so each goroutine owns its partition end to end; results
// are merged and re-sorted by original input index so downstream ordering
// never depends on scheduling.
func (o *Orchestrator) aggregateAndEvaluate(
	ctx context.Context,
	partitions map[string][]domain.Transaction,
	median float64,
) ([]domain.ScoredTransaction, error) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(o.entityWorkers)

	var (
		mu     sync.Mutex
		scored []domain.ScoredTransaction
	)

	for entity, seq := range partitions {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("pipeline: aggregate entity %s: %w", entity, err)
			}

			out := o.aggregator.AggregateEntity(seq, median)
			for i := range out {
				out[i].Rules = o.evaluator.Evaluate(out[i])
				out[i].Flagged = len(out[i].Rules) > 0
				out[i].State = domain.StateEvaluated
			}

			mu.Lock()
			scored = append(scored, out...)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(scored, func(i, j int) bool {
		return scored[i].Index < scored[j].Index
	})
	return scored, nil
}

// reasonAndVerify requests reasoning for flagged transactions under the
// bounded pool, synthesizes the canonical clear result for the rest, and
// builds the final record for every transaction in place.
func (o *Orchestrator) reasonAndVerify(
	ctx context.Context,
	scored []domain.ScoredTransaction,
) ([]domain.ResultRecord, int, int, error) {
	records := make([]domain.ResultRecord, len(scored))
	failures := make([]bool, len(scored))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.reasoningWorkers)

	flagged := 0
	for i := range scored {
		st := scored[i]

		if !st.Flagged {
			st.State = domain.StateSkipped
			records[i] = BuildRecord(st, domain.ClearOutput, domain.VerificationSkipped)
			continue
		}
		flagged++

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return fmt.Errorf("pipeline: reasoning txn %d: %w", st.ID, err)
			}

			outcome := o.reasoner.Reason(gctx, reasoningRequest(st), st.Rules)
			if outcome.Failed() {
				failures[i] = true
				o.logger.WarnContext(gctx, "reasoning degraded",
					slog.Int64("txn_id", st.ID),
					slog.String("entity_id", st.EntityID),
					slog.String("error", outcome.Err.Error()),
				)
			}
			st.State = domain.StateVerified

			verdict := o.verifier.Verify(outcome.Output)
			records[i] = BuildRecord(st, outcome.Output, verdict)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, 0, 0, err
	}

	failureCount := 0
	for _, f := range failures {
		if f {
			failureCount++
		}
	}
	return records, failureCount, flagged, nil
}

// reasoningRequest assembles the evidence payload for the reasoning service.
// Absent enrichments collapse to zero values on the wire; the service
// contract has no notion of missing fields.
func reasoningRequest(st domain.ScoredTransaction) domain.ReasoningRequest {
	req := domain.ReasoningRequest{
		Amount:          st.Amount,
		TxnHour:         st.Flags.TxnHour,
		MerchantMCC:     st.MCC,
		UnusualLocation: st.Flags.UnusualLocation,
	}
	if st.Flags.DebtToIncomeRatio != nil {
		req.DebtToIncomeRatio = *st.Flags.DebtToIncomeRatio
	}
	if st.CardOnDarkWeb != nil {
		req.CardOnDarkWeb = *st.CardOnDarkWeb
	}
	return req
}

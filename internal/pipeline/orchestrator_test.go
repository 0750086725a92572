package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oversight-labs/amlsentry/internal/domain"
	"github.com/oversight-labs/amlsentry/internal/engine"
	"github.com/oversight-labs/amlsentry/internal/verify"
)

type stubReasoner struct {
	calls   atomic.Int64
	outcome domain.ReasoningOutcome
	delay   time.Duration
}

func (s *stubReasoner) Reason(ctx context.Context, req domain.ReasoningRequest, rules []domain.RuleCode) domain.ReasoningOutcome {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
		}
	}
	return s.outcome
}

func newTestOrchestrator(r domain.Reasoner) *Orchestrator {
	th := engine.DefaultThresholds()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewOrchestrator(engine.NewAggregator(th), engine.NewEvaluator(th), r, verify.New(), 4, 4, logger)
}

func plainTxn(id int64, entity string, at time.Time, amount float64, index int) domain.Transaction {
	return domain.Transaction{
		ID:         id,
		EntityID:   entity,
		CardID:     "card-1",
		Timestamp:  at,
		Amount:     amount,
		MerchantID: "m-1",
		MCC:        "5411",
		Index:      index,
	}
}

func TestScore_EmptyBatch(t *testing.T) {
	o := newTestOrchestrator(&stubReasoner{})
	_, err := o.Score(context.Background(), nil)
	require.ErrorIs(t, err, domain.ErrEmptyBatch)
}

func TestScore_CleanTransactionSkipsReasoning(t *testing.T) {
	r := &stubReasoner{}
	o := newTestOrchestrator(r)

	at := time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC)
	out, err := o.Score(context.Background(), []domain.Transaction{
		plainTxn(1, "client-1", at, 42.50, 0),
	})
	require.NoError(t, err)
	require.Len(t, out.Records, 1)

	rec := out.Records[0]
	assert.Empty(t, rec.Rules)
	assert.False(t, rec.Flagged)
	assert.Equal(t, domain.ClearOutput, rec.LLMOutput)
	assert.Equal(t, domain.VerificationSkipped, rec.Verification)
	assert.Equal(t, int64(0), r.calls.Load(), "clean transactions must not reach the reasoning service")
	assert.Equal(t, 0, out.Flagged)
	assert.Equal(t, 0, out.ReasoningFailures)
}

func TestScore_StructuringBatchReasonedAndVerified(t *testing.T) {
	r := &stubReasoner{outcome: domain.ReasoningOutcome{
		Output: "The repeated small deposits suggest structuring to avoid the reporting threshold; the elevated debt load is consistent with high DTI pressure.",
	}}
	o := newTestOrchestrator(r)

	base := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	batch := make([]domain.Transaction, 0, 5)
	for i := 0; i < 5; i++ {
		batch = append(batch, plainTxn(int64(i+1), "client-1", base.Add(time.Duration(i)*time.Hour), 9500, i))
	}

	out, err := o.Score(context.Background(), batch)
	require.NoError(t, err)
	require.Len(t, out.Records, 5)

	// The fourth transaction has three small predecessors inside 24h.
	rec := out.Records[3]
	assert.Contains(t, rec.Rules, domain.RuleStructuringSmurfing)
	assert.True(t, rec.Flagged)
	assert.Equal(t, domain.VerificationPass, rec.Verification)
	assert.Positive(t, r.calls.Load())
	assert.Equal(t, out.Flagged, countFlagged(out.Records))
}

func TestScore_ReasoningFailureDegrades(t *testing.T) {
	r := &stubReasoner{outcome: domain.ReasoningOutcome{
		Output:  "LLM call failed: context deadline exceeded",
		Failure: domain.ReasoningTimeout,
		Err:     errors.New("context deadline exceeded"),
	}}
	o := newTestOrchestrator(r)

	base := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	batch := make([]domain.Transaction, 0, 4)
	for i := 0; i < 4; i++ {
		batch = append(batch, plainTxn(int64(i+1), "client-1", base.Add(time.Duration(i)*time.Hour), 9500, i))
	}

	out, err := o.Score(context.Background(), batch)
	require.NoError(t, err, "reasoning failures must not fail the run")

	rec := out.Records[3]
	assert.True(t, rec.Flagged)
	assert.True(t, strings.HasPrefix(rec.LLMOutput, "LLM call failed:"))
	assert.Equal(t, domain.VerificationWeak, rec.Verification)
	assert.Equal(t, out.Flagged, out.ReasoningFailures)
}

func TestScore_DeterministicOrderingAcrossEntities(t *testing.T) {
	r := &stubReasoner{outcome: domain.ReasoningOutcome{Output: "debt pressure explains the flag"}, delay: time.Millisecond}
	o := newTestOrchestrator(r)

	base := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	var batch []domain.Transaction
	for i := 0; i < 40; i++ {
		entity := "client-a"
		if i%3 == 0 {
			entity = "client-b"
		} else if i%3 == 1 {
			entity = "client-c"
		}
		batch = append(batch, plainTxn(int64(100+i), entity, base.Add(time.Duration(i)*time.Minute), 9000, i))
	}

	out, err := o.Score(context.Background(), batch)
	require.NoError(t, err)
	require.Len(t, out.Records, 40)

	for i, rec := range out.Records {
		assert.Equal(t, i, rec.Position, "record %d out of order", i)
		assert.Equal(t, int64(100+i), rec.TransactionID)
	}
}

func TestScore_ExcludesZeroTimestamps(t *testing.T) {
	o := newTestOrchestrator(&stubReasoner{})

	at := time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC)
	out, err := o.Score(context.Background(), []domain.Transaction{
		plainTxn(1, "client-1", at, 50, 0),
		{ID: 2, EntityID: "client-1", Amount: 60, Index: 1}, // zero timestamp
	})
	require.NoError(t, err)
	assert.Len(t, out.Records, 1)
	assert.Equal(t, 1, out.Excluded)
}

func TestBuildRecord_ExtraFields(t *testing.T) {
	income := 52000.0
	dti := 0.85
	age := 12
	st := domain.ScoredTransaction{
		Transaction: domain.Transaction{
			ID:         7,
			EntityID:   "client-9",
			CardID:     "card-3",
			Timestamp:  time.Date(2024, 6, 3, 10, 30, 0, 0, time.UTC), // a Monday
			Amount:     1250.50,
			MerchantID: "m-2",
			MCC:        "6011",
			YearlyIncome: &income,
		},
		Signals: domain.WindowedSignals{SmallAmount24hCount: 2, PriorTxnCount: 5},
		Flags: domain.DerivedFlags{
			TxnHour:           10,
			AccountAgeDays:    &age,
			DebtToIncomeRatio: &dti,
			HighRiskMCC:       true,
		},
		Rules:   []domain.RuleCode{domain.RuleHighRiskMCC, domain.RuleHighDTI},
		Flagged: true,
	}

	rec := BuildRecord(st, "debt load is high", domain.VerificationPass)

	assert.Equal(t, int64(7), rec.TransactionID)
	assert.Equal(t, "client-9", rec.Extra["client_id"])
	assert.Equal(t, "2024-06-03 10:30:00", rec.Extra["date"])
	assert.Equal(t, int64(10), rec.Extra["txn_hour"])
	assert.Equal(t, int64(0), rec.Extra["txn_day"], "Monday maps to 0")
	assert.Equal(t, int64(2), rec.Extra["small_tx_24h_count"])
	assert.Equal(t, int64(5), rec.Extra["previous_tx_count"])
	assert.Equal(t, int64(12), rec.Extra["account_age_days"])
	assert.Equal(t, 0.85, rec.Extra["debt_to_income_ratio"])
	assert.Equal(t, int64(52000), rec.Extra["yearly_income"], "whole-dollar figures stay integral")
	assert.Equal(t, true, rec.Extra["high_risk_mcc_flag"])
	assert.NotContains(t, rec.Extra, "total_debt", "absent enrichment is omitted, not null")
	assert.NotContains(t, rec.Extra, "errors")
}

func countFlagged(records []domain.ResultRecord) int {
	n := 0
	for _, r := range records {
		if r.Flagged {
			n++
		}
	}
	return n
}

package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oversight-labs/amlsentry/internal/domain"
)

func scored(flags domain.DerivedFlags) domain.ScoredTransaction {
	return domain.ScoredTransaction{
		Transaction: domain.Transaction{ID: 1, EntityID: "C1", Timestamp: t0},
		Flags:       flags,
		State:       domain.StateEnriched,
	}
}

func TestEvaluate_NoFlagsNoRules(t *testing.T) {
	ev := NewEvaluator(DefaultThresholds())

	rules := ev.Evaluate(scored(domain.DerivedFlags{}))

	assert.Empty(t, rules)
}

func TestEvaluate_PreservesEnumerationOrder(t *testing.T) {
	ev := NewEvaluator(DefaultThresholds())

	dti := 0.95
	st := scored(domain.DerivedFlags{
		Structuring:           true,
		DormantSuddenActivity: true,
		HighRiskMCC:           true,
		DebtToIncomeRatio:     &dti,
		ErrorPresent:          true,
		UnusualHighVolume:     true,
	})

	rules := ev.Evaluate(st)

	assert.Equal(t, []domain.RuleCode{
		domain.RuleStructuringSmurfing,
		domain.RuleUnusualHighVolume,
		domain.RuleDormantSuddenActivity,
		domain.RuleHighRiskMCC,
		domain.RuleHighDTI,
		domain.RuleErrorTransaction,
	}, rules)
}

func TestEvaluate_IsPure(t *testing.T) {
	ev := NewEvaluator(DefaultThresholds())

	st := scored(domain.DerivedFlags{Structuring: true, RapidFundsMovement: true})

	first := ev.Evaluate(st)
	second := ev.Evaluate(st)

	assert.Equal(t, first, second)
}

func TestEvaluate_DTIThresholdIsStrict(t *testing.T) {
	ev := NewEvaluator(DefaultThresholds())

	at := 0.8
	rules := ev.Evaluate(scored(domain.DerivedFlags{DebtToIncomeRatio: &at}))
	assert.Empty(t, rules, "exactly 0.8 does not trigger")

	above := 0.81
	rules = ev.Evaluate(scored(domain.DerivedFlags{DebtToIncomeRatio: &above}))
	assert.Equal(t, []domain.RuleCode{domain.RuleHighDTI}, rules)
}

func TestEvaluate_CardCompromisedReadsTransactionField(t *testing.T) {
	ev := NewEvaluator(DefaultThresholds())

	st := scored(domain.DerivedFlags{})
	compromised := true
	st.CardOnDarkWeb = &compromised

	rules := ev.Evaluate(st)
	assert.Equal(t, []domain.RuleCode{domain.RuleCardCompromised}, rules)

	clean := false
	st.CardOnDarkWeb = &clean
	assert.Empty(t, ev.Evaluate(st), "present-but-false stays silent")

	st.CardOnDarkWeb = nil
	assert.Empty(t, ev.Evaluate(st), "absent stays silent")
}

func TestEvaluate_AllRuleCodesReachable(t *testing.T) {
	ev := NewEvaluator(DefaultThresholds())

	dti := 0.9
	st := scored(domain.DerivedFlags{
		HighRiskJurisdiction:  true,
		Structuring:           true,
		RapidFundsMovement:    true,
		AccountTypeMismatch:   true,
		RepeatedCounterparty:  true,
		HighRiskChannel:       true,
		UnusualHighVolume:     true,
		BeneficiarySanctioned: true,
		DormantSuddenActivity: true,
		HighAmount:            true,
		HighRiskMCC:           true,
		DebtToIncomeRatio:     &dti,
		ErrorPresent:          true,
	})
	compromised := true
	st.CardOnDarkWeb = &compromised

	rules := ev.Evaluate(st)

	require.Equal(t, domain.AllRuleCodes, rules,
		"every code fires and the order matches the enumeration")
}

func TestEndToEnd_ScenarioB(t *testing.T) {
	// Entity C2: account opened 10 days before the reference date, one
	// 7000 transaction. R3 must be present.
	agg := NewAggregator(DefaultThresholds())
	ev := NewEvaluator(DefaultThresholds())

	opened := time.Date(2024, 12, 22, 0, 0, 0, 0, time.UTC)
	tx := domain.Transaction{
		ID: 7, EntityID: "C2", Timestamp: t0, Amount: 7000,
		MerchantID: "M9", AccountOpenDate: &opened,
	}

	out := agg.AggregateEntity([]domain.Transaction{tx}, 0)
	rules := ev.Evaluate(out[0])

	assert.Contains(t, rules, domain.RuleRapidFundsMovement)
}

func TestEndToEnd_ScenarioA(t *testing.T) {
	agg := NewAggregator(DefaultThresholds())
	ev := NewEvaluator(DefaultThresholds())

	amounts := []float64{500, 800, 200, 300}
	seq := make([]domain.Transaction, len(amounts))
	for i, amt := range amounts {
		seq[i] = domain.Transaction{
			ID: int64(i + 1), EntityID: "C1",
			Timestamp:  t0.Add(time.Duration(i) * time.Hour),
			Amount:     amt,
			MerchantID: "M1",
			Index:      i,
		}
	}

	out := agg.AggregateEntity(seq, MedianAmount(seq))
	rules := ev.Evaluate(out[3])

	assert.Contains(t, rules, domain.RuleStructuringSmurfing)
}

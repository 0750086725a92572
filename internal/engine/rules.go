package engine

import "github.com/oversight-labs/amlsentry/internal/domain"

// Evaluator maps a scored transaction's signals and flags to the ordered
// list of triggered rule codes. Evaluation is pure: identical input yields
// an identical, identically-ordered list.
type Evaluator struct {
	th Thresholds
}

// NewEvaluator creates an Evaluator with the given thresholds.
func NewEvaluator(th Thresholds) *Evaluator {
	return &Evaluator{th: th}
}

// Evaluate returns the triggered rule codes in the fixed enumeration order
// (R1..R9, then the legacy codes). The output order never depends on which
// subset of predicates is true.
func (e *Evaluator) Evaluate(st domain.ScoredTransaction) []domain.RuleCode {
	f := st.Flags
	var rules []domain.RuleCode

	if f.HighRiskJurisdiction {
		rules = append(rules, domain.RuleHighRiskJurisdiction)
	}
	if f.Structuring {
		rules = append(rules, domain.RuleStructuringSmurfing)
	}
	if f.RapidFundsMovement {
		rules = append(rules, domain.RuleRapidFundsMovement)
	}
	if f.AccountTypeMismatch {
		rules = append(rules, domain.RuleAccountTypeMismatch)
	}
	if f.RepeatedCounterparty {
		rules = append(rules, domain.RuleRepeatedCounterparties)
	}
	if f.HighRiskChannel {
		rules = append(rules, domain.RuleHighRiskChannel)
	}
	if f.UnusualHighVolume {
		rules = append(rules, domain.RuleUnusualHighVolume)
	}
	if f.BeneficiarySanctioned {
		rules = append(rules, domain.RuleBeneficiarySanctioned)
	}
	if f.DormantSuddenActivity {
		rules = append(rules, domain.RuleDormantSuddenActivity)
	}
	if f.HighAmount {
		rules = append(rules, domain.RuleHighAmount)
	}
	if f.HighRiskMCC {
		rules = append(rules, domain.RuleHighRiskMCC)
	}
	if f.DebtToIncomeRatio != nil && *f.DebtToIncomeRatio > e.th.HighDTIMin {
		rules = append(rules, domain.RuleHighDTI)
	}
	if f.ErrorPresent {
		rules = append(rules, domain.RuleErrorTransaction)
	}
	if st.CardOnDarkWeb != nil && *st.CardOnDarkWeb {
		rules = append(rules, domain.RuleCardCompromised)
	}

	return rules
}

package engine

import (
	"strings"

	"github.com/oversight-labs/amlsentry/internal/domain"
)

// Aggregator computes sliding-window signals and derived flags over one
// entity's ordered transaction sequence. It is stateless across entities and
// safe to share between goroutines.
type Aggregator struct {
	th            Thresholds
	mccSet        map[string]bool
	jurisdictions map[string]bool
	channels      map[string]bool
}

// NewAggregator creates an Aggregator with the given thresholds.
func NewAggregator(th Thresholds) *Aggregator {
	mccs := make(map[string]bool, len(th.HighRiskMCCs))
	for _, m := range th.HighRiskMCCs {
		mccs[m] = true
	}
	jur := make(map[string]bool, len(th.HighRiskJurisdictions))
	for _, j := range th.HighRiskJurisdictions {
		jur[strings.ToUpper(j)] = true
	}
	ch := make(map[string]bool, len(th.HighRiskChannels))
	for _, c := range th.HighRiskChannels {
		ch[strings.ToLower(c)] = true
	}
	return &Aggregator{th: th, mccSet: mccs, jurisdictions: jur, channels: ch}
}

// AggregateEntity walks one entity's time-ordered sequence and fills in
// window counts and derived flags for every transaction. Each window count
// considers only transactions whose timestamp is strictly earlier than the
// current one; a transaction never counts against itself, and neither does
// a tie on the same timestamp.
//
// Both windows advance two monotonic pointers over the pre-sorted sequence,
// so the whole pass is O(n) per entity instead of rescanning history per
// transaction. medianAmount is the batch-wide median backing the
// HIGH_AMOUNT flag.
func (a *Aggregator) AggregateEntity(seq []domain.Transaction, medianAmount float64) []domain.ScoredTransaction {
	n := len(seq)
	out := make([]domain.ScoredTransaction, n)
	if n == 0 {
		return out
	}

	// Whole-history mean of absolute amounts for the volume flag.
	var sumAbs float64
	for _, t := range seq {
		sumAbs += t.AbsAmount()
	}
	meanAbs := sumAbs / float64(n)

	smallStart, smallCount := 0, 0
	cpStart := 0
	cpCounts := make(map[string]int)
	admitted := 0

	for i, t := range seq {
		// Admit every strictly-earlier transaction into both windows.
		// Ties are held back: an event sharing the current timestamp is
		// not a prior and must not count.
		for admitted < i && seq[admitted].Timestamp.Before(t.Timestamp) {
			if seq[admitted].AbsAmount() < a.th.SmallAmountMax {
				smallCount++
			}
			cpCounts[seq[admitted].MerchantID]++
			admitted++
		}

		// Evict everything older than the horizons. The lower bound is
		// inclusive: an event exactly 24h (or 3d) old still counts.
		smallCut := t.Timestamp.Add(-a.th.SmallAmountWindow)
		for smallStart < admitted && seq[smallStart].Timestamp.Before(smallCut) {
			if seq[smallStart].AbsAmount() < a.th.SmallAmountMax {
				smallCount--
			}
			smallStart++
		}
		cpCut := t.Timestamp.Add(-a.th.CounterpartyWindow)
		for cpStart < admitted && seq[cpStart].Timestamp.Before(cpCut) {
			cpCounts[seq[cpStart].MerchantID]--
			cpStart++
		}

		sig := domain.WindowedSignals{
			SmallAmount24hCount:         smallCount,
			RepeatedCounterparty3dCount: cpCounts[t.MerchantID],
			PriorTxnCount:               i,
		}

		out[i] = domain.ScoredTransaction{
			Transaction: t,
			Signals:     sig,
			Flags:       a.deriveFlags(t, sig, meanAbs, medianAmount),
			State:       domain.StateEnriched,
		}
	}

	return out
}

func (a *Aggregator) deriveFlags(t domain.Transaction, sig domain.WindowedSignals, meanAbs, medianAmount float64) domain.DerivedFlags {
	flags := domain.DerivedFlags{
		TxnHour:      t.Timestamp.Hour(),
		ErrorPresent: t.Errors != nil && *t.Errors != "",
		HighRiskMCC:  a.mccSet[t.MCC],
		HighAmount:   t.Amount > medianAmount*a.th.HighAmountMedianMultiplier,
	}

	if t.AccountOpenDate != nil {
		days := int(a.th.ReferenceDate.Sub(*t.AccountOpenDate).Hours() / 24)
		flags.AccountAgeDays = &days
	}
	if t.TotalDebt != nil && t.YearlyIncome != nil && *t.YearlyIncome > 0 {
		ratio := *t.TotalDebt / *t.YearlyIncome
		flags.DebtToIncomeRatio = &ratio
	}

	flags.UnusualLocation = t.MerchantState != "" && t.Address != "" &&
		!strings.EqualFold(t.MerchantState, t.Address)

	abs := t.AbsAmount()

	flags.Structuring = sig.SmallAmount24hCount >= a.th.StructuringMinCount &&
		abs < a.th.SmallAmountMax

	if flags.AccountAgeDays != nil {
		flags.RapidFundsMovement = *flags.AccountAgeDays < a.th.RapidMaxAccountAgeDays &&
			abs > a.th.RapidMinAmount
		flags.DormantSuddenActivity = *flags.AccountAgeDays > a.th.DormantMinAgeDays &&
			sig.PriorTxnCount == 0
	}

	flags.RepeatedCounterparty = sig.RepeatedCounterparty3dCount > a.th.RepeatedCounterpartyMin
	flags.UnusualHighVolume = abs > meanAbs*a.th.UnusualVolumeMultiplier

	// Extension-point signals: false until upstream enrichment supplies
	// the fields.
	if t.JurisdictionCode != nil {
		flags.HighRiskJurisdiction = a.jurisdictions[strings.ToUpper(*t.JurisdictionCode)]
	}
	if t.AccountType != nil && t.CounterpartyAccountType != nil {
		flags.AccountTypeMismatch = !strings.EqualFold(*t.AccountType, *t.CounterpartyAccountType)
	}
	if t.Channel != nil {
		flags.HighRiskChannel = a.channels[strings.ToLower(*t.Channel)]
	}
	if t.BeneficiaryRiskScore != nil {
		flags.BeneficiarySanctioned = *t.BeneficiaryRiskScore > a.th.SanctionScoreMin
	}

	return flags
}

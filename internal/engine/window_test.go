package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oversight-labs/amlsentry/internal/domain"
)

var t0 = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func txn(id int64, entity string, at time.Time, amount float64) domain.Transaction {
	return domain.Transaction{
		ID:         id,
		EntityID:   entity,
		Timestamp:  at,
		Amount:     amount,
		MerchantID: "M1",
		Index:      int(id),
	}
}

func TestAggregateEntity_SingleTransactionHasZeroCounts(t *testing.T) {
	agg := NewAggregator(DefaultThresholds())

	out := agg.AggregateEntity([]domain.Transaction{txn(1, "C3", t0, 42)}, 0)

	require.Len(t, out, 1)
	assert.Equal(t, 0, out[0].Signals.SmallAmount24hCount)
	assert.Equal(t, 0, out[0].Signals.RepeatedCounterparty3dCount)
	assert.Equal(t, 0, out[0].Signals.PriorTxnCount)
	assert.Equal(t, domain.StateEnriched, out[0].State)
}

func TestAggregateEntity_StructuringScenario(t *testing.T) {
	// Four small transactions an hour apart: the fourth sees three small
	// priors inside 24h and is itself small.
	agg := NewAggregator(DefaultThresholds())
	seq := []domain.Transaction{
		txn(1, "C1", t0, 500),
		txn(2, "C1", t0.Add(1*time.Hour), 800),
		txn(3, "C1", t0.Add(2*time.Hour), 200),
		txn(4, "C1", t0.Add(3*time.Hour), 300),
	}

	out := agg.AggregateEntity(seq, 0)

	require.Len(t, out, 4)
	assert.Equal(t, 3, out[3].Signals.SmallAmount24hCount)
	assert.True(t, out[3].Flags.Structuring)
	assert.False(t, out[0].Flags.Structuring, "first transaction has no priors")
	assert.Equal(t, 3, out[3].Signals.PriorTxnCount)
}

func TestAggregateEntity_WindowEvictsOldTransactions(t *testing.T) {
	agg := NewAggregator(DefaultThresholds())
	seq := []domain.Transaction{
		txn(1, "C1", t0, 500),
		txn(2, "C1", t0.Add(30*time.Hour), 800), // outside 24h of txn 3
		txn(3, "C1", t0.Add(31*time.Hour), 200),
	}

	out := agg.AggregateEntity(seq, 0)

	// txn 3 sees only txn 2 inside its 24h window; txn 1 was evicted.
	assert.Equal(t, 1, out[2].Signals.SmallAmount24hCount)
	assert.Equal(t, 2, out[2].Signals.PriorTxnCount)
}

func TestAggregateEntity_WindowLowerBoundInclusive(t *testing.T) {
	agg := NewAggregator(DefaultThresholds())
	seq := []domain.Transaction{
		txn(1, "C1", t0, 500),
		txn(2, "C1", t0.Add(24*time.Hour), 800), // exactly 24h later
	}

	out := agg.AggregateEntity(seq, 0)

	assert.Equal(t, 1, out[1].Signals.SmallAmount24hCount,
		"an event exactly 24h old still counts")
}

func TestAggregateEntity_CurrentTransactionNeverCountsItself(t *testing.T) {
	agg := NewAggregator(DefaultThresholds())
	seq := []domain.Transaction{
		txn(1, "C1", t0, 100),
		txn(2, "C1", t0.Add(time.Minute), 100),
	}

	out := agg.AggregateEntity(seq, 0)

	assert.Equal(t, 0, out[0].Signals.SmallAmount24hCount)
	assert.Equal(t, 1, out[1].Signals.SmallAmount24hCount)
}

func TestAggregateEntity_EqualTimestampPriorsDoNotCount(t *testing.T) {
	// Only strictly-earlier timestamps count toward the window signals; a
	// tie on the same instant is not a prior.
	agg := NewAggregator(DefaultThresholds())
	seq := []domain.Transaction{
		txn(1, "C1", t0, 100),
		txn(2, "C1", t0, 100), // same timestamp, same merchant
		txn(3, "C1", t0.Add(time.Hour), 100),
	}

	out := agg.AggregateEntity(seq, 0)

	assert.Equal(t, 0, out[1].Signals.SmallAmount24hCount)
	assert.Equal(t, 0, out[1].Signals.RepeatedCounterparty3dCount)
	// Prior count stays positional regardless of ties.
	assert.Equal(t, 1, out[1].Signals.PriorTxnCount)

	// Both tied transactions are priors of the later one.
	assert.Equal(t, 2, out[2].Signals.SmallAmount24hCount)
	assert.Equal(t, 2, out[2].Signals.RepeatedCounterparty3dCount)
}

func TestAggregateEntity_RepeatedCounterpartyFiltersMerchant(t *testing.T) {
	agg := NewAggregator(DefaultThresholds())

	seq := make([]domain.Transaction, 0, 8)
	for i := 0; i < 6; i++ {
		tx := txn(int64(i+1), "C1", t0.Add(time.Duration(i)*time.Hour), 50)
		tx.MerchantID = "M_A"
		seq = append(seq, tx)
	}
	other := txn(7, "C1", t0.Add(6*time.Hour), 50)
	other.MerchantID = "M_B"
	seq = append(seq, other)
	last := txn(8, "C1", t0.Add(7*time.Hour), 50)
	last.MerchantID = "M_A"
	seq = append(seq, last)

	out := agg.AggregateEntity(seq, 0)

	// The M_B transaction sees six priors, none to its own merchant.
	assert.Equal(t, 0, out[6].Signals.RepeatedCounterparty3dCount)
	// The final M_A transaction sees all six M_A priors within 3 days.
	assert.Equal(t, 6, out[7].Signals.RepeatedCounterparty3dCount)
	assert.True(t, out[7].Flags.RepeatedCounterparty)
	assert.False(t, out[6].Flags.RepeatedCounterparty)
}

func TestAggregateEntity_WindowCountsAmortized(t *testing.T) {
	// A long, dense sequence exercises the pointer eviction path; counts
	// must match a brute-force recomputation.
	agg := NewAggregator(DefaultThresholds())

	seq := make([]domain.Transaction, 200)
	for i := range seq {
		step := i - i/7 // every 7th shares the previous timestamp
		tx := txn(int64(i+1), "C1", t0.Add(time.Duration(step*95)*time.Minute), float64(100+i))
		if i%3 == 0 {
			tx.MerchantID = "M_X"
		}
		seq[i] = tx
	}

	out := agg.AggregateEntity(seq, 0)

	for i, st := range out {
		small, cp := 0, 0
		for j := 0; j < i; j++ {
			prior := seq[j]
			if !prior.Timestamp.Before(st.Timestamp) {
				continue // ties are not priors
			}
			if !prior.Timestamp.Before(st.Timestamp.Add(-24 * time.Hour)) {
				if prior.AbsAmount() < 10_000 {
					small++
				}
			}
			if !prior.Timestamp.Before(st.Timestamp.Add(-72*time.Hour)) && prior.MerchantID == st.MerchantID {
				cp++
			}
		}
		require.Equal(t, small, st.Signals.SmallAmount24hCount, "small count at %d", i)
		require.Equal(t, cp, st.Signals.RepeatedCounterparty3dCount, "counterparty count at %d", i)
		require.Equal(t, i, st.Signals.PriorTxnCount)
	}
}

func TestDeriveFlags_RapidFundsMovement(t *testing.T) {
	agg := NewAggregator(DefaultThresholds())

	opened := time.Date(2024, 12, 22, 0, 0, 0, 0, time.UTC) // 10 days before reference
	tx := txn(1, "C2", t0, 7000)
	tx.AccountOpenDate = &opened

	out := agg.AggregateEntity([]domain.Transaction{tx}, 0)

	require.NotNil(t, out[0].Flags.AccountAgeDays)
	assert.Equal(t, 10, *out[0].Flags.AccountAgeDays)
	assert.True(t, out[0].Flags.RapidFundsMovement)
}

func TestDeriveFlags_MissingOpenDateMeansNoAgeFlags(t *testing.T) {
	agg := NewAggregator(DefaultThresholds())

	tx := txn(1, "C2", t0, 7000)

	out := agg.AggregateEntity([]domain.Transaction{tx}, 0)

	assert.Nil(t, out[0].Flags.AccountAgeDays)
	assert.False(t, out[0].Flags.RapidFundsMovement)
	assert.False(t, out[0].Flags.DormantSuddenActivity)
}

func TestDeriveFlags_DormantSuddenActivity(t *testing.T) {
	agg := NewAggregator(DefaultThresholds())

	opened := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	first := txn(1, "C5", t0, 100)
	first.AccountOpenDate = &opened
	second := txn(2, "C5", t0.Add(time.Hour), 100)
	second.AccountOpenDate = &opened

	out := agg.AggregateEntity([]domain.Transaction{first, second}, 0)

	assert.True(t, out[0].Flags.DormantSuddenActivity, "first activity on an old account")
	assert.False(t, out[1].Flags.DormantSuddenActivity, "prior activity exists")
}

func TestDeriveFlags_UnusualHighVolume(t *testing.T) {
	agg := NewAggregator(DefaultThresholds())

	// Five transactions of 8 plus a spike of 300: mean abs = 340/6 = 56.67,
	// and 300 > 5*56.67. The mean covers the whole history, spike included.
	seq := make([]domain.Transaction, 5)
	for i := range seq {
		seq[i] = txn(int64(i+1), "C1", t0.Add(time.Duration(i)*time.Hour), 8)
	}
	spike := txn(6, "C1", t0.Add(5*time.Hour), -300) // refunds count by magnitude
	seq = append(seq, spike)

	out := agg.AggregateEntity(seq, 0)

	assert.True(t, out[5].Flags.UnusualHighVolume)
	assert.False(t, out[0].Flags.UnusualHighVolume)

	// At 200 the spike no longer exceeds 5x the mean (mean abs = 40).
	seq[5].Amount = -200
	out = agg.AggregateEntity(seq, 0)
	assert.False(t, out[5].Flags.UnusualHighVolume)
}

func TestDeriveFlags_DebtToIncomeRatio(t *testing.T) {
	agg := NewAggregator(DefaultThresholds())

	debt, income := 90_000.0, 100_000.0
	tx := txn(1, "C1", t0, 100)
	tx.TotalDebt = &debt
	tx.YearlyIncome = &income

	out := agg.AggregateEntity([]domain.Transaction{tx}, 0)

	require.NotNil(t, out[0].Flags.DebtToIncomeRatio)
	assert.InDelta(t, 0.9, *out[0].Flags.DebtToIncomeRatio, 1e-9)

	// Zero income yields no ratio rather than a division blowup.
	zero := 0.0
	tx.YearlyIncome = &zero
	out = agg.AggregateEntity([]domain.Transaction{tx}, 0)
	assert.Nil(t, out[0].Flags.DebtToIncomeRatio)
}

func TestDeriveFlags_ExtensionPointFields(t *testing.T) {
	agg := NewAggregator(DefaultThresholds())

	tx := txn(1, "C1", t0, 100)
	out := agg.AggregateEntity([]domain.Transaction{tx}, 0)
	f := out[0].Flags
	assert.False(t, f.HighRiskJurisdiction)
	assert.False(t, f.AccountTypeMismatch)
	assert.False(t, f.HighRiskChannel)
	assert.False(t, f.BeneficiarySanctioned)

	jur, acct, cparty, channel, score := "KP", "personal", "corporate", "crypto", 0.95
	tx.JurisdictionCode = &jur
	tx.AccountType = &acct
	tx.CounterpartyAccountType = &cparty
	tx.Channel = &channel
	tx.BeneficiaryRiskScore = &score

	out = agg.AggregateEntity([]domain.Transaction{tx}, 0)
	f = out[0].Flags
	assert.True(t, f.HighRiskJurisdiction)
	assert.True(t, f.AccountTypeMismatch)
	assert.True(t, f.HighRiskChannel)
	assert.True(t, f.BeneficiarySanctioned)
}

func TestDeriveFlags_HighAmountUsesBatchMedian(t *testing.T) {
	agg := NewAggregator(DefaultThresholds())

	tx := txn(1, "C1", t0, 400)
	out := agg.AggregateEntity([]domain.Transaction{tx}, 100)
	assert.True(t, out[0].Flags.HighAmount)

	out = agg.AggregateEntity([]domain.Transaction{tx}, 200)
	assert.False(t, out[0].Flags.HighAmount, "400 does not exceed 3x200")
}

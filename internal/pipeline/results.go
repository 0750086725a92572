package pipeline

import (
	"math"
	"time"

	"github.com/oversight-labs/amlsentry/internal/domain"
)

// BuildRecord converts a scored transaction plus its reasoning outcome into
// the final result record. Every non-null enrichment and derived signal goes
// into Extra under its column name; absent fields are omitted rather than
// emitted as null.
func BuildRecord(st domain.ScoredTransaction, llmOutput string, verdict domain.VerificationStatus) domain.ResultRecord {
	extra := make(map[string]any, 32)

	extra["date"] = st.Timestamp.Format("2006-01-02 15:04:05")
	extra["client_id"] = st.EntityID
	putStr(extra, "card_id", st.CardID)
	putStr(extra, "merchant_id", st.MerchantID)
	putStr(extra, "mcc", st.MCC)
	putStr(extra, "merchant_city", st.MerchantCity)
	putStr(extra, "merchant_state", st.MerchantState)
	putStr(extra, "use_chip", st.UseChip)
	if st.Errors != nil {
		putStr(extra, "errors", *st.Errors)
	}

	extra["txn_hour"] = int64(st.Flags.TxnHour)
	extra["txn_day"] = int64(weekdayMondayZero(st.Timestamp))

	extra["small_tx_24h_count"] = int64(st.Signals.SmallAmount24hCount)
	extra["repeated_counterparty_count"] = int64(st.Signals.RepeatedCounterparty3dCount)
	extra["previous_tx_count"] = int64(st.Signals.PriorTxnCount)

	if st.Flags.AccountAgeDays != nil {
		extra["account_age_days"] = int64(*st.Flags.AccountAgeDays)
	}
	if st.Flags.DebtToIncomeRatio != nil {
		extra["debt_to_income_ratio"] = *st.Flags.DebtToIncomeRatio
	}

	putStr(extra, "card_brand", st.CardBrand)
	putStr(extra, "card_type", st.CardType)
	if st.CardOnDarkWeb != nil {
		extra["card_on_dark_web"] = *st.CardOnDarkWeb
	}
	if st.AccountOpenDate != nil {
		extra["acct_open_date"] = st.AccountOpenDate.Format("01/2006")
	}
	putNum(extra, "credit_limit", st.CreditLimit)
	putNum(extra, "yearly_income", st.YearlyIncome)
	putNum(extra, "total_debt", st.TotalDebt)
	putNum(extra, "per_capita_income", st.PerCapitaIncome)
	if st.CreditScore != nil {
		extra["credit_score"] = int64(*st.CreditScore)
	}
	putStr(extra, "address", st.Address)

	if st.JurisdictionCode != nil {
		putStr(extra, "jurisdiction_code", *st.JurisdictionCode)
	}
	if st.AccountType != nil {
		putStr(extra, "account_type", *st.AccountType)
	}
	if st.CounterpartyAccountType != nil {
		putStr(extra, "counterparty_account_type", *st.CounterpartyAccountType)
	}
	if st.Channel != nil {
		putStr(extra, "channel", *st.Channel)
	}
	if st.BeneficiaryRiskScore != nil {
		extra["beneficiary_risk_score"] = *st.BeneficiaryRiskScore
	}

	extra["unusual_location"] = st.Flags.UnusualLocation
	extra["structuring_flag"] = st.Flags.Structuring
	extra["rapid_funds_flag"] = st.Flags.RapidFundsMovement
	extra["repeated_counterparty_flag"] = st.Flags.RepeatedCounterparty
	extra["unusual_volume_flag"] = st.Flags.UnusualHighVolume
	extra["dormant_flag"] = st.Flags.DormantSuddenActivity
	extra["high_amount_flag"] = st.Flags.HighAmount
	extra["high_risk_mcc_flag"] = st.Flags.HighRiskMCC
	extra["error_flag"] = st.Flags.ErrorPresent

	return domain.ResultRecord{
		TransactionID: st.ID,
		Amount:        st.Amount,
		Rules:         st.Rules,
		LLMOutput:     llmOutput,
		Verification:  verdict,
		Extra:         extra,
		Position:      st.Index,
		Flagged:       st.Flagged,
		EntityID:      st.EntityID,
	}
}

// weekdayMondayZero maps time.Weekday (Sunday=0) onto the Monday=0 convention
// the downstream consumers expect.
func weekdayMondayZero(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

func putStr(m map[string]any, key, v string) {
	if v != "" {
		m[key] = v
	}
}

// putNum stores a numeric enrichment, collapsing integral values to int64 so
// whole-dollar figures round-trip without a trailing ".0".
func putNum(m map[string]any, key string, v *float64) {
	if v == nil {
		return
	}
	if *v == math.Trunc(*v) && math.Abs(*v) < 1e15 {
		m[key] = int64(*v)
		return
	}
	m[key] = *v
}

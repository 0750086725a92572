package domain

import "time"

// Transaction is an immutable input record for one card transaction, joined
// with card and account-holder enrichment during ingest. Optional enrichment
// fields are pointers so that "absent" and "present but zero/false" stay
// distinguishable downstream.
type Transaction struct {
	ID         int64
	EntityID   string // client the transaction belongs to
	CardID     string
	Timestamp  time.Time
	Amount     float64 // signed; negative = refund/reversal
	MerchantID string
	MCC        string

	MerchantCity  string
	MerchantState string
	UseChip       string
	Errors        *string

	// Card enrichment.
	CardBrand       string
	CardType        string
	CardOnDarkWeb   *bool
	AccountOpenDate *time.Time
	CreditLimit     *float64

	// Account-holder enrichment.
	Address         string
	YearlyIncome    *float64
	TotalDebt       *float64
	PerCapitaIncome *float64
	CreditScore     *int

	// Extension-point fields. Nothing in the current ingest populates
	// these; rules R1/R4/R6/R8 stay false until an upstream enrichment
	// supplies them.
	JurisdictionCode        *string
	AccountType             *string
	CounterpartyAccountType *string
	Channel                 *string
	BeneficiaryRiskScore    *float64

	// Index is the transaction's position in the original input batch.
	// It drives the stable tie-break for equal timestamps and the final
	// result ordering.
	Index int
}

// AbsAmount returns the magnitude of the transaction amount.
func (t Transaction) AbsAmount() float64 {
	if t.Amount < 0 {
		return -t.Amount
	}
	return t.Amount
}

// WindowedSignals holds the per-transaction look-back aggregates. Each count
// considers only strictly-earlier transactions of the same entity; the
// transaction never counts against itself.
type WindowedSignals struct {
	SmallAmount24hCount         int
	RepeatedCounterparty3dCount int
	PriorTxnCount               int
}

// DerivedFlags holds the engineered boolean signals and intermediate values
// the rule evaluator consumes. Pointer fields are nil when the underlying
// enrichment was absent or unparseable.
type DerivedFlags struct {
	TxnHour           int
	AccountAgeDays    *int
	DebtToIncomeRatio *float64

	UnusualLocation bool
	HighAmount      bool
	HighRiskMCC     bool
	ErrorPresent    bool

	Structuring           bool
	RapidFundsMovement    bool
	RepeatedCounterparty  bool
	UnusualHighVolume     bool
	DormantSuddenActivity bool

	HighRiskJurisdiction  bool
	AccountTypeMismatch   bool
	HighRiskChannel       bool
	BeneficiarySanctioned bool
}

// TxnState tracks a transaction's journey through the scoring pipeline.
// Transitions only move forward; the terminal state is always StateResult.
type TxnState string

const (
	StateRaw       TxnState = "RAW"
	StateEnriched  TxnState = "ENRICHED"
	StateEvaluated TxnState = "EVALUATED"
	StateReasoned  TxnState = "REASONED"
	StateCleared   TxnState = "CLEARED"
	StateVerified  TxnState = "VERIFIED"
	StateSkipped   TxnState = "SKIPPED"
	StateResult    TxnState = "RESULT"
)

// ScoredTransaction is a transaction plus everything the engine derived for
// it. Once built it is write-once; later pipeline stages only read it.
type ScoredTransaction struct {
	Transaction
	Signals WindowedSignals
	Flags   DerivedFlags
	Rules   []RuleCode
	Flagged bool // always == len(Rules) > 0
	State   TxnState
}

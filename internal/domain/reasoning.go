package domain

import "context"

// ReasoningRequest is the evidence payload sent to the external reasoning
// service for one flagged transaction.
type ReasoningRequest struct {
	Amount            float64 `json:"amount"`
	TxnHour           int     `json:"txn_hour"`
	MerchantMCC       string  `json:"merchant_mcc"`
	UnusualLocation   bool    `json:"unusual_location"`
	DebtToIncomeRatio float64 `json:"debt_to_income_ratio"`
	CardOnDarkWeb     bool    `json:"card_on_dark_web"`
}

// ReasoningFailure classifies why a reasoning call produced no model output.
type ReasoningFailure int

const (
	ReasoningOK ReasoningFailure = iota
	ReasoningTimeout
	ReasoningTransportError
	ReasoningBadResponse
)

// ReasoningOutcome is the result of one reasoning call. A failed call still
// carries Output: the degraded placeholder text that flows on to
// verification in place of model output. Callers never see a transport
// error as a Go error; the failure is folded into the outcome.
type ReasoningOutcome struct {
	Output  string
	Failure ReasoningFailure
	// Err holds the underlying cause for observability when Failure is not
	// ReasoningOK. It is context, not control flow.
	Err error
}

// Failed reports whether the call produced degraded placeholder text rather
// than model output.
func (o ReasoningOutcome) Failed() bool {
	return o.Failure != ReasoningOK
}

// Reasoner requests a natural-language explanation for a flagged transaction
// from the external reasoning service.
type Reasoner interface {
	Reason(ctx context.Context, req ReasoningRequest, rules []RuleCode) ReasoningOutcome
}

// Verifier inspects reasoning text and decides whether it actually supports
// the flag.
type Verifier interface {
	Verify(text string) VerificationStatus
}

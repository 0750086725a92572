package domain

import "encoding/json"

// VerificationStatus is the terminal verdict of the reasoning-verification
// stage.
type VerificationStatus string

const (
	VerificationPass VerificationStatus = "PASS"
	VerificationWeak VerificationStatus = "WEAK_REASONING"
	// VerificationSkipped marks transactions that were never flagged, so no
	// reasoning was requested and there was nothing to verify.
	VerificationSkipped VerificationStatus = "SKIPPED"
)

// ClearOutput is the canonical reasoning text attached to transactions that
// triggered no rules.
const ClearOutput = "CLEAR"

// ResultRecord is the write-once output artifact for one scored transaction,
// consumed by the storage and query layers. Extra carries every non-null
// enrichment field by name with normalized value types (timestamps as
// strings, integral numerics as int64, fractional as float64, booleans as
// bool, everything else as string). Absent fields are omitted entirely,
// never emitted as null.
type ResultRecord struct {
	TransactionID int64              `json:"transaction_id"`
	Amount        float64            `json:"amount"`
	Rules         []RuleCode         `json:"rules"`
	LLMOutput     string             `json:"llm_output"`
	Verification  VerificationStatus `json:"verification"`

	Extra map[string]any `json:"-"`

	// Position is the transaction's index in the original input batch; it
	// fixes the result ordering regardless of internal parallelism. Not
	// part of the wire schema.
	Position int    `json:"-"`
	Flagged  bool   `json:"-"`
	EntityID string `json:"-"`
}

// MarshalJSON flattens Extra into the top-level object alongside the fixed
// fields. Fixed field names win on collision.
func (r ResultRecord) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Extra)+5)
	for k, v := range r.Extra {
		out[k] = v
	}
	out["transaction_id"] = r.TransactionID
	out["amount"] = r.Amount
	rules := r.Rules
	if rules == nil {
		rules = []RuleCode{}
	}
	out["rules"] = rules
	out["llm_output"] = r.LLMOutput
	out["verification"] = r.Verification
	return json.Marshal(out)
}

package domain

// RuleCode identifies one AML rule. Codes R1-R9 come from the compliance
// rulebook; the unprefixed codes predate it and are kept for downstream
// consumers that still key on them.
type RuleCode string

const (
	RuleHighRiskJurisdiction   RuleCode = "R1_HIGH_RISK_JURISDICTION"
	RuleStructuringSmurfing    RuleCode = "R2_STRUCTURING_SMURFING"
	RuleRapidFundsMovement     RuleCode = "R3_RAPID_FUNDS_MOVEMENT"
	RuleAccountTypeMismatch    RuleCode = "R4_ACCOUNT_TYPE_MISMATCH"
	RuleRepeatedCounterparties RuleCode = "R5_REPEATED_COUNTERPARTIES"
	RuleHighRiskChannel        RuleCode = "R6_HIGH_RISK_CHANNEL"
	RuleUnusualHighVolume      RuleCode = "R7_UNUSUAL_HIGH_VOLUME"
	RuleBeneficiarySanctioned  RuleCode = "R8_BENEFICIARY_SANCTIONED"
	RuleDormantSuddenActivity  RuleCode = "R9_DORMANT_SUDDEN_ACTIVITY"
	RuleHighAmount             RuleCode = "HIGH_AMOUNT"
	RuleHighRiskMCC            RuleCode = "HIGH_RISK_MCC"
	RuleHighDTI                RuleCode = "HIGH_DTI"
	RuleErrorTransaction       RuleCode = "ERROR_TRANSACTION"
	RuleCardCompromised        RuleCode = "CARD_COMPROMISED"
)

// AllRuleCodes is the fixed evaluation order. Triggered rules always appear
// in this order in a ScoredTransaction, never alphabetically.
var AllRuleCodes = []RuleCode{
	RuleHighRiskJurisdiction,
	RuleStructuringSmurfing,
	RuleRapidFundsMovement,
	RuleAccountTypeMismatch,
	RuleRepeatedCounterparties,
	RuleHighRiskChannel,
	RuleUnusualHighVolume,
	RuleBeneficiarySanctioned,
	RuleDormantSuddenActivity,
	RuleHighAmount,
	RuleHighRiskMCC,
	RuleHighDTI,
	RuleErrorTransaction,
	RuleCardCompromised,
}

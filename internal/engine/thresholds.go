// Package engine implements the temporal feature computation and rule
// evaluation core: per-entity partitioning, sliding-window aggregates, and
// the fixed AML rule set.
package engine

import "time"

// Thresholds holds every tunable constant the engine uses. Defaults mirror
// the compliance rulebook; operators can override them through configuration.
type Thresholds struct {
	// SmallAmountMax is the exclusive upper bound below which a
	// transaction counts as "small" for structuring detection.
	SmallAmountMax    float64
	SmallAmountWindow time.Duration
	// StructuringMinCount is the minimum number of small prior
	// transactions inside the window for the structuring flag.
	StructuringMinCount int

	CounterpartyWindow time.Duration
	// RepeatedCounterpartyMin is the strict lower bound: the flag fires
	// when the window count exceeds it.
	RepeatedCounterpartyMin int

	RapidMaxAccountAgeDays int
	RapidMinAmount         float64

	UnusualVolumeMultiplier    float64
	DormantMinAgeDays          int
	HighAmountMedianMultiplier float64
	HighDTIMin                 float64
	SanctionScoreMin           float64

	// ReferenceDate anchors account_age_days computations for the batch.
	ReferenceDate time.Time

	HighRiskMCCs          []string
	HighRiskJurisdictions []string
	HighRiskChannels      []string
}

// DefaultThresholds returns the rulebook defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		SmallAmountMax:             10_000,
		SmallAmountWindow:          24 * time.Hour,
		StructuringMinCount:        3,
		CounterpartyWindow:         72 * time.Hour,
		RepeatedCounterpartyMin:    5,
		RapidMaxAccountAgeDays:     30,
		RapidMinAmount:             5_000,
		UnusualVolumeMultiplier:    5,
		DormantMinAgeDays:          300,
		HighAmountMedianMultiplier: 3,
		HighDTIMin:                 0.8,
		SanctionScoreMin:           0.9,
		ReferenceDate:              time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		HighRiskMCCs:               []string{"4829", "6011", "6051", "6211"},
		HighRiskJurisdictions:      []string{"IR", "KP", "SY", "RU"},
		HighRiskChannels:           []string{"crypto", "offshore"},
	}
}

package model

import "time"

// ConfidenceTier grades how much trust downstream consumers should place in
// a reconciled score.
type ConfidenceTier string

const (
	TierHigh   ConfidenceTier = "high"
	TierMedium ConfidenceTier = "medium"
	TierLow    ConfidenceTier = "low"
)

// ResultSource records which estimator produced the final value.
type ResultSource string

const (
	SourceRule    ResultSource = "rule"
	SourceLearned ResultSource = "learned"
	SourceBlended ResultSource = "blended"
)

// RuleEstimate is the output of the rule-based calculator. Breakdown maps
// each additive term (material, transport, packaging) to its kgCO2e
// contribution; the terms sum to CO2eKg.
type RuleEstimate struct {
	CO2eKg       float64            `json:"co2e_kg"`
	Breakdown    map[string]float64 `json:"breakdown"`
	TableVersion string             `json:"table_version"`
}

// LearnedEstimate is the output of the learned predictor.
type LearnedEstimate struct {
	CO2eKg       float64 `json:"co2e_kg"`
	Band         string  `json:"band"`
	Confidence   float64 `json:"confidence"` // in [0,1]
	ModelVersion string  `json:"model_version"`
}

// ReconciledResult is the single persisted output of a scoring request. Both
// underlying estimates are retained so disagreements stay auditable.
type ReconciledResult struct {
	ID                    string             `json:"id"`
	Features              ProductFeatures    `json:"features"`
	FinalCO2eKg           float64            `json:"final_co2e_kg"`
	Agreement             bool               `json:"agreement"`
	DisagreementMagnitude float64            `json:"disagreement_magnitude"`
	ConfidenceTier        ConfidenceTier     `json:"confidence_tier"`
	Source                ResultSource       `json:"source"`
	Rule                  RuleEstimate       `json:"rule"`
	Learned               *LearnedEstimate   `json:"learned,omitempty"` // nil when degraded to rule-only
	Breakdown             map[string]float64 `json:"breakdown"`
	Degraded              bool               `json:"degraded"` // learned side timed out or was gated off
	CreatedAt             time.Time          `json:"created_at"`
}

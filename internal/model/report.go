package model

import "time"

// Subgroup dimensions audited for bias.
const (
	SubgroupOrigin   = "origin"
	SubgroupMaterial = "material"
)

// SubgroupAccuracy is the harness's accuracy measurement for one slice of the
// evaluation set. Flagged means the slice fell more than the configured
// margin below overall accuracy. LowSupport marks slices with too few
// evaluation rows for the measurement to be trusted; a flag on such a slice
// is surfaced for review but does not fail the publish gate.
type SubgroupAccuracy struct {
	Dimension  string  `json:"dimension"`
	Group      string  `json:"group"`
	Accuracy   float64 `json:"accuracy"`
	Support    int     `json:"support"` // evaluation rows in the slice
	Flagged    bool    `json:"flagged"`
	LowSupport bool    `json:"low_support,omitempty"`
}

// FeatureWeight pairs a feature name with its learned importance.
type FeatureWeight struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
}

// ValidationReport is the immutable record of one harness run over one model
// candidate. Reports are superseded by later runs, never edited.
type ValidationReport struct {
	ID              string             `json:"id"`
	ModelVersion    string             `json:"model_version"`
	SchemeVersion   string             `json:"scheme_version"`
	DatasetSize     int                `json:"dataset_size"`
	Folds           int                `json:"folds"`
	Seed            int64              `json:"seed"`
	CVF1Mean        float64            `json:"cv_f1_mean"`
	CVF1Std         float64            `json:"cv_f1_std"`
	Accuracy        float64            `json:"accuracy"`
	AccuracyCILow   float64            `json:"accuracy_ci_low"`
	AccuracyCIHigh  float64            `json:"accuracy_ci_high"`
	PValueVsRandom  float64            `json:"p_value_vs_random"`
	Subgroups       []SubgroupAccuracy `json:"subgroups"`
	FeatureRanking  []FeatureWeight    `json:"feature_ranking"`
	Hyperparameters map[string]any     `json:"hyperparameters"`
	GatePassed      bool               `json:"gate_passed"`
	GateReasons     []string           `json:"gate_reasons,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
}

// BiasFlagged reports whether any audited subgroup tripped the bias margin.
func (r *ValidationReport) BiasFlagged() bool {
	for _, s := range r.Subgroups {
		if s.Flagged {
			return true
		}
	}
	return false
}

// FlaggedSubgroups returns the slices that tripped the bias margin.
func (r *ValidationReport) FlaggedSubgroups() []SubgroupAccuracy {
	var out []SubgroupAccuracy
	for _, s := range r.Subgroups {
		if s.Flagged {
			out = append(out, s)
		}
	}
	return out
}

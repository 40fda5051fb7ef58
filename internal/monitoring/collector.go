package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/greenshelf/ecoscore/internal/model"
	"github.com/greenshelf/ecoscore/internal/store"
)

// MetricsSnapshot holds a point-in-time view of scoring health.
type MetricsSnapshot struct {
	// Scoring metrics (within lookback window).
	ResultsTotal    int     `json:"results_total"`
	TierHigh        int     `json:"tier_high"`
	TierMedium      int     `json:"tier_medium"`
	TierLow         int     `json:"tier_low"`
	SourceRule      int     `json:"source_rule"`
	SourceLearned   int     `json:"source_learned"`
	SourceBlended   int     `json:"source_blended"`
	Degraded        int     `json:"degraded"`
	DegradedRate    float64 `json:"degraded_rate"`
	AgreementRate   float64 `json:"agreement_rate"`
	AvgDisagreement float64 `json:"avg_disagreement"`
	AvgFinalCO2eKg  float64 `json:"avg_final_co2e_kg"`

	// Latest validation gate.
	ModelVersion string `json:"model_version,omitempty"`
	GatePassed   bool   `json:"gate_passed"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Compared returns the number of results where both estimators ran, the
// denominator for agreement and disagreement averages.
func (s *MetricsSnapshot) Compared() int {
	return s.ResultsTotal - s.Degraded
}

// Collector gathers metrics from the result store.
type Collector struct {
	store store.Store
}

// NewCollector creates a new metrics collector.
func NewCollector(st store.Store) *Collector {
	return &Collector{store: st}
}

// Collect gathers a snapshot of scoring metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   time.Now().UTC(),
	}

	cutoff := time.Now().UTC().Add(-time.Duration(lookbackHours) * time.Hour)

	// Fetch reconciled results within the window.
	results, err := c.store.ListResults(ctx, store.ResultFilter{
		Since: cutoff,
		Limit: 10000,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list results")
	}

	snap.ResultsTotal = len(results)
	var agreed int
	var compared int
	var totalDisagreement float64
	var totalCO2e float64

	for _, r := range results {
		switch r.ConfidenceTier {
		case model.TierHigh:
			snap.TierHigh++
		case model.TierMedium:
			snap.TierMedium++
		case model.TierLow:
			snap.TierLow++
		}
		switch r.Source {
		case model.SourceRule:
			snap.SourceRule++
		case model.SourceLearned:
			snap.SourceLearned++
		case model.SourceBlended:
			snap.SourceBlended++
		}
		totalCO2e += r.FinalCO2eKg
		if r.Degraded {
			snap.Degraded++
			continue
		}
		compared++
		totalDisagreement += r.DisagreementMagnitude
		if r.Agreement {
			agreed++
		}
	}

	if snap.ResultsTotal > 0 {
		snap.DegradedRate = float64(snap.Degraded) / float64(snap.ResultsTotal)
		snap.AvgFinalCO2eKg = totalCO2e / float64(snap.ResultsTotal)
	}
	if compared > 0 {
		snap.AgreementRate = float64(agreed) / float64(compared)
		snap.AvgDisagreement = totalDisagreement / float64(compared)
	}

	// Latest validation gate.
	rep, err := c.store.LatestReport(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: latest report")
	}
	if rep != nil {
		snap.ModelVersion = rep.ModelVersion
		snap.GatePassed = rep.GatePassed
	}

	return snap, nil
}

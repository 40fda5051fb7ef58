// Package predictor serves learned CO2e estimates from frozen
// gradient-boosted tree artifacts.
package predictor

import (
	"fmt"
	"strings"

	"github.com/greenshelf/ecoscore/internal/feature"
	"github.com/greenshelf/ecoscore/internal/model"
)

// SchemaMismatchError reports feature-order drift between the encoder and a
// model artifact. It must fail loudly: a misaligned model does not crash, it
// silently corrupts every prediction.
type SchemaMismatchError struct {
	WantScheme string
	GotScheme  string
	WantOrder  []string
	GotOrder   []string
}

func (e *SchemaMismatchError) Error() string {
	if e.WantScheme != e.GotScheme {
		return fmt.Sprintf("predictor: artifact trained on scheme %q, encoder emits %q", e.GotScheme, e.WantScheme)
	}
	return fmt.Sprintf("predictor: feature order mismatch: encoder [%s], artifact [%s]",
		strings.Join(e.WantOrder, ","), strings.Join(e.GotOrder, ","))
}

// Predictor is the learned estimator bound to one artifact. Inference is
// deterministic and safe for concurrent use.
type Predictor struct {
	artifact *Artifact
}

// New verifies the artifact's manifest against the encoder and returns a
// ready predictor. A scheme or order mismatch is fatal, never patched over.
func New(artifact *Artifact, enc *feature.Encoder) (*Predictor, error) {
	if err := artifact.Validate(); err != nil {
		return nil, err
	}
	if artifact.SchemeVersion != enc.SchemeVersion() {
		return nil, &SchemaMismatchError{
			WantScheme: enc.SchemeVersion(),
			GotScheme:  artifact.SchemeVersion,
		}
	}
	want := enc.FeatureNames()
	if !equalOrder(want, artifact.FeatureNames) {
		return nil, &SchemaMismatchError{
			WantScheme: enc.SchemeVersion(),
			GotScheme:  artifact.SchemeVersion,
			WantOrder:  want,
			GotOrder:   artifact.FeatureNames,
		}
	}
	return &Predictor{artifact: artifact}, nil
}

// ModelVersion returns the bound artifact's version.
func (p *Predictor) ModelVersion() string {
	return p.artifact.ModelVersion
}

// Artifact returns the bound artifact.
func (p *Predictor) Artifact() *Artifact {
	return p.artifact
}

// Predict runs inference on one encoded vector. The point estimate is the
// probability-weighted mean of the band representative values; confidence is
// the top-class probability.
func (p *Predictor) Predict(v feature.EncodedVector) (model.LearnedEstimate, error) {
	if v.SchemeVersion != p.artifact.SchemeVersion {
		return model.LearnedEstimate{}, &SchemaMismatchError{
			WantScheme: p.artifact.SchemeVersion,
			GotScheme:  v.SchemeVersion,
		}
	}
	if len(v.Values) != len(p.artifact.FeatureNames) {
		return model.LearnedEstimate{}, &SchemaMismatchError{
			WantScheme: p.artifact.SchemeVersion,
			GotScheme:  v.SchemeVersion,
			WantOrder:  p.artifact.FeatureNames,
			GotOrder:   []string{fmt.Sprintf("%d values", len(v.Values))},
		}
	}

	proba := p.artifact.Model.PredictProba(v.Values)

	co2e := 0.0
	band := ""
	top := -1.0
	for _, name := range p.artifact.Bands {
		prob := proba[name]
		co2e += prob * p.artifact.BandValues[name]
		if prob > top {
			top = prob
			band = name
		}
	}

	confidence := top
	if v.LowConfidence {
		// Unknown-bucket inputs cap the reported confidence.
		confidence = minFloat(confidence, 0.5)
	}

	return model.LearnedEstimate{
		CO2eKg:       co2e,
		Band:         band,
		Confidence:   confidence,
		ModelVersion: p.artifact.ModelVersion,
	}, nil
}

func equalOrder(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

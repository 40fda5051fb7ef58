package predictor

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
)

// Artifact is the frozen, versioned form of a trained predictor together
// with its feature-order manifest. Artifacts are immutable once written;
// retraining produces a new version.
type Artifact struct {
	ModelVersion  string             `json:"model_version"`
	SchemeVersion string             `json:"scheme_version"`
	FeatureNames  []string           `json:"feature_names"`
	Bands         []string           `json:"bands"`
	BandValues    map[string]float64 `json:"band_values"` // representative kgCO2e per band, from training means
	Model         *GBTModel          `json:"model"`
	TrainRows     int                `json:"train_rows"`
	TrainedAt     time.Time          `json:"trained_at"`
}

// Validate checks the artifact is internally consistent.
func (a *Artifact) Validate() error {
	if a.ModelVersion == "" {
		return eris.New("predictor: artifact has no model version")
	}
	if a.SchemeVersion == "" {
		return eris.New("predictor: artifact has no scheme version")
	}
	if len(a.FeatureNames) == 0 {
		return eris.New("predictor: artifact has no feature manifest")
	}
	if a.Model == nil {
		return eris.New("predictor: artifact has no model")
	}
	if err := a.Model.Validate(); err != nil {
		return eris.Wrap(err, "predictor: artifact model")
	}
	if len(a.Bands) != len(a.Model.Classes) {
		return eris.New("predictor: artifact bands do not match model classes")
	}
	for _, band := range a.Bands {
		if _, ok := a.BandValues[band]; !ok {
			return eris.Errorf("predictor: band %q has no representative value", band)
		}
	}
	return nil
}

// SaveArtifact writes an artifact as indented JSON.
func SaveArtifact(path string, a *Artifact) error {
	if err := a.Validate(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return eris.Wrap(err, "predictor: marshal artifact")
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return eris.Wrap(err, "predictor: write artifact")
	}
	return nil
}

// LoadArtifact reads and validates an artifact file.
func LoadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "predictor: read artifact")
	}
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, eris.Wrap(err, "predictor: parse artifact")
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}

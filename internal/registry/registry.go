// Package registry owns the published model artifact and validation report
// pair. Publishing is an atomic swap with a single writer; scoring requests
// read the current pair without locking and never observe it half-updated.
// Failing reports are retained on disk but never published.
package registry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/greenshelf/ecoscore/internal/feature"
	"github.com/greenshelf/ecoscore/internal/model"
	"github.com/greenshelf/ecoscore/internal/predictor"
	"github.com/greenshelf/ecoscore/internal/reconcile"
)

const (
	pointerFile = "current.json"
	modelsDir   = "models"
	reportsDir  = "reports"
)

// Published is a fully constructed model/report pair. All fields are set
// before the pair becomes visible to readers.
type Published struct {
	Artifact  *predictor.Artifact
	Report    *model.ValidationReport
	Predictor *predictor.Predictor
}

// pointer is the on-disk record of which pair is live.
type pointer struct {
	ModelVersion string `json:"model_version"`
	ReportID     string `json:"report_id"`
}

// Registry stores versioned model artifacts and validation reports under a
// directory and tracks which pair is currently published.
type Registry struct {
	dir string
	enc *feature.Encoder

	mu      sync.Mutex // serializes writers
	current atomic.Pointer[Published]
}

// New returns a registry rooted at dir. Call Load to pick up a previously
// published pair.
func New(dir string, enc *feature.Encoder) *Registry {
	return &Registry{dir: dir, enc: enc}
}

// Dir returns the registry root.
func (r *Registry) Dir() string {
	return r.dir
}

// Current returns the published pair, or nil when nothing is published.
func (r *Registry) Current() *Published {
	return r.current.Load()
}

// CurrentModel implements reconcile.ModelSource.
func (r *Registry) CurrentModel() (reconcile.Estimator, *model.ValidationReport) {
	pub := r.current.Load()
	if pub == nil {
		return nil, nil
	}
	return reconcile.NewLearnedEstimator(pub.Predictor), pub.Report
}

// Load reads the pointer file and restores the published pair. A registry
// with no pointer file is a cold start, not an error; a pointer that names
// missing or invalid artifacts is fatal.
func (r *Registry) Load() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	raw, err := os.ReadFile(filepath.Join(r.dir, pointerFile))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return eris.Wrap(err, "registry: read pointer file")
	}

	var ptr pointer
	if err := json.Unmarshal(raw, &ptr); err != nil {
		return eris.Wrap(err, "registry: parse pointer file")
	}

	pub, err := r.assemble(ptr)
	if err != nil {
		return err
	}
	r.current.Store(pub)
	zap.L().Info("registry: loaded published model",
		zap.String("model_version", ptr.ModelVersion),
		zap.String("report_id", ptr.ReportID),
	)
	return nil
}

// Publish writes the artifact and report to disk, flips the pointer file,
// and swaps the in-memory pair. It refuses reports that did not pass the
// acceptance gate; the previously published pair stays active on any error.
func (r *Registry) Publish(artifact *predictor.Artifact, report *model.ValidationReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if report == nil || artifact == nil {
		return eris.New("registry: publish requires an artifact and a report")
	}
	if !report.GatePassed {
		return eris.Errorf("registry: report %s failed the acceptance gate: %s", report.ID, strings.Join(report.GateReasons, "; "))
	}
	if report.ModelVersion != artifact.ModelVersion {
		return eris.Errorf("registry: report certifies model %s, artifact is %s", report.ModelVersion, artifact.ModelVersion)
	}
	if err := checkName(artifact.ModelVersion); err != nil {
		return err
	}

	// Verify the artifact against the live encoder before anything lands on
	// disk. A schema mismatch here must never become the published model.
	pred, err := predictor.New(artifact, r.enc)
	if err != nil {
		return eris.Wrap(err, "registry: verify artifact")
	}

	if err := os.MkdirAll(filepath.Join(r.dir, modelsDir), 0o755); err != nil {
		return eris.Wrap(err, "registry: create models dir")
	}
	modelPath := filepath.Join(r.dir, modelsDir, artifact.ModelVersion+".json")
	if err := predictor.SaveArtifact(modelPath, artifact); err != nil {
		return err
	}
	if err := r.saveReportLocked(report); err != nil {
		return err
	}
	if err := r.writePointer(pointer{ModelVersion: artifact.ModelVersion, ReportID: report.ID}); err != nil {
		return err
	}

	r.current.Store(&Published{Artifact: artifact, Report: report, Predictor: pred})
	zap.L().Info("registry: published model",
		zap.String("model_version", artifact.ModelVersion),
		zap.String("report_id", report.ID),
		zap.Int("train_rows", artifact.TrainRows),
	)
	return nil
}

// SaveReport persists a report without publishing it. Failing reports go
// through here so the audit trail survives a rejected model.
func (r *Registry) SaveReport(report *model.ValidationReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saveReportLocked(report)
}

func (r *Registry) saveReportLocked(report *model.ValidationReport) error {
	if report == nil || report.ID == "" {
		return eris.New("registry: report must have an id")
	}
	if err := checkName(report.ID); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Join(r.dir, reportsDir), 0o755); err != nil {
		return eris.Wrap(err, "registry: create reports dir")
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return eris.Wrap(err, "registry: marshal report")
	}
	path := filepath.Join(r.dir, reportsDir, report.ID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrap(err, "registry: write report")
	}
	return nil
}

// Reports returns every retained validation report, newest first.
func (r *Registry) Reports() ([]model.ValidationReport, error) {
	entries, err := os.ReadDir(filepath.Join(r.dir, reportsDir))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "registry: read reports dir")
	}

	reports := make([]model.ValidationReport, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(r.dir, reportsDir, e.Name()))
		if err != nil {
			return nil, eris.Wrapf(err, "registry: read report %s", e.Name())
		}
		var rep model.ValidationReport
		if err := json.Unmarshal(raw, &rep); err != nil {
			return nil, eris.Wrapf(err, "registry: parse report %s", e.Name())
		}
		reports = append(reports, rep)
	}
	sort.Slice(reports, func(i, j int) bool {
		return reports[i].CreatedAt.After(reports[j].CreatedAt)
	})
	return reports, nil
}

func (r *Registry) assemble(ptr pointer) (*Published, error) {
	if ptr.ModelVersion == "" || ptr.ReportID == "" {
		return nil, eris.New("registry: pointer file missing model_version or report_id")
	}

	artifact, err := predictor.LoadArtifact(filepath.Join(r.dir, modelsDir, ptr.ModelVersion+".json"))
	if err != nil {
		return nil, eris.Wrapf(err, "registry: load artifact %s", ptr.ModelVersion)
	}

	raw, err := os.ReadFile(filepath.Join(r.dir, reportsDir, ptr.ReportID+".json"))
	if err != nil {
		return nil, eris.Wrapf(err, "registry: load report %s", ptr.ReportID)
	}
	var report model.ValidationReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, eris.Wrapf(err, "registry: parse report %s", ptr.ReportID)
	}
	if !report.GatePassed {
		return nil, eris.Errorf("registry: pointer names report %s which failed the gate", ptr.ReportID)
	}

	pred, err := predictor.New(artifact, r.enc)
	if err != nil {
		return nil, eris.Wrap(err, "registry: verify artifact")
	}
	return &Published{Artifact: artifact, Report: &report, Predictor: pred}, nil
}

// writePointer replaces the pointer file with a rename so readers of the
// directory never see a torn write.
func (r *Registry) writePointer(ptr pointer) error {
	data, err := json.MarshalIndent(ptr, "", "  ")
	if err != nil {
		return eris.Wrap(err, "registry: marshal pointer")
	}
	tmp := filepath.Join(r.dir, pointerFile+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return eris.Wrap(err, "registry: write pointer temp file")
	}
	if err := os.Rename(tmp, filepath.Join(r.dir, pointerFile)); err != nil {
		return eris.Wrap(err, "registry: swap pointer file")
	}
	return nil
}

func checkName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return eris.Errorf("registry: %q is not a valid artifact name", name)
	}
	return nil
}

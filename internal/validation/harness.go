// Package validation is the offline harness that trains a candidate model,
// measures it with stratified cross-validation, audits it for subgroup bias,
// and decides whether it may be published. The same seed over the same
// corpus reproduces the same metrics and the same gate decision.
package validation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/greenshelf/ecoscore/internal/config"
	"github.com/greenshelf/ecoscore/internal/dataset"
	"github.com/greenshelf/ecoscore/internal/feature"
	"github.com/greenshelf/ecoscore/internal/model"
	"github.com/greenshelf/ecoscore/internal/predictor"
	"github.com/greenshelf/ecoscore/internal/rules"
)

// Harness runs one validation cycle at a time over a labeled corpus.
type Harness struct {
	enc   *feature.Encoder
	table rules.CoefficientTable
	cfg   config.ValidationConfig

	mu sync.Mutex // one active run; the published pair has a single writer
}

// New builds a harness. The coefficient table supplies the CO2e band edges
// that turn measured values into class labels.
func New(enc *feature.Encoder, table rules.CoefficientTable, cfg config.ValidationConfig) *Harness {
	return &Harness{enc: enc, table: table, cfg: cfg}
}

// Result pairs the frozen artifact with the report that judged it. The
// caller decides what to do with a gate failure; the harness never publishes.
type Result struct {
	Artifact *predictor.Artifact
	Report   *model.ValidationReport
}

// Run executes the full cycle: encode, hyperparameter search, cross-validate,
// bias audit, significance test, final fit, gate decision.
func (h *Harness) Run(ctx context.Context, samples []dataset.Labeled) (*Result, error) {
	if !h.mu.TryLock() {
		return nil, eris.New("validation: another run is active")
	}
	defer h.mu.Unlock()

	if len(samples) < h.cfg.Folds*2 {
		return nil, eris.Errorf("validation: %d samples is too few for %d-fold cross-validation", len(samples), h.cfg.Folds)
	}

	X, groups, err := h.encodeAll(samples)
	if err != nil {
		return nil, err
	}
	y := make([]string, len(samples))
	for i, s := range samples {
		y[i] = h.table.BandFor(s.CO2eKg)
	}
	classes := h.presentBands(y)
	if len(classes) < 2 {
		return nil, eris.Errorf("validation: corpus collapses into band %s, nothing to learn", strings.Join(classes, ""))
	}

	zap.L().Info("validation: run started",
		zap.Int("samples", len(samples)),
		zap.Int("folds", h.cfg.Folds),
		zap.Int("search_budget", h.cfg.SearchBudget),
		zap.Int64("seed", h.cfg.Seed),
		zap.Strings("bands", classes),
	)

	rng := rand.New(rand.NewPCG(uint64(h.cfg.Seed), uint64(h.cfg.Seed)))
	folds := stratifiedFolds(y, h.cfg.Folds, rng)

	best, bestF1, err := h.search(ctx, X, y, classes, folds, rng)
	if err != nil {
		return nil, err
	}
	zap.L().Info("validation: search finished",
		zap.Int("rounds", best.Rounds),
		zap.Float64("learning_rate", best.LearningRate),
		zap.Int("max_depth", best.MaxDepth),
		zap.Int("min_leaf", best.MinLeaf),
		zap.Float64("cv_f1_mean", bestF1),
	)

	foldF1s, oof, err := h.crossValidate(ctx, X, y, classes, folds, best)
	if err != nil {
		return nil, err
	}

	correct := 0
	for i := range y {
		if oof[i] == y[i] {
			correct++
		}
	}
	accuracy := float64(correct) / float64(len(y))
	ciLow, ciHigh := wilsonInterval(correct, len(y), 0.95)
	pValue := binomialPValue(correct, len(y), baselineRate(y))

	subgroups := h.subgroupAccuracy(model.SubgroupOrigin, groups.origins, y, oof, accuracy)
	subgroups = append(subgroups, h.subgroupAccuracy(model.SubgroupMaterial, groups.materials, y, oof, accuracy)...)

	final, err := predictor.TrainGBT(X, y, h.enc.FeatureNames(), classes, best)
	if err != nil {
		return nil, eris.Wrap(err, "validation: final fit")
	}
	version, err := modelVersion(final)
	if err != nil {
		return nil, err
	}

	artifact := &predictor.Artifact{
		ModelVersion:  version,
		SchemeVersion: h.enc.SchemeVersion(),
		FeatureNames:  h.enc.FeatureNames(),
		Bands:         classes,
		BandValues:    bandMeans(samples, y, classes),
		Model:         final,
		TrainRows:     len(samples),
		TrainedAt:     time.Now().UTC(),
	}

	report := &model.ValidationReport{
		ID:             uuid.NewString(),
		ModelVersion:   version,
		SchemeVersion:  h.enc.SchemeVersion(),
		DatasetSize:    len(samples),
		Folds:          h.cfg.Folds,
		Seed:           h.cfg.Seed,
		CVF1Mean:       stat.Mean(foldF1s, nil),
		CVF1Std:        stat.StdDev(foldF1s, nil),
		Accuracy:       accuracy,
		AccuracyCILow:  ciLow,
		AccuracyCIHigh: ciHigh,
		PValueVsRandom: pValue,
		Subgroups:      subgroups,
		FeatureRanking: rankFeatures(final.FeatureImportance()),
		Hyperparameters: map[string]any{
			"rounds":        best.Rounds,
			"learning_rate": best.LearningRate,
			"max_depth":     best.MaxDepth,
			"min_leaf":      best.MinLeaf,
		},
		CreatedAt: time.Now().UTC(),
	}
	h.gate(report)

	zap.L().Info("validation: run finished",
		zap.String("model_version", version),
		zap.Float64("accuracy", accuracy),
		zap.Float64("accuracy_ci_low", ciLow),
		zap.Float64("p_value", pValue),
		zap.Bool("gate_passed", report.GatePassed),
		zap.Strings("gate_reasons", report.GateReasons),
	)

	return &Result{Artifact: artifact, Report: report}, nil
}

type groupKeys struct {
	origins   []string
	materials []string
}

func (h *Harness) encodeAll(samples []dataset.Labeled) ([][]float64, groupKeys, error) {
	X := make([][]float64, len(samples))
	keys := groupKeys{
		origins:   make([]string, len(samples)),
		materials: make([]string, len(samples)),
	}
	for i, s := range samples {
		v, err := h.enc.Encode(s.Features)
		if err != nil {
			return nil, keys, eris.Wrapf(err, "validation: encode sample %d", i)
		}
		X[i] = v.Values
		keys.origins[i] = s.Features.NormalizedOrigin()
		keys.materials[i] = string(s.Features.Material)
	}
	return X, keys, nil
}

// presentBands returns the table's band names filtered to the labels that
// actually occur, preserving band order. The model only learns bands the
// corpus can teach.
func (h *Harness) presentBands(y []string) []string {
	seen := make(map[string]bool, len(y))
	for _, label := range y {
		seen[label] = true
	}
	var classes []string
	for _, name := range h.table.BandNames() {
		if seen[name] {
			classes = append(classes, name)
		}
	}
	return classes
}

// search evaluates the default hyperparameters plus seeded random draws from
// a bounded space and keeps the candidate with the best mean macro-F1.
// Strict improvement wins so ties stay with the earlier candidate.
func (h *Harness) search(ctx context.Context, X [][]float64, y, classes []string, folds [][]int, rng *rand.Rand) (predictor.Hyperparams, float64, error) {
	best := predictor.DefaultHyperparams()
	bestF1 := math.Inf(-1)

	for i := 0; i < h.cfg.SearchBudget; i++ {
		params := best
		if i > 0 {
			params = predictor.Hyperparams{
				Rounds:       20 + rng.IntN(41),
				LearningRate: 0.05 + 0.25*rng.Float64(),
				MaxDepth:     2 + rng.IntN(3),
				MinLeaf:      2 + rng.IntN(7),
			}
		}

		f1s, _, err := h.crossValidate(ctx, X, y, classes, folds, params)
		if err != nil {
			return best, bestF1, err
		}
		mean := stat.Mean(f1s, nil)
		if mean > bestF1 {
			best, bestF1 = params, mean
		}
	}
	return best, bestF1, nil
}

// crossValidate trains on every fold complement and predicts the held-out
// fold, returning per-fold macro-F1 and the out-of-fold prediction for every
// sample.
func (h *Harness) crossValidate(ctx context.Context, X [][]float64, y, classes []string, folds [][]int, params predictor.Hyperparams) ([]float64, []string, error) {
	oof := make([]string, len(y))
	f1s := make([]float64, 0, len(folds))

	for fi, holdout := range folds {
		if err := ctx.Err(); err != nil {
			return nil, nil, eris.Wrap(err, "validation: cancelled")
		}
		if len(holdout) == 0 {
			continue
		}

		held := make(map[int]bool, len(holdout))
		for _, i := range holdout {
			held[i] = true
		}
		trainX := make([][]float64, 0, len(y)-len(holdout))
		trainY := make([]string, 0, len(y)-len(holdout))
		for i := range y {
			if !held[i] {
				trainX = append(trainX, X[i])
				trainY = append(trainY, y[i])
			}
		}

		m, err := predictor.TrainGBT(trainX, trainY, h.enc.FeatureNames(), classes, params)
		if err != nil {
			return nil, nil, eris.Wrapf(err, "validation: train fold %d", fi)
		}

		foldTrue := make([]string, 0, len(holdout))
		foldPred := make([]string, 0, len(holdout))
		for _, i := range holdout {
			label, _ := m.Predict(X[i])
			oof[i] = label
			foldTrue = append(foldTrue, y[i])
			foldPred = append(foldPred, label)
		}

		met, err := Evaluate(foldTrue, foldPred, classes)
		if err != nil {
			return nil, nil, eris.Wrapf(err, "validation: evaluate fold %d", fi)
		}
		f1s = append(f1s, met.MacroF1)
	}

	return f1s, oof, nil
}

// subgroupAccuracy slices the out-of-fold predictions by one categorical key
// and measures each slice. Any slice that trips the bias margin is flagged;
// slices below the support threshold additionally carry LowSupport, so the
// gate knows their accuracy is too noisy to act on.
func (h *Harness) subgroupAccuracy(dimension string, keys, yTrue, yPred []string, overall float64) []model.SubgroupAccuracy {
	support := make(map[string]int)
	correct := make(map[string]int)
	for i, key := range keys {
		support[key]++
		if yTrue[i] == yPred[i] {
			correct[key]++
		}
	}

	groups := make([]string, 0, len(support))
	for g := range support {
		groups = append(groups, g)
	}
	sort.Strings(groups)

	out := make([]model.SubgroupAccuracy, 0, len(groups))
	for _, g := range groups {
		acc := float64(correct[g]) / float64(support[g])
		out = append(out, model.SubgroupAccuracy{
			Dimension:  dimension,
			Group:      g,
			Accuracy:   acc,
			Support:    support[g],
			Flagged:    acc < overall-h.cfg.BiasMargin,
			LowSupport: support[g] < h.cfg.MinSubgroupSupport,
		})
	}
	return out
}

func (h *Harness) gate(rep *model.ValidationReport) {
	var reasons []string
	if rep.AccuracyCILow <= h.cfg.AccuracyFloor {
		reasons = append(reasons, fmt.Sprintf("accuracy lower CI bound %.3f not above floor %.3f", rep.AccuracyCILow, h.cfg.AccuracyFloor))
	}
	for _, s := range rep.FlaggedSubgroups() {
		if s.LowSupport {
			continue // surfaced in the report, too noisy to gate on
		}
		reasons = append(reasons, fmt.Sprintf("subgroup %s=%s accuracy %.3f falls %.3f below overall %.3f", s.Dimension, s.Group, s.Accuracy, rep.Accuracy-s.Accuracy, rep.Accuracy))
	}
	if rep.PValueVsRandom >= h.cfg.SignificanceLevel {
		reasons = append(reasons, fmt.Sprintf("p-value %.4f not below significance level %.3f", rep.PValueVsRandom, h.cfg.SignificanceLevel))
	}
	rep.GatePassed = len(reasons) == 0
	rep.GateReasons = reasons
}

// stratifiedFolds shuffles each class's indices with the seeded generator and
// deals them round-robin so every fold keeps roughly the corpus class mix.
// First-seen class order keeps the deal independent of map iteration.
func stratifiedFolds(y []string, k int, rng *rand.Rand) [][]int {
	byClass := make(map[string][]int)
	var order []string
	for i, label := range y {
		if _, ok := byClass[label]; !ok {
			order = append(order, label)
		}
		byClass[label] = append(byClass[label], i)
	}

	folds := make([][]int, k)
	deal := 0
	for _, label := range order {
		idx := byClass[label]
		rng.Shuffle(len(idx), func(a, b int) { idx[a], idx[b] = idx[b], idx[a] })
		for _, i := range idx {
			folds[deal%k] = append(folds[deal%k], i)
			deal++
		}
	}
	return folds
}

// bandMeans computes the representative CO2e per band as the mean measured
// value of the band's corpus rows.
func bandMeans(samples []dataset.Labeled, y []string, classes []string) map[string]float64 {
	sums := make(map[string]float64, len(classes))
	counts := make(map[string]int, len(classes))
	for i, s := range samples {
		sums[y[i]] += s.CO2eKg
		counts[y[i]]++
	}
	out := make(map[string]float64, len(classes))
	for _, c := range classes {
		out[c] = sums[c] / float64(counts[c])
	}
	return out
}

func rankFeatures(importance map[string]float64) []model.FeatureWeight {
	out := make([]model.FeatureWeight, 0, len(importance))
	for name, w := range importance {
		out = append(out, model.FeatureWeight{Name: name, Weight: w})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// baselineRate is the expected accuracy of a guesser that samples labels
// from the empirical class distribution.
func baselineRate(y []string) float64 {
	counts := make(map[string]int)
	for _, label := range y {
		counts[label]++
	}
	n := float64(len(y))
	p := 0.0
	for _, c := range counts {
		f := float64(c) / n
		p += f * f
	}
	return p
}

// binomialPValue is P(X >= correct) for X ~ Binomial(n, p0), the chance a
// baseline guesser matches or beats the observed hit count.
func binomialPValue(correct, n int, p0 float64) float64 {
	if n == 0 || correct <= 0 {
		return 1
	}
	b := distuv.Binomial{N: float64(n), P: p0}
	return b.Survival(float64(correct) - 1)
}

// wilsonInterval is the Wilson score interval for a binomial proportion.
func wilsonInterval(correct, n int, confidence float64) (float64, float64) {
	if n == 0 {
		return 0, 0
	}
	z := distuv.Normal{Mu: 0, Sigma: 1}.Quantile(1 - (1-confidence)/2)
	phat := float64(correct) / float64(n)
	nn := float64(n)

	denom := 1 + z*z/nn
	center := (phat + z*z/(2*nn)) / denom
	half := z * math.Sqrt(phat*(1-phat)/nn+z*z/(4*nn*nn)) / denom

	lo := math.Max(0, center-half)
	hi := math.Min(1, center+half)
	return lo, hi
}

// modelVersion derives the version from the serialized model, so retraining
// on the same data with the same seed names the same artifact.
func modelVersion(m *predictor.GBTModel) (string, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return "", eris.Wrap(err, "validation: hash model")
	}
	sum := sha256.Sum256(data)
	return "gbt-" + hex.EncodeToString(sum[:])[:12], nil
}

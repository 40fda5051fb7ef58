package predictor

import (
	"math"

	"github.com/rotisserie/eris"
)

// Hyperparams are the gradient boosting knobs. They travel with the artifact
// so every published model is reproducible from its dataset.
type Hyperparams struct {
	Rounds       int     `json:"rounds" yaml:"rounds"`
	LearningRate float64 `json:"learning_rate" yaml:"learning_rate"`
	MaxDepth     int     `json:"max_depth" yaml:"max_depth"`
	MinLeaf      int     `json:"min_leaf" yaml:"min_leaf"`
}

// DefaultHyperparams returns the shipped training defaults.
func DefaultHyperparams() Hyperparams {
	return Hyperparams{
		Rounds:       40,
		LearningRate: 0.15,
		MaxDepth:     3,
		MinLeaf:      5,
	}
}

// GBTModel is a multiclass gradient-boosted tree ensemble. Training is full
// batch with deterministic split search, so the same data and hyperparams
// always produce the identical model.
type GBTModel struct {
	Classes      []string           `json:"classes"`
	InitScores   []float64          `json:"init_scores"` // per-class log priors
	Rounds       [][]*treeNode      `json:"rounds"`      // [round][class]
	Params       Hyperparams        `json:"params"`
	FeatureNames []string           `json:"feature_names"`
	Importance   map[string]float64 `json:"importance"`
}

// TrainGBT fits a gradient-boosted classifier with softmax loss. classes
// fixes the output order (callers pass band names in ascending CO2e order);
// every y must be one of them.
func TrainGBT(X [][]float64, y []string, featureNames []string, classes []string, p Hyperparams) (*GBTModel, error) {
	if len(X) == 0 {
		return nil, eris.New("predictor: empty training data")
	}
	if len(X) != len(y) {
		return nil, eris.Errorf("predictor: %d rows but %d labels", len(X), len(y))
	}
	if len(featureNames) != len(X[0]) {
		return nil, eris.Errorf("predictor: %d feature names for %d columns", len(featureNames), len(X[0]))
	}
	if len(classes) < 2 {
		return nil, eris.New("predictor: need at least two classes")
	}
	if p.Rounds < 1 || p.LearningRate <= 0 || p.MaxDepth < 1 || p.MinLeaf < 1 {
		return nil, eris.Errorf("predictor: invalid hyperparams %+v", p)
	}

	classIdx := make(map[string]int, len(classes))
	for i, c := range classes {
		classIdx[c] = i
	}
	labels := make([]int, len(y))
	counts := make([]float64, len(classes))
	for i, label := range y {
		k, ok := classIdx[label]
		if !ok {
			return nil, eris.Errorf("predictor: label %q not in class list", label)
		}
		labels[i] = k
		counts[k]++
	}

	n, numClasses := len(X), len(classes)

	// Laplace-smoothed log priors seed the ensemble.
	init := make([]float64, numClasses)
	for k := range init {
		init[k] = math.Log((counts[k] + 1) / (float64(n) + float64(numClasses)))
	}

	scores := make([][]float64, n)
	for i := range scores {
		scores[i] = append([]float64(nil), init...)
	}

	allIdx := make([]int, n)
	for i := range allIdx {
		allIdx[i] = i
	}

	gains := make([]float64, len(featureNames))
	rounds := make([][]*treeNode, 0, p.Rounds)
	residuals := make([]float64, n)

	for m := 0; m < p.Rounds; m++ {
		roundTrees := make([]*treeNode, numClasses)
		for k := 0; k < numClasses; k++ {
			for i := 0; i < n; i++ {
				prob := softmaxAt(scores[i], k)
				target := 0.0
				if labels[i] == k {
					target = 1.0
				}
				residuals[i] = target - prob
			}
			roundTrees[k] = buildTree(X, residuals, allIdx, 0, p.MaxDepth, p.MinLeaf, gains)
		}
		// Apply the whole round before computing the next gradients.
		for k := 0; k < numClasses; k++ {
			for i := 0; i < n; i++ {
				scores[i][k] += p.LearningRate * roundTrees[k].predict(X[i])
			}
		}
		rounds = append(rounds, roundTrees)
	}

	return &GBTModel{
		Classes:      append([]string(nil), classes...),
		InitScores:   init,
		Rounds:       rounds,
		Params:       p,
		FeatureNames: append([]string(nil), featureNames...),
		Importance:   normalizeGains(featureNames, gains),
	}, nil
}

// Scores returns the raw additive score per class for one sample.
func (m *GBTModel) Scores(x []float64) []float64 {
	scores := append([]float64(nil), m.InitScores...)
	for _, round := range m.Rounds {
		for k, tree := range round {
			scores[k] += m.Params.LearningRate * tree.predict(x)
		}
	}
	return scores
}

// PredictProba returns the softmax class probabilities for one sample.
func (m *GBTModel) PredictProba(x []float64) map[string]float64 {
	scores := m.Scores(x)
	proba := make(map[string]float64, len(m.Classes))
	for k, class := range m.Classes {
		proba[class] = softmaxAt(scores, k)
	}
	return proba
}

// Predict returns the top class and its probability for one sample.
func (m *GBTModel) Predict(x []float64) (string, float64) {
	scores := m.Scores(x)
	bestK := 0
	for k := 1; k < len(scores); k++ {
		if scores[k] > scores[bestK] {
			bestK = k
		}
	}
	return m.Classes[bestK], softmaxAt(scores, bestK)
}

// FeatureImportance returns normalized SSE-reduction importance per feature.
func (m *GBTModel) FeatureImportance() map[string]float64 {
	out := make(map[string]float64, len(m.Importance))
	for k, v := range m.Importance {
		out[k] = v
	}
	return out
}

// Validate checks a model is structurally usable.
func (m *GBTModel) Validate() error {
	var errs []string
	if len(m.Classes) < 2 {
		errs = append(errs, "fewer than two classes")
	}
	if len(m.InitScores) != len(m.Classes) {
		errs = append(errs, "init score count does not match classes")
	}
	if len(m.Rounds) == 0 {
		errs = append(errs, "no boosting rounds")
	}
	for _, round := range m.Rounds {
		if len(round) != len(m.Classes) {
			errs = append(errs, "round tree count does not match classes")
			break
		}
		for _, tree := range round {
			if tree == nil {
				errs = append(errs, "nil tree in ensemble")
				break
			}
		}
	}
	if len(m.FeatureNames) == 0 {
		errs = append(errs, "no feature names")
	}
	if len(errs) > 0 {
		return eris.Errorf("predictor: invalid model: %s", joinErrs(errs))
	}
	return nil
}

func joinErrs(errs []string) string {
	out := errs[0]
	for _, e := range errs[1:] {
		out += "; " + e
	}
	return out
}

// softmaxAt computes the softmax probability of index k with the usual
// max-shift to avoid overflow.
func softmaxAt(scores []float64, k int) float64 {
	maxScore := scores[0]
	for _, s := range scores[1:] {
		if s > maxScore {
			maxScore = s
		}
	}
	sum := 0.0
	for _, s := range scores {
		sum += math.Exp(s - maxScore)
	}
	return math.Exp(scores[k]-maxScore) / sum
}

func normalizeGains(names []string, gains []float64) map[string]float64 {
	total := 0.0
	for _, g := range gains {
		total += g
	}
	out := make(map[string]float64, len(names))
	for i, name := range names {
		if total > 0 {
			out[name] = gains[i] / total
		} else {
			out[name] = 0
		}
	}
	return out
}

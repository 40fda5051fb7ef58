package predictor

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syntheticSet builds a cleanly separable three-class problem on the first
// feature; the second feature is uninformative.
func syntheticSet() (X [][]float64, y []string, names []string, classes []string) {
	names = []string{"signal", "noise"}
	classes = []string{"low", "medium", "high"}

	for i := 0; i < 90; i++ {
		signal := float64(i % 9)
		noise := float64((i * 7) % 5)
		X = append(X, []float64{signal, noise})
		switch {
		case signal < 3:
			y = append(y, "low")
		case signal < 6:
			y = append(y, "medium")
		default:
			y = append(y, "high")
		}
	}
	return X, y, names, classes
}

func smallParams() Hyperparams {
	return Hyperparams{Rounds: 15, LearningRate: 0.3, MaxDepth: 2, MinLeaf: 2}
}

func TestTrainGBT_LearnsSeparableData(t *testing.T) {
	t.Parallel()

	X, y, names, classes := syntheticSet()
	m, err := TrainGBT(X, y, names, classes, smallParams())
	require.NoError(t, err)
	require.NoError(t, m.Validate())

	correct := 0
	for i := range X {
		got, conf := m.Predict(X[i])
		if got == y[i] {
			correct++
		}
		assert.GreaterOrEqual(t, conf, 0.0)
		assert.LessOrEqual(t, conf, 1.0)
	}
	assert.Equal(t, len(X), correct, "separable training data must be fit exactly")

	// Every tree in the ensemble honors the depth cap.
	for _, round := range m.Rounds {
		for _, tree := range round {
			assert.LessOrEqual(t, tree.depth(), smallParams().MaxDepth)
		}
	}
}

func TestTrainGBT_ProbabilitiesSumToOne(t *testing.T) {
	t.Parallel()

	X, y, names, classes := syntheticSet()
	m, err := TrainGBT(X, y, names, classes, smallParams())
	require.NoError(t, err)

	for _, x := range [][]float64{{0, 0}, {4, 2}, {8, 4}} {
		proba := m.PredictProba(x)
		require.Len(t, proba, len(classes))
		sum := 0.0
		for _, p := range proba {
			assert.GreaterOrEqual(t, p, 0.0)
			sum += p
		}
		assert.InDelta(t, 1.0, sum, 1e-9)
	}
}

func TestTrainGBT_Deterministic(t *testing.T) {
	t.Parallel()

	X, y, names, classes := syntheticSet()

	first, err := TrainGBT(X, y, names, classes, smallParams())
	require.NoError(t, err)
	second, err := TrainGBT(X, y, names, classes, smallParams())
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestTrainGBT_FeatureImportance(t *testing.T) {
	t.Parallel()

	X, y, names, classes := syntheticSet()
	m, err := TrainGBT(X, y, names, classes, smallParams())
	require.NoError(t, err)

	imp := m.FeatureImportance()
	assert.Greater(t, imp["signal"], 0.9)
	assert.Less(t, imp["noise"], 0.1)

	total := 0.0
	for _, v := range imp {
		total += v
	}
	assert.InDelta(t, 1.0, total, 1e-9)
}

func TestTrainGBT_InputValidation(t *testing.T) {
	t.Parallel()

	X, y, names, classes := syntheticSet()

	_, err := TrainGBT(nil, nil, names, classes, smallParams())
	assert.Error(t, err)

	_, err = TrainGBT(X, y[:10], names, classes, smallParams())
	assert.Error(t, err)

	_, err = TrainGBT(X, y, []string{"only_one"}, classes, smallParams())
	assert.Error(t, err)

	bad := append([]string(nil), y...)
	bad[0] = "mystery"
	_, err = TrainGBT(X, bad, names, classes, smallParams())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in class list")

	_, err = TrainGBT(X, y, names, classes, Hyperparams{Rounds: 0, LearningRate: 0.1, MaxDepth: 2, MinLeaf: 1})
	assert.Error(t, err)
}

func TestGBTModel_ValidateCatchesDamage(t *testing.T) {
	t.Parallel()

	X, y, names, classes := syntheticSet()
	m, err := TrainGBT(X, y, names, classes, smallParams())
	require.NoError(t, err)

	m.Rounds = nil
	assert.Error(t, m.Validate())
}

func TestBuildTree_RespectsMinLeaf(t *testing.T) {
	t.Parallel()

	X := [][]float64{{1}, {2}, {3}, {4}}
	y := []float64{1, 1, -1, -1}
	idx := []int{0, 1, 2, 3}
	gains := make([]float64, 1)

	// minLeaf of 3 cannot be satisfied on 4 rows, so no split happens.
	tree := buildTree(X, y, idx, 0, 4, 3, gains)
	assert.True(t, tree.Leaf)
	assert.Equal(t, 0, tree.depth())
	assert.InDelta(t, 0.0, tree.Value, 1e-9)

	// With minLeaf 2 the split at 2.5 is found, one level deep.
	tree = buildTree(X, y, idx, 0, 4, 2, gains)
	require.False(t, tree.Leaf)
	assert.Equal(t, 1, tree.depth())
	assert.InDelta(t, 2.5, tree.Threshold, 1e-9)
	assert.InDelta(t, 1.0, tree.predict([]float64{1.5}), 1e-9)
	assert.InDelta(t, -1.0, tree.predict([]float64{3.7}), 1e-9)
}

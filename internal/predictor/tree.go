package predictor

import "sort"

// treeNode is one node of a regression tree fit to boosting residuals.
// Leaves carry the fitted value; internal nodes route on feature <= threshold.
type treeNode struct {
	Feature   int       `json:"feature,omitempty"`
	Threshold float64   `json:"threshold,omitempty"`
	Left      *treeNode `json:"left,omitempty"`
	Right     *treeNode `json:"right,omitempty"`
	Value     float64   `json:"value"`
	Leaf      bool      `json:"leaf"`
}

func (n *treeNode) predict(x []float64) float64 {
	node := n
	for !node.Leaf {
		if x[node.Feature] <= node.Threshold {
			node = node.Left
		} else {
			node = node.Right
		}
	}
	return node.Value
}

func (n *treeNode) depth() int {
	if n == nil || n.Leaf {
		return 0
	}
	l, r := n.Left.depth(), n.Right.depth()
	if l > r {
		return l + 1
	}
	return r + 1
}

// splitResult is the best split found for one node.
type splitResult struct {
	feature   int
	threshold float64
	gain      float64 // SSE reduction
	leftIdx   []int
	rightIdx  []int
}

// buildTree fits a depth-limited regression tree to y over the rows in idx.
// The split search is exhaustive and fully deterministic: features ascend,
// candidate thresholds ascend, strict improvement wins ties to the first
// candidate. gains accumulates per-feature SSE reduction for importance.
func buildTree(X [][]float64, y []float64, idx []int, depth, maxDepth, minLeaf int, gains []float64) *treeNode {
	mean := meanAt(y, idx)
	if depth >= maxDepth || len(idx) < 2*minLeaf {
		return &treeNode{Leaf: true, Value: mean}
	}

	best := findBestSplit(X, y, idx, minLeaf)
	if best == nil {
		return &treeNode{Leaf: true, Value: mean}
	}

	gains[best.feature] += best.gain
	return &treeNode{
		Feature:   best.feature,
		Threshold: best.threshold,
		Left:      buildTree(X, y, best.leftIdx, depth+1, maxDepth, minLeaf, gains),
		Right:     buildTree(X, y, best.rightIdx, depth+1, maxDepth, minLeaf, gains),
	}
}

func findBestSplit(X [][]float64, y []float64, idx []int, minLeaf int) *splitResult {
	numFeatures := len(X[idx[0]])
	parentSSE := sseAt(y, idx)

	var best *splitResult
	order := make([]int, len(idx))

	for f := 0; f < numFeatures; f++ {
		copy(order, idx)
		sort.SliceStable(order, func(a, b int) bool {
			return X[order[a]][f] < X[order[b]][f]
		})

		// Prefix sums over the sorted order let each candidate split cost O(1).
		prefixSum := make([]float64, len(order)+1)
		prefixSq := make([]float64, len(order)+1)
		for i, row := range order {
			prefixSum[i+1] = prefixSum[i] + y[row]
			prefixSq[i+1] = prefixSq[i] + y[row]*y[row]
		}
		total := len(order)

		for i := minLeaf; i <= total-minLeaf; i++ {
			// Only split between distinct feature values.
			if X[order[i-1]][f] == X[order[i]][f] {
				continue
			}
			nL, nR := float64(i), float64(total-i)
			sumL, sumR := prefixSum[i], prefixSum[total]-prefixSum[i]
			sqL, sqR := prefixSq[i], prefixSq[total]-prefixSq[i]
			sseL := sqL - sumL*sumL/nL
			sseR := sqR - sumR*sumR/nR

			gain := parentSSE - (sseL + sseR)
			if best == nil || gain > best.gain {
				threshold := (X[order[i-1]][f] + X[order[i]][f]) / 2
				best = &splitResult{
					feature:   f,
					threshold: threshold,
					gain:      gain,
					leftIdx:   append([]int(nil), order[:i]...),
					rightIdx:  append([]int(nil), order[i:]...),
				}
			}
		}
	}

	if best == nil || best.gain <= 0 {
		return nil
	}
	return best
}

func meanAt(y []float64, idx []int) float64 {
	if len(idx) == 0 {
		return 0
	}
	sum := 0.0
	for _, i := range idx {
		sum += y[i]
	}
	return sum / float64(len(idx))
}

func sseAt(y []float64, idx []int) float64 {
	mean := meanAt(y, idx)
	sse := 0.0
	for _, i := range idx {
		d := y[i] - mean
		sse += d * d
	}
	return sse
}

package validation

import (
	"github.com/rotisserie/eris"
)

// Metrics summarizes classifier quality on one held-out set. Per-class maps
// are keyed by band name; macro averages weigh every class equally so a rare
// band cannot hide behind a common one.
type Metrics struct {
	Accuracy  float64
	MacroF1   float64
	Precision map[string]float64
	Recall    map[string]float64
	F1        map[string]float64
	Support   map[string]int
}

// Evaluate computes accuracy and per-class precision/recall/F1 from paired
// true and predicted labels.
func Evaluate(yTrue, yPred, classes []string) (Metrics, error) {
	if len(yTrue) == 0 {
		return Metrics{}, eris.New("validation: empty evaluation set")
	}
	if len(yTrue) != len(yPred) {
		return Metrics{}, eris.Errorf("validation: %d true labels vs %d predictions", len(yTrue), len(yPred))
	}

	m := Metrics{
		Precision: make(map[string]float64, len(classes)),
		Recall:    make(map[string]float64, len(classes)),
		F1:        make(map[string]float64, len(classes)),
		Support:   make(map[string]int, len(classes)),
	}

	confusion := make(map[string]map[string]int, len(classes))
	correct := 0
	for i := range yTrue {
		actual, predicted := yTrue[i], yPred[i]
		if confusion[actual] == nil {
			confusion[actual] = make(map[string]int)
		}
		confusion[actual][predicted]++
		m.Support[actual]++
		if actual == predicted {
			correct++
		}
	}
	m.Accuracy = float64(correct) / float64(len(yTrue))

	sumF1 := 0.0
	for _, class := range classes {
		tp := confusion[class][class]

		fn := 0
		for pred, n := range confusion[class] {
			if pred != class {
				fn += n
			}
		}
		fp := 0
		for actual, preds := range confusion {
			if actual != class {
				fp += preds[class]
			}
		}

		var precision, recall float64
		if tp+fp > 0 {
			precision = float64(tp) / float64(tp+fp)
		}
		if tp+fn > 0 {
			recall = float64(tp) / float64(tp+fn)
		}
		var f1 float64
		if precision+recall > 0 {
			f1 = 2 * precision * recall / (precision + recall)
		}

		m.Precision[class] = precision
		m.Recall[class] = recall
		m.F1[class] = f1
		sumF1 += f1
	}
	if len(classes) > 0 {
		m.MacroF1 = sumF1 / float64(len(classes))
	}

	return m, nil
}

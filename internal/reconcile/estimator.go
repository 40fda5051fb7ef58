package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/greenshelf/ecoscore/internal/feature"
	"github.com/greenshelf/ecoscore/internal/model"
	"github.com/greenshelf/ecoscore/internal/predictor"
	"github.com/greenshelf/ecoscore/internal/rules"
)

// Estimate is the common envelope every estimator produces. Rule and Learned
// carry the estimator-specific detail for whichever side produced it; the
// reconciler only reads ValueKg and Confidence.
type Estimate struct {
	ValueKg    float64
	Confidence float64
	Rule       *model.RuleEstimate
	Learned    *model.LearnedEstimate
}

// Estimator is the uniform contract both scoring paths implement. Estimates
// must be deterministic for a fixed table or model artifact.
type Estimator interface {
	Name() string
	Estimate(ctx context.Context, p model.ProductFeatures, v feature.EncodedVector) (Estimate, error)
}

// PredictorTimeoutError marks a learned estimate abandoned because it did not
// return within the configured bound. The reconciler recovers by degrading to
// rule-only scoring; it is logged, never returned to the caller.
type PredictorTimeoutError struct {
	Estimator string
	Timeout   time.Duration
}

func (e *PredictorTimeoutError) Error() string {
	return fmt.Sprintf("estimator %s did not return within %s", e.Estimator, e.Timeout)
}

type ruleEstimator struct {
	calc       *rules.Calculator
	confidence float64
}

// NewRuleEstimator wraps the deterministic calculator in the estimator
// contract. The calculator has no notion of its own uncertainty, so the
// caller assigns the baseline confidence used for blending.
func NewRuleEstimator(calc *rules.Calculator, confidence float64) Estimator {
	return &ruleEstimator{calc: calc, confidence: confidence}
}

func (e *ruleEstimator) Name() string { return "rule" }

func (e *ruleEstimator) Estimate(_ context.Context, p model.ProductFeatures, _ feature.EncodedVector) (Estimate, error) {
	re, err := e.calc.Calculate(p)
	if err != nil {
		return Estimate{}, err
	}
	return Estimate{ValueKg: re.CO2eKg, Confidence: e.confidence, Rule: &re}, nil
}

type learnedEstimator struct {
	pred *predictor.Predictor
}

// NewLearnedEstimator wraps a loaded predictor in the estimator contract.
func NewLearnedEstimator(pred *predictor.Predictor) Estimator {
	return &learnedEstimator{pred: pred}
}

func (e *learnedEstimator) Name() string { return "learned" }

func (e *learnedEstimator) Estimate(ctx context.Context, _ model.ProductFeatures, v feature.EncodedVector) (Estimate, error) {
	if err := ctx.Err(); err != nil {
		return Estimate{}, err
	}
	le, err := e.pred.Predict(v)
	if err != nil {
		return Estimate{}, err
	}
	return Estimate{ValueKg: le.CO2eKg, Confidence: le.Confidence, Learned: &le}, nil
}

type estimateOutcome struct {
	est Estimate
	err error
}

// estimateWithTimeout runs est under a hard deadline. The estimator receives
// a context that expires at the deadline; if it does not return in time the
// wait is abandoned and the straggler finishes into a buffered channel.
func estimateWithTimeout(ctx context.Context, est Estimator, p model.ProductFeatures, v feature.EncodedVector, timeout time.Duration) (Estimate, error) {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ch := make(chan estimateOutcome, 1)
	go func() {
		out, err := est.Estimate(tctx, p, v)
		ch <- estimateOutcome{est: out, err: err}
	}()

	select {
	case out := <-ch:
		if out.err != nil && tctx.Err() == context.DeadlineExceeded {
			return Estimate{}, &PredictorTimeoutError{Estimator: est.Name(), Timeout: timeout}
		}
		return out.est, out.err
	case <-tctx.Done():
		if tctx.Err() == context.DeadlineExceeded {
			return Estimate{}, &PredictorTimeoutError{Estimator: est.Name(), Timeout: timeout}
		}
		return Estimate{}, tctx.Err()
	}
}

// Package reconcile compares the rule-based and learned carbon estimates for
// a product and settles on a single reported value with a confidence tier.
// Ties break toward the deterministic calculator: an uncertified, absent, or
// sharply disagreeing learned model never moves the reported number on its
// own.
package reconcile

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/greenshelf/ecoscore/internal/config"
	"github.com/greenshelf/ecoscore/internal/feature"
	"github.com/greenshelf/ecoscore/internal/model"
	"github.com/greenshelf/ecoscore/internal/rules"
)

// ModelSource yields the currently published learned estimator and the
// validation report certifying it. Implementations must be safe for
// concurrent readers; both returns are nil when nothing is published.
type ModelSource interface {
	CurrentModel() (Estimator, *model.ValidationReport)
}

type staticSource struct {
	est Estimator
	rep *model.ValidationReport
}

func (s staticSource) CurrentModel() (Estimator, *model.ValidationReport) {
	return s.est, s.rep
}

// StaticModelSource pins a single estimator and report, for one-shot CLI
// scoring and tests.
func StaticModelSource(est Estimator, rep *model.ValidationReport) ModelSource {
	return staticSource{est: est, rep: rep}
}

// Reconciler runs both estimators for a product and reconciles their outputs.
// Safe for concurrent use; all mutable model state lives behind ModelSource.
type Reconciler struct {
	enc    *feature.Encoder
	rule   Estimator
	models ModelSource
	cfg    config.ReconcileConfig
}

// New builds a reconciler around the shared encoder and calculator. models
// may be nil, which pins the engine to rule-only scoring.
func New(enc *feature.Encoder, calc *rules.Calculator, models ModelSource, cfg config.ReconcileConfig) *Reconciler {
	return &Reconciler{
		enc:    enc,
		rule:   NewRuleEstimator(calc, cfg.RuleBaseConfidence),
		models: models,
		cfg:    cfg,
	}
}

// Reconcile scores one product. Per-request failures are limited to encoding
// and rule-calculator errors; every learned-side failure degrades to a
// rule-only result instead of failing the request.
func (r *Reconciler) Reconcile(ctx context.Context, p model.ProductFeatures) (*model.ReconciledResult, error) {
	vec, err := r.enc.Encode(p)
	if err != nil {
		return nil, eris.Wrap(err, "reconcile: encode product")
	}

	learned, report := r.currentModel()
	if learned == nil || report == nil || !report.GatePassed {
		ruleEst, err := r.rule.Estimate(ctx, p, vec)
		if err != nil {
			return nil, eris.Wrap(err, "reconcile: rule estimate")
		}
		res := r.ruleOnly(p, ruleEst)
		zap.L().Debug("reconcile: rule-only score",
			zap.String("id", res.ID),
			zap.Float64("final_co2e_kg", res.FinalCO2eKg),
			zap.Bool("model_published", learned != nil),
		)
		return res, nil
	}

	g, gCtx := errgroup.WithContext(ctx)

	var ruleEst Estimate
	g.Go(func() error {
		var err error
		ruleEst, err = r.rule.Estimate(gCtx, p, vec)
		if err != nil {
			return eris.Wrap(err, "reconcile: rule estimate")
		}
		return nil
	})

	// The learned side never fails the request: timeouts and predictor
	// errors are recorded and the result degrades to rule-only.
	var learnedEst Estimate
	var learnedErr error
	g.Go(func() error {
		learnedEst, learnedErr = estimateWithTimeout(gCtx, learned, p, vec, r.timeout())
		if learnedErr != nil {
			var te *PredictorTimeoutError
			if errors.As(learnedErr, &te) {
				zap.L().Warn("reconcile: learned estimator timed out",
					zap.String("estimator", te.Estimator),
					zap.Duration("timeout", te.Timeout),
				)
			} else {
				zap.L().Error("reconcile: learned estimator failed",
					zap.String("estimator", learned.Name()),
					zap.Error(learnedErr),
				)
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if learnedErr != nil || learnedEst.Learned == nil {
		return r.ruleOnly(p, ruleEst), nil
	}

	res := r.combine(p, ruleEst, learnedEst)
	zap.L().Debug("reconcile: scored product",
		zap.String("id", res.ID),
		zap.Float64("rule_co2e_kg", ruleEst.ValueKg),
		zap.Float64("learned_co2e_kg", learnedEst.ValueKg),
		zap.Float64("final_co2e_kg", res.FinalCO2eKg),
		zap.Float64("disagreement", res.DisagreementMagnitude),
		zap.String("tier", string(res.ConfidenceTier)),
		zap.String("source", string(res.Source)),
	)
	return res, nil
}

func (r *Reconciler) currentModel() (Estimator, *model.ValidationReport) {
	if r.models == nil {
		return nil, nil
	}
	return r.models.CurrentModel()
}

func (r *Reconciler) timeout() time.Duration {
	return time.Duration(r.cfg.PredictorTimeoutMS) * time.Millisecond
}

// combine settles a result from two completed estimates. Below the
// disagreement threshold the values blend and the tier is high; at or above
// it the rule value is reported unchanged and the learned confidence decides
// between the medium and low tiers.
func (r *Reconciler) combine(p model.ProductFeatures, rule, learned Estimate) *model.ReconciledResult {
	disagreement := math.Abs(rule.ValueKg-learned.ValueKg) / math.Max(rule.ValueKg, r.cfg.EpsilonKg)

	res := r.newResult(p, rule)
	res.Learned = learned.Learned
	res.DisagreementMagnitude = disagreement

	if disagreement < r.cfg.DisagreementThreshold {
		res.Agreement = true
		res.FinalCO2eKg = r.blend(rule, learned)
		res.Source = model.SourceBlended
		res.ConfidenceTier = model.TierHigh
		return res
	}

	res.Agreement = false
	res.FinalCO2eKg = rule.ValueKg
	res.Source = model.SourceRule
	if learned.Confidence >= r.cfg.ConfidenceFloor {
		res.ConfidenceTier = model.TierMedium
	} else {
		res.ConfidenceTier = model.TierLow
	}
	return res
}

func (r *Reconciler) blend(rule, learned Estimate) float64 {
	if r.cfg.BlendPolicy == config.BlendMean {
		return (rule.ValueKg + learned.ValueKg) / 2
	}
	den := rule.Confidence + learned.Confidence
	if den <= 0 {
		return (rule.ValueKg + learned.ValueKg) / 2
	}
	return (rule.ValueKg*rule.Confidence + learned.ValueKg*learned.Confidence) / den
}

// ruleOnly reports the deterministic estimate alone. The tier stays high:
// the calculator is fully reproducible, there is simply no second opinion.
func (r *Reconciler) ruleOnly(p model.ProductFeatures, rule Estimate) *model.ReconciledResult {
	res := r.newResult(p, rule)
	res.FinalCO2eKg = rule.ValueKg
	res.Source = model.SourceRule
	res.ConfidenceTier = model.TierHigh
	res.Degraded = true
	return res
}

func (r *Reconciler) newResult(p model.ProductFeatures, rule Estimate) *model.ReconciledResult {
	res := &model.ReconciledResult{
		ID:        uuid.NewString(),
		Features:  p,
		CreatedAt: time.Now().UTC(),
	}
	if rule.Rule != nil {
		res.Rule = *rule.Rule
		res.Breakdown = rule.Rule.Breakdown
	}
	return res
}

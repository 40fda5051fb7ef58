package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenshelf/ecoscore/internal/config"
	"github.com/greenshelf/ecoscore/internal/feature"
	"github.com/greenshelf/ecoscore/internal/model"
)

type stubEstimator struct {
	name  string
	est   Estimate
	err   error
	delay time.Duration
}

func (s *stubEstimator) Name() string { return s.name }

func (s *stubEstimator) Estimate(ctx context.Context, _ model.ProductFeatures, _ feature.EncodedVector) (Estimate, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return Estimate{}, ctx.Err()
		}
	}
	if s.err != nil {
		return Estimate{}, s.err
	}
	return s.est, nil
}

func ruleStub(value float64) *stubEstimator {
	return &stubEstimator{
		name: "rule",
		est: Estimate{
			ValueKg:    value,
			Confidence: 0.8,
			Rule: &model.RuleEstimate{
				CO2eKg:       value,
				Breakdown:    map[string]float64{"material": value},
				TableVersion: "coef-v1",
			},
		},
	}
}

func learnedStub(value, confidence float64) *stubEstimator {
	return &stubEstimator{
		name: "learned",
		est: Estimate{
			ValueKg:    value,
			Confidence: confidence,
			Learned: &model.LearnedEstimate{
				CO2eKg:       value,
				Band:         "medium",
				Confidence:   confidence,
				ModelVersion: "gbt-test-1",
			},
		},
	}
}

func passingReport() *model.ValidationReport {
	return &model.ValidationReport{ID: "rep-1", ModelVersion: "gbt-test-1", GatePassed: true}
}

func testCfg() config.ReconcileConfig {
	return config.ReconcileConfig{
		DisagreementThreshold: 0.15,
		ConfidenceFloor:       0.7,
		RuleBaseConfidence:    0.8,
		BlendPolicy:           config.BlendConfidenceWeighted,
		PredictorTimeoutMS:    200,
		EpsilonKg:             0.001,
	}
}

func testReconciler(rule Estimator, models ModelSource, cfg config.ReconcileConfig) *Reconciler {
	return &Reconciler{
		enc:    feature.NewEncoder(),
		rule:   rule,
		models: models,
		cfg:    cfg,
	}
}

func sampleProduct() model.ProductFeatures {
	return model.ProductFeatures{
		Material:      model.MaterialPlastic,
		TransportMode: model.TransportSea,
		OriginCountry: "CN",
		WeightKg:      2.0,
		Packaging:     model.PackagingCardboardBox,
		Recyclability: 0.6,
		SizeCategory:  model.SizeM,
		PackSize:      1,
		Quality:       model.QualityStandard,
	}
}

func TestReconcile_AgreementBlends(t *testing.T) {
	t.Parallel()

	src := StaticModelSource(learnedStub(11.2, 0.9), passingReport())
	r := testReconciler(ruleStub(10.0), src, testCfg())

	res, err := r.Reconcile(context.Background(), sampleProduct())
	require.NoError(t, err)

	assert.True(t, res.Agreement)
	assert.InDelta(t, 0.12, res.DisagreementMagnitude, 1e-9)
	assert.Equal(t, model.SourceBlended, res.Source)
	assert.Equal(t, model.TierHigh, res.ConfidenceTier)
	assert.False(t, res.Degraded)

	// Confidence-weighted blend of 10.0 at 0.8 and 11.2 at 0.9.
	assert.InDelta(t, (10.0*0.8+11.2*0.9)/1.7, res.FinalCO2eKg, 1e-9)
	assert.Greater(t, res.FinalCO2eKg, 10.0)
	assert.Less(t, res.FinalCO2eKg, 11.2)

	require.NotNil(t, res.Learned)
	assert.Equal(t, "gbt-test-1", res.Learned.ModelVersion)
	assert.NotEmpty(t, res.ID)
	assert.False(t, res.CreatedAt.IsZero())
}

func TestReconcile_MeanBlend(t *testing.T) {
	t.Parallel()

	cfg := testCfg()
	cfg.BlendPolicy = config.BlendMean
	src := StaticModelSource(learnedStub(11.2, 0.9), passingReport())
	r := testReconciler(ruleStub(10.0), src, cfg)

	res, err := r.Reconcile(context.Background(), sampleProduct())
	require.NoError(t, err)
	assert.InDelta(t, 10.6, res.FinalCO2eKg, 1e-9)
	assert.Equal(t, model.SourceBlended, res.Source)
}

func TestReconcile_DisagreementRuleWins(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		confidence float64
		wantTier   model.ConfidenceTier
	}{
		{name: "confident learned lands medium", confidence: 0.9, wantTier: model.TierMedium},
		{name: "floor is inclusive", confidence: 0.7, wantTier: model.TierMedium},
		{name: "uncertain learned lands low", confidence: 0.5, wantTier: model.TierLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			src := StaticModelSource(learnedStub(25.0, tt.confidence), passingReport())
			r := testReconciler(ruleStub(10.0), src, testCfg())

			res, err := r.Reconcile(context.Background(), sampleProduct())
			require.NoError(t, err)

			assert.False(t, res.Agreement)
			assert.InDelta(t, 1.5, res.DisagreementMagnitude, 1e-9)
			assert.Equal(t, 10.0, res.FinalCO2eKg)
			assert.Equal(t, model.SourceRule, res.Source)
			assert.Equal(t, tt.wantTier, res.ConfidenceTier)
			assert.False(t, res.Degraded)

			// Both estimates stay on the result for downstream display.
			require.NotNil(t, res.Learned)
			assert.InDelta(t, 25.0, res.Learned.CO2eKg, 1e-9)
			assert.InDelta(t, 10.0, res.Rule.CO2eKg, 1e-9)
		})
	}
}

func TestReconcile_NoPublishedModel(t *testing.T) {
	t.Parallel()

	r := testReconciler(ruleStub(10.0), nil, testCfg())

	res, err := r.Reconcile(context.Background(), sampleProduct())
	require.NoError(t, err)

	assert.Equal(t, model.SourceRule, res.Source)
	assert.Equal(t, model.TierHigh, res.ConfidenceTier)
	assert.Equal(t, 10.0, res.FinalCO2eKg)
	assert.True(t, res.Degraded)
	assert.Nil(t, res.Learned)
}

func TestReconcile_GateFailedModelIgnored(t *testing.T) {
	t.Parallel()

	rep := passingReport()
	rep.GatePassed = false
	rep.GateReasons = []string{"accuracy lower CI bound 0.61 below floor 0.70"}
	src := StaticModelSource(learnedStub(11.2, 0.9), rep)
	r := testReconciler(ruleStub(10.0), src, testCfg())

	res, err := r.Reconcile(context.Background(), sampleProduct())
	require.NoError(t, err)

	assert.Equal(t, model.SourceRule, res.Source)
	assert.Equal(t, model.TierHigh, res.ConfidenceTier)
	assert.True(t, res.Degraded)
	assert.Nil(t, res.Learned)
}

func TestReconcile_TimeoutDegrades(t *testing.T) {
	t.Parallel()

	cfg := testCfg()
	cfg.PredictorTimeoutMS = 10
	slow := learnedStub(11.2, 0.9)
	slow.delay = 150 * time.Millisecond
	src := StaticModelSource(slow, passingReport())
	r := testReconciler(ruleStub(10.0), src, cfg)

	start := time.Now()
	res, err := r.Reconcile(context.Background(), sampleProduct())
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 100*time.Millisecond, "reconcile must not wait out the slow estimator")
	assert.Equal(t, model.SourceRule, res.Source)
	assert.Equal(t, model.TierHigh, res.ConfidenceTier)
	assert.True(t, res.Degraded)
	assert.Nil(t, res.Learned)
}

func TestReconcile_LearnedErrorDegrades(t *testing.T) {
	t.Parallel()

	broken := &stubEstimator{name: "learned", err: eris.New("artifact corrupt")}
	src := StaticModelSource(broken, passingReport())
	r := testReconciler(ruleStub(10.0), src, testCfg())

	res, err := r.Reconcile(context.Background(), sampleProduct())
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Equal(t, model.SourceRule, res.Source)
	assert.Equal(t, 10.0, res.FinalCO2eKg)
}

func TestReconcile_RuleErrorFailsRequest(t *testing.T) {
	t.Parallel()

	broken := &stubEstimator{name: "rule", err: eris.New("table missing")}
	src := StaticModelSource(learnedStub(11.2, 0.9), passingReport())
	r := testReconciler(broken, src, testCfg())

	_, err := r.Reconcile(context.Background(), sampleProduct())
	require.Error(t, err)
}

func TestReconcile_EncodingErrorPropagates(t *testing.T) {
	t.Parallel()

	r := testReconciler(ruleStub(10.0), nil, testCfg())
	p := sampleProduct()
	p.TransportMode = ""

	_, err := r.Reconcile(context.Background(), p)
	require.Error(t, err)

	var encErr *feature.EncodingError
	require.True(t, errors.As(err, &encErr))
	assert.Equal(t, "transport_mode", encErr.Field)
}

func TestReconcile_ZeroRuleValueUsesEpsilon(t *testing.T) {
	t.Parallel()

	src := StaticModelSource(learnedStub(0.1, 0.9), passingReport())
	r := testReconciler(ruleStub(0.0), src, testCfg())

	res, err := r.Reconcile(context.Background(), sampleProduct())
	require.NoError(t, err)

	// |0 - 0.1| / max(0, 0.001) = 100, far past the threshold.
	assert.False(t, res.Agreement)
	assert.InDelta(t, 100.0, res.DisagreementMagnitude, 1e-9)
	assert.Equal(t, 0.0, res.FinalCO2eKg)
	assert.Equal(t, model.SourceRule, res.Source)
}

func TestReconcile_BreakdownCarriesRuleTerms(t *testing.T) {
	t.Parallel()

	src := StaticModelSource(learnedStub(11.2, 0.9), passingReport())
	r := testReconciler(ruleStub(10.0), src, testCfg())

	res, err := r.Reconcile(context.Background(), sampleProduct())
	require.NoError(t, err)
	assert.Equal(t, res.Rule.Breakdown, res.Breakdown)
	assert.Equal(t, "coef-v1", res.Rule.TableVersion)
}

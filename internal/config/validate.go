package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Validate checks the configuration needed for the given mode. Modes map to
// CLI commands: "score", "serve", "validate", and "train". Startup fails on
// the first call that returns an error.
func (c *Config) Validate(mode string) error {
	var errs []string

	// Shared estimator settings apply to every mode.
	if c.Reconcile.DisagreementThreshold <= 0 || c.Reconcile.DisagreementThreshold >= 1 {
		errs = append(errs, "reconcile.disagreement_threshold must be in (0, 1)")
	}
	if c.Reconcile.ConfidenceFloor < 0 || c.Reconcile.ConfidenceFloor > 1 {
		errs = append(errs, "reconcile.confidence_floor must be in [0, 1]")
	}
	if c.Reconcile.RuleBaseConfidence <= 0 || c.Reconcile.RuleBaseConfidence > 1 {
		errs = append(errs, "reconcile.rule_base_confidence must be in (0, 1]")
	}
	if c.Reconcile.BlendPolicy != BlendConfidenceWeighted && c.Reconcile.BlendPolicy != BlendMean {
		errs = append(errs, "reconcile.blend_policy must be confidence_weighted or mean")
	}
	if c.Reconcile.PredictorTimeoutMS <= 0 {
		errs = append(errs, "reconcile.predictor_timeout_ms must be > 0")
	}
	if c.Reconcile.EpsilonKg <= 0 {
		errs = append(errs, "reconcile.epsilon_kg must be > 0")
	}
	if c.Rules.DestinationCountry == "" {
		errs = append(errs, "rules.destination_country is required")
	}

	switch mode {
	case "score":
		// No extra requirements; store is optional for one-off scoring.
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be between 1 and 65535")
		}
		if c.Server.RatePerSecond <= 0 {
			errs = append(errs, "server.rate_per_second must be > 0")
		}
		if c.Server.RateBurst < 1 {
			errs = append(errs, "server.rate_burst must be >= 1")
		}
		errs = append(errs, c.storeErrs()...)
		if c.Monitoring.Enabled {
			if c.Monitoring.LookbackWindowHours < 1 {
				errs = append(errs, "monitoring.lookback_window_hours must be >= 1")
			}
			if c.Monitoring.DegradedRateThreshold <= 0 || c.Monitoring.DegradedRateThreshold > 1 {
				errs = append(errs, "monitoring.degraded_rate_threshold must be in (0, 1]")
			}
			if c.Monitoring.AgreementRateFloor < 0 || c.Monitoring.AgreementRateFloor >= 1 {
				errs = append(errs, "monitoring.agreement_rate_floor must be in [0, 1)")
			}
		}
	case "validate", "train":
		if c.Validation.Folds < 2 {
			errs = append(errs, "validation.folds must be >= 2")
		}
		if c.Validation.SearchBudget < 1 {
			errs = append(errs, "validation.search_budget must be >= 1")
		}
		if c.Validation.AccuracyFloor < 0 || c.Validation.AccuracyFloor >= 1 {
			errs = append(errs, "validation.accuracy_floor must be in [0, 1)")
		}
		if c.Validation.BiasMargin <= 0 || c.Validation.BiasMargin >= 1 {
			errs = append(errs, "validation.bias_margin must be in (0, 1)")
		}
		if c.Validation.SignificanceLevel <= 0 || c.Validation.SignificanceLevel >= 1 {
			errs = append(errs, "validation.significance_level must be in (0, 1)")
		}
		if c.Validation.MinSubgroupSupport < 1 {
			errs = append(errs, "validation.min_subgroup_support must be >= 1")
		}
		if c.Registry.Dir == "" {
			errs = append(errs, "registry.dir is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Batch.MaxConcurrentProducts < 1 || c.Batch.MaxConcurrentProducts > 64 {
		errs = append(errs, "batch.max_concurrent_products must be between 1 and 64")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: invalid configuration:\n  %s", strings.Join(errs, "\n  "))
	}
	return nil
}

func (c *Config) storeErrs() []string {
	var errs []string
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q must be sqlite or postgres", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}
	return errs
}

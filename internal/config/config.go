package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Rules      RulesConfig      `yaml:"rules" mapstructure:"rules"`
	Reconcile  ReconcileConfig  `yaml:"reconcile" mapstructure:"reconcile"`
	Validation ValidationConfig `yaml:"validation" mapstructure:"validation"`
	Registry   RegistryConfig   `yaml:"registry" mapstructure:"registry"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"` // postgres only
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"` // postgres only
}

// RulesConfig configures the rule-based calculator.
type RulesConfig struct {
	TablePath          string `yaml:"table_path" mapstructure:"table_path"` // empty = shipped defaults
	DestinationCountry string `yaml:"destination_country" mapstructure:"destination_country"`
}

// Blend policies accepted by ReconcileConfig.BlendPolicy.
const (
	BlendConfidenceWeighted = "confidence_weighted"
	BlendMean               = "mean"
)

// ReconcileConfig configures agreement analysis and blending.
type ReconcileConfig struct {
	DisagreementThreshold float64 `yaml:"disagreement_threshold" mapstructure:"disagreement_threshold"`
	ConfidenceFloor       float64 `yaml:"confidence_floor" mapstructure:"confidence_floor"` // learned confidence separating medium from low on disagreement
	RuleBaseConfidence    float64 `yaml:"rule_base_confidence" mapstructure:"rule_base_confidence"`
	BlendPolicy           string  `yaml:"blend_policy" mapstructure:"blend_policy"` // confidence_weighted or mean
	PredictorTimeoutMS    int     `yaml:"predictor_timeout_ms" mapstructure:"predictor_timeout_ms"`
	EpsilonKg             float64 `yaml:"epsilon_kg" mapstructure:"epsilon_kg"`
}

// ValidationConfig configures the offline validation harness.
type ValidationConfig struct {
	Folds              int     `yaml:"folds" mapstructure:"folds"`
	Seed               int64   `yaml:"seed" mapstructure:"seed"`
	SearchBudget       int     `yaml:"search_budget" mapstructure:"search_budget"`
	AccuracyFloor      float64 `yaml:"accuracy_floor" mapstructure:"accuracy_floor"`
	BiasMargin         float64 `yaml:"bias_margin" mapstructure:"bias_margin"`
	SignificanceLevel  float64 `yaml:"significance_level" mapstructure:"significance_level"`
	MinSubgroupSupport int     `yaml:"min_subgroup_support" mapstructure:"min_subgroup_support"`
}

// RegistryConfig configures where published model artifacts live.
type RegistryConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// BatchConfig configures batch scoring.
type BatchConfig struct {
	MaxConcurrentProducts int `yaml:"max_concurrent_products" mapstructure:"max_concurrent_products"`
}

// ServerConfig configures the scoring API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	RatePerSecond  float64  `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	RateBurst      int      `yaml:"rate_burst" mapstructure:"rate_burst"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// MonitoringConfig configures the background scoring-health checker.
type MonitoringConfig struct {
	Enabled               bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL            string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	LookbackWindowHours   int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	CheckIntervalSecs     int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	DegradedRateThreshold float64 `yaml:"degraded_rate_threshold" mapstructure:"degraded_rate_threshold"`
	AgreementRateFloor    float64 `yaml:"agreement_rate_floor" mapstructure:"agreement_rate_floor"`
	MinSampleSize         int     `yaml:"min_sample_size" mapstructure:"min_sample_size"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ECOSCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "ecoscore.db")
	v.SetDefault("rules.destination_country", "US")
	v.SetDefault("reconcile.disagreement_threshold", 0.15)
	v.SetDefault("reconcile.confidence_floor", 0.7)
	v.SetDefault("reconcile.rule_base_confidence", 0.8)
	v.SetDefault("reconcile.blend_policy", BlendConfidenceWeighted)
	v.SetDefault("reconcile.predictor_timeout_ms", 200)
	v.SetDefault("reconcile.epsilon_kg", 0.001)
	v.SetDefault("validation.folds", 10)
	v.SetDefault("validation.seed", 42)
	v.SetDefault("validation.search_budget", 24)
	v.SetDefault("validation.accuracy_floor", 0.70)
	v.SetDefault("validation.bias_margin", 0.10)
	v.SetDefault("validation.significance_level", 0.05)
	v.SetDefault("validation.min_subgroup_support", 20)
	v.SetDefault("registry.dir", "models")
	v.SetDefault("batch.max_concurrent_products", 8)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_per_second", 25.0)
	v.SetDefault("server.rate_burst", 50)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.degraded_rate_threshold", 0.25)
	v.SetDefault("monitoring.agreement_rate_floor", 0.5)
	v.SetDefault("monitoring.min_sample_size", 20)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

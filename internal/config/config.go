// Package config loads application configuration from file and environment
// and wires the global logger.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/atlasbanco/prospect-engine/internal/monitoring"
	"github.com/atlasbanco/prospect-engine/internal/resilience"
	"github.com/atlasbanco/prospect-engine/internal/scoring"
	"github.com/atlasbanco/prospect-engine/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig            `yaml:"store" mapstructure:"store"`
	Server     ServerConfig           `yaml:"server" mapstructure:"server"`
	Log        LogConfig              `yaml:"log" mapstructure:"log"`
	Scoring    ScoringConfig          `yaml:"scoring" mapstructure:"scoring"`
	Enrichment EnrichmentConfig       `yaml:"enrichment" mapstructure:"enrichment"`
	Monitoring MonitoringConfig       `yaml:"monitoring" mapstructure:"monitoring"`
	Retry      resilience.RetryConfig `yaml:"retry" mapstructure:"retry"`
}

// StoreConfig configures the persistence backend.
type StoreConfig struct {
	// Driver selects the backend: postgres or sqlite.
	Driver      string           `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string           `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string           `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	Pool        store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ScoringConfig carries the combined-score weighting.
type ScoringConfig struct {
	Weights scoring.Weights `yaml:"weights" mapstructure:"weights"`
}

// EnrichmentConfig configures the enrichment worker and sources.
type EnrichmentConfig struct {
	// Concurrency bounds how many candidates a job enriches in parallel.
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
	// PollIntervalSecs paces the worker between empty queue polls.
	PollIntervalSecs int `yaml:"poll_interval_secs" mapstructure:"poll_interval_secs"`
	// RatePerSecond throttles external API sources.
	RatePerSecond float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	// HTTPTimeoutSecs bounds every outbound source request.
	HTTPTimeoutSecs int `yaml:"http_timeout_secs" mapstructure:"http_timeout_secs"`

	Breaker resilience.BreakerConfig `yaml:"breaker" mapstructure:"breaker"`
}

// PollInterval returns the worker poll interval as a duration.
func (c EnrichmentConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSecs) * time.Second
}

// HTTPTimeout returns the outbound request timeout as a duration.
func (c EnrichmentConfig) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSecs) * time.Second
}

// MonitoringConfig configures the background alert checker.
type MonitoringConfig struct {
	CheckIntervalSecs int                   `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	Thresholds        monitoring.Thresholds `yaml:"thresholds" mapstructure:"thresholds"`
}

// CheckInterval returns the checker interval as a duration.
func (c MonitoringConfig) CheckInterval() time.Duration {
	return time.Duration(c.CheckIntervalSecs) * time.Second
}

// Load reads configuration from config.yaml (optional) and PROSPECT_*
// environment variables.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("PROSPECT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.sqlite_path", "prospect.db")
	v.SetDefault("store.pool.max_conns", 10)
	v.SetDefault("store.pool.min_conns", 2)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("scoring.weights.conversion", 0.35)
	v.SetDefault("scoring.weights.ltv", 0.30)
	v.SetDefault("scoring.weights.churn", 0.20)
	v.SetDefault("scoring.weights.engagement", 0.15)
	v.SetDefault("enrichment.concurrency", 4)
	v.SetDefault("enrichment.poll_interval_secs", 5)
	v.SetDefault("enrichment.rate_per_second", 5)
	v.SetDefault("enrichment.http_timeout_secs", 30)
	v.SetDefault("enrichment.breaker.failure_threshold", 5)
	v.SetDefault("enrichment.breaker.reset_timeout", "30s")
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff", "500ms")
	v.SetDefault("retry.max_backoff", "15s")
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter", 0.25)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.thresholds.max_job_fail_rate", 0.5)
	v.SetDefault("monitoring.thresholds.max_source_errors", 100)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	// Viper's default decode hooks cover the duration strings.
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

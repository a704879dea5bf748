package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Fetcher    FetcherConfig    `yaml:"fetcher" mapstructure:"fetcher"`
	Sources    []SourceConfig   `yaml:"sources" mapstructure:"sources" validate:"dive"`
	Indicators IndicatorsConfig `yaml:"indicators" mapstructure:"indicators"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the audit database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver" validate:"oneof=sqlite postgres none"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

// PipelineConfig configures orchestration.
type PipelineConfig struct {
	PlanPath         string  `yaml:"plan_path" mapstructure:"plan_path" validate:"required"`
	ArtifactDir      string  `yaml:"artifact_dir" mapstructure:"artifact_dir"`
	MaxRetries       int     `yaml:"max_retries" mapstructure:"max_retries" validate:"gte=0,lte=10"`
	RetryBaseDelayMs int     `yaml:"retry_base_delay_ms" mapstructure:"retry_base_delay_ms" validate:"gte=0"`
	RetryMaxDelayMs  int     `yaml:"retry_max_delay_ms" mapstructure:"retry_max_delay_ms" validate:"gte=0"`
	RetryMultiplier  float64 `yaml:"retry_multiplier" mapstructure:"retry_multiplier" validate:"gte=1"`
	ConcurrencyLimit int     `yaml:"concurrency_limit" mapstructure:"concurrency_limit" validate:"gte=1,lte=64"`
	TimeoutSecs      int     `yaml:"timeout_secs" mapstructure:"timeout_secs" validate:"gte=0"`
}

// FetcherConfig configures the shared transport settings adapters build on.
// Each adapter still gets its own fetcher instance.
type FetcherConfig struct {
	UserAgent       string             `yaml:"user_agent" mapstructure:"user_agent"`
	HTTPTimeoutSecs int                `yaml:"http_timeout_secs" mapstructure:"http_timeout_secs" validate:"gte=0"`
	FTPTimeoutSecs  int                `yaml:"ftp_timeout_secs" mapstructure:"ftp_timeout_secs" validate:"gte=0"`
	HostRates       map[string]float64 `yaml:"host_rates" mapstructure:"host_rates"`
}

// SourceConfig declares one data source. Kind selects the adapter; the
// remaining fields are read by the adapters that need them.
type SourceConfig struct {
	Name   string   `yaml:"name" mapstructure:"name" validate:"required"`
	Kind   string   `yaml:"kind" mapstructure:"kind" validate:"required,oneof=httpjson tabular filing postgres static"`
	Fields []string `yaml:"fields" mapstructure:"fields" validate:"required,min=1"`

	// MinIntervalMs is the minimum time between two requests to this source.
	MinIntervalMs int `yaml:"min_interval_ms" mapstructure:"min_interval_ms" validate:"gte=0"`
	// RequestsPerSecond feeds the adaptive HTTP limiter.
	RequestsPerSecond float64       `yaml:"requests_per_second" mapstructure:"requests_per_second" validate:"gte=0"`
	Breaker           BreakerConfig `yaml:"breaker" mapstructure:"breaker"`

	BaseURL        string `yaml:"base_url" mapstructure:"base_url" validate:"omitempty,url"`
	HealthPath     string `yaml:"health_path" mapstructure:"health_path"`
	Location       string `yaml:"location" mapstructure:"location"`
	HealthLocation string `yaml:"health_location" mapstructure:"health_location"`
	Format         string `yaml:"format" mapstructure:"format" validate:"omitempty,oneof=csv xlsx"`
	Sheet          string `yaml:"sheet" mapstructure:"sheet"`
	Table          string `yaml:"table" mapstructure:"table"`
	DatabaseURL    string `yaml:"database_url" mapstructure:"database_url"`

	// Values backs static sources.
	Values map[string]float64 `yaml:"values" mapstructure:"values"`
	Unit   string             `yaml:"unit" mapstructure:"unit"`
}

// BreakerConfig configures a per-source circuit breaker. A zero threshold
// disables it.
type BreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold" validate:"gte=0"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs" validate:"gte=0"`
}

// IndicatorsConfig configures the economic-indicator table loader.
type IndicatorsConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Table       string `yaml:"table" mapstructure:"table"`
}

// MonitoringConfig configures background source health checks.
type MonitoringConfig struct {
	HealthIntervalSecs  int     `yaml:"health_interval_secs" mapstructure:"health_interval_secs" validate:"gte=0"`
	LookbackWindowHours int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours" validate:"gte=0"`
	WebhookURL          string  `yaml:"webhook_url" mapstructure:"webhook_url" validate:"omitempty,url"`
	MinHealthyRatio     float64 `yaml:"min_healthy_ratio" mapstructure:"min_healthy_ratio" validate:"gte=0,lte=1"`
	BlockedRateAlert    float64 `yaml:"blocked_rate_alert" mapstructure:"blocked_rate_alert" validate:"gte=0,lte=1"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Source returns the named source config.
func (c *Config) Source(name string) (SourceConfig, bool) {
	for _, s := range c.Sources {
		if s.Name == name {
			return s, true
		}
	}
	return SourceConfig{}, false
}

// LoadEnvFiles loads .env then .env.local into the process environment.
// Missing files are ignored and variables already set are kept.
func LoadEnvFiles(files ...string) {
	if len(files) == 0 {
		files = []string{".env", ".env.local"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			zap.L().Warn("config: load env file", zap.String("file", f), zap.Error(err))
		}
	}
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("RECONCILE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "reconcile.db")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("pipeline.plan_path", "plan.yaml")
	v.SetDefault("pipeline.artifact_dir", "artifacts")
	v.SetDefault("pipeline.max_retries", 2)
	v.SetDefault("pipeline.retry_base_delay_ms", 1000)
	v.SetDefault("pipeline.retry_max_delay_ms", 30000)
	v.SetDefault("pipeline.retry_multiplier", 2.0)
	v.SetDefault("pipeline.concurrency_limit", 8)
	v.SetDefault("pipeline.timeout_secs", 300)
	v.SetDefault("fetcher.user_agent", "reconcile-cli/1.0")
	v.SetDefault("fetcher.http_timeout_secs", 30)
	v.SetDefault("fetcher.ftp_timeout_secs", 30)
	v.SetDefault("indicators.table", "indicators")
	v.SetDefault("monitoring.health_interval_secs", 60)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.min_healthy_ratio", 0.5)
	v.SetDefault("monitoring.blocked_rate_alert", 0.5)

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

var validate = validator.New()

// Validate checks the configuration for the given command mode: "run",
// "serve", "health" or "indicators". All problems are reported at once.
func (c *Config) Validate(mode string) error {
	var errs []string

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs = append(errs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}
		} else {
			errs = append(errs, err.Error())
		}
	}

	seen := map[string]bool{}
	for _, s := range c.Sources {
		if seen[s.Name] {
			errs = append(errs, fmt.Sprintf("sources: duplicate name %q", s.Name))
		}
		seen[s.Name] = true
		switch {
		case s.Kind == "httpjson" && s.BaseURL == "":
			errs = append(errs, fmt.Sprintf("sources.%s: base_url is required", s.Name))
		case (s.Kind == "tabular" || s.Kind == "filing") && s.Location == "":
			errs = append(errs, fmt.Sprintf("sources.%s: location is required", s.Name))
		case s.Kind == "postgres" && s.DatabaseURL == "" && c.Indicators.DatabaseURL == "":
			errs = append(errs, fmt.Sprintf("sources.%s: database_url is required", s.Name))
		}
	}

	switch mode {
	case "run", "health":
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "indicators":
		if c.Indicators.DatabaseURL == "" {
			errs = append(errs, "indicators.database_url is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown mode %q", mode))
	}

	if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
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

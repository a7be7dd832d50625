// Package config loads application configuration from a yaml file plus
// RACEDAY_-prefixed environment variables, and installs the global logger.
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
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Sources SourcesConfig `yaml:"sources" mapstructure:"sources"`
	Weather WeatherConfig `yaml:"weather" mapstructure:"weather"`
	Browser BrowserConfig `yaml:"browser" mapstructure:"browser"`
	Batch   BatchConfig   `yaml:"batch" mapstructure:"batch"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	// Driver selects "sqlite" or "postgres".
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// SourcesConfig configures the result-source adapters.
type SourcesConfig struct {
	// RequestsPerSecond throttles outbound provider calls across a batch.
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`

	// AdapterTimeoutSecs bounds each race-info fetch and runner search.
	AdapterTimeoutSecs int `yaml:"adapter_timeout_secs" mapstructure:"adapter_timeout_secs"`

	// NYRR token endpoint credentials for the one venue requiring auth.
	NYRRTokenURL string `yaml:"nyrr_token_url" mapstructure:"nyrr_token_url"`
	NYRRAppID    string `yaml:"nyrr_app_id" mapstructure:"nyrr_app_id"`
	NYRRAppKey   string `yaml:"nyrr_app_key" mapstructure:"nyrr_app_key"`
}

// WeatherConfig configures race-day weather enrichment.
type WeatherConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// BrowserConfig configures the headless session for browser-driven venues.
type BrowserConfig struct {
	Enabled               bool `yaml:"enabled" mapstructure:"enabled"`
	NavigationTimeoutSecs int  `yaml:"navigation_timeout_secs" mapstructure:"navigation_timeout_secs"`
}

// BatchConfig configures batch research.
type BatchConfig struct {
	MaxConcurrentOrders int `yaml:"max_concurrent_orders" mapstructure:"max_concurrent_orders"`
	Limit               int `yaml:"limit" mapstructure:"limit"`
}

// ServerConfig configures the status API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`

	// CleanupSchedule is a cron expression for the stale-pending sweep;
	// empty disables it.
	CleanupSchedule string `yaml:"cleanup_schedule" mapstructure:"cleanup_schedule"`

	// StalePendingDays is the age at which a pending order counts as stale.
	StalePendingDays int `yaml:"stale_pending_days" mapstructure:"stale_pending_days"`
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
	v.SetEnvPrefix("RACEDAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "raceday.db")
	v.SetDefault("sources.requests_per_second", 2.0)
	v.SetDefault("sources.adapter_timeout_secs", 90)
	v.SetDefault("sources.nyrr_token_url", "https://results.nyrr.org/api/token")
	v.SetDefault("weather.enabled", true)
	v.SetDefault("browser.enabled", true)
	v.SetDefault("browser.navigation_timeout_secs", 45)
	v.SetDefault("batch.max_concurrent_orders", 4)
	v.SetDefault("batch.limit", 100)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cleanup_schedule", "0 3 * * *")
	v.SetDefault("server.stale_pending_days", 90)
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

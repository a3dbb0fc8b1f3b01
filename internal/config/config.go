// Package config loads the service's YAML configuration file and applies
// environment-variable overrides.
package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for the replay training service.
type Config struct {
	Storage Storage       `yaml:"storage"`
	Server  Server        `yaml:"server"`
	Logging Logging       `yaml:"logging"`
	Trading TradingConfig `yaml:"trading"`
}

// Storage holds filesystem paths for market data and per-user state.
type Storage struct {
	DataDir  string `yaml:"data_dir"`  // raw bar/factor CSVs + parquet cache
	UsersDir string `yaml:"users_dir"` // per-user config.json + training_history.db
}

// Server holds the HTTP listener configuration.
type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
}

// TradingConfig holds default cost-schedule and capital values read from the
// config file. No other package reads them: a brand-new user's config.json
// is seeded from domain.DefaultUserConfig.
type TradingConfig struct {
	DefaultCommissionRate  float64 `yaml:"default_commission_rate"`
	DefaultMinCommission   float64 `yaml:"default_min_commission"`
	DefaultStampTaxRate    float64 `yaml:"default_stamp_tax_rate"`
	DefaultInitialCapital  float64 `yaml:"default_initial_capital"`
}

// Load reads the YAML configuration file at path, then applies
// environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides
// the corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("USERS_DIR"); v != "" {
		cfg.Storage.UsersDir = v
	}
	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

// Package config loads application configuration from environment
// variables (AVION_ prefix) with an optional YAML file underneath.
// Environment values take precedence over file values.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Database  DatabaseConfig  `yaml:"database" envconfig:"DATABASE"`
	License   LicenseConfig   `yaml:"license" envconfig:"LICENSE"`
	Changelog ChangelogConfig `yaml:"changelog" envconfig:"CHANGELOG"`
	Security  SecurityConfig  `yaml:"security" envconfig:"SECURITY"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

// DatabaseConfig contains the Postgres connection settings. An empty
// DSN selects the in-memory store (local development only).
type DatabaseConfig struct {
	DSN      string `yaml:"dsn" envconfig:"DSN"`
	MaxConns int    `yaml:"max_conns" envconfig:"MAX_CONNS" default:"8"`
}

// LicenseConfig tunes the license registry.
type LicenseConfig struct {
	StoreTimeout time.Duration `yaml:"store_timeout" envconfig:"STORE_TIMEOUT" default:"8s"`
	CacheTTL     time.Duration `yaml:"cache_ttl" envconfig:"CACHE_TTL" default:"30s"`
	CacheSize    int           `yaml:"cache_size" envconfig:"CACHE_SIZE" default:"256"`
}

// ChangelogConfig points at the published release-notes feed.
type ChangelogConfig struct {
	URL     string        `yaml:"url" envconfig:"URL" default:"https://raw.githubusercontent.com/saintydevz/Avionupdates/refs/heads/main/Updates.json"`
	Timeout time.Duration `yaml:"timeout" envconfig:"TIMEOUT" default:"8s"`
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	RateLimit RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig throttles activation attempts per client IP.
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED" default:"true"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" default:"1"`
	Burst   int     `yaml:"burst" envconfig:"BURST" default:"5"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Format string `yaml:"format" envconfig:"FORMAT" default:"json"`
}

// Load loads configuration from environment variables and, when
// AVION_CONFIG_FILE names an existing file, merges its values in under
// the environment.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("AVION", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if configFile := os.Getenv("AVION_CONFIG_FILE"); configFile != "" {
		if _, err := os.Stat(configFile); err == nil {
			fileConfig, err := loadFromFile(configFile)
			if err != nil {
				return nil, fmt.Errorf("failed to load config from file: %w", err)
			}
			cfg = mergeConfigs(*fileConfig, cfg)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// mergeConfigs merges file config with env config (env takes precedence).
// Only fields the environment left at their zero value are filled from
// the file; envconfig defaults count as environment values.
func mergeConfigs(fileConfig, envConfig Config) Config {
	if fileConfig.Database.DSN != "" && envConfig.Database.DSN == "" {
		envConfig.Database.DSN = fileConfig.Database.DSN
	}
	if fileConfig.Changelog.URL != "" && os.Getenv("AVION_CHANGELOG_URL") == "" {
		envConfig.Changelog.URL = fileConfig.Changelog.URL
	}
	if fileConfig.Server.Port != 0 && os.Getenv("AVION_SERVER_PORT") == "" {
		envConfig.Server.Port = fileConfig.Server.Port
	}
	if fileConfig.Logging.Level != "" && os.Getenv("AVION_LOGGING_LEVEL") == "" {
		envConfig.Logging.Level = fileConfig.Logging.Level
	}
	if fileConfig.Logging.Format != "" && os.Getenv("AVION_LOGGING_FORMAT") == "" {
		envConfig.Logging.Format = fileConfig.Logging.Format
	}
	return envConfig
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level: %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid logging format: %q", c.Logging.Format)
	}
	if c.License.StoreTimeout <= 0 {
		return fmt.Errorf("license store timeout must be positive")
	}
	if c.Security.RateLimit.Enabled && c.Security.RateLimit.RPS <= 0 {
		return fmt.Errorf("rate limit rps must be positive when enabled")
	}
	return nil
}

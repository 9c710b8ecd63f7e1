// Package config loads the trust core's configuration: environment
// variables first (optionally with a .env file loaded via
// joho/godotenv, as the teacher's process entrypoints do), falling
// back to a YAML file for structured defaults the way the teacher's
// config.LoadFromFile does, following the teacher's
// SubstituteEnvVars-style "env wins" precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the trust core's full runtime configuration.
type Config struct {
	Environment string `yaml:"environment"`

	HTTPAddr string `yaml:"http_addr"`

	ServiceKey          string        `yaml:"-"` // secrets never come from a committed file
	AgentReplayWindow   time.Duration `yaml:"agent_replay_window"`

	Postgres PostgresConfig `yaml:"postgres"`

	LogLevel string `yaml:"log_level"`

	MetricsEnabled bool   `yaml:"metrics_enabled"`
	MetricsAddr    string `yaml:"metrics_addr"`

	RateLimit RateLimitConfig `yaml:"rate_limit"`

	CapabilitySweepInterval time.Duration `yaml:"capability_sweep_interval"`
}

// PostgresConfig is the database connection configuration.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"-"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int32  `yaml:"max_conns"`
}

// RateLimitConfig configures the per-agent request limiter.
type RateLimitConfig struct {
	RequestsPerWindow int           `yaml:"requests_per_window"`
	Window            time.Duration `yaml:"window"`
	Grace             time.Duration `yaml:"grace"`
	CleanupInterval   time.Duration `yaml:"cleanup_interval"`
}

func defaults() Config {
	return Config{
		Environment:       "development",
		HTTPAddr:          ":8080",
		AgentReplayWindow: 300 * time.Second,
		Postgres: PostgresConfig{
			Host: "localhost", Port: 5432, User: "trustcore", Database: "trustcore",
			SSLMode: "disable", MaxConns: 10,
		},
		LogLevel:       "info",
		MetricsEnabled: true,
		MetricsAddr:    ":9090",
		RateLimit: RateLimitConfig{
			RequestsPerWindow: 100, Window: time.Minute, Grace: 60 * time.Second, CleanupInterval: 60 * time.Second,
		},
		CapabilitySweepInterval: 60 * time.Second,
	}
}

// Load builds the configuration: defaults, then a YAML file at path
// (if non-empty and present), then environment variables, which win.
// A .env file at ".env" is loaded into the process environment first
// when present, so local development can set vars without exporting
// them in the shell.
func Load(yamlPath string) (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()

	if yamlPath != "" {
		if data, err := os.ReadFile(yamlPath); err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config file %s: %w", yamlPath, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config file %s: %w", yamlPath, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	stringVar(&cfg.Environment, "TRUSTCORE_ENV")
	stringVar(&cfg.HTTPAddr, "TRUSTCORE_HTTP_ADDR")
	stringVar(&cfg.ServiceKey, "TRUSTCORE_SERVICE_KEY")
	durationVar(&cfg.AgentReplayWindow, "TRUSTCORE_AGENT_REPLAY_WINDOW")

	stringVar(&cfg.Postgres.Host, "TRUSTCORE_DB_HOST")
	intVar(&cfg.Postgres.Port, "TRUSTCORE_DB_PORT")
	stringVar(&cfg.Postgres.User, "TRUSTCORE_DB_USER")
	stringVar(&cfg.Postgres.Password, "TRUSTCORE_DB_PASSWORD")
	stringVar(&cfg.Postgres.Database, "TRUSTCORE_DB_NAME")
	stringVar(&cfg.Postgres.SSLMode, "TRUSTCORE_DB_SSLMODE")
	int32Var(&cfg.Postgres.MaxConns, "TRUSTCORE_DB_MAX_CONNS")

	stringVar(&cfg.LogLevel, "LOG_LEVEL")

	boolVar(&cfg.MetricsEnabled, "TRUSTCORE_METRICS_ENABLED")
	stringVar(&cfg.MetricsAddr, "TRUSTCORE_METRICS_ADDR")

	intVar(&cfg.RateLimit.RequestsPerWindow, "TRUSTCORE_RATE_LIMIT_REQUESTS")
	durationVar(&cfg.RateLimit.Window, "TRUSTCORE_RATE_LIMIT_WINDOW")
	durationVar(&cfg.RateLimit.Grace, "TRUSTCORE_RATE_LIMIT_GRACE")
	durationVar(&cfg.RateLimit.CleanupInterval, "TRUSTCORE_RATE_LIMIT_CLEANUP_INTERVAL")

	durationVar(&cfg.CapabilitySweepInterval, "TRUSTCORE_CAPABILITY_SWEEP_INTERVAL")
}

func (c *Config) validate() error {
	if c.ServiceKey == "" {
		return fmt.Errorf("config: TRUSTCORE_SERVICE_KEY is required")
	}
	if c.Postgres.Host == "" || c.Postgres.Database == "" {
		return fmt.Errorf("config: postgres host and database are required")
	}
	return nil
}

func stringVar(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func intVar(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func int32Var(dst *int32, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func boolVar(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func durationVar(dst *time.Duration, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

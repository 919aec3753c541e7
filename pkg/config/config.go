package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for casewatch-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords) must only come from environment variables.
type Config struct {
	// WikiID is the identifier of the wiki this engine instance serves.
	// Every case, signal, and job row is scoped to it.
	WikiID  string `yaml:"wiki_id" env:"WIKI_ID" env-default:""`
	Env     string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version string `yaml:"-"` // Set at load time, not from config

	// Database configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Worker configuration for the auto-close job worker
	Worker WorkerConfig `yaml:"worker"`

	// AutoClose configuration for cross-wiki dispatch
	AutoClose AutoCloseConfig `yaml:"autoclose"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"casewatch"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"casewatch_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	MaxIdleConns   int32  `yaml:"max_idle_conns" env:"PGMAX_IDLE_CONNS" env-default:"5"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// WorkerConfig holds auto-close job worker settings.
type WorkerConfig struct {
	// PollIntervalSeconds is how often the worker polls for pending jobs.
	PollIntervalSeconds int `yaml:"poll_interval_seconds" env:"WORKER_POLL_INTERVAL_SECONDS" env-default:"5"`
	// BatchSize is the maximum number of jobs claimed per poll.
	BatchSize int `yaml:"batch_size" env:"WORKER_BATCH_SIZE" env-default:"10"`
	// MaxAttempts is how many times a job is retried before being marked failed.
	MaxAttempts int `yaml:"max_attempts" env:"WORKER_MAX_ATTEMPTS" env-default:"3"`
}

// PollInterval returns the poll interval as a duration.
func (c *WorkerConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// AutoCloseConfig holds cross-wiki auto-close dispatch settings.
type AutoCloseConfig struct {
	// Enabled controls whether blocks on the local wiki fan out auto-close
	// jobs to the user's other wikis.
	Enabled bool `yaml:"enabled" env:"AUTOCLOSE_ENABLED" env-default:"true"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
// Environment variables override YAML values. Secrets (PGPASSWORD) must come
// from environment variables (yaml:"-" fields).
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.WikiID == "" {
		return fmt.Errorf("wiki_id must be set")
	}
	if c.Worker.PollIntervalSeconds <= 0 {
		return fmt.Errorf("worker poll_interval_seconds must be positive, got %d", c.Worker.PollIntervalSeconds)
	}
	if c.Worker.BatchSize <= 0 {
		return fmt.Errorf("worker batch_size must be positive, got %d", c.Worker.BatchSize)
	}
	return nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

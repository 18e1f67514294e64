package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for census-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values.
type Config struct {
	// Server configuration
	BindAddr    string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port        string `yaml:"port" env:"PORT" env-default:"3480"`
	Env         string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	MaxUploadMB int    `yaml:"max_upload_mb" env:"MAX_UPLOAD_MB" env-default:"32"`
	Version     string `yaml:"-"` // Set at load time, not from config

	// CatalogPath overrides the embedded standard field catalogue.
	CatalogPath string `yaml:"catalog_path" env:"CATALOG_PATH" env-default:""`

	Session    SessionConfig    `yaml:"session"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Scoring    ScoringConfig    `yaml:"scoring"`
}

// SessionConfig controls conversation session lifetime.
type SessionConfig struct {
	// IdleTTLMinutes is how long a session may wait for an answer before it is dropped.
	IdleTTLMinutes int `yaml:"idle_ttl_minutes" env:"SESSION_IDLE_TTL_MINUTES" env-default:"120"`
	// SweepIntervalSeconds is how often expired sessions are removed.
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds" env:"SESSION_SWEEP_INTERVAL_SECONDS" env-default:"60"`
}

// ExtractionConfig holds settings for grid extractors.
type ExtractionConfig struct {
	// OCRServiceURL is the layout/OCR service used for PDFs and images.
	// Empty disables those kinds.
	OCRServiceURL     string `yaml:"ocr_service_url" env:"OCR_SERVICE_URL" env-default:""`
	OCRTimeoutSeconds int    `yaml:"ocr_timeout_seconds" env:"OCR_TIMEOUT_SECONDS" env-default:"60"`
	MaxRetries        int    `yaml:"max_retries" env:"OCR_MAX_RETRIES" env-default:"3"`
	// HeadBytes is how much of a file the format detector inspects.
	HeadBytes int `yaml:"head_bytes" env:"DETECT_HEAD_BYTES" env-default:"8192"`
}

// PipelineConfig holds batch processing settings.
type PipelineConfig struct {
	BatchConcurrency int `yaml:"batch_concurrency" env:"PIPELINE_BATCH_CONCURRENCY" env-default:"4"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// A missing config.yaml is not an error; defaults and environment apply.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat("config.yaml"); errors.Is(err, fs.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// validate checks values that cleanenv cannot constrain.
func (c *Config) validate() error {
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("max_upload_mb must be positive")
	}
	if c.Pipeline.BatchConcurrency <= 0 {
		return fmt.Errorf("pipeline.batch_concurrency must be positive")
	}
	if c.Session.IdleTTLMinutes <= 0 {
		return fmt.Errorf("session.idle_ttl_minutes must be positive")
	}
	if c.Session.SweepIntervalSeconds <= 0 {
		return fmt.Errorf("session.sweep_interval_seconds must be positive")
	}
	if c.CatalogPath != "" {
		if _, err := os.Stat(c.CatalogPath); err != nil {
			return fmt.Errorf("catalog file does not exist: %w", err)
		}
	}
	return c.Scoring.Validate()
}

// IsLocal returns true for local development environments.
func (c *Config) IsLocal() bool {
	return c.Env == "local"
}

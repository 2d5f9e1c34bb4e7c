// Package config provides centralized configuration management for the
// batch tool. It loads configuration from environment variables with
// sensible defaults and validates all settings on startup to fail fast on
// misconfiguration.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Corpus   CorpusConfig
	Pipeline PipelineConfig
	Database DatabaseConfig
	Logging  LoggingConfig
}

// CorpusConfig locates the returns corpus on disk.
type CorpusConfig struct {
	// Root is the directory containing the raw data and layout files
	// (default: ./corpus)
	Root string `env:"CORPUS_ROOT" default:"corpus"`

	// Manifest is the corpus manifest path (default: <root>/manifest.yaml
	// when unset)
	Manifest string `env:"CORPUS_MANIFEST"`
}

// PipelineConfig holds per-run processing settings.
type PipelineConfig struct {
	// Workers is the number of files processed in parallel (default: 4)
	Workers int `env:"PIPELINE_WORKERS" default:"4"`

	// Timeout is the maximum duration for a whole corpus run (default: 30m)
	Timeout time.Duration `env:"PIPELINE_TIMEOUT" default:"30m"`
}

// DatabaseConfig holds warehouse connection settings. Only the load
// command needs a database; the URL is validated there, not at startup.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 8)
	MaxConns int `env:"DB_MAX_CONNS" default:"8"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `env:"DB_MIN_CONNS" default:"1"`

	// BatchSize is the number of rows per insert batch when the COPY
	// protocol is unavailable (default: 1000)
	BatchSize int `env:"DB_BATCH_SIZE" default:"1000"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// ManifestPath returns the manifest location, defaulting to
// <root>/manifest.yaml.
func (c *CorpusConfig) ManifestPath() string {
	if c.Manifest != "" {
		return c.Manifest
	}
	return c.Root + "/manifest.yaml"
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	if c.Corpus.Root == "" {
		errs = append(errs, "CORPUS_ROOT is required")
	}

	if c.Pipeline.Workers <= 0 {
		errs = append(errs, "PIPELINE_WORKERS must be positive")
	}
	if c.Pipeline.Timeout <= 0 {
		errs = append(errs, "PIPELINE_TIMEOUT must be positive")
	}

	if c.Database.MaxConns <= 0 {
		errs = append(errs, "DB_MAX_CONNS must be positive")
	}
	if c.Database.MinConns < 0 {
		errs = append(errs, "DB_MIN_CONNS must be non-negative")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		errs = append(errs, fmt.Sprintf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)",
			c.Database.MaxConns, c.Database.MinConns))
	}
	if c.Database.BatchSize <= 0 {
		errs = append(errs, "DB_BATCH_SIZE must be positive")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns a safe string representation of the config for logging.
// Sensitive values like database URLs are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	b.WriteString(fmt.Sprintf("Corpus: {Root: %q, Manifest: %q}, ", c.Corpus.Root, c.Corpus.ManifestPath()))
	b.WriteString(fmt.Sprintf("Pipeline: {Workers: %d, Timeout: %s}, ", c.Pipeline.Workers, c.Pipeline.Timeout))
	b.WriteString(fmt.Sprintf("Database: {URL: [MASKED], MaxConns: %d, MinConns: %d, BatchSize: %d}, ",
		c.Database.MaxConns, c.Database.MinConns, c.Database.BatchSize))
	b.WriteString(fmt.Sprintf("Logging: {Level: %q, Format: %q}",
		c.Logging.Level, c.Logging.Format))
	b.WriteString("}")
	return b.String()
}

// Package config loads strata configuration from YAML.
//
//	database: ./shop.db
//	schema: ./schema
//	max_concurrency: 8
//	log_level: info
//
// Missing fields take the defaults of Default. Command-line flags override
// file values (see internal/cli).
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/roach88/strata/internal/hydrate"
)

// DefaultDatabase is the SQLite path used when none is configured.
const DefaultDatabase = "strata.db"

// Config holds engine and CLI settings.
type Config struct {
	// Database is the path to the SQLite database file.
	Database string `yaml:"database"`

	// Schema is the directory holding the CUE schema package.
	Schema string `yaml:"schema,omitempty"`

	// MaxConcurrency bounds concurrent sub-fetches per record and rows per batch.
	MaxConcurrency int `yaml:"max_concurrency"`

	// LogLevel is a zap level name: debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Database:       DefaultDatabase,
		MaxConcurrency: hydrate.DefaultMaxConcurrency,
		LogLevel:       "info",
	}
}

// Load reads a config file. An empty path returns Default().
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes config YAML on top of the defaults and validates the result.
// Unknown fields are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	// An empty document leaves the defaults untouched
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks field values.
func (c Config) Validate() error {
	if c.Database == "" {
		return fmt.Errorf("database is required")
	}
	if c.MaxConcurrency < 1 {
		return fmt.Errorf("max_concurrency must be at least 1, got %d", c.MaxConcurrency)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel.
func (c Config) Level() (zapcore.Level, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}

package config

import (
	"time"

	"github.com/vhoang/ingest/internal/core/domain"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Input    InputConfig    `yaml:"input"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Retry    RetryConfig    `yaml:"retry"`
	Store    StoreConfig    `yaml:"store"`
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// InputConfig locates the record source.
type InputConfig struct {
	Path string `yaml:"path"`
}

// PipelineConfig holds run behavior settings.
type PipelineConfig struct {
	Concurrency    int  `yaml:"concurrency"`
	FailFast       bool `yaml:"fail_fast"`
	BulkFailFast   bool `yaml:"bulk_fail_fast"`
	TopDomains     int  `yaml:"top_domains"`
	MaxListedItems int  `yaml:"max_listed_items"`
	// DenyList overrides the built-in disposable-domain set when set.
	DenyList []string `yaml:"deny_list"`
}

// RetryConfig holds the persistence retry policy.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	Factor      float64       `yaml:"factor"`
}

// StoreConfig holds in-memory store settings.
type StoreConfig struct {
	IdempotencyTTL time.Duration `yaml:"idempotency_ttl"`
	MaxRecords     int           `yaml:"max_records"`
}

// ServerConfig holds the optional health/metrics endpoint settings.
type ServerConfig struct {
	// MetricsPort exposes /health and /metrics while a run is in
	// flight. Zero disables the server.
	MetricsPort int `yaml:"metrics_port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// Validate enforces the configuration contract. Violations surface as
// ConfigError before any record is processed.
func (c *AppConfig) Validate() error {
	if c.Retry.MaxAttempts < 1 {
		return &domain.ConfigError{Field: "retry.max_attempts", Msg: "must be at least 1"}
	}
	if c.Retry.BaseDelay < 0 {
		return &domain.ConfigError{Field: "retry.base_delay", Msg: "must not be negative"}
	}
	if c.Retry.MaxDelay < 0 {
		return &domain.ConfigError{Field: "retry.max_delay", Msg: "must not be negative"}
	}
	if c.Retry.Factor < 1 {
		return &domain.ConfigError{Field: "retry.factor", Msg: "must be at least 1"}
	}
	if c.Store.IdempotencyTTL < 0 {
		return &domain.ConfigError{Field: "store.idempotency_ttl", Msg: "must not be negative"}
	}
	return nil
}

package config

import (
	"github.com/sdejongh/keepsync/pkg/models"
)

// Config represents the application configuration
type Config struct {
	Sync        SyncConfig        `yaml:"sync"`
	Performance PerformanceConfig `yaml:"performance"`
	Output      OutputConfig      `yaml:"output"`
	Logging     LoggingConfig     `yaml:"logging"`
	Exclude     []string          `yaml:"exclude"`
}

// SyncConfig holds sync-related settings
type SyncConfig struct {
	ErrorPolicy       models.ErrorPolicy `yaml:"error_policy"`
	Verify            bool               `yaml:"verify"`
	CreateMissingRoot bool               `yaml:"create_missing_root"`
	AtomicUnits       []string           `yaml:"atomic_units"` // directory suffixes synchronized as one unit
}

// PerformanceConfig holds performance-related settings
type PerformanceConfig struct {
	MaxWorkers     int      `yaml:"max_workers"`
	BufferSize     int      `yaml:"buffer_size"`
	BandwidthLimit ByteSize `yaml:"bandwidth_limit"` // per second, 0 = unlimited
}

// OutputConfig holds output-related settings
type OutputConfig struct {
	Format   string `yaml:"format"`   // "human" or "json"
	Progress bool   `yaml:"progress"` // Show progress bars
	Quiet    bool   `yaml:"quiet"`    // Suppress non-error output
	Color    string `yaml:"color"`    // "auto", "always" or "never"
}

// LoggingConfig holds logging-related settings
type LoggingConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Format     string   `yaml:"format"` // "json" or "text"
	Level      string   `yaml:"level"`  // "debug", "info", "warn", "error"
	File       string   `yaml:"file"`   // Log file path (empty = stderr)
	MaxSize    ByteSize `yaml:"max_size"`
	MaxBackups int      `yaml:"max_backups"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Sync: SyncConfig{
			ErrorPolicy: models.PolicyContinue,
			AtomicUnits: []string{".app"},
		},
		Performance: PerformanceConfig{
			MaxWorkers:     5,
			BufferSize:     65536,
			BandwidthLimit: 0,
		},
		Output: OutputConfig{
			Format:   "human",
			Progress: true,
			Quiet:    false,
			Color:    "auto",
		},
		Logging: LoggingConfig{
			Enabled:    false,
			Format:     "text",
			Level:      "info",
			File:       "",
			MaxSize:    10 * 1024 * 1024,
			MaxBackups: 5,
		},
		Exclude: []string{},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Sync.ErrorPolicy {
	case models.PolicyContinue, models.PolicyFailFast:
	default:
		return &models.ValidationError{
			Field:   "sync.error_policy",
			Message: "must be 'continue' or 'fail-fast'",
		}
	}

	if c.Performance.MaxWorkers < 1 {
		return &models.ValidationError{
			Field:   "performance.max_workers",
			Message: "must be at least 1",
		}
	}

	if c.Performance.BufferSize < 1024 {
		return &models.ValidationError{
			Field:   "performance.buffer_size",
			Message: "must be at least 1024 bytes",
		}
	}

	if c.Performance.BandwidthLimit < 0 {
		return &models.ValidationError{
			Field:   "performance.bandwidth_limit",
			Message: "cannot be negative",
		}
	}

	validFormats := map[string]bool{"human": true, "json": true}
	if !validFormats[c.Output.Format] {
		return &models.ValidationError{
			Field:   "output.format",
			Message: "must be 'human' or 'json'",
		}
	}

	validColors := map[string]bool{"": true, "auto": true, "always": true, "never": true}
	if !validColors[c.Output.Color] {
		return &models.ValidationError{
			Field:   "output.color",
			Message: "must be 'auto', 'always' or 'never'",
		}
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		return &models.ValidationError{
			Field:   "logging.format",
			Message: "must be 'json' or 'text'",
		}
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return &models.ValidationError{
			Field:   "logging.level",
			Message: "must be 'debug', 'info', 'warn', or 'error'",
		}
	}

	if c.Logging.MaxSize < 0 || c.Logging.MaxBackups < 0 {
		return &models.ValidationError{
			Field:   "logging.max_size",
			Message: "rotation limits cannot be negative",
		}
	}

	return nil
}

// Apply copies the configured settings onto an operation
func (c *Config) Apply(op *models.SyncOperation) {
	op.ErrorPolicy = c.Sync.ErrorPolicy
	op.Verify = c.Sync.Verify
	op.CreateMissing = c.Sync.CreateMissingRoot
	op.AtomicUnits = append([]string(nil), c.Sync.AtomicUnits...)
	op.MaxWorkers = c.Performance.MaxWorkers
	op.BufferSize = c.Performance.BufferSize
	op.BandwidthLimit = int64(c.Performance.BandwidthLimit)
	op.ExcludePatterns = append([]string(nil), c.Exclude...)
}

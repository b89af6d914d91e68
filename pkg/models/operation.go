package models

import (
	"time"
)

// ErrorPolicy defines what happens after an entry-level error
type ErrorPolicy string

const (
	// PolicyContinue records the error and keeps processing siblings
	PolicyContinue ErrorPolicy = "continue"
	// PolicyFailFast stops scheduling new entries after the first error
	PolicyFailFast ErrorPolicy = "fail-fast"
)

// SyncOperation represents a sync operation configuration
type SyncOperation struct {
	ID              string
	PathA           string
	PathB           string
	ExcludePatterns []string
	AtomicUnits     []string // directory suffixes synchronized as a single unit
	ErrorPolicy     ErrorPolicy
	DryRun          bool
	Verify          bool // re-hash both sides after each file copy
	CreateMissing   bool // create a missing root instead of failing
	MaxWorkers      int
	BandwidthLimit  int64 // bytes per second, 0 = unlimited
	BufferSize      int
	CreatedAt       time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
}

// Validate checks if the operation configuration is valid
func (op *SyncOperation) Validate() error {
	if op.PathA == "" {
		return &ValidationError{Field: "PathA", Message: "first path is required"}
	}
	if op.PathB == "" {
		return &ValidationError{Field: "PathB", Message: "second path is required"}
	}
	if op.MaxWorkers < 1 {
		return &ValidationError{Field: "MaxWorkers", Message: "max workers must be at least 1"}
	}
	if op.BufferSize < 1024 {
		return &ValidationError{Field: "BufferSize", Message: "buffer size must be at least 1024 bytes"}
	}
	if op.BandwidthLimit < 0 {
		return &ValidationError{Field: "BandwidthLimit", Message: "bandwidth limit cannot be negative"}
	}
	switch op.ErrorPolicy {
	case "", PolicyContinue, PolicyFailFast:
	default:
		return &ValidationError{Field: "ErrorPolicy", Message: "must be 'continue' or 'fail-fast'"}
	}
	return nil
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

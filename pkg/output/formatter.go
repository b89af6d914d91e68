package output

import (
	"io"

	"github.com/sdejongh/keepsync/pkg/models"
)

// Update types emitted by the engine
const (
	UpdateState         = "state"
	UpdateScanProgress  = "scan_progress"
	UpdateEntryStart    = "entry_start"
	UpdateFileProgress  = "file_progress"
	UpdateEntryComplete = "entry_complete"
	UpdateEntryError    = "entry_error"
)

// ProgressUpdate represents a progress notification during sync
type ProgressUpdate struct {
	Type string

	// State is the orchestrator state for "state" updates
	State string

	FilePath     string
	Decision     models.Decision
	BytesWritten int64
	TotalBytes   int64
	CurrentFile  int
	TotalFiles   int
	Error        error
}

// Formatter defines the interface for output formatting
// Implementations include human-readable, progress bar and JSON formatters.
// Progress may be called from several workers at once.
type Formatter interface {
	// Start initializes the formatter for a new sync operation
	// maxWorkers indicates the number of parallel workers for display purposes
	Start(writer io.Writer, pathA, pathB string, maxWorkers int) error

	// Progress reports progress during sync
	Progress(update ProgressUpdate) error

	// Complete finalizes output and displays summary
	Complete(report *models.SyncReport) error

	// Error reports a run-level error
	Error(err error) error

	// Name returns the formatter name
	Name() string
}

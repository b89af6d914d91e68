package output

import (
	"io"
	"sync/atomic"

	"github.com/sdejongh/keepsync/pkg/models"
)

// ChannelFormatter forwards progress updates to a channel owned by the
// caller. Updates that do not fit are dropped unless the formatter blocks,
// so a slow consumer cannot stall the workers.
type ChannelFormatter struct {
	updates  chan<- ProgressUpdate
	blocking bool
	dropped  atomic.Int64
	report   atomic.Pointer[models.SyncReport]
}

// NewChannelFormatter creates a formatter sending to updates. With blocking
// set every update is delivered, waiting for the consumer if needed.
func NewChannelFormatter(updates chan<- ProgressUpdate, blocking bool) *ChannelFormatter {
	return &ChannelFormatter{updates: updates, blocking: blocking}
}

// Start initializes the formatter
func (f *ChannelFormatter) Start(writer io.Writer, pathA, pathB string, maxWorkers int) error {
	return nil
}

// Progress forwards one update
func (f *ChannelFormatter) Progress(update ProgressUpdate) error {
	if f.blocking {
		f.updates <- update
		return nil
	}
	select {
	case f.updates <- update:
	default:
		f.dropped.Add(1)
	}
	return nil
}

// Complete keeps the final report. The channel is left open.
func (f *ChannelFormatter) Complete(report *models.SyncReport) error {
	f.report.Store(report)
	return nil
}

// Error forwards a run-level error as an update without a path
func (f *ChannelFormatter) Error(err error) error {
	return f.Progress(ProgressUpdate{Type: UpdateEntryError, Error: err})
}

// Name returns the formatter name
func (f *ChannelFormatter) Name() string {
	return "channel"
}

// Dropped returns how many updates were discarded
func (f *ChannelFormatter) Dropped() int64 {
	return f.dropped.Load()
}

// Report returns the report passed to Complete, if any
func (f *ChannelFormatter) Report() *models.SyncReport {
	return f.report.Load()
}

package output

import (
	"fmt"
	"io"
	"sync"

	"github.com/cheggaaa/pb/v3"

	"github.com/sdejongh/keepsync/pkg/models"
)

// progressTemplate renders the state, the entry counter and a byte bar
const progressTemplate = `{{string . "state"}} {{string . "entries"}} {{bar . "[" "=" ">" " " "]"}} {{counters . }} {{speed . }} {{string . "errors"}}`

// ProgressFormatter shows a progress bar over the bytes copied so far.
// The total grows as copies are decided, since both trees are walked only
// once. When the writer is not a terminal it prints the human formatter's
// lines instead.
type ProgressFormatter struct {
	mu       sync.Mutex
	writer   io.Writer
	bar      *pb.ProgressBar
	fallback *HumanFormatter
	colors   ColorMode
	palette  palette

	total    int64
	done     int64
	inFlight map[string]int64
	entries  int
	errors   int
}

// NewProgressFormatter creates a new progress bar formatter
func NewProgressFormatter() *ProgressFormatter {
	return &ProgressFormatter{
		colors:   ColorAuto,
		inFlight: make(map[string]int64),
	}
}

// SetColorMode selects when the summary is colored
func (f *ProgressFormatter) SetColorMode(mode ColorMode) {
	f.colors = mode
}

// Start initializes the formatter
func (f *ProgressFormatter) Start(writer io.Writer, pathA, pathB string, maxWorkers int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.writer = writer
	if !isTerminal(writer) {
		f.fallback = NewHumanFormatter()
		f.fallback.SetColorMode(f.colors)
		return f.fallback.Start(writer, pathA, pathB, maxWorkers)
	}

	f.palette = newPalette(f.colors.enabled(writer))
	fmt.Fprintf(writer, "Synchronizing %s <-> %s (%d workers)\n", pathA, pathB, maxWorkers)

	f.bar = pb.New64(0).
		SetWriter(writer).
		SetTemplateString(progressTemplate).
		SetRefreshRate(getUpdateInterval()).
		SetMaxWidth(terminalWidth(writer)).
		Set(pb.Bytes, true).
		Set("state", "starting").
		Set("entries", "0 entries").
		Set("errors", "")
	f.bar.Start()
	return nil
}

// Progress reports progress during sync
func (f *ProgressFormatter) Progress(update ProgressUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fallback != nil {
		return f.fallback.Progress(update)
	}
	if f.bar == nil {
		return nil
	}

	switch update.Type {
	case UpdateState:
		f.bar.Set("state", update.State)

	case UpdateEntryStart:
		if update.Decision.Mutates() && update.TotalBytes > 0 {
			f.total += update.TotalBytes
			f.bar.SetTotal(f.total)
		}

	case UpdateFileProgress:
		f.inFlight[update.FilePath] = update.BytesWritten

	case UpdateEntryComplete:
		delete(f.inFlight, update.FilePath)
		f.done += update.BytesWritten
		f.entries++
		f.bar.Set("entries", fmt.Sprintf("%d entries", f.entries))

	case UpdateEntryError:
		delete(f.inFlight, update.FilePath)
		f.entries++
		f.errors++
		f.bar.Set("entries", fmt.Sprintf("%d entries", f.entries))
		f.bar.Set("errors", fmt.Sprintf("%d errors", f.errors))
	}

	current := f.done
	for _, n := range f.inFlight {
		current += n
	}
	// units are sized only once copied
	if current > f.total {
		f.total = current
		f.bar.SetTotal(f.total)
	}
	f.bar.SetCurrent(current)
	return nil
}

// Complete finalizes output and displays summary
func (f *ProgressFormatter) Complete(report *models.SyncReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fallback != nil {
		return f.fallback.Complete(report)
	}
	if f.bar != nil {
		f.bar.SetCurrent(f.done)
		f.bar.Finish()
	}
	if f.writer != nil {
		writeSummary(f.writer, report, f.palette)
	}
	return nil
}

// Error reports an error
func (f *ProgressFormatter) Error(err error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fallback != nil {
		return f.fallback.Error(err)
	}
	if f.bar != nil && f.bar.IsStarted() {
		f.bar.Finish()
	}
	if f.writer != nil {
		f.palette.fail.Fprintf(f.writer, "\nError: %v\n", err)
	}
	return nil
}

// Name returns the formatter name
func (f *ProgressFormatter) Name() string {
	return "progress"
}

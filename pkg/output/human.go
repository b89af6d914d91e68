package output

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/sdejongh/keepsync/pkg/models"
)

// HumanFormatter formats output in human-readable format, one line per
// entry that changed
type HumanFormatter struct {
	mu        sync.Mutex
	writer    io.Writer
	startTime time.Time
	verbose   bool
	colors    ColorMode
	palette   palette
}

// NewHumanFormatter creates a new human-readable formatter
func NewHumanFormatter() *HumanFormatter {
	return &HumanFormatter{colors: ColorAuto}
}

// SetVerbose also prints entries that were left untouched
func (f *HumanFormatter) SetVerbose(verbose bool) {
	f.verbose = verbose
}

// SetColorMode selects when output is colored
func (f *HumanFormatter) SetColorMode(mode ColorMode) {
	f.colors = mode
}

// Start initializes the formatter
func (f *HumanFormatter) Start(writer io.Writer, pathA, pathB string, maxWorkers int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.writer = writer
	f.startTime = time.Now()
	f.palette = newPalette(f.colors.enabled(writer))

	if writer != nil {
		fmt.Fprintf(writer, "Synchronizing %s <-> %s (%d workers)\n", pathA, pathB, maxWorkers)
	}
	return nil
}

// Progress reports progress during sync
func (f *HumanFormatter) Progress(update ProgressUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.writer == nil {
		return nil
	}

	switch update.Type {
	case UpdateEntryComplete:
		d := update.Decision
		switch {
		case d.Action == models.ActionConflict:
			f.palette.warn.Fprintf(f.writer, "! %-14s %s", FormatDecision(d), update.FilePath)
			fmt.Fprintf(f.writer, " (%s)\n", d.Reason)
		case d.Mutates():
			f.palette.ok.Fprintf(f.writer, "✓ %-14s", FormatDecision(d))
			fmt.Fprintf(f.writer, " %s%s\n", update.FilePath, sizeSuffix(update.BytesWritten))
		case f.verbose && d.Action == models.ActionSkip:
			f.palette.dim.Fprintf(f.writer, "  %-14s %s (%s)\n", FormatDecision(d), update.FilePath, d.Reason)
		}

	case UpdateEntryError:
		f.palette.fail.Fprintf(f.writer, "✗ %-14s %s: %v\n", FormatDecision(update.Decision), update.FilePath, update.Error)

	case UpdateState:
		if f.verbose {
			f.palette.dim.Fprintf(f.writer, "-- %s\n", update.State)
		}
	}

	return nil
}

// Complete finalizes output and displays summary
func (f *HumanFormatter) Complete(report *models.SyncReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.writer == nil {
		return nil
	}
	writeSummary(f.writer, report, f.palette)
	return nil
}

// Error reports an error
func (f *HumanFormatter) Error(err error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.writer != nil {
		f.palette.fail.Fprintf(f.writer, "Error: %v\n", err)
	}
	return nil
}

// Name returns the formatter name
func (f *HumanFormatter) Name() string {
	return "human"
}

// FormatDecision renders a decision as a short label such as "a -> b"
func FormatDecision(d models.Decision) string {
	switch d.Action {
	case models.ActionCopyAToB:
		return "a -> b"
	case models.ActionCopyBToA:
		return "b -> a"
	case models.ActionConflict:
		return fmt.Sprintf("conflict, %s wins", d.Winner)
	case models.ActionRecurse:
		return "recurse"
	case models.ActionSkip:
		return "skip"
	default:
		return string(d.Action)
	}
}

// writeSummary prints the end-of-run summary shared by the terminal formatters
func writeSummary(w io.Writer, report *models.SyncReport, p palette) {
	stats := &report.Stats

	title := "Sync completed"
	if report.DryRun {
		title = "Dry run completed"
	}
	fmt.Fprintf(w, "\n")
	p.bold.Fprintf(w, "%s in %s\n", title, report.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "Summary:\n")
	fmt.Fprintf(w, "  Scanned:            %d entries (%d files, %d dirs)\n",
		stats.EntriesScanned.Load(), stats.FilesScanned.Load(), stats.DirsScanned.Load())
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "  Operations:\n")
	fmt.Fprintf(w, "    Files a -> b:     %d\n", stats.FilesCopiedAToB.Load())
	fmt.Fprintf(w, "    Files b -> a:     %d\n", stats.FilesCopiedBToA.Load())
	fmt.Fprintf(w, "    Dirs created:     %d\n", stats.DirsCreated.Load())
	fmt.Fprintf(w, "    Units replaced:   %d\n", stats.UnitsReplaced.Load())
	fmt.Fprintf(w, "    Conflicts:        %d\n", stats.Conflicts.Load())
	fmt.Fprintf(w, "    Synchronized:     %d\n", stats.EntriesSynchronized.Load())
	fmt.Fprintf(w, "    Skipped:          %d\n", stats.EntriesSkipped.Load())
	fmt.Fprintf(w, "    Errored:          %d\n", stats.EntriesErrored.Load())
	if retries := stats.RaceRetries.Load(); retries > 0 {
		fmt.Fprintf(w, "    Race retries:     %d\n", retries)
	}
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "  Transfer:\n")
	fmt.Fprintf(w, "    Data:             %s\n", formatBytes(stats.BytesTransferred.Load()))
	if report.Duration.Seconds() > 0 {
		avgSpeed := float64(stats.BytesTransferred.Load()) / report.Duration.Seconds()
		fmt.Fprintf(w, "    Average speed:    %s/s\n", formatBytes(int64(avgSpeed)))
	}

	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "Status: ")
	p.status(report.Status).Fprintf(w, "%s\n", report.Status)

	if len(report.Conflicts) > 0 {
		fmt.Fprintf(w, "\nConflicts:\n")
		for _, c := range report.Conflicts {
			fmt.Fprintf(w, "  %s: %s\n", c.Path, c.ResultDescription)
		}
	}

	if errs := report.Errors(); len(errs) > 0 {
		fmt.Fprintf(w, "\nErrors:\n")
		for _, o := range errs {
			p.fail.Fprintf(w, "  %s: [%s] %s\n", o.RelativePath, o.Result.Kind, o.Result.Message)
		}
	}
}

func sizeSuffix(n int64) string {
	if n <= 0 {
		return ""
	}
	return " (" + formatBytes(n) + ")"
}

// formatBytes formats bytes in human-readable format
func formatBytes(bytes int64) string {
	if bytes < 0 {
		bytes = 0
	}
	return humanize.IBytes(uint64(bytes))
}

type palette struct {
	ok, warn, fail, dim, bold *color.Color
}

func newPalette(enabled bool) palette {
	p := palette{
		ok:   color.New(color.FgGreen),
		warn: color.New(color.FgYellow),
		fail: color.New(color.FgRed),
		dim:  color.New(color.Faint),
		bold: color.New(color.Bold),
	}
	for _, c := range []*color.Color{p.ok, p.warn, p.fail, p.dim, p.bold} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

func (p palette) status(s models.SyncStatus) *color.Color {
	switch s {
	case models.StatusSuccess:
		return p.ok
	case models.StatusPartial, models.StatusCancelled:
		return p.warn
	default:
		return p.fail
	}
}

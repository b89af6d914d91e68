package output

import (
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/sdejongh/keepsync/pkg/models"
)

// JSONFormatter writes newline-delimited JSON events for automation and
// scripting. The last line is a "complete" event carrying the report.
type JSONFormatter struct {
	mu      sync.Mutex
	encoder *json.Encoder
}

// JSONEvent represents a single event in the JSON output stream
type JSONEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	Data      any       `json:"data,omitempty"`
}

// JSONStartData represents the data for a start event
type JSONStartData struct {
	PathA      string `json:"path_a"`
	PathB      string `json:"path_b"`
	MaxWorkers int    `json:"max_workers"`
}

// JSONStateData represents a state change
type JSONStateData struct {
	State string `json:"state"`
}

// JSONEntryData represents one handled entry
type JSONEntryData struct {
	Path         string `json:"path"`
	Action       string `json:"action"`
	Reason       string `json:"reason,omitempty"`
	Winner       string `json:"winner,omitempty"`
	BytesWritten int64  `json:"bytes_written,omitempty"`
	Error        string `json:"error,omitempty"`
}

// JSONReportData represents the final report data
type JSONReportData struct {
	OperationID string            `json:"operation_id"`
	PathA       string            `json:"path_a"`
	PathB       string            `json:"path_b"`
	DryRun      bool              `json:"dry_run"`
	Status      string            `json:"status"`
	ExitCode    int               `json:"exit_code"`
	Duration    string            `json:"duration"`
	DurationMs  int64             `json:"duration_ms"`
	Stats       JSONStatsData     `json:"stats"`
	Conflicts   []models.Conflict `json:"conflicts,omitempty"`
	Outcomes    []JSONOutcomeData `json:"outcomes,omitempty"`
	Errors      []JSONOutcomeData `json:"errors,omitempty"`
}

// JSONStatsData represents statistics in JSON format
type JSONStatsData struct {
	EntriesScanned      int32  `json:"entries_scanned"`
	FilesScanned        int32  `json:"files_scanned"`
	DirsScanned         int32  `json:"dirs_scanned"`
	FilesCopiedAToB     int32  `json:"files_copied_a_to_b"`
	FilesCopiedBToA     int32  `json:"files_copied_b_to_a"`
	DirsCreated         int32  `json:"dirs_created"`
	UnitsReplaced       int32  `json:"units_replaced"`
	Conflicts           int32  `json:"conflicts"`
	EntriesSynchronized int32  `json:"entries_synchronized"`
	EntriesSkipped      int32  `json:"entries_skipped"`
	EntriesErrored      int32  `json:"entries_errored"`
	RaceRetries         int32  `json:"race_retries,omitempty"`
	BytesTransferred    int64  `json:"bytes_transferred"`
	AverageSpeed        int64  `json:"average_speed_bytes_per_sec,omitempty"`
	AverageSpeedStr     string `json:"average_speed,omitempty"`
}

// JSONOutcomeData represents the outcome of one entry
type JSONOutcomeData struct {
	Path        string `json:"path"`
	Action      string `json:"action"`
	Reason      string `json:"reason,omitempty"`
	Winner      string `json:"winner,omitempty"`
	Ok          bool   `json:"ok"`
	ErrorKind   string `json:"error_kind,omitempty"`
	Error       string `json:"error,omitempty"`
	BytesCopied int64  `json:"bytes_copied,omitempty"`
}

// NewJSONFormatter creates a new JSON formatter
func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{}
}

// Start initializes the formatter
func (f *JSONFormatter) Start(writer io.Writer, pathA, pathB string, maxWorkers int) error {
	if writer == nil {
		writer = os.Stdout
	}
	f.mu.Lock()
	f.encoder = json.NewEncoder(writer)
	f.mu.Unlock()

	return f.emit("start", JSONStartData{PathA: pathA, PathB: pathB, MaxWorkers: maxWorkers})
}

// Progress writes state changes and finished entries. Byte-level and scan
// progress are left out to keep the stream small.
func (f *JSONFormatter) Progress(update ProgressUpdate) error {
	switch update.Type {
	case UpdateState:
		return f.emit(update.Type, JSONStateData{State: update.State})
	case UpdateEntryComplete, UpdateEntryError:
		data := JSONEntryData{
			Path:         update.FilePath,
			Action:       string(update.Decision.Action),
			Reason:       update.Decision.Reason,
			Winner:       string(update.Decision.Winner),
			BytesWritten: update.BytesWritten,
		}
		if update.Error != nil {
			data.Error = update.Error.Error()
		}
		return f.emit(update.Type, data)
	}
	return nil
}

// Complete writes the final report event. Only failed outcomes are listed.
func (f *JSONFormatter) Complete(report *models.SyncReport) error {
	data := NewJSONReport(report, false)
	return f.emit("complete", data)
}

// Error reports a run-level error
func (f *JSONFormatter) Error(err error) error {
	return f.emit("error", map[string]string{"error": err.Error()})
}

// Name returns the formatter name
func (f *JSONFormatter) Name() string {
	return "json"
}

func (f *JSONFormatter) emit(eventType string, data any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.encoder == nil {
		return nil
	}
	return f.encoder.Encode(JSONEvent{
		Timestamp: time.Now(),
		Type:      eventType,
		Data:      data,
	})
}

// NewJSONReport converts a report for JSON output. With allOutcomes set
// every outcome is listed, otherwise only the failed ones.
func NewJSONReport(report *models.SyncReport, allOutcomes bool) JSONReportData {
	stats := &report.Stats

	var avgSpeed int64
	var avgSpeedStr string
	if report.Duration.Seconds() > 0 {
		avgSpeed = int64(float64(stats.BytesTransferred.Load()) / report.Duration.Seconds())
		avgSpeedStr = formatBytes(avgSpeed) + "/s"
	}

	data := JSONReportData{
		OperationID: report.OperationID,
		PathA:       report.PathA,
		PathB:       report.PathB,
		DryRun:      report.DryRun,
		Status:      string(report.Status),
		ExitCode:    report.Status.ExitCode(),
		Duration:    report.Duration.Round(time.Millisecond).String(),
		DurationMs:  report.Duration.Milliseconds(),
		Stats: JSONStatsData{
			EntriesScanned:      stats.EntriesScanned.Load(),
			FilesScanned:        stats.FilesScanned.Load(),
			DirsScanned:         stats.DirsScanned.Load(),
			FilesCopiedAToB:     stats.FilesCopiedAToB.Load(),
			FilesCopiedBToA:     stats.FilesCopiedBToA.Load(),
			DirsCreated:         stats.DirsCreated.Load(),
			UnitsReplaced:       stats.UnitsReplaced.Load(),
			Conflicts:           stats.Conflicts.Load(),
			EntriesSynchronized: stats.EntriesSynchronized.Load(),
			EntriesSkipped:      stats.EntriesSkipped.Load(),
			EntriesErrored:      stats.EntriesErrored.Load(),
			RaceRetries:         stats.RaceRetries.Load(),
			BytesTransferred:    stats.BytesTransferred.Load(),
			AverageSpeed:        avgSpeed,
			AverageSpeedStr:     avgSpeedStr,
		},
		Conflicts: report.Conflicts,
	}

	for _, o := range report.Outcomes {
		od := outcomeData(o)
		if allOutcomes {
			data.Outcomes = append(data.Outcomes, od)
		}
		if !o.Result.Ok {
			data.Errors = append(data.Errors, od)
		}
	}
	return data
}

func outcomeData(o models.Outcome) JSONOutcomeData {
	return JSONOutcomeData{
		Path:        o.RelativePath,
		Action:      string(o.Decision.Action),
		Reason:      o.Decision.Reason,
		Winner:      string(o.Decision.Winner),
		Ok:          o.Result.Ok,
		ErrorKind:   string(o.Result.Kind),
		Error:       o.Result.Message,
		BytesCopied: o.BytesCopied,
	}
}

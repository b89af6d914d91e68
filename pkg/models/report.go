package models

import (
	"slices"
	"sync/atomic"
	"time"
)

// SyncReport represents the results of a sync operation
type SyncReport struct {
	// Operation details
	OperationID string
	PathA       string
	PathB       string
	DryRun      bool

	// Timing
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration

	// Statistics
	Stats Statistics

	// Outcomes holds one record per visited entry, ordered by path
	Outcomes []Outcome

	// Conflicts encountered
	Conflicts []Conflict

	// Overall status
	Status SyncStatus
}

// Outcome is the result of handling one entry
type Outcome struct {
	RelativePath string
	Decision     Decision
	Result       Result
	BytesCopied  int64
	Duration     time.Duration
}

// Result is either Ok or an error with its kind
type Result struct {
	Ok      bool
	Kind    ErrorKind
	Message string
}

// OK is the successful result
func OK() Result {
	return Result{Ok: true}
}

// Failed builds an error result from err, falling back to kind when err
// carries none of its own
func Failed(kind ErrorKind, err error) Result {
	if k, ok := KindOf(err); ok {
		kind = k
	}
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return Result{Kind: kind, Message: msg}
}

// Statistics holds sync operation metrics
type Statistics struct {
	// Entries visited on either side (unique relative paths)
	EntriesScanned atomic.Int32
	FilesScanned   atomic.Int32
	DirsScanned    atomic.Int32

	FilesCopiedAToB atomic.Int32
	FilesCopiedBToA atomic.Int32
	DirsCreated     atomic.Int32
	UnitsReplaced   atomic.Int32 // special directories copied as a whole
	Conflicts       atomic.Int32

	EntriesSynchronized atomic.Int32 // identical on both sides
	EntriesSkipped      atomic.Int32 // skipped for other reasons
	EntriesErrored      atomic.Int32
	RaceRetries         atomic.Int32

	// Data transfer
	BytesTransferred atomic.Int64
}

// SyncStatus represents the overall result
type SyncStatus string

const (
	// StatusSuccess indicates all operations completed successfully
	StatusSuccess SyncStatus = "success"
	// StatusPartial indicates some entries failed
	StatusPartial SyncStatus = "partial"
	// StatusFailed indicates the sync operation failed at the roots or was aborted by policy
	StatusFailed SyncStatus = "failed"
	// StatusCancelled indicates the operation was cancelled
	StatusCancelled SyncStatus = "cancelled"
)

// ExitCode returns the appropriate exit code for the sync status
func (s SyncStatus) ExitCode() int {
	switch s {
	case StatusSuccess:
		return 0
	case StatusPartial:
		return 1
	case StatusFailed:
		return 2
	case StatusCancelled:
		return 3
	default:
		return 2
	}
}

// Errors returns the outcomes that failed, in report order
func (r *SyncReport) Errors() []Outcome {
	var errs []Outcome
	for _, o := range r.Outcomes {
		if !o.Result.Ok {
			errs = append(errs, o)
		}
	}
	return errs
}

// HasErrors reports whether any entry failed
func (r *SyncReport) HasErrors() bool {
	for _, o := range r.Outcomes {
		if !o.Result.Ok {
			return true
		}
	}
	return false
}

// Outcome returns the outcome recorded for a relative path
func (r *SyncReport) Outcome(relativePath string) (Outcome, bool) {
	for _, o := range r.Outcomes {
		if o.RelativePath == relativePath {
			return o, true
		}
	}
	return Outcome{}, false
}

// SortOutcomes orders outcomes and conflicts by path so the report does not
// depend on worker scheduling
func (r *SyncReport) SortOutcomes() {
	slices.SortStableFunc(r.Outcomes, func(a, b Outcome) int {
		return ComparePaths(a.RelativePath, b.RelativePath)
	})
	slices.SortStableFunc(r.Conflicts, func(a, b Conflict) int {
		return ComparePaths(a.Path, b.Path)
	})
}

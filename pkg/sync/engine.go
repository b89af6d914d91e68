// Package sync implements the bidirectional synchronization engine: it walks
// two trees side by side and makes every entry converge on its newest
// version.
package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sdejongh/keepsync/internal/platform"
	"github.com/sdejongh/keepsync/pkg/classify"
	"github.com/sdejongh/keepsync/pkg/compare"
	"github.com/sdejongh/keepsync/pkg/logging"
	"github.com/sdejongh/keepsync/pkg/models"
	"github.com/sdejongh/keepsync/pkg/output"
	"github.com/sdejongh/keepsync/pkg/ratelimit"
	"github.com/sdejongh/keepsync/pkg/storage"
	"github.com/sdejongh/keepsync/pkg/walk"
)

// Engine orchestrates the sync operation
type Engine struct {
	a, b       storage.Backend
	comparator compare.Comparator
	formatter  output.Formatter
	logger     logging.Logger
	operation  *models.SyncOperation
	atomic     classify.Predicate
	out        io.Writer
	machine    *stateMachine
}

// NewEngine creates a new sync engine. Directories ending in one of the
// operation's AtomicUnits suffixes are synchronized as single units.
func NewEngine(
	a, b storage.Backend,
	comparator compare.Comparator,
	formatter output.Formatter,
	logger logging.Logger,
	operation *models.SyncOperation,
) *Engine {
	if comparator == nil {
		comparator = compare.NewTimestampComparator()
	}
	if logger == nil {
		logger = logging.NewNullLogger()
	}
	e := &Engine{
		a:          a,
		b:          b,
		comparator: comparator,
		formatter:  formatter,
		logger:     logger,
		operation:  operation,
		atomic:     classify.BundleSuffixes(operation.AtomicUnits...),
		out:        os.Stdout,
	}
	e.machine = newStateMachine(e.stateChanged)
	return e
}

// SetAtomicPredicate replaces the atomic unit detection
func (e *Engine) SetAtomicPredicate(pred classify.Predicate) {
	e.atomic = pred
}

// SetOutput sets the writer handed to the formatter
func (e *Engine) SetOutput(w io.Writer) {
	e.out = w
}

// State returns the current state of the run
func (e *Engine) State() State {
	return e.machine.State()
}

// transition moves the run to next. A refused transition is a bug in the
// engine, not in the run, so it is only logged.
func (e *Engine) transition(ctx context.Context, next State) {
	if err := e.machine.transition(next); err != nil {
		e.logger.Warn(ctx, "Ignoring state change", logging.Fields{
			"error": err.Error(),
		})
	}
}

func (e *Engine) stateChanged(from, to State) {
	if e.formatter != nil {
		e.formatter.Progress(output.ProgressUpdate{Type: output.UpdateState, State: string(to)})
	}
	e.logger.Debug(context.Background(), "State changed", logging.Fields{
		"from": from,
		"to":   to,
	})
}

// Run executes the sync operation. Root-level problems (a missing root, a
// root that cannot be read, overlapping roots) abort the run before anything
// is written and are returned as the error. Entry-level problems are
// collected in the report. A cancelled run returns the partial report along
// with the context error.
func (e *Engine) Run(ctx context.Context) (*models.SyncReport, error) {
	// An engine may be run again once the previous run has ended
	e.machine.reset()

	if err := e.operation.Validate(); err != nil {
		return nil, err
	}

	now := time.Now()
	e.operation.StartedAt = &now
	report := &models.SyncReport{
		OperationID: e.operation.ID,
		PathA:       e.operation.PathA,
		PathB:       e.operation.PathB,
		DryRun:      e.operation.DryRun,
		StartTime:   now,
		Status:      models.StatusSuccess,
	}

	e.logger.Info(ctx, "Starting sync operation", logging.Fields{
		"operation_id": e.operation.ID,
		"path_a":       e.operation.PathA,
		"path_b":       e.operation.PathB,
		"dry_run":      e.operation.DryRun,
		"max_workers":  e.operation.MaxWorkers,
	})

	if e.formatter != nil {
		e.formatter.Start(e.out, e.operation.PathA, e.operation.PathB, e.operation.MaxWorkers)
	}

	excluder, err := NewExcluder(e.operation.ExcludePatterns)
	if err != nil {
		return e.fail(ctx, report, err)
	}

	runCtx, abort := context.WithCancel(ctx)
	defer abort()
	pipeline := e.newPipeline(runCtx, report, excluder, abort)

	e.transition(ctx, StateComparingRoots)

	if err := e.checkRoots(); err != nil {
		return e.fail(ctx, report, err)
	}

	root, err := e.compareRoots(ctx, pipeline)
	if ctx.Err() != nil {
		return e.finish(ctx, report, pipeline)
	}
	if err != nil {
		return e.fail(ctx, report, err)
	}

	rootTask := NewTask(models.RootPath)
	rootTask.Entry = root
	rootTask.Decision = pipeline.decide(root)
	rootTask.MarkProcessing(0)

	walking := rootTask.Decision.Action == models.ActionRecurse ||
		(rootTask.Decision.Mutates() && root.State(rootTask.Decision.Source()).Kind == models.KindDirectory)
	if walking {
		e.transition(ctx, StateWalkingPair)
	}

	children := pipeline.resolve(runCtx, rootTask)
	if rootTask.Status == TaskError {
		if kind, _ := models.KindOf(rootTask.Err); kind.IsFatal() {
			return e.fail(ctx, report, rootTask.Err)
		}
	}

	if walking && len(children) > 0 {
		e.transition(ctx, StateRecursing)
		pipeline.run(runCtx, children, PipelineConfig{
			MaxWorkers: e.operation.MaxWorkers,
			QueueSize:  DefaultPipelineConfig().QueueSize,
		})
	}
	if rootTask.createdDirectory() && runCtx.Err() == nil {
		pipeline.finishDirectory(runCtx, rootTask)
	}

	return e.finish(ctx, report, pipeline)
}

func (e *Engine) newPipeline(ctx context.Context, report *models.SyncReport, excluder *Excluder, abort context.CancelFunc) *Pipeline {
	limiter := ratelimit.NewLimiter(e.operation.BandwidthLimit)

	var progress func(rel string, current, total int64)
	if e.formatter != nil {
		progress = func(rel string, current, total int64) {
			e.formatter.Progress(output.ProgressUpdate{
				Type:         output.UpdateFileProgress,
				FilePath:     rel,
				BytesWritten: current,
				TotalBytes:   total,
			})
		}
	}

	executor := NewExecutor(e.a, e.b)
	executor.SetDryRun(e.operation.DryRun)
	executor.SetLimiter(limiter)
	if progress != nil {
		executor.SetProgressCallback(progress)
	}
	if e.operation.Verify {
		// Verification reads count against the same budget as copies and,
		// like them, are not interrupted once started
		hashCtx := context.WithoutCancel(ctx)
		hasher := compare.NewHasher(e.operation.BufferSize)
		hasher.SetReaderWrapper(func(r io.Reader) io.Reader {
			return ratelimit.NewReader(hashCtx, r, limiter)
		})
		if progress != nil {
			hasher.SetProgressCallback(func(rel string, current, total int64) {
				// unit members are hashed under their staging name
				if !strings.Contains(rel, storage.TempPrefix) {
					progress(rel, current, total)
				}
			})
		}
		executor.SetVerifier(hasher)
	}

	return &Pipeline{
		classifyA:  classify.New(e.a, e.atomic),
		classifyB:  classify.New(e.b, e.atomic),
		walkA:      walk.New(e.a),
		walkB:      walk.New(e.b),
		comparator: e.comparator,
		executor:   executor,
		excluder:   excluder,
		formatter:  e.formatter,
		logger:     e.logger,
		operation:  e.operation,
		report:     report,
		abort:      abort,
	}
}

// checkRoots rejects roots that are the same path or nested in each other
func (e *Engine) checkRoots() error {
	rootA, err := platform.Canonical(e.a.Root())
	if err != nil {
		return models.NewSyncError(models.ErrInvalidRoot, e.operation.PathA, "resolve", err)
	}
	rootB, err := platform.Canonical(e.b.Root())
	if err != nil {
		return models.NewSyncError(models.ErrInvalidRoot, e.operation.PathB, "resolve", err)
	}
	if platform.Overlaps(rootA, rootB) {
		return models.NewSyncError(models.ErrInvalidRoot, e.operation.PathB, "check roots",
			fmt.Errorf("%s and %s overlap", rootA, rootB))
	}
	return nil
}

// compareRoots classifies both roots concurrently. Any failure to classify a
// root is fatal, and so is a missing root unless CreateMissing is set.
func (e *Engine) compareRoots(ctx context.Context, p *Pipeline) (models.Entry, error) {
	entry := models.Entry{RelativePath: models.RootPath}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		entry.A, err = p.classifyA.Classify(gctx, models.RootPath)
		return rootError(err, e.operation.PathA)
	})
	g.Go(func() (err error) {
		entry.B, err = p.classifyB.Classify(gctx, models.RootPath)
		return rootError(err, e.operation.PathB)
	})
	if err := g.Wait(); err != nil {
		return entry, err
	}

	existsA, existsB := entry.A.Kind.Exists(), entry.B.Kind.Exists()
	switch {
	case !existsA && !existsB:
		return entry, models.NewSyncError(models.ErrNotFound, e.operation.PathA, "stat root",
			fmt.Errorf("neither %s nor %s exists", e.operation.PathA, e.operation.PathB))
	case !existsA && !e.operation.CreateMissing:
		return entry, models.NewSyncError(models.ErrNotFound, e.operation.PathA, "stat root", os.ErrNotExist)
	case !existsB && !e.operation.CreateMissing:
		return entry, models.NewSyncError(models.ErrNotFound, e.operation.PathB, "stat root", os.ErrNotExist)
	}

	return entry, nil
}

// rootError re-labels a classification failure with the root path the user
// gave
func rootError(err error, root string) error {
	if err == nil {
		return nil
	}
	var se *models.SyncError
	if errors.As(err, &se) {
		return models.NewSyncError(se.Kind, root, "stat root", se.Err)
	}
	return models.NewSyncError(models.IOKind(err, models.ErrRead), root, "stat root", err)
}

// fail ends the run in the Failed state
func (e *Engine) fail(ctx context.Context, report *models.SyncReport, err error) (*models.SyncReport, error) {
	e.transition(ctx, StateFailed)
	report.Status = models.StatusFailed
	e.stamp(report)

	e.logger.Error(ctx, "Sync failed", err, logging.Fields{
		"operation_id": e.operation.ID,
	})
	if e.formatter != nil {
		e.formatter.Error(err)
	}
	return report, err
}

// finish computes the final status once the pool has drained
func (e *Engine) finish(ctx context.Context, report *models.SyncReport, p *Pipeline) (*models.SyncReport, error) {
	report.SortOutcomes()
	e.stamp(report)

	var runErr error
	switch {
	case ctx.Err() != nil:
		report.Status = models.StatusCancelled
		e.transition(ctx, StateCancelled)
		runErr = ctx.Err()
	case p.aborted.Load():
		report.Status = models.StatusFailed
		e.transition(ctx, StateFailed)
	default:
		if report.HasErrors() {
			report.Status = models.StatusPartial
			if int(report.Stats.EntriesErrored.Load()) == len(report.Outcomes) {
				report.Status = models.StatusFailed
			}
		}
		e.transition(ctx, StateDone)
	}

	if e.formatter != nil {
		e.formatter.Complete(report)
	}

	e.logger.Info(ctx, "Sync completed", logging.Fields{
		"duration":            report.Duration.String(),
		"status":              report.Status,
		"entries_scanned":     report.Stats.EntriesScanned.Load(),
		"files_copied_a_to_b": report.Stats.FilesCopiedAToB.Load(),
		"files_copied_b_to_a": report.Stats.FilesCopiedBToA.Load(),
		"dirs_created":        report.Stats.DirsCreated.Load(),
		"units_replaced":      report.Stats.UnitsReplaced.Load(),
		"conflicts":           report.Stats.Conflicts.Load(),
		"entries_errored":     report.Stats.EntriesErrored.Load(),
		"bytes_transferred":   report.Stats.BytesTransferred.Load(),
	})

	return report, runErr
}

func (e *Engine) stamp(report *models.SyncReport) {
	report.EndTime = time.Now()
	report.Duration = report.EndTime.Sub(report.StartTime)
	e.operation.CompletedAt = &report.EndTime
}

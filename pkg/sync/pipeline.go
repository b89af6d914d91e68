package sync

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/sdejongh/keepsync/pkg/classify"
	"github.com/sdejongh/keepsync/pkg/compare"
	"github.com/sdejongh/keepsync/pkg/logging"
	"github.com/sdejongh/keepsync/pkg/models"
	"github.com/sdejongh/keepsync/pkg/output"
	"github.com/sdejongh/keepsync/pkg/walk"
)

// Pipeline walks both trees in lock-step and hands every entry to the
// comparator and executor. Top-level entries are distributed over a bounded
// pool of workers; everything below a top-level entry stays on one worker.
type Pipeline struct {
	classifyA, classifyB *classify.Classifier
	walkA, walkB         *walk.Walker
	comparator           compare.Comparator
	executor             *Executor
	excluder             *Excluder
	formatter            output.Formatter
	logger               logging.Logger
	operation            *models.SyncOperation
	report               *models.SyncReport

	// Task queue
	taskQueue chan *Task
	queueSize int

	processed atomic.Int32

	// abort stops scheduling after an error under the fail-fast policy
	abort   context.CancelFunc
	aborted atomic.Bool

	// Results collection
	resultsMu sync.Mutex
}

// PipelineConfig holds configuration for the pipeline
type PipelineConfig struct {
	MaxWorkers int
	QueueSize  int // Buffer size for the task queue
}

// DefaultPipelineConfig returns sensible defaults
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		MaxWorkers: 5,
		QueueSize:  1000,
	}
}

// handle processes one entry: classify both sides, decide, apply, record the
// outcome. It returns the child tasks to visit when the entry is a directory
// that must be descended into.
func (p *Pipeline) handle(ctx context.Context, workerID int, task *Task) []*Task {
	if p.aborted.Load() {
		return nil
	}

	task.MarkProcessing(workerID)

	entry, err := p.classifyPair(ctx, task.RelativePath, task.knownAbsent)
	task.Entry = entry
	if err != nil {
		task.Decision = models.Skip(models.ReasonUnreadable)
		task.MarkError(err)
		p.record(ctx, task)
		return nil
	}

	if p.excluder.Excluded(entry.RelativePath, entry.A.Kind.IsDir() || entry.B.Kind.IsDir()) {
		return nil
	}

	return p.resolve(ctx, task)
}

// resolve decides and applies a classified entry. Root tasks enter here
// directly with their entry already filled in.
func (p *Pipeline) resolve(ctx context.Context, task *Task) []*Task {
	p.countScanned(task.Entry)

	if task.Decision.Action == "" {
		task.Decision = p.decide(task.Entry)
	}

	fileIndex := int(p.processed.Add(1))
	p.emit(output.ProgressUpdate{
		Type:        output.UpdateEntryStart,
		FilePath:    task.RelativePath,
		Decision:    task.Decision,
		TotalBytes:  task.Entry.State(task.Decision.Winner).Size,
		CurrentFile: fileIndex,
	})
	p.logger.Debug(ctx, "Entry decided", logging.Fields{
		"path":     task.RelativePath,
		"decision": task.Decision.String(),
		"kind_a":   task.Entry.A.Kind,
		"kind_b":   task.Entry.B.Kind,
	})

	written, err := p.apply(ctx, task)
	if err != nil {
		task.MarkError(err)
		p.record(ctx, task)
		return nil
	}

	children, err := p.children(ctx, task)
	if err != nil {
		task.MarkError(err)
		p.record(ctx, task)
		return nil
	}

	task.MarkCompleted(written)
	p.record(ctx, task)
	return children
}

// decide asks the comparator and refuses to descend through symbolic links,
// which could lead back to an ancestor
func (p *Pipeline) decide(entry models.Entry) models.Decision {
	d := p.comparator.Decide(entry.A, entry.B)
	if entry.RelativePath == models.RootPath {
		return d
	}

	switch {
	case d.Action == models.ActionRecurse && (entry.A.Symlink || entry.B.Symlink):
		return models.Skip(models.ReasonSymlinkNotFollowed)
	case d.Mutates() && entry.State(d.Source()).Kind == models.KindDirectory && entry.State(d.Source()).Symlink:
		return models.Skip(models.ReasonSymlinkNotFollowed)
	}
	return d
}

// apply runs the executor, re-deciding once when the destination changed
// under us
func (p *Pipeline) apply(ctx context.Context, task *Task) (int64, error) {
	written, err := p.executor.Apply(ctx, task.Decision, task.Entry)
	if kind, ok := models.KindOf(err); !ok || kind != models.ErrRace {
		return written, err
	}

	p.report.Stats.RaceRetries.Add(1)
	p.logger.Warn(ctx, "Entry changed during sync, retrying", logging.Fields{
		"path":  task.RelativePath,
		"error": err.Error(),
	})

	entry, cerr := p.classifyPair(ctx, task.RelativePath, "")
	if cerr != nil {
		return 0, cerr
	}
	task.Entry = entry
	task.Decision = p.decide(entry)

	return p.executor.Apply(ctx, task.Decision, task.Entry)
}

// finishDirectory applies the source mode to a directory created by task
func (p *Pipeline) finishDirectory(ctx context.Context, task *Task) {
	err := p.executor.FinishDirectory(ctx, task.Decision, task.Entry)
	if err == nil {
		return
	}
	p.report.Stats.EntriesErrored.Add(1)
	p.emit(output.ProgressUpdate{
		Type:     output.UpdateEntryError,
		FilePath: task.RelativePath,
		Decision: task.Decision,
		Error:    err,
	})
	p.logger.Error(ctx, "Failed to set directory permissions", err, logging.Fields{
		"path": task.RelativePath,
	})
}

// children lists what to visit below a directory entry. After a directory
// has been copied only the source side is listed: the target is new.
func (p *Pipeline) children(ctx context.Context, task *Task) ([]*Task, error) {
	d := task.Decision
	rel := task.RelativePath

	switch {
	case d.Action == models.ActionRecurse:
		var namesA, namesB []string
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			namesA, err = p.walkA.List(gctx, rel)
			return err
		})
		g.Go(func() (err error) {
			namesB, err = p.walkB.List(gctx, rel)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return p.tasksFor(task, walk.Union(namesA, namesB), ""), nil

	case d.Mutates() && task.Entry.State(d.Source()).Kind == models.KindDirectory:
		names, err := p.walker(d.Source()).List(ctx, rel)
		if err != nil {
			return nil, err
		}
		return p.tasksFor(task, names, d.Target()), nil
	}

	return nil, nil
}

func (p *Pipeline) tasksFor(parent *Task, names []string, knownAbsent models.Side) []*Task {
	tasks := make([]*Task, 0, len(names))
	for _, name := range names {
		tasks = append(tasks, parent.child(name, knownAbsent))
	}
	return tasks
}

func (p *Pipeline) walker(side models.Side) *walk.Walker {
	if side == models.SideB {
		return p.walkB
	}
	return p.walkA
}

// classifyPair classifies rel on both sides. A side named by knownAbsent is
// not looked at.
func (p *Pipeline) classifyPair(ctx context.Context, rel string, knownAbsent models.Side) (models.Entry, error) {
	entry := models.Entry{RelativePath: rel, A: models.Absent(), B: models.Absent()}

	if knownAbsent != models.SideA {
		state, err := p.classifyA.Classify(ctx, rel)
		if err != nil {
			return entry, err
		}
		entry.A = state
	}
	if knownAbsent != models.SideB {
		state, err := p.classifyB.Classify(ctx, rel)
		if err != nil {
			return entry, err
		}
		entry.B = state
	}
	return entry, nil
}

// countScanned updates the scan counters for one entry
func (p *Pipeline) countScanned(entry models.Entry) {
	stats := &p.report.Stats
	scanned := stats.EntriesScanned.Add(1)
	if entry.A.Kind == models.KindRegularFile || entry.B.Kind == models.KindRegularFile {
		stats.FilesScanned.Add(1)
	}
	if entry.A.Kind.IsDir() || entry.B.Kind.IsDir() {
		stats.DirsScanned.Add(1)
	}
	p.emit(output.ProgressUpdate{
		Type:       output.UpdateScanProgress,
		TotalFiles: int(scanned),
	})
}

// record adds a finished task to the report and notifies the formatter
func (p *Pipeline) record(ctx context.Context, task *Task) {
	outcome := task.Outcome()
	stats := &p.report.Stats

	p.resultsMu.Lock()
	p.report.Outcomes = append(p.report.Outcomes, outcome)
	if task.Status == TaskCompleted && task.Decision.Action == models.ActionConflict {
		p.report.Conflicts = append(p.report.Conflicts, models.NewConflict(task.Entry, task.Decision))
	}
	p.resultsMu.Unlock()

	if task.Status == TaskError {
		stats.EntriesErrored.Add(1)
		p.emit(output.ProgressUpdate{
			Type:     output.UpdateEntryError,
			FilePath: task.RelativePath,
			Decision: task.Decision,
			Error:    task.Err,
		})
		p.logger.Error(ctx, "Entry failed", task.Err, logging.Fields{
			"path":     task.RelativePath,
			"decision": task.Decision.String(),
			"kind":     outcome.Result.Kind,
		})
		if p.operation.ErrorPolicy == models.PolicyFailFast && p.aborted.CompareAndSwap(false, true) {
			p.logger.Warn(ctx, "Stopping after first error", logging.Fields{"path": task.RelativePath})
			if p.abort != nil {
				p.abort()
			}
		}
		return
	}

	d := task.Decision
	switch d.Action {
	case models.ActionSkip:
		if d.Reason == models.ReasonIdenticalMtime {
			stats.EntriesSynchronized.Add(1)
		} else {
			stats.EntriesSkipped.Add(1)
		}
	case models.ActionCopyAToB, models.ActionCopyBToA, models.ActionConflict:
		if d.Action == models.ActionConflict {
			stats.Conflicts.Add(1)
		}
		switch task.Entry.State(d.Source()).Kind {
		case models.KindRegularFile:
			if d.Source() == models.SideA {
				stats.FilesCopiedAToB.Add(1)
			} else {
				stats.FilesCopiedBToA.Add(1)
			}
		case models.KindDirectory:
			stats.DirsCreated.Add(1)
		case models.KindSpecialDirectory:
			stats.UnitsReplaced.Add(1)
		}
		stats.BytesTransferred.Add(task.BytesCopied)
	}

	p.emit(output.ProgressUpdate{
		Type:         output.UpdateEntryComplete,
		FilePath:     task.RelativePath,
		Decision:     d,
		BytesWritten: task.BytesCopied,
		TotalBytes:   task.Entry.State(d.Winner).Size,
	})
}

func (p *Pipeline) emit(update output.ProgressUpdate) {
	if p.formatter != nil {
		p.formatter.Progress(update)
	}
}

// run distributes top-level tasks over the worker pool and waits for all of
// them. The producer stops feeding the queue as soon as ctx is done.
func (p *Pipeline) run(ctx context.Context, tasks []*Task, config PipelineConfig) {
	if config.MaxWorkers < 1 {
		config.MaxWorkers = 1
	}
	if config.QueueSize < 1 {
		config.QueueSize = len(tasks)
	}
	p.queueSize = config.QueueSize
	p.taskQueue = make(chan *Task, p.queueSize)

	var g errgroup.Group
	for i := 0; i < config.MaxWorkers; i++ {
		workerID := i + 1
		g.Go(func() error {
			p.runWorker(ctx, workerID)
			return nil
		})
	}

produce:
	for _, task := range tasks {
		select {
		case <-ctx.Done():
			break produce
		case p.taskQueue <- task:
		}
	}
	close(p.taskQueue)

	g.Wait()
}

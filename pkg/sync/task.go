package sync

import (
	"time"

	"github.com/sdejongh/keepsync/pkg/models"
)

// TaskStatus represents the status of an entry task
type TaskStatus string

const (
	// TaskPending indicates the task is waiting to be processed
	TaskPending TaskStatus = "pending"
	// TaskProcessing indicates the task is currently being processed by a worker
	TaskProcessing TaskStatus = "processing"
	// TaskCompleted indicates the task completed successfully
	TaskCompleted TaskStatus = "completed"
	// TaskError indicates the task failed with an error
	TaskError TaskStatus = "error"
)

// Task is one entry handled by a worker
type Task struct {
	// RelativePath is the path relative to both roots
	RelativePath string

	Entry    models.Entry
	Decision models.Decision

	// Status tracks the current state of this task
	Status TaskStatus

	// Err holds any error that occurred during processing
	Err error

	// BytesCopied tracks how many bytes were actually transferred
	BytesCopied int64

	// Duration tracks how long the worker spent on this task
	Duration time.Duration

	// WorkerID identifies which worker processed this task
	WorkerID int

	// knownAbsent names a side whose parent directory was just created or is
	// about to be, so nothing can exist there yet
	knownAbsent models.Side

	// finishing marks the second visit of a created directory, made once its
	// subtree is done
	finishing bool

	startedAt time.Time
}

// NewTask creates a pending task for a relative path
func NewTask(relativePath string) *Task {
	return &Task{
		RelativePath: relativePath,
		Entry:        models.Entry{RelativePath: relativePath},
		Status:       TaskPending,
	}
}

// child creates the task for a name under t
func (t *Task) child(name string, knownAbsent models.Side) *Task {
	c := NewTask(models.JoinPath(t.RelativePath, name))
	c.knownAbsent = knownAbsent
	return c
}

// createdDirectory reports whether the task copied a plain directory
func (t *Task) createdDirectory() bool {
	return t.Status == TaskCompleted && t.Decision.Mutates() &&
		t.Entry.State(t.Decision.Source()).Kind == models.KindDirectory
}

// finisher returns the task that completes t after its children
func (t *Task) finisher() *Task {
	f := *t
	f.finishing = true
	return &f
}

// MarkProcessing marks the task as being processed by a worker
func (t *Task) MarkProcessing(workerID int) {
	t.Status = TaskProcessing
	t.WorkerID = workerID
	t.startedAt = time.Now()
}

// MarkCompleted marks the task as successfully completed
func (t *Task) MarkCompleted(bytesCopied int64) {
	t.Status = TaskCompleted
	t.BytesCopied = bytesCopied
	t.Duration = time.Since(t.startedAt)
}

// MarkError marks the task as failed with an error
func (t *Task) MarkError(err error) {
	t.Status = TaskError
	t.Err = err
	t.Duration = time.Since(t.startedAt)
}

// Outcome converts a finished task into its report record
func (t *Task) Outcome() models.Outcome {
	result := models.OK()
	if t.Status == TaskError {
		result = models.Failed(models.ErrCopy, t.Err)
	}
	return models.Outcome{
		RelativePath: t.RelativePath,
		Decision:     t.Decision,
		Result:       result,
		BytesCopied:  t.BytesCopied,
		Duration:     t.Duration,
	}
}

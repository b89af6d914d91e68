package sync

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/sdejongh/keepsync/pkg/classify"
	"github.com/sdejongh/keepsync/pkg/compare"
	"github.com/sdejongh/keepsync/pkg/logging"
	"github.com/sdejongh/keepsync/pkg/models"
	"github.com/sdejongh/keepsync/pkg/output"
	"github.com/sdejongh/keepsync/pkg/storage"
)

// Defaults for a new operation
const (
	DefaultMaxWorkers = 5
	DefaultBufferSize = 64 * 1024
)

// DefaultAtomicUnits are the directory suffixes synchronized as one unit
var DefaultAtomicUnits = []string{".app"}

// NewOperation returns an operation between two paths with default settings
// and a fresh ID
func NewOperation(pathA, pathB string) *models.SyncOperation {
	return &models.SyncOperation{
		ID:          uuid.NewString(),
		PathA:       pathA,
		PathB:       pathB,
		AtomicUnits: append([]string(nil), DefaultAtomicUnits...),
		ErrorPolicy: models.PolicyContinue,
		MaxWorkers:  DefaultMaxWorkers,
		BufferSize:  DefaultBufferSize,
		CreatedAt:   time.Now(),
	}
}

type settings struct {
	operation  *models.SyncOperation
	comparator compare.Comparator
	formatter  output.Formatter
	logger     logging.Logger
	atomic     classify.Predicate
	out        io.Writer
}

// Option customizes Synchronize
type Option func(*settings)

// WithDryRun reports decisions without changing either side
func WithDryRun(dryRun bool) Option {
	return func(s *settings) { s.operation.DryRun = dryRun }
}

// WithExclude adds exclude patterns
func WithExclude(patterns ...string) Option {
	return func(s *settings) {
		s.operation.ExcludePatterns = append(s.operation.ExcludePatterns, patterns...)
	}
}

// WithAtomicUnits replaces the directory suffixes synchronized as one unit
func WithAtomicUnits(suffixes ...string) Option {
	return func(s *settings) { s.operation.AtomicUnits = suffixes }
}

// WithAtomicPredicate replaces atomic unit detection altogether
func WithAtomicPredicate(pred classify.Predicate) Option {
	return func(s *settings) { s.atomic = pred }
}

// WithMaxWorkers bounds the number of subtrees synchronized in parallel
func WithMaxWorkers(n int) Option {
	return func(s *settings) { s.operation.MaxWorkers = n }
}

// WithErrorPolicy sets what happens after an entry fails
func WithErrorPolicy(policy models.ErrorPolicy) Option {
	return func(s *settings) { s.operation.ErrorPolicy = policy }
}

// WithVerify re-hashes both sides after each file copy
func WithVerify(verify bool) Option {
	return func(s *settings) { s.operation.Verify = verify }
}

// WithCreateMissing creates a missing root from the other one instead of
// failing
func WithCreateMissing(create bool) Option {
	return func(s *settings) { s.operation.CreateMissing = create }
}

// WithBandwidthLimit caps copy throughput in bytes per second
func WithBandwidthLimit(bytesPerSecond int64) Option {
	return func(s *settings) { s.operation.BandwidthLimit = bytesPerSecond }
}

// WithComparator replaces the timestamp comparator
func WithComparator(c compare.Comparator) Option {
	return func(s *settings) { s.comparator = c }
}

// WithFormatter streams progress updates to f, which writes to w
func WithFormatter(f output.Formatter, w io.Writer) Option {
	return func(s *settings) {
		s.formatter = f
		s.out = w
	}
}

// WithLogger sets the logger
func WithLogger(l logging.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithOperation starts from an existing operation instead of the defaults.
// Options given after it still apply.
func WithOperation(op *models.SyncOperation) Option {
	return func(s *settings) { s.operation = op }
}

// Synchronize makes the trees at pathA and pathB converge and returns the
// per-entry report
func Synchronize(ctx context.Context, pathA, pathB string, opts ...Option) (*models.SyncReport, error) {
	s := &settings{operation: NewOperation(pathA, pathB)}
	for _, opt := range opts {
		opt(s)
	}

	a, err := storage.NewLocal(s.operation.PathA)
	if err != nil {
		return nil, err
	}
	defer a.Close()
	b, err := storage.NewLocal(s.operation.PathB)
	if err != nil {
		return nil, err
	}
	defer b.Close()
	a.SetBufferSize(s.operation.BufferSize)
	b.SetBufferSize(s.operation.BufferSize)

	engine := NewEngine(a, b, s.comparator, s.formatter, s.logger, s.operation)
	if s.atomic != nil {
		engine.SetAtomicPredicate(s.atomic)
	}
	if s.out != nil {
		engine.SetOutput(s.out)
	}
	return engine.Run(ctx)
}

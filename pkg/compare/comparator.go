package compare

import (
	"io"

	"github.com/sdejongh/keepsync/pkg/models"
)

// Comparator decides which side of an entry is authoritative
type Comparator interface {
	// Decide returns the verdict for one entry given both side states
	Decide(a, b models.EntryState) models.Decision

	// Name returns the comparator name
	Name() string
}

// ReaderWrapper wraps a reader before it is consumed (e.g., for rate limiting)
type ReaderWrapper func(io.Reader) io.Reader

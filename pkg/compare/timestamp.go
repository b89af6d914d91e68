package compare

import (
	"time"

	"github.com/sdejongh/keepsync/pkg/models"
)

// Reasons attached to copy and conflict decisions
const (
	reasonNewer        = "newer"
	reasonMissing      = "missing on other side"
	reasonTypeNewer    = "type mismatch, newer side wins"
	reasonTypeTieBreak = "type mismatch, identical mtime, side a wins"
)

// TimestampComparator decides by existence, kind and modification time
type TimestampComparator struct{}

// NewTimestampComparator creates a new timestamp comparator
func NewTimestampComparator() *TimestampComparator {
	return &TimestampComparator{}
}

// Decide compares two entry states
func (c *TimestampComparator) Decide(a, b models.EntryState) models.Decision {
	return Decide(a.Kind, a.ModTime, b.Kind, b.ModTime)
}

// Name returns the comparator name
func (c *TimestampComparator) Name() string {
	return "timestamp"
}

// Decide applies the decision rules in order:
//
//  1. both absent: skip
//  2. A absent: copy B to A
//  3. B absent: copy A to B
//  4. kinds differ: conflict won by the strictly newer side, A on a tie
//  5. both directories: recurse
//  6. both files or both special directories: newer wins, skip on a tie
//
// Timestamps must be exactly equal to tie; there is no tolerance window.
func Decide(kindA models.Kind, mtimeA time.Time, kindB models.Kind, mtimeB time.Time) models.Decision {
	existsA, existsB := kindA.Exists(), kindB.Exists()

	switch {
	case !existsA && !existsB:
		return models.Skip(models.ReasonBothMissing)
	case !existsA:
		return models.CopyBToA(reasonMissing)
	case !existsB:
		return models.CopyAToB(reasonMissing)
	}

	if kindA != kindB {
		if mtimeB.After(mtimeA) {
			return models.ConflictWon(models.SideB, reasonTypeNewer)
		}
		if mtimeA.After(mtimeB) {
			return models.ConflictWon(models.SideA, reasonTypeNewer)
		}
		return models.ConflictWon(models.SideA, reasonTypeTieBreak)
	}

	if kindA == models.KindDirectory {
		return models.Recurse()
	}

	switch {
	case mtimeA.After(mtimeB):
		return models.CopyAToB(reasonNewer)
	case mtimeB.After(mtimeA):
		return models.CopyBToA(reasonNewer)
	default:
		return models.Skip(models.ReasonIdenticalMtime)
	}
}

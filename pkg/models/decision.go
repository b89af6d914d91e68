package models

import "fmt"

// Action is the verdict category for one entry
type Action string

const (
	// ActionCopyAToB propagates side A onto side B
	ActionCopyAToB Action = "copy-a-to-b"
	// ActionCopyBToA propagates side B onto side A
	ActionCopyBToA Action = "copy-b-to-a"
	// ActionRecurse descends into a directory present on both sides
	ActionRecurse Action = "recurse"
	// ActionSkip leaves both sides untouched
	ActionSkip Action = "skip"
	// ActionConflict replaces an entry whose kind differs between sides
	ActionConflict Action = "conflict"
)

// Reasons reported with skip decisions
const (
	ReasonBothMissing        = "both missing"
	ReasonIdenticalMtime     = "identical mtime"
	ReasonSymlinkNotFollowed = "symbolic link not followed"
	ReasonUnreadable         = "unreadable"
)

// Decision is the comparator's verdict for one entry
type Decision struct {
	Action Action
	Reason string

	// Winner is the authoritative side for copies and conflicts
	Winner Side
}

// CopyAToB builds a decision propagating A onto B
func CopyAToB(reason string) Decision {
	return Decision{Action: ActionCopyAToB, Reason: reason, Winner: SideA}
}

// CopyBToA builds a decision propagating B onto A
func CopyBToA(reason string) Decision {
	return Decision{Action: ActionCopyBToA, Reason: reason, Winner: SideB}
}

// Recurse builds a decision to descend into both directories
func Recurse() Decision {
	return Decision{Action: ActionRecurse}
}

// Skip builds a no-op decision
func Skip(reason string) Decision {
	return Decision{Action: ActionSkip, Reason: reason}
}

// ConflictWon builds a type-mismatch decision resolved in favour of winner
func ConflictWon(winner Side, reason string) Decision {
	return Decision{Action: ActionConflict, Reason: reason, Winner: winner}
}

// Mutates reports whether applying the decision writes to either side
func (d Decision) Mutates() bool {
	switch d.Action {
	case ActionCopyAToB, ActionCopyBToA, ActionConflict:
		return true
	default:
		return false
	}
}

// Source returns the side content is copied from. Only meaningful when Mutates is true.
func (d Decision) Source() Side {
	return d.Winner
}

// Target returns the side that is overwritten. Only meaningful when Mutates is true.
func (d Decision) Target() Side {
	return d.Winner.Other()
}

func (d Decision) String() string {
	if d.Reason == "" {
		return string(d.Action)
	}
	return fmt.Sprintf("%s(%s)", d.Action, d.Reason)
}

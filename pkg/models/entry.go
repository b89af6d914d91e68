package models

import (
	"path"
	"strings"
	"time"
)

// RootPath is the relative path of a sync root itself
const RootPath = "."

// Kind classifies a filesystem entry on one side of the sync
type Kind string

const (
	// KindAbsent indicates nothing exists at the path
	KindAbsent Kind = "absent"
	// KindRegularFile indicates a regular file
	KindRegularFile Kind = "file"
	// KindDirectory indicates a plain directory that is recursed into
	KindDirectory Kind = "directory"
	// KindSpecialDirectory indicates a directory synchronized as one atomic unit
	KindSpecialDirectory Kind = "special-directory"
)

// IsDir reports whether the kind is any sort of directory
func (k Kind) IsDir() bool {
	return k == KindDirectory || k == KindSpecialDirectory
}

// Exists reports whether something is present
func (k Kind) Exists() bool {
	return k != KindAbsent && k != ""
}

// EntryState is the metadata of one entry on one side
type EntryState struct {
	Kind Kind

	// ModTime is the modification time. For special directories it is the
	// newest modification time found anywhere inside the unit.
	ModTime time.Time

	Size int64

	// Permissions are the file mode bits
	Permissions uint32

	// Symlink is set when the entry itself is a symbolic link
	Symlink bool
}

// Absent returns the state of a missing entry
func Absent() EntryState {
	return EntryState{Kind: KindAbsent}
}

// Entry is one relative path considered on both sides at once
type Entry struct {
	// RelativePath is slash separated, RootPath for the roots themselves
	RelativePath string

	A EntryState
	B EntryState
}

// State returns the state of one side
func (e Entry) State(side Side) EntryState {
	if side == SideB {
		return e.B
	}
	return e.A
}

// Side identifies one of the two sync roots
type Side string

const (
	// SideA is the first path given by the caller
	SideA Side = "a"
	// SideB is the second path given by the caller
	SideB Side = "b"
)

// Other returns the opposite side
func (s Side) Other() Side {
	if s == SideA {
		return SideB
	}
	return SideA
}

// JoinPath appends a child name to a relative path
func JoinPath(parent, name string) string {
	if parent == "" || parent == RootPath {
		return name
	}
	return path.Join(parent, name)
}

// ComparePaths orders relative paths component by component, which yields a
// pre-order listing of a tree when used to sort
func ComparePaths(a, b string) int {
	if a == b {
		return 0
	}
	if a == RootPath {
		return -1
	}
	if b == RootPath {
		return 1
	}
	pa := strings.Split(a, "/")
	pb := strings.Split(b, "/")
	for i := 0; i < len(pa) && i < len(pb); i++ {
		if c := strings.Compare(pa[i], pb[i]); c != 0 {
			return c
		}
	}
	return len(pa) - len(pb)
}

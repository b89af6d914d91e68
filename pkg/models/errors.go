package models

import (
	"errors"
	"io/fs"
)

// ErrorKind categorizes sync failures
type ErrorKind string

const (
	// ErrNotFound indicates a missing root. Fatal.
	ErrNotFound ErrorKind = "not_found"
	// ErrPermissionDenied is fatal on a root and recoverable on an entry
	ErrPermissionDenied ErrorKind = "permission_denied"
	// ErrRead indicates a directory could not be listed or an entry statted
	ErrRead ErrorKind = "read_error"
	// ErrCopy indicates content or metadata could not be written
	ErrCopy ErrorKind = "copy_error"
	// ErrRace indicates the destination changed kind between classification and action
	ErrRace ErrorKind = "race_error"
	// ErrInvalidRoot indicates roots that are identical or nested. Fatal.
	ErrInvalidRoot ErrorKind = "invalid_root"
)

// SyncError is an error tied to a relative path
type SyncError struct {
	Kind ErrorKind
	Path string
	Op   string
	Err  error
}

// NewSyncError wraps err with a kind and the path it happened on
func NewSyncError(kind ErrorKind, path, op string, err error) *SyncError {
	return &SyncError{Kind: kind, Path: path, Op: op, Err: err}
}

func (e *SyncError) Error() string {
	msg := string(e.Kind) + ": " + e.Path
	if e.Op != "" {
		msg += ": " + e.Op
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first SyncError in err's chain
func KindOf(err error) (ErrorKind, bool) {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return "", false
}

// IOKind maps a filesystem error onto an error kind, using fallback for
// anything that is neither a missing path nor a permission failure
func IOKind(err error, fallback ErrorKind) ErrorKind {
	switch {
	case errors.Is(err, fs.ErrPermission):
		return ErrPermissionDenied
	case errors.Is(err, fs.ErrNotExist):
		return ErrNotFound
	default:
		return fallback
	}
}

// IsFatal reports whether an error kind aborts the whole run when hit on a root
func (k ErrorKind) IsFatal() bool {
	switch k {
	case ErrNotFound, ErrPermissionDenied, ErrInvalidRoot:
		return true
	default:
		return false
	}
}

package storage

import (
	"context"
	"io"
	"time"
)

// TempPrefix starts the name of every temporary file or staging directory a
// backend creates next to its targets
const TempPrefix = ".keepsync-"

// TempPattern is the pattern passed to os.CreateTemp / os.MkdirTemp
const TempPattern = TempPrefix + "*.tmp"

// FileInfo represents metadata about a file
type FileInfo struct {
	Path         string
	RelativePath string
	Size         int64
	ModTime      time.Time
	IsDir        bool
	IsRegular    bool
	Permissions  uint32

	// Symlink is set when the path itself is a symbolic link. The remaining
	// fields then describe the link target.
	Symlink bool
}

// Backend defines the storage operations the sync engine needs on one side.
// Paths are slash separated and relative to the backend root; "." is the root.
type Backend interface {
	// Root returns the absolute root path
	Root() string

	// Path returns the absolute platform path for a relative path
	Path(rel string) string

	// Stat returns metadata, following symbolic links
	Stat(ctx context.Context, rel string) (*FileInfo, error)

	// ReadDir returns the names of the immediate children, sorted byte-wise
	ReadDir(ctx context.Context, rel string) ([]string, error)

	// Read opens a file for reading
	Read(ctx context.Context, rel string) (io.ReadCloser, error)

	// Write atomically creates or replaces a file with the given content.
	// If metadata is provided, permissions and modification time are preserved.
	// size < 0 disables the length check.
	Write(ctx context.Context, rel string, reader io.Reader, size int64, metadata *FileInfo) (int64, error)

	// Mkdir creates a single directory. It is left writable by its owner
	// whatever perm says; Chmod applies the final mode once it is filled.
	Mkdir(ctx context.Context, rel string, perm uint32) error

	// Chmod sets the permission bits
	Chmod(ctx context.Context, rel string, perm uint32) error

	// Chtimes sets the modification time
	Chtimes(ctx context.Context, rel string, modTime time.Time) error

	// Delete removes a file or directory tree, including read-only
	// directories owned by the caller
	Delete(ctx context.Context, rel string) error

	// Rename moves an entry within the backend
	Rename(ctx context.Context, from, to string) error

	// StagingDir creates an empty temporary directory beside rel with the
	// given permissions plus owner write, and returns its relative path
	StagingDir(ctx context.Context, rel string, perm uint32) (string, error)

	// Close releases any resources held by the backend
	Close() error
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"
)

const defaultBufferSize = 64 * 1024

// Local is a filesystem-based storage backend
type Local struct {
	rootPath   string
	bufferSize int
}

// NewLocal creates a new local filesystem backend. The root does not have to
// exist yet: classifying it is the caller's job.
func NewLocal(rootPath string) (*Local, error) {
	if rootPath == "" {
		return nil, errors.New("root path is empty")
	}

	absPath, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}

	return &Local{rootPath: absPath, bufferSize: defaultBufferSize}, nil
}

// SetBufferSize sets the copy buffer size used by Write
func (l *Local) SetBufferSize(size int) {
	if size > 0 {
		l.bufferSize = size
	}
}

// Root returns the absolute root path
func (l *Local) Root() string {
	return l.rootPath
}

// Path returns the absolute platform path for a relative path
func (l *Local) Path(rel string) string {
	return filepath.Join(l.rootPath, filepath.FromSlash(rel))
}

// Stat returns file metadata, following symbolic links
func (l *Local) Stat(ctx context.Context, rel string) (*FileInfo, error) {
	fullPath := l.Path(rel)

	info, err := os.Lstat(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	symlink := info.Mode()&fs.ModeSymlink != 0
	if symlink {
		info, err = os.Stat(fullPath)
		if err != nil {
			return nil, fmt.Errorf("failed to stat link target: %w", err)
		}
	}

	return &FileInfo{
		Path:         fullPath,
		RelativePath: rel,
		Size:         info.Size(),
		ModTime:      info.ModTime(),
		IsDir:        info.IsDir(),
		IsRegular:    info.Mode().IsRegular(),
		Permissions:  uint32(info.Mode().Perm()),
		Symlink:      symlink,
	}, nil
}

// ReadDir returns the sorted names of the immediate children
func (l *Local) ReadDir(ctx context.Context, rel string) ([]string, error) {
	dir, err := os.Open(l.Path(rel))
	if err != nil {
		return nil, fmt.Errorf("failed to open directory: %w", err)
	}
	defer dir.Close()

	names, err := dir.Readdirnames(-1)
	if err != nil {
		return nil, fmt.Errorf("failed to list directory: %w", err)
	}

	sort.Strings(names)
	return names, nil
}

// Read opens a file for reading
func (l *Local) Read(ctx context.Context, rel string) (io.ReadCloser, error) {
	file, err := os.Open(l.Path(rel))
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	return file, nil
}

// Write creates or replaces a file through a temporary file in the same
// directory, so readers never observe a partially written target
func (l *Local) Write(ctx context.Context, rel string, reader io.Reader, size int64, metadata *FileInfo) (int64, error) {
	fullPath := l.Path(rel)

	// Ensure parent directory exists
	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, TempPattern)
	if err != nil {
		return 0, fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	buf := make([]byte, l.bufferSize)
	written, err := io.CopyBuffer(tmp, reader, buf)
	if err != nil {
		return written, fmt.Errorf("failed to write file: %w", err)
	}

	if size >= 0 && written != size {
		return written, fmt.Errorf("incomplete write: expected %d bytes, wrote %d", size, written)
	}

	if metadata != nil && metadata.Permissions != 0 {
		if err := tmp.Chmod(os.FileMode(metadata.Permissions)); err != nil {
			return written, fmt.Errorf("failed to set permissions: %w", err)
		}
	}

	// Close flushes before Chtimes, otherwise the close can bump the mtime again
	if err := tmp.Close(); err != nil {
		return written, fmt.Errorf("failed to close file: %w", err)
	}

	if metadata != nil && !metadata.ModTime.IsZero() {
		if err := os.Chtimes(tmpPath, metadata.ModTime, metadata.ModTime); err != nil {
			return written, fmt.Errorf("failed to set modification time: %w", err)
		}
	}

	if err := os.Rename(tmpPath, fullPath); err != nil {
		return written, fmt.Errorf("failed to move file into place: %w", err)
	}
	committed = true

	return written, nil
}

// ownerWritable is added to every directory the backend creates, so it can
// be filled before its final mode is applied
const ownerWritable = 0700

// Mkdir creates a single directory. The root is created along with any
// missing parents.
func (l *Local) Mkdir(ctx context.Context, rel string, perm uint32) error {
	if perm == 0 {
		perm = 0755
	}
	perm |= ownerWritable
	mkdir := os.Mkdir
	if rel == "." || rel == "" {
		mkdir = os.MkdirAll
	}
	if err := mkdir(l.Path(rel), os.FileMode(perm)); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	// The umask may have cleared bits we asked for
	if err := os.Chmod(l.Path(rel), os.FileMode(perm)); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	return nil
}

// Chmod sets the permission bits
func (l *Local) Chmod(ctx context.Context, rel string, perm uint32) error {
	if err := os.Chmod(l.Path(rel), os.FileMode(perm)); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	return nil
}

// Chtimes sets the modification time
func (l *Local) Chtimes(ctx context.Context, rel string, modTime time.Time) error {
	if err := os.Chtimes(l.Path(rel), modTime, modTime); err != nil {
		return fmt.Errorf("failed to set modification time: %w", err)
	}
	return nil
}

// Delete removes a file or directory. Read-only directories in the tree are
// made writable first when a plain removal is refused.
func (l *Local) Delete(ctx context.Context, rel string) error {
	fullPath := l.Path(rel)
	err := os.RemoveAll(fullPath)
	if errors.Is(err, fs.ErrPermission) {
		if werr := makeWritable(fullPath); werr == nil {
			err = os.RemoveAll(fullPath)
		}
	}
	if err != nil {
		return fmt.Errorf("failed to delete: %w", err)
	}
	return nil
}

// makeWritable adds owner permissions to every directory below path.
// Symbolic links are not followed.
func makeWritable(path string) error {
	return filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if d == nil || !d.IsDir() {
			return nil
		}
		info, ierr := d.Info()
		if ierr != nil {
			return nil
		}
		if err != nil || info.Mode().Perm()&ownerWritable == ownerWritable {
			return nil
		}
		// Directories are visited before they are listed
		return os.Chmod(p, info.Mode().Perm()|ownerWritable)
	})
}

// Rename moves an entry within the backend
func (l *Local) Rename(ctx context.Context, from, to string) error {
	if err := os.Rename(l.Path(from), l.Path(to)); err != nil {
		return fmt.Errorf("failed to rename: %w", err)
	}
	return nil
}

// StagingDir creates an empty temporary directory beside rel
func (l *Local) StagingDir(ctx context.Context, rel string, perm uint32) (string, error) {
	parent := filepath.Dir(l.Path(rel))
	if err := os.MkdirAll(parent, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	dir, err := os.MkdirTemp(parent, TempPattern)
	if err != nil {
		return "", fmt.Errorf("failed to create staging directory: %w", err)
	}

	if perm != 0 {
		if err := os.Chmod(dir, os.FileMode(perm|ownerWritable)); err != nil {
			os.RemoveAll(dir)
			return "", fmt.Errorf("failed to set permissions: %w", err)
		}
	}

	stagingRel, err := filepath.Rel(l.rootPath, dir)
	if err != nil {
		os.RemoveAll(dir)
		return "", err
	}

	return filepath.ToSlash(stagingRel), nil
}

// Close releases resources (no-op for local filesystem)
func (l *Local) Close() error {
	return nil
}

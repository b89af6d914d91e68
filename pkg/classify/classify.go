// Package classify decides what kind of entry lives at a path on one side
// of a sync.
package classify

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sdejongh/keepsync/pkg/models"
	"github.com/sdejongh/keepsync/pkg/storage"
)

// ErrUnsupported is returned for devices, sockets and pipes
var ErrUnsupported = errors.New("unsupported file type")

// Predicate reports whether the directory at an absolute path must be
// synchronized as one atomic unit
type Predicate func(path string) bool

// MacAppBundle matches macOS application bundles: a ".app" directory with a
// Contents/ directory inside
func MacAppBundle(path string) bool {
	return BundleSuffixes(".app")(path)
}

// BundleSuffixes matches directories whose name ends with one of the given
// suffixes and that contain a Contents/ directory
func BundleSuffixes(suffixes ...string) Predicate {
	return func(path string) bool {
		name := filepath.Base(path)
		for _, suffix := range suffixes {
			if suffix == "" || !strings.HasSuffix(name, suffix) || name == suffix {
				continue
			}
			info, err := os.Stat(filepath.Join(path, "Contents"))
			return err == nil && info.IsDir()
		}
		return false
	}
}

// AnyOf matches when any of the predicates matches
func AnyOf(preds ...Predicate) Predicate {
	return func(path string) bool {
		for _, p := range preds {
			if p != nil && p(path) {
				return true
			}
		}
		return false
	}
}

// Classifier inspects entries of one backend. It never reads file content.
type Classifier struct {
	backend storage.Backend
	atomic  Predicate
}

// New creates a classifier. A nil predicate disables atomic units.
func New(backend storage.Backend, atomic Predicate) *Classifier {
	return &Classifier{backend: backend, atomic: atomic}
}

// Classify returns the state of the entry at rel. A missing entry is not an
// error: it is reported as models.KindAbsent.
func (c *Classifier) Classify(ctx context.Context, rel string) (models.EntryState, error) {
	info, err := c.backend.Stat(ctx, rel)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return models.Absent(), nil
		}
		return models.Absent(), models.NewSyncError(models.IOKind(err, models.ErrRead), rel, "stat", err)
	}

	state := models.EntryState{
		ModTime:     info.ModTime,
		Size:        info.Size,
		Permissions: info.Permissions,
		Symlink:     info.Symlink,
	}

	switch {
	case info.IsRegular:
		state.Kind = models.KindRegularFile
	case info.IsDir:
		state.Kind = models.KindDirectory
		if c.atomic != nil && c.atomic(c.backend.Path(rel)) {
			state.Kind = models.KindSpecialDirectory
			newest, err := c.unitModTime(ctx, rel, info.ModTime)
			if err != nil {
				return models.Absent(), models.NewSyncError(models.IOKind(err, models.ErrRead), rel, "scan unit", err)
			}
			state.ModTime = newest
		}
	default:
		return models.Absent(), models.NewSyncError(models.ErrRead, rel, "stat", ErrUnsupported)
	}

	return state, nil
}

// unitModTime returns the newest modification time inside a unit, including
// the unit directory itself
func (c *Classifier) unitModTime(ctx context.Context, rel string, own time.Time) (time.Time, error) {
	newest := own
	stack := []string{rel}
	for len(stack) > 0 {
		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		names, err := c.backend.ReadDir(ctx, dir)
		if err != nil {
			return time.Time{}, err
		}
		for _, name := range names {
			child := models.JoinPath(dir, name)
			info, err := c.backend.Stat(ctx, child)
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					continue
				}
				return time.Time{}, err
			}
			if info.ModTime.After(newest) {
				newest = info.ModTime
			}
			if info.IsDir && !info.Symlink {
				stack = append(stack, child)
			}
		}
	}
	return newest, nil
}

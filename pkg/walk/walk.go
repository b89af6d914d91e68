// Package walk lists directory children in a deterministic order so two trees
// can be aligned entry by entry.
package walk

import (
	"context"
	"errors"
	"io/fs"
	"iter"

	"github.com/sdejongh/keepsync/pkg/models"
	"github.com/sdejongh/keepsync/pkg/storage"
)

// Walker lists children of directories on one backend
type Walker struct {
	backend storage.Backend
}

// New creates a walker over backend
func New(backend storage.Backend) *Walker {
	return &Walker{backend: backend}
}

// List returns the byte-wise sorted child names of rel. The directory is read
// again on every call. A directory that does not exist lists as empty.
func (w *Walker) List(ctx context.Context, rel string) ([]string, error) {
	names, err := w.backend.ReadDir(ctx, rel)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, models.NewSyncError(models.IOKind(err, models.ErrRead), rel, "list", err)
	}
	return names, nil
}

// Names is the lazy form of List. Each range over the returned sequence lists
// the directory afresh; a listing failure is yielded once as the error.
func (w *Walker) Names(ctx context.Context, rel string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		names, err := w.List(ctx, rel)
		if err != nil {
			yield("", err)
			return
		}
		for _, name := range names {
			if !yield(name, nil) {
				return
			}
		}
	}
}

// Union merges two sorted name lists into one sorted list without duplicates
func Union(a, b []string) []string {
	out := make([]string, 0, max(len(a), len(b)))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			out = append(out, a[i])
			i++
		case a[i] > b[j]:
			out = append(out, b[j])
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}

package sync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/sdejongh/keepsync/pkg/classify"
	"github.com/sdejongh/keepsync/pkg/compare"
	"github.com/sdejongh/keepsync/pkg/models"
	"github.com/sdejongh/keepsync/pkg/ratelimit"
	"github.com/sdejongh/keepsync/pkg/storage"
)

// maxUnitDepth bounds the descent inside an atomic unit, whose symbolic links
// to directories are followed
const maxUnitDepth = 64

// ErrVerifyMismatch is returned when a copied file does not hash like its source
var ErrVerifyMismatch = errors.New("verification failed: content differs after copy")

// Executor applies decisions to the two sides
type Executor struct {
	a, b       storage.Backend
	limiter    *ratelimit.Limiter
	hasher     *compare.Hasher
	dryRun     bool
	onProgress func(rel string, written, total int64)
}

// NewExecutor creates an executor over both backends
func NewExecutor(a, b storage.Backend) *Executor {
	return &Executor{a: a, b: b}
}

// SetLimiter shares a bandwidth limiter between all copies
func (x *Executor) SetLimiter(limiter *ratelimit.Limiter) {
	x.limiter = limiter
}

// SetVerifier enables content verification after each file copy
func (x *Executor) SetVerifier(hasher *compare.Hasher) {
	x.hasher = hasher
}

// SetDryRun disables every mutation
func (x *Executor) SetDryRun(dryRun bool) {
	x.dryRun = dryRun
}

// SetProgressCallback sets a callback invoked while file content is copied
func (x *Executor) SetProgressCallback(callback func(rel string, written, total int64)) {
	x.onProgress = callback
}

func (x *Executor) backend(side models.Side) storage.Backend {
	if side == models.SideB {
		return x.b
	}
	return x.a
}

// Apply performs decision on entry and returns the number of content bytes
// written. Recurse and Skip do nothing. A started copy is not interrupted by
// cancellation of ctx.
//
// Before writing, the destination is checked again; if it no longer has the
// shape it was classified with, a RaceError is returned and nothing changes.
func (x *Executor) Apply(ctx context.Context, decision models.Decision, entry models.Entry) (int64, error) {
	if !decision.Mutates() || x.dryRun {
		return 0, nil
	}
	ctx = context.WithoutCancel(ctx)

	rel := entry.RelativePath
	src, dst := x.backend(decision.Source()), x.backend(decision.Target())
	srcState, dstState := entry.State(decision.Source()), entry.State(decision.Target())

	if err := x.checkUnchanged(ctx, dst, rel, decision.Target(), dstState); err != nil {
		return 0, err
	}

	switch srcState.Kind {
	case models.KindRegularFile:
		if dstState.Kind.IsDir() {
			if err := dst.Delete(ctx, rel); err != nil {
				return 0, copyError(rel, "remove", err)
			}
		}
		return x.copyFile(ctx, src, rel, dst, rel, rel)

	case models.KindDirectory:
		if dstState.Kind.Exists() {
			if err := dst.Delete(ctx, rel); err != nil {
				return 0, copyError(rel, "remove", err)
			}
		}
		// The mode is applied by FinishDirectory once the subtree is in
		if err := dst.Mkdir(ctx, rel, srcState.Permissions); err != nil {
			return 0, copyError(rel, "mkdir", err)
		}
		return 0, nil

	case models.KindSpecialDirectory:
		return x.replaceUnit(ctx, src, dst, rel, srcState)

	default:
		return 0, models.NewSyncError(models.ErrCopy, rel, "apply",
			fmt.Errorf("nothing to copy on side %s", decision.Source()))
	}
}

// FinishDirectory gives a directory created by Apply the permissions of its
// source. It must run after everything below the directory has been written,
// since the source mode may deny writing.
func (x *Executor) FinishDirectory(ctx context.Context, decision models.Decision, entry models.Entry) error {
	srcState := entry.State(decision.Source())
	if !decision.Mutates() || x.dryRun || srcState.Kind != models.KindDirectory || srcState.Permissions == 0 {
		return nil
	}
	rel := entry.RelativePath
	if err := x.backend(decision.Target()).Chmod(context.WithoutCancel(ctx), rel, srcState.Permissions); err != nil {
		return copyError(rel, "set permissions", err)
	}
	return nil
}

// checkUnchanged compares the current shape of the destination with the one
// the decision was made on
func (x *Executor) checkUnchanged(ctx context.Context, dst storage.Backend, rel string, side models.Side, want models.EntryState) error {
	current := models.KindAbsent
	info, err := dst.Stat(ctx, rel)
	switch {
	case err == nil && info.IsDir:
		current = models.KindDirectory
	case err == nil && info.IsRegular:
		current = models.KindRegularFile
	case err == nil:
		return models.NewSyncError(models.ErrRace, rel, "recheck", classify.ErrUnsupported)
	case !errors.Is(err, fs.ErrNotExist):
		return models.NewSyncError(models.IOKind(err, models.ErrRead), rel, "recheck", err)
	}

	expected := want.Kind
	if expected == models.KindSpecialDirectory {
		expected = models.KindDirectory
	}
	if current != expected {
		return models.NewSyncError(models.ErrRace, rel, "recheck",
			fmt.Errorf("side %s changed from %s to %s", side, want.Kind, current))
	}
	return nil
}

// copyFile copies one regular file with its permissions and modification
// time. progressRel names the entry in progress callbacks.
func (x *Executor) copyFile(ctx context.Context, src storage.Backend, srcRel string, dst storage.Backend, dstRel, progressRel string) (int64, error) {
	info, err := src.Stat(ctx, srcRel)
	if err != nil {
		return 0, copyError(progressRel, "stat source", err)
	}

	rc, err := src.Read(ctx, srcRel)
	if err != nil {
		return 0, copyError(progressRel, "open source", err)
	}
	defer rc.Close()

	reader := &progressReader{
		reader:         ratelimit.NewReader(ctx, rc, x.limiter),
		total:          info.Size,
		lastReportTime: time.Now(),
	}
	if x.onProgress != nil {
		reader.onProgress = func(bytesRead int64) {
			x.onProgress(progressRel, bytesRead, info.Size)
		}
	}

	written, err := dst.Write(ctx, dstRel, reader, info.Size, info)
	if err != nil {
		return written, copyError(progressRel, "write", err)
	}

	if x.hasher != nil {
		equal, err := x.hasher.Equal(ctx, src, dst, srcRel, dstRel)
		if err != nil {
			return written, copyError(progressRel, "verify", err)
		}
		if !equal {
			return written, models.NewSyncError(models.ErrCopy, progressRel, "verify", ErrVerifyMismatch)
		}
	}

	return written, nil
}

// replaceUnit copies a special directory into a staging directory next to the
// destination, then swaps it in. The destination is never left holding a
// mix of both sides.
func (x *Executor) replaceUnit(ctx context.Context, src, dst storage.Backend, rel string, srcState models.EntryState) (int64, error) {
	staging, err := dst.StagingDir(ctx, rel, srcState.Permissions)
	if err != nil {
		return 0, copyError(rel, "stage", err)
	}
	committed := false
	defer func() {
		if !committed {
			dst.Delete(ctx, staging)
		}
	}()

	written, err := x.copyTree(ctx, src, rel, dst, staging)
	if err != nil {
		return written, err
	}

	if err := dst.Delete(ctx, rel); err != nil {
		return written, copyError(rel, "remove", err)
	}
	if err := dst.Rename(ctx, staging, rel); err != nil {
		return written, copyError(rel, "rename", err)
	}
	committed = true

	return written, nil
}

type treeItem struct {
	src, dst string
	rel      string
	depth    int
}

// copyTree copies the directory srcRel into the existing directory dstRel.
// Directory modes and modification times are restored children first, once
// all content is in place.
func (x *Executor) copyTree(ctx context.Context, src storage.Backend, srcRel string, dst storage.Backend, dstRel string) (int64, error) {
	type dirMeta struct {
		rel     string
		perm    uint32
		modTime time.Time
	}

	var written int64
	var dirs []dirMeta

	stack := []treeItem{{src: srcRel, dst: dstRel, rel: srcRel}}
	for len(stack) > 0 {
		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		info, err := src.Stat(ctx, item.src)
		if err != nil {
			return written, copyError(item.rel, "stat source", err)
		}

		switch {
		case info.IsRegular:
			n, err := x.copyFile(ctx, src, item.src, dst, item.dst, item.rel)
			written += n
			if err != nil {
				return written, err
			}

		case info.IsDir:
			if item.depth > maxUnitDepth {
				return written, models.NewSyncError(models.ErrCopy, item.rel, "copy unit",
					fmt.Errorf("directory nesting deeper than %d levels", maxUnitDepth))
			}
			if item.depth > 0 {
				if err := dst.Mkdir(ctx, item.dst, info.Permissions); err != nil {
					return written, copyError(item.rel, "mkdir", err)
				}
			}
			dirs = append(dirs, dirMeta{rel: item.dst, perm: info.Permissions, modTime: info.ModTime})

			names, err := src.ReadDir(ctx, item.src)
			if err != nil {
				return written, models.NewSyncError(models.IOKind(err, models.ErrRead), item.rel, "list", err)
			}
			for i := len(names) - 1; i >= 0; i-- {
				stack = append(stack, treeItem{
					src:   models.JoinPath(item.src, names[i]),
					dst:   models.JoinPath(item.dst, names[i]),
					rel:   models.JoinPath(item.rel, names[i]),
					depth: item.depth + 1,
				})
			}

		default:
			return written, models.NewSyncError(models.ErrCopy, item.rel, "copy unit", classify.ErrUnsupported)
		}
	}

	for i := len(dirs) - 1; i >= 0; i-- {
		if dirs[i].perm != 0 {
			if err := dst.Chmod(ctx, dirs[i].rel, dirs[i].perm); err != nil {
				return written, copyError(dirs[i].rel, "set permissions", err)
			}
		}
		if err := dst.Chtimes(ctx, dirs[i].rel, dirs[i].modTime); err != nil {
			return written, copyError(dirs[i].rel, "set times", err)
		}
	}

	return written, nil
}

// copyError tags a failed write with the relative path it happened on
func copyError(rel, op string, err error) error {
	var se *models.SyncError
	if errors.As(err, &se) {
		return err
	}
	kind := models.ErrCopy
	if errors.Is(err, fs.ErrPermission) {
		kind = models.ErrPermissionDenied
	}
	return models.NewSyncError(kind, rel, op, err)
}

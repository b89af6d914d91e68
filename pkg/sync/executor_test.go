package sync

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdejongh/keepsync/pkg/classify"
	"github.com/sdejongh/keepsync/pkg/compare"
	"github.com/sdejongh/keepsync/pkg/models"
	"github.com/sdejongh/keepsync/pkg/storage"
)

func newExecutorFixture(t *testing.T) (*TestHelper, *Executor, *storage.Local, *storage.Local) {
	t.Helper()
	h := NewTestHelper(t)
	a, err := storage.NewLocal(h.dirA)
	require.NoError(t, err)
	b, err := storage.NewLocal(h.dirB)
	require.NoError(t, err)
	return h, NewExecutor(a, b), a, b
}

func classifyEntry(t *testing.T, a, b storage.Backend, rel string) models.Entry {
	t.Helper()
	pred := classify.BundleSuffixes(DefaultAtomicUnits...)
	ca, cb := classify.New(a, pred), classify.New(b, pred)
	stateA, err := ca.Classify(context.Background(), rel)
	require.NoError(t, err)
	stateB, err := cb.Classify(context.Background(), rel)
	require.NoError(t, err)
	return models.Entry{RelativePath: rel, A: stateA, B: stateB}
}

func TestExecutorCopyFile(t *testing.T) {
	h, x, a, b := newExecutorFixture(t)
	h.WriteFile(models.SideA, "f.txt", "hello", t1)
	require.NoError(t, os.Chmod(h.path(models.SideA, "f.txt"), 0600))

	var reports []int64
	x.SetProgressCallback(func(rel string, written, total int64) {
		assert.Equal(t, "f.txt", rel)
		assert.Equal(t, int64(5), total)
		reports = append(reports, written)
	})

	entry := classifyEntry(t, a, b, "f.txt")
	written, err := x.Apply(context.Background(), models.CopyAToB("missing on other side"), entry)
	require.NoError(t, err)

	assert.Equal(t, int64(5), written)
	info := h.Stat(models.SideB, "f.txt")
	assert.True(t, info.ModTime().Equal(t1))
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	require.NotEmpty(t, reports)
	assert.Equal(t, int64(5), reports[len(reports)-1])
}

func TestExecutorSkipAndRecurseDoNothing(t *testing.T) {
	h, x, a, b := newExecutorFixture(t)
	h.WriteFile(models.SideA, "f.txt", "a", t1)
	entry := classifyEntry(t, a, b, "f.txt")

	for _, d := range []models.Decision{models.Skip(models.ReasonIdenticalMtime), models.Recurse()} {
		written, err := x.Apply(context.Background(), d, entry)
		require.NoError(t, err)
		assert.Zero(t, written)
	}
	assert.False(t, h.Exists(models.SideB, "f.txt"))
}

func TestExecutorDryRun(t *testing.T) {
	h, x, a, b := newExecutorFixture(t)
	h.WriteFile(models.SideA, "f.txt", "a", t1)
	x.SetDryRun(true)

	written, err := x.Apply(context.Background(), models.CopyAToB("missing on other side"), classifyEntry(t, a, b, "f.txt"))
	require.NoError(t, err)
	assert.Zero(t, written)
	assert.False(t, h.Exists(models.SideB, "f.txt"))
}

func TestExecutorReplacesLoserKind(t *testing.T) {
	t.Run("DirectoryOverFile", func(t *testing.T) {
		h, x, a, b := newExecutorFixture(t)
		h.Mkdir(models.SideA, "d", t2)
		h.WriteFile(models.SideB, "d", "file", t1)

		entry := classifyEntry(t, a, b, "d")
		_, err := x.Apply(context.Background(), models.ConflictWon(models.SideA, "type mismatch, newer side wins"), entry)
		require.NoError(t, err)
		assert.True(t, h.Stat(models.SideB, "d").IsDir())
	})

	t.Run("FileOverDirectory", func(t *testing.T) {
		h, x, a, b := newExecutorFixture(t)
		h.WriteFile(models.SideA, "d/child", "c", t1)
		h.WriteFile(models.SideB, "d", "file", t2)

		entry := classifyEntry(t, a, b, "d")
		_, err := x.Apply(context.Background(), models.ConflictWon(models.SideB, "type mismatch, newer side wins"), entry)
		require.NoError(t, err)
		assert.Equal(t, "file", h.Read(models.SideA, "d"))
	})
}

func TestExecutorReplaceUnit(t *testing.T) {
	h, x, a, b := newExecutorFixture(t)
	h.WriteFile(models.SideA, "App.app/Contents/MacOS/bin", "new", t2)
	h.WriteFile(models.SideA, "App.app/Contents/Resources/icon", "icon", t1)
	h.Mkdir(models.SideA, "App.app/Contents/MacOS", t1)
	h.Mkdir(models.SideA, "App.app/Contents/Resources", t1)
	h.Mkdir(models.SideA, "App.app/Contents", t1)
	h.Mkdir(models.SideA, "App.app", t1)
	h.WriteFile(models.SideB, "App.app/Contents/stale", "stale", t1)

	entry := classifyEntry(t, a, b, "App.app")
	require.Equal(t, models.KindSpecialDirectory, entry.A.Kind)
	require.Equal(t, models.KindSpecialDirectory, entry.B.Kind)

	written, err := x.Apply(context.Background(), models.CopyAToB("newer"), entry)
	require.NoError(t, err)
	assert.Equal(t, int64(len("new")+len("icon")), written)

	assert.Equal(t, h.Paths(models.SideA), h.Paths(models.SideB))
	assert.True(t, h.Stat(models.SideB, "App.app/Contents/MacOS").ModTime().Equal(t1))
	assert.True(t, h.Stat(models.SideB, "App.app").ModTime().Equal(t1))
	assert.True(t, h.Stat(models.SideB, "App.app/Contents/MacOS/bin").ModTime().Equal(t2))
}

func TestExecutorReplaceUnitCleansUpOnFailure(t *testing.T) {
	requireNonRoot(t)
	h, x, a, b := newExecutorFixture(t)
	h.WriteFile(models.SideA, "App.app/Contents/secret", "s", t2)
	h.WriteFile(models.SideB, "App.app/Contents/old", "o", t1)
	h.Mkdir(models.SideB, "App.app/Contents", t1)
	h.Mkdir(models.SideB, "App.app", t1)
	entry := classifyEntry(t, a, b, "App.app")

	secret := h.path(models.SideA, "App.app/Contents/secret")
	require.NoError(t, os.Chmod(secret, 0))
	t.Cleanup(func() { os.Chmod(secret, 0644) })

	_, err := x.Apply(context.Background(), models.CopyAToB("newer"), entry)
	require.Error(t, err)
	kind, _ := models.KindOf(err)
	assert.Equal(t, models.ErrPermissionDenied, kind)

	// the old unit is untouched and no staging directory remains
	assert.Equal(t, "o", h.Read(models.SideB, "App.app/Contents/old"))
	assert.Equal(t, []string{"App.app", "App.app/Contents", "App.app/Contents/old"}, h.Paths(models.SideB))
}

func TestExecutorFinishDirectory(t *testing.T) {
	requireNonRoot(t)
	h, x, a, b := newExecutorFixture(t)
	h.Mkdir(models.SideA, "ro", t1)
	h.Chmod(models.SideA, "ro", 0555)

	entry := classifyEntry(t, a, b, "ro")
	decision := models.CopyAToB("missing on b")
	_, err := x.Apply(context.Background(), decision, entry)
	require.NoError(t, err)

	// still writable while its children are copied
	assert.Equal(t, os.FileMode(0755), h.Stat(models.SideB, "ro").Mode().Perm())
	h.WriteFile(models.SideB, "ro/child.txt", "c", t1)

	require.NoError(t, x.FinishDirectory(context.Background(), decision, entry))
	assert.Equal(t, os.FileMode(0555), h.Stat(models.SideB, "ro").Mode().Perm())

	t.Run("FileCopyIsIgnored", func(t *testing.T) {
		h.WriteFile(models.SideA, "f.txt", "x", t1)
		entry := classifyEntry(t, a, b, "f.txt")
		assert.NoError(t, x.FinishDirectory(context.Background(), decision, entry))
	})
}

func TestExecutorDetectsRace(t *testing.T) {
	h, x, a, b := newExecutorFixture(t)
	h.WriteFile(models.SideA, "f.txt", "from a", t1)
	entry := classifyEntry(t, a, b, "f.txt")

	// B appears after classification
	h.WriteFile(models.SideB, "f.txt", "appeared", t2)

	_, err := x.Apply(context.Background(), models.CopyAToB("missing on other side"), entry)
	require.Error(t, err)
	kind, _ := models.KindOf(err)
	assert.Equal(t, models.ErrRace, kind)
	assert.Equal(t, "appeared", h.Read(models.SideB, "f.txt"))
}

func TestExecutorVerify(t *testing.T) {
	h, x, a, b := newExecutorFixture(t)
	h.WriteFile(models.SideA, "f.bin", string(bytes.Repeat([]byte{7}, 4096)), t1)
	x.SetVerifier(compare.NewHasher(4096))

	written, err := x.Apply(context.Background(), models.CopyAToB("missing on other side"), classifyEntry(t, a, b, "f.bin"))
	require.NoError(t, err)
	assert.Equal(t, int64(4096), written)
}

func TestExecutorCopyIgnoresCancellation(t *testing.T) {
	h, x, a, b := newExecutorFixture(t)
	h.WriteFile(models.SideA, "f.txt", "content", t1)
	entry := classifyEntry(t, a, b, "f.txt")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := x.Apply(ctx, models.CopyAToB("missing on other side"), entry)
	require.NoError(t, err)
	assert.Equal(t, "content", h.Read(models.SideB, "f.txt"))
}

func TestPipelineRetriesAfterRace(t *testing.T) {
	h := NewTestHelper(t)
	h.WriteFile(models.SideA, "f.txt", "old a", t1)

	a, err := storage.NewLocal(h.dirA)
	require.NoError(t, err)
	b, err := storage.NewLocal(h.dirB)
	require.NoError(t, err)

	op := NewOperation(h.dirA, h.dirB)
	engine := NewEngine(a, b, nil, nil, nil, op)
	report := &models.SyncReport{}
	p := engine.newPipeline(context.Background(), report, nil, func() {})

	task := NewTask("f.txt")
	task.Entry = classifyEntry(t, a, b, "f.txt")
	task.Decision = p.decide(task.Entry)
	require.Equal(t, models.ActionCopyAToB, task.Decision.Action)

	// a newer file shows up on B before the copy runs
	h.WriteFile(models.SideB, "f.txt", "new b", t2)

	_, err = p.apply(context.Background(), task)
	require.NoError(t, err)

	assert.Equal(t, int32(1), report.Stats.RaceRetries.Load())
	assert.Equal(t, models.ActionCopyBToA, task.Decision.Action)
	assert.Equal(t, "new b", h.Read(models.SideA, "f.txt"))
}

func TestProgressReader(t *testing.T) {
	data := bytes.Repeat([]byte("x"), 200*1024)
	var calls []int64
	pr := &progressReader{
		reader:         bytes.NewReader(data),
		total:          int64(len(data)),
		lastReportTime: time.Now(),
		onProgress:     func(n int64) { calls = append(calls, n) },
	}

	n, err := io.Copy(io.Discard, pr)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), n)
	require.NotEmpty(t, calls)
	assert.Equal(t, int64(len(data)), calls[len(calls)-1])
	for i := 1; i < len(calls); i++ {
		assert.Greater(t, calls[i], calls[i-1])
	}
}

func TestCopyErrorKinds(t *testing.T) {
	perm := copyError("x", "write", &os.PathError{Op: "open", Path: filepath.Join("a", "x"), Err: os.ErrPermission})
	kind, _ := models.KindOf(perm)
	assert.Equal(t, models.ErrPermissionDenied, kind)

	other := copyError("x", "write", io.ErrShortWrite)
	kind, _ = models.KindOf(other)
	assert.Equal(t, models.ErrCopy, kind)

	existing := models.NewSyncError(models.ErrRead, "y", "list", io.EOF)
	assert.Same(t, existing, copyError("x", "write", existing))
}

package classify

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdejongh/keepsync/pkg/models"
	"github.com/sdejongh/keepsync/pkg/storage"
)

type testHelper struct {
	t    *testing.T
	root string
	c    *Classifier
}

func newTestHelper(t *testing.T, pred Predicate) *testHelper {
	t.Helper()
	root := t.TempDir()
	backend, err := storage.NewLocal(root)
	require.NoError(t, err)
	return &testHelper{t: t, root: root, c: New(backend, pred)}
}

func (h *testHelper) file(rel string, modTime time.Time) {
	h.t.Helper()
	path := filepath.Join(h.root, filepath.FromSlash(rel))
	require.NoError(h.t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(h.t, os.WriteFile(path, []byte(rel), 0644))
	require.NoError(h.t, os.Chtimes(path, modTime, modTime))
}

func (h *testHelper) dir(rel string, modTime time.Time) {
	h.t.Helper()
	path := filepath.Join(h.root, filepath.FromSlash(rel))
	require.NoError(h.t, os.MkdirAll(path, 0755))
	require.NoError(h.t, os.Chtimes(path, modTime, modTime))
}

func TestClassify(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	h := newTestHelper(t, MacAppBundle)
	ctx := context.Background()

	h.file("plain.txt", base)
	h.dir("folder", base)
	h.file("Tool.app/Contents/Info.plist", base.Add(2*time.Hour))
	h.dir("Tool.app/Contents", base)
	h.dir("Tool.app", base)
	h.dir("NotABundle.app", base)

	tests := []struct {
		rel  string
		kind models.Kind
	}{
		{"plain.txt", models.KindRegularFile},
		{"folder", models.KindDirectory},
		{"Tool.app", models.KindSpecialDirectory},
		{"NotABundle.app", models.KindDirectory},
		{"missing", models.KindAbsent},
		{"folder/missing", models.KindAbsent},
	}

	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			state, err := h.c.Classify(ctx, tt.rel)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, state.Kind)
		})
	}

	t.Run("FileMetadata", func(t *testing.T) {
		state, err := h.c.Classify(ctx, "plain.txt")
		require.NoError(t, err)
		assert.True(t, state.ModTime.Equal(base))
		assert.Equal(t, int64(len("plain.txt")), state.Size)
		assert.NotZero(t, state.Permissions)
	})

	t.Run("BundleUsesNewestInnerModTime", func(t *testing.T) {
		state, err := h.c.Classify(ctx, "Tool.app")
		require.NoError(t, err)
		assert.True(t, state.ModTime.Equal(base.Add(2*time.Hour)), "ModTime = %v", state.ModTime)
	})
}

func TestClassifyWithoutPredicate(t *testing.T) {
	h := newTestHelper(t, nil)
	h.dir("Tool.app/Contents", time.Now())

	state, err := h.c.Classify(context.Background(), "Tool.app")
	require.NoError(t, err)
	assert.Equal(t, models.KindDirectory, state.Kind)
}

func TestClassifyPermissionDenied(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}

	h := newTestHelper(t, nil)
	h.file("locked/inner.txt", time.Now())
	locked := filepath.Join(h.root, "locked")
	require.NoError(t, os.Chmod(locked, 0))
	t.Cleanup(func() { os.Chmod(locked, 0755) })

	_, err := h.c.Classify(context.Background(), "locked/inner.txt")
	require.Error(t, err)

	kind, ok := models.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, models.ErrPermissionDenied, kind)
}

func TestClassifySymlink(t *testing.T) {
	h := newTestHelper(t, nil)
	h.file("target.txt", time.Now())
	if err := os.Symlink(filepath.Join(h.root, "target.txt"), filepath.Join(h.root, "link.txt")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}
	require.NoError(t, os.Symlink(filepath.Join(h.root, "gone.txt"), filepath.Join(h.root, "broken.txt")))

	state, err := h.c.Classify(context.Background(), "link.txt")
	require.NoError(t, err)
	assert.Equal(t, models.KindRegularFile, state.Kind)
	assert.True(t, state.Symlink)

	state, err = h.c.Classify(context.Background(), "broken.txt")
	require.NoError(t, err)
	assert.Equal(t, models.KindAbsent, state.Kind)
}

func TestBundleSuffixes(t *testing.T) {
	root := t.TempDir()
	mk := func(rel string) string {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(p, 0755))
		return p
	}

	framework := filepath.Dir(mk("Lib.framework/Contents"))
	app := filepath.Dir(mk("Editor.app/Contents"))
	bare := mk(".app")
	plain := mk("docs")

	pred := BundleSuffixes(".framework")
	assert.True(t, pred(framework))
	assert.False(t, pred(app))

	assert.True(t, MacAppBundle(app))
	assert.False(t, MacAppBundle(bare), "a directory named only by the suffix is not a bundle")
	assert.False(t, MacAppBundle(plain))

	both := AnyOf(MacAppBundle, pred, nil)
	assert.True(t, both(framework))
	assert.True(t, both(app))
	assert.False(t, both(plain))
}

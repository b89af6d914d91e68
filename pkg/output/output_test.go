package output

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdejongh/keepsync/pkg/models"
)

func sampleReport() *models.SyncReport {
	report := &models.SyncReport{
		OperationID: "op-1",
		PathA:       "/tmp/a",
		PathB:       "/tmp/b",
		Duration:    1500 * time.Millisecond,
		Status:      models.StatusPartial,
		Outcomes: []models.Outcome{
			{RelativePath: ".", Decision: models.Recurse(), Result: models.OK()},
			{RelativePath: "d", Decision: models.ConflictWon(models.SideA, "type mismatch, newer side wins"), Result: models.OK()},
			{RelativePath: "f.txt", Decision: models.CopyAToB("missing on other side"), Result: models.OK(), BytesCopied: 2048},
			{RelativePath: "g.txt", Decision: models.CopyBToA("newer"), Result: models.OK(), BytesCopied: 10},
			{RelativePath: "link", Decision: models.Skip(models.ReasonSymlinkNotFollowed), Result: models.OK()},
			{RelativePath: "same.txt", Decision: models.Skip(models.ReasonIdenticalMtime), Result: models.OK()},
			{RelativePath: "locked", Decision: models.CopyAToB("missing on other side"),
				Result: models.Failed(models.ErrCopy, models.NewSyncError(models.ErrPermissionDenied, "locked", "list", os.ErrPermission))},
		},
		Conflicts: []models.Conflict{{Path: "d", Winner: models.SideA, ResultDescription: "directory on side a replaced file on side b"}},
	}
	report.Stats.FilesCopiedAToB.Store(1)
	report.Stats.FilesCopiedBToA.Store(1)
	report.Stats.BytesTransferred.Store(2058)
	report.Stats.EntriesErrored.Store(1)
	return report
}

func TestFormatDecision(t *testing.T) {
	tests := []struct {
		decision models.Decision
		want     string
	}{
		{models.CopyAToB("newer"), "a -> b"},
		{models.CopyBToA("newer"), "b -> a"},
		{models.ConflictWon(models.SideB, "type mismatch"), "conflict, b wins"},
		{models.Recurse(), "recurse"},
		{models.Skip(models.ReasonBothMissing), "skip"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatDecision(tt.decision))
		})
	}
}

func TestParseColorMode(t *testing.T) {
	for in, want := range map[string]ColorMode{"": ColorAuto, "auto": ColorAuto, "always": ColorAlways, "never": ColorNever} {
		got, err := ParseColorMode(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseColorMode("sometimes")
	assert.Error(t, err)

	// a buffer is never a terminal
	assert.False(t, ColorAuto.enabled(&bytes.Buffer{}))
	assert.True(t, ColorAlways.enabled(&bytes.Buffer{}))
}

func TestHumanFormatter(t *testing.T) {
	var buf bytes.Buffer
	f := NewHumanFormatter()
	f.SetColorMode(ColorNever)
	require.NoError(t, f.Start(&buf, "/tmp/a", "/tmp/b", 4))

	f.Progress(ProgressUpdate{Type: UpdateEntryComplete, FilePath: "f.txt", Decision: models.CopyAToB("newer"), BytesWritten: 2048})
	f.Progress(ProgressUpdate{Type: UpdateEntryComplete, FilePath: "same.txt", Decision: models.Skip(models.ReasonIdenticalMtime)})
	f.Progress(ProgressUpdate{Type: UpdateEntryComplete, FilePath: "d", Decision: models.ConflictWon(models.SideA, "type mismatch, newer side wins")})
	f.Progress(ProgressUpdate{Type: UpdateEntryError, FilePath: "locked", Decision: models.CopyAToB("newer"), Error: errors.New("denied")})
	require.NoError(t, f.Complete(sampleReport()))

	out := buf.String()
	assert.Contains(t, out, "Synchronizing /tmp/a <-> /tmp/b (4 workers)")
	assert.Contains(t, out, "✓ a -> b         f.txt (2.0 KiB)")
	assert.NotContains(t, out, "same.txt (identical mtime)")
	assert.Contains(t, out, "! conflict, a wins d (type mismatch, newer side wins)")
	assert.Contains(t, out, "✗ a -> b         locked: denied")
	assert.Contains(t, out, "Sync completed in 1.5s")
	assert.Contains(t, out, "Status: partial")
	assert.Contains(t, out, "d: directory on side a replaced file on side b")
	assert.Contains(t, out, "locked: [permission_denied]")
	assert.NotContains(t, out, "\x1b[", "colors must be off")
}

func TestHumanFormatterVerbose(t *testing.T) {
	var buf bytes.Buffer
	f := NewHumanFormatter()
	f.SetVerbose(true)
	f.Start(&buf, "a", "b", 1)

	f.Progress(ProgressUpdate{Type: UpdateState, State: "recursing"})
	f.Progress(ProgressUpdate{Type: UpdateEntryComplete, FilePath: "same.txt", Decision: models.Skip(models.ReasonIdenticalMtime)})

	assert.Contains(t, buf.String(), "-- recursing")
	assert.Contains(t, buf.String(), "same.txt (identical mtime)")
}

func TestHumanFormatterDryRunTitle(t *testing.T) {
	var buf bytes.Buffer
	f := NewHumanFormatter()
	f.Start(&buf, "a", "b", 1)
	report := sampleReport()
	report.DryRun = true
	f.Complete(report)
	assert.Contains(t, buf.String(), "Dry run completed")
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	f := NewJSONFormatter()
	require.NoError(t, f.Start(&buf, "/tmp/a", "/tmp/b", 2))

	f.Progress(ProgressUpdate{Type: UpdateState, State: "comparing_roots"})
	f.Progress(ProgressUpdate{Type: UpdateFileProgress, FilePath: "f.txt", BytesWritten: 10})
	f.Progress(ProgressUpdate{Type: UpdateEntryComplete, FilePath: "f.txt", Decision: models.CopyAToB("newer"), BytesWritten: 10})
	f.Error(errors.New("boom"))
	require.NoError(t, f.Complete(sampleReport()))

	var events []map[string]any
	scanner := bufio.NewScanner(&buf)
	for scanner.Scan() {
		var event map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &event), scanner.Text())
		events = append(events, event)
	}

	var types []string
	for _, e := range events {
		types = append(types, e["type"].(string))
	}
	assert.Equal(t, []string{"start", "state", "entry_complete", "error", "complete"}, types)

	entry := events[2]["data"].(map[string]any)
	assert.Equal(t, "f.txt", entry["path"])
	assert.Equal(t, "copy-a-to-b", entry["action"])
	assert.Equal(t, "a", entry["winner"])

	final := events[4]["data"].(map[string]any)
	assert.Equal(t, "partial", final["status"])
	assert.Equal(t, float64(1), final["exit_code"])
	assert.Nil(t, final["outcomes"])
	require.Len(t, final["errors"], 1)
}

func TestNewJSONReport(t *testing.T) {
	data := NewJSONReport(sampleReport(), true)
	assert.Len(t, data.Outcomes, 7)
	require.Len(t, data.Errors, 1)
	assert.Equal(t, "locked", data.Errors[0].Path)
	assert.Equal(t, "permission_denied", data.Errors[0].ErrorKind)
	assert.Equal(t, int64(2058), data.Stats.BytesTransferred)
	assert.Equal(t, "1.5s", data.Duration)
	assert.NotEmpty(t, data.Stats.AverageSpeedStr)
}

func TestChannelFormatter(t *testing.T) {
	t.Run("NonBlockingDrops", func(t *testing.T) {
		ch := make(chan ProgressUpdate, 1)
		f := NewChannelFormatter(ch, false)

		f.Progress(ProgressUpdate{Type: UpdateState, State: "init"})
		f.Progress(ProgressUpdate{Type: UpdateState, State: "comparing_roots"})

		assert.Equal(t, int64(1), f.Dropped())
		assert.Equal(t, "init", (<-ch).State)
	})

	t.Run("Blocking", func(t *testing.T) {
		ch := make(chan ProgressUpdate)
		f := NewChannelFormatter(ch, true)

		done := make(chan struct{})
		go func() {
			defer close(done)
			f.Progress(ProgressUpdate{Type: UpdateEntryComplete, FilePath: "x"})
			f.Error(errors.New("boom"))
		}()

		assert.Equal(t, "x", (<-ch).FilePath)
		assert.EqualError(t, (<-ch).Error, "boom")
		<-done
		assert.Zero(t, f.Dropped())
	})

	t.Run("KeepsReport", func(t *testing.T) {
		f := NewChannelFormatter(make(chan ProgressUpdate), false)
		assert.Nil(t, f.Report())
		report := sampleReport()
		f.Complete(report)
		assert.Same(t, report, f.Report())
		assert.Equal(t, "channel", f.Name())
	})
}

func TestProgressFormatterFallsBackWithoutTerminal(t *testing.T) {
	var buf bytes.Buffer
	f := NewProgressFormatter()
	f.SetColorMode(ColorNever)
	require.NoError(t, f.Start(&buf, "a", "b", 2))
	require.NotNil(t, f.fallback)
	assert.Nil(t, f.bar)

	f.Progress(ProgressUpdate{Type: UpdateEntryStart, FilePath: "f.txt", Decision: models.CopyAToB("newer"), TotalBytes: 5})
	f.Progress(ProgressUpdate{Type: UpdateEntryComplete, FilePath: "f.txt", Decision: models.CopyAToB("newer"), BytesWritten: 5})
	f.Complete(sampleReport())

	assert.Contains(t, buf.String(), "f.txt (5 B)")
	assert.Contains(t, buf.String(), "Status: partial")
	assert.Equal(t, "progress", f.Name())
}

func TestWriteReport(t *testing.T) {
	dir := t.TempDir()

	t.Run("Human", func(t *testing.T) {
		path := filepath.Join(dir, "report.txt")
		require.NoError(t, WriteReport(sampleReport(), path, "human"))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		out := string(data)

		assert.Contains(t, out, "Operation: op-1")
		assert.Contains(t, out, "Errors (1)")
		assert.Contains(t, out, "Conflicts (1)")
		assert.Contains(t, out, "Copied a -> b (1)")
		assert.Contains(t, out, "Copied b -> a (1)")
		assert.Contains(t, out, "Skipped (1)")
		assert.Contains(t, out, "Copied:   2.0 KiB")
		assert.NotContains(t, out, "same.txt")
		assert.Less(t, strings.Index(out, "Errors"), strings.Index(out, "Conflicts"))
	})

	t.Run("JSON", func(t *testing.T) {
		path := filepath.Join(dir, "report.json")
		require.NoError(t, WriteReport(sampleReport(), path, "json"))

		data, err := os.ReadFile(path)
		require.NoError(t, err)

		var decoded struct {
			Generated string            `json:"generated"`
			Status    string            `json:"status"`
			Outcomes  []JSONOutcomeData `json:"outcomes"`
		}
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.NotEmpty(t, decoded.Generated)
		assert.Equal(t, "partial", decoded.Status)
		assert.Len(t, decoded.Outcomes, 7)
	})

	t.Run("BadPath", func(t *testing.T) {
		err := WriteReport(sampleReport(), filepath.Join(dir, "missing", "r.txt"), "human")
		assert.Error(t, err)
	})
}

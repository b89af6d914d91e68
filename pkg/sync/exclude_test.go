package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExcluder(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		path     string
		isDir    bool
		want     bool
	}{
		{"NoPatterns", nil, "file.txt", false, false},
		{"SimpleGlob", []string{"*.tmp"}, "file.tmp", false, true},
		{"SimpleGlobNested", []string{"*.tmp"}, "a/b/file.tmp", false, true},
		{"SimpleGlobNoMatch", []string{"*.tmp"}, "file.txt", false, false},
		{"DirectoryPattern", []string{"node_modules/"}, "node_modules", true, true},
		{"DirectoryPatternNested", []string{"node_modules/"}, "web/node_modules", true, true},
		{"DirectoryPatternSkipsFiles", []string{"node_modules/"}, "node_modules", false, false},
		{"PathPattern", []string{"build/*"}, "build/out.bin", false, true},
		{"PathPatternNotNested", []string{"build/*"}, "src/build/out.bin", false, false},
		{"DoubleStar", []string{"**/test/*"}, "a/b/test/x.go", false, true},
		{"DoubleStarAtRoot", []string{"**/test/*"}, "test/x.go", false, true},
		{"Absolute", []string{"/top.txt"}, "top.txt", false, true},
		{"AbsoluteNotNested", []string{"/top.txt"}, "sub/top.txt", false, false},
		{"Negation", []string{"*.log", "!keep.log"}, "keep.log", false, false},
		{"NegationOtherStillExcluded", []string{"*.log", "!keep.log"}, "drop.log", false, true},
		{"LastMatchWins", []string{"!keep.log", "*.log"}, "keep.log", false, true},
		{"InternalStagingAlwaysExcluded", nil, ".keepsync-123.tmp", true, true},
		{"InternalStagingNested", nil, "a/.keepsync-9.tmp", false, true},
		{"RootNeverExcluded", []string{"*"}, ".", true, false},
		{"EmptyPatternIgnored", []string{"", "  "}, "file.txt", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := NewExcluder(tt.patterns)
			require.NoError(t, err)
			assert.Equal(t, tt.want, e.Excluded(tt.path, tt.isDir))
		})
	}
}

func TestExcluderInvalidPatterns(t *testing.T) {
	for _, p := range []string{"[", "/", "!"} {
		t.Run(p, func(t *testing.T) {
			_, err := NewExcluder([]string{p})
			assert.Error(t, err)
		})
	}
}

func TestNilExcluder(t *testing.T) {
	var e *Excluder
	assert.False(t, e.Excluded("anything", false))
}

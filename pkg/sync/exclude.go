package sync

import (
	"fmt"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/sdejongh/keepsync/pkg/storage"
)

// internalPattern keeps staging files and directories of interrupted runs out
// of every sync
const internalPattern = storage.TempPrefix + "*"

// excludeRule is one parsed exclude pattern
type excludeRule struct {
	pattern string
	negated bool
	dirOnly bool
	// matchLeaf is set for patterns without a slash, which also match the
	// last path component at any depth
	matchLeaf bool
}

// Excluder decides which relative paths are left out of a sync.
// Patterns use doublestar syntax:
//   - Simple glob patterns: *.tmp, *.log
//   - Directory patterns: .git/, node_modules/
//   - Path patterns: build/*, **/test/*, /top-level-only
//   - Negation: !important.log
//
// Rules are evaluated in order and the last matching rule wins.
type Excluder struct {
	rules []excludeRule
}

// NewExcluder parses patterns. Invalid patterns are reported, not ignored.
func NewExcluder(patterns []string) (*Excluder, error) {
	e := &Excluder{}
	for _, p := range append([]string{internalPattern}, patterns...) {
		if strings.TrimSpace(p) == "" {
			continue
		}
		rule, err := parseExcludeRule(p)
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", p, err)
		}
		e.rules = append(e.rules, rule)
	}
	return e, nil
}

func parseExcludeRule(pattern string) (excludeRule, error) {
	var rule excludeRule

	if strings.HasPrefix(pattern, "!") {
		rule.negated = true
		pattern = pattern[1:]
	}
	if strings.HasSuffix(pattern, "/") {
		rule.dirOnly = true
		pattern = strings.TrimRight(pattern, "/")
	}

	absolute := strings.HasPrefix(pattern, "/")
	pattern = strings.TrimLeft(path.Clean("/"+pattern), "/")
	if pattern == "" || pattern == "." {
		return rule, fmt.Errorf("pattern matches the root")
	}

	if !doublestar.ValidatePattern(pattern) {
		return rule, doublestar.ErrBadPattern
	}

	rule.pattern = pattern
	rule.matchLeaf = !absolute && !strings.Contains(pattern, "/")
	return rule, nil
}

func (r excludeRule) matches(rel string, isDir bool) bool {
	if r.dirOnly && !isDir {
		return false
	}
	if ok, _ := doublestar.Match(r.pattern, rel); ok {
		return true
	}
	if r.matchLeaf {
		ok, _ := doublestar.Match(r.pattern, path.Base(rel))
		return ok
	}
	return false
}

// Excluded reports whether the entry at rel is left out. An excluded
// directory is not descended into, so its contents are never visited.
func (e *Excluder) Excluded(rel string, isDir bool) bool {
	if e == nil || rel == "" || rel == "." {
		return false
	}

	excluded := false
	for _, rule := range e.rules {
		if rule.matches(rel, isDir) {
			excluded = !rule.negated
		}
	}
	return excluded
}

package watcher

import (
	"path/filepath"

	"github.com/bmatcuk/doublestar/v2"
)

// matchesAny reports whether any pattern in patterns matches either name
// (the bare filename) or path (the full path).
func matchesAny(patterns []string, name, path string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, name); ok {
			return true
		}
		if ok, _ := doublestar.Match(p, path); ok {
			return true
		}
	}
	return false
}

// shouldEmit decides whether path passes c's pattern gate: no ignore pattern
// (default or configured) matches, and some positive pattern does. An empty
// Patterns list matches everything.
func shouldEmit(c *WatchConfig, path string) bool {
	name := filepath.Base(path)
	if matchesAny(defaultIgnorePatterns, name, path) {
		return false
	}
	if matchesAny(c.Ignore, name, path) {
		return false
	}
	positive := c.Patterns
	if len(positive) == 0 {
		positive = []string{"*"}
	}
	return matchesAny(positive, name, path)
}

// Package watcher watches configured directories for file activity and
// turns matching filesystem events into debounced DetectedEvents delivered
// to a single sink.
package watcher

import (
	"github.com/buildbeaver/docflow/internal/model"
)

// EventType enumerates the filesystem change kinds a watch can react to.
type EventType string

const (
	EventCreated  EventType = "created"
	EventModified EventType = "modified"
	EventDeleted  EventType = "deleted"
	EventMoved    EventType = "moved"
)

// RedetectPolicy decides what happens when a file whose job already
// completed is modified again.
type RedetectPolicy string

const (
	RedetectIgnore RedetectPolicy = "ignore"
	RedetectNewJob RedetectPolicy = "new_job"
)

// WatchConfig describes one directory to watch.
type WatchConfig struct {
	Path            string      `yaml:"path"`
	Name            string      `yaml:"name"`
	Patterns        []string    `yaml:"patterns"`
	Ignore          []string    `yaml:"ignore"`
	Recursive       bool        `yaml:"recursive"`
	Events          []EventType `yaml:"events"`
	DebounceSeconds float64     `yaml:"debounce_seconds"`
	Enabled         bool        `yaml:"enabled"`

	SourceType       model.SourceType       `yaml:"source_type"`
	Tags             []string               `yaml:"tags"`
	Priority         int                    `yaml:"priority"`
	InitialProcessor string                 `yaml:"initial_processor"`
	RedetectPolicy   RedetectPolicy         `yaml:"redetect_policy"`
	Metadata         map[string]interface{} `yaml:"metadata"`
}

// defaultIgnorePatterns are checked first against filename and full path,
// regardless of a WatchConfig's own Ignore list.
var defaultIgnorePatterns = []string{
	".DS_Store",
	"*.swp",
	"*~",
	".git/*",
	"*.tmp",
}

// wantsEvent reports whether c is configured to react to et. An empty Events
// list means "all events", matching a watch with no explicit restriction.
func (c *WatchConfig) wantsEvent(et EventType) bool {
	if len(c.Events) == 0 {
		return true
	}
	for _, e := range c.Events {
		if e == et {
			return true
		}
	}
	return false
}

// DetectedEvent is what the watcher hands to its sink after debouncing: one
// matched, debounced filesystem change on one configured watch.
type DetectedEvent struct {
	WatchName string
	Config    *WatchConfig
	Path      string
	EventType EventType
}

// Sink receives DetectedEvents. The watcher invokes the sink inside a
// recover-guarded call, so a panicking sink is logged and swallowed rather
// than taking down the drain loop.
type Sink func(DetectedEvent)

package logger

import (
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

const defaultLevel = logrus.InfoLevel

var levelByName = map[string]logrus.Level{
	"trace":   logrus.TraceLevel,
	"debug":   logrus.DebugLevel,
	"info":    logrus.InfoLevel,
	"warning": logrus.WarnLevel,
	"warn":    logrus.WarnLevel,
	"error":   logrus.ErrorLevel,
}

// LogLevelConfig is a "subsystem=level,subsystem=level" string, e.g.
// "watcher=debug,executor=trace". An entry with no "=" is treated as the
// default level for every subsystem not otherwise listed.
type LogLevelConfig string

// LogRegistry resolves a log level per subsystem, parsed from a LogLevelConfig.
type LogRegistry struct {
	mu           sync.Mutex
	levelByName  map[string]logrus.Level
	defaultLevel logrus.Level
}

// NewLogRegistry parses config into a LogRegistry. Returns an error if any
// pair is malformed or names an unknown level.
func NewLogRegistry(config LogLevelConfig) (*LogRegistry, error) {
	r := &LogRegistry{levelByName: make(map[string]logrus.Level), defaultLevel: defaultLevel}
	if config == "" {
		return r, nil
	}
	for _, pair := range strings.Split(string(config), ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) == 1 {
			level, ok := levelByName[strings.ToLower(parts[0])]
			if !ok {
				return nil, fmt.Errorf("error invalid default log level: %q (valid: %s)", parts[0], ListLevels())
			}
			r.defaultLevel = level
			continue
		}
		level, ok := levelByName[strings.ToLower(parts[1])]
		if !ok {
			return nil, fmt.Errorf("error invalid log level for %q: %q (valid: %s)", parts[0], parts[1], ListLevels())
		}
		r.levelByName[parts[0]] = level
	}
	return r, nil
}

// ListLevels returns a comma separated list of valid level names.
func ListLevels() string {
	names := make([]string, 0, len(levelByName))
	for k := range levelByName {
		names = append(names, k)
	}
	return strings.Join(names, ", ")
}

// GetLevel returns the configured level for subsystem, or the default level if unset.
func (r *LogRegistry) GetLevel(subsystem string) logrus.Level {
	r.mu.Lock()
	defer r.mu.Unlock()
	if level, ok := r.levelByName[subsystem]; ok {
		return level
	}
	return r.defaultLevel
}

// Package watchconfig loads the YAML document describing a set of
// internal/watcher.WatchConfig entries.
package watchconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/buildbeaver/docflow/internal/watcher"
)

// document is the on-disk shape: a top-level `watches:` list. Entries are
// kept as raw nodes so each can be decoded over a pre-defaulted WatchConfig
// (an omitted `enabled:` means enabled, not disabled).
type document struct {
	Watches []yaml.Node `yaml:"watches"`
}

// Load reads and parses path into a slice of WatchConfigs, applying the
// defaults any entry omits (debounce_seconds, enabled, redetect_policy,
// source_type).
func Load(path string) ([]*watcher.WatchConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading watch config %q: %w", path, err)
	}
	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("error parsing watch config %q: %w", path, err)
	}
	configs := make([]*watcher.WatchConfig, 0, len(doc.Watches))
	for i := range doc.Watches {
		w := &watcher.WatchConfig{
			Enabled:         true,
			DebounceSeconds: 2,
			RedetectPolicy:  watcher.RedetectIgnore,
			SourceType:      "file",
		}
		if err := doc.Watches[i].Decode(w); err != nil {
			return nil, fmt.Errorf("error parsing watch entry %d in %q: %w", i, path, err)
		}
		configs = append(configs, w)
	}
	return configs, nil
}

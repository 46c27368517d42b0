package plugin

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Manifest is the per-plugin metadata document, one per plugin directory.
type Manifest struct {
	Name           string                        `yaml:"name"`
	DisplayName    string                        `yaml:"display_name"`
	Description    string                        `yaml:"description"`
	Version        string                        `yaml:"version"`
	Requires       []string                      `yaml:"requires"`
	Config         map[string]ManifestConfigItem `yaml:"config"`
	UI             ManifestUI                    `yaml:"ui"`
	ProcessorClass string                        `yaml:"processor_class"`
}

// ManifestConfigItem is one entry of the manifest's `config` map.
type ManifestConfigItem struct {
	Type        string      `yaml:"type"`
	Default     interface{} `yaml:"default"`
	Description string      `yaml:"description"`
}

// ManifestUI describes the `ui` block of a manifest.
type ManifestUI struct {
	HasPanel      bool   `yaml:"has_panel"`
	RequiresInput string `yaml:"requires_input"`
}

const manifestFileName = "manifest.yaml"

// LoadManifest reads and parses the manifest document in dir. A missing
// manifest is non-fatal; it returns (nil, nil) in that case and the caller
// falls back to the processor's own metadata.
func LoadManifest(dir string) (*Manifest, error) {
	path := filepath.Join(dir, manifestFileName)
	buf, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading manifest %s: %w", path, err)
	}
	var m Manifest
	if err := yaml.Unmarshal(buf, &m); err != nil {
		return nil, fmt.Errorf("error parsing manifest %s: %w", path, err)
	}
	return &m, nil
}

// DiscoverPluginDirs enumerates top-level sub-directories of root, skipping
// any whose name begins with "." or "_".
func DiscoverPluginDirs(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("error reading plugin directory %s: %w", root, err)
	}
	var dirs []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
			continue
		}
		dirs = append(dirs, filepath.Join(root, name))
	}
	sort.Strings(dirs)
	return dirs, nil
}

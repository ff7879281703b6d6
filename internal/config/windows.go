package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// WindowEntry describes a single tab to open at startup.
type WindowEntry struct {
	URL string `yaml:"url"`
}

// WindowsConfig is the top-level YAML configuration for startup tabs.
type WindowsConfig struct {
	Windows []WindowEntry `yaml:"windows"`
}

// LoadWindows reads and validates a windows YAML config file.
// Returns an os.ErrNotExist-wrapped error if the file is absent (caller
// silently skips in that case).
func LoadWindows(path string) (*WindowsConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("windows config: %w", err)
	}
	var cfg WindowsConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("windows config: %w", err)
	}
	if len(cfg.Windows) < 1 {
		return nil, fmt.Errorf("windows config: at least one window entry is required")
	}
	for i, w := range cfg.Windows {
		if w.URL == "" {
			return nil, fmt.Errorf("windows config: windows[%d] missing url", i)
		}
	}
	return &cfg, nil
}

// URLs returns the configured start URLs in file order.
func (w *WindowsConfig) URLs() []string {
	out := make([]string, 0, len(w.Windows))
	for _, entry := range w.Windows {
		out = append(out, entry.URL)
	}
	return out
}

package xbased

import (
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"
)

// ProjectConfig is the optional per-root `.xbase.yml`, SPEC_FULL.md §3's
// ambient configuration layer, parsed the way the teacher module parses its
// own document format.
type ProjectConfig struct {
	// Ignore lists additional glob patterns merged with the built-in
	// defaults (spec.md §3 "ignore-glob list").
	Ignore []string `yaml:"ignore"`
	// Targets overrides/extends the target->platform map the minimal
	// project parser derives.
	Targets map[string]string `yaml:"targets"`
}

// defaultIgnoreGlobs are always applied regardless of .xbase.yml, covering
// the noisy directories a real Xcode project accumulates.
var defaultIgnoreGlobs = []string{
	".git", ".build", "DerivedData", "*.xcuserstate", "*.xcuserdatad",
	"Pods", ".swiftpm",
}

// loadProjectConfig reads `<root>/.xbase.yml` if present. A missing file is
// not an error; ProjectConfig is returned zero-valued.
func loadProjectConfig(root string) (*ProjectConfig, string, error) {
	path := filepath.Join(root, ".xbase.yml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &ProjectConfig{}, "", nil
		}
		return nil, "", unexpected("reading .xbase.yml", err)
	}

	cfg := &ProjectConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, "", unexpected("parsing .xbase.yml", err)
	}
	return cfg, path, nil
}

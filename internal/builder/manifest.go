package builder

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ManifestName is the optional per-project override file at the project
// root.
const ManifestName = "appforge.yaml"

// DefaultOutputDir is where the build is expected to land when neither
// settings nor the manifest say otherwise.
const DefaultOutputDir = "dist"

// Manifest overrides the global build settings for one project. Empty fields
// keep the defaults.
type Manifest struct {
	Install        string `yaml:"install,omitempty"`
	Build          string `yaml:"build,omitempty"`
	Output         string `yaml:"output,omitempty"`
	TimeoutSeconds int    `yaml:"timeout_seconds,omitempty"`
}

// Config is the fully resolved build plan for one project.
type Config struct {
	InstallCommand string
	BuildCommand   string
	OutputDir      string
	Timeout        time.Duration
}

// LoadManifest reads dir's manifest. A missing manifest is normal and
// returns nil; a manifest that exists but does not parse is an error, since
// silently building with defaults would mask the typo.
func LoadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", ManifestName, err)
	}
	return &m, nil
}

// ResolveConfig layers the manifest over the defaults.
func ResolveConfig(defaults Config, m *Manifest) Config {
	cfg := defaults
	if cfg.OutputDir == "" {
		cfg.OutputDir = DefaultOutputDir
	}
	if m == nil {
		return cfg
	}
	if v := strings.TrimSpace(m.Install); v != "" {
		cfg.InstallCommand = v
	}
	if v := strings.TrimSpace(m.Build); v != "" {
		cfg.BuildCommand = v
	}
	if v := strings.TrimSpace(m.Output); v != "" {
		cfg.OutputDir = v
	}
	if m.TimeoutSeconds > 0 {
		cfg.Timeout = time.Duration(m.TimeoutSeconds) * time.Second
	}
	return cfg
}

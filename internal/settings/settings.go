package settings

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const schemaVersion = 1

const (
	defaultInstallCommand = "npm install"
	defaultBuildCommand   = "npm run build"
	defaultTimeoutSeconds = 180
	maxTimeoutSeconds     = 3600
)

// Settings holds the build defaults every project inherits. A project's
// manifest can override them per project.
type Settings struct {
	SchemaVersion  int    `json:"schema_version"`
	InstallCommand string `json:"install_command"`
	BuildCommand   string `json:"build_command"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	TemplateDir    string `json:"template_dir,omitempty"`
}

type Store struct {
	path string
	mu   sync.Mutex
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Load() (*Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaultSettings(), nil
		}
		return nil, err
	}
	var settings Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, err
	}
	backfillSettings(&settings)
	return &settings, nil
}

func (s *Store) Save(settings *Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	backfillSettings(settings)
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o600)
}

func (s *Store) Update(fn func(*Settings)) (*Settings, error) {
	settings, err := s.Load()
	if err != nil {
		return nil, err
	}
	fn(settings)
	return settings, s.Save(settings)
}

func defaultSettings() *Settings {
	return &Settings{
		SchemaVersion:  schemaVersion,
		InstallCommand: defaultInstallCommand,
		BuildCommand:   defaultBuildCommand,
		TimeoutSeconds: defaultTimeoutSeconds,
	}
}

func backfillSettings(settings *Settings) {
	if settings.SchemaVersion == 0 {
		settings.SchemaVersion = schemaVersion
	}
	settings.InstallCommand = strings.TrimSpace(settings.InstallCommand)
	if settings.InstallCommand == "" {
		settings.InstallCommand = defaultInstallCommand
	}
	settings.BuildCommand = strings.TrimSpace(settings.BuildCommand)
	if settings.BuildCommand == "" {
		settings.BuildCommand = defaultBuildCommand
	}
	settings.TimeoutSeconds = normalizeTimeout(settings.TimeoutSeconds)
	settings.TemplateDir = strings.TrimSpace(settings.TemplateDir)
}

func normalizeTimeout(seconds int) int {
	if seconds <= 0 {
		return defaultTimeoutSeconds
	}
	if seconds > maxTimeoutSeconds {
		return maxTimeoutSeconds
	}
	return seconds
}

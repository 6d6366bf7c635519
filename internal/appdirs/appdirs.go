package appdirs

import (
	"os"
	"path/filepath"
)

const (
	appDirName = "appforge"
)

func DataDir() (string, error) {
	if override := os.Getenv("APPFORGE_DATA_DIR"); override != "" {
		return override, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, appDirName), nil
}

func WorkspacesDir(dataDir string) string {
	return filepath.Join(dataDir, "workspaces")
}

func SnapshotsDir(dataDir string) string {
	return filepath.Join(dataDir, "snapshots")
}

// TemplateDir resolves the template tree the engine instantiates projects
// from. The env override wins; otherwise the template ships next to the
// engine's data directory.
func TemplateDir(dataDir string) string {
	if override := os.Getenv("APPFORGE_TEMPLATE_DIR"); override != "" {
		return override
	}
	return filepath.Join(dataDir, "template")
}

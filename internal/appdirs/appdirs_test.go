package appdirs

import (
	"os"
	"testing"
)

func TestDataDirOverride(t *testing.T) {
	os.Setenv("APPFORGE_DATA_DIR", "/tmp/appforge-test")
	defer os.Unsetenv("APPFORGE_DATA_DIR")
	path, err := DataDir()
	if err != nil {
		t.Fatalf("data dir: %v", err)
	}
	if path != "/tmp/appforge-test" {
		t.Fatalf("expected override path, got %s", path)
	}

	workspaces := WorkspacesDir(path)
	if workspaces != "/tmp/appforge-test/workspaces" {
		t.Fatalf("expected workspaces dir, got %s", workspaces)
	}
	snapshots := SnapshotsDir(path)
	if snapshots != "/tmp/appforge-test/snapshots" {
		t.Fatalf("expected snapshots dir, got %s", snapshots)
	}
}

func TestTemplateDirOverride(t *testing.T) {
	os.Setenv("APPFORGE_TEMPLATE_DIR", "/tmp/appforge-template")
	defer os.Unsetenv("APPFORGE_TEMPLATE_DIR")
	if dir := TemplateDir("/data"); dir != "/tmp/appforge-template" {
		t.Fatalf("expected override template dir, got %s", dir)
	}
	os.Unsetenv("APPFORGE_TEMPLATE_DIR")
	if dir := TemplateDir("/data"); dir != "/data/template" {
		t.Fatalf("expected default template dir, got %s", dir)
	}
}

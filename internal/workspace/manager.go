package workspace

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrPathTraversal    = errors.New("path escapes project workspace")
	ErrInvalidProjectID = errors.New("invalid project id")
	ErrProjectExists    = errors.New("project already exists")
	ErrProjectNotFound  = errors.New("project not found")
)

// Manager owns the workspace tree: one directory per project under baseDir,
// snapshot copies under snapshotsDir.
type Manager struct {
	baseDir      string
	snapshotsDir string
}

func NewManager(baseDir, snapshotsDir string) *Manager {
	return &Manager{baseDir: baseDir, snapshotsDir: snapshotsDir}
}

func (m *Manager) Init() error {
	if err := os.MkdirAll(m.baseDir, 0o755); err != nil {
		return err
	}
	return os.MkdirAll(m.snapshotsDir, 0o755)
}

// NewProjectID allocates an identifier for callers that do not bring their
// own.
func NewProjectID() string {
	return "proj-" + newID()
}

func (m *Manager) projectRoot(projectID string) (string, error) {
	if projectID == "" || strings.ContainsAny(projectID, string(filepath.Separator)+"\\") || strings.Contains(projectID, "..") {
		return "", ErrInvalidProjectID
	}
	return filepath.Join(m.baseDir, projectID), nil
}

// Root returns the project's workspace directory without requiring it to
// exist yet.
func (m *Manager) Root(projectID string) (string, error) {
	return m.projectRoot(projectID)
}

func (m *Manager) Exists(projectID string) bool {
	root, err := m.projectRoot(projectID)
	if err != nil {
		return false
	}
	info, err := os.Stat(root)
	return err == nil && info.IsDir()
}

// ResolveSafe validates that relPath names a location strictly inside the
// project's workspace and returns the canonical absolute path. The workspace
// root itself is not a valid target. Symlinks on the existing portion of the
// path are resolved before the containment check, so a link pointing out of
// the workspace cannot smuggle an operation outside it.
func (m *Manager) ResolveSafe(projectID, relPath string) (string, error) {
	root, err := m.projectRoot(projectID)
	if err != nil {
		return "", err
	}
	if relPath == "" || filepath.IsAbs(relPath) || strings.Contains(relPath, "\\") {
		return "", ErrPathTraversal
	}
	sep := string(filepath.Separator)
	candidate := filepath.Join(root, relPath)
	if candidate == root || !strings.HasPrefix(candidate, root+sep) {
		return "", ErrPathTraversal
	}
	resolvedRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrProjectNotFound
		}
		return "", err
	}
	resolved, ok := evalExistingPrefix(candidate)
	if !ok {
		// Nothing of the candidate path exists yet; the lexical check above
		// is the whole story.
		return candidate, nil
	}
	if resolved != resolvedRoot && !strings.HasPrefix(resolved, resolvedRoot+sep) {
		return "", ErrPathTraversal
	}
	if resolved == resolvedRoot {
		return "", ErrPathTraversal
	}
	return resolved, nil
}

// evalExistingPrefix canonicalizes the deepest existing ancestor of path and
// rejoins the not-yet-created remainder.
func evalExistingPrefix(path string) (string, bool) {
	remainder := ""
	current := path
	for {
		resolved, err := filepath.EvalSymlinks(current)
		if err == nil {
			if remainder == "" {
				return resolved, true
			}
			return filepath.Join(resolved, remainder), true
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", false
		}
		if remainder == "" {
			remainder = filepath.Base(current)
		} else {
			remainder = filepath.Join(filepath.Base(current), remainder)
		}
		current = parent
	}
}

// CreateProject makes the workspace directory and copies the template tree
// into it verbatim. A failed copy removes the partial workspace so a retry
// starts clean.
func (m *Manager) CreateProject(projectID, templateDir string) error {
	root, err := m.projectRoot(projectID)
	if err != nil {
		return err
	}
	if _, err := os.Stat(root); err == nil {
		return ErrProjectExists
	} else if !os.IsNotExist(err) {
		return err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("create workspace dir: %w", err)
	}
	if templateDir != "" {
		if err := copyDir(templateDir, root); err != nil {
			_ = os.RemoveAll(root)
			return fmt.Errorf("copy template: %w", err)
		}
	}
	return nil
}

// ReadFile reads a workspace file through the path guard.
func (m *Manager) ReadFile(projectID, relPath string) ([]byte, error) {
	full, err := m.ResolveSafe(projectID, relPath)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(full)
}

func newID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

func copyDir(src, dest string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			if err := copyDir(filepath.Join(src, entry.Name()), filepath.Join(dest, entry.Name())); err != nil {
				return err
			}
			continue
		}
		if err := copyFile(filepath.Join(src, entry.Name()), filepath.Join(dest, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp")
	if err != nil {
		return err
	}
	name := tmp.Name()
	defer os.Remove(name)
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(name, path)
}

func readJSON(path string, dest interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

func writeJSON(path string, payload interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

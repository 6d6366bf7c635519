package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

var ErrSnapshotNotFound = errors.New("snapshot not found")

type SnapshotMetadata struct {
	SnapshotID string `json:"snapshot_id"`
	CreatedAt  string `json:"created_at"`
	Reason     string `json:"reason,omitempty"`
	Files      int    `json:"files"`
	TotalBytes int64  `json:"total_bytes"`
}

func (m *Manager) snapshotsRoot(projectID string) (string, error) {
	if _, err := m.projectRoot(projectID); err != nil {
		return "", err
	}
	return filepath.Join(m.snapshotsDir, projectID), nil
}

// SnapshotCreate records a point-in-time copy of the whole project tree.
func (m *Manager) SnapshotCreate(projectID, reason string) (SnapshotMetadata, error) {
	root, err := m.projectRoot(projectID)
	if err != nil {
		return SnapshotMetadata{}, err
	}
	if !m.Exists(projectID) {
		return SnapshotMetadata{}, ErrProjectNotFound
	}
	snapsRoot, err := m.snapshotsRoot(projectID)
	if err != nil {
		return SnapshotMetadata{}, err
	}
	snapshotID := newID()
	treeDir := filepath.Join(snapsRoot, snapshotID, "tree")
	if err := os.MkdirAll(treeDir, 0o755); err != nil {
		return SnapshotMetadata{}, err
	}
	if err := copyDir(root, treeDir); err != nil {
		_ = os.RemoveAll(filepath.Join(snapsRoot, snapshotID))
		return SnapshotMetadata{}, err
	}
	files, totalBytes := dirStats(treeDir)
	meta := SnapshotMetadata{
		SnapshotID: snapshotID,
		CreatedAt:  time.Now().UTC().Format(time.RFC3339),
		Reason:     reason,
		Files:      files,
		TotalBytes: totalBytes,
	}
	if err := writeJSON(filepath.Join(snapsRoot, fmt.Sprintf("%s.json", snapshotID)), meta); err != nil {
		_ = os.RemoveAll(filepath.Join(snapsRoot, snapshotID))
		return SnapshotMetadata{}, err
	}
	return meta, nil
}

func (m *Manager) SnapshotsList(projectID string) ([]SnapshotMetadata, error) {
	snapsRoot, err := m.snapshotsRoot(projectID)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(snapsRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return []SnapshotMetadata{}, nil
		}
		return nil, err
	}
	var results []SnapshotMetadata
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		var meta SnapshotMetadata
		if err := readJSON(filepath.Join(snapsRoot, entry.Name()), &meta); err != nil {
			continue
		}
		results = append(results, meta)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].CreatedAt > results[j].CreatedAt
	})
	return results, nil
}

// SnapshotRestore replaces the project tree with the snapshot's copy.
func (m *Manager) SnapshotRestore(projectID, snapshotID string) error {
	root, err := m.projectRoot(projectID)
	if err != nil {
		return err
	}
	if !m.Exists(projectID) {
		return ErrProjectNotFound
	}
	snapsRoot, err := m.snapshotsRoot(projectID)
	if err != nil {
		return err
	}
	if snapshotID == "" || strings.ContainsAny(snapshotID, string(filepath.Separator)+"\\") {
		return ErrSnapshotNotFound
	}
	treeDir := filepath.Join(snapsRoot, snapshotID, "tree")
	if info, err := os.Stat(treeDir); err != nil || !info.IsDir() {
		return ErrSnapshotNotFound
	}
	if err := clearDir(root); err != nil {
		return err
	}
	return copyDir(treeDir, root)
}

func clearDir(root string) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(root, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

func dirStats(root string) (int, int64) {
	files := 0
	var totalBytes int64
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		files++
		if info, err := d.Info(); err == nil {
			totalBytes += info.Size()
		}
		return nil
	})
	return files, totalBytes
}

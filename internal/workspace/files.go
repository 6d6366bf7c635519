package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"appforge/engine/internal/diff"
)

// These classify op outcomes for the orchestrator deciding which event to
// publish. The Message accompanying them is the feedback the model reads;
// none of them leave the file changed.
var (
	ErrOldTextNotFound  = errors.New("old text not found")
	ErrAmbiguousOldText = errors.New("old text is ambiguous")
	ErrIsDirectory      = errors.New("path is a directory")
)

// OpResult is the outcome of one file mutation. Message is always set, on
// success and failure alike, because the consumer is a model that needs a
// textual result to continue the conversation. Stats accompanies successful
// edits.
type OpResult struct {
	Message string
	Stats   *diff.Stats
}

// ViewEnd is the "to end of file" sentinel for ViewFile's range.
const ViewEnd = -1

// CreateFile writes content to relPath, creating parent directories and
// overwriting any existing file.
func (m *Manager) CreateFile(projectID, relPath, content string) (OpResult, error) {
	full, err := m.ResolveSafe(projectID, relPath)
	if err != nil {
		return OpResult{Message: opErrorMessage("create", relPath, err)}, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return OpResult{Message: opErrorMessage("create", relPath, err)}, err
	}
	if err := atomicWrite(full, []byte(content)); err != nil {
		return OpResult{Message: opErrorMessage("create", relPath, err)}, err
	}
	return OpResult{Message: fmt.Sprintf("Created file '%s' (%d bytes).", relPath, len(content))}, nil
}

// ViewFile returns the file's content with 1-indexed line numbers prefixed.
// start below 1 is clamped to 1; end equal to ViewEnd or past the last line
// is clamped to the line count.
func (m *Manager) ViewFile(projectID, relPath string, start, end int) (OpResult, error) {
	full, err := m.ResolveSafe(projectID, relPath)
	if err != nil {
		return OpResult{Message: opErrorMessage("view", relPath, err)}, err
	}
	info, err := os.Stat(full)
	if err != nil {
		return OpResult{Message: opErrorMessage("view", relPath, err)}, err
	}
	if info.IsDir() {
		return OpResult{
			Message: fmt.Sprintf("'%s' is a directory; specify a file to view its contents.", relPath),
		}, ErrIsDirectory
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return OpResult{Message: opErrorMessage("view", relPath, err)}, err
	}
	lines := strings.Split(string(data), "\n")
	if start < 1 {
		start = 1
	}
	if end == ViewEnd || end > len(lines) {
		end = len(lines)
	}
	var numbered []string
	for i := start; i <= end; i++ {
		numbered = append(numbered, fmt.Sprintf("%d: %s", i, lines[i-1]))
	}
	return OpResult{Message: strings.Join(numbered, "\n")}, nil
}

// ReplaceText edits relPath. An empty oldStr overwrites the whole file with
// newStr. A non-empty oldStr must occur exactly once: zero occurrences and
// multiple occurrences both leave the file byte-identical and report back
// instead of guessing which occurrence was meant.
func (m *Manager) ReplaceText(projectID, relPath, oldStr, newStr string) (OpResult, error) {
	full, err := m.ResolveSafe(projectID, relPath)
	if err != nil {
		return OpResult{Message: opErrorMessage("edit", relPath, err)}, err
	}
	if oldStr == "" {
		before := ""
		if data, err := os.ReadFile(full); err == nil {
			before = string(data)
		}
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return OpResult{Message: opErrorMessage("edit", relPath, err)}, err
		}
		if err := atomicWrite(full, []byte(newStr)); err != nil {
			return OpResult{Message: opErrorMessage("edit", relPath, err)}, err
		}
		stats := diff.ComputeStats(before, newStr)
		return OpResult{
			Message: fmt.Sprintf("Replaced the entire contents of '%s'.", relPath),
			Stats:   &stats,
		}, nil
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return OpResult{Message: opErrorMessage("edit", relPath, err)}, err
	}
	content := string(data)
	switch count := strings.Count(content, oldStr); {
	case count == 0:
		return OpResult{
			Message: fmt.Sprintf("old_str was not found in '%s'; no changes made.", relPath),
		}, ErrOldTextNotFound
	case count > 1:
		return OpResult{
			Message: fmt.Sprintf("old_str occurs %d times in '%s': ambiguous, aborted for safety. Provide more surrounding context to pin down one occurrence.", count, relPath),
		}, ErrAmbiguousOldText
	}
	updated := strings.Replace(content, oldStr, newStr, 1)
	if err := atomicWrite(full, []byte(updated)); err != nil {
		return OpResult{Message: opErrorMessage("edit", relPath, err)}, err
	}
	stats := diff.ComputeStats(content, updated)
	return OpResult{
		Message: fmt.Sprintf("Edited '%s': replaced 1 occurrence of old_str.", relPath),
		Stats:   &stats,
	}, nil
}

// InsertText splices text in as a new line. lineIndex is clamped into
// [0, lineCount]; 0 inserts before the first line.
func (m *Manager) InsertText(projectID, relPath string, lineIndex int, text string) (OpResult, error) {
	full, err := m.ResolveSafe(projectID, relPath)
	if err != nil {
		return OpResult{Message: opErrorMessage("insert", relPath, err)}, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return OpResult{Message: opErrorMessage("insert", relPath, err)}, err
	}
	content := string(data)
	lines := strings.Split(content, "\n")
	if lineIndex < 0 {
		lineIndex = 0
	}
	if lineIndex > len(lines) {
		lineIndex = len(lines)
	}
	spliced := make([]string, 0, len(lines)+1)
	spliced = append(spliced, lines[:lineIndex]...)
	spliced = append(spliced, text)
	spliced = append(spliced, lines[lineIndex:]...)
	updated := strings.Join(spliced, "\n")
	if err := atomicWrite(full, []byte(updated)); err != nil {
		return OpResult{Message: opErrorMessage("insert", relPath, err)}, err
	}
	stats := diff.ComputeStats(content, updated)
	return OpResult{
		Message: fmt.Sprintf("Inserted text at line %d in '%s'.", lineIndex, relPath),
		Stats:   &stats,
	}, nil
}

func opErrorMessage(verb, relPath string, err error) string {
	if errors.Is(err, ErrPathTraversal) {
		return fmt.Sprintf("Cannot %s '%s': the path resolves outside the project workspace.", verb, relPath)
	}
	if errors.Is(err, ErrInvalidProjectID) || errors.Is(err, ErrProjectNotFound) {
		return fmt.Sprintf("Cannot %s '%s': %v.", verb, relPath, err)
	}
	if os.IsNotExist(err) {
		return fmt.Sprintf("Cannot %s '%s': the file does not exist.", verb, relPath)
	}
	return fmt.Sprintf("Failed to %s '%s': %v.", verb, relPath, err)
}

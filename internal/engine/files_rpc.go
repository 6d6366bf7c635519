package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"appforge/engine/internal/diff"
	"appforge/engine/internal/errinfo"
	"appforge/engine/internal/events"
	"appforge/engine/internal/workspace"
)

// finishFileOp translates a mutator outcome into the event stream and the
// RPC result. Operation feedback is always a string the model can act on:
// recoverable failures (text not found, ambiguous match, directory target)
// produce no event at all, while traversal and I/O failures additionally
// surface as an error event. Only a missing or invalid project aborts the
// RPC itself.
func (e *Engine) finishFileOp(projectID, relPath, eventMessage string, successType events.Type, res workspace.OpResult, err error) (any, *errinfo.ErrorInfo) {
	switch {
	case err == nil:
		data := map[string]any{"path": relPath}
		if res.Stats != nil {
			data["stats"] = res.Stats
		}
		e.publish(projectID, events.Event{Type: successType, Message: eventMessage, Data: data})
	case errors.Is(err, workspace.ErrOldTextNotFound),
		errors.Is(err, workspace.ErrAmbiguousOldText),
		errors.Is(err, workspace.ErrIsDirectory):
		// Model feedback only; the file is untouched and the model retries
		// with better input.
	case errors.Is(err, workspace.ErrInvalidProjectID), errors.Is(err, workspace.ErrProjectNotFound):
		return nil, errinfo.ProjectNotFound(errinfo.PhaseFiles, projectID)
	default:
		e.publish(projectID, events.Event{
			Type:    events.TypeError,
			Message: res.Message,
			Data:    map[string]any{"path": relPath},
		})
	}
	result := map[string]any{"result": res.Message}
	if err == nil && res.Stats != nil {
		result["stats"] = res.Stats
	}
	return result, nil
}

func (e *Engine) FilesCreate(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		ProjectID string `json:"project_id"`
		Path      string `json:"path"`
		Content   string `json:"content"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseFiles, "invalid params")
	}
	sess := e.session(req.ProjectID)
	sess.fileMu.Lock()
	res, err := e.workspaces.CreateFile(req.ProjectID, req.Path, req.Content)
	sess.fileMu.Unlock()
	return e.finishFileOp(req.ProjectID, req.Path, res.Message, events.TypeFileCreated, res, err)
}

func (e *Engine) FilesView(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		ProjectID string `json:"project_id"`
		Path      string `json:"path"`
		Start     int    `json:"start"`
		End       int    `json:"end"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseFiles, "invalid params")
	}
	if req.End == 0 {
		// Absent range means the whole file; the mutator clamps start.
		req.End = workspace.ViewEnd
	}
	res, err := e.workspaces.ViewFile(req.ProjectID, req.Path, req.Start, req.End)
	eventMessage := fmt.Sprintf("Viewed '%s'.", req.Path)
	return e.finishFileOp(req.ProjectID, req.Path, eventMessage, events.TypeFileViewed, res, err)
}

func (e *Engine) FilesReplace(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		ProjectID string `json:"project_id"`
		Path      string `json:"path"`
		OldStr    string `json:"old_str"`
		NewStr    string `json:"new_str"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseFiles, "invalid params")
	}
	sess := e.session(req.ProjectID)
	sess.fileMu.Lock()
	res, err := e.workspaces.ReplaceText(req.ProjectID, req.Path, req.OldStr, req.NewStr)
	sess.fileMu.Unlock()
	return e.finishFileOp(req.ProjectID, req.Path, res.Message, events.TypeFileEdited, res, err)
}

func (e *Engine) FilesInsert(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		ProjectID string `json:"project_id"`
		Path      string `json:"path"`
		LineIndex int    `json:"line_index"`
		Text      string `json:"text"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseFiles, "invalid params")
	}
	sess := e.session(req.ProjectID)
	sess.fileMu.Lock()
	res, err := e.workspaces.InsertText(req.ProjectID, req.Path, req.LineIndex, req.Text)
	sess.fileMu.Unlock()
	return e.finishFileOp(req.ProjectID, req.Path, res.Message, events.TypeFileEdited, res, err)
}

// FilesGetDiff compares the file's current workspace content against the
// template's copy. Either side may be missing; a missing side diffs as
// empty.
func (e *Engine) FilesGetDiff(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		ProjectID string `json:"project_id"`
		Path      string `json:"path"`
		MaxLines  int    `json:"max_lines"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseFiles, "invalid params")
	}
	full, err := e.workspaces.ResolveSafe(req.ProjectID, req.Path)
	if err != nil {
		switch {
		case errors.Is(err, workspace.ErrPathTraversal):
			return nil, errinfo.PathTraversal(errinfo.PhaseFiles, req.ProjectID, req.Path)
		case errors.Is(err, workspace.ErrInvalidProjectID), errors.Is(err, workspace.ErrProjectNotFound):
			return nil, errinfo.ProjectNotFound(errinfo.PhaseFiles, req.ProjectID)
		default:
			return nil, errinfo.FileReadFailed(errinfo.PhaseFiles, err.Error())
		}
	}
	current := ""
	if data, err := os.ReadFile(full); err == nil {
		current = string(data)
	} else if !os.IsNotExist(err) {
		return nil, errinfo.FileReadFailed(errinfo.PhaseFiles, err.Error())
	}
	templateDir, err := e.templateDir()
	if err != nil {
		return nil, errinfo.FileReadFailed(errinfo.PhaseSettings, err.Error())
	}
	base := ""
	// ResolveSafe already vetted req.Path, so joining it under the template
	// cannot escape.
	if data, err := os.ReadFile(filepath.Join(templateDir, req.Path)); err == nil {
		base = string(data)
	}
	hunks, truncated := diff.TextDiffWithLimit(base, current, req.MaxLines)
	stats := diff.ComputeStats(base, current)
	return map[string]any{
		"path":      req.Path,
		"hunks":     hunks,
		"truncated": truncated,
		"stats":     stats,
	}, nil
}

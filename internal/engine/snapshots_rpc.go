package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"appforge/engine/internal/errinfo"
	"appforge/engine/internal/events"
	"appforge/engine/internal/workspace"
)

func (e *Engine) SnapshotCreate(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		ProjectID string `json:"project_id"`
		Reason    string `json:"reason"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseSnapshot, "invalid params")
	}
	reason := req.Reason
	if reason == "" {
		reason = "manual"
	}
	sess := e.session(req.ProjectID)
	sess.fileMu.Lock()
	meta, err := e.workspaces.SnapshotCreate(req.ProjectID, reason)
	sess.fileMu.Unlock()
	if err != nil {
		if errors.Is(err, workspace.ErrProjectNotFound) || errors.Is(err, workspace.ErrInvalidProjectID) {
			return nil, errinfo.ProjectNotFound(errinfo.PhaseSnapshot, req.ProjectID)
		}
		return nil, errinfo.FileWriteFailed(errinfo.PhaseSnapshot, err.Error())
	}
	e.logger.Info("snapshot.created", "project_id", req.ProjectID, "snapshot_id", meta.SnapshotID, "reason", reason)
	return map[string]any{"snapshot_id": meta.SnapshotID, "snapshot": meta}, nil
}

func (e *Engine) SnapshotsList(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		ProjectID string `json:"project_id"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseSnapshot, "invalid params")
	}
	items, err := e.workspaces.SnapshotsList(req.ProjectID)
	if err != nil {
		if errors.Is(err, workspace.ErrInvalidProjectID) {
			return nil, errinfo.ProjectNotFound(errinfo.PhaseSnapshot, req.ProjectID)
		}
		return nil, errinfo.FileReadFailed(errinfo.PhaseSnapshot, err.Error())
	}
	return map[string]any{"snapshots": items}, nil
}

// SnapshotRestore rolls the workspace tree back to a snapshot. A safety
// snapshot of the current tree is taken first so a restore is itself
// restorable, then a rebuild is scheduled against the reverted files.
func (e *Engine) SnapshotRestore(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		ProjectID  string `json:"project_id"`
		SnapshotID string `json:"snapshot_id"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseSnapshot, "invalid params")
	}
	sess := e.session(req.ProjectID)
	sess.fileMu.Lock()
	pre, err := e.workspaces.SnapshotCreate(req.ProjectID, "pre_restore")
	if err != nil {
		sess.fileMu.Unlock()
		if errors.Is(err, workspace.ErrProjectNotFound) || errors.Is(err, workspace.ErrInvalidProjectID) {
			return nil, errinfo.ProjectNotFound(errinfo.PhaseSnapshot, req.ProjectID)
		}
		return nil, errinfo.FileWriteFailed(errinfo.PhaseSnapshot, err.Error())
	}
	err = e.workspaces.SnapshotRestore(req.ProjectID, req.SnapshotID)
	sess.fileMu.Unlock()
	if err != nil {
		if errors.Is(err, workspace.ErrSnapshotNotFound) {
			return nil, errinfo.SnapshotNotFound(req.ProjectID, req.SnapshotID)
		}
		return nil, errinfo.FileWriteFailed(errinfo.PhaseSnapshot, err.Error())
	}
	// A restore replaces the whole tree at once, so it reports as one batch
	// edit rather than per-file events.
	e.publish(req.ProjectID, events.Event{
		Type:    events.TypeEditsApplied,
		Message: fmt.Sprintf("Restored snapshot %s.", req.SnapshotID),
		Data: map[string]any{
			"restoredSnapshotId":   req.SnapshotID,
			"preRestoreSnapshotId": pre.SnapshotID,
		},
	})
	result := map[string]any{"pre_restore_snapshot_id": pre.SnapshotID}
	buildID, errInfo := e.startBuild(req.ProjectID, false)
	if errInfo != nil {
		e.logger.Warn("snapshot.rebuild_skipped", "project_id", req.ProjectID, "reason", errInfo.ErrorCode)
	} else {
		result["build_id"] = buildID
	}
	return result, nil
}

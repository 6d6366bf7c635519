package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"appforge/engine/internal/errinfo"
	"appforge/engine/internal/events"
	"appforge/engine/internal/toolstream"
	"appforge/engine/internal/workspace"
)

// wireSegment is the JSON shape segments cross the RPC boundary in. Partial
// tool segments carry whatever fields the parser has seen so far.
type wireSegment struct {
	Kind     string `json:"kind"`
	Content  string `json:"content,omitempty"`
	Tool     string `json:"tool,omitempty"`
	Path     string `json:"path,omitempty"`
	OldStr   string `json:"old_str,omitempty"`
	NewStr   string `json:"new_str,omitempty"`
	Complete bool   `json:"complete,omitempty"`
}

func wireSegments(segments []toolstream.Segment) []wireSegment {
	out := make([]wireSegment, 0, len(segments))
	for _, segment := range segments {
		switch s := segment.(type) {
		case toolstream.TextSegment:
			out = append(out, wireSegment{Kind: "text", Content: s.Content})
		case toolstream.ToolSegment:
			entry := wireSegment{Kind: "tool", Complete: s.Complete}
			switch inv := s.Invocation.(type) {
			case toolstream.CreateFile:
				entry.Tool = "create_file"
				entry.Path = inv.Path
				entry.Content = inv.Content
			case toolstream.ReplaceText:
				entry.Tool = "str_replace"
				entry.Path = inv.Path
				entry.OldStr = inv.OldText
				entry.NewStr = inv.NewText
			}
			out = append(out, entry)
		}
	}
	return out
}

// StreamSegment re-parses the accumulated model output. It is stateless and
// cheap enough to call on every delta; completed segments keep their
// identity between calls so the caller can render incrementally.
func (e *Engine) StreamSegment(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		ProjectID  string `json:"project_id"`
		Text       string `json:"text"`
		StreamOpen bool   `json:"stream_open"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseStream, "invalid params")
	}
	segments := toolstream.Parse(req.Text, req.StreamOpen)
	return map[string]any{"segments": wireSegments(segments)}, nil
}

// StreamApplyEdits parses a closed model response, applies every complete
// tool invocation in order, and schedules a rebuild when anything actually
// changed. Per-edit feedback strings come back in parse order so the caller
// can relay them to the model verbatim.
func (e *Engine) StreamApplyEdits(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		ProjectID string `json:"project_id"`
		Text      string `json:"text"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseStream, "invalid params")
	}
	if !e.workspaces.Exists(req.ProjectID) {
		return nil, errinfo.ProjectNotFound(errinfo.PhaseStream, req.ProjectID)
	}

	segments := toolstream.Parse(req.Text, false)
	invocations := toolstream.CompleteInvocations(segments)
	e.publish(req.ProjectID, events.Event{
		Type:    events.TypeEditsParsed,
		Message: fmt.Sprintf("Parsed %d edits.", len(invocations)),
		Data:    map[string]any{"count": len(invocations)},
	})
	if len(invocations) == 0 {
		e.publish(req.ProjectID, events.Event{
			Type:    events.TypeNoEditsToApply,
			Message: "No edits to apply.",
		})
		return map[string]any{"results": []string{}, "applied": 0}, nil
	}

	e.publish(req.ProjectID, events.Event{
		Type:    events.TypeApplyingEdits,
		Message: fmt.Sprintf("Applying %d edits.", len(invocations)),
		Data:    map[string]any{"count": len(invocations)},
	})

	sess := e.session(req.ProjectID)
	sess.fileMu.Lock()
	// Record the pre-edit tree so the whole batch can be rolled back with
	// SnapshotRestore. Failing to record it aborts the batch: applying
	// edits that cannot be undone is worse than applying none.
	snapshot, snapErr := e.workspaces.SnapshotCreate(req.ProjectID, "pre_apply")
	if snapErr != nil {
		sess.fileMu.Unlock()
		return nil, errinfo.FileWriteFailed(errinfo.PhaseSnapshot, snapErr.Error())
	}
	results := make([]string, 0, len(invocations))
	applied := 0
	for _, invocation := range invocations {
		var (
			res         workspace.OpResult
			err         error
			path        string
			successType events.Type
		)
		switch inv := invocation.(type) {
		case toolstream.CreateFile:
			path = inv.Path
			successType = events.TypeFileCreated
			res, err = e.workspaces.CreateFile(req.ProjectID, inv.Path, inv.Content)
		case toolstream.ReplaceText:
			path = inv.Path
			successType = events.TypeFileEdited
			res, err = e.workspaces.ReplaceText(req.ProjectID, inv.Path, inv.OldText, inv.NewText)
		}
		if _, errInfo := e.finishFileOp(req.ProjectID, path, res.Message, successType, res, err); errInfo != nil {
			sess.fileMu.Unlock()
			return nil, errInfo
		}
		results = append(results, res.Message)
		if err == nil {
			applied++
		}
	}
	sess.fileMu.Unlock()

	e.publish(req.ProjectID, events.Event{
		Type:    events.TypeEditsApplied,
		Message: fmt.Sprintf("Applied %d of %d edits.", applied, len(invocations)),
		Data:    map[string]any{"applied": applied, "failed": len(invocations) - applied},
	})

	result := map[string]any{"results": results, "applied": applied, "snapshot_id": snapshot.SnapshotID}
	if applied > 0 {
		buildID, errInfo := e.startBuild(req.ProjectID, false)
		if errInfo != nil {
			// A build already in flight keeps running against the new
			// files; the caller can rebuild explicitly once it finishes.
			e.logger.Warn("stream.rebuild_skipped", "project_id", req.ProjectID, "reason", errInfo.ErrorCode)
		} else {
			result["build_id"] = buildID
		}
	}
	return result, nil
}

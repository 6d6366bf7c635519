package engine

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"appforge/engine/internal/errinfo"
	"appforge/engine/internal/events"
	"appforge/engine/internal/workspace"
)

// ProjectCreate makes a fresh workspace from the template and kicks off the
// full pipeline (install, then build). The RPC returns as soon as the build
// is scheduled; progress arrives as BuildEvent notifications.
func (e *Engine) ProjectCreate(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		ProjectID string `json:"project_id"`
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, errinfo.ValidationFailed(errinfo.PhaseProject, "invalid params")
		}
	}
	projectID := strings.TrimSpace(req.ProjectID)
	if projectID == "" {
		projectID = workspace.NewProjectID()
	}
	templateDir, err := e.templateDir()
	if err != nil {
		return nil, errinfo.FileReadFailed(errinfo.PhaseSettings, err.Error())
	}
	if err := e.workspaces.CreateProject(projectID, templateDir); err != nil {
		switch {
		case errors.Is(err, workspace.ErrProjectExists):
			return nil, errinfo.ProjectExists(projectID)
		case errors.Is(err, workspace.ErrInvalidProjectID):
			return nil, errinfo.ValidationFailed(errinfo.PhaseProject, "invalid project_id")
		default:
			e.publish(projectID, events.Event{
				Type:    events.TypeError,
				Message: "Project creation failed.",
				Data:    map[string]any{"detail": err.Error()},
			})
			return nil, errinfo.TemplateCopyFailed(projectID, err.Error())
		}
	}
	e.logger.Info("engine.project_created", "project_id", projectID, "template_dir", templateDir)
	e.publish(projectID, events.Event{
		Type:    events.TypeProjectCreated,
		Message: "Project created from template.",
	})
	buildID, errInfo := e.startBuild(projectID, true)
	if errInfo != nil {
		return nil, errInfo
	}
	return map[string]any{"project_id": projectID, "build_id": buildID}, nil
}

// ProjectRebuild re-runs only the build step, the path used after edits have
// landed in the workspace.
func (e *Engine) ProjectRebuild(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		ProjectID string `json:"project_id"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseProject, "invalid params")
	}
	if !e.workspaces.Exists(req.ProjectID) {
		return nil, errinfo.ProjectNotFound(errinfo.PhaseBuild, req.ProjectID)
	}
	buildID, errInfo := e.startBuild(req.ProjectID, false)
	if errInfo != nil {
		return nil, errInfo
	}
	return map[string]any{"build_id": buildID}, nil
}

func (e *Engine) ProjectGetStatus(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		ProjectID string `json:"project_id"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseProject, "invalid params")
	}
	if !e.workspaces.Exists(req.ProjectID) {
		return nil, errinfo.ProjectNotFound(errinfo.PhaseProject, req.ProjectID)
	}
	status, ok := e.status(req.ProjectID)
	if !ok {
		// The workspace exists but nothing has been built during this
		// process's lifetime.
		return map[string]any{"project_id": req.ProjectID, "state": StateCreated}, nil
	}
	result := map[string]any{
		"project_id": req.ProjectID,
		"state":      status.State,
		"build_id":   status.BuildID,
		"updated_at": status.UpdatedAt,
	}
	if status.Detail != "" {
		result["detail"] = status.Detail
	}
	if status.PreviewPath != "" {
		result["preview_path"] = status.PreviewPath
	}
	return result, nil
}

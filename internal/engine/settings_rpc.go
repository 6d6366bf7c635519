package engine

import (
	"context"
	"encoding/json"

	"appforge/engine/internal/errinfo"
	"appforge/engine/internal/settings"
)

func (e *Engine) SettingsGet(ctx context.Context, _ json.RawMessage) (any, *errinfo.ErrorInfo) {
	cfg, err := e.settings.Load()
	if err != nil {
		return nil, errinfo.FileReadFailed(errinfo.PhaseSettings, err.Error())
	}
	return map[string]any{"settings": cfg}, nil
}

// SettingsUpdate applies a partial update; absent fields keep their current
// values, and the store normalizes whatever lands.
func (e *Engine) SettingsUpdate(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		InstallCommand *string `json:"install_command"`
		BuildCommand   *string `json:"build_command"`
		TimeoutSeconds *int    `json:"timeout_seconds"`
		TemplateDir    *string `json:"template_dir"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseSettings, "invalid params")
	}
	updated, err := e.settings.Update(func(cfg *settings.Settings) {
		if req.InstallCommand != nil {
			cfg.InstallCommand = *req.InstallCommand
		}
		if req.BuildCommand != nil {
			cfg.BuildCommand = *req.BuildCommand
		}
		if req.TimeoutSeconds != nil {
			cfg.TimeoutSeconds = *req.TimeoutSeconds
		}
		if req.TemplateDir != nil {
			cfg.TemplateDir = *req.TemplateDir
		}
	})
	if err != nil {
		return nil, errinfo.FileWriteFailed(errinfo.PhaseSettings, err.Error())
	}
	e.logger.Info("engine.settings_updated", "install_command", updated.InstallCommand, "build_command", updated.BuildCommand, "timeout_seconds", updated.TimeoutSeconds)
	return map[string]any{"settings": updated}, nil
}

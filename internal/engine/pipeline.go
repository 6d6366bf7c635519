package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"appforge/engine/internal/builder"
	"appforge/engine/internal/envutil"
	"appforge/engine/internal/errinfo"
	"appforge/engine/internal/events"
)

const buildStderrTailBytes = 2000

// startBuild reserves the project's single build slot and runs the pipeline
// in its own goroutine. withInstall selects the full pipeline; a rebuild
// after edits skips straight to the build step.
func (e *Engine) startBuild(projectID string, withInstall bool) (string, *errinfo.ErrorInfo) {
	sess := e.session(projectID)
	e.buildMu.Lock()
	if running, ok := e.builds[projectID]; ok {
		e.buildMu.Unlock()
		e.logger.Warn("pipeline.already_running", "project_id", projectID, "build_id", running.buildID)
		return "", errinfo.BuildInProgress(projectID)
	}
	buildID := uuid.New().String()
	ctx, cancel := context.WithCancel(e.baseCtx)
	run := &buildRun{buildID: buildID, cancel: cancel, done: make(chan struct{})}
	e.builds[projectID] = run
	e.buildMu.Unlock()

	e.setStatus(projectID, buildID, StateCreated, "")
	go func() {
		defer close(run.done)
		defer cancel()
		defer func() {
			e.buildMu.Lock()
			if e.builds[projectID] == run {
				delete(e.builds, projectID)
			}
			e.buildMu.Unlock()
		}()
		e.runPipeline(ctx, sess, projectID, buildID, withInstall)
	}()
	return buildID, nil
}

func (e *Engine) runPipeline(ctx context.Context, sess *session, projectID, buildID string, withInstall bool) {
	root, err := e.workspaces.Root(projectID)
	if err != nil {
		e.failBuild(projectID, buildID, fmt.Sprintf("Build could not start: %v.", err), err.Error())
		return
	}
	cfg, err := e.buildConfig(root)
	if err != nil {
		e.failBuild(projectID, buildID, fmt.Sprintf("Build configuration is invalid: %v.", err), err.Error())
		return
	}

	if withInstall {
		e.setStatus(projectID, buildID, StateDependenciesInstalling, "")
		e.publish(projectID, events.Event{
			Type:    events.TypeBuildProgress,
			Message: "Installing dependencies...",
			Data:    map[string]any{"buildId": buildID, "step": "install"},
		})
		res, err := e.runner.Run(ctx, root, cfg.InstallCommand, cfg.Timeout, func(line string) {
			e.publish(projectID, events.Event{
				Type:    events.TypeBuildProgress,
				Message: line,
				Data:    map[string]any{"buildId": buildID, "step": "install"},
			})
		})
		if errors.Is(err, context.Canceled) {
			e.setStatus(projectID, buildID, StateFailed, "canceled")
			return
		}
		if err != nil {
			// Install failures do not stop the pipeline: the template may
			// build without installed dependencies.
			detail := builder.Tail(res.Stderr, buildStderrTailBytes)
			if detail == "" {
				detail = err.Error()
			}
			e.logger.Warn("pipeline.install_failed", "project_id", projectID, "build_id", buildID, "error", err.Error())
			e.publish(projectID, events.Event{
				Type:    events.TypeError,
				Message: "Dependency install failed; continuing to build.",
				Data:    map[string]any{"buildId": buildID, "step": "install", "detail": detail},
			})
		}
	}

	e.setStatus(projectID, buildID, StateBuilding, "")
	e.publish(projectID, events.Event{
		Type:    events.TypeBuildStart,
		Message: "Build started.",
		Data:    map[string]any{"buildId": buildID},
	})
	res, err := e.runner.Run(ctx, root, cfg.BuildCommand, cfg.Timeout, func(line string) {
		e.publish(projectID, events.Event{
			Type:    events.TypeBuildProgress,
			Message: line,
			Data:    map[string]any{"buildId": buildID, "step": "build"},
		})
	})
	if errors.Is(err, context.Canceled) {
		e.setStatus(projectID, buildID, StateFailed, "canceled")
		return
	}
	if err != nil {
		detail := builder.Tail(res.Stderr, buildStderrTailBytes)
		if detail == "" {
			detail = err.Error()
		}
		message := "Build failed."
		if errors.Is(err, builder.ErrTimeout) {
			message = fmt.Sprintf("Build timed out after %s.", cfg.Timeout)
		}
		e.failBuild(projectID, buildID, message, detail)
		return
	}

	output := filepath.Join(root, cfg.OutputDir)
	e.setPreviewReady(projectID, buildID, output)
	e.publish(projectID, events.Event{
		Type:    events.TypePreviewReady,
		Message: "Build finished; preview is ready.",
		Data:    map[string]any{"buildId": buildID, "path": output},
	})
}

func (e *Engine) failBuild(projectID, buildID, message, detail string) {
	e.publish(projectID, events.Event{
		Type:    events.TypeError,
		Message: message,
		Data:    map[string]any{"buildId": buildID, "detail": detail},
	})
	e.setStatus(projectID, buildID, StateFailed, detail)
}

// buildConfig resolves the project's commands from the global settings plus
// the optional per-project manifest. A manifest that exists but does not
// parse fails the build rather than silently using defaults.
func (e *Engine) buildConfig(root string) (builder.Config, error) {
	cfg, err := e.settings.Load()
	if err != nil {
		return builder.Config{}, err
	}
	timeout := envutil.Duration("APPFORGE_BUILD_TIMEOUT", time.Duration(cfg.TimeoutSeconds)*time.Second)
	defaults := builder.Config{
		InstallCommand: cfg.InstallCommand,
		BuildCommand:   cfg.BuildCommand,
		Timeout:        timeout,
	}
	manifest, err := builder.LoadManifest(root)
	if err != nil {
		return builder.Config{}, err
	}
	return builder.ResolveConfig(defaults, manifest), nil
}

package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"appforge/engine/internal/appdirs"
	"appforge/engine/internal/builder"
	"appforge/engine/internal/errinfo"
	"appforge/engine/internal/events"
	"appforge/engine/internal/logging"
	"appforge/engine/internal/settings"
	"appforge/engine/internal/workspace"
)

const (
	EngineVersion = "0.1.0"
	APIVersion    = "1"
)

// Build states, in pipeline order. A build never revisits a state; a rebuild
// is a fresh run with a fresh build id.
const (
	StateCreated                = "created"
	StateDependenciesInstalling = "dependencies_installing"
	StateBuilding               = "building"
	StatePreviewReady           = "preview_ready"
	StateFailed                 = "failed"
)

type Notifier func(method string, params any)

// session is the per-project slice of engine state: the event bus all
// components of that project publish to, and the mutex serializing file
// mutations so edits never interleave on disk.
type session struct {
	projectID     string
	bus           *events.Bus
	fileMu        sync.Mutex
	forwarderDone chan struct{}
}

type buildRun struct {
	buildID string
	cancel  context.CancelFunc
	done    chan struct{}
}

type buildStatus struct {
	BuildID     string `json:"build_id"`
	State       string `json:"state"`
	Detail      string `json:"detail,omitempty"`
	PreviewPath string `json:"preview_path,omitempty"`
	UpdatedAt   string `json:"updated_at"`
}

type Engine struct {
	dataDir    string
	settings   *settings.Store
	workspaces *workspace.Manager
	runner     *builder.Runner
	notify     Notifier
	logger     *slog.Logger

	baseCtx    context.Context
	baseCancel context.CancelFunc

	sessionMu sync.Mutex
	sessions  map[string]*session

	buildMu sync.Mutex
	builds  map[string]*buildRun

	statusMu sync.Mutex
	statuses map[string]buildStatus
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func New(opts ...Option) (*Engine, error) {
	engine := &Engine{logger: logging.Nop()}
	for _, opt := range opts {
		opt(engine)
	}
	dataDir, err := appdirs.DataDir()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}
	workspacesDir := appdirs.WorkspacesDir(dataDir)
	snapshotsDir := appdirs.SnapshotsDir(dataDir)
	mgr := workspace.NewManager(workspacesDir, snapshotsDir)
	if err := mgr.Init(); err != nil {
		return nil, err
	}
	engine.dataDir = dataDir
	engine.settings = settings.NewStore(filepath.Join(dataDir, "settings.json"))
	engine.workspaces = mgr
	engine.runner = builder.NewRunner(engine.logger.With("component", "builder"))
	engine.sessions = make(map[string]*session)
	engine.builds = make(map[string]*buildRun)
	engine.statuses = make(map[string]buildStatus)
	engine.baseCtx, engine.baseCancel = context.WithCancel(context.Background())
	engine.logger.Debug("engine.init", "data_dir", dataDir, "workspaces_dir", workspacesDir)
	return engine, nil
}

func (e *Engine) SetNotifier(notify Notifier) {
	e.notify = notify
}

// Close cancels active builds, waits for their pipelines to wind down, then
// shuts every session's event bus so forwarders exit.
func (e *Engine) Close() {
	e.baseCancel()
	e.buildMu.Lock()
	runs := make([]*buildRun, 0, len(e.builds))
	for _, run := range e.builds {
		runs = append(runs, run)
	}
	e.buildMu.Unlock()
	for _, run := range runs {
		run.cancel()
		<-run.done
	}
	e.sessionMu.Lock()
	sessions := make([]*session, 0, len(e.sessions))
	for _, s := range e.sessions {
		sessions = append(sessions, s)
	}
	e.sessionMu.Unlock()
	for _, s := range sessions {
		s.bus.Close()
		<-s.forwarderDone
	}
	e.logger.Debug("engine.closed")
}

// session returns the project's session, creating it and starting its event
// forwarder on first use.
func (e *Engine) session(projectID string) *session {
	e.sessionMu.Lock()
	defer e.sessionMu.Unlock()
	if s, ok := e.sessions[projectID]; ok {
		return s
	}
	s := &session{
		projectID:     projectID,
		bus:           events.NewBus(),
		forwarderDone: make(chan struct{}),
	}
	ch, _ := s.bus.Subscribe()
	go e.forwardEvents(ch, s.forwarderDone)
	e.sessions[projectID] = s
	e.logger.Debug("engine.session_opened", "project_id", projectID)
	return s
}

// forwardEvents relays one session's bus onto the RPC notification channel.
// The stdio client is just another subscriber; it sees the same stream as
// any in-process one.
func (e *Engine) forwardEvents(ch <-chan events.Event, done chan struct{}) {
	defer close(done)
	for ev := range ch {
		if e.notify == nil {
			continue
		}
		e.notify("BuildEvent", ev)
	}
}

func (e *Engine) publish(projectID string, ev events.Event) {
	ev.ProjectID = projectID
	s := e.session(projectID)
	s.bus.Publish(ev)
	e.logger.Debug("engine.event", "type", string(ev.Type), "project_id", projectID, "message", logging.TrimValue(ev.Message))
}

func (e *Engine) setStatus(projectID, buildID, state, detail string) {
	e.writeStatus(projectID, buildStatus{BuildID: buildID, State: state, Detail: detail})
}

func (e *Engine) setPreviewReady(projectID, buildID, previewPath string) {
	e.writeStatus(projectID, buildStatus{BuildID: buildID, State: StatePreviewReady, PreviewPath: previewPath})
}

func (e *Engine) writeStatus(projectID string, status buildStatus) {
	status.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	e.statusMu.Lock()
	e.statuses[projectID] = status
	e.statusMu.Unlock()
	e.logger.Info("engine.build_state", "project_id", projectID, "build_id", status.BuildID, "state", status.State)
}

func (e *Engine) status(projectID string) (buildStatus, bool) {
	e.statusMu.Lock()
	defer e.statusMu.Unlock()
	status, ok := e.statuses[projectID]
	return status, ok
}

// templateDir resolves where new projects are copied from: the settings
// override when present, the data-dir default otherwise.
func (e *Engine) templateDir() (string, error) {
	cfg, err := e.settings.Load()
	if err != nil {
		return "", err
	}
	if cfg.TemplateDir != "" {
		return cfg.TemplateDir, nil
	}
	return appdirs.TemplateDir(e.dataDir), nil
}

func (e *Engine) EngineGetInfo(ctx context.Context, _ json.RawMessage) (any, *errinfo.ErrorInfo) {
	return map[string]any{
		"engine_version": EngineVersion,
		"api_version":    APIVersion,
	}, nil
}

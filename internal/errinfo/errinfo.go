package errinfo

// ErrorInfo is the structured error payload every RPC failure carries.
type ErrorInfo struct {
	ErrorCode string   `json:"error_code"`
	Phase     string   `json:"phase,omitempty"`
	Subphase  string   `json:"subphase,omitempty"`
	Retryable bool     `json:"retryable"`
	Actions   []string `json:"actions,omitempty"`
	ProjectID string   `json:"project_id,omitempty"`
	BuildID   string   `json:"build_id,omitempty"`
	Path      string   `json:"path,omitempty"`
	Detail    string   `json:"detail,omitempty"`
}

const (
	CodeValidationFailed   = "VALIDATION_FAILED"
	CodePathTraversal      = "PATH_TRAVERSAL"
	CodeFileReadFailed     = "FILE_READ_FAILED"
	CodeFileWriteFailed    = "FILE_WRITE_FAILED"
	CodeProjectExists      = "PROJECT_EXISTS"
	CodeProjectNotFound    = "PROJECT_NOT_FOUND"
	CodeTemplateCopyFailed = "TEMPLATE_COPY_FAILED"
	CodeInstallFailed      = "INSTALL_FAILED"
	CodeBuildFailed        = "BUILD_FAILED"
	CodeBuildTimeout       = "BUILD_TIMEOUT"
	CodeBuildInProgress    = "BUILD_IN_PROGRESS"
	CodeSnapshotNotFound   = "SNAPSHOT_NOT_FOUND"
)

const (
	ActionRetry        = "retry"
	ActionOpenSettings = "open_settings"
	ActionRebuild      = "rebuild"
)

const (
	PhaseProject  = "project"
	PhaseFiles    = "files"
	PhaseStream   = "stream"
	PhaseInstall  = "install"
	PhaseBuild    = "build"
	PhaseSettings = "settings"
	PhaseSnapshot = "snapshot"
)

const (
	SubphaseTemplateCopy = "template_copy"
	SubphaseParse        = "parse"
	SubphaseApply        = "apply"
	SubphaseSpawn        = "spawn"
)

func ValidationFailed(phase, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeValidationFailed,
		Phase:     phase,
		Retryable: false,
		Detail:    detail,
	}
}

func PathTraversal(phase, projectID, path string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodePathTraversal,
		Phase:     phase,
		Retryable: false,
		ProjectID: projectID,
		Path:      path,
		Detail:    "path resolves outside the project workspace",
	}
}

func FileReadFailed(phase, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeFileReadFailed,
		Phase:     phase,
		Retryable: false,
		Detail:    detail,
	}
}

func FileWriteFailed(phase, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeFileWriteFailed,
		Phase:     phase,
		Retryable: false,
		Detail:    detail,
	}
}

func ProjectExists(projectID string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeProjectExists,
		Phase:     PhaseProject,
		Retryable: false,
		ProjectID: projectID,
		Detail:    "a workspace for this project already exists",
	}
}

func ProjectNotFound(phase, projectID string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeProjectNotFound,
		Phase:     phase,
		Retryable: false,
		ProjectID: projectID,
		Detail:    "no workspace for this project",
	}
}

func TemplateCopyFailed(projectID, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeTemplateCopyFailed,
		Phase:     PhaseProject,
		Subphase:  SubphaseTemplateCopy,
		Retryable: false,
		ProjectID: projectID,
		Detail:    detail,
	}
}

func InstallFailed(projectID, buildID, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeInstallFailed,
		Phase:     PhaseInstall,
		Retryable: true,
		Actions:   []string{ActionRetry},
		ProjectID: projectID,
		BuildID:   buildID,
		Detail:    detail,
	}
}

func BuildFailed(projectID, buildID, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeBuildFailed,
		Phase:     PhaseBuild,
		Retryable: true,
		Actions:   []string{ActionRebuild},
		ProjectID: projectID,
		BuildID:   buildID,
		Detail:    detail,
	}
}

func BuildTimeout(projectID, buildID, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeBuildTimeout,
		Phase:     PhaseBuild,
		Retryable: true,
		Actions:   []string{ActionRebuild},
		ProjectID: projectID,
		BuildID:   buildID,
		Detail:    detail,
	}
}

func BuildInProgress(projectID string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeBuildInProgress,
		Phase:     PhaseBuild,
		Retryable: true,
		Actions:   []string{ActionRetry},
		ProjectID: projectID,
		Detail:    "a build for this project is already running",
	}
}

func SnapshotNotFound(projectID, snapshotID string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeSnapshotNotFound,
		Phase:     PhaseSnapshot,
		Retryable: false,
		ProjectID: projectID,
		Detail:    "unknown snapshot: " + snapshotID,
	}
}

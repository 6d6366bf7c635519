package events

// Type names every event the engine publishes. The wire schema
// {type, projectId, message?, data?} is the contract the presentation
// layer consumes; fields never change meaning between releases.
type Type string

const (
	TypeProjectCreated Type = "project_created"
	TypeBuildStart     Type = "build_start"
	TypeBuildProgress  Type = "build_progress"
	TypePreviewReady   Type = "preview_ready"
	TypeFileCreated    Type = "file_created"
	TypeFileViewed     Type = "file_viewed"
	TypeFileEdited     Type = "file_edited"
	TypeError          Type = "error"
	TypeEditsParsed    Type = "edits_parsed"
	TypeApplyingEdits  Type = "applying_edits"
	TypeEditsApplied   Type = "edits_applied"
	TypeNoEditsToApply Type = "no_edits_to_apply"
)

type Event struct {
	Type      Type           `json:"type"`
	ProjectID string         `json:"projectId"`
	Message   string         `json:"message,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

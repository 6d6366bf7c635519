package engine

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"appforge/engine/internal/events"
)

func segmentsOf(t *testing.T, resp any) []wireSegment {
	t.Helper()
	raw, err := json.Marshal(resp.(map[string]any)["segments"])
	if err != nil {
		t.Fatalf("marshal segments: %v", err)
	}
	var segments []wireSegment
	if err := json.Unmarshal(raw, &segments); err != nil {
		t.Fatalf("unmarshal segments: %v", err)
	}
	return segments
}

func TestStreamSegmentMixedBuffer(t *testing.T) {
	eng, _ := newTestEngine(t)

	text := "Let me set that up.\n" +
		"<create_file path=\"src/Button.tsx\">export const Button = () => null;\n</create_file>\n" +
		"Now wiring it in."
	resp, errInfo := eng.StreamSegment(context.Background(), mustJSON(t, map[string]any{
		"project_id": "proj-any", "text": text, "stream_open": false,
	}))
	if errInfo != nil {
		t.Fatalf("segment: %v", errInfo)
	}
	segments := segmentsOf(t, resp)
	if len(segments) != 3 {
		t.Fatalf("expected 3 segments, got %d: %+v", len(segments), segments)
	}
	if segments[0].Kind != "text" || !strings.Contains(segments[0].Content, "set that up") {
		t.Fatalf("unexpected first segment: %+v", segments[0])
	}
	tool := segments[1]
	if tool.Kind != "tool" || tool.Tool != "create_file" || !tool.Complete {
		t.Fatalf("unexpected tool segment: %+v", tool)
	}
	if tool.Path != "src/Button.tsx" || tool.Content != "export const Button = () => null;\n" {
		t.Fatalf("unexpected tool payload: %+v", tool)
	}
	if segments[2].Kind != "text" {
		t.Fatalf("unexpected trailing segment: %+v", segments[2])
	}
}

func TestStreamSegmentPartialToolWhileStreaming(t *testing.T) {
	eng, _ := newTestEngine(t)

	text := "<create_file path=\"src/App.tsx\">const App"
	resp, errInfo := eng.StreamSegment(context.Background(), mustJSON(t, map[string]any{
		"project_id": "proj-any", "text": text, "stream_open": true,
	}))
	if errInfo != nil {
		t.Fatalf("segment: %v", errInfo)
	}
	segments := segmentsOf(t, resp)
	if len(segments) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(segments))
	}
	tool := segments[0]
	if tool.Kind != "tool" || tool.Complete {
		t.Fatalf("streaming tool must be incomplete: %+v", tool)
	}
	if tool.Path != "src/App.tsx" || tool.Content != "const App" {
		t.Fatalf("unexpected partial payload: %+v", tool)
	}

	// The same buffer on a closed stream can never finish, so it is prose.
	resp, errInfo = eng.StreamSegment(context.Background(), mustJSON(t, map[string]any{
		"project_id": "proj-any", "text": "<create_file path=\"src/App", "stream_open": false,
	}))
	if errInfo != nil {
		t.Fatalf("segment: %v", errInfo)
	}
	segments = segmentsOf(t, resp)
	if len(segments) != 1 || segments[0].Kind != "text" {
		t.Fatalf("expected demotion to text, got %+v", segments)
	}
}

func TestStreamApplyEditsEndToEnd(t *testing.T) {
	eng, rec := newTestEngine(t)
	projectID := createTestProject(t, eng)
	waitForState(t, eng, projectID, StatePreviewReady)

	text := "Here you go.\n" +
		"<create_file path=\"src/Button.tsx\">export const Button = () => null;\n</create_file>\n" +
		"<str_replace path=\"src/App.tsx\" old_str=\"export default {}\" new_str=\"export default Button\">\n"
	resp, errInfo := eng.StreamApplyEdits(context.Background(), mustJSON(t, map[string]any{
		"project_id": projectID, "text": text,
	}))
	if errInfo != nil {
		t.Fatalf("apply edits: %v", errInfo)
	}
	result := resp.(map[string]any)
	if result["applied"] != 2 {
		t.Fatalf("expected 2 applied, got %v", result["applied"])
	}
	results := result["results"].([]string)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if !strings.Contains(results[0], "Created file 'src/Button.tsx'") {
		t.Fatalf("unexpected create feedback: %q", results[0])
	}
	if !strings.Contains(results[1], "replaced 1 occurrence") {
		t.Fatalf("unexpected replace feedback: %q", results[1])
	}
	if buildID, _ := result["build_id"].(string); buildID == "" {
		t.Fatalf("expected a rebuild to be scheduled")
	}
	snapshotID, _ := result["snapshot_id"].(string)
	if snapshotID == "" {
		t.Fatalf("expected a pre-apply snapshot")
	}

	parsed := rec.waitForType(t, events.TypeEditsParsed)
	if parsed.Data["count"] != 2 {
		t.Fatalf("unexpected parsed count: %+v", parsed.Data)
	}
	rec.waitForType(t, events.TypeApplyingEdits)
	rec.waitForType(t, events.TypeFileCreated)
	rec.waitForType(t, events.TypeFileEdited)
	applied := rec.waitForType(t, events.TypeEditsApplied)
	if applied.Data["applied"] != 2 || applied.Data["failed"] != 0 {
		t.Fatalf("unexpected applied data: %+v", applied.Data)
	}

	data, err := eng.workspaces.ReadFile(projectID, "src/App.tsx")
	if err != nil || string(data) != "export default Button\n" {
		t.Fatalf("replace not applied: %q %v", data, err)
	}
	waitForState(t, eng, projectID, StatePreviewReady)

	// The pre-apply snapshot undoes the whole batch.
	if _, errInfo := eng.SnapshotRestore(context.Background(), mustJSON(t, map[string]any{
		"project_id": projectID, "snapshot_id": snapshotID,
	})); errInfo != nil {
		t.Fatalf("restore: %v", errInfo)
	}
	data, err = eng.workspaces.ReadFile(projectID, "src/App.tsx")
	if err != nil || string(data) != "export default {}\n" {
		t.Fatalf("restore did not undo the batch: %q %v", data, err)
	}
	if _, err := eng.workspaces.ReadFile(projectID, "src/Button.tsx"); err == nil {
		t.Fatalf("restore must drop the file created by the batch")
	}
}

func TestStreamApplyEditsNoEdits(t *testing.T) {
	eng, rec := newTestEngine(t)
	projectID := createTestProject(t, eng)
	waitForState(t, eng, projectID, StatePreviewReady)

	resp, errInfo := eng.StreamApplyEdits(context.Background(), mustJSON(t, map[string]any{
		"project_id": projectID, "text": "Just prose, no tool calls.",
	}))
	if errInfo != nil {
		t.Fatalf("apply edits: %v", errInfo)
	}
	result := resp.(map[string]any)
	if result["applied"] != 0 {
		t.Fatalf("expected 0 applied, got %v", result["applied"])
	}
	if _, ok := result["build_id"]; ok {
		t.Fatalf("no edits must not schedule a build")
	}
	rec.waitForType(t, events.TypeNoEditsToApply)
	if got := rec.countOfType(events.TypeApplyingEdits); got != 0 {
		t.Fatalf("expected no applying_edits event, saw %d", got)
	}
}

func TestStreamApplyEditsCountsFailures(t *testing.T) {
	eng, rec := newTestEngine(t)
	projectID := createTestProject(t, eng)
	waitForState(t, eng, projectID, StatePreviewReady)

	text := "<create_file path=\"a.txt\">alpha</create_file>\n" +
		"<str_replace path=\"a.txt\" old_str=\"missing\" new_str=\"x\">\n"
	resp, errInfo := eng.StreamApplyEdits(context.Background(), mustJSON(t, map[string]any{
		"project_id": projectID, "text": text,
	}))
	if errInfo != nil {
		t.Fatalf("apply edits: %v", errInfo)
	}
	result := resp.(map[string]any)
	if result["applied"] != 1 {
		t.Fatalf("expected 1 applied, got %v", result["applied"])
	}
	results := result["results"].([]string)
	if !strings.Contains(results[1], "not found") {
		t.Fatalf("unexpected failure feedback: %q", results[1])
	}
	applied := rec.waitForType(t, events.TypeEditsApplied)
	if applied.Data["applied"] != 1 || applied.Data["failed"] != 1 {
		t.Fatalf("unexpected applied data: %+v", applied.Data)
	}
	// The partial batch still changed files, so a rebuild is scheduled.
	if buildID, _ := result["build_id"].(string); buildID == "" {
		t.Fatalf("expected a rebuild after partial apply")
	}
	waitForState(t, eng, projectID, StatePreviewReady)
}

func TestStreamApplyEditsUnknownProject(t *testing.T) {
	eng, _ := newTestEngine(t)
	_, errInfo := eng.StreamApplyEdits(context.Background(), mustJSON(t, map[string]any{
		"project_id": "proj-missing", "text": "<create_file path=\"a\">x</create_file>",
	}))
	if errInfo == nil || errInfo.ErrorCode != "PROJECT_NOT_FOUND" {
		t.Fatalf("expected PROJECT_NOT_FOUND, got %+v", errInfo)
	}
}

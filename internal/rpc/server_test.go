package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func waitForLine(t *testing.T, output *bytes.Buffer) string {
	t.Helper()
	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if line := strings.TrimSpace(output.String()); line != "" {
			return line
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected response")
	return ""
}

func TestServerHandlesRequest(t *testing.T) {
	input := "{\"jsonrpc\":\"2.0\",\"id\":1,\"method\":\"ProjectGetStatus\",\"api_version\":\"1\"}\n"
	reader := strings.NewReader(input)
	var output bytes.Buffer
	server := NewServer("1", reader, &output, nil)
	server.Register("ProjectGetStatus", func(ctx context.Context, params json.RawMessage) (any, *Error) {
		return map[string]any{"state": "preview_ready"}, nil
	})

	if err := server.Serve(context.Background()); err != nil {
		t.Fatalf("serve: %v", err)
	}
	var resp Response
	if err := json.Unmarshal([]byte(waitForLine(t, &output)), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}
	result := resp.Result.(map[string]any)
	if result["state"] != "preview_ready" {
		t.Fatalf("unexpected result: %v", result)
	}
}

func TestServerMethodNotFound(t *testing.T) {
	input := "{\"jsonrpc\":\"2.0\",\"id\":7,\"method\":\"NoSuchMethod\"}\n"
	var output bytes.Buffer
	server := NewServer("1", strings.NewReader(input), &output, nil)
	if err := server.Serve(context.Background()); err != nil {
		t.Fatalf("serve: %v", err)
	}
	var resp Response
	if err := json.Unmarshal([]byte(waitForLine(t, &output)), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Error == nil || !strings.Contains(resp.Error.Message, "method not found") {
		t.Fatalf("expected method-not-found error, got %+v", resp)
	}
}

func TestServerRejectsIncompatibleAPIVersion(t *testing.T) {
	input := "{\"jsonrpc\":\"2.0\",\"id\":2,\"method\":\"ProjectGetStatus\",\"api_version\":\"99\"}\n"
	var output bytes.Buffer
	server := NewServer("1", strings.NewReader(input), &output, nil)
	server.Register("ProjectGetStatus", func(ctx context.Context, params json.RawMessage) (any, *Error) {
		t.Errorf("handler must not run for incompatible version")
		return nil, nil
	})
	if err := server.Serve(context.Background()); err != nil {
		t.Fatalf("serve: %v", err)
	}
	var resp Response
	if err := json.Unmarshal([]byte(waitForLine(t, &output)), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Error == nil || !strings.Contains(resp.Error.Message, "incompatible api_version") {
		t.Fatalf("expected version error, got %+v", resp)
	}
}

func TestServerHandlerError(t *testing.T) {
	input := "{\"jsonrpc\":\"2.0\",\"id\":3,\"method\":\"FilesCreate\"}\n"
	var output bytes.Buffer
	server := NewServer("1", strings.NewReader(input), &output, nil)
	server.Register("FilesCreate", func(ctx context.Context, params json.RawMessage) (any, *Error) {
		return nil, &Error{Message: "PATH_TRAVERSAL", Data: map[string]string{"path": "../x"}}
	})
	if err := server.Serve(context.Background()); err != nil {
		t.Fatalf("serve: %v", err)
	}
	var resp Response
	if err := json.Unmarshal([]byte(waitForLine(t, &output)), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Error == nil || resp.Error.Message != "PATH_TRAVERSAL" || resp.Error.Code != rpcErrorCode {
		t.Fatalf("expected handler error, got %+v", resp)
	}
}

func TestServerNotify(t *testing.T) {
	var output bytes.Buffer
	server := NewServer("1", strings.NewReader(""), &output, nil)
	server.Notify("BuildEvent", map[string]any{"type": "build_start", "projectId": "proj-1"})
	var n Notification
	if err := json.Unmarshal([]byte(strings.TrimSpace(output.String())), &n); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if n.JSONRPC != "2.0" || n.Method != "BuildEvent" {
		t.Fatalf("unexpected notification: %+v", n)
	}
	params := n.Params.(map[string]any)
	if params["projectId"] != "proj-1" {
		t.Fatalf("unexpected params: %v", params)
	}
}

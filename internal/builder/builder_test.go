package builder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestRunCapturesOutput(t *testing.T) {
	r := NewRunner(nil)
	res, err := r.Run(context.Background(), t.TempDir(), "echo out; echo err >&2", 10*time.Second, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Stdout != "out\n" {
		t.Fatalf("stdout: %q", res.Stdout)
	}
	if res.Stderr != "err\n" {
		t.Fatalf("stderr: %q", res.Stderr)
	}
	if res.Duration <= 0 {
		t.Fatalf("expected positive duration")
	}
}

func TestRunStreamsStderrLines(t *testing.T) {
	r := NewRunner(nil)
	var lines []string
	_, err := r.Run(context.Background(), t.TempDir(), "echo one >&2; echo '  two  ' >&2; echo >&2", 10*time.Second, func(line string) {
		lines = append(lines, line)
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(lines) != 2 || lines[0] != "one" || lines[1] != "two" {
		t.Fatalf("unexpected streamed lines: %v", lines)
	}
}

func TestRunExitErrorIsNotTimeout(t *testing.T) {
	r := NewRunner(nil)
	res, err := r.Run(context.Background(), t.TempDir(), "echo boom >&2; exit 3", 10*time.Second, nil)
	if err == nil {
		t.Fatalf("expected exit error")
	}
	if errors.Is(err, ErrTimeout) {
		t.Fatalf("exit error must not look like a timeout: %v", err)
	}
	if res.Stderr != "boom\n" {
		t.Fatalf("stderr should survive a failed run: %q", res.Stderr)
	}
}

func TestRunTimeoutKillsProcess(t *testing.T) {
	r := NewRunner(nil)
	start := time.Now()
	_, err := r.Run(context.Background(), t.TempDir(), "sleep 30", 200*time.Millisecond, nil)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("kill took too long: %v", elapsed)
	}
}

func TestRunTimeoutKillsChildren(t *testing.T) {
	r := NewRunner(nil)
	dir := t.TempDir()
	marker := filepath.Join(dir, "marker")
	// The background child would write the marker after the parent is gone
	// if only the direct process were killed.
	script := "(sleep 1; echo leaked > " + marker + ") & sleep 30"
	if _, err := r.Run(context.Background(), dir, script, 200*time.Millisecond, nil); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	time.Sleep(1500 * time.Millisecond)
	if _, err := os.Stat(marker); !os.IsNotExist(err) {
		t.Fatalf("background child survived the kill")
	}
}

func TestRunCanceledContext(t *testing.T) {
	r := NewRunner(nil)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()
	_, err := r.Run(ctx, t.TempDir(), "sleep 30", 0, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRunEmptyCommand(t *testing.T) {
	r := NewRunner(nil)
	if _, err := r.Run(context.Background(), t.TempDir(), "  ", time.Second, nil); err == nil {
		t.Fatalf("expected error for empty command")
	}
}

func TestTail(t *testing.T) {
	if got := Tail("short", 100); got != "short" {
		t.Fatalf("short string should pass through: %q", got)
	}
	long := strings.Repeat("x", 50) + "\nlast line\n"
	got := Tail(long, 12)
	if got != "last line" {
		t.Fatalf("expected line-aligned tail, got %q", got)
	}
	if got := Tail("", 10); got != "" {
		t.Fatalf("empty input: %q", got)
	}
}

package builder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"appforge/engine/internal/logging"
)

// ErrTimeout marks a run that was killed because it outlived its deadline.
// Callers distinguish it from an ordinary non-zero exit with errors.Is.
var ErrTimeout = errors.New("command timed out")

const maxOutputLine = 1024 * 1024

// Result captures a finished (or killed) command run.
type Result struct {
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Runner executes project build commands as shell lines.
type Runner struct {
	logger *slog.Logger
}

func NewRunner(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Runner{logger: logger}
}

// Run executes command via the shell with dir as working directory. Stderr
// lines are forwarded to onStderrLine as they arrive so callers can stream
// progress. The command runs in its own process group; when the timeout or
// ctx fires the whole group is killed, since npm and friends spawn children
// that would otherwise outlive their parent.
func (r *Runner) Run(ctx context.Context, dir, command string, timeout time.Duration, onStderrLine func(string)) (Result, error) {
	if strings.TrimSpace(command) == "" {
		return Result{}, errors.New("empty command")
	}
	start := time.Now()
	runCtx := ctx
	cancel := context.CancelFunc(func() {})
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	cmd := exec.Command("/bin/sh", "-c", command)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "CI=true", "NO_COLOR=1")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Result{}, err
	}
	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("start %q: %w", command, err)
	}
	r.logger.Debug("builder.started", "dir", dir, "command", command, "pid", cmd.Process.Pid)

	var stdoutBuf, stderrBuf strings.Builder
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), maxOutputLine)
		for scanner.Scan() {
			stdoutBuf.WriteString(scanner.Text())
			stdoutBuf.WriteByte('\n')
		}
	}()
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stderr)
		scanner.Buffer(make([]byte, 0, 64*1024), maxOutputLine)
		for scanner.Scan() {
			line := scanner.Text()
			stderrBuf.WriteString(line)
			stderrBuf.WriteByte('\n')
			if trimmed := strings.TrimSpace(line); trimmed != "" && onStderrLine != nil {
				onStderrLine(trimmed)
			}
		}
	}()

	done := make(chan error, 1)
	go func() {
		wg.Wait()
		done <- cmd.Wait()
	}()

	select {
	case <-runCtx.Done():
		killProcessGroup(cmd)
		<-done
		result := Result{Stdout: stdoutBuf.String(), Stderr: stderrBuf.String(), Duration: time.Since(start)}
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			r.logger.Warn("builder.timeout", "dir", dir, "command", command, "timeout", timeout.String())
			return result, fmt.Errorf("%q: %w after %s", command, ErrTimeout, timeout)
		}
		return result, runCtx.Err()
	case err := <-done:
		result := Result{Stdout: stdoutBuf.String(), Stderr: stderrBuf.String(), Duration: time.Since(start)}
		if err != nil {
			r.logger.Warn("builder.failed", "dir", dir, "command", command, "error", err.Error())
			return result, fmt.Errorf("%q: %w", command, err)
		}
		r.logger.Debug("builder.finished", "dir", dir, "command", command, "duration", result.Duration.String())
		return result, nil
	}
}

// killProcessGroup sends SIGKILL to the command's process group. Falls back
// to killing just the direct child when the group signal fails.
func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil {
		_ = cmd.Process.Kill()
	}
}

// Tail returns the last max bytes of s, cut at a line boundary when one is
// close enough. Used to keep failure details readable.
func Tail(s string, max int) string {
	s = strings.TrimRight(s, "\n")
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := s[len(s)-max:]
	if idx := strings.IndexByte(cut, '\n'); idx >= 0 && idx < len(cut)-1 {
		cut = cut[idx+1:]
	}
	return cut
}

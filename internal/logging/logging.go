package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

type FileLogger struct {
	Logger  *slog.Logger
	Close   func() error
	Path    string
	Enabled bool
}

func Nop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func nopFileLogger() FileLogger {
	return FileLogger{Logger: Nop(), Close: func() error { return nil }, Enabled: false}
}

// NewFileLogger opens a JSON debug log under dataDir/logs. stdout carries the
// RPC stream, so when stderrToo is set log records are mirrored to stderr
// instead of being lost to the file alone.
func NewFileLogger(dataDir string, debug, stderrToo bool) (FileLogger, error) {
	if !debug {
		return nopFileLogger(), nil
	}
	logDir := filepath.Join(dataDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nopFileLogger(), err
	}
	path := filepath.Join(logDir, "engine.log")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nopFileLogger(), err
	}
	var sink io.Writer = file
	if stderrToo {
		sink = io.MultiWriter(file, os.Stderr)
	}
	handler := slog.NewJSONHandler(sink, &slog.HandlerOptions{
		Level:     slog.LevelDebug,
		AddSource: true,
	})
	return FileLogger{
		Logger:  slog.New(handler),
		Close:   file.Close,
		Path:    path,
		Enabled: true,
	}, nil
}

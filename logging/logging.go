// Package logging builds the slog loggers used across flx.
//
// The dashboard owns the terminal, so interactive runs log to a timestamped
// file and headless commands log to stderr. Components accept a *slog.Logger
// and fall back to Discard when none is given.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// LevelTrace sits below slog.LevelDebug and is used for raw wire traffic.
const LevelTrace slog.Level = slog.LevelDebug - 4

// Level maps a -v count to a slog level: 0 is Info, 1 is Debug, 2+ is Trace.
func Level(verbosity int) slog.Level {
	switch {
	case verbosity >= 2:
		return LevelTrace
	case verbosity == 1:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// OrDiscard returns l, or a discarding logger when l is nil.
func OrDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return Discard()
	}
	return l
}

// New creates a text logger writing to w.
func New(w io.Writer, verbosity int) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: Level(verbosity)}))
}

// DefaultDir returns the directory log files are written to.
func DefaultDir() (string, error) {
	cache, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate cache directory: %w", err)
	}
	return filepath.Join(cache, "flx", "logs"), nil
}

// NewFileLogger creates a logger writing to a new timestamped file in dir.
// It returns the logger, the file path and a function closing the file.
func NewFileLogger(dir string, verbosity int) (*slog.Logger, string, func(), error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, "", nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	path := filepath.Join(dir, time.Now().Format("2006-01-02T15-04-05")+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, "", nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return New(f, verbosity), path, func() { f.Close() }, nil
}

// Trace logs at LevelTrace.
func Trace(l *slog.Logger, msg string, args ...any) {
	l.Log(context.Background(), LevelTrace, msg, args...)
}

// Package logger builds the *slog.Logger handed to every voicenotes component.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	charmlog "github.com/charmbracelet/log"
)

type config struct {
	level    slog.Level
	pretty   bool
	json     bool
	writer   io.Writer
	deviceID string
	role     string
}

// New creates a logger. The default is slog's text handler at Info level on
// stdout.
func New(opts ...Option) *slog.Logger {
	c := &config{level: slog.LevelInfo, writer: os.Stdout}
	for _, opt := range opts {
		opt(c)
	}

	var l *slog.Logger
	switch {
	case c.pretty:
		l = slog.New(charmlog.NewWithOptions(c.writer, charmlog.Options{
			Level:           charmlog.Level(c.level),
			ReportTimestamp: true,
			TimeFormat:      time.Kitchen,
		}))
	case c.json:
		l = slog.New(slog.NewJSONHandler(c.writer, &slog.HandlerOptions{Level: c.level}))
	default:
		l = slog.New(slog.NewTextHandler(c.writer, &slog.HandlerOptions{Level: c.level}))
	}

	if c.deviceID != "" {
		l = l.With("device_id", c.deviceID, "role", c.role)
	}
	return l
}

// OpenFile opens path for appending, creating it and its parent directory.
func OpenFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	return f, nil
}

// Nop returns a logger that discards everything.
func Nop() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

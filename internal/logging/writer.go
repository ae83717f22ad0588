package logging

import (
	"context"
	"log/slog"
	"strings"
)

// Writer is an io.Writer implementation that forwards lines written by
// third-party components (for example an http.Server error log) to slog.
type Writer struct {
	logger *slog.Logger
	level  slog.Level
	msg    string
}

// NewWriter constructs a Writer bound to the provided logger. Lines are logged
// at the given level under msg.
func NewWriter(logger *slog.Logger, level Level, msg string) *Writer {
	if msg == "" {
		msg = "component output"
	}
	return &Writer{logger: logger, level: slog.Level(level), msg: msg}
}

// Write logs the given bytes as one record per non-empty line.
func (w *Writer) Write(p []byte) (int, error) {
	if w.logger != nil {
		for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			w.logger.Log(context.Background(), w.level, w.msg, "line", line)
		}
	}
	return len(p), nil
}

// Package logging builds the process logger: a slog text handler writing
// to the console and to an append-only file under the log directory.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// FileName is the log file created inside the log directory.
const FileName = "smartplant.log"

// DualLogger fans every record out to the console and the log file.
type DualLogger struct {
	Logger *slog.Logger
	// Writer is the combined sink; HTTP access logs go here too.
	Writer io.Writer
	file   *os.File
}

// New opens dir/smartplant.log and returns a logger at the given level.
// console may be nil to log to the file only. An empty dir disables the
// file.
func New(dir, level string, console io.Writer) (*DualLogger, error) {
	var writers []io.Writer
	if console != nil {
		writers = append(writers, console)
	}

	var file *os.File
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		var err error
		file, err = os.OpenFile(filepath.Join(dir, FileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, err
		}
		writers = append(writers, file)
	}

	var w io.Writer = io.Discard
	if len(writers) > 0 {
		w = io.MultiWriter(writers...)
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)})

	return &DualLogger{Logger: slog.New(handler), Writer: w, file: file}, nil
}

// Close closes the log file, if any.
func (d *DualLogger) Close() error {
	if d == nil || d.file == nil {
		return nil
	}
	return d.file.Close()
}

// ParseLevel maps debug/info/warn/error to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

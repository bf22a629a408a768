// Package logging builds the leveled loggers used throughout matricks
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
)

// FileName is the log file written inside the configured log directory
const FileName = "matricks.log"

// New returns a logger at the named level writing to w
func New(w io.Writer, level string) (*log.Logger, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	return log.NewWithOptions(w, log.Options{
		Level:           lvl,
		ReportTimestamp: true,
		TimeFormat:      time.DateTime,
	}), nil
}

// Open returns a logger writing to stderr and, when dir is set, to a
// log file inside dir. The returned closer releases the file.
func Open(dir, level string) (*log.Logger, io.Closer, error) {
	if dir == "" {
		logger, err := New(os.Stderr, level)
		return logger, nopCloser{}, err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, FileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	logger, err := New(io.MultiWriter(os.Stderr, f), level)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return logger, f, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Discard returns a logger that drops everything, for tests
func Discard() *log.Logger {
	return log.New(io.Discard)
}

// ForPlugin returns the logger used for messages originating in a plugin
func ForPlugin(parent *log.Logger, name string) *log.Logger {
	return parent.WithPrefix("plugin " + name)
}

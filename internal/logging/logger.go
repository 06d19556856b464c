// Package logging provides the leveled printf-style logger used by the
// service and by per-job log files.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Logger writes timestamped, leveled lines to a console writer and
// optionally to a log file and an extra sink.
type Logger struct {
	mu      sync.Mutex
	console io.Writer
	file    *os.File
	extra   io.Writer
	debug   bool
	now     func() time.Time
}

// New creates a logger writing to console. A nil console discards output.
func New(console io.Writer) *Logger {
	if console == nil {
		console = io.Discard
	}
	return &Logger{console: console, now: time.Now}
}

// Discard returns a logger that drops everything
func Discard() *Logger {
	return New(io.Discard)
}

// NewForJob creates a logger appending to logPath. When console is true lines
// are echoed to stdout; extra, if non-nil, receives every formatted line too.
func NewForJob(logPath string, console bool, extra io.Writer) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	var out io.Writer = io.Discard
	if console {
		out = os.Stdout
	}
	return &Logger{console: out, file: f, extra: extra, now: time.Now}, nil
}

// SetDebug enables or disables Debug output
func (l *Logger) SetDebug(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.debug = enabled
}

// Close closes the log file if one was opened
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

// Write passes already formatted output to every sink. It lets a Logger be
// used as the extra sink of a per-job logger.
func (l *Logger) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writeLocked(string(p))
	return len(p), nil
}

func (l *Logger) writeLocked(s string) {
	_, _ = io.WriteString(l.console, s)
	if l.file != nil {
		_, _ = io.WriteString(l.file, s)
	}
	if l.extra != nil {
		_, _ = io.WriteString(l.extra, s)
	}
}

func (l *Logger) line(level, text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ts := l.now().Format("2006-01-02 15:04:05")
	l.writeLocked(ts + " [" + level + "] " + text + "\n")
}

// Info logs at INFO level
func (l *Logger) Info(format string, args ...interface{}) {
	l.line("INFO", fmt.Sprintf(format, args...))
}

// Warn logs at WARN level
func (l *Logger) Warn(format string, args ...interface{}) {
	l.line("WARN", fmt.Sprintf(format, args...))
}

// Error logs at ERROR level
func (l *Logger) Error(format string, args ...interface{}) {
	l.line("ERROR", fmt.Sprintf(format, args...))
}

// Debug logs at DEBUG level when enabled
func (l *Logger) Debug(format string, args ...interface{}) {
	l.mu.Lock()
	enabled := l.debug
	l.mu.Unlock()
	if !enabled {
		return
	}
	l.line("DEBUG", fmt.Sprintf(format, args...))
}

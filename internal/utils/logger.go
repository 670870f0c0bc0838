package utils

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Logger writes structured logs to stderr and, optionally, to a log file.
type Logger struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	level  *slog.LevelVar
	logger *slog.Logger
	out    *switchWriter
}

// NewLogger creates a logger at the given level ("debug", "info", "warn",
// "error"). An empty filePath logs to stderr only.
func NewLogger(filePath, level string) (*Logger, error) {
	l := &Logger{path: filePath, level: new(slog.LevelVar), out: &switchWriter{}}
	l.level.Set(ParseLevel(level))

	if err := l.open(); err != nil {
		return nil, err
	}
	l.logger = slog.New(slog.NewTextHandler(l.out, &slog.HandlerOptions{Level: l.level}))
	return l, nil
}

// Slog returns the underlying structured logger.
func (l *Logger) Slog() *slog.Logger { return l.logger }

// Module returns a logger tagged with the component name.
func (l *Logger) Module(name string) *slog.Logger {
	return l.logger.With("module", name)
}

// SetLevel changes the level at runtime.
func (l *Logger) SetLevel(level string) { l.level.Set(ParseLevel(level)) }

// Reopen closes and reopens the log file so external rotation can move it.
func (l *Logger) Reopen() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	// stderr only until the new file is open
	l.out.set(os.Stderr)
	if l.file != nil {
		_ = l.file.Close()
		l.file = nil
	}
	return l.openLocked()
}

// Close closes the log file.
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		_ = l.file.Close()
		l.file = nil
	}
	l.out.set(os.Stderr)
}

func (l *Logger) open() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.openLocked()
}

func (l *Logger) openLocked() error {
	if l.path == "" {
		l.out.set(os.Stderr)
		return nil
	}
	file, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	l.file = file
	l.out.set(io.MultiWriter(os.Stderr, file))
	return nil
}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// switchWriter lets Reopen swap the destination under a live handler.
type switchWriter struct {
	mu sync.RWMutex
	w  io.Writer
}

func (s *switchWriter) set(w io.Writer) {
	s.mu.Lock()
	s.w = w
	s.mu.Unlock()
}

func (s *switchWriter) Write(p []byte) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.w == nil {
		return len(p), nil
	}
	return s.w.Write(p)
}

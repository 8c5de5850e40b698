// Package loggy provides the application-wide structured logger, a thin
// wrapper around log/slog with a process-global default instance.
package loggy

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var (
	mu     sync.RWMutex
	global = NewNoopLogger()
	closer io.Closer
)

// Config controls handler construction at Init time.
type Config struct {
	Level     slog.Level
	Format    string // "text" or "json"
	Output    string // "stdout", "stderr", or a file path
	AddSource bool
}

// DefaultConfig returns the configuration used when nothing is set in the
// environment.
func DefaultConfig() Config {
	return Config{
		Level:     slog.LevelInfo,
		Format:    "text",
		Output:    "stderr",
		AddSource: false,
	}
}

// Logger is a handle carrying pre-bound attributes. The zero value is not
// usable; obtain one from Init, With, or NewNoopLogger.
type Logger struct {
	sl *slog.Logger
}

// Init builds the global logger from cfg. Calling it again replaces the
// previous logger and closes any log file the previous one owned.
func Init(cfg Config) error {
	var w io.Writer
	var c io.Closer

	switch cfg.Output {
	case "", "stderr":
		w = os.Stderr
	case "stdout":
		w = os.Stdout
	default:
		if err := os.MkdirAll(filepath.Dir(cfg.Output), 0755); err != nil {
			return fmt.Errorf("creating log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		w = f
		c = f
	}

	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
	}

	var h slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}

	mu.Lock()
	defer mu.Unlock()
	if closer != nil {
		closer.Close()
	}
	closer = c
	global = &Logger{sl: slog.New(h)}
	return nil
}

// Close releases the log file, if Init opened one.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if closer == nil {
		return nil
	}
	err := closer.Close()
	closer = nil
	return err
}

// Default returns the current global logger.
func Default() *Logger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

// SetDefault replaces the global logger. Intended for tests.
func SetDefault(l *Logger) {
	mu.Lock()
	defer mu.Unlock()
	if l != nil {
		global = l
	}
}

// NewNoopLogger returns a logger that discards everything. It does not touch
// the global instance.
func NewNoopLogger() *Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return &Logger{sl: slog.New(h)}
}

// ParseLevel maps a config string to a slog level, defaulting to info.
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

func Debug(msg string, args ...any) { Default().Debug(msg, args...) }
func Info(msg string, args ...any)  { Default().Info(msg, args...) }
func Warn(msg string, args ...any)  { Default().Warn(msg, args...) }
func Error(msg string, args ...any) { Default().Error(msg, args...) }

// With returns a child of the global logger carrying the given attributes.
func With(args ...any) *Logger {
	return Default().With(args...)
}

func (l *Logger) Debug(msg string, args ...any) {
	if l != nil && l.sl != nil {
		l.sl.Debug(msg, args...)
	}
}

func (l *Logger) Info(msg string, args ...any) {
	if l != nil && l.sl != nil {
		l.sl.Info(msg, args...)
	}
}

func (l *Logger) Warn(msg string, args ...any) {
	if l != nil && l.sl != nil {
		l.sl.Warn(msg, args...)
	}
}

func (l *Logger) Error(msg string, args ...any) {
	if l != nil && l.sl != nil {
		l.sl.Error(msg, args...)
	}
}

func (l *Logger) With(args ...any) *Logger {
	if l == nil || l.sl == nil {
		return l
	}
	return &Logger{sl: l.sl.With(args...)}
}

func (l *Logger) WithGroup(name string) *Logger {
	if l == nil || l.sl == nil {
		return l
	}
	return &Logger{sl: l.sl.WithGroup(name)}
}

// Package logger provides structured logging for taleclaw.
//
// Logs go through log/slog with lumberjack rotation. Every subsystem
// obtains a component-scoped logger via ForComponent.
package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Component constants for structured logging.
const (
	CompGateway  = "gateway"
	CompChannel  = "channel"
	CompDispatch = "dispatch"
	CompTrigger  = "trigger"
	CompSession  = "session"
	CompUser     = "userstate"
	CompWorker   = "worker"
	CompConfig   = "config"
	CompMaint    = "maintenance"
)

// Config holds logging configuration.
type Config struct {
	// LogDir is the directory for log files (e.g. ~/.taleclaw).
	// Empty means stderr only.
	LogDir string

	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string

	// Format is "json" (default) or "text".
	Format string

	// MaxSizeMB is the max size in MB before rotation (default: 10).
	MaxSizeMB int

	// MaxBackups is rotated files to keep (default: 5).
	MaxBackups int

	// MaxAgeDays is days to keep rotated files (default: 10).
	MaxAgeDays int

	// Compress rotated files (default: false).
	Compress bool
}

var (
	globalMu     sync.RWMutex
	globalLogger *slog.Logger
	rotator      *lumberjack.Logger
)

// Init initializes the global logging system.
func Init(cfg Config) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 10
	}
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = 5
	}
	if cfg.MaxAgeDays <= 0 {
		cfg.MaxAgeDays = 10
	}

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var out io.Writer = os.Stderr
	if cfg.LogDir != "" {
		rotator = &lumberjack.Logger{
			Filename:   filepath.Join(cfg.LogDir, "taleclaw.log"),
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		out = io.MultiWriter(os.Stderr, rotator)
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	globalLogger = slog.New(handler)
}

// Get returns the global logger, initializing a stderr default if needed.
func Get() *slog.Logger {
	globalMu.RLock()
	l := globalLogger
	globalMu.RUnlock()
	if l != nil {
		return l
	}
	Init(Config{})
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// ForComponent returns a logger scoped to a component.
func ForComponent(component string) *slog.Logger {
	return Get().With(slog.String("component", component))
}

// Close flushes and closes the rotating log file, if any.
func Close() error {
	globalMu.Lock()
	defer globalMu.Unlock()
	if rotator != nil {
		err := rotator.Close()
		rotator = nil
		return err
	}
	return nil
}

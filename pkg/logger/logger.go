package logger

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// Log is the process-wide structured logger. Every pipeline stage logs
// through it with key/value pairs rather than fmt.Printf.
var Log *slog.Logger

// Init initializes the global slog logger. Sink and level can be overridden
// via RECORDER_LOG_SINK ("file:/path") and RECORDER_LOG_LEVEL, with level
// falling back to the cfgLevel argument (the config file's log_level key)
// when the env var is unset.
func Init(cfgLevel string) {
	sink := os.Getenv("RECORDER_LOG_SINK")
	lvl := strings.ToLower(strings.TrimSpace(os.Getenv("RECORDER_LOG_LEVEL")))
	if lvl == "" {
		lvl = strings.ToLower(strings.TrimSpace(cfgLevel))
	}

	var level slog.Level
	switch lvl {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	if strings.HasPrefix(sink, "file:") {
		path := strings.TrimPrefix(sink, "file:")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
		if err == nil {
			Log = slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: level}))
			return
		}
		fmt.Fprintf(os.Stderr, "failed to open log file %s: %v\n", path, err)
	}
	Log = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

// Sync is a no-op for slog handlers; kept so call sites that historically
// deferred a flush still compile against either handler implementation.
func Sync() {}

// Debug logs with slog-style key/value pairs. Nil-safe: before Init runs
// (or in tests that never call it) calls are silently dropped.
func Debug(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Debug(msg, args...)
}

// Info logs with slog-style key/value pairs.
func Info(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Info(msg, args...)
}

// Warn logs with slog-style key/value pairs.
func Warn(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Warn(msg, args...)
}

// Error logs with slog-style key/value pairs.
func Error(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Error(msg, args...)
}

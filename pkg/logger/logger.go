// Package logger provides the daemon's process-wide structured logger, a
// thin convenience layer over log/slog.
package logger

import (
	"log/slog"
	"os"
	"strings"
)

// Log is the process-wide logger. Init/InitWithLevel replace it; until
// then it defaults to slog's own default logger.
var Log = slog.Default()

// Init configures Log at info level, writing JSON to stderr.
func Init() {
	InitWithLevel("info")
}

// InitWithLevel configures Log at the named level ("debug", "info", "warn",
// "error"; unrecognized values fall back to "info"), writing JSON to
// stderr.
func InitWithLevel(level string) {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(level)})
	Log = slog.New(handler)
	slog.SetDefault(Log)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// Debug, Info, Warn, Error log at the corresponding level through Log.
func Debug(msg string, args ...any) { Log.Debug(msg, args...) }
func Info(msg string, args ...any)  { Log.Info(msg, args...) }
func Warn(msg string, args ...any)  { Log.Warn(msg, args...) }
func Error(msg string, args ...any) { Log.Error(msg, args...) }

// Package log owns the process-wide slog logger. Init is called once
// from main; everything else takes a *slog.Logger or falls back to L.
package log

import (
	"log/slog"
	"os"
	"sync"
)

var (
	logger *slog.Logger
	once   sync.Once
)

// Init configures the global logger. Level is one of debug, info,
// warn, error; anything else means info. Output is text for local
// runs and JSON when LOG_FORMAT=json or GO_ENV=production.
func Init(level string) {
	once.Do(func() {
		opts := &slog.HandlerOptions{Level: parseLevel(level)}

		var handler slog.Handler
		if os.Getenv("LOG_FORMAT") == "json" || os.Getenv("GO_ENV") == "production" {
			handler = slog.NewJSONHandler(os.Stdout, opts)
		} else {
			handler = slog.NewTextHandler(os.Stdout, opts)
		}

		logger = slog.New(handler)
		slog.SetDefault(logger)
	})
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// L returns the global logger, initializing it at info if needed.
func L() *slog.Logger {
	if logger == nil {
		Init("info")
	}
	return logger
}

// Debug logs at debug level on the global logger.
func Debug(msg string, args ...any) { L().Debug(msg, args...) }

// Info logs at info level on the global logger.
func Info(msg string, args ...any) { L().Info(msg, args...) }

// Warn logs at warn level on the global logger.
func Warn(msg string, args ...any) { L().Warn(msg, args...) }

// Error logs at error level on the global logger.
func Error(msg string, args ...any) { L().Error(msg, args...) }

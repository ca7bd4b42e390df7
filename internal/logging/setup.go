package logging

import (
	"io"
	"log/slog"
	"strings"
)

// Setup installs a JSON logger wrapped by ContextHandler as the slog default.
// "debug" enables debug level and source locations.
func Setup(w io.Writer, level string) *slog.Logger {
	logLevel := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: logLevel, AddSource: logLevel == slog.LevelDebug}
	logger := slog.New(NewContextHandler(slog.NewJSONHandler(w, opts)))
	slog.SetDefault(logger)
	return logger
}

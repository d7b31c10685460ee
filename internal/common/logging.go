package common

import (
	"log/slog"
	"os"
	"strings"
)

// NewLogger builds a JSON logger on stdout at the configured level.
func NewLogger(cfg LoggingConfig) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: ParseLevel(cfg.Level),
	}))
}

// ParseLevel maps a configuration string to a slog level. Unknown values
// fall back to info.
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

// Package logging builds the process-wide slog logger. Every line is JSON so
// shippers can index fields without parsing.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// NewLogger returns a JSON logger at the given level with the service name
// attached to every record. Unknown level strings fall back to info rather
// than failing startup.
func NewLogger(level string) *slog.Logger {
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     parseLevel(level),
		AddSource: true,
	})
	return slog.New(h).With("service", "lifeline")
}

func parseLevel(s string) slog.Level {
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

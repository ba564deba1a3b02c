package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New creates a configured application logger.
// It writes to Stderr so Stdout stays free for command output and MCP stdio.
// It standardizes common keys (e.g., "error" -> "err").
func New(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, options(level)))
}

// NewJSON creates a logger emitting one JSON object per record on Stderr.
func NewJSON(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, options(level)))
}

// NewNop returns a no-op logger.
func NewNop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ParseLevel maps a textual level to slog.Level. Unknown values become Info.
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

func options(level slog.Level) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == "error" {
				a.Key = "err"
			}
			return a
		},
	}
}

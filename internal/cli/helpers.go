package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/aretw0/plotbridge/internal/logging"
)

// NewLogger configures the application logger on stderr.
// Debug forces the debug level; json switches to the JSON handler.
func NewLogger(level slog.Level, debug, json bool) *slog.Logger {
	if debug {
		level = slog.LevelDebug
	}
	if json {
		return logging.NewJSON(level)
	}
	return logging.New(level)
}

// PrintSystemMessage prints a standardized system message.
func PrintSystemMessage(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, ">>> %s\n", fmt.Sprintf(format, args...))
}

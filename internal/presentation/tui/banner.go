package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/muesli/termenv"
)

// PrintBanner writes the plotbridge banner with the version to w.
func PrintBanner(w io.Writer, version string) {
	p := termenv.ColorProfile()
	lines := []struct {
		text  string
		color string
	}{
		{"        _       _   _          _     _            ", "#38bdf8"},
		{"  _ __ | | ___ | |_| |__  _ __(_) __| | __ _  ___ ", "#22d3ee"},
		{" | '_ \\| |/ _ \\| __| '_ \\| '__| |/ _` |/ _` |/ _ \\", "#2dd4bf"},
		{" | |_) | | (_) | |_| |_) | |  | | (_| | (_| |  __/", "#34d399"},
		{" | .__/|_|\\___/ \\__|_.__/|_|  |_|\\__,_|\\__, |\\___|", "#4ade80"},
		{" |_|                                   |___/      ", "#a3e635"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w, termenv.String("  v"+strings.TrimSpace(version)).Faint())
	fmt.Fprintln(w)
}

// Status colors a connection label for terminal output.
func Status(label string, connected bool) string {
	p := termenv.ColorProfile()
	color := "#f87171"
	if connected {
		color = "#4ade80"
	}
	return termenv.String(label).Foreground(p.Color(color)).Bold().String()
}

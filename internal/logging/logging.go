// Package logging configures the process-wide slog logger.
//
// Output is human-readable text when the stream is an interactive terminal
// and JSON otherwise, so CI logs stay machine-parseable. The level lives in a
// shared [slog.LevelVar] and can be changed after the logger is installed.
package logging

import (
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
)

var level slog.LevelVar

// Options controls handler construction.
type Options struct {
	Level   slog.Level // Minimum level to emit.
	Verbose bool       // Include source locations.
	Group   string     // Optional group wrapping all attributes.
}

// Builds a logger writing to w.
//
// Text output is used when w is a terminal, JSON otherwise.
func New(w io.Writer, opts Options) *slog.Logger {
	level.Set(opts.Level)

	hopts := &slog.HandlerOptions{
		Level:     &level,
		AddSource: opts.Verbose,
	}

	var handler slog.Handler
	if isTerminal(w) {
		handler = slog.NewTextHandler(w, hopts)
	} else {
		handler = slog.NewJSONHandler(w, hopts)
	}

	if opts.Group != "" {
		handler = handler.WithGroup(opts.Group)
	}

	return slog.New(handler)
}

// Installs a new default logger writing to stderr.
func Configure(opts Options) {
	slog.SetDefault(New(os.Stderr, opts))
}

// Changes the level of every logger built by this package.
func SetLevel(l slog.Level) {
	level.Set(l)
}

// Whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// Reports whether stdout is attached to a terminal, used by the CLI to decide
// on styled output.
func StdoutIsTerminal() bool {
	return isTerminal(os.Stdout)
}

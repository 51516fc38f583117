package main

import (
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/term"
)

// setupLogging installs the default logger: human-readable text on a
// terminal, JSON lines otherwise.
func setupLogging(level string, w *os.File) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid --log-level %q: %w", level, err)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler
	if term.IsTerminal(int(w.Fd())) {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	slog.SetDefault(slog.New(h))
	return nil
}

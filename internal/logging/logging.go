// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package logging wraps github.com/luxfi/log the way the teacher's
// plugin/evm EVMLogger wraps it: a slog.LevelVar lets the level change at
// runtime, and the handler is chosen once at startup based on whether
// output is a terminal.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/luxfi/log"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Logger is this node's structured logger. It embeds log.Logger so callers
// use the familiar Info/Warn/Error/Debug(msg, kv...) calls directly.
type Logger struct {
	log.Logger

	level *slog.LevelVar
}

// New builds a Logger for the named component ("session", "negotiate",
// "dispatch", ...), writing to w in JSON when jsonFormat is set, otherwise
// as colorized terminal output when w is a terminal.
func New(component string, level string, jsonFormat bool, w io.Writer) (Logger, error) {
	lv := &slog.LevelVar{}

	var handler slog.Handler
	if jsonFormat {
		handler = log.JSONHandlerWithLevel(w, lv)
	} else {
		useColor := isTerminal(w)
		if useColor {
			w = colorable.NewColorable(w.(*os.File))
		}
		handler = log.NewTerminalHandlerWithLevel(w, lv, useColor)
	}

	l := Logger{
		Logger: log.NewLogger(handler).With("component", component),
		level:  lv,
	}
	if err := l.SetLevel(level); err != nil {
		return Logger{}, err
	}
	return l, nil
}

// SetLevel changes the logger's level at runtime by updating the shared
// *slog.LevelVar, so the handler does not need to be rebuilt.
func (l *Logger) SetLevel(level string) error {
	lvl, err := log.LvlFromString(level)
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	l.level.Set(slog.Level(lvl))
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

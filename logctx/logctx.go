// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package logctx gives every other package in the module a
// named, leveled logger without requiring a global logging
// sink to be wired in by hand.
package logctx

import (
	"log/slog"

	"cogentcore.org/core/base/logx"
)

// Logger is a named, leveled logger.
// It never blocks and never panics; a failed log call is
// simply dropped, since logging must not perturb the device
// worker's ordering guarantees.
type Logger struct {
	name string
}

// New returns a Logger that prefixes every message with name
// (typically a package or subsystem name, e.g. "registry",
// "copyqueue", "streaming").
func New(name string) *Logger { return &Logger{name} }

func (l *Logger) prefix(msg string) string { return l.name + ": " + msg }

// Debugf logs at debug level.
func (l *Logger) Debugf(format string, a ...any) {
	logx.PrintfDebug(l.prefix(format), a...)
}

// Infof logs at info level.
func (l *Logger) Infof(format string, a ...any) {
	logx.PrintfInfo(l.prefix(format), a...)
}

// Warnf logs at warn level.
// Used for validation failures that are dropped per the
// release-build error policy (invalid opcode, stale handle,
// incompatible framebuffer, and similar programmer errors).
func (l *Logger) Warnf(format string, a ...any) {
	logx.PrintfWarn(l.prefix(format), a...)
}

// Errorf logs at error level.
// Used for underlying API errors and content-load failures
// that are non-fatal but worth surfacing.
func (l *Logger) Errorf(format string, a ...any) {
	logx.PrintfError(l.prefix(format), a...)
}

// Level returns the slog.Level currently enabled for printing.
func Level() slog.Level { return logx.UserLevel }

// SetLevel sets the minimum level that will be printed.
func SetLevel(level slog.Level) { logx.UserLevel = level }

// Package logging provides a tiny abstraction over slog so downstream code can
// depend on a minimal interface (Logger) while allowing users to plug any
// structured logger. With binds fixed attributes (component, session ids) to
// every entry a component emits.
package logging

import (
	"log/slog"
)

// Logger defines the minimal logging interface for Parley.
// This allows users to provide their own logger implementation or use the built-in adapters.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SlogAdapter wraps *slog.Logger to implement the Logger interface.
type SlogAdapter struct {
	*slog.Logger
}

// Debug logs a debug message.
func (s *SlogAdapter) Debug(msg string, args ...any) { s.Logger.Debug(msg, args...) }

// Info logs an informational message.
func (s *SlogAdapter) Info(msg string, args ...any) { s.Logger.Info(msg, args...) }

// Warn logs a warning message.
func (s *SlogAdapter) Warn(msg string, args ...any) { s.Logger.Warn(msg, args...) }

// Error logs an error message.
func (s *SlogAdapter) Error(msg string, args ...any) { s.Logger.Error(msg, args...) }

// NewSlogAdapter creates a Logger from *slog.Logger.
func NewSlogAdapter(logger *slog.Logger) Logger {
	return &SlogAdapter{Logger: logger}
}

// NewDefaultSlogLogger creates a Logger using slog.Default().
func NewDefaultSlogLogger() Logger {
	return NewSlogAdapter(slog.Default())
}

// ContextLogger prefixes every entry with a fixed set of key/value
// attributes, so per-component and per-conversation context is attached once
// instead of at each call site.
type ContextLogger struct {
	base  Logger
	attrs []any
}

var _ Logger = (*ContextLogger)(nil)

// With returns a Logger carrying the given attributes in addition to any the
// base already carries. Nested calls flatten into one attribute list.
func With(base Logger, args ...any) *ContextLogger {
	if cl, ok := base.(*ContextLogger); ok {
		merged := make([]any, 0, len(cl.attrs)+len(args))
		merged = append(merged, cl.attrs...)
		merged = append(merged, args...)
		return &ContextLogger{base: cl.base, attrs: merged}
	}
	return &ContextLogger{base: base, attrs: append([]any(nil), args...)}
}

func (l *ContextLogger) merge(args []any) []any {
	out := make([]any, 0, len(l.attrs)+len(args))
	out = append(out, l.attrs...)
	return append(out, args...)
}

// Debug logs a debug message with the bound attributes.
func (l *ContextLogger) Debug(msg string, args ...any) { l.base.Debug(msg, l.merge(args)...) }

// Info logs an informational message with the bound attributes.
func (l *ContextLogger) Info(msg string, args ...any) { l.base.Info(msg, l.merge(args)...) }

// Warn logs a warning message with the bound attributes.
func (l *ContextLogger) Warn(msg string, args ...any) { l.base.Warn(msg, l.merge(args)...) }

// Error logs an error message with the bound attributes.
func (l *ContextLogger) Error(msg string, args ...any) { l.base.Error(msg, l.merge(args)...) }

// NoOpLogger discards all log messages. Useful for testing or when logging is disabled.
type NoOpLogger struct{}

// Debug logs a debug message.
func (NoOpLogger) Debug(string, ...any) {}

// Info logs an informational message.
func (NoOpLogger) Info(string, ...any) {}

// Warn logs a warning message.
func (NoOpLogger) Warn(string, ...any) {}

// Error logs an error message.
func (NoOpLogger) Error(string, ...any) {}

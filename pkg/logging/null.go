package logging

import "context"

var (
	_ Logger = (*NullLogger)(nil)
	_ Logger = (*FileLogger)(nil)
	_ Logger = (*slogLogger)(nil)
)

// NullLogger discards everything. The engine falls back to it when no
// logger is configured.
type NullLogger struct{}

// NewNullLogger creates a new null logger
func NewNullLogger() *NullLogger {
	return &NullLogger{}
}

func (*NullLogger) Debug(context.Context, string, Fields)        {}
func (*NullLogger) Info(context.Context, string, Fields)         {}
func (*NullLogger) Warn(context.Context, string, Fields)         {}
func (*NullLogger) Error(context.Context, string, error, Fields) {}

// WithFields returns the receiver; there is nothing to attach fields to
func (l *NullLogger) WithFields(Fields) Logger { return l }

func (*NullLogger) Close() error { return nil }

package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Format represents the log output format
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// ParseFormat parses a log format, defaulting to text
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("invalid log format %q (must be text or json)", s)
	}
}

// FileLoggerConfig holds configuration for file logging
type FileLoggerConfig struct {
	// Path is the log file path
	Path string
	// Format is the output format (json or text)
	Format Format
	// Level is the minimum log level
	Level Level
	// MaxSize is the maximum size in bytes before rotation (0 = no rotation).
	// Rotation works in whole megabytes.
	MaxSize int64
	// MaxBackups is the maximum number of backup files to keep
	MaxBackups int
}

// FileLogger implements Logger interface with file output
type FileLogger struct {
	*slogLogger
	writer *fileWriter
}

// NewFileLogger creates a new file logger
func NewFileLogger(config FileLoggerConfig) (*FileLogger, error) {
	writer, err := newFileWriter(config.Path, config.MaxSize, config.MaxBackups)
	if err != nil {
		return nil, err
	}

	return &FileLogger{
		slogLogger: newSlogLogger(writer, config.Format, config.Level),
		writer:     writer,
	}, nil
}

// WithFields returns a logger with additional fields
func (l *FileLogger) WithFields(fields Fields) Logger {
	return &FileLogger{slogLogger: l.with(fields), writer: l.writer}
}

// Close flushes and closes the logger
func (l *FileLogger) Close() error {
	return l.writer.Close()
}

// NewStreamLogger creates a logger writing to w, typically os.Stderr.
// Closing it does not close w.
func NewStreamLogger(w io.Writer, format Format, level Level) Logger {
	return newSlogLogger(w, format, level)
}

// slogLogger adapts a slog.Logger to the Logger interface
type slogLogger struct {
	logger *slog.Logger
}

func newSlogLogger(w io.Writer, format Format, level Level) *slogLogger {
	opts := &slog.HandlerOptions{
		Level:       level.slogLevel(),
		ReplaceAttr: renameAttrs,
	}

	var handler slog.Handler
	if format == FormatJSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return &slogLogger{logger: slog.New(handler)}
}

// renameAttrs uses timestamp/message as top-level keys, and UTC times
func renameAttrs(groups []string, a slog.Attr) slog.Attr {
	if len(groups) > 0 {
		return a
	}
	switch a.Key {
	case slog.TimeKey:
		a.Key = "timestamp"
		a.Value = slog.TimeValue(a.Value.Time().UTC())
	case slog.MessageKey:
		a.Key = "message"
	}
	return a
}

// Debug logs a debug message
func (l *slogLogger) Debug(ctx context.Context, msg string, fields Fields) {
	l.log(ctx, slog.LevelDebug, msg, nil, fields)
}

// Info logs an info message
func (l *slogLogger) Info(ctx context.Context, msg string, fields Fields) {
	l.log(ctx, slog.LevelInfo, msg, nil, fields)
}

// Warn logs a warning message
func (l *slogLogger) Warn(ctx context.Context, msg string, fields Fields) {
	l.log(ctx, slog.LevelWarn, msg, nil, fields)
}

// Error logs an error message
func (l *slogLogger) Error(ctx context.Context, msg string, err error, fields Fields) {
	l.log(ctx, slog.LevelError, msg, err, fields)
}

// WithFields returns a logger with additional fields
func (l *slogLogger) WithFields(fields Fields) Logger {
	return l.with(fields)
}

// Close does nothing; the writer belongs to the caller
func (l *slogLogger) Close() error {
	return nil
}

func (l *slogLogger) with(fields Fields) *slogLogger {
	return &slogLogger{logger: l.logger.With(attrs(fields)...)}
}

func (l *slogLogger) log(ctx context.Context, level slog.Level, msg string, err error, fields Fields) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !l.logger.Enabled(ctx, level) {
		return
	}

	args := attrs(fields)
	if err != nil {
		args = append(args, slog.String("error", err.Error()))
	}
	l.logger.Log(ctx, level, msg, args...)
}

// attrs converts fields to slog attributes in key order
func attrs(fields Fields) []any {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]any, 0, len(keys)+1)
	for _, k := range keys {
		args = append(args, slog.Any(k, fields[k]))
	}
	return args
}

// megabyte is the unit lumberjack counts MaxSize in
const megabyte = 1024 * 1024

// fileWriter serializes writes to the log file and drops them once closed.
// lumberjack reopens its file on every write after Close.
type fileWriter struct {
	mu     sync.Mutex
	out    io.WriteCloser
	closed bool
}

// newFileWriter opens path for appending. With maxSize > 0 the file is
// rotated by lumberjack once it would grow past maxSize, rounded up to whole
// megabytes, keeping at most maxBackups old files.
func newFileWriter(path string, maxSize int64, maxBackups int) (*fileWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	if maxSize <= 0 {
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		return &fileWriter{out: file}, nil
	}

	rotating := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    int((maxSize + megabyte - 1) / megabyte),
		MaxBackups: maxBackups,
	}
	// An empty write opens the file, so a bad path fails here
	if _, err := rotating.Write(nil); err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return &fileWriter{out: rotating}, nil
}

func (w *fileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, os.ErrClosed
	}
	return w.out.Write(p)
}

func (w *fileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	return w.out.Close()
}

// levelString returns the string representation of a log level
func levelString(level Level) string {
	switch level {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel parses a log level string
func ParseLevel(s string) Level {
	switch s {
	case "debug", "DEBUG":
		return DebugLevel
	case "info", "INFO":
		return InfoLevel
	case "warn", "WARN", "warning", "WARNING":
		return WarnLevel
	case "error", "ERROR":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// LevelString returns level as string (exported version)
func LevelString(level Level) string {
	return levelString(level)
}

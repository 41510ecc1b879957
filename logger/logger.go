// Package logger provides the structured logging interface used across the
// trading server, backed by zerolog, with optional daily-rotated log files.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Field represents a key-value pair attached to a log entry.
type Field struct {
	Key   string
	Value any
}

// F is shorthand for Field{Key: key, Value: value}.
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// Err builds the conventional "error" field. A nil error yields a field with a
// nil value so call sites don't need to branch.
func Err(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}

	return Field{Key: "error", Value: err.Error()}
}

// Logger is an interface for structured logging. Loggers may be derived with
// With for session-scoped or component-scoped fields.
type Logger interface {
	// Debug logs a message at debug level with optional structured fields.
	Debug(msg string, fields ...Field)

	// Info logs a message at info level with optional structured fields.
	Info(msg string, fields ...Field)

	// Warn logs a message at warn level with optional structured fields.
	Warn(msg string, fields ...Field)

	// Error logs a message at error level with optional structured fields.
	Error(msg string, fields ...Field)

	// With returns a new Logger that includes the given fields in all
	// subsequent log entries. The original Logger is unchanged.
	//
	// Parameters:
	//   - fields: Key-value pairs to attach to the derived logger
	//
	// Returns:
	//   - A new Logger with the specified fields
	With(fields ...Field) Logger

	// Close releases resources held by the logger (e.g. file handles).
	// It is safe to call multiple times.
	Close() error
}

type zerologLogger struct {
	logger     zerolog.Logger
	fileWriter *DailyFileWriter
}

// NewZerologLogger builds a Logger writing to w, tagging every entry with the
// service name and a timestamp and dropping entries below level.
//
// Parameters:
//   - w: Destination for log entries (e.g. os.Stdout)
//   - serviceName: Name of the service, added as a field to every log entry
//   - level: Minimum level to log (e.g. zerolog.InfoLevel)
//
// Returns:
//   - A Logger that writes through a zerolog instance
func NewZerologLogger(w io.Writer, serviceName string, level zerolog.Level) Logger {
	return &zerologLogger{
		logger: zerolog.New(w).With().Str("service", serviceName).Timestamp().Logger().Level(level),
	}
}

// NewZerologFileLogger creates a Logger that writes to stdout and to daily
// rotated files named {serviceName}_{date}.log inside logDir.
//
// Parameters:
//   - serviceName: Name of the service, used in log entries and file names
//   - logDir: Directory for log files; created if it does not exist
//   - level: Minimum level to log
//
// Returns:
//   - A Logger that writes to stdout and rotating files
//   - An error if the directory or the first log file could not be created
func NewZerologFileLogger(serviceName string, logDir string, level zerolog.Level) (Logger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	fileWriter, err := NewDailyFileWriter(serviceName, logDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create file writer: %w", err)
	}

	multi := io.MultiWriter(os.Stdout, fileWriter)
	return &zerologLogger{
		logger:     zerolog.New(multi).With().Str("service", serviceName).Timestamp().Logger().Level(level),
		fileWriter: fileWriter,
	}, nil
}

// Nop returns a Logger that discards everything.
func Nop() Logger {
	return &zerologLogger{logger: zerolog.Nop()}
}

// ParseLevel maps a textual level ("debug", "info", ...) to a zerolog level.
// An empty string means info.
func ParseLevel(level string) (zerolog.Level, error) {
	if strings.TrimSpace(level) == "" {
		return zerolog.InfoLevel, nil
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	return lvl, nil
}

func (z *zerologLogger) Debug(msg string, fields ...Field) {
	z.logger.Debug().Fields(toMap(fields)).Msg(msg)
}

func (z *zerologLogger) Info(msg string, fields ...Field) {
	z.logger.Info().Fields(toMap(fields)).Msg(msg)
}

func (z *zerologLogger) Warn(msg string, fields ...Field) {
	z.logger.Warn().Fields(toMap(fields)).Msg(msg)
}

func (z *zerologLogger) Error(msg string, fields ...Field) {
	z.logger.Error().Fields(toMap(fields)).Msg(msg)
}

// With shares the parent's file writer; only the parent closes it.
func (z *zerologLogger) With(fields ...Field) Logger {
	return &zerologLogger{
		logger: z.logger.With().Fields(toMap(fields)).Logger(),
	}
}

func (z *zerologLogger) Close() error {
	if z.fileWriter != nil {
		return z.fileWriter.Close()
	}

	return nil
}

func toMap(fields []Field) map[string]any {
	if len(fields) == 0 {
		return nil
	}

	m := make(map[string]any, len(fields))
	for _, f := range fields {
		m[f.Key] = f.Value
	}

	return m
}

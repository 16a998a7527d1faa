// Package log provides structured logging with session context.
//
// Two logger variants are available:
//   - Logger: Non-sugared zap.Logger for the replication core (structured fields)
//   - SugaredLogger: Printf-style logging for CLI/debug surfaces (convenience over performance)
//
// Use Logger.Sugar() to obtain a SugaredLogger when needed.
// All output goes to stderr by default so stdout stays reserved for data.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Format selects the log encoder.
type Format string

const (
	// FormatJSON emits one JSON object per line.
	FormatJSON Format = "json"
	// FormatConsole emits human-readable, tab-separated lines.
	FormatConsole Format = "console"
)

// DefaultLevel is the level used when none is configured.
const DefaultLevel = "warn"

// Options configures a Logger.
type Options struct {
	// Level is one of debug, info, warn, error (default warn).
	Level string
	// Format is json or console (default json).
	Format Format
	// SessionID identifies one CLI invocation; attached to every entry.
	SessionID string
	// Command is the CLI command path (e.g. "replication stream").
	Command string
}

// Logger provides structured logging with session context.
// The method set satisfies replication.Logger.
type Logger struct {
	zap    *zap.Logger
	opts   Options
	level  zapcore.Level
	fields []zap.Field
}

// SugaredLogger provides printf-style logging for CLI and debug surfaces.
type SugaredLogger struct {
	sugar *zap.SugaredLogger
}

// NewLogger creates a logger writing to os.Stderr.
func NewLogger(opts Options) (*Logger, error) {
	return newLoggerWithWriter(opts, os.Stderr)
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zap: zap.NewNop(), level: zapcore.InvalidLevel}
}

// ParseFormat validates a log format name. Empty selects FormatJSON.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatConsole:
		return FormatConsole, nil
	default:
		return "", fmt.Errorf("invalid log format: %q (must be json or console)", s)
	}
}

// WithOutput returns a new logger with the same options writing to w.
func (l *Logger) WithOutput(w io.Writer) *Logger {
	if l.level == zapcore.InvalidLevel {
		return l
	}
	// Context fields live in the core, so they are re-attached to the new one.
	core := zapcore.NewCore(newEncoder(l.opts.Format), zapcore.AddSync(w), l.level)
	return &Logger{
		zap:    zap.New(core).With(l.fields...),
		opts:   l.opts,
		level:  l.level,
		fields: l.fields,
	}
}

func newLoggerWithWriter(opts Options, w io.Writer) (*Logger, error) {
	if opts.Level == "" {
		opts.Level = DefaultLevel
	}
	level, err := zapcore.ParseLevel(opts.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %q (must be debug, info, warn or error)", opts.Level)
	}
	format, err := ParseFormat(string(opts.Format))
	if err != nil {
		return nil, err
	}
	opts.Format = format

	core := zapcore.NewCore(newEncoder(format), zapcore.AddSync(w), level)

	var contextFields []zap.Field
	if opts.SessionID != "" {
		contextFields = append(contextFields, zap.String("session_id", opts.SessionID))
	}
	if opts.Command != "" {
		contextFields = append(contextFields, zap.String("command", opts.Command))
	}

	return &Logger{
		zap:    zap.New(core).With(contextFields...),
		opts:   opts,
		level:  level,
		fields: contextFields,
	}, nil
}

func newEncoder(format Format) zapcore.Encoder {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:     "timestamp",
		LevelKey:    "level",
		MessageKey:  "message",
		EncodeTime:  zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	}
	if format == FormatConsole {
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		return zapcore.NewConsoleEncoder(encoderConfig)
	}
	return zapcore.NewJSONEncoder(encoderConfig)
}

// Debug logs a debug message.
func (l *Logger) Debug(message string, fields map[string]any) {
	l.zap.Debug(message, zap.Any("fields", fields))
}

// Info logs an info message.
func (l *Logger) Info(message string, fields map[string]any) {
	l.zap.Info(message, zap.Any("fields", fields))
}

// Warn logs a warning message.
func (l *Logger) Warn(message string, fields map[string]any) {
	l.zap.Warn(message, zap.Any("fields", fields))
}

// Error logs an error message.
func (l *Logger) Error(message string, fields map[string]any) {
	l.zap.Error(message, zap.Any("fields", fields))
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.zap.Sync()
}

// Sugar returns a SugaredLogger for printf-style logging.
func (l *Logger) Sugar() *SugaredLogger {
	return &SugaredLogger{sugar: l.zap.Sugar()}
}

// Debugf logs a debug message with printf-style formatting.
func (s *SugaredLogger) Debugf(template string, args ...any) {
	s.sugar.Debugf(template, args...)
}

// Infof logs an info message with printf-style formatting.
func (s *SugaredLogger) Infof(template string, args ...any) {
	s.sugar.Infof(template, args...)
}

// Warnf logs a warning message with printf-style formatting.
func (s *SugaredLogger) Warnf(template string, args ...any) {
	s.sugar.Warnf(template, args...)
}

// Errorf logs an error message with printf-style formatting.
func (s *SugaredLogger) Errorf(template string, args ...any) {
	s.sugar.Errorf(template, args...)
}

// With returns a SugaredLogger with additional context fields.
func (s *SugaredLogger) With(args ...any) *SugaredLogger {
	return &SugaredLogger{sugar: s.sugar.With(args...)}
}

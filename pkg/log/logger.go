// Package log provides a small structured logging system shared by the queue
// engines and the CLI.
package log

import (
	"strings"
	"time"
)

// Level represents the severity level of a log message.
type Level int

// Log levels
const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
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

// ParseLevel converts a level name into a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "info", "":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	}
	return InfoLevel, &ParseError{Input: s}
}

// ParseError reports an unrecognized level name.
type ParseError struct{ Input string }

func (e *ParseError) Error() string { return "log: unknown level " + e.Input }

// Field is one structured key/value attached to a log entry.
type Field struct {
	Key   string
	Value interface{}
}

// F constructs a Field.
func F(key string, value interface{}) Field { return Field{Key: key, Value: value} }

// Err constructs the conventional error field.
func Err(err error) Field { return Field{Key: "error", Value: err} }

// Entry represents a single log entry.
type Entry struct {
	Level     Level
	Message   string
	Fields    []Field
	Timestamp time.Time
	Component string
}

// Logger defines the logging interface queue components depend on.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// With returns a Logger that attaches fields to every entry.
	With(fields ...Field) Logger

	// WithComponent tags entries with a component name.
	WithComponent(component string) Logger

	SetLevel(level Level)
	GetLevel() Level
}

// baseLogger implements Logger over a Formatter and an Output.
type baseLogger struct {
	level     *Level
	fields    []Field
	component string
	formatter Formatter
	output    Output
}

// Option configures a logger.
type Option func(*baseLogger)

// WithLevel sets the minimum log level.
func WithLevel(level Level) Option {
	return func(l *baseLogger) { *l.level = level }
}

// WithFormatter sets the log formatter.
func WithFormatter(formatter Formatter) Option {
	return func(l *baseLogger) { l.formatter = formatter }
}

// WithOutput sets the log output.
func WithOutput(output Output) Option {
	return func(l *baseLogger) { l.output = output }
}

// NewLogger creates a new logger. Defaults: InfoLevel, text format, stderr.
func NewLogger(options ...Option) Logger {
	level := InfoLevel
	logger := &baseLogger{
		level:     &level,
		formatter: &TextFormatter{},
		output:    NewConsoleOutput(),
	}
	for _, option := range options {
		option(logger)
	}
	return logger
}

func (l *baseLogger) log(level Level, msg string, fields []Field) {
	if level < *l.level {
		return
	}
	entry := &Entry{
		Level:     level,
		Message:   msg,
		Timestamp: time.Now(),
		Component: l.component,
	}
	if len(l.fields) > 0 || len(fields) > 0 {
		entry.Fields = make([]Field, 0, len(l.fields)+len(fields))
		entry.Fields = append(entry.Fields, l.fields...)
		entry.Fields = append(entry.Fields, fields...)
	}
	formatted, err := l.formatter.Format(entry)
	if err != nil {
		return
	}
	_ = l.output.Write(formatted)
}

func (l *baseLogger) Debug(msg string, fields ...Field) { l.log(DebugLevel, msg, fields) }
func (l *baseLogger) Info(msg string, fields ...Field)  { l.log(InfoLevel, msg, fields) }
func (l *baseLogger) Warn(msg string, fields ...Field)  { l.log(WarnLevel, msg, fields) }
func (l *baseLogger) Error(msg string, fields ...Field) { l.log(ErrorLevel, msg, fields) }

func (l *baseLogger) With(fields ...Field) Logger {
	nl := *l
	nl.fields = append(append([]Field{}, l.fields...), fields...)
	return &nl
}

func (l *baseLogger) WithComponent(component string) Logger {
	nl := *l
	nl.component = component
	return &nl
}

func (l *baseLogger) SetLevel(level Level) { *l.level = level }
func (l *baseLogger) GetLevel() Level      { return *l.level }

// nopLogger discards everything.
type nopLogger struct{}

// NewNopLogger returns a Logger that discards all entries. Engines use it
// when no Logger is configured.
func NewNopLogger() Logger { return nopLogger{} }

func (nopLogger) Debug(string, ...Field)          {}
func (nopLogger) Info(string, ...Field)           {}
func (nopLogger) Warn(string, ...Field)           {}
func (nopLogger) Error(string, ...Field)          {}
func (n nopLogger) With(...Field) Logger          { return n }
func (n nopLogger) WithComponent(string) Logger   { return n }
func (nopLogger) SetLevel(Level)                  {}
func (nopLogger) GetLevel() Level                 { return ErrorLevel }

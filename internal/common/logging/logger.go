// Package logging provides the leveled key/value logger used by hosts and clients.
//
// Output goes to stderr by default: a stdio host owns stdout for protocol frames.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// LogLevel represents different levels of logging
type LogLevel int

const (
	// LevelDebug is for detailed debugging information
	LevelDebug LogLevel = iota
	// LevelInfo is for general operational information
	LevelInfo
	// LevelWarn is for warning events that might need attention
	LevelWarn
	// LevelError is for error events that might still allow the application to continue running
	LevelError
	// LevelFatal is for severe error events that will lead the application to abort
	LevelFatal
)

var levelNames = map[LogLevel]string{
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARN",
	LevelError: "ERROR",
	LevelFatal: "FATAL",
}

func (l LogLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("LEVEL(%d)", int(l))
}

// sink is shared by a logger and every logger derived from it
type sink struct {
	mu       sync.Mutex
	std      *log.Logger
	minLevel LogLevel
}

// Logger provides structured logging capabilities
type Logger struct {
	name   string
	fields []interface{}
	sink   *sink
}

// New creates a new logger with the given name and minimum log level, writing to stderr
func New(name string, minLevel LogLevel) *Logger {
	return NewWithWriter(name, minLevel, os.Stderr)
}

// NewWithWriter creates a new logger writing to w
func NewWithWriter(name string, minLevel LogLevel, w io.Writer) *Logger {
	return &Logger{
		name: name,
		sink: &sink{
			std:      log.New(w, "", log.LstdFlags),
			minLevel: minLevel,
		},
	}
}

// Discard returns a logger that drops everything; handy in tests
func Discard() *Logger {
	return NewWithWriter("discard", LevelFatal+1, io.Discard)
}

// WithName creates a logger with a different name sharing output and level
func (l *Logger) WithName(name string) *Logger {
	return &Logger{name: name, fields: l.fields, sink: l.sink}
}

// Named appends a component to the logger name: "host" -> "host.registry"
func (l *Logger) Named(component string) *Logger {
	if l.name == "" {
		return l.WithName(component)
	}
	return l.WithName(l.name + "." + component)
}

// With returns a logger that appends the given key/value pairs to every KV line
func (l *Logger) With(keyValues ...interface{}) *Logger {
	fields := make([]interface{}, 0, len(l.fields)+len(keyValues))
	fields = append(fields, l.fields...)
	fields = append(fields, keyValues...)
	return &Logger{name: l.name, fields: fields, sink: l.sink}
}

// SetOutput sets the output destination for the logger and all loggers derived from it
func (l *Logger) SetOutput(w io.Writer) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.std.SetOutput(w)
}

// SetMinLevel sets the minimum log level
func (l *Logger) SetMinLevel(level LogLevel) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.minLevel = level
}

// Enabled reports whether messages at level would be written
func (l *Logger) Enabled(level LogLevel) bool {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	return level >= l.sink.minLevel
}

// Debug logs a message at debug level using printf-style formatting
func (l *Logger) Debug(format string, v ...interface{}) {
	l.log(LevelDebug, format, v...)
}

// DebugKV logs a message at debug level with key-value pairs
func (l *Logger) DebugKV(msg string, keyValues ...interface{}) {
	l.logKV(LevelDebug, msg, keyValues...)
}

// Info logs a message at info level using printf-style formatting
func (l *Logger) Info(format string, v ...interface{}) {
	l.log(LevelInfo, format, v...)
}

// InfoKV logs a message at info level with key-value pairs
func (l *Logger) InfoKV(msg string, keyValues ...interface{}) {
	l.logKV(LevelInfo, msg, keyValues...)
}

// Warn logs a message at warning level using printf-style formatting
func (l *Logger) Warn(format string, v ...interface{}) {
	l.log(LevelWarn, format, v...)
}

// WarnKV logs a message at warning level with key-value pairs
func (l *Logger) WarnKV(msg string, keyValues ...interface{}) {
	l.logKV(LevelWarn, msg, keyValues...)
}

// Error logs a message at error level using printf-style formatting
func (l *Logger) Error(format string, v ...interface{}) {
	l.log(LevelError, format, v...)
}

// ErrorKV logs a message at error level with key-value pairs
func (l *Logger) ErrorKV(msg string, keyValues ...interface{}) {
	l.logKV(LevelError, msg, keyValues...)
}

// Fatal logs a message at fatal level and then exits
func (l *Logger) Fatal(format string, v ...interface{}) {
	l.log(LevelFatal, format, v...)
	os.Exit(1)
}

// FatalKV logs a message at fatal level with key-value pairs and then exits
func (l *Logger) FatalKV(msg string, keyValues ...interface{}) {
	l.logKV(LevelFatal, msg, keyValues...)
	os.Exit(1)
}

// Printf lets the logger stand in where a printf-style logger is expected
func (l *Logger) Printf(format string, v ...interface{}) {
	l.Info(format, v...)
}

func (l *Logger) log(level LogLevel, format string, v ...interface{}) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	if level < l.sink.minLevel {
		return
	}

	msg := fmt.Sprintf(format, v...)
	if len(l.fields) > 0 {
		msg += " " + formatKV(l.fields)
	}
	l.sink.std.Printf("[%s] %s: %s", level, l.name, msg)
}

func (l *Logger) logKV(level LogLevel, msg string, keyValues ...interface{}) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	if level < l.sink.minLevel {
		return
	}

	all := make([]interface{}, 0, len(l.fields)+len(keyValues))
	all = append(all, l.fields...)
	all = append(all, keyValues...)
	if len(all) == 0 {
		l.sink.std.Printf("[%s] %s: %s", level, l.name, msg)
		return
	}
	l.sink.std.Printf("[%s] %s: %s %s", level, l.name, msg, formatKV(all))
}

func formatKV(keyValues []interface{}) string {
	if len(keyValues)%2 != 0 {
		keyValues = append(keyValues, "<missing value>")
	}

	pairs := make([]string, 0, len(keyValues)/2)
	for i := 0; i < len(keyValues); i += 2 {
		key, ok := keyValues[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", keyValues[i])
		}
		pairs = append(pairs, fmt.Sprintf("%s=%v", key, keyValues[i+1]))
	}
	return strings.Join(pairs, " ")
}

// ParseLevel converts a string level to a LogLevel, defaulting to info
func ParseLevel(level string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return LevelDebug
	case "INFO":
		return LevelInfo
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	case "FATAL":
		return LevelFatal
	default:
		return LevelInfo
	}
}

// StdLogger returns a standard log.Logger writing through this logger at info level
func (l *Logger) StdLogger() *log.Logger {
	return log.New(writerFunc(func(p []byte) (int, error) {
		l.Info("%s", strings.TrimRight(string(p), "\n"))
		return len(p), nil
	}), "", 0)
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

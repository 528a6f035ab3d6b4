package config

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// LogLevel represents logging verbosity levels.
type LogLevel int

// Log level constants.
const (
	LogLevelOff LogLevel = iota
	LogLevelError
	LogLevelDebug
)

// ParseLogLevel parses a log level string. Unknown values map to error.
func ParseLogLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "none":
		return LogLevelOff
	case "debug":
		return LogLevelDebug
	default:
		return LogLevelError
	}
}

// String returns the string representation of a log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelOff:
		return "off"
	case LogLevelDebug:
		return "debug"
	case LogLevelError:
		return "error"
	default:
		return "error"
	}
}

func (l LogLevel) logrus() logrus.Level {
	if l == LogLevelDebug {
		return logrus.DebugLevel
	}
	return logrus.ErrorLevel
}

// Logger writes structured log lines to a file through logrus.
// A Logger without a file, or at LogLevelOff, drops everything.
type Logger struct {
	mu       sync.Mutex
	level    LogLevel
	file     *os.File
	filePath string
	backend  *logrus.Logger
}

// NewLogger creates a logger appending to filePath.
func NewLogger(level LogLevel, filePath string) (*Logger, error) {
	logger := &Logger{
		level:    level,
		filePath: filePath,
	}
	if level == LogLevelOff || filePath == "" {
		return logger, nil
	}

	filePath = ExpandHome(filePath)
	if err := os.MkdirAll(filepath.Dir(filePath), 0o750); err != nil {
		return nil, err
	}

	// #nosec G304 -- log file path is from config
	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	return newLogger(level, f, filePath), nil
}

// NewWriterLogger logs to an arbitrary writer; used by tests and by the
// CLI when --verbose mirrors the log to stderr.
func NewWriterLogger(level LogLevel, w io.Writer) *Logger {
	l := newLogger(level, nil, "")
	l.backend.SetOutput(w)
	return l
}

func newLogger(level LogLevel, f *os.File, path string) *Logger {
	backend := logrus.New()
	if f != nil {
		backend.SetOutput(f)
	}
	backend.SetFormatter(&logrus.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
	backend.SetLevel(level.logrus())

	return &Logger{
		level:    level,
		file:     f,
		filePath: path,
		backend:  backend,
	}
}

// Close closes the log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		l.backend = nil
		return err
	}
	return nil
}

// SetLevel changes the log level.
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
	if l.backend != nil {
		l.backend.SetLevel(level.logrus())
	}
}

// Level returns the current log level.
func (l *Logger) Level() LogLevel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// Path returns the log file path, if any.
func (l *Logger) Path() string {
	return l.filePath
}

// Debug logs a debug message.
func (l *Logger) Debug(format string, args ...any) {
	l.WithFields(nil).Debug(format, args...)
}

// Error logs an error message.
func (l *Logger) Error(format string, args ...any) {
	l.WithFields(nil).Error(format, args...)
}

// WithField returns an entry that attaches key=value to every line.
func (l *Logger) WithField(key string, value any) *Entry {
	return l.WithFields(logrus.Fields{key: value})
}

// WithFields returns an entry that attaches fields to every line.
func (l *Logger) WithFields(fields logrus.Fields) *Entry {
	return &Entry{logger: l, fields: fields}
}

// Writer returns an io.Writer that logs each write at the given level.
func (l *Logger) Writer(level LogLevel) io.Writer {
	return &logWriter{logger: l, level: level}
}

func (l *Logger) entry(level LogLevel) *logrus.Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.backend == nil || l.level == LogLevelOff || level > l.level {
		return nil
	}
	return l.backend
}

// Entry is a Logger with fields attached.
type Entry struct {
	logger *Logger
	fields logrus.Fields
}

// WithField adds another field.
func (e *Entry) WithField(key string, value any) *Entry {
	fields := make(logrus.Fields, len(e.fields)+1)
	for k, v := range e.fields {
		fields[k] = v
	}
	fields[key] = value
	return &Entry{logger: e.logger, fields: fields}
}

// Debug logs a debug message with the entry's fields.
func (e *Entry) Debug(format string, args ...any) {
	if b := e.logger.entry(LogLevelDebug); b != nil {
		b.WithFields(e.fields).Debugf(format, args...)
	}
}

// Error logs an error message with the entry's fields.
func (e *Entry) Error(format string, args ...any) {
	if b := e.logger.entry(LogLevelError); b != nil {
		b.WithFields(e.fields).Errorf(format, args...)
	}
}

type logWriter struct {
	logger *Logger
	level  LogLevel
}

func (w *logWriter) Write(p []byte) (int, error) {
	msg := strings.TrimSpace(string(p))
	if w.level == LogLevelDebug {
		w.logger.Debug("%s", msg)
	} else {
		w.logger.Error("%s", msg)
	}
	return len(p), nil
}

// NullLogger returns a logger that discards all output.
func NullLogger() *Logger {
	return &Logger{level: LogLevelOff}
}

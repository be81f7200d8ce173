package utils

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

type LogLevel int

const (
	TRACE LogLevel = iota
	DEBUG
	INFO
	WARN
	ERROR
	CRITICAL
)

func (l LogLevel) String() string {
	switch l {
	case TRACE:
		return "TRACE"
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case CRITICAL:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLogLevel maps a -log flag value to a level. Unknown names fall back to INFO.
func ParseLogLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return TRACE
	case "debug":
		return DEBUG
	case "info":
		return INFO
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	case "critical":
		return CRITICAL
	default:
		return INFO
	}
}

// logSink is shared by a root logger and every child created with With.
type logSink struct {
	mu       sync.Mutex
	minLevel LogLevel
	file     *os.File
	out      io.Writer
}

// Logger writes leveled, printf-style lines. Children created with With share the
// sink of their parent and prepend their key=value fields to every message.
type Logger struct {
	sink   *logSink
	fields string
}

func NewFileLogger(filePath string, minLevel LogLevel, alsoStdout bool) (*Logger, error) {
	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	s := &logSink{minLevel: minLevel, file: f}
	if alsoStdout {
		s.out = os.Stdout
	}
	return &Logger{sink: s}, nil
}

// NewLogger logs to w only. A nil w discards everything.
func NewLogger(w io.Writer, minLevel LogLevel) *Logger {
	if w == nil {
		w = io.Discard
	}
	return &Logger{sink: &logSink{minLevel: minLevel, out: w}}
}

// With returns a child logger carrying an extra key=value field.
func (l *Logger) With(key string, value any) *Logger {
	field := fmt.Sprintf("%s=%v", key, value)
	if l.fields != "" {
		field = l.fields + " " + field
	}
	return &Logger{sink: l.sink, fields: field}
}

func (l *Logger) Close() error {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	if l.sink.file != nil {
		err := l.sink.file.Close()
		l.sink.file = nil
		return err
	}
	return nil
}

func (l *Logger) SetMinLevel(level LogLevel) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.minLevel = level
}

func (l *Logger) Enabled(level LogLevel) bool {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	return level >= l.sink.minLevel
}

func (l *Logger) log(level LogLevel, msg string, args ...any) {
	s := l.sink
	s.mu.Lock()
	defer s.mu.Unlock()

	if level < s.minLevel {
		return
	}

	var b strings.Builder
	b.WriteString(time.Now().Format(time.RFC3339Nano))
	b.WriteString(" [")
	b.WriteString(level.String())
	b.WriteString("] ")
	if l.fields != "" {
		b.WriteString(l.fields)
		b.WriteByte(' ')
	}
	fmt.Fprintf(&b, msg, args...)
	b.WriteByte('\n')
	line := b.String()

	if s.file != nil {
		_, _ = s.file.WriteString(line)
		_ = s.file.Sync()
	}
	if s.out != nil {
		_, _ = io.WriteString(s.out, line)
	}
}

func (l *Logger) Trace(msg string, args ...any)    { l.log(TRACE, msg, args...) }
func (l *Logger) Debug(msg string, args ...any)    { l.log(DEBUG, msg, args...) }
func (l *Logger) Info(msg string, args ...any)     { l.log(INFO, msg, args...) }
func (l *Logger) Warn(msg string, args ...any)     { l.log(WARN, msg, args...) }
func (l *Logger) Error(msg string, args ...any)    { l.log(ERROR, msg, args...) }
func (l *Logger) Critical(msg string, args ...any) { l.log(CRITICAL, msg, args...) }

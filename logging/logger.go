package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
)

// LogLevel represents the severity level of a log message
type LogLevel int

// Log level constants define the severity hierarchy for filtering log output
const (
	DEBUG LogLevel = iota // DEBUG is the lowest severity level for detailed diagnostics
	INFO                  // INFO is for general informational messages
	WARN                  // WARN is for warning messages that don't prevent operation
	ERROR                 // ERROR is the highest severity for error conditions
)

func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLogLevel converts a string to a LogLevel
func ParseLogLevel(s string) LogLevel {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// Fields carries structured key/value context attached to a log message
type Fields map[string]interface{}

// Logger provides structured logging with configurable levels.
// Component loggers created via WithComponent share the parent's output.
type Logger struct {
	mu        sync.Mutex
	level     LogLevel
	logger    *log.Logger
	component string
}

// New creates a new Logger with the specified level
func New(level LogLevel) *Logger {
	return &Logger{
		level:  level,
		logger: log.New(os.Stderr, "", log.LstdFlags),
	}
}

// NewWithWriter creates a new Logger with custom output writer
func NewWithWriter(level LogLevel, w io.Writer) *Logger {
	return &Logger{
		level:  level,
		logger: log.New(w, "", log.LstdFlags),
	}
}

// WithComponent returns a logger that prefixes every message with the
// given component name.
func (l *Logger) WithComponent(name string) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	return &Logger{
		level:     l.level,
		logger:    l.logger,
		component: name,
	}
}

// SetLevel changes the log level
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// Level returns the current log level
func (l *Logger) Level() LogLevel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

func (l *Logger) shouldLog(level LogLevel) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return level >= l.level
}

// log writes a log message with the given level and fields.
// Fields are rendered in key order so output is stable for tests.
func (l *Logger) log(level LogLevel, msg string, fields Fields) {
	if !l.shouldLog(level) {
		return
	}

	var sb strings.Builder

	if l.component != "" {
		sb.WriteString("[")
		sb.WriteString(l.component)
		sb.WriteString("] ")
	}

	sb.WriteString(level.String())
	sb.WriteString(": ")
	sb.WriteString(msg)

	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteString(" |")
		for _, k := range keys {
			sb.WriteString(fmt.Sprintf(" %s=%v", k, fields[k]))
		}
	}

	l.logger.Println(sb.String())
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, fields Fields) {
	l.log(DEBUG, msg, fields)
}

// Info logs an info message
func (l *Logger) Info(msg string, fields Fields) {
	l.log(INFO, msg, fields)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, fields Fields) {
	l.log(WARN, msg, fields)
}

// Error logs an error message
func (l *Logger) Error(msg string, fields Fields) {
	l.log(ERROR, msg, fields)
}

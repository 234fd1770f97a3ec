package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
)

// Logger represents a simple logger interface
type Logger interface {
	Debug(msg string, keyvals ...interface{})
	Info(msg string, keyvals ...interface{})
	Warn(msg string, keyvals ...interface{})
	Error(msg string, keyvals ...interface{})
	// With returns a logger that prefixes every entry with keyvals
	With(keyvals ...interface{}) Logger
}

type logLevel int

const (
	debugLevel logLevel = iota
	infoLevel
	warnLevel
	errorLevel
	silentLevel
)

type simpleLogger struct {
	debugLogger *log.Logger
	infoLogger  *log.Logger
	warnLogger  *log.Logger
	errorLogger *log.Logger
	level       logLevel
	fields      []interface{}
}

// NewLogger creates a new logger with the specified level
func NewLogger(level string) Logger {
	return newLogger(parseLevel(level), os.Stdout, os.Stderr)
}

// NewWithWriter sends every level to w. Used by tests and the migrate CLI.
func NewWithWriter(level string, w io.Writer) Logger {
	return newLogger(parseLevel(level), w, w)
}

// NewNop returns a logger that drops everything
func NewNop() Logger {
	return newLogger(silentLevel, io.Discard, io.Discard)
}

func parseLevel(level string) logLevel {
	switch strings.ToLower(level) {
	case "debug":
		return debugLevel
	case "info":
		return infoLevel
	case "warn", "warning":
		return warnLevel
	case "error":
		return errorLevel
	case "silent", "off":
		return silentLevel
	default:
		return infoLevel
	}
}

func newLogger(l logLevel, out, errOut io.Writer) *simpleLogger {
	return &simpleLogger{
		debugLogger: log.New(out, "DEBUG: ", log.Ldate|log.Ltime|log.Lshortfile),
		infoLogger:  log.New(out, "INFO: ", log.Ldate|log.Ltime),
		warnLogger:  log.New(out, "WARN: ", log.Ldate|log.Ltime),
		errorLogger: log.New(errOut, "ERROR: ", log.Ldate|log.Ltime|log.Lshortfile),
		level:       l,
	}
}

func (l *simpleLogger) With(keyvals ...interface{}) Logger {
	fields := make([]interface{}, 0, len(l.fields)+len(keyvals))
	fields = append(fields, l.fields...)
	fields = append(fields, keyvals...)

	child := *l
	child.fields = fields
	return &child
}

func (l *simpleLogger) Debug(msg string, keyvals ...interface{}) {
	if l.level <= debugLevel {
		l.debugLogger.Output(2, l.format(msg, keyvals))
	}
}

func (l *simpleLogger) Info(msg string, keyvals ...interface{}) {
	if l.level <= infoLevel {
		l.infoLogger.Println(l.format(msg, keyvals))
	}
}

func (l *simpleLogger) Warn(msg string, keyvals ...interface{}) {
	if l.level <= warnLevel {
		l.warnLogger.Println(l.format(msg, keyvals))
	}
}

func (l *simpleLogger) Error(msg string, keyvals ...interface{}) {
	if l.level <= errorLevel {
		l.errorLogger.Output(2, l.format(msg, keyvals))
	}
}

func (l *simpleLogger) format(msg string, keyvals []interface{}) string {
	if len(l.fields) == 0 {
		return formatMsg(msg, keyvals...)
	}
	all := make([]interface{}, 0, len(l.fields)+len(keyvals))
	all = append(all, l.fields...)
	all = append(all, keyvals...)
	return formatMsg(msg, all...)
}

func formatMsg(msg string, keyvals ...interface{}) string {
	if len(keyvals) == 0 {
		return msg
	}

	var b strings.Builder
	b.WriteString(msg)

	for i := 0; i < len(keyvals); i += 2 {
		key := fmt.Sprint(keyvals[i])

		value := "missing"
		if i+1 < len(keyvals) {
			value = fmt.Sprintf("%v", keyvals[i+1])
		}

		if strings.ContainsAny(value, " \t\n") {
			value = fmt.Sprintf("%q", value)
		}

		b.WriteString(" ")
		b.WriteString(key)
		b.WriteString("=")
		b.WriteString(value)
	}

	return b.String()
}

package app

import (
	"fmt"
	"io"
	"os"
)

// Logger is the logging port shared by use cases, gateways and the workflow
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
}

// fallbackLogger is used until the CLI installs its leveled logger.
// Only warnings and errors are written.
type fallbackLogger struct {
	output io.Writer
}

func (l *fallbackLogger) Debug(string, ...interface{}) {}
func (l *fallbackLogger) Info(string, ...interface{})  {}

func (l *fallbackLogger) Warn(format string, args ...interface{}) {
	fmt.Fprintf(l.output, "WARN: "+format+"\n", args...)
}

func (l *fallbackLogger) Error(format string, args ...interface{}) {
	fmt.Fprintf(l.output, "ERROR: "+format+"\n", args...)
}

var globalLogger Logger = &fallbackLogger{output: os.Stderr}

// SetLogger replaces the process-wide logger; nil is ignored
func SetLogger(logger Logger) {
	if logger != nil {
		globalLogger = logger
	}
}

// GetLogger returns the process-wide logger
func GetLogger() Logger {
	return globalLogger
}

// LoggerOr returns logger, or the process-wide logger when it is nil
func LoggerOr(logger Logger) Logger {
	if logger != nil {
		return logger
	}
	return globalLogger
}

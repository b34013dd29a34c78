package logger

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

var logger *log.Logger

// Init initializes the logger. Output goes to a size-rotated file; when
// file is empty it goes to stderr. verbose forces debug level.
func Init(level string, file string, verbose bool) {
	logLevel := parseLevel(level)
	if verbose {
		logLevel = log.DebugLevel
	}

	var w io.Writer = os.Stderr
	if file != "" {
		w = &lumberjack.Logger{
			Filename:   file,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     14, // days
			Compress:   true,
		}
	}

	SetOutput(w, logLevel)
}

// SetOutput replaces the logger with one writing to w at the given level.
func SetOutput(w io.Writer, level log.Level) {
	logger = log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		Level:           level,
	})
}

func parseLevel(level string) log.Level {
	switch strings.ToLower(level) {
	case "debug":
		return log.DebugLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// Debug logs a debug message
func Debug(msg string, args ...interface{}) {
	if logger != nil {
		logger.Debug(msg, args...)
	}
}

// Info logs an info message
func Info(msg string, args ...interface{}) {
	if logger != nil {
		logger.Info(msg, args...)
	}
}

// Warn logs a warning message
func Warn(msg string, args ...interface{}) {
	if logger != nil {
		logger.Warn(msg, args...)
	}
}

// Error logs an error message
func Error(msg string, args ...interface{}) {
	if logger != nil {
		logger.Error(msg, args...)
	}
}

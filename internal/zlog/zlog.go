// Package zlog is the process-wide leveled diagnostic log. The level
// ordering follows the library convention None < Warning < Error < Info <
// Debug: each level includes everything below it, and None silences all
// output. Changing the level takes effect for subsequently issued lines
// only; there is no buffering across the change.
package zlog

import (
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
)

// Level is the diagnostic verbosity.
type Level int32

const (
	// None disables all diagnostic output.
	None Level = iota

	// Warning enables warnings only.
	Warning

	// Error enables warnings and errors.
	Error

	// Info adds informational messages.
	Info

	// Debug enables everything.
	Debug
)

// ParseLevel parses a level name as used in configuration files.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "none", "":
		return None, nil
	case "warning", "warn":
		return Warning, nil
	case "error":
		return Error, nil
	case "info":
		return Info, nil
	case "debug":
		return Debug, nil
	default:
		return None, fmt.Errorf("unknown log level %q", s)
	}
}

// String returns the level name.
func (l Level) String() string {
	switch l {
	case None:
		return "none"
	case Warning:
		return "warning"
	case Error:
		return "error"
	case Info:
		return "info"
	case Debug:
		return "debug"
	default:
		return fmt.Sprintf("level(%d)", int32(l))
	}
}

var level atomic.Int32

var logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
	Level: slog.LevelDebug,
}))

// SetLevel sets the process-wide log level.
func SetLevel(l Level) {
	level.Store(int32(l))
}

// GetLevel returns the current process-wide log level.
func GetLevel() Level {
	return Level(level.Load())
}

// SetLogger replaces the output logger. Intended for tests and embedding
// applications that route diagnostics elsewhere.
func SetLogger(l *slog.Logger) {
	logger = l
}

func enabled(l Level) bool {
	return l <= GetLevel()
}

// Warningf logs a warning.
func Warningf(format string, args ...interface{}) {
	if enabled(Warning) {
		logger.Warn(fmt.Sprintf(format, args...))
	}
}

// Errorf logs an error.
func Errorf(format string, args ...interface{}) {
	if enabled(Error) {
		logger.Error(fmt.Sprintf(format, args...))
	}
}

// Infof logs an informational message.
func Infof(format string, args ...interface{}) {
	if enabled(Info) {
		logger.Info(fmt.Sprintf(format, args...))
	}
}

// Debugf logs a debug message.
func Debugf(format string, args ...interface{}) {
	if enabled(Debug) {
		logger.Debug(fmt.Sprintf(format, args...))
	}
}

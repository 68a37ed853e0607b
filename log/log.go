// Package log is a small leveled-logger facade used throughout clrtrim.
//
// It mirrors the shape of github.com/saferwall/pe/log: a Logger interface
// that takes level plus key/value pairs, a Filter that drops entries below
// a configured level, and a Helper that adds printf-style convenience
// methods on top. clrtrim.File and the trim engine hold a *Helper exactly
// the way pe.File does, so recoverable parse errors can be reported without
// aborting the run.
package log

import (
	"fmt"
	"io"
	"log"
	"sync"
)

// Level is the severity of a log entry.
type Level int

// Log levels, lowest to highest severity.
const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Logger is the minimal sink every backend must implement.
type Logger interface {
	Log(level Level, keyvals ...interface{}) error
}

// stdLogger writes entries to an io.Writer using the standard library logger.
type stdLogger struct {
	mu  sync.Mutex
	out *log.Logger
}

// NewStdLogger returns a Logger that writes to w.
func NewStdLogger(w io.Writer) Logger {
	return &stdLogger{out: log.New(w, "", log.LstdFlags)}
}

func (l *stdLogger) Log(level Level, keyvals ...interface{}) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	msg := fmt.Sprint(keyvals...)
	l.out.Printf("[%s] %s", level, msg)
	return nil
}

// filter wraps a Logger and drops entries below a minimum level.
type filter struct {
	logger Logger
	level  Level
}

// Option configures a Filter.
type Option func(*filter)

// FilterLevel sets the minimum level a Filter passes through.
func FilterLevel(level Level) Option {
	return func(f *filter) { f.level = level }
}

// NewFilter returns a Logger that discards entries below the configured
// level (LevelError by default) and otherwise forwards to logger.
func NewFilter(logger Logger, opts ...Option) Logger {
	f := &filter{logger: logger, level: LevelError}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *filter) Log(level Level, keyvals ...interface{}) error {
	if level < f.level {
		return nil
	}
	return f.logger.Log(level, keyvals...)
}

// Helper adds printf-style convenience methods on top of a Logger.
type Helper struct {
	logger Logger
}

// NewHelper wraps logger in a Helper.
func NewHelper(logger Logger) *Helper {
	return &Helper{logger: logger}
}

// Debug logs at debug level.
func (h *Helper) Debug(a ...interface{}) { h.log(LevelDebug, a...) }

// Debugf logs at debug level with a format string.
func (h *Helper) Debugf(format string, a ...interface{}) { h.logf(LevelDebug, format, a...) }

// Info logs at info level.
func (h *Helper) Info(a ...interface{}) { h.log(LevelInfo, a...) }

// Infof logs at info level with a format string.
func (h *Helper) Infof(format string, a ...interface{}) { h.logf(LevelInfo, format, a...) }

// Warn logs at warn level.
func (h *Helper) Warn(a ...interface{}) { h.log(LevelWarn, a...) }

// Warnf logs at warn level with a format string.
func (h *Helper) Warnf(format string, a ...interface{}) { h.logf(LevelWarn, format, a...) }

// Error logs at error level.
func (h *Helper) Error(a ...interface{}) { h.log(LevelError, a...) }

// Errorf logs at error level with a format string.
func (h *Helper) Errorf(format string, a ...interface{}) { h.logf(LevelError, format, a...) }

func (h *Helper) log(level Level, a ...interface{}) {
	if h == nil || h.logger == nil {
		return
	}
	_ = h.logger.Log(level, a...)
}

func (h *Helper) logf(level Level, format string, a ...interface{}) {
	if h == nil || h.logger == nil {
		return
	}
	_ = h.logger.Log(level, fmt.Sprintf(format, a...))
}

// Package logutil is the leveled logger used across raftcore. Unlike a
// single package-global sink, a *Logger value can be tagged with a
// per-node prefix (see New) so a host running more than one group member
// in the same process — or just wanting "[node-a] " on every line — can
// tell their output apart; Default is the package-global instance every
// top-level function below delegates to, for call sites that don't care.
package logutil

import "log"

// Log levels, most to least severe.
const (
	LevelError   = 1
	LevelWarning = 2
	LevelInfo    = 3
	LevelTrace   = 4
)

// Logger writes leveled, optionally-prefixed log lines. The zero value is
// not usable; construct one with New.
type Logger struct {
	out   *log.Logger
	level int
}

// New returns a Logger whose lines are tagged with prefix (e.g. a node's
// Endpoint), at the default LevelInfo.
func New(prefix string) *Logger {
	return &Logger{
		out:   log.New(log.Writer(), prefix, log.Flags()),
		level: LevelInfo,
	}
}

// SetLevel sets l's log level, clamped to [LevelError, LevelTrace].
func (l *Logger) SetLevel(level int) {
	if level < LevelError {
		level = LevelError
	}
	if level > LevelTrace {
		level = LevelTrace
	}
	l.level = level
}

func (l *Logger) write(level int, format string, v ...interface{}) {
	if level <= l.level {
		l.out.Printf(format, v...)
	}
}

// Error writes an error-level log entry.
func (l *Logger) Error(format string, v ...interface{}) { l.write(LevelError, format, v...) }

// Warning writes a warning-level log entry.
func (l *Logger) Warning(format string, v ...interface{}) { l.write(LevelWarning, format, v...) }

// Info writes an info-level log entry.
func (l *Logger) Info(format string, v ...interface{}) { l.write(LevelInfo, format, v...) }

// Trace writes a trace-level log entry.
func (l *Logger) Trace(format string, v ...interface{}) { l.write(LevelTrace, format, v...) }

// Panicf logs at error level and then panics, used for invariant violations.
func (l *Logger) Panicf(format string, v ...interface{}) {
	l.out.Panicf(format, v...)
}

// Default is the unprefixed, process-wide Logger every package-level
// function below delegates to. Hosts running a single node per process
// (cmd/raftnode today) can just use SetLevel/Error/Warning/Info/Trace
// directly; a host embedding more than one node in one process should
// call New per node instead and hold on to the result.
var Default = New("")

// SetLevel sets Default's log level, clamped to [LevelError, LevelTrace].
func SetLevel(level int) { Default.SetLevel(level) }

// Error writes an error-level log entry to Default.
func Error(format string, v ...interface{}) { Default.Error(format, v...) }

// Warning writes a warning-level log entry to Default.
func Warning(format string, v ...interface{}) { Default.Warning(format, v...) }

// Info writes an info-level log entry to Default.
func Info(format string, v ...interface{}) { Default.Info(format, v...) }

// Trace writes a trace-level log entry to Default.
func Trace(format string, v ...interface{}) { Default.Trace(format, v...) }

// Panicf logs at error level on Default and then panics.
func Panicf(format string, v ...interface{}) { Default.Panicf(format, v...) }

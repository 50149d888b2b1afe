// Package vmlog is a thin leveled wrapper around the standard log
// package, matching the teacher's plain fmt.Fprintf(os.Stderr, ...)
// diagnostic style without introducing a structured-logging dependency
// the retrieval pack never reaches for (see SPEC_FULL.md AMBIENT STACK).
package vmlog

import (
	"fmt"
	"log"
	"os"
)

// Level orders the three verbosity tiers this core ever needs: a
// hot-path bytecode trace, one-off debug notes, and recoverable
// surprises worth a stderr line even outside a debug build.
type Level int

const (
	LevelWarn Level = iota
	LevelDebug
	LevelTrace
)

// Logger is a per-package leveled logger sharing one underlying
// *log.Logger and verbosity threshold.
type Logger struct {
	out   *log.Logger
	level Level
	name  string
}

// New creates a Logger prefixed with name, writing to os.Stderr at the
// given threshold.
func New(name string, level Level) *Logger {
	return &Logger{
		out:   log.New(os.Stderr, "", log.LstdFlags),
		level: level,
		name:  name,
	}
}

func (l *Logger) logf(level Level, tag, format string, args ...any) {
	if l == nil || level > l.level {
		return
	}
	l.out.Printf("%s [%s] %s", tag, l.name, fmt.Sprintf(format, args...))
}

func (l *Logger) Warn(format string, args ...any)  { l.logf(LevelWarn, "WARN", format, args...) }
func (l *Logger) Debug(format string, args ...any) { l.logf(LevelDebug, "DEBUG", format, args...) }
func (l *Logger) Trace(format string, args ...any) { l.logf(LevelTrace, "TRACE", format, args...) }

// ParseLevel maps an environment-variable-style string ("warn", "debug",
// "trace") to a Level, defaulting to LevelWarn for anything else.
func ParseLevel(s string) Level {
	switch s {
	case "trace":
		return LevelTrace
	case "debug":
		return LevelDebug
	default:
		return LevelWarn
	}
}

package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
)

type Level string

const (
	LevelEmergency Level = "emergency"
	LevelAlert     Level = "alert"
	LevelCritical  Level = "critical"
	LevelError     Level = "error"
	LevelWarning   Level = "warning"
	LevelNotice    Level = "notice"
	LevelInfo      Level = "info"
	LevelDebug     Level = "debug"
)

const Source = "moniq-gateway"

// slog only knows four levels; the syslog-style extras sit between them.
var slogLevels = map[Level]slog.Level{
	LevelEmergency: slog.LevelError + 12,
	LevelAlert:     slog.LevelError + 8,
	LevelCritical:  slog.LevelError + 4,
	LevelError:     slog.LevelError,
	LevelWarning:   slog.LevelWarn,
	LevelNotice:    slog.LevelInfo + 2,
	LevelInfo:      slog.LevelInfo,
	LevelDebug:     slog.LevelDebug,
}

// Logger is the gateway event sink. Debug and info entries are dropped
// unless debug logging is enabled.
type Logger struct {
	base  *slog.Logger
	debug bool
}

func New(debug bool) *Logger {
	return NewWithWriter(os.Stdout, debug)
}

func NewWithWriter(w io.Writer, debug bool) *Logger {
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})
	return &Logger{
		base:  slog.New(h).With("source", Source),
		debug: debug,
	}
}

func (l *Logger) DebugEnabled() bool { return l != nil && l.debug }

func (l *Logger) Log(level Level, msg string, args ...any) {
	if l == nil {
		return
	}
	if !l.debug && (level == LevelDebug || level == LevelInfo) {
		return
	}
	sl, ok := slogLevels[level]
	if !ok {
		sl = slog.LevelDebug
		if !l.debug {
			return
		}
	}
	l.base.Log(context.Background(), sl, msg, append(args, "level_name", string(level))...)
}

func (l *Logger) Debug(msg string, args ...any)     { l.Log(LevelDebug, msg, args...) }
func (l *Logger) Info(msg string, args ...any)      { l.Log(LevelInfo, msg, args...) }
func (l *Logger) Notice(msg string, args ...any)    { l.Log(LevelNotice, msg, args...) }
func (l *Logger) Warning(msg string, args ...any)   { l.Log(LevelWarning, msg, args...) }
func (l *Logger) Error(msg string, args ...any)     { l.Log(LevelError, msg, args...) }
func (l *Logger) Critical(msg string, args ...any)  { l.Log(LevelCritical, msg, args...) }
func (l *Logger) Alert(msg string, args ...any)     { l.Log(LevelAlert, msg, args...) }
func (l *Logger) Emergency(msg string, args ...any) { l.Log(LevelEmergency, msg, args...) }

// Debugf formats lazily so large payload dumps cost nothing when debug is off.
func (l *Logger) Debugf(format string, args ...any) {
	if l == nil || !l.debug {
		return
	}
	l.Log(LevelDebug, fmt.Sprintf(format, args...))
}

package logx

import (
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

type Level = zerolog.Level

const (
	LevelTrace = zerolog.TraceLevel
	LevelDebug = zerolog.DebugLevel
	LevelInfo  = zerolog.InfoLevel
	LevelWarn  = zerolog.WarnLevel
	LevelError = zerolog.ErrorLevel
)

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// callerSkip points zerolog's caller lookup past emit and the level method.
const callerSkip = 2

func init() {
	zerolog.ErrorFieldName = "err"
	zerolog.TimeFieldFormat = timeLayout
	zerolog.CallerMarshalFunc = func(_ uintptr, file string, line int) string {
		return filepath.Base(file) + ":" + strconv.Itoa(line)
	}
}

// Logger writes through a root that the owning Service may replace at any
// time, so loggers handed out before a reload follow the new sinks. The zero
// value discards everything.
type Logger struct {
	root   func() zerolog.Logger
	fields []Field
}

// Nop returns a logger that never writes.
func Nop() Logger { return Logger{root: zerolog.Nop} }

// NewWriter returns a JSON logger over w with no Service behind it.
func NewWriter(w io.Writer, level string) Logger {
	zl := newRoot(w, parseLevel(level, zerolog.DebugLevel))
	return Logger{root: func() zerolog.Logger { return zl }}
}

func newRoot(w io.Writer, level zerolog.Level) zerolog.Logger {
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

func (l Logger) IsZero() bool { return l.root == nil && len(l.fields) == 0 }

func (l Logger) zl() zerolog.Logger {
	if l.root == nil {
		return zerolog.Nop()
	}
	return l.root()
}

// Enabled reports whether a record at level would be written.
func (l Logger) Enabled(level Level) bool {
	zl := l.zl()
	return level >= zl.GetLevel()
}

// With returns a copy that adds fields to every record.
func (l Logger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	merged := make([]Field, 0, len(l.fields)+len(fields))
	l.fields = append(append(merged, l.fields...), fields...)
	return l
}

func (l Logger) Trace(msg string, fields ...Field) { l.emit(zerolog.TraceLevel, msg, fields) }
func (l Logger) Debug(msg string, fields ...Field) { l.emit(zerolog.DebugLevel, msg, fields) }
func (l Logger) Info(msg string, fields ...Field)  { l.emit(zerolog.InfoLevel, msg, fields) }
func (l Logger) Warn(msg string, fields ...Field)  { l.emit(zerolog.WarnLevel, msg, fields) }
func (l Logger) Error(msg string, fields ...Field) { l.emit(zerolog.ErrorLevel, msg, fields) }

func (l Logger) emit(level zerolog.Level, msg string, fields []Field) {
	zl := l.zl()
	ev := zl.WithLevel(level)
	if ev == nil {
		return
	}
	ev.Caller(callerSkip)
	applyFields(ev, l.fields, fields)
	ev.Msg(msg)
}

// StackTrace renders at most maxFrames frames of the calling goroutine after
// skipping skip frames. Panic recovery paths attach it with Stack.
func StackTrace(skip, maxFrames int) string {
	if maxFrames <= 0 {
		maxFrames = 16
	}
	pcs := make([]uintptr, maxFrames)
	frames := runtime.CallersFrames(pcs[:runtime.Callers(skip, pcs)])
	out := make([]string, 0, maxFrames)
	for {
		fr, more := frames.Next()
		if fr.File != "" && len(out) < maxFrames {
			out = append(out, fmt.Sprintf("%s\n  %s:%d", fr.Function, fr.File, fr.Line))
		}
		if !more {
			break
		}
	}
	return strings.Join(out, "\n")
}

// parseLevel accepts zerolog level names plus "warning"; anything else
// yields def.
func parseLevel(s string, def zerolog.Level) zerolog.Level {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "warning" {
		name = "warn"
	}
	if name == "" {
		return def
	}
	lvl, err := zerolog.ParseLevel(name)
	if err != nil {
		return def
	}
	return lvl
}

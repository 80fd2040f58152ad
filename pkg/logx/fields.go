package logx

import (
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Field decorates a single log record. Later fields overwrite earlier ones
// with the same key.
type Field func(ev *zerolog.Event)

func String(key, val string) Field { return func(ev *zerolog.Event) { ev.Str(key, val) } }

func Int(key string, val int) Field { return func(ev *zerolog.Event) { ev.Int(key, val) } }

func Int64(key string, val int64) Field { return func(ev *zerolog.Event) { ev.Int64(key, val) } }

func Bool(key string, val bool) Field { return func(ev *zerolog.Event) { ev.Bool(key, val) } }

func Duration(key string, val time.Duration) Field {
	return func(ev *zerolog.Event) { ev.Dur(key, val) }
}

func Time(key string, val time.Time) Field { return func(ev *zerolog.Event) { ev.Time(key, val) } }

// Any encodes val with encoding/json.
func Any(key string, val any) Field { return func(ev *zerolog.Event) { ev.Interface(key, val) } }

// Err is a no-op for a nil error.
func Err(err error) Field {
	return func(ev *zerolog.Event) {
		if err == nil {
			return
		}
		ev.Err(err)
	}
}

// Stack attaches a rendered stack trace; blank traces are skipped.
func Stack(trace string) Field {
	return func(ev *zerolog.Event) {
		if strings.TrimSpace(trace) == "" {
			return
		}
		ev.Str("stack", trace)
	}
}

func applyFields(ev *zerolog.Event, groups ...[]Field) {
	for _, group := range groups {
		for _, f := range group {
			if f != nil {
				f(ev)
			}
		}
	}
}

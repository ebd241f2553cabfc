package logx

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Field mutates a zerolog event. Later fields win on duplicate keys; the
// console writer renders them as key=value pairs.
type Field func(e *zerolog.Event)

func String(k, v string) Field  { return func(e *zerolog.Event) { e.Str(k, v) } }
func Int(k string, v int) Field { return func(e *zerolog.Event) { e.Int(k, v) } }
func Int64(k string, v int64) Field {
	return func(e *zerolog.Event) { e.Int64(k, v) }
}
func Uint64(k string, v uint64) Field {
	return func(e *zerolog.Event) { e.Uint64(k, v) }
}
func Bool(k string, v bool) Field { return func(e *zerolog.Event) { e.Bool(k, v) } }
func Duration(k string, v time.Duration) Field {
	return func(e *zerolog.Event) { e.Dur(k, v) }
}
func Time(k string, v time.Time) Field { return func(e *zerolog.Event) { e.Time(k, v) } }
func Any(k string, v any) Field        { return func(e *zerolog.Event) { e.Interface(k, v) } }

func Err(err error) Field {
	return func(e *zerolog.Event) {
		if err != nil {
			e.Err(err)
		}
	}
}

func Stack(stack string) Field {
	return func(e *zerolog.Event) {
		if strings.TrimSpace(stack) != "" {
			e.Str("stack", stack)
		}
	}
}

// RawJSON embeds b as JSON when it is valid and as a string otherwise.
func RawJSON(k string, b []byte) Field {
	return func(e *zerolog.Event) {
		if len(b) == 0 {
			return
		}
		if json.Valid(b) {
			e.RawJSON(k, b)
			return
		}
		e.Str(k, string(b))
	}
}

// Redact logs whether a secret is set and its last four characters at most.
func Redact(k, secret string) Field {
	return func(e *zerolog.Event) {
		switch n := len(secret); {
		case n == 0:
			e.Str(k, "")
		case n <= 8:
			e.Str(k, "***")
		default:
			e.Str(k, "***"+secret[n-4:])
		}
	}
}

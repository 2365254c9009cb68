// Package logx centralizes a "[component] message | fields" log idiom
// as a small reusable helper instead of repeating it ad hoc per file.
package logx

import (
	"fmt"
	"log"
)

type Logger struct {
	tag string
}

func New(tag string) Logger {
	return Logger{tag: "[" + tag + "] "}
}

func (l Logger) Info(msg string, kv ...any) {
	log.Print(l.tag, msg, formatKV(kv))
}

func (l Logger) Error(msg string, err error, kv ...any) {
	log.Print(l.tag, msg, ": ", err, formatKV(kv))
}

func (l Logger) Warn(msg string, kv ...any) {
	log.Print(l.tag, "WARN ", msg, formatKV(kv))
}

func formatKV(kv []any) string {
	if len(kv) == 0 {
		return ""
	}
	out := " |"
	for i := 0; i+1 < len(kv); i += 2 {
		out += " "
		if s, ok := kv[i].(string); ok {
			out += s
		}
		out += "="
		out += toString(kv[i+1])
	}
	return out
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case error:
		if t == nil {
			return "<nil>"
		}
		return t.Error()
	default:
		return sprint(v)
	}
}

func sprint(v any) string {
	return fmt.Sprint(v)
}

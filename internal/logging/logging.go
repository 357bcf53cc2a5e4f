package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Logger is a small, framework-agnostic structured logging interface.
// Components receive one in their constructor and scope it with With.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// With returns a child logger with persistent fields.
	With(fields ...Field) Logger
}

// Field is a key/value pair for structured logging fields.
type Field struct {
	Key   string
	Value any
}

// Level orders log severities.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	default:
		return "error"
	}
}

// ParseLevel maps a level name to a Level. Unknown names map to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// StdoutLogger writes one JSON object per line. Despite the name the writer
// is configurable; it defaults to os.Stdout.
type StdoutLogger struct {
	component string
	min       Level
	out       io.Writer
	mu        *sync.Mutex
	fields    []Field
}

// NewStdoutLogger creates a logger writing to stdout at info level.
// component is included on every line.
func NewStdoutLogger(component string) *StdoutLogger {
	return NewLogger(os.Stdout, component, LevelInfo)
}

// NewLogger creates a JSON-lines logger writing to w.
func NewLogger(w io.Writer, component string, min Level) *StdoutLogger {
	if w == nil {
		w = os.Stdout
	}
	return &StdoutLogger{component: component, min: min, out: w, mu: &sync.Mutex{}}
}

func (s *StdoutLogger) log(level Level, msg string, fields ...Field) {
	if level < s.min {
		return
	}
	type outEntry struct {
		Level     string         `json:"level"`
		Msg       string         `json:"msg"`
		Component string         `json:"component,omitempty"`
		Time      string         `json:"time"`
		Fields    map[string]any `json:"fields,omitempty"`
	}
	m := make(map[string]any, len(s.fields)+len(fields))
	for _, f := range s.fields {
		m[f.Key] = fieldValue(f.Value)
	}
	for _, f := range fields {
		m[f.Key] = fieldValue(f.Value)
	}
	entry := outEntry{
		Level:     level.String(),
		Msg:       msg,
		Component: s.component,
		Time:      time.Now().UTC().Format(time.RFC3339Nano),
		Fields:    m,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	enc, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(s.out, "%s %s %v\n", level, msg, m)
		return
	}
	fmt.Fprintln(s.out, string(enc))
}

// errors marshal to {} otherwise
func fieldValue(v any) any {
	if err, ok := v.(error); ok && err != nil {
		return err.Error()
	}
	return v
}

func (s *StdoutLogger) Debug(msg string, fields ...Field) { s.log(LevelDebug, msg, fields...) }
func (s *StdoutLogger) Info(msg string, fields ...Field)  { s.log(LevelInfo, msg, fields...) }
func (s *StdoutLogger) Warn(msg string, fields ...Field)  { s.log(LevelWarn, msg, fields...) }
func (s *StdoutLogger) Error(msg string, fields ...Field) { s.log(LevelError, msg, fields...) }

// With returns a child logger. A "component" field replaces the component
// name instead of being added as a regular field.
func (s *StdoutLogger) With(fields ...Field) Logger {
	child := &StdoutLogger{
		component: s.component,
		min:       s.min,
		out:       s.out,
		mu:        s.mu,
		fields:    append([]Field(nil), s.fields...),
	}
	for _, f := range fields {
		if f.Key == "component" {
			if str, ok := f.Value.(string); ok {
				child.component = str
				continue
			}
		}
		child.fields = append(child.fields, f)
	}
	return child
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debug(string, ...Field) {}
func (NopLogger) Info(string, ...Field)  {}
func (NopLogger) Warn(string, ...Field)  {}
func (NopLogger) Error(string, ...Field) {}

func (n NopLogger) With(...Field) Logger { return n }

// OrNop returns l, or a NopLogger when l is nil.
func OrNop(l Logger) Logger {
	if l == nil {
		return NopLogger{}
	}
	return l
}

// Package logger is the structured logging surface of the playback
// engine. Dispatcher state transitions, requester retries, and host
// bridge lifecycle all log through the Logger interface so an embedder
// can route them into its own sink; NewDefaultLogger writes line-oriented
// text or JSON to stdout.
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level is a log severity threshold.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	case FatalLevel:
		return "fatal"
	default:
		return "unknown"
	}
}

// ParseLevel maps a configuration string onto a Level, defaulting to
// InfoLevel for anything unrecognized.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return DebugLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	case "fatal":
		return FatalLevel
	default:
		return InfoLevel
	}
}

// Field is one structured key/value pair attached to a log line.
type Field struct {
	Key   string
	Value interface{}
}

// String builds a string field.
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

// Int builds an int field.
func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

// Float64 builds a float64 field; playback positions and bandwidth
// estimates are tracked as fractional values.
func Float64(key string, value float64) Field {
	return Field{Key: key, Value: value}
}

// Duration builds a field rendering d in Go's duration notation.
func Duration(key string, d time.Duration) Field {
	return Field{Key: key, Value: d.String()}
}

// Err builds the conventional "error" field.
func Err(err error) Field {
	return Field{Key: "error", Value: err}
}

// Logger is the sink the playback engine logs through.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Fatal(msg string, fields ...Field)

	// With returns a child logger whose lines all carry the given fields,
	// used to tag every line of one playback session with its player id.
	With(fields ...Field) Logger
}

// DefaultLogger writes one line per entry to an io.Writer, as logfmt-ish
// text or as JSON. Child loggers from With share the parent's writer and
// lock, so interleaved sessions do not tear each other's lines.
type DefaultLogger struct {
	mu     *sync.Mutex
	out    io.Writer
	level  Level
	format string
	base   []Field
}

// NewDefaultLogger creates a DefaultLogger writing to stdout. format is
// "json" for JSON lines, anything else for text.
func NewDefaultLogger(level Level, format string) *DefaultLogger {
	return &DefaultLogger{
		mu:     &sync.Mutex{},
		out:    os.Stdout,
		level:  level,
		format: format,
	}
}

// SetOutput redirects the logger to w; children created by With inherit
// the writer in effect at their creation.
func (l *DefaultLogger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out = w
}

func (l *DefaultLogger) Debug(msg string, fields ...Field) { l.emit(DebugLevel, msg, fields) }
func (l *DefaultLogger) Info(msg string, fields ...Field)  { l.emit(InfoLevel, msg, fields) }
func (l *DefaultLogger) Warn(msg string, fields ...Field)  { l.emit(WarnLevel, msg, fields) }
func (l *DefaultLogger) Error(msg string, fields ...Field) { l.emit(ErrorLevel, msg, fields) }

func (l *DefaultLogger) Fatal(msg string, fields ...Field) {
	l.emit(FatalLevel, msg, fields)
	os.Exit(1)
}

func (l *DefaultLogger) With(fields ...Field) Logger {
	base := make([]Field, 0, len(l.base)+len(fields))
	base = append(base, l.base...)
	base = append(base, fields...)
	return &DefaultLogger{mu: l.mu, out: l.out, level: l.level, format: l.format, base: base}
}

func (l *DefaultLogger) emit(level Level, msg string, fields []Field) {
	if level < l.level {
		return
	}

	all := make([]Field, 0, len(l.base)+len(fields))
	all = append(all, l.base...)
	all = append(all, fields...)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.format == "json" {
		l.emitJSON(level, msg, all)
		return
	}

	var sb strings.Builder
	sb.WriteString(time.Now().Format("15:04:05.000"))
	sb.WriteByte(' ')
	sb.WriteString(level.String())
	sb.WriteByte(' ')
	sb.WriteString(msg)
	for _, f := range all {
		fmt.Fprintf(&sb, " %s=%v", f.Key, f.Value)
	}
	sb.WriteByte('\n')
	io.WriteString(l.out, sb.String())
}

func (l *DefaultLogger) emitJSON(level Level, msg string, fields []Field) {
	entry := make(map[string]interface{}, len(fields)+3)
	entry["ts"] = time.Now().Format(time.RFC3339Nano)
	entry["level"] = level.String()
	entry["msg"] = msg
	for _, f := range fields {
		if err, ok := f.Value.(error); ok {
			entry[f.Key] = err.Error()
			continue
		}
		entry[f.Key] = f.Value
	}

	data, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(l.out, "{\"level\":%q,\"msg\":\"log entry not serializable\"}\n", level.String())
		return
	}
	l.out.Write(append(data, '\n'))
}

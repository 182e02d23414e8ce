package logging

import (
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"
)

// Logger writes one JSON object per line. Every entry carries ts, level and
// component; level defaults to "error" when status is "error", else "info".
type Logger struct {
	mu        *sync.Mutex
	w         io.Writer
	loc       *time.Location
	component string
}

// New returns a Logger writing to w. A nil location means UTC.
func New(w io.Writer, loc *time.Location, component string) *Logger {
	if w == nil {
		w = os.Stdout
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Logger{mu: &sync.Mutex{}, w: w, loc: loc, component: component}
}

// Nop discards everything.
func Nop() *Logger {
	return New(io.Discard, time.UTC, "")
}

// With returns a logger sharing the writer and its lock but tagged with
// another component.
func (l *Logger) With(component string) *Logger {
	return &Logger{mu: l.mu, w: l.w, loc: l.loc, component: component}
}

// Location is the timezone timestamps are rendered in.
func (l *Logger) Location() *time.Location {
	return l.loc
}

// Info logs event with the given fields.
func (l *Logger) Info(event string, fields map[string]any) {
	l.write("info", event, fields)
}

// Error logs event with err attached as error_message.
func (l *Logger) Error(event string, err error, fields map[string]any) {
	data := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		data[k] = v
	}
	if err != nil {
		data["error_message"] = err.Error()
	}
	data["status"] = "error"
	l.write("error", event, data)
}

// Log writes a raw entry; ts and level are filled in when absent.
func (l *Logger) Log(data map[string]any) {
	l.write("", "", data)
}

func (l *Logger) write(level, event string, fields map[string]any) {
	if l == nil {
		return
	}
	data := make(map[string]any, len(fields)+4)
	for k, v := range fields {
		data[k] = v
	}
	if _, ok := data["ts"]; !ok {
		data["ts"] = time.Now().In(l.loc).Format(time.RFC3339Nano)
	}
	if level != "" {
		data["level"] = level
	}
	if _, ok := data["level"]; !ok {
		if data["status"] == "error" {
			data["level"] = "error"
		} else {
			data["level"] = "info"
		}
	}
	if event != "" {
		data["event"] = event
	}
	if _, ok := data["component"]; !ok && l.component != "" {
		data["component"] = l.component
	}

	b, err := json.Marshal(data)
	if err != nil {
		return
	}
	b = append(b, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.w.Write(b)
}

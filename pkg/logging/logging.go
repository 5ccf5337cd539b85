// Package logging wires klog's leveled logging into an in-memory ring
// buffer so recent records can be served over GET /logs.
package logging

import (
	"container/ring"
	"fmt"
	"sync"
	"time"

	"k8s.io/klog/v2"
)

// MaxRecords bounds the in-memory log ring.
const MaxRecords = 200

// Record is a JSON-serialisable structured log entry.
type Record struct {
	Timestamp float64 `json:"timestamp"`
	Level     string  `json:"level"`
	Logger    string  `json:"name"`
	Message   string  `json:"message"`
}

// Recorder captures structured log records in a bounded ring buffer.
type Recorder struct {
	mu  sync.Mutex
	buf *ring.Ring
	n   int
}

func NewRecorder() *Recorder {
	return &Recorder{buf: ring.New(MaxRecords)}
}

func (r *Recorder) record(level, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf.Value = Record{
		Timestamp: float64(time.Now().UnixNano()) / 1e9,
		Level:     level,
		Logger:    "jarvis-core",
		Message:   msg,
	}
	r.buf = r.buf.Next()
	if r.n < MaxRecords {
		r.n++
	}
}

// Records returns the captured records, oldest first.
func (r *Recorder) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, 0, r.n)
	start := r.buf
	for i := 0; i < MaxRecords-r.n; i++ {
		start = start.Next()
	}
	start.Do(func(v any) {
		if v == nil {
			return
		}
		out = append(out, v.(Record))
	})
	return out
}

// Logger is the structured logger used across the core. It forwards to
// klog for stderr output and to a Recorder for in-memory capture, so a
// single call site gets both without coupling components to klog
// directly.
type Logger struct {
	name string
	rec  *Recorder
}

func New(name string, rec *Recorder) *Logger {
	return &Logger{name: name, rec: rec}
}

func (l *Logger) Infof(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	klog.Info(msg)
	l.rec.record("INFO", msg)
}

func (l *Logger) Warningf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	klog.Warning(msg)
	l.rec.record("WARNING", msg)
}

func (l *Logger) Errorf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	klog.Error(msg)
	l.rec.record("ERROR", msg)
}

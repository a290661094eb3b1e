package logging

import (
	"strings"
	"sync"
)

// captureCapacity is the number of recent log lines kept for the stats view.
const captureCapacity = 20

// CaptureWriter is a thread-safe writer that keeps the most recent lines.
type CaptureWriter struct {
	mu    sync.RWMutex
	lines []string
	max   int
}

// GlobalLogCapture is the singleton instance for capturing logs.
var GlobalLogCapture = NewCaptureWriter(captureCapacity)

// NewCaptureWriter creates a capture writer holding up to max lines.
func NewCaptureWriter(max int) *CaptureWriter {
	return &CaptureWriter{max: max}
}

// Write implements io.Writer. Each write is stored as one line.
func (w *CaptureWriter) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.lines = append(w.lines, strings.TrimRight(string(p), "\n"))
	if len(w.lines) > w.max {
		w.lines = w.lines[len(w.lines)-w.max:]
	}
	return len(p), nil
}

// Lines returns a copy of the captured lines, oldest first.
func (w *CaptureWriter) Lines() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]string, len(w.lines))
	copy(out, w.lines)
	return out
}

// Package logbuf keeps a bounded in-memory tail of the service log so the
// HTTP layer can serve a log download without touching the filesystem.
package logbuf

import (
	"strings"
	"sync"
)

const defaultCapacity = 500

// Ring is a fixed-capacity circular buffer of log lines. It implements
// io.Writer so it can be attached to the logger as a secondary sink.
// Writes past capacity overwrite the oldest lines.
type Ring struct {
	mu    sync.Mutex
	lines []string
	next  int
	count int
}

// New returns a Ring holding up to capacity lines. A non-positive
// capacity falls back to a sane default.
func New(capacity int) *Ring {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Ring{lines: make([]string, capacity)}
}

// Write stores each newline-terminated chunk in p as one line. The logger
// emits whole lines per event, so p is never a partial line.
func (r *Ring) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, line := range strings.Split(string(p), "\n") {
		if line == "" {
			continue
		}
		r.lines[r.next] = line
		r.next = (r.next + 1) % len(r.lines)
		if r.count < len(r.lines) {
			r.count++
		}
	}
	return len(p), nil
}

// Lines returns the buffered lines, oldest first.
func (r *Ring) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, r.count)
	start := r.next - r.count
	if start < 0 {
		start += len(r.lines)
	}
	for i := 0; i < r.count; i++ {
		out = append(out, r.lines[(start+i)%len(r.lines)])
	}
	return out
}

// Tail returns the newest n lines, oldest first. n above the buffered
// count returns everything.
func (r *Ring) Tail(n int) []string {
	lines := r.Lines()
	if n <= 0 {
		return nil
	}
	if n >= len(lines) {
		return lines
	}
	return lines[len(lines)-n:]
}

// Len reports how many lines are currently buffered.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Dump returns the buffered lines joined with newlines, ready to serve
// as a plain-text download.
func (r *Ring) Dump() []byte {
	lines := r.Lines()
	if len(lines) == 0 {
		return nil
	}
	return []byte(strings.Join(lines, "\n") + "\n")
}

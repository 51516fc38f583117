package logbuf

import (
	"bytes"
	"fmt"
	"sync"
)

// Ring keeps the last N lines written to it. It is shared by every child
// process the supervisor starts, so output from consecutive builds lands in
// one buffer separated by Mark lines.
type Ring struct {
	mu      sync.Mutex
	lines   []string
	start   int // index of the oldest line
	count   int
	partial []byte
}

// New creates a ring that retains n lines. n < 1 is treated as 1.
func New(n int) *Ring {
	if n < 1 {
		n = 1
	}
	return &Ring{lines: make([]string, n)}
}

// Write implements io.Writer. Complete lines are stored; a trailing fragment
// is held until its newline arrives or Mark flushes it.
func (r *Ring) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := p
	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			r.partial = append(r.partial, data...)
			break
		}
		line := data[:i]
		if len(r.partial) > 0 {
			line = append(r.partial, line...)
			r.partial = nil
		}
		r.push(string(bytes.TrimRight(line, "\r")))
		data = data[i+1:]
	}
	return len(p), nil
}

// Mark flushes any pending fragment and appends a separator line.
func (r *Ring) Mark(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.partial) > 0 {
		r.push(string(r.partial))
		r.partial = nil
	}
	r.push("--- " + fmt.Sprintf(format, args...) + " ---")
}

func (r *Ring) push(line string) {
	size := len(r.lines)
	if r.count < size {
		r.lines[(r.start+r.count)%size] = line
		r.count++
		return
	}
	r.lines[r.start] = line
	r.start = (r.start + 1) % size
}

// Lines returns all retained lines, oldest first.
func (r *Ring) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, r.count)
	for i := range r.count {
		out[i] = r.lines[(r.start+i)%len(r.lines)]
	}
	return out
}

// Last returns the last n lines. If fewer lines exist, returns all of them.
func (r *Ring) Last(n int) []string {
	all := r.Lines()
	if n <= 0 || n >= len(all) {
		return all
	}
	return all[len(all)-n:]
}

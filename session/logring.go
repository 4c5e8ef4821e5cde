package session

import (
	"sync"
	"time"
)

// DefaultLogLines is the per-session log capacity.
const DefaultLogLines = 1000

// LogSource says where a log line came from.
type LogSource string

const (
	SourceApp    LogSource = "app"    // app.log
	SourceBuild  LogSource = "build"  // non-protocol tool output
	SourceStderr LogSource = "stderr" // tool stderr
	SourceVM     LogSource = "vm"     // VM service Logging stream
	SourceFlx    LogSource = "flx"    // flx itself
)

// LogLine is one line of session output.
type LogLine struct {
	Time   time.Time
	Text   string
	Source LogSource
	Error  bool
}

// LogRing keeps the most recent lines; the oldest is evicted when full.
type LogRing struct {
	lines []LogLine
	start int
	n     int
	mu    sync.RWMutex
}

// NewLogRing creates a ring holding up to size lines.
func NewLogRing(size int) *LogRing {
	if size <= 0 {
		size = DefaultLogLines
	}
	return &LogRing{lines: make([]LogLine, size)}
}

// Append adds a line.
func (r *LogRing) Append(line LogLine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.n < len(r.lines) {
		r.lines[(r.start+r.n)%len(r.lines)] = line
		r.n++
		return
	}
	r.lines[r.start] = line
	r.start = (r.start + 1) % len(r.lines)
}

// Lines returns the retained lines, oldest first.
func (r *LogRing) Lines() []LogLine {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]LogLine, r.n)
	for i := range r.n {
		out[i] = r.lines[(r.start+i)%len(r.lines)]
	}
	return out
}

// Len returns the number of retained lines.
func (r *LogRing) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.n
}

package mux

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/bazelment/yoloswe/flx/logging"
	"github.com/bazelment/yoloswe/flx/transport"
)

// DefaultBufferSize is the per-subscriber line buffer.
const DefaultBufferSize = 16

// LineReader reads lines from a transport.LineSource on a background
// goroutine and fans each one out to every subscriber. A subscriber whose
// buffer is full loses its oldest line; publishing never blocks.
//
// A LineReader always holds one internal subscriber, the trace tap, for its
// whole lifetime. It drains every line into the trace log, so publishing
// never depends on an external subscriber existing yet.
//
// Observers registered with Observe run on the reader goroutine and see
// every line; they are for state that must not lose lines to a full buffer.
type LineReader struct {
	src       transport.LineSource
	logger    *slog.Logger
	fanout    *Fanout[[]byte]
	observers []func(line []byte)
	tap       *Subscription[[]byte]
	done      chan struct{}
	name      string
	bufSize   int
	lines     atomic.Uint64
	startOnce sync.Once
	mu        sync.RWMutex
}

// ReaderOption configures a LineReader.
type ReaderOption func(*LineReader)

// WithReaderBufferSize sets the per-subscriber buffer size.
func WithReaderBufferSize(n int) ReaderOption {
	return func(r *LineReader) {
		if n > 0 {
			r.bufSize = n
		}
	}
}

// WithReaderLogger sets the logger used for the trace tap.
func WithReaderLogger(l *slog.Logger) ReaderOption {
	return func(r *LineReader) { r.logger = logging.OrDiscard(l) }
}

// WithReaderName labels log records from this reader.
func WithReaderName(name string) ReaderOption {
	return func(r *LineReader) { r.name = name }
}

// NewLineReader creates a reader over src. Reading does not begin until Start,
// so long-lived subscribers can attach without missing the first lines.
func NewLineReader(src transport.LineSource, opts ...ReaderOption) *LineReader {
	r := &LineReader{
		src:     src,
		logger:  logging.Discard(),
		fanout:  NewFanout[[]byte](),
		done:    make(chan struct{}),
		bufSize: DefaultBufferSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.tap = r.Subscribe()
	go r.drainTap()
	return r
}

// Start begins reading. Calling it more than once has no effect.
func (r *LineReader) Start() {
	r.startOnce.Do(func() {
		go r.run()
	})
}

// Done is closed once the source has ended and every subscription is closed.
func (r *LineReader) Done() <-chan struct{} {
	return r.done
}

// Lines returns how many lines have been read so far.
func (r *LineReader) Lines() uint64 {
	return r.lines.Load()
}

// Subscribe registers a new subscriber. If the source has already ended the
// returned subscription is closed.
func (r *LineReader) Subscribe() *Subscription[[]byte] {
	return r.fanout.Subscribe(r.bufSize)
}

// Observe registers fn to be called with every line, in order, before
// subscribers receive it. fn runs on the reader goroutine and must not block.
// Register observers before Start to see the first line.
func (r *LineReader) Observe(fn func(line []byte)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, fn)
}

func (r *LineReader) run() {
	defer close(r.done)
	for {
		line, err := r.src.ReadLine()
		if err != nil {
			r.logger.Debug("line stream ended", "reader", r.name, "lines", r.lines.Load(), "error", err)
			r.fanout.Close()
			return
		}
		r.lines.Add(1)
		r.publish(line)
	}
}

// publish hands line to every observer, then to every subscriber. Both share
// the slice and must not modify it.
func (r *LineReader) publish(line []byte) {
	r.mu.RLock()
	observers := r.observers
	r.mu.RUnlock()

	for _, fn := range observers {
		fn(line)
	}
	r.fanout.Publish(line)
}

func (r *LineReader) drainTap() {
	for line := range r.tap.C() {
		logging.Trace(r.logger, "recv", "reader", r.name, "line", string(line))
	}
}

// Text returns every line from now on as a string stream.
func (r *LineReader) Text() *Stream[string] {
	return newStream(r.Subscribe(), func(line []byte) (string, bool) {
		return string(line), true
	})
}

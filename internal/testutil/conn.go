// Package testutil provides shared test doubles for flx's protocol packages.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bazelment/yoloswe/flx/transport"
)

// Conn is an in-memory transport.Conn standing in for a tool process or a
// socket. Lines written by the code under test are recorded and can be
// awaited with Expect; lines from the peer are injected with Push.
type Conn struct {
	in        chan []byte
	written   chan []byte
	eof       chan struct{}
	closed    chan struct{}
	lines     [][]byte
	mu        sync.Mutex
	eofOnce   sync.Once
	closeOnce sync.Once
	bytes     int
}

var _ transport.Conn = (*Conn)(nil)

// NewConn creates a Conn.
func NewConn() *Conn {
	return &Conn{
		in:      make(chan []byte, 256),
		written: make(chan []byte, 256),
		eof:     make(chan struct{}),
		closed:  make(chan struct{}),
	}
}

// Push delivers lines as if the peer had printed them.
func (c *Conn) Push(lines ...string) {
	for _, l := range lines {
		select {
		case c.in <- []byte(l):
		case <-c.eof:
			return
		case <-c.closed:
			return
		}
	}
}

// Hangup ends the read side as if the peer had exited.
func (c *Conn) Hangup() {
	c.eofOnce.Do(func() { close(c.eof) })
}

// ReadLine implements transport.LineSource. Lines pushed before Hangup are
// delivered before io.EOF.
func (c *Conn) ReadLine() ([]byte, error) {
	select {
	case l := <-c.in:
		return l, nil
	default:
	}
	select {
	case l := <-c.in:
		return l, nil
	case <-c.eof:
		select {
		case l := <-c.in:
			return l, nil
		default:
		}
		return nil, io.EOF
	case <-c.closed:
		return nil, io.EOF
	}
}

// WriteLine implements transport.Conn.
func (c *Conn) WriteLine(line []byte) error {
	select {
	case <-c.closed:
		return &transport.WriteError{Cause: transport.ErrClosed}
	default:
	}
	cp := append([]byte(nil), line...)
	c.mu.Lock()
	c.lines = append(c.lines, cp)
	c.bytes += len(cp) + 1
	c.mu.Unlock()
	select {
	case c.written <- cp:
	default:
	}
	return nil
}

// Close implements transport.Conn. Safe to call repeatedly.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// Closed reports whether Close was called.
func (c *Conn) Closed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// Written returns every line written so far.
func (c *Conn) Written() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.lines))
	for i, l := range c.lines {
		out[i] = string(l)
	}
	return out
}

// BytesWritten returns the number of bytes written, newlines included.
func (c *Conn) BytesWritten() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bytes
}

// Expect waits for the next written line.
func (c *Conn) Expect(t testing.TB) string {
	t.Helper()
	select {
	case l := <-c.written:
		return string(l)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a written line")
		return ""
	}
}

// Request is a request line as the peer would decode it.
type Request struct {
	ID     json.RawMessage `json:"id"`
	Params json.RawMessage `json:"params"`
	Method string          `json:"method"`
}

// ExpectRequest waits for the next written line, strips the machine
// protocol's array brackets if present, and checks the method name.
func (c *Conn) ExpectRequest(t testing.TB, method string) Request {
	t.Helper()
	line := bytes.TrimSpace([]byte(c.Expect(t)))
	if len(line) > 1 && line[0] == '[' && line[len(line)-1] == ']' {
		line = line[1 : len(line)-1]
	}
	var req Request
	require.NoError(t, json.Unmarshal(line, &req), "line: %s", line)
	require.Equal(t, method, req.Method, "line: %s", line)
	return req
}

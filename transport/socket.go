package transport

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultDialTimeout bounds connection setup when the caller's context has
// no deadline.
const DefaultDialTimeout = 10 * time.Second

// frameConn is the per-scheme half of a Socket.
type frameConn interface {
	readFrame() ([]byte, error)
	writeFrame(line []byte) error
	close() error
}

// Socket is a full-duplex connection to a VM service or any other line
// protocol endpoint. ws:// and wss:// carry one message per text frame;
// tcp:// and unix:// carry newline-delimited lines.
type Socket struct {
	frames frameConn
	uri    string
	wmu    sync.Mutex
	mu     sync.Mutex
	closed bool
}

// Dial connects to uri. Refusal, handshake failure or timeout is returned as
// a *ConnectError. A connection that drops later is not reported here; the
// next ReadLine returns an error instead.
func Dial(ctx context.Context, uri string) (*Socket, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, &ConnectError{URI: uri, Cause: err}
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultDialTimeout)
		defer cancel()
	}

	var frames frameConn
	switch u.Scheme {
	case "ws", "wss":
		frames, err = dialWebSocket(ctx, uri)
	case "tcp":
		frames, err = dialStream(ctx, "tcp", u.Host)
	case "unix":
		frames, err = dialStream(ctx, "unix", u.Path)
	default:
		err = fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if err != nil {
		return nil, &ConnectError{URI: uri, Cause: err}
	}
	return &Socket{uri: uri, frames: frames}, nil
}

// URI returns the address the socket was dialed with.
func (s *Socket) URI() string {
	return s.uri
}

// ReadLine returns the next message.
func (s *Socket) ReadLine() ([]byte, error) {
	return s.frames.readFrame()
}

// WriteLine sends one message.
func (s *Socket) WriteLine(line []byte) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return &WriteError{Cause: ErrClosed}
	}

	if err := s.frames.writeFrame(line); err != nil {
		return &WriteError{Cause: err}
	}
	return nil
}

// Close shuts the connection down. Safe to call repeatedly.
func (s *Socket) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	return s.frames.close()
}

type wsFrames struct {
	conn *websocket.Conn
}

func dialWebSocket(ctx context.Context, uri string) (*wsFrames, error) {
	dialer := websocket.Dialer{
		Proxy:            nil,
		HandshakeTimeout: DefaultDialTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, uri, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return &wsFrames{conn: conn}, nil
}

func (w *wsFrames) readFrame() ([]byte, error) {
	_, data, err := w.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (w *wsFrames) writeFrame(line []byte) error {
	return w.conn.WriteMessage(websocket.TextMessage, line)
}

func (w *wsFrames) close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = w.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return w.conn.Close()
}

type streamFrames struct {
	conn    net.Conn
	scanner *lineScanner
}

func dialStream(ctx context.Context, network, addr string) (*streamFrames, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	return &streamFrames{conn: conn, scanner: newLineScanner(conn)}, nil
}

func (s *streamFrames) readFrame() ([]byte, error) {
	return s.scanner.ReadLine()
}

func (s *streamFrames) writeFrame(line []byte) error {
	buf := make([]byte, 0, len(line)+1)
	buf = append(buf, line...)
	buf = append(buf, '\n')
	_, err := s.conn.Write(buf)
	return err
}

func (s *streamFrames) close() error {
	return s.conn.Close()
}

package mux

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/bazelment/yoloswe/flx/logging"
	"github.com/bazelment/yoloswe/flx/transport"
)

// Mux correlates requests and responses and fans out events for one
// connection. It is safe for concurrent use.
type Mux[ID comparable] struct {
	conn    transport.Conn
	dialect Dialect[ID]
	ids     IDSource[ID]
	reader  *LineReader
	logger  *slog.Logger
	name    string
}

// Option configures a Mux.
type Option func(*options)

type options struct {
	logger  *slog.Logger
	name    string
	bufSize int
}

// WithBufferSize sets the per-subscriber line buffer.
func WithBufferSize(n int) Option {
	return func(o *options) { o.bufSize = n }
}

// WithLogger sets the logger. Wire traffic is logged at logging.LevelTrace.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithName labels log records, e.g. "daemon" or "vmservice".
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// New creates a Mux over conn. Reading starts with Start.
func New[ID comparable](conn transport.Conn, dialect Dialect[ID], ids IDSource[ID], opts ...Option) *Mux[ID] {
	o := options{bufSize: DefaultBufferSize}
	for _, opt := range opts {
		opt(&o)
	}
	logger := logging.OrDiscard(o.logger)
	return &Mux[ID]{
		conn:    conn,
		dialect: dialect,
		ids:     ids,
		logger:  logger,
		name:    o.name,
		reader: NewLineReader(conn,
			WithReaderBufferSize(o.bufSize),
			WithReaderLogger(logger),
			WithReaderName(o.name),
		),
	}
}

// Start begins reading from the connection. Subscribe long-lived listeners
// before calling Start to be sure of seeing the first lines.
func (m *Mux[ID]) Start() {
	m.reader.Start()
}

// Done is closed once the connection's read half has ended.
func (m *Mux[ID]) Done() <-chan struct{} {
	return m.reader.Done()
}

// Close closes the connection. Pending calls fail with ErrNoResponse.
func (m *Mux[ID]) Close() error {
	return m.conn.Close()
}

// NextID returns a fresh request id.
func (m *Mux[ID]) NextID() ID {
	return m.ids.Next()
}

// Send frames payload and writes it as one line.
func (m *Mux[ID]) Send(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	line := m.dialect.Frame(payload)
	logging.Trace(m.logger, "send", "conn", m.name, "line", string(line))
	return m.conn.WriteLine(line)
}

// Call sends method with params and waits for the response carrying the same
// id. It returns the raw result, a *RPCError if the peer answered with an
// error, or a *ProtocolError of kind KindNoResponse if the connection ended
// first.
func (m *Mux[ID]) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := m.ids.Next()
	req, err := m.dialect.EncodeRequest(id, method, params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s request: %w", method, err)
	}

	// Subscribe before writing so a fast reply cannot slip past.
	sub := m.reader.Subscribe()
	defer sub.Close()

	if err := m.Send(ctx, req); err != nil {
		return nil, err
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case line, ok := <-sub.C():
			if !ok {
				return nil, &ProtocolError{Kind: KindNoResponse, Method: method}
			}
			payload, ok := m.dialect.Unframe(line)
			if !ok {
				continue
			}
			resp, ok := m.dialect.DecodeResponse(payload)
			if !ok || resp.ID != id {
				continue
			}
			if resp.Error != nil {
				rpcErr := *resp.Error
				rpcErr.Method = method
				return nil, &rpcErr
			}
			return resp.Result, nil
		}
	}
}

// CallAs is Call with the result decoded into T. An empty or null result
// yields T's zero value. A result that does not decode into T fails with a
// *ProtocolError of kind KindMalformed.
func CallAs[T any, ID comparable](ctx context.Context, m *Mux[ID], method string, params any) (T, error) {
	var out T
	raw, err := m.Call(ctx, method, params)
	if err != nil {
		return out, err
	}
	if isEmpty(raw) {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, &ProtocolError{Kind: KindMalformed, Method: method, Line: string(raw), Cause: err}
	}
	return out, nil
}

// Subscribe returns every event received from now on.
func (m *Mux[ID]) Subscribe() *Stream[Event] {
	return newStream(m.reader.Subscribe(), m.decodeEvent)
}

// ObserveEvents calls fn with every event, in arrival order, on the reading
// goroutine. Unlike a subscription it never loses events to a slow reader.
// fn must return quickly and must not call back into the Mux. Register
// before Start to see the first event.
func (m *Mux[ID]) ObserveEvents(fn func(Event)) {
	m.reader.Observe(func(line []byte) {
		if ev, ok := m.decodeEvent(line); ok {
			fn(ev)
		}
	})
}

// SubscribeAs returns the params of events of the given kinds decoded into
// T. With no kinds every event is decoded. Events whose params do not decode
// into T are skipped.
func SubscribeAs[T any, ID comparable](m *Mux[ID], kinds ...string) *Stream[T] {
	return SubscribeFunc(m, func(ev Event) (T, bool) {
		var out T
		if !matchKind(ev.Kind, kinds) {
			return out, false
		}
		if isEmpty(ev.Params) {
			return out, true
		}
		if err := json.Unmarshal(ev.Params, &out); err != nil {
			m.logger.Debug("dropping malformed event", "conn", m.name, "event", ev.Kind, "error", err)
			return out, false
		}
		return out, true
	})
}

// SubscribeFunc returns the events that fn accepts, converted by fn.
func SubscribeFunc[T any, ID comparable](m *Mux[ID], fn func(Event) (T, bool)) *Stream[T] {
	return newStream(m.reader.Subscribe(), func(line []byte) (T, bool) {
		ev, ok := m.decodeEvent(line)
		if !ok {
			var zero T
			return zero, false
		}
		return fn(ev)
	})
}

// Raw returns the lines that are not protocol traffic, such as plain build
// output printed by the tool.
func (m *Mux[ID]) Raw() *Stream[string] {
	return newStream(m.reader.Subscribe(), func(line []byte) (string, bool) {
		if _, ok := m.dialect.Unframe(line); ok {
			return "", false
		}
		return string(line), true
	})
}

func (m *Mux[ID]) decodeEvent(line []byte) (Event, bool) {
	payload, ok := m.dialect.Unframe(line)
	if !ok {
		return Event{}, false
	}
	if _, ok := m.dialect.DecodeResponse(payload); ok {
		return Event{}, false
	}
	return m.dialect.DecodeEvent(payload)
}

func matchKind(kind string, kinds []string) bool {
	return len(kinds) == 0 || slices.Contains(kinds, kind)
}

func isEmpty(raw json.RawMessage) bool {
	trimmed := trimSpace(raw)
	return len(trimmed) == 0 || string(trimmed) == "null"
}

// WithTimeout bounds a call. d <= 0 leaves the wait unbounded but still
// cancellable, for waits such as a physical device connecting.
func WithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

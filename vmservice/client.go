// Package vmservice is a client for the Dart VM service protocol, the
// JSON-RPC 2.0 socket a running Flutter app exposes for debugging and
// diagnostics.
//
// Request ids are random tokens, so facades layered on the same connection
// (the core VM surface and the Flutter Extensions) never collide.
package vmservice

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/bazelment/yoloswe/flx/logging"
	"github.com/bazelment/yoloswe/flx/mux"
	"github.com/bazelment/yoloswe/flx/transport"
)

const methodStreamNotify = "streamNotify"

// Client talks to one VM service.
type Client struct {
	conn      transport.Conn
	mux       *mux.Mux[string]
	logger    *slog.Logger
	uri       string
	closeErr  error
	closeOnce sync.Once
}

type config struct {
	logger   *slog.Logger
	ids      mux.IDSource[string]
	maxDepth int
}

// Option configures a Client.
type Option func(*config)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithIDSource replaces the random token generator.
func WithIDSource(ids mux.IDSource[string]) Option {
	return func(c *config) { c.ids = ids }
}

// WithMaxDepth bounds response nesting. The default, 0, is unlimited.
func WithMaxDepth(n int) Option {
	return func(c *config) { c.maxDepth = n }
}

// Connect dials the VM service at uri, e.g. the wsUri from app.debugPort.
func Connect(ctx context.Context, uri string, opts ...Option) (*Client, error) {
	sock, err := transport.Dial(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to vm service: %w", err)
	}
	c := NewClient(sock, opts...)
	c.uri = uri
	return c, nil
}

// NewClient wraps an established connection and starts reading from it.
func NewClient(conn transport.Conn, opts ...Option) *Client {
	cfg := config{ids: mux.Tokens{}}
	for _, opt := range opts {
		opt(&cfg)
	}
	logger := logging.OrDiscard(cfg.logger).With("component", "vmservice")
	c := &Client{
		conn:   conn,
		logger: logger,
		mux: mux.New[string](conn, Dialect{MaxDepth: cfg.maxDepth}, cfg.ids,
			mux.WithName("vmservice"),
			mux.WithLogger(logger),
		),
	}
	c.mux.Start()
	return c
}

// URI returns the address the client connected to, if known.
func (c *Client) URI() string {
	return c.uri
}

// Done is closed once the connection has ended.
func (c *Client) Done() <-chan struct{} {
	return c.mux.Done()
}

// Close closes the connection. Safe to call repeatedly.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// Events streams streamNotify events. With stream ids given, only those
// streams are delivered. A stream must be enabled with StreamListen first.
func (c *Client) Events(streamIDs ...string) *mux.Stream[StreamEvent] {
	return mux.SubscribeFunc(c.mux, func(ev mux.Event) (StreamEvent, bool) {
		var se StreamEvent
		if ev.Kind != methodStreamNotify {
			return se, false
		}
		if err := json.Unmarshal(ev.Params, &se); err != nil {
			c.logger.Debug("dropping malformed stream event", "error", err)
			return se, false
		}
		return se, len(streamIDs) == 0 || slices.Contains(streamIDs, se.StreamID)
	})
}

// Notifications streams every notification undecoded, including the
// service extension registrations some VMs send.
func (c *Client) Notifications() *mux.Stream[mux.Event] {
	return c.mux.Subscribe()
}

func call[T any](ctx context.Context, c *Client, method string, params any) (T, error) {
	return mux.CallAs[T](ctx, c.mux, method, params)
}

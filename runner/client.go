// Package runner drives one app through `flutter run --machine`.
//
// The client learns the app id from the first app.start event. Until then
// every control call fails with ErrNotStarted without writing anything; after
// app.stop or process exit they fail with ErrAppStopped.
package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bazelment/yoloswe/flx/logging"
	"github.com/bazelment/yoloswe/flx/machine"
	"github.com/bazelment/yoloswe/flx/mux"
	"github.com/bazelment/yoloswe/flx/transport"
)

// Client controls one running app.
type Client struct {
	conn        transport.Conn
	mux         *mux.Mux[uint64]
	stderr      *mux.LineReader
	life        *lifecycle
	logger      *slog.Logger
	args        []string
	closeErr    error
	stopTimeout time.Duration
	closeOnce   sync.Once
}

// Start spawns `flutter run --machine` for opts in the project directory.
// It returns as soon as the process is running; the app id arrives later
// with app.start.
func Start(ctx context.Context, opts Options) (*Client, error) {
	path := opts.FlutterPath
	if path == "" {
		path = "flutter"
	}
	args := BuildArgs(opts)
	p, err := transport.SpawnProcess(ctx, transport.ProcessConfig{
		Path:   path,
		Args:   args,
		Dir:    opts.ProjectDir,
		Env:    opts.Env,
		Logger: opts.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start flutter run: %w", err)
	}

	c := newClient(p, opts)
	c.args = args
	c.stderr = mux.NewLineReader(p.Stderr(),
		mux.WithReaderName("run.stderr"),
		mux.WithReaderLogger(c.logger),
	)
	c.stderr.Start()
	go func() {
		<-p.Done()
		reason := "process exited"
		if err := p.ExitErr(); err != nil {
			reason = fmt.Sprintf("process exited: %v", err)
		}
		c.life.onExit(reason)
	}()
	c.mux.Start()
	return c, nil
}

// NewClient wraps an established connection carrying the run protocol and
// starts reading from it.
func NewClient(conn transport.Conn, opts Options) *Client {
	c := newClient(conn, opts)
	c.mux.Start()
	return c
}

func newClient(conn transport.Conn, opts Options) *Client {
	logger := logging.OrDiscard(opts.Logger).With("component", "runner")
	stopTimeout := opts.StopTimeout
	if stopTimeout <= 0 {
		stopTimeout = DefaultStopTimeout
	}
	c := &Client{
		conn:        conn,
		logger:      logger,
		mux:         machine.NewMux(conn, "run", logger),
		life:        newLifecycle(),
		stopTimeout: stopTimeout,
	}
	// Lifecycle events are observed on the reading goroutine rather than
	// through a subscription, so a burst of build output cannot evict
	// app.start or app.stop.
	c.mux.ObserveEvents(c.track)
	go func() {
		<-c.mux.Done()
		c.life.onExit("output closed")
	}()
	return c
}

// track applies one lifecycle event to the state machine.
func (c *Client) track(ev mux.Event) {
	switch ev.Kind {
	case machine.EventAppStart:
		if p, ok := decode[machine.AppStartEvent](c.logger, ev); ok {
			c.logger.Debug("app start", "app_id", p.AppID, "device_id", p.DeviceID, "mode", p.Mode)
			c.life.onStart(p)
		}
	case machine.EventAppStarted:
		if p, ok := decode[machine.AppStartedEvent](c.logger, ev); ok {
			c.life.onStarted(p)
		}
	case machine.EventAppDebugPort:
		if p, ok := decode[machine.AppDebugPortEvent](c.logger, ev); ok {
			c.logger.Debug("app debug port", "app_id", p.AppID, "ws_uri", p.WSURI)
			c.life.onDebugPort(p)
		}
	case machine.EventAppProgress:
		if p, ok := decode[machine.AppProgressEvent](c.logger, ev); ok {
			c.life.onProgress(p)
		}
	case machine.EventAppWebLaunchURL:
		if p, ok := decode[machine.AppWebLaunchURLEvent](c.logger, ev); ok {
			c.life.onWebLaunchURL(p)
		}
	case machine.EventAppStop:
		if p, ok := decode[machine.AppStopEvent](c.logger, ev); ok {
			c.logger.Debug("app stop", "app_id", p.AppID, "error", p.Error)
			c.life.onStop(p)
		}
	}
}

func decode[T any](logger *slog.Logger, ev mux.Event) (T, bool) {
	var out T
	if err := json.Unmarshal(ev.Params, &out); err != nil {
		logger.Debug("dropping malformed event", "event", ev.Kind, "error", err)
		return out, false
	}
	return out, true
}

// Args returns the flutter arguments the process was started with.
func (c *Client) Args() []string {
	return c.args
}

// Status returns the current lifecycle snapshot.
func (c *Client) Status() Status {
	st, _ := c.life.current()
	return st
}

// State returns the lifecycle state.
func (c *Client) State() State {
	return c.Status().State
}

// AppID returns the app id, or "" before app.start.
func (c *Client) AppID() string {
	return c.Status().AppID
}

// Changed returns a channel closed at the next Status change.
func (c *Client) Changed() <-chan struct{} {
	_, ch := c.life.current()
	return ch
}

// WaitFor blocks until cond holds for the current Status. It fails with
// ErrAppStopped if the app stops first.
func (c *Client) WaitFor(ctx context.Context, cond func(Status) bool) (Status, error) {
	return c.life.wait(ctx, cond)
}

// WaitStarted blocks until app.started.
func (c *Client) WaitStarted(ctx context.Context) (Status, error) {
	return c.WaitFor(ctx, func(s Status) bool { return s.Started })
}

// WaitDebugPort blocks until the VM service address is known.
func (c *Client) WaitDebugPort(ctx context.Context) (machine.AppDebugPortEvent, error) {
	st, err := c.WaitFor(ctx, func(s Status) bool { return s.DebugPort != nil })
	if err != nil {
		return machine.AppDebugPortEvent{}, err
	}
	return *st.DebugPort, nil
}

// Stopped is closed once the app has stopped or the process exited.
func (c *Client) Stopped() <-chan struct{} {
	return c.life.stopped
}

// Done is closed once the tool's output has ended.
func (c *Client) Done() <-chan struct{} {
	return c.mux.Done()
}

// appID returns the app id for a control call, or the reason the call must
// be rejected before anything is written.
func (c *Client) appID(op string) (string, error) {
	st := c.Status()
	switch st.State {
	case StateUnknown:
		return "", &NotStartedError{Op: op}
	case StateStopped:
		return "", fmt.Errorf("%s: %w", op, ErrAppStopped)
	}
	return st.AppID, nil
}

// Reload hot reloads the app.
func (c *Client) Reload(ctx context.Context) (machine.RestartResult, error) {
	return c.restart(ctx, "reload", false)
}

// Restart hot restarts the app.
func (c *Client) Restart(ctx context.Context) (machine.RestartResult, error) {
	return c.restart(ctx, "restart", true)
}

func (c *Client) restart(ctx context.Context, op string, full bool) (machine.RestartResult, error) {
	appID, err := c.appID(op)
	if err != nil {
		return machine.RestartResult{}, err
	}
	res, err := machine.RestartApp(ctx, c.mux, machine.RestartParams{AppID: appID, FullRestart: full, Reason: "manual"})
	if err != nil {
		return res, err
	}
	if !res.OK() {
		return res, fmt.Errorf("%s: %w: %s", op, ErrRestartFailed, res.Message)
	}
	return res, nil
}

// Detach leaves the app running and ends flutter run's control of it.
func (c *Client) Detach(ctx context.Context) error {
	appID, err := c.appID("detach")
	if err != nil {
		return err
	}
	_, err = machine.DetachApp(ctx, c.mux, appID)
	return err
}

// Stop stops the app. flutter run exits afterwards.
func (c *Client) Stop(ctx context.Context) error {
	appID, err := c.appID("stop")
	if err != nil {
		return err
	}
	_, err = machine.StopApp(ctx, c.mux, appID)
	return err
}

// CallServiceExtension invokes a VM service extension through the tool.
func (c *Client) CallServiceExtension(ctx context.Context, method string, params map[string]any) (json.RawMessage, error) {
	appID, err := c.appID("callServiceExtension")
	if err != nil {
		return nil, err
	}
	return machine.CallServiceExtension(ctx, c.mux, appID, method, params)
}

// Close stops the app gracefully if it is running, then releases the
// process. Safe to call repeatedly.
func (c *Client) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		if c.State() == StateKnown {
			stopCtx, cancel := mux.WithTimeout(ctx, c.stopTimeout)
			if err := c.Stop(stopCtx); err != nil {
				c.logger.Debug("graceful stop failed", "error", err)
			}
			cancel()
		}
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// Starts streams app.start events.
func (c *Client) Starts() *mux.Stream[machine.AppStartEvent] {
	return mux.SubscribeAs[machine.AppStartEvent](c.mux, machine.EventAppStart)
}

// Started streams app.started events.
func (c *Client) Started() *mux.Stream[machine.AppStartedEvent] {
	return mux.SubscribeAs[machine.AppStartedEvent](c.mux, machine.EventAppStarted)
}

// DebugPorts streams app.debugPort events.
func (c *Client) DebugPorts() *mux.Stream[machine.AppDebugPortEvent] {
	return mux.SubscribeAs[machine.AppDebugPortEvent](c.mux, machine.EventAppDebugPort)
}

// Progress streams app.progress events.
func (c *Client) Progress() *mux.Stream[machine.AppProgressEvent] {
	return mux.SubscribeAs[machine.AppProgressEvent](c.mux, machine.EventAppProgress)
}

// Logs streams app.log events.
func (c *Client) Logs() *mux.Stream[machine.AppLogEvent] {
	return mux.SubscribeAs[machine.AppLogEvent](c.mux, machine.EventAppLog)
}

// Stops streams app.stop events.
func (c *Client) Stops() *mux.Stream[machine.AppStopEvent] {
	return mux.SubscribeAs[machine.AppStopEvent](c.mux, machine.EventAppStop)
}

// WebLaunchURLs streams app.webLaunchUrl events.
func (c *Client) WebLaunchURLs() *mux.Stream[machine.AppWebLaunchURLEvent] {
	return mux.SubscribeAs[machine.AppWebLaunchURLEvent](c.mux, machine.EventAppWebLaunchURL)
}

// Events streams every event undecoded.
func (c *Client) Events() *mux.Stream[mux.Event] {
	return c.mux.Subscribe()
}

// Raw streams stdout lines that are not protocol traffic, such as build
// output.
func (c *Client) Raw() *mux.Stream[string] {
	return c.mux.Raw()
}

// Stderr streams the tool's stderr. It returns nil for clients not backed by
// a process.
func (c *Client) Stderr() *mux.Stream[string] {
	if c.stderr == nil {
		return nil
	}
	return c.stderr.Text()
}

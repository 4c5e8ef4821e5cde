// Package daemon is a client for `flutter daemon`: device discovery,
// emulators, DevTools and control of apps the daemon launched.
package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bazelment/yoloswe/flx/logging"
	"github.com/bazelment/yoloswe/flx/machine"
	"github.com/bazelment/yoloswe/flx/mux"
	"github.com/bazelment/yoloswe/flx/transport"
)

// Client talks to one flutter daemon.
type Client struct {
	conn      transport.Conn
	mux       *mux.Mux[uint64]
	stderr    *mux.LineReader
	connected chan struct{}
	logger    *slog.Logger
	info      machine.ConnectedEvent
	closeErr  error
	closeOnce sync.Once
	connOnce  sync.Once
	mu        sync.Mutex
}

// Start spawns `flutter daemon` and begins reading its output.
func Start(ctx context.Context, opts ...Option) (*Client, error) {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}

	p, err := transport.SpawnProcess(ctx, transport.ProcessConfig{
		Path:   config.FlutterPath,
		Args:   append([]string{"daemon"}, config.ExtraArgs...),
		Dir:    config.Dir,
		Env:    config.Env,
		Logger: config.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start flutter daemon: %w", err)
	}

	c := newClient(p, config.Logger)
	c.stderr = mux.NewLineReader(p.Stderr(),
		mux.WithReaderName("daemon.stderr"),
		mux.WithReaderLogger(c.logger),
	)
	c.stderr.Start()
	c.mux.Start()
	return c, nil
}

// Connect attaches to a daemon listening on a socket
// (`flutter daemon --listen-port`), e.g. "tcp://localhost:9090".
func Connect(ctx context.Context, uri string, opts ...Option) (*Client, error) {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	sock, err := transport.Dial(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to flutter daemon: %w", err)
	}
	return NewClient(sock, config.Logger), nil
}

// NewClient wraps an established connection and starts reading from it.
func NewClient(conn transport.Conn, logger *slog.Logger) *Client {
	c := newClient(conn, logger)
	c.mux.Start()
	return c
}

func newClient(conn transport.Conn, logger *slog.Logger) *Client {
	logger = logging.OrDiscard(logger).With("component", "daemon")
	c := &Client{
		conn:      conn,
		logger:    logger,
		mux:       machine.NewMux(conn, "daemon", logger),
		connected: make(chan struct{}),
	}
	// daemon.connected may be followed by a burst of log lines; observe it on
	// the reading goroutine so it cannot be evicted.
	c.mux.ObserveEvents(c.captureConnected)
	return c
}

func (c *Client) captureConnected(ev mux.Event) {
	if ev.Kind != machine.EventDaemonConnected {
		return
	}
	var info machine.ConnectedEvent
	if err := json.Unmarshal(ev.Params, &info); err != nil {
		c.logger.Debug("dropping malformed event", "event", ev.Kind, "error", err)
		return
	}
	c.connOnce.Do(func() {
		c.mu.Lock()
		c.info = info
		c.mu.Unlock()
		c.logger.Debug("daemon connected", "version", info.Version, "pid", info.PID)
		close(c.connected)
	})
}

// WaitConnected blocks until the daemon has announced itself.
func (c *Client) WaitConnected(ctx context.Context) (machine.ConnectedEvent, error) {
	select {
	case <-c.connected:
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.info, nil
	case <-c.mux.Done():
		select {
		case <-c.connected:
			c.mu.Lock()
			defer c.mu.Unlock()
			return c.info, nil
		default:
		}
		return machine.ConnectedEvent{}, &mux.ProtocolError{Kind: mux.KindNoResponse, Method: machine.EventDaemonConnected}
	case <-ctx.Done():
		return machine.ConnectedEvent{}, ctx.Err()
	}
}

// Done is closed once the daemon's output has ended.
func (c *Client) Done() <-chan struct{} {
	return c.mux.Done()
}

// Close asks the daemon to shut down, bounded by ctx, then releases the
// process. Safe to call repeatedly.
func (c *Client) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		select {
		case <-c.mux.Done():
		default:
			if err := c.Shutdown(ctx); err != nil {
				c.logger.Debug("daemon shutdown request failed", "error", err)
			}
		}
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// Version returns the daemon protocol version.
func (c *Client) Version(ctx context.Context) (string, error) {
	return mux.CallAs[string](ctx, c.mux, machine.MethodDaemonVersion, nil)
}

// Shutdown asks the daemon to exit.
func (c *Client) Shutdown(ctx context.Context) error {
	_, err := c.mux.Call(ctx, machine.MethodDaemonShutdown, nil)
	return err
}

// GetSupportedPlatforms returns the platforms the project can build for.
func (c *Client) GetSupportedPlatforms(ctx context.Context, projectRoot string) ([]string, error) {
	res, err := mux.CallAs[machine.SupportedPlatforms](ctx, c.mux, machine.MethodDaemonGetSupportedPlatforms,
		map[string]string{"projectRoot": projectRoot})
	if err != nil {
		return nil, err
	}
	return res.Platforms, nil
}

// GetDevices returns the currently connected devices.
func (c *Client) GetDevices(ctx context.Context) ([]machine.Device, error) {
	return mux.CallAs[[]machine.Device](ctx, c.mux, machine.MethodDeviceGetDevices, nil)
}

// Enable turns on device polling; device.added and device.removed events
// only flow while it is on.
func (c *Client) Enable(ctx context.Context) error {
	_, err := c.mux.Call(ctx, machine.MethodDeviceEnable, nil)
	return err
}

// Disable turns device polling off.
func (c *Client) Disable(ctx context.Context) error {
	_, err := c.mux.Call(ctx, machine.MethodDeviceDisable, nil)
	return err
}

type forwardParams struct {
	DeviceID   string `json:"deviceId"`
	DevicePort int    `json:"devicePort"`
	HostPort   int    `json:"hostPort,omitempty"`
}

// Forward forwards devicePort on the device to hostPort on this machine. A
// hostPort of 0 lets the tool choose; the chosen port is returned.
func (c *Client) Forward(ctx context.Context, deviceID string, devicePort, hostPort int) (int, error) {
	res, err := mux.CallAs[machine.ForwardResult](ctx, c.mux, machine.MethodDeviceForward,
		forwardParams{DeviceID: deviceID, DevicePort: devicePort, HostPort: hostPort})
	if err != nil {
		return 0, err
	}
	return res.HostPort, nil
}

// Unforward removes a port forward created by Forward.
func (c *Client) Unforward(ctx context.Context, deviceID string, devicePort, hostPort int) error {
	_, err := c.mux.Call(ctx, machine.MethodDeviceUnforward,
		forwardParams{DeviceID: deviceID, DevicePort: devicePort, HostPort: hostPort})
	return err
}

// GetEmulators returns the emulators and simulators that can be launched.
func (c *Client) GetEmulators(ctx context.Context) ([]machine.Emulator, error) {
	return mux.CallAs[[]machine.Emulator](ctx, c.mux, machine.MethodEmulatorGetEmulators, nil)
}

// LaunchEmulator boots an emulator. The call returns once the launch has
// been requested; the device appears later as device.added.
func (c *Client) LaunchEmulator(ctx context.Context, emulatorID string, coldBoot bool) error {
	_, err := c.mux.Call(ctx, machine.MethodEmulatorLaunch, map[string]any{
		"emulatorId": emulatorID,
		"coldBoot":   coldBoot,
	})
	return err
}

// CreateEmulator creates an Android emulator. An empty name lets the tool
// pick one.
func (c *Client) CreateEmulator(ctx context.Context, name string) (machine.CreateEmulatorResult, error) {
	var params map[string]string
	if name != "" {
		params = map[string]string{"name": name}
	}
	return mux.CallAs[machine.CreateEmulatorResult](ctx, c.mux, machine.MethodEmulatorCreate, params)
}

// ServeDevTools starts (or reuses) a DevTools server.
func (c *Client) ServeDevTools(ctx context.Context) (machine.DevToolsServer, error) {
	return mux.CallAs[machine.DevToolsServer](ctx, c.mux, machine.MethodDevToolsServe, nil)
}

// Restart hot reloads (full=false) or hot restarts (full=true) an app the
// daemon launched.
func (c *Client) Restart(ctx context.Context, appID string, full bool) (machine.RestartResult, error) {
	return machine.RestartApp(ctx, c.mux, machine.RestartParams{AppID: appID, FullRestart: full, Reason: "manual"})
}

// Detach leaves an app running without the daemon controlling it.
func (c *Client) Detach(ctx context.Context, appID string) error {
	_, err := machine.DetachApp(ctx, c.mux, appID)
	return err
}

// StopApp stops an app the daemon launched.
func (c *Client) StopApp(ctx context.Context, appID string) error {
	_, err := machine.StopApp(ctx, c.mux, appID)
	return err
}

// CallServiceExtension invokes a VM service extension through the tool.
func (c *Client) CallServiceExtension(ctx context.Context, appID, method string, params map[string]any) (json.RawMessage, error) {
	return machine.CallServiceExtension(ctx, c.mux, appID, method, params)
}

// Connected streams daemon.connected events.
func (c *Client) Connected() *mux.Stream[machine.ConnectedEvent] {
	return mux.SubscribeAs[machine.ConnectedEvent](c.mux, machine.EventDaemonConnected)
}

// Logs streams daemon.log events.
func (c *Client) Logs() *mux.Stream[machine.LogEvent] {
	return mux.SubscribeAs[machine.LogEvent](c.mux, machine.EventDaemonLog)
}

// LogMessages streams daemon.logMessage events.
func (c *Client) LogMessages() *mux.Stream[machine.LogMessageEvent] {
	return mux.SubscribeAs[machine.LogMessageEvent](c.mux, machine.EventDaemonLogMessage)
}

// DeviceAdded streams device.added events.
func (c *Client) DeviceAdded() *mux.Stream[machine.Device] {
	return mux.SubscribeAs[machine.Device](c.mux, machine.EventDeviceAdded)
}

// DeviceRemoved streams device.removed events.
func (c *Client) DeviceRemoved() *mux.Stream[machine.Device] {
	return mux.SubscribeAs[machine.Device](c.mux, machine.EventDeviceRemoved)
}

// Events streams every daemon event undecoded.
func (c *Client) Events() *mux.Stream[mux.Event] {
	return c.mux.Subscribe()
}

// Raw streams stdout lines that are not protocol traffic.
func (c *Client) Raw() *mux.Stream[string] {
	return c.mux.Raw()
}

// Stderr streams the daemon's stderr. It returns nil for clients not backed
// by a process.
func (c *Client) Stderr() *mux.Stream[string] {
	if c.stderr == nil {
		return nil
	}
	return c.stderr.Text()
}

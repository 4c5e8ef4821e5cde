package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bazelment/yoloswe/flx/logging"
	"github.com/bazelment/yoloswe/flx/machine"
	"github.com/bazelment/yoloswe/flx/mux"
	"github.com/bazelment/yoloswe/flx/runner"
	"github.com/bazelment/yoloswe/flx/vmservice"
)

const (
	// DefaultStopTimeout bounds the graceful stop in Terminate and Close.
	DefaultStopTimeout = 5 * time.Second

	// DefaultConnectTimeout bounds the VM service connection attempt.
	DefaultConnectTimeout = 10 * time.Second
)

// Launcher starts a run client.
type Launcher func(ctx context.Context, opts runner.Options) (*runner.Client, error)

// Connector opens a VM service client.
type Connector func(ctx context.Context, uri string) (*vmservice.Client, error)

// DeviceSource resolves device ids to devices. The daemon's device list
// satisfies it.
type DeviceSource interface {
	Lookup(id string) (machine.Device, bool)
}

// Config holds manager configuration.
type Config struct {
	Logger         *slog.Logger
	Launcher       Launcher
	Connector      Connector
	Devices        DeviceSource
	Streams        []string       // VM service streams to listen to
	Defaults       runner.Options // applied to every session
	LogLines       int
	StopTimeout    time.Duration
	ConnectTimeout time.Duration
}

// Manager owns the table of running sessions.
type Manager struct {
	ctx      context.Context
	cancel   context.CancelFunc
	sessions map[ID]*session
	events   *mux.Fanout[Event]
	logger   *slog.Logger
	config   Config
	wg       sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
}

// NewManager creates a manager. Unset Config fields get defaults.
func NewManager(config Config) *Manager {
	if config.Launcher == nil {
		config.Launcher = runner.Start
	}
	if config.Connector == nil {
		logger := config.Logger
		config.Connector = func(ctx context.Context, uri string) (*vmservice.Client, error) {
			return vmservice.Connect(ctx, uri, vmservice.WithLogger(logger))
		}
	}
	if config.Streams == nil {
		config.Streams = []string{vmservice.StreamExtension, vmservice.StreamLogging}
	}
	if config.LogLines <= 0 {
		config.LogLines = DefaultLogLines
	}
	if config.StopTimeout <= 0 {
		config.StopTimeout = DefaultStopTimeout
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = DefaultConnectTimeout
	}
	logger := logging.OrDiscard(config.Logger).With("component", "session")

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[ID]*session),
		events:   mux.NewFanout[Event](),
		logger:   logger,
		config:   config,
	}
	return m
}

// Events subscribes to session events. A subscriber that falls more than
// bufSize events behind loses the oldest ones. The returned function
// unsubscribes. The channel is closed when the manager is closed.
func (m *Manager) Events(bufSize int) (<-chan Event, func()) {
	sub := m.events.Subscribe(bufSize)
	return sub.C(), sub.Close
}

func (m *Manager) publish(ev Event) {
	m.events.Publish(ev)
}

// Create launches a session and returns its id without waiting for the
// app to start. ctx is only checked before launching; the session lives
// until it stops, is terminated, or the manager is closed.
func (m *Manager) Create(ctx context.Context, opts Options) (ID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return "", ErrClosed
	}

	runOpts := m.runOptions(opts)
	run, err := m.config.Launcher(m.ctx, runOpts)
	if err != nil {
		return "", fmt.Errorf("failed to launch session: %w", err)
	}

	s := &session{
		id:        ID(uuid.NewString()),
		run:       run,
		logs:      NewLogRing(m.config.LogLines),
		createdAt: time.Now(),
		deviceID:  runOpts.DeviceID,
		mode:      string(runOpts.Mode),
	}
	if m.config.Devices != nil && runOpts.DeviceID != "" {
		if dev, ok := m.config.Devices.Lookup(runOpts.DeviceID); ok {
			s.deviceName = dev.Name
		}
	}
	watchCtx, cancel := context.WithCancel(m.ctx)
	s.cancel = cancel

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		cancel()
		_ = run.Close(context.Background())
		return "", ErrClosed
	}
	m.sessions[s.id] = s
	m.wg.Add(1)
	m.mu.Unlock()

	out := subscribeOutput(run)
	m.logger.Info("session created", "session", s.id, "device", runOpts.DeviceID, "args", run.Args())
	m.publish(Event{Kind: EventCreated, ID: s.id, Info: s.info()})
	go m.watch(watchCtx, s, out)
	return s.id, nil
}

func (m *Manager) runOptions(opts Options) runner.Options {
	out := m.config.Defaults
	if out.Logger == nil {
		out.Logger = m.config.Logger
	}
	if opts.DeviceID != "" {
		out.DeviceID = opts.DeviceID
	}
	if opts.Target != "" {
		out.Target = opts.Target
	}
	if opts.Flavor != "" {
		out.Flavor = opts.Flavor
	}
	if opts.Mode != "" {
		out.Mode = opts.Mode
	}
	if len(opts.ExtraArgs) > 0 {
		out.ExtraArgs = append(append([]string(nil), out.ExtraArgs...), opts.ExtraArgs...)
	}
	if len(opts.DartDefines) > 0 {
		defines := make(map[string]string, len(out.DartDefines)+len(opts.DartDefines))
		for k, v := range out.DartDefines {
			defines[k] = v
		}
		for k, v := range opts.DartDefines {
			defines[k] = v
		}
		out.DartDefines = defines
	}
	return out
}

// Lookup returns the session with id.
func (m *Manager) Lookup(id ID) (*Handle, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	return &Handle{s: s}, nil
}

// List returns every session, newest first.
func (m *Manager) List() []Info {
	m.mu.RLock()
	infos := make([]Info, 0, len(m.sessions))
	for _, s := range m.sessions {
		infos = append(infos, s.info())
	}
	m.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		if !infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].CreatedAt.After(infos[j].CreatedAt)
		}
		return infos[i].ID < infos[j].ID
	})
	return infos
}

// Terminate stops the session gracefully and removes it. Unknown ids and
// repeated calls are no-ops.
func (m *Manager) Terminate(ctx context.Context, id ID) error {
	s := m.detach(id)
	if s == nil {
		return nil
	}
	return m.teardown(ctx, s)
}

// ReloadAll hot reloads, or hot restarts when full is set, every session
// whose app has started. Sessions are reloaded concurrently; the first
// failure is returned.
func (m *Manager) ReloadAll(ctx context.Context, full bool) error {
	m.mu.RLock()
	targets := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		if s.run.State() == runner.StateKnown {
			targets = append(targets, s)
		}
	}
	m.mu.RUnlock()

	var g errgroup.Group
	for _, s := range targets {
		g.Go(func() error {
			var err error
			if full {
				_, err = s.run.Restart(ctx)
			} else {
				_, err = s.run.Reload(ctx)
			}
			if err != nil {
				s.logs.Append(LogLine{Time: time.Now(), Source: SourceFlx, Text: fmt.Sprintf("reload failed: %v", err), Error: true})
				return fmt.Errorf("session %s: %w", s.id.Short(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Close terminates every remaining session concurrently and waits for their
// watchers to exit. Safe to call repeatedly.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	remaining := make([]*session, 0, len(m.sessions))
	for id, s := range m.sessions {
		remaining = append(remaining, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	var g errgroup.Group
	for _, s := range remaining {
		g.Go(func() error { return m.teardown(ctx, s) })
	}
	err := g.Wait()

	m.cancel()
	m.wg.Wait()
	m.events.Close()
	return err
}

// detach removes id from the table and returns its session, or nil if it
// was already gone.
func (m *Manager) detach(id ID) *session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil
	}
	delete(m.sessions, id)
	return s
}

func (m *Manager) teardown(ctx context.Context, s *session) error {
	stopCtx, cancel := mux.WithTimeout(ctx, m.config.StopTimeout)
	defer cancel()

	var errs []error
	if s.run.State() == runner.StateKnown {
		if err := s.run.Stop(stopCtx); err != nil && !errors.Is(err, runner.ErrAppStopped) {
			m.logger.Debug("graceful stop failed", "session", s.id, "error", err)
		}
	}
	s.cancel()
	if vm := s.vmClient(); vm != nil {
		if err := vm.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.run.Close(stopCtx); err != nil {
		errs = append(errs, err)
	}
	m.logger.Info("session terminated", "session", s.id)
	m.publish(Event{Kind: EventRemoved, ID: s.id, Info: s.info()})
	return errors.Join(errs...)
}

// output holds a session's log streams. They are subscribed before the
// watcher starts so lines arriving right after Create are kept.
type output struct {
	logs   *mux.Stream[machine.AppLogEvent]
	raw    *mux.Stream[string]
	stderr *mux.Stream[string]
}

func subscribeOutput(run *runner.Client) output {
	return output{logs: run.Logs(), raw: run.Raw(), stderr: run.Stderr()}
}

func (o output) close() {
	o.logs.Close()
	o.raw.Close()
	if o.stderr != nil {
		o.stderr.Close()
	}
}

// watch follows one session until its app stops or the session is torn
// down.
func (m *Manager) watch(ctx context.Context, s *session, out output) {
	defer m.wg.Done()
	defer out.close()

	logC, rawC := out.logs.C(), out.raw.C()
	var stderrC <-chan string
	if out.stderr != nil {
		stderrC = out.stderr.C()
	}

	connecting := false
	for {
		changed := s.run.Changed()
		st := s.run.Status()
		m.publish(Event{Kind: EventUpdated, ID: s.id, Info: s.info()})

		if st.DebugPort != nil && !connecting {
			connecting = true
			m.wg.Add(1)
			go m.connect(ctx, s, st.DebugPort.WSURI)
		}
		if st.State == runner.StateStopped {
			m.logger.Info("session stopped", "session", s.id, "error", st.StopError)
			if m.detach(s.id) != nil {
				_ = m.teardown(context.Background(), s)
			}
			return
		}

	wait:
		for {
			select {
			case <-ctx.Done():
				return
			case <-changed:
				break wait
			case ev, ok := <-logC:
				if !ok {
					logC = nil
					continue
				}
				m.appendLog(s, LogLine{Time: time.Now(), Source: SourceApp, Text: ev.Log, Error: ev.Error})
			case line, ok := <-rawC:
				if !ok {
					rawC = nil
					continue
				}
				m.appendLog(s, LogLine{Time: time.Now(), Source: SourceBuild, Text: line})
			case line, ok := <-stderrC:
				if !ok {
					stderrC = nil
					continue
				}
				m.appendLog(s, LogLine{Time: time.Now(), Source: SourceStderr, Text: line, Error: true})
			}
		}
	}
}

func (m *Manager) appendLog(s *session, line LogLine) {
	s.logs.Append(line)
	m.publish(Event{Kind: EventLog, ID: s.id, Line: line})
}

// connect attaches the VM service client once the debug port is known and
// follows its event streams.
func (m *Manager) connect(ctx context.Context, s *session, uri string) {
	defer m.wg.Done()

	connCtx, cancel := context.WithTimeout(ctx, m.config.ConnectTimeout)
	vm, err := m.config.Connector(connCtx, uri)
	cancel()
	if err != nil {
		m.logger.Warn("failed to connect to VM service", "session", s.id, "uri", uri, "error", err)
		m.appendLog(s, LogLine{Time: time.Now(), Source: SourceFlx, Text: fmt.Sprintf("VM service unavailable: %v", err), Error: true})
		return
	}
	// connect owns vm: teardown may run while the streams below are being
	// enabled, before setVM, and would then have nothing to close.
	defer vm.Close()
	if ctx.Err() != nil {
		return
	}

	events := vm.Events(m.config.Streams...)
	defer events.Close()
	for _, stream := range m.config.Streams {
		listenCtx, cancel := context.WithTimeout(ctx, m.config.ConnectTimeout)
		err := vm.StreamListen(listenCtx, stream)
		cancel()
		if err != nil {
			m.logger.Debug("streamListen failed", "session", s.id, "stream", stream, "error", err)
		}
	}
	if ctx.Err() != nil {
		return
	}
	s.setVM(vm, uri)
	m.logger.Info("VM service connected", "session", s.id, "uri", uri)
	m.publish(Event{Kind: EventUpdated, ID: s.id, Info: s.info()})

	for {
		se, err := events.Next(ctx)
		if err != nil {
			if ctx.Err() == nil {
				m.logger.Info("VM service disconnected", "session", s.id, "error", err)
				s.setVM(nil, uri)
				m.publish(Event{Kind: EventUpdated, ID: s.id, Info: s.info()})
			}
			return
		}
		switch se.StreamID {
		case vmservice.StreamExtension:
			if se.Event.ExtensionKind == "Flutter.Frame" {
				s.frames.Add(1)
			}
		case vmservice.StreamLogging:
			if text, ok := logRecordText(se.Event.LogRecord); ok {
				m.appendLog(s, LogLine{Time: time.Now(), Source: SourceVM, Text: text})
			}
		}
	}
}

type logRecord struct {
	Message struct {
		ValueAsString string `json:"valueAsString"`
	} `json:"message"`
}

func logRecordText(data json.RawMessage) (string, bool) {
	if len(data) == 0 {
		return "", false
	}
	var rec logRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return "", false
	}
	return rec.Message.ValueAsString, rec.Message.ValueAsString != ""
}

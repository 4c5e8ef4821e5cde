// Package app provides the dashboard TUI: a session list, the selected
// session's log, and key bindings that drive the running apps.
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/bazelment/yoloswe/flx/logging"
	"github.com/bazelment/yoloswe/flx/machine"
	"github.com/bazelment/yoloswe/flx/session"
)

// DefaultCallTimeout bounds every request made from a key press.
const DefaultCallTimeout = 30 * time.Second

// DeviceLister supplies the devices new sessions can target.
type DeviceLister interface {
	Snapshot() []machine.Device
}

// Config configures the dashboard.
type Config struct {
	Manager     *session.Manager
	Devices     DeviceLister // optional
	Logger      *slog.Logger
	Project     string
	Defaults    session.Options // options for sessions started with n
	CallTimeout time.Duration
}

// Model is the root dashboard model.
type Model struct {
	ctx         context.Context
	manager     *session.Manager
	devices     DeviceLister
	events      <-chan session.Event
	toasts      *ToastManager
	logger      *slog.Logger
	project     string
	defaults    session.Options
	sessions    []session.Info
	deviceList  []machine.Device
	selected    session.ID
	keys        KeyMap
	log         viewport.Model
	deviceIdx   int
	width       int
	height      int
	callTimeout time.Duration
	follow      bool
	showHelp    bool
	closed      bool
}

// NewModel creates the dashboard model. It subscribes to the manager's
// events; the subscription ends when the manager is closed.
func NewModel(ctx context.Context, config Config) Model {
	events, _ := config.Manager.Events(256)
	callTimeout := config.CallTimeout
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}
	m := Model{
		ctx:         ctx,
		manager:     config.Manager,
		devices:     config.Devices,
		events:      events,
		toasts:      NewToastManager(),
		logger:      logging.OrDiscard(config.Logger).With("component", "app"),
		project:     config.Project,
		defaults:    config.Defaults,
		keys:        DefaultKeyMap,
		log:         viewport.New(0, 0),
		callTimeout: callTimeout,
		follow:      true,
	}
	m.refreshDevices()
	return m
}

// Run shows the dashboard until the user quits or ctx is done.
func Run(ctx context.Context, config Config) error {
	p := tea.NewProgram(NewModel(ctx, config), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}

// Init starts listening for session events and the refresh tick.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.listenForSessionEvents(), tickCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg{time: t}
	})
}

// listenForSessionEvents waits for the next manager event.
func (m Model) listenForSessionEvents() tea.Cmd {
	events := m.events
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return managerClosedMsg{}
		}
		return sessionEventMsg{event: ev}
	}
}

func (m *Model) refreshDevices() {
	if m.devices == nil {
		return
	}
	m.deviceList = m.devices.Snapshot()
	if m.deviceIdx >= len(m.deviceList) {
		m.deviceIdx = 0
	}
	// Prefer the configured device the first time it shows up.
	if m.defaults.DeviceID != "" {
		for i, d := range m.deviceList {
			if d.ID == m.defaults.DeviceID && m.deviceIdx == 0 {
				m.deviceIdx = i
			}
		}
	}
}

// targetDevice returns the device id for the next new session.
func (m Model) targetDevice() (id, name string) {
	if len(m.deviceList) == 0 {
		return m.defaults.DeviceID, m.defaults.DeviceID
	}
	d := m.deviceList[m.deviceIdx]
	return d.ID, d.Name
}

// selectedInfo returns the selected session, or nil.
func (m Model) selectedInfo() *session.Info {
	for i := range m.sessions {
		if m.sessions[i].ID == m.selected {
			return &m.sessions[i]
		}
	}
	return nil
}

func (m Model) selectedIndex() int {
	for i := range m.sessions {
		if m.sessions[i].ID == m.selected {
			return i
		}
	}
	return -1
}

// refreshSessions reloads the session list and keeps the selection valid.
func (m *Model) refreshSessions() {
	m.sessions = m.manager.List()
	if m.selectedIndex() >= 0 {
		return
	}
	if len(m.sessions) > 0 {
		m.selected = m.sessions[0].ID
	} else {
		m.selected = ""
	}
	m.refreshLog()
}

// refreshLog renders the selected session's log into the viewport.
func (m *Model) refreshLog() {
	if m.selected == "" {
		m.log.SetContent("")
		return
	}
	h, err := m.manager.Lookup(m.selected)
	if err != nil {
		return
	}
	m.log.SetContent(renderLog(h.Logs(), m.log.Width))
	if m.follow {
		m.log.GotoBottom()
	}
}

func (m Model) withTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(m.ctx, m.callTimeout)
}

// Message types
type (
	sessionEventMsg  struct{ event session.Event }
	managerClosedMsg struct{}
	tickMsg          struct{ time time.Time }
	// actionDoneMsg reports the outcome of a key-triggered request.
	actionDoneMsg struct {
		err     error
		message string
	}
)

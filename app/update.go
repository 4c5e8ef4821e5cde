package app

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/bazelment/yoloswe/flx/runner"
	"github.com/bazelment/yoloswe/flx/session"
	"github.com/bazelment/yoloswe/flx/vmservice"
)

// Layout constants shared by Update and View.
const (
	listWidth    = 38
	chromeHeight = 4 // top bar, list header, status bar, border
)

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.showHelp {
			if key.Matches(msg, m.keys.Help, m.keys.Quit) || msg.Type == tea.KeyEsc {
				m.showHelp = false
			}
			return m, nil
		}
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.log.Width = max(m.width-listWidth-1, 10)
		m.log.Height = max(m.height-chromeHeight-m.toasts.Count(), 1)
		m.refreshLog()
		return m, nil

	case sessionEventMsg:
		m.refreshSessions()
		ev := msg.event
		switch ev.Kind {
		case session.EventLog:
			if ev.ID == m.selected {
				m.refreshLog()
			}
		case session.EventRemoved:
			name := ev.Info.DeviceName
			if name == "" {
				name = ev.ID.Short()
			}
			if ev.Info.StopError != "" {
				m.toasts.Add(fmt.Sprintf("%s stopped: %s", name, ev.Info.StopError), ToastError)
			} else {
				m.toasts.Add(name+" stopped", ToastInfo)
			}
		}
		return m, m.listenForSessionEvents()

	case managerClosedMsg:
		m.closed = true
		return m, tea.Quit

	case tickMsg:
		m.toasts.Tick(msg.time)
		m.refreshDevices()
		m.refreshSessions()
		return m, tickCmd()

	case actionDoneMsg:
		if msg.err != nil {
			m.logger.Debug("action failed", "error", msg.err)
			m.toasts.Add(msg.err.Error(), ToastError)
		} else if msg.message != "" {
			m.toasts.Add(msg.message, ToastSuccess)
		}
		m.refreshSessions()
		return m, nil
	}

	var cmd tea.Cmd
	m.log, cmd = m.log.Update(msg)
	return m, cmd
}

func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		return m, nil
	case key.Matches(msg, m.keys.Up):
		m.moveSelection(-1)
		return m, nil
	case key.Matches(msg, m.keys.Down):
		m.moveSelection(1)
		return m, nil
	case key.Matches(msg, m.keys.PageUp):
		m.log.SetYOffset(m.log.YOffset - m.log.Height/2)
		m.follow = false
		return m, nil
	case key.Matches(msg, m.keys.PageDown):
		m.log.SetYOffset(m.log.YOffset + m.log.Height/2)
		m.follow = m.log.AtBottom()
		return m, nil
	case key.Matches(msg, m.keys.Follow):
		m.follow = true
		m.log.GotoBottom()
		return m, nil
	case key.Matches(msg, m.keys.NextDevice):
		if len(m.deviceList) > 0 {
			m.deviceIdx = (m.deviceIdx + 1) % len(m.deviceList)
		}
		return m, nil
	case key.Matches(msg, m.keys.New):
		return m, m.newSession()
	case key.Matches(msg, m.keys.Reload):
		return m, m.reload(false)
	case key.Matches(msg, m.keys.Restart):
		return m, m.reload(true)
	case key.Matches(msg, m.keys.ReloadAll):
		return m, m.reloadAll()
	case key.Matches(msg, m.keys.Stop):
		return m, m.stop()
	case key.Matches(msg, m.keys.DebugPaint):
		return m, m.flip(vmservice.ToggleDebugPaint, "debug paint")
	case key.Matches(msg, m.keys.Overlay):
		return m, m.flip(vmservice.TogglePerformanceOverlay, "performance overlay")
	case key.Matches(msg, m.keys.Slow):
		return m, m.slowAnimations()
	}
	return m, nil
}

func (m *Model) moveSelection(delta int) {
	if len(m.sessions) == 0 {
		return
	}
	i := m.selectedIndex() + delta
	i = max(0, min(i, len(m.sessions)-1))
	if m.sessions[i].ID != m.selected {
		m.selected = m.sessions[i].ID
		m.follow = true
		m.refreshLog()
	}
}

func (m Model) newSession() tea.Cmd {
	opts := m.defaults
	deviceID, name := m.targetDevice()
	opts.DeviceID = deviceID
	return func() tea.Msg {
		ctx, cancel := m.withTimeout()
		defer cancel()
		id, err := m.manager.Create(ctx, opts)
		if err != nil {
			return actionDoneMsg{err: err}
		}
		if name == "" {
			name = "default device"
		}
		return actionDoneMsg{message: fmt.Sprintf("launching %s on %s", id.Short(), name)}
	}
}

// handle returns the selected session or an action error message.
func (m Model) handle() (*session.Handle, tea.Msg) {
	if m.selected == "" {
		return nil, actionDoneMsg{err: fmt.Errorf("no session selected")}
	}
	h, err := m.manager.Lookup(m.selected)
	if err != nil {
		return nil, actionDoneMsg{err: err}
	}
	return h, nil
}

func (m Model) reload(full bool) tea.Cmd {
	return func() tea.Msg {
		h, errMsg := m.handle()
		if h == nil {
			return errMsg
		}
		ctx, cancel := m.withTimeout()
		defer cancel()

		op, reload := "reloaded", h.Runner().Reload
		if full {
			op, reload = "restarted", h.Runner().Restart
		}
		res, err := reload(ctx)
		if err != nil {
			return actionDoneMsg{err: err}
		}
		text := op
		if res.Message != "" {
			text = fmt.Sprintf("%s: %s", op, res.Message)
		}
		return actionDoneMsg{message: text}
	}
}

func (m Model) reloadAll() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := m.withTimeout()
		defer cancel()
		if err := m.manager.ReloadAll(ctx, false); err != nil {
			return actionDoneMsg{err: err}
		}
		return actionDoneMsg{message: "reloaded all sessions"}
	}
}

func (m Model) stop() tea.Cmd {
	id := m.selected
	return func() tea.Msg {
		if id == "" {
			return actionDoneMsg{err: fmt.Errorf("no session selected")}
		}
		ctx, cancel := m.withTimeout()
		defer cancel()
		if err := m.manager.Terminate(ctx, id); err != nil {
			return actionDoneMsg{err: err}
		}
		return actionDoneMsg{}
	}
}

// extensions returns the selected session's extension facade and UI
// isolate, or an action error message.
func (m Model) extensions() (*vmservice.Extensions, string, tea.Msg) {
	h, errMsg := m.handle()
	if h == nil {
		return nil, "", errMsg
	}
	ext := h.Extensions()
	if ext == nil {
		if h.Info().State == runner.StateStopped {
			return nil, "", actionDoneMsg{err: runner.ErrAppStopped}
		}
		return nil, "", actionDoneMsg{err: fmt.Errorf("VM service not connected yet")}
	}
	ctx, cancel := m.withTimeout()
	defer cancel()
	isolate, err := ext.UIIsolate(ctx)
	if err != nil {
		return nil, "", actionDoneMsg{err: err}
	}
	return ext, isolate, nil
}

func (m Model) flip(t vmservice.Toggle, label string) tea.Cmd {
	return func() tea.Msg {
		ext, isolate, errMsg := m.extensions()
		if ext == nil {
			return errMsg
		}
		ctx, cancel := m.withTimeout()
		defer cancel()
		on, err := ext.Flip(ctx, isolate, t)
		if err != nil {
			return actionDoneMsg{err: err}
		}
		return actionDoneMsg{message: fmt.Sprintf("%s %s", label, onOff(on))}
	}
}

func (m Model) slowAnimations() tea.Cmd {
	return func() tea.Msg {
		ext, isolate, errMsg := m.extensions()
		if ext == nil {
			return errMsg
		}
		ctx, cancel := m.withTimeout()
		defer cancel()
		dilation, err := ext.TimeDilation(ctx, isolate)
		if err != nil {
			return actionDoneMsg{err: err}
		}
		on, err := ext.SlowAnimations(ctx, isolate, dilation == 1.0)
		if err != nil {
			return actionDoneMsg{err: err}
		}
		return actionDoneMsg{message: "slow animations " + onOff(on)}
	}
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

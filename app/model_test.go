package app

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bazelment/yoloswe/flx/internal/testutil"
	"github.com/bazelment/yoloswe/flx/machine"
	"github.com/bazelment/yoloswe/flx/runner"
	"github.com/bazelment/yoloswe/flx/session"
)

type staticDevices []machine.Device

func (d staticDevices) Snapshot() []machine.Device { return d }

type launches struct {
	opts  []runner.Options
	conns []*testutil.Conn
	mu    sync.Mutex
}

func (l *launches) launch(_ context.Context, opts runner.Options) (*runner.Client, error) {
	conn := testutil.NewConn()
	l.mu.Lock()
	l.opts = append(l.opts, opts)
	l.conns = append(l.conns, conn)
	l.mu.Unlock()
	opts.StopTimeout = 50 * time.Millisecond
	return runner.NewClient(conn, opts), nil
}

func newTestModel(t *testing.T) (Model, *launches) {
	t.Helper()
	l := &launches{}
	manager := session.NewManager(session.Config{
		Launcher:    l.launch,
		StopTimeout: 50 * time.Millisecond,
	})
	t.Cleanup(func() { manager.Close(context.Background()) })

	m := NewModel(context.Background(), Config{
		Manager: manager,
		Devices: staticDevices{
			{ID: "macos", Name: "macOS"},
			{ID: "chrome", Name: "Chrome"},
		},
		Project:     "demo",
		CallTimeout: time.Second,
	})
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	return updated.(Model), l
}

func keyPress(s string) tea.KeyMsg {
	if s == "tab" {
		return tea.KeyMsg{Type: tea.KeyTab}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// press sends a key and runs the resulting command once, feeding its
// message back into the model.
func press(t *testing.T, m Model, s string) Model {
	t.Helper()
	updated, cmd := m.Update(keyPress(s))
	m = updated.(Model)
	if cmd != nil {
		if msg := cmd(); msg != nil {
			updated, _ = m.Update(msg)
			m = updated.(Model)
		}
	}
	return m
}

func TestModel_EmptyView(t *testing.T) {
	m, _ := newTestModel(t)

	view := m.View()
	assert.Contains(t, view, "No sessions.")
	assert.Contains(t, view, "target: macOS")
	assert.Contains(t, view, "0 session(s)")
	assert.Contains(t, view, "[n]new")
}

func TestModel_LoadingBeforeSize(t *testing.T) {
	l := &launches{}
	manager := session.NewManager(session.Config{Launcher: l.launch})
	defer manager.Close(context.Background())

	m := NewModel(context.Background(), Config{Manager: manager})
	assert.Equal(t, "Loading...", m.View())
}

func TestModel_NewSessionUsesTargetDevice(t *testing.T) {
	m, l := newTestModel(t)

	m = press(t, m, "tab")
	assert.Contains(t, m.View(), "target: Chrome")

	m = press(t, m, "n")
	require.Len(t, l.opts, 1)
	assert.Equal(t, "chrome", l.opts[0].DeviceID)
	require.Len(t, m.sessions, 1)
	assert.Equal(t, m.sessions[0].ID, m.selected)
	assert.Equal(t, 1, m.toasts.Count())
	assert.Contains(t, m.View(), "1 session(s)")
}

func TestModel_ReloadWithoutSessionReportsError(t *testing.T) {
	m, _ := newTestModel(t)

	m = press(t, m, "r")
	require.Equal(t, 1, m.toasts.Count())
	assert.Equal(t, ToastError, m.toasts.toasts[0].Level)
	assert.Contains(t, m.toasts.toasts[0].Message, "no session selected")
}

func TestModel_ReloadBeforeAppStartFails(t *testing.T) {
	m, l := newTestModel(t)
	m = press(t, m, "n")

	m = press(t, m, "r")
	require.Equal(t, 2, m.toasts.Count())
	assert.Equal(t, ToastError, m.toasts.toasts[1].Level)
	assert.Zero(t, l.conns[0].BytesWritten())
}

func TestModel_StopRemovesSession(t *testing.T) {
	m, l := newTestModel(t)
	m = press(t, m, "n")
	require.Len(t, m.sessions, 1)

	m = press(t, m, "s")
	assert.Empty(t, m.sessions)
	assert.Empty(t, m.selected)
	assert.True(t, l.conns[0].Closed())
}

func TestModel_SelectionMoves(t *testing.T) {
	m, _ := newTestModel(t)
	m = press(t, m, "n")
	time.Sleep(2 * time.Millisecond)
	m = press(t, m, "n")
	require.Len(t, m.sessions, 2)

	// Newest first; the first created session stays selected.
	first := m.selected
	assert.Equal(t, m.sessions[1].ID, first)

	m = press(t, m, "k")
	assert.Equal(t, m.sessions[0].ID, m.selected)
	m = press(t, m, "k")
	assert.Equal(t, m.sessions[0].ID, m.selected)
	m = press(t, m, "j")
	assert.Equal(t, first, m.selected)
}

func TestModel_HelpOverlay(t *testing.T) {
	m, _ := newTestModel(t)

	m = press(t, m, "?")
	assert.True(t, m.showHelp)
	view := m.View()
	assert.Contains(t, view, "Sessions")
	assert.Contains(t, view, "reload all")

	// Other keys are swallowed while help is shown.
	m = press(t, m, "n")
	assert.True(t, m.showHelp)
	m = press(t, m, "?")
	assert.False(t, m.showHelp)
}

func TestModel_QuitKey(t *testing.T) {
	m, _ := newTestModel(t)
	_, cmd := m.Update(keyPress("q"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestFormatLogLine(t *testing.T) {
	line := session.LogLine{
		Time: time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC),
		Text: strings.Repeat("x", 100) + "\n",
	}
	out := formatLogLine(line, 40)
	assert.Contains(t, out, "15:04:05")
	assert.Contains(t, out, "…")
	assert.NotContains(t, out, strings.Repeat("x", 40))
}

func TestToastManager(t *testing.T) {
	tm := NewToastManager()
	for _, msg := range []string{"a", "b", "c", "d"} {
		tm.Add(msg, ToastInfo)
	}
	require.Equal(t, maxToasts, tm.Count())
	assert.Equal(t, "b", tm.toasts[0].Message)
	assert.Contains(t, tm.View(40), "d")

	assert.False(t, tm.Tick(time.Now()))
	assert.True(t, tm.Tick(time.Now().Add(time.Minute)))
	assert.Zero(t, tm.Count())
	assert.Empty(t, tm.View(40))
}

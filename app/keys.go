package app

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the dashboard key bindings.
type KeyMap struct {
	Up         key.Binding
	Down       key.Binding
	PageUp     key.Binding
	PageDown   key.Binding
	Follow     key.Binding
	NextDevice key.Binding
	New        key.Binding
	Reload     key.Binding
	Restart    key.Binding
	ReloadAll  key.Binding
	Stop       key.Binding
	DebugPaint key.Binding
	Overlay    key.Binding
	Slow       key.Binding
	Help       key.Binding
	Quit       key.Binding
}

// DefaultKeyMap is the built-in key binding set.
var DefaultKeyMap = KeyMap{
	Up: key.NewBinding(
		key.WithKeys("k", "up"),
		key.WithHelp("↑", "prev"),
	),
	Down: key.NewBinding(
		key.WithKeys("j", "down"),
		key.WithHelp("↓", "next"),
	),
	PageUp: key.NewBinding(
		key.WithKeys("pgup", "ctrl+u"),
		key.WithHelp("PgUp", "scroll up"),
	),
	PageDown: key.NewBinding(
		key.WithKeys("pgdown", "ctrl+d"),
		key.WithHelp("PgDn", "scroll down"),
	),
	Follow: key.NewBinding(
		key.WithKeys("f", "end"),
		key.WithHelp("f", "follow"),
	),
	NextDevice: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("Tab", "device"),
	),
	New: key.NewBinding(
		key.WithKeys("n"),
		key.WithHelp("n", "new"),
	),
	Reload: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "reload"),
	),
	Restart: key.NewBinding(
		key.WithKeys("R"),
		key.WithHelp("R", "restart"),
	),
	ReloadAll: key.NewBinding(
		key.WithKeys("a"),
		key.WithHelp("a", "reload all"),
	),
	Stop: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "stop"),
	),
	DebugPaint: key.NewBinding(
		key.WithKeys("p"),
		key.WithHelp("p", "debug paint"),
	),
	Overlay: key.NewBinding(
		key.WithKeys("o"),
		key.WithHelp("o", "perf overlay"),
	),
	Slow: key.NewBinding(
		key.WithKeys("S"),
		key.WithHelp("S", "slow animations"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "help"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// shortHelp is shown in the status bar.
func (k KeyMap) shortHelp() []key.Binding {
	return []key.Binding{k.New, k.Reload, k.Restart, k.Stop, k.NextDevice, k.Help, k.Quit}
}

// fullHelp is shown in the help overlay, grouped by section.
func (k KeyMap) fullHelp() []helpSection {
	return []helpSection{
		{Title: "Sessions", Bindings: []key.Binding{k.Up, k.Down, k.NextDevice, k.New, k.Stop}},
		{Title: "Code", Bindings: []key.Binding{k.Reload, k.Restart, k.ReloadAll}},
		{Title: "Debug", Bindings: []key.Binding{k.DebugPaint, k.Overlay, k.Slow}},
		{Title: "Log", Bindings: []key.Binding{k.PageUp, k.PageDown, k.Follow}},
		{Title: "General", Bindings: []key.Binding{k.Help, k.Quit}},
	}
}

type helpSection struct {
	Title    string
	Bindings []key.Binding
}

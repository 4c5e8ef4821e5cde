package app

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/bazelment/yoloswe/flx/session"
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12"))

	selectedStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("240")).
			Foreground(lipgloss.Color("15"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("242"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9"))

	topBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("252")).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("242"))

	runningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	pendingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	stoppedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	listBorderStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, true, false, false).
			BorderForeground(lipgloss.Color("240"))

	helpBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("12")).
			Padding(1, 2)

	helpKeyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("14")).
			Width(8)

	toastSuccessStyle = lipgloss.NewStyle().
				Background(lipgloss.Color("22")).
				Foreground(lipgloss.Color("15"))

	toastInfoStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("24")).
			Foreground(lipgloss.Color("15"))

	toastErrorStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("52")).
			Foreground(lipgloss.Color("15"))
)

// View renders the model.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}
	if m.showHelp {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, m.renderHelp())
	}

	bodyHeight := max(m.height-2-m.toasts.Count(), 1)
	list := listBorderStyle.Height(bodyHeight).Render(m.renderSessionList(listWidth-1, bodyHeight))
	body := lipgloss.JoinHorizontal(lipgloss.Top, list, m.renderLogPane(bodyHeight))

	parts := []string{m.renderTopBar(), body}
	if toasts := m.toasts.View(m.width); toasts != "" {
		parts = append(parts, toasts)
	}
	parts = append(parts, m.renderStatusBar())
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

// renderTopBar shows the project, the device new sessions go to, and the
// session count.
func (m Model) renderTopBar() string {
	left := titleStyle.Render("flx")
	if m.project != "" {
		left += " " + dimStyle.Render(m.project)
	}
	_, device := m.targetDevice()
	if device == "" {
		device = "default device"
	}
	left += "  target: " + device

	right := fmt.Sprintf("%d session(s)", len(m.sessions))
	gap := max(m.width-lipgloss.Width(left)-lipgloss.Width(right)-2, 1)
	return topBarStyle.Width(m.width).Render(left + strings.Repeat(" ", gap) + right)
}

func (m Model) renderSessionList(width, height int) string {
	if len(m.sessions) == 0 {
		return lipgloss.NewStyle().Width(width).Render(
			dimStyle.Render("No sessions.\nPress n to launch\nthe app."))
	}
	lines := make([]string, 0, len(m.sessions)*2)
	for _, info := range m.sessions {
		row, detail := sessionRow(info, width)
		if info.ID == m.selected {
			row = selectedStyle.Width(width).Render(row)
		}
		lines = append(lines, row, dimStyle.Render(detail))
		if len(lines) >= height {
			break
		}
	}
	return lipgloss.NewStyle().Width(width).Render(strings.Join(lines, "\n"))
}

// sessionRow renders the two lines of one session in the list.
func sessionRow(info session.Info, width int) (row, detail string) {
	name := info.DeviceName
	if name == "" {
		name = info.DeviceID
	}
	if name == "" {
		name = info.ID.Short()
	}
	row = phaseIcon(info.Phase()) + " " + runewidth.Truncate(name, width-2, "…")

	detail = "  " + info.Phase()
	if info.Mode != "" {
		detail += " · " + info.Mode
	}
	if info.Progress != "" {
		detail += " · " + info.Progress
	} else if info.VMConnected {
		detail += fmt.Sprintf(" · %d frames", info.Frames)
	}
	return row, runewidth.Truncate(detail, width, "…")
}

func phaseIcon(phase string) string {
	switch phase {
	case "running":
		return runningStyle.Render("●")
	case "starting", "launching":
		return pendingStyle.Render("○")
	case "failed":
		return errorStyle.Render("✗")
	default:
		return stoppedStyle.Render("◌")
	}
}

func (m Model) renderLogPane(height int) string {
	info := m.selectedInfo()
	if info == nil {
		return ""
	}
	header := info.ID.Short()
	if info.AppID != "" {
		header += "  app " + info.AppID
	}
	if info.WebLaunchURL != "" {
		header += "  " + info.WebLaunchURL
	}
	if !m.follow {
		header += "  [paused, f to follow]"
	}
	header = titleStyle.Render(runewidth.Truncate(header, m.log.Width, "…"))
	m.log.Height = max(height-1, 1)
	return lipgloss.JoinVertical(lipgloss.Left, header, m.log.View())
}

// renderLog formats log lines for a pane of the given width.
func renderLog(lines []session.LogLine, width int) string {
	var b strings.Builder
	for i, l := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(formatLogLine(l, width))
	}
	return b.String()
}

func formatLogLine(l session.LogLine, width int) string {
	prefix := l.Time.Format("15:04:05") + " "
	text := strings.TrimRight(l.Text, "\r\n")
	if width > 0 {
		text = runewidth.Truncate(text, max(width-len(prefix), 1), "…")
	}
	switch {
	case l.Error:
		text = errorStyle.Render(text)
	case l.Source == session.SourceBuild || l.Source == session.SourceFlx:
		text = dimStyle.Render(text)
	}
	return dimStyle.Render(prefix) + text
}

func (m Model) renderStatusBar() string {
	hints := make([]string, 0, len(m.keys.shortHelp()))
	for _, b := range m.keys.shortHelp() {
		h := b.Help()
		hints = append(hints, fmt.Sprintf("[%s]%s", h.Key, h.Desc))
	}
	bar := runewidth.Truncate(strings.Join(hints, "  "), max(m.width, 1), "…")
	return statusBarStyle.Width(m.width).Render(bar)
}

func (m Model) renderHelp() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Keys"))
	for _, section := range m.keys.fullHelp() {
		b.WriteString("\n\n" + dimStyle.Render(section.Title))
		for _, binding := range section.Bindings {
			b.WriteString("\n" + helpLine(binding))
		}
	}
	return helpBoxStyle.Render(b.String())
}

func helpLine(b key.Binding) string {
	h := b.Help()
	return helpKeyStyle.Render(h.Key) + h.Desc
}

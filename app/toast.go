package app

import (
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
)

// ToastLevel determines the notification style and auto-dismiss duration.
type ToastLevel int

const (
	ToastSuccess ToastLevel = iota
	ToastInfo
	ToastError
)

// Toast is a single transient notification.
type Toast struct {
	CreatedAt time.Time
	Message   string
	Duration  time.Duration
	Level     ToastLevel
}

// IsExpired returns true if the toast has exceeded its duration.
func (t Toast) IsExpired(now time.Time) bool {
	return now.After(t.CreatedAt.Add(t.Duration))
}

const maxToasts = 3

// ToastManager holds the visible notification stack.
type ToastManager struct {
	toasts []Toast
}

// NewToastManager creates an empty stack.
func NewToastManager() *ToastManager {
	return &ToastManager{}
}

// Add pushes a notification. The oldest is evicted past maxToasts.
func (tm *ToastManager) Add(message string, level ToastLevel) {
	duration := 3 * time.Second
	switch level {
	case ToastInfo:
		duration = 4 * time.Second
	case ToastError:
		duration = 6 * time.Second
	}
	tm.toasts = append(tm.toasts, Toast{
		Message:   message,
		Level:     level,
		CreatedAt: time.Now(),
		Duration:  duration,
	})
	if len(tm.toasts) > maxToasts {
		tm.toasts = tm.toasts[len(tm.toasts)-maxToasts:]
	}
}

// Tick removes expired toasts and reports whether any were removed.
func (tm *ToastManager) Tick(now time.Time) bool {
	remaining := tm.toasts[:0]
	for _, t := range tm.toasts {
		if !t.IsExpired(now) {
			remaining = append(remaining, t)
		}
	}
	changed := len(remaining) != len(tm.toasts)
	tm.toasts = remaining
	return changed
}

// Count returns the number of active toasts.
func (tm *ToastManager) Count() int {
	return len(tm.toasts)
}

// View renders the toasts one per line, right-aligned to width.
func (tm *ToastManager) View(width int) string {
	if len(tm.toasts) == 0 {
		return ""
	}
	lines := make([]string, 0, len(tm.toasts))
	for _, t := range tm.toasts {
		icon, style := " ✓ ", toastSuccessStyle
		switch t.Level {
		case ToastInfo:
			icon, style = " i ", toastInfoStyle
		case ToastError:
			icon, style = " ! ", toastErrorStyle
		}
		content := runewidth.Truncate(icon+t.Message+" ", max(width-2, 8), "…")
		pad := max(width-runewidth.StringWidth(content), 0)
		lines = append(lines, strings.Repeat(" ", pad)+style.Render(content))
	}
	return strings.Join(lines, "\n")
}

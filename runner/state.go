package runner

import (
	"context"
	"sync"

	"github.com/bazelment/yoloswe/flx/machine"
)

// State is the app lifecycle state as seen by the run client.
type State int

const (
	// StateUnknown: no app.start yet, the app id is not known.
	StateUnknown State = iota
	// StateKnown: app.start received; control calls are accepted.
	StateKnown
	// StateStopped: app.stop received or the process exited. Terminal.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateKnown:
		return "known"
	case StateStopped:
		return "stopped"
	default:
		return "invalid"
	}
}

// Status is a snapshot of what the tool has reported about the app.
type Status struct {
	DebugPort    *machine.AppDebugPortEvent
	Progress     *machine.AppProgressEvent
	AppID        string
	DeviceID     string
	Mode         string
	WebLaunchURL string
	StopError    string
	State        State
	Started      bool
}

// lifecycle holds Status and broadcasts every change by closing and
// replacing the changed channel.
type lifecycle struct {
	changed chan struct{}
	stopped chan struct{}
	status  Status
	mu      sync.RWMutex
}

func newLifecycle() *lifecycle {
	return &lifecycle{
		changed: make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

func (l *lifecycle) current() (Status, <-chan struct{}) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.status, l.changed
}

// update applies fn and broadcasts if it reports a change. Nothing changes
// once the app is stopped.
func (l *lifecycle) update(fn func(*Status) bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.status.State == StateStopped {
		return
	}
	if fn(&l.status) {
		close(l.changed)
		l.changed = make(chan struct{})
		if l.status.State == StateStopped {
			close(l.stopped)
		}
	}
}

func (l *lifecycle) onStart(ev machine.AppStartEvent) {
	l.update(func(s *Status) bool {
		if s.State != StateUnknown {
			return false
		}
		s.State = StateKnown
		s.AppID = ev.AppID
		s.DeviceID = ev.DeviceID
		s.Mode = ev.Mode
		return true
	})
}

func (l *lifecycle) onStarted(ev machine.AppStartedEvent) {
	l.update(func(s *Status) bool {
		if s.AppID != ev.AppID || s.Started {
			return false
		}
		s.Started = true
		return true
	})
}

func (l *lifecycle) onDebugPort(ev machine.AppDebugPortEvent) {
	l.update(func(s *Status) bool {
		if s.AppID != ev.AppID {
			return false
		}
		s.DebugPort = &ev
		return true
	})
}

func (l *lifecycle) onProgress(ev machine.AppProgressEvent) {
	l.update(func(s *Status) bool {
		if s.AppID != "" && ev.AppID != "" && s.AppID != ev.AppID {
			return false
		}
		s.Progress = &ev
		return true
	})
}

func (l *lifecycle) onWebLaunchURL(ev machine.AppWebLaunchURLEvent) {
	l.update(func(s *Status) bool {
		s.WebLaunchURL = ev.URL
		return true
	})
}

// onStop handles app.stop. A stop for another app id is ignored; before
// app.start any stop ends the lifecycle, since flutter run drives one app.
func (l *lifecycle) onStop(ev machine.AppStopEvent) {
	l.update(func(s *Status) bool {
		if s.State == StateKnown && ev.AppID != s.AppID {
			return false
		}
		s.State = StateStopped
		s.StopError = ev.Error
		return true
	})
}

func (l *lifecycle) onExit(reason string) {
	l.update(func(s *Status) bool {
		s.State = StateStopped
		if s.StopError == "" {
			s.StopError = reason
		}
		return true
	})
}

// wait blocks until cond holds, the app stops, or ctx is done.
func (l *lifecycle) wait(ctx context.Context, cond func(Status) bool) (Status, error) {
	for {
		st, changed := l.current()
		if cond(st) {
			return st, nil
		}
		if st.State == StateStopped {
			return st, ErrAppStopped
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return st, ctx.Err()
		}
	}
}

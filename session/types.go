// Package session runs several apps side by side. Each session pairs one
// `flutter run --machine` client with the VM service client of the app it
// started.
package session

import (
	"time"

	"github.com/bazelment/yoloswe/flx/runner"
)

// ID identifies a session.
type ID string

// Short returns the first eight characters of the id for display.
func (id ID) Short() string {
	if len(id) > 8 {
		return string(id[:8])
	}
	return string(id)
}

// Options selects what a new session runs. Empty fields fall back to the
// manager's defaults.
type Options struct {
	DartDefines map[string]string
	DeviceID    string
	Target      string
	Flavor      string
	Mode        runner.Mode
	ExtraArgs   []string
}

// Info is a point-in-time view of a session for display.
type Info struct {
	CreatedAt    time.Time
	ID           ID
	DeviceID     string
	DeviceName   string
	AppID        string
	Mode         string
	VMServiceURI string
	WebLaunchURL string
	Progress     string
	StopError    string
	Frames       uint64
	State        runner.State
	Started      bool
	VMConnected  bool
}

// Phase summarizes the session for a status column.
func (i Info) Phase() string {
	switch {
	case i.State == runner.StateStopped && i.StopError != "":
		return "failed"
	case i.State == runner.StateStopped:
		return "stopped"
	case i.Started:
		return "running"
	case i.State == runner.StateKnown:
		return "starting"
	default:
		return "launching"
	}
}

// EventKind discriminates manager events.
type EventKind int

const (
	EventCreated EventKind = iota
	EventUpdated
	EventLog
	EventRemoved
)

func (k EventKind) String() string {
	switch k {
	case EventCreated:
		return "created"
	case EventUpdated:
		return "updated"
	case EventLog:
		return "log"
	case EventRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Event reports a session lifecycle change or a new log line.
type Event struct {
	Line LogLine // set for EventLog
	Info Info
	ID   ID
	Kind EventKind
}

package runner

import (
	"log/slog"
	"slices"
	"strings"
	"time"
)

// Mode is a build mode.
type Mode string

const (
	ModeDebug   Mode = "debug"
	ModeProfile Mode = "profile"
	ModeRelease Mode = "release"
)

// ParseMode parses a build mode name. The empty string is ModeDebug.
func ParseMode(s string) (Mode, bool) {
	switch Mode(strings.ToLower(s)) {
	case "", ModeDebug:
		return ModeDebug, true
	case ModeProfile:
		return ModeProfile, true
	case ModeRelease:
		return ModeRelease, true
	}
	return "", false
}

// Options describes one `flutter run --machine` invocation.
type Options struct {
	Logger      *slog.Logger
	Env         map[string]string
	DartDefines map[string]string
	FlutterPath string
	ProjectDir  string
	DeviceID    string
	Target      string
	Flavor      string
	Mode        Mode
	ExtraArgs   []string
	// StopTimeout bounds the graceful app.stop sent by Close.
	StopTimeout time.Duration
}

// DefaultStopTimeout is used when Options.StopTimeout is zero.
const DefaultStopTimeout = 5 * time.Second

// BuildArgs returns the flutter arguments for o.
func BuildArgs(o Options) []string {
	args := []string{"run", "--machine"}
	if o.DeviceID != "" {
		args = append(args, "-d", o.DeviceID)
	}
	if o.Target != "" {
		args = append(args, "-t", o.Target)
	}
	if o.Mode != "" {
		args = append(args, "--"+string(o.Mode))
	}
	if o.Flavor != "" {
		args = append(args, "--flavor", o.Flavor)
	}
	keys := make([]string, 0, len(o.DartDefines))
	for k := range o.DartDefines {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		args = append(args, "--dart-define", k+"="+o.DartDefines[k])
	}
	return append(args, o.ExtraArgs...)
}

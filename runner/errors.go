package runner

import (
	"errors"
	"fmt"
)

var (
	// ErrNotStarted is matched by *NotStartedError: a control call was made
	// before the app reported app.start.
	ErrNotStarted = errors.New("app not started")

	// ErrAppStopped is returned by control calls after the app stopped or the
	// process exited.
	ErrAppStopped = errors.New("app stopped")

	// ErrRestartFailed is returned when the tool answered app.restart with a
	// non-zero code, e.g. because the sources do not compile.
	ErrRestartFailed = errors.New("restart failed")
)

// NotStartedError reports a control call rejected because the app id is not
// known yet. Nothing was sent.
type NotStartedError struct {
	Op string
}

func (e *NotStartedError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, ErrNotStarted)
}

func (e *NotStartedError) Is(target error) bool { return target == ErrNotStarted }

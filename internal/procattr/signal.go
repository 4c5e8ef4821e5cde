package procattr

import (
	"os"
	"os/exec"
	"syscall"
	"time"
)

// Default escalation delays used by Stop.
const (
	DefaultInterruptAfter = 500 * time.Millisecond
	DefaultKillAfter      = 500 * time.Millisecond
	reapWait              = 200 * time.Millisecond
)

// SignalGroup sends a signal to the entire process group of the given process.
func SignalGroup(p *os.Process, sig syscall.Signal) error {
	if p == nil {
		return nil
	}
	return syscall.Kill(-p.Pid, sig)
}

// KillGroup sends SIGKILL to the entire process group of the given process.
func KillGroup(p *os.Process) error {
	return SignalGroup(p, syscall.SIGKILL)
}

// setCancel makes context cancellation of an exec.CommandContext kill the
// group rather than only the direct child.
func setCancel(cmd *exec.Cmd) {
	cmd.Cancel = func() error {
		return KillGroup(cmd.Process)
	}
	cmd.WaitDelay = DefaultKillAfter
}

// Stop waits for exited to close, escalating from nothing to SIGINT to
// SIGKILL on the process group. Callers close stdin (or send a protocol
// shutdown) before calling Stop so a well-behaved tool exits on its own.
// It reports whether the process was seen to exit.
func Stop(p *os.Process, exited <-chan struct{}, interruptAfter, killAfter time.Duration) bool {
	select {
	case <-exited:
		return true
	case <-time.After(interruptAfter):
	}

	_ = SignalGroup(p, syscall.SIGINT)
	select {
	case <-exited:
		return true
	case <-time.After(killAfter):
	}

	_ = KillGroup(p)
	select {
	case <-exited:
		return true
	case <-time.After(reapWait):
		return false
	}
}

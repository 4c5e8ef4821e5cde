//go:build linux

// Package procattr configures spawned tool processes so that the whole
// process tree they create can be signalled and reaped together.
package procattr

import (
	"os/exec"
	"syscall"
)

// Set puts cmd in its own process group and arranges for the child to get
// SIGTERM when flx dies without cleaning up (OOM kill, SIGKILL). The flutter
// tool forks adb, gradle and dart processes, so signals always go to the group.
func Set(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGTERM,
	}
	setCancel(cmd)
}

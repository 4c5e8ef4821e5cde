//go:build !linux

// Package procattr configures spawned tool processes so that the whole
// process tree they create can be signalled and reaped together.
package procattr

import (
	"os/exec"
	"syscall"
)

// Set puts cmd in its own process group. Pdeathsig is Linux-only, so on
// other platforms orphan cleanup relies on Stop being called.
func Set(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
	setCancel(cmd)
}

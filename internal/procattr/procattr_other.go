//go:build !linux

// Package procattr configures agent subprocesses so they cannot outlive the
// host: each agent runs in its own process group, and on Linux the kernel
// delivers SIGTERM to the child if the host dies without cleaning up.
package procattr

import (
	"os/exec"
	"syscall"
)

// Set installs the process-group attribute on cmd. Pdeathsig does not exist
// outside Linux; the group still lets the host signal the whole agent tree.
// Must be called before cmd.Start.
func Set(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}

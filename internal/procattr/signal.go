package procattr

import (
	"os"
	"syscall"
)

// SignalGroup delivers sig to every process in p's group. The negative pid
// addresses the group rather than the single child, so agent-spawned
// grandchildren get the signal too. Nil process is a no-op.
func SignalGroup(p *os.Process, sig syscall.Signal) error {
	if p == nil {
		return nil
	}
	return syscall.Kill(-p.Pid, sig)
}

// KillGroup force-kills p's entire process group.
func KillGroup(p *os.Process) error {
	return SignalGroup(p, syscall.SIGKILL)
}

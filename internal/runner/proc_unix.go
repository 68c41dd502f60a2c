//go:build unix

package runner

import (
	"os"
	"os/exec"
	"syscall"
	"time"
)

// setProcessGroup places the child in its own process group so that
// termination reaches everything it spawned.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// terminate sends SIGTERM to the process group, waits grace, then SIGKILL.
// Signal errors are ignored: the group may already be gone.
func terminate(p *os.Process, grace time.Duration) {
	if p == nil {
		return
	}
	_ = syscall.Kill(-p.Pid, syscall.SIGTERM)
	time.Sleep(grace)
	_ = syscall.Kill(-p.Pid, syscall.SIGKILL)
}

// exitStatus maps a finished process to an exit code. Death by signal is
// reported shell-style as 128+signal so that -1 stays reserved.
func exitStatus(ps *os.ProcessState) int {
	if ps == nil {
		return -1
	}
	if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return ps.ExitCode()
}

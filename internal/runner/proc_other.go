//go:build !unix

package runner

import (
	"os"
	"os/exec"
	"time"
)

func setProcessGroup(cmd *exec.Cmd) {}

func terminate(p *os.Process, grace time.Duration) {
	if p == nil {
		return
	}
	_ = p.Signal(os.Interrupt)
	time.Sleep(grace)
	_ = p.Kill()
}

func exitStatus(ps *os.ProcessState) int {
	if ps == nil {
		return -1
	}
	return ps.ExitCode()
}

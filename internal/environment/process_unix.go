//go:build unix

// internal/environment/process_unix.go
package environment

import (
	"os/exec"
	"syscall"
)

// detach puts the server in its own process group so that "go run" and
// the binary it builds are signaled together.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func signalGroup(cmd *exec.Cmd, kill bool) error {
	sig := syscall.SIGTERM
	if kill {
		sig = syscall.SIGKILL
	}
	// A negative pid addresses the whole group.
	return syscall.Kill(-cmd.Process.Pid, sig)
}

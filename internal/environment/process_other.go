//go:build !unix

// internal/environment/process_other.go
package environment

import "os/exec"

func detach(*exec.Cmd) {}

// signalGroup has no graceful variant here; both paths kill the process.
func signalGroup(cmd *exec.Cmd, _ bool) error {
	return cmd.Process.Kill()
}

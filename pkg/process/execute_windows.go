//go:build windows

package process

import (
	"os"
	"os/exec"
	"syscall"
)

// setupProcessAttributes isolates the backend in a new process group so that
// CTRL_BREAK can be delivered to it without reaching the shell.
func setupProcessAttributes(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}

// Windows has no termination signals to report
func exitSignal(state *os.ProcessState) string {
	return ""
}

func killProcessTree(proc *os.Process) error {
	return proc.Kill()
}

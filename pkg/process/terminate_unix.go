//go:build !windows

package process

import (
	"time"

	"github.com/core-tools/hsu-backend-shell/pkg/processstate"

	"golang.org/x/sys/unix"
)

// SendTerminationSignal sends SIGTERM to the process group of pid.
// Nothing is sent when the process is already gone.
func SendTerminationSignal(pid int, timeout time.Duration) error {
	if running, err := processstate.IsRunning(pid); err == nil && !running {
		return nil
	}
	return unix.Kill(-pid, unix.SIGTERM)
}

//go:build !windows

package processstate

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// IsRunning reports whether a process with the given PID exists. A process
// owned by another user counts as running. Zombies count as running too.
func IsRunning(pid int) (bool, error) {
	if pid <= 0 {
		return false, fmt.Errorf("invalid PID: %d", pid)
	}

	// Signal 0 performs the permission and existence checks only
	err := unix.Kill(pid, 0)
	switch {
	case err == nil, errors.Is(err, unix.EPERM):
		return true, nil
	case errors.Is(err, unix.ESRCH):
		return false, nil
	}
	return false, err
}

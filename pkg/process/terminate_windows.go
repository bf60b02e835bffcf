//go:build windows

package process

import (
	"fmt"
	"sync"
	"time"

	"github.com/core-tools/hsu-backend-shell/pkg/processstate"

	"golang.org/x/sys/windows"
)

// Console control events are process wide
var consoleMutex sync.Mutex

// SendTerminationSignal delivers CTRL_BREAK to the process group of pid, which
// equals pid because the backend is started with CREATE_NEW_PROCESS_GROUP.
// Nothing is sent when the process is already gone.
func SendTerminationSignal(pid int, timeout time.Duration) error {
	if pid <= 0 {
		return fmt.Errorf("invalid PID: %d", pid)
	}
	if running, err := processstate.IsRunning(pid); err == nil && !running {
		return nil
	}

	consoleMutex.Lock()
	defer consoleMutex.Unlock()

	// The call may block while the console is being torn down
	result := make(chan error, 1)
	go func() {
		result <- windows.GenerateConsoleCtrlEvent(windows.CTRL_BREAK_EVENT, uint32(pid))
	}()

	select {
	case err := <-result:
		if err != nil {
			return fmt.Errorf("CTRL_BREAK to process group %d failed: %w", pid, err)
		}
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("CTRL_BREAK to process group %d did not return within %v", pid, timeout)
	}
}

package process

import (
	"os"
	"sync"
	"sync/atomic"

	"github.com/core-tools/hsu-backend-shell/pkg/domain"
)

// Handle is the running backend as seen from outside the supervisor. It does
// not expose the process itself: termination goes through Supervisor.Teardown.
type Handle struct {
	pid     int
	command domain.BackendCommand
	process *os.Process

	// set once shutdown was requested, so the exit is not reported as a crash
	expected atomic.Bool

	done   chan struct{}
	mutex  sync.Mutex
	status domain.ExitStatus
	exited bool
}

func newHandle(proc *os.Process, command domain.BackendCommand) *Handle {
	return &Handle{
		pid:     proc.Pid,
		command: command,
		process: proc,
		done:    make(chan struct{}),
	}
}

func (h *Handle) PID() int {
	return h.pid
}

func (h *Handle) Command() domain.BackendCommand {
	return h.command
}

// Done is closed after the process has exited and its output was flushed.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Exit returns the exit status, and false while the process is still running.
func (h *Handle) Exit() (domain.ExitStatus, bool) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.status, h.exited
}

func (h *Handle) finish(status domain.ExitStatus) {
	h.mutex.Lock()
	h.status = status
	h.exited = true
	h.mutex.Unlock()
	close(h.done)
}

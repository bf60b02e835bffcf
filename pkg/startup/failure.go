package startup

import (
	"fmt"

	"github.com/core-tools/hsu-backend-shell/pkg/domain"
	"github.com/core-tools/hsu-backend-shell/pkg/errors"
)

// Phase names the step of the startup attempt that failed.
type Phase string

const (
	PhaseAllocatePort  Phase = "allocate_port"
	PhaseLocateBackend Phase = "locate_backend"
	PhaseSpawn         Phase = "spawn"
	PhaseHealthCheck   Phase = "health_check"
)

// Failure is the terminal result of an unsuccessful startup attempt.
type Failure struct {
	Phase Phase
	// State is the last state reached before Failed. A spawn error is
	// reported with State located and Phase spawn.
	State   State
	Command domain.BackendCommand
	// LogPath is where the backend output went
	LogPath string
	// Exit is set when the backend exited before it became ready
	Exit  *domain.ExitStatus
	Cause error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("backend startup failed during %s: %v", f.Phase, f.Cause)
}

func (f *Failure) Unwrap() error {
	return f.Cause
}

// Cancelled reports whether the attempt was abandoned rather than failed.
func (f *Failure) Cancelled() bool {
	return errors.IsCancelledError(f.Cause)
}

// Kind is the error type of the cause, e.g. spawn or health_check_timeout.
func (f *Failure) Kind() errors.ErrorType {
	return errors.TypeOf(f.Cause)
}

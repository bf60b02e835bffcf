package startup

import (
	"fmt"
	"time"
)

type State string

const (
	StateIdle           State = "idle"
	StatePortAllocated  State = "port_allocated"
	StateLocated        State = "located"
	StateSpawned        State = "spawned"
	StateHealthChecking State = "health_checking"
	StateReady          State = "ready"
	StateFailed         State = "failed"
)

// allowedTransitions lists the forward edges. Failed is reachable from any
// non-terminal state and nothing leaves a terminal state.
var allowedTransitions = map[State]State{
	StateIdle:           StatePortAllocated,
	StatePortAllocated:  StateLocated,
	StateLocated:        StateSpawned,
	StateSpawned:        StateHealthChecking,
	StateHealthChecking: StateReady,
}

func (s State) IsTerminal() bool {
	return s == StateReady || s == StateFailed
}

func canTransition(from, to State) bool {
	if from.IsTerminal() {
		return false
	}
	if to == StateFailed {
		return true
	}
	return allowedTransitions[from] == to
}

// Transition is one step of a startup attempt.
type Transition struct {
	From State
	To   State
	At   time.Time
}

func (t Transition) String() string {
	return fmt.Sprintf("%s -> %s", t.From, t.To)
}

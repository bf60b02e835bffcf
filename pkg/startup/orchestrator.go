package startup

import (
	"context"
	"sync"
	"time"

	"github.com/core-tools/hsu-backend-shell/pkg/domain"
	"github.com/core-tools/hsu-backend-shell/pkg/errors"
	"github.com/core-tools/hsu-backend-shell/pkg/locator"
	"github.com/core-tools/hsu-backend-shell/pkg/logging"
	"github.com/core-tools/hsu-backend-shell/pkg/monitoring"
	"github.com/core-tools/hsu-backend-shell/pkg/portalloc"
	"github.com/core-tools/hsu-backend-shell/pkg/process"
)

const failureTeardownTimeout = 10 * time.Second

// FailureReporter presents a failed startup to the user. Report returns once
// the user has acknowledged it.
type FailureReporter interface {
	Report(failure *Failure)
}

// Dependencies are the components one startup attempt is composed of.
type Dependencies struct {
	Allocator  portalloc.Allocator
	Locator    locator.Locator
	Supervisor process.Supervisor
	Poller     monitoring.Poller
	Reporter   FailureReporter
}

type Options struct {
	Packaged bool
	Platform locator.Platform
	// Host is the loopback address the backend binds to
	Host string
	// DataDir is passed to the backend
	DataDir string
	// Environment holds extra KEY=VALUE entries for the backend
	Environment []string
	// LogLocation is where backend output is captured, shown on failure
	LogLocation string
}

// Orchestrator runs exactly one startup attempt:
// allocate port, locate backend, spawn, wait for health.
type Orchestrator struct {
	options Options
	deps    Dependencies
	logger  logging.Logger
	now     func() time.Time

	runMutex sync.Mutex
	ran      bool

	mutex     sync.Mutex
	state     State
	history   []Transition
	observers []func(Transition)
}

func NewOrchestrator(options Options, deps Dependencies, logger logging.Logger) *Orchestrator {
	if options.Platform == "" {
		options.Platform = locator.CurrentPlatform()
	}
	if options.Host == "" {
		options.Host = domain.LoopbackHost
	}
	return &Orchestrator{
		options: options,
		deps:    deps,
		logger:  logger,
		now:     time.Now,
		state:   StateIdle,
	}
}

// OnTransition registers an observer called synchronously on every transition.
func (o *Orchestrator) OnTransition(observer func(Transition)) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.observers = append(o.observers, observer)
}

func (o *Orchestrator) State() State {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	return o.state
}

func (o *Orchestrator) History() []Transition {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	history := make([]Transition, len(o.history))
	copy(history, o.history)
	return history
}

func (o *Orchestrator) transition(to State) {
	o.mutex.Lock()
	from := o.state
	if !canTransition(from, to) {
		o.mutex.Unlock()
		// A programming error, not a runtime condition
		panic("invalid startup transition: " + string(from) + " -> " + string(to))
	}
	transition := Transition{From: from, To: to, At: o.now()}
	o.state = to
	o.history = append(o.history, transition)
	observers := append([]func(Transition){}, o.observers...)
	o.mutex.Unlock()

	o.logger.Debugf("Startup transition: %s", transition)
	for _, observer := range observers {
		observer(transition)
	}
}

// Run performs the startup attempt. On success the returned Origin points at
// a backend that has answered its health check. On failure the error is a
// *Failure, the backend has been torn down and the failure was reported,
// unless ctx was cancelled. Run can be called only once.
func (o *Orchestrator) Run(ctx context.Context) (domain.Origin, error) {
	o.runMutex.Lock()
	if o.ran {
		o.runMutex.Unlock()
		return domain.Origin{}, errors.NewConflictError("startup has already been attempted", nil)
	}
	o.ran = true
	o.runMutex.Unlock()

	o.logger.Infof("Starting backend, packaged: %t, platform: %s", o.options.Packaged, o.options.Platform)

	if err := ctx.Err(); err != nil {
		return domain.Origin{}, o.fail(&Failure{Phase: PhaseAllocatePort, Cause: errors.NewCancelledError("startup cancelled", err)})
	}

	port, err := o.deps.Allocator.Allocate()
	if err != nil {
		return domain.Origin{}, o.fail(&Failure{Phase: PhaseAllocatePort, Cause: err})
	}
	o.transition(StatePortAllocated)
	origin := domain.Origin{Scheme: domain.SchemeHTTP, Host: o.options.Host, Port: port}

	command, err := o.deps.Locator.Resolve(o.options.Packaged, o.options.Platform)
	if err != nil {
		return domain.Origin{}, o.fail(&Failure{Phase: PhaseLocateBackend, Cause: err})
	}
	o.transition(StateLocated)

	env := process.Environment{
		Host:    o.options.Host,
		Port:    port,
		DataDir: o.options.DataDir,
		Extra:   o.options.Environment,
	}
	handle, err := o.deps.Supervisor.Start(ctx, command, env)
	if err != nil {
		return domain.Origin{}, o.fail(&Failure{Phase: PhaseSpawn, Command: command, Cause: err})
	}
	o.transition(StateSpawned)

	o.transition(StateHealthChecking)
	if err := o.deps.Poller.WaitForReady(ctx, origin, handle.Done()); err != nil {
		failure := &Failure{Phase: PhaseHealthCheck, Command: command, Cause: err}
		if status, exited := handle.Exit(); exited && errors.IsProcessExitedEarlyError(err) {
			failure.Exit = &status
		}
		return domain.Origin{}, o.fail(failure)
	}
	o.transition(StateReady)

	o.logger.Infof("Backend is ready, origin: %s, pid: %d", origin, handle.PID())

	return origin, nil
}

func (o *Orchestrator) fail(failure *Failure) error {
	failure.State = o.State()
	failure.LogPath = o.options.LogLocation
	o.transition(StateFailed)

	// Release the process before the user is blocked on the report
	teardownCtx, cancel := context.WithTimeout(context.Background(), failureTeardownTimeout)
	defer cancel()
	if err := o.deps.Supervisor.Teardown(teardownCtx); err != nil {
		o.logger.Errorf("Failed to tear down backend after startup failure: %v", err)
	}

	if failure.Cancelled() {
		o.logger.Infof("Backend startup cancelled, phase: %s", failure.Phase)
		return failure
	}

	o.logger.Errorf("Backend startup failed, phase: %s, state: %s, command: %s, log: %s, error: %v",
		failure.Phase, failure.State, failure.Command, failure.LogPath, failure.Cause)

	if o.deps.Reporter != nil {
		o.deps.Reporter.Report(failure)
	}
	return failure
}

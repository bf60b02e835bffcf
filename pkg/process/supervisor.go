package process

import (
	"context"
	stdErrors "errors"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/core-tools/hsu-backend-shell/pkg/domain"
	"github.com/core-tools/hsu-backend-shell/pkg/errors"
	"github.com/core-tools/hsu-backend-shell/pkg/logcollection"
	"github.com/core-tools/hsu-backend-shell/pkg/logging"
)

const (
	DefaultGracefulTimeout = 5 * time.Second
	DefaultKillTimeout     = 5 * time.Second
	DefaultWaitDelay       = 2 * time.Second
	DefaultOutputBuffer    = 64
)

// Supervisor owns the single backend process of an application run.
type Supervisor interface {
	// Start spawns the backend. Only one process may be started per supervisor.
	Start(ctx context.Context, command domain.BackendCommand, env Environment) (*Handle, error)
	// Teardown stops the backend if it is running. It is safe to call any
	// number of times, and no process can be started afterwards.
	Teardown(ctx context.Context) error
	// Current returns the running process, or nil.
	Current() *Handle
}

// PIDRecorder persists the backend PID while the process runs.
type PIDRecorder interface {
	WritePID(pid int) error
	RemovePID() error
}

type SupervisorOptions struct {
	// GracefulTimeout is how long teardown waits after the termination signal
	GracefulTimeout time.Duration
	// KillTimeout is how long teardown waits after the kill
	KillTimeout time.Duration
	// WaitDelay bounds output draining once the process has exited
	WaitDelay time.Duration
	// OutputBuffer is the capacity of the output chunk channel
	OutputBuffer int
}

type SupervisorOption func(*supervisor)

// WithEnviron replaces os.Environ as the parent environment.
func WithEnviron(environ func() []string) SupervisorOption {
	return func(s *supervisor) {
		s.environ = environ
	}
}

func WithPIDRecorder(recorder PIDRecorder) SupervisorOption {
	return func(s *supervisor) {
		s.pids = recorder
	}
}

type supervisor struct {
	options SupervisorOptions
	sink    logcollection.Sink
	logger  logging.Logger
	environ func() []string
	pids    PIDRecorder

	mutex   sync.Mutex
	handle  *Handle
	started bool
	closed  bool
}

func NewSupervisor(options SupervisorOptions, sink logcollection.Sink, logger logging.Logger, opts ...SupervisorOption) Supervisor {
	if options.GracefulTimeout <= 0 {
		options.GracefulTimeout = DefaultGracefulTimeout
	}
	if options.KillTimeout <= 0 {
		options.KillTimeout = DefaultKillTimeout
	}
	if options.WaitDelay <= 0 {
		options.WaitDelay = DefaultWaitDelay
	}
	if options.OutputBuffer <= 0 {
		options.OutputBuffer = DefaultOutputBuffer
	}

	s := &supervisor{
		options: options,
		sink:    sink,
		logger:  logger,
		environ: os.Environ,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *supervisor) Start(ctx context.Context, command domain.BackendCommand, env Environment) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.NewCancelledError("backend start cancelled", err)
	}
	if err := ValidateCommand(command); err != nil {
		return nil, err
	}
	if err := ValidateEnvironment(env); err != nil {
		return nil, err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return nil, errors.NewConflictError("supervisor has been torn down", nil)
	}
	if s.started {
		return nil, errors.NewConflictError("backend has already been started", nil)
	}
	s.started = true

	if command.Bundled {
		if err := ensureExecutable(command.Path); err != nil {
			s.logger.Warnf("Could not prepare bundled backend, path: %s, error: %v", command.Path, err)
		}
	}
	if err := os.MkdirAll(env.DataDir, 0755); err != nil {
		s.logger.Warnf("Could not create backend data directory, path: %s, error: %v", env.DataDir, err)
	}

	chunks := make(chan logcollection.Chunk, s.options.OutputBuffer)

	cmd := exec.Command(command.Path, command.Args...)
	cmd.Dir = workingDirectory(command)
	cmd.Env = env.Build(s.environ())
	cmd.Stdout = &chunkWriter{stream: logcollection.StdoutStream, chunks: chunks}
	cmd.Stderr = &chunkWriter{stream: logcollection.StderrStream, chunks: chunks}
	cmd.WaitDelay = s.options.WaitDelay
	setupProcessAttributes(cmd)

	s.logger.Infof("Starting backend, command: %s, working directory: '%s', port: %d", command, cmd.Dir, env.Port)

	s.sink.BeginSession(command.String())

	if err := cmd.Start(); err != nil {
		s.sink.EndSession(domain.ExitStatus{Code: -1, Err: err})
		s.logger.Errorf("Failed to start backend, command: %s, error: %v", command, err)
		return nil, errors.NewSpawnError("failed to start the backend process", err).
			WithContext("command", command.String())
	}

	handle := newHandle(cmd.Process, command)
	s.handle = handle

	collectorDone := make(chan struct{})
	go func() {
		defer close(collectorDone)
		s.sink.Collect(chunks)
	}()
	go s.observe(cmd, handle, chunks, collectorDone)

	if s.pids != nil {
		if err := s.pids.WritePID(handle.pid); err != nil {
			s.logger.Warnf("Failed to record backend PID, pid: %d, error: %v", handle.pid, err)
		}
	}

	s.logger.Infof("Backend started, pid: %d", handle.pid)

	return handle, nil
}

// observe is the exit observer: it reaps the process, closes the session and
// clears the handle.
func (s *supervisor) observe(cmd *exec.Cmd, handle *Handle, chunks chan logcollection.Chunk, collectorDone <-chan struct{}) {
	err := cmd.Wait()

	status := domain.ExitStatus{
		Code:   -1,
		Signal: exitSignal(cmd.ProcessState),
	}
	if cmd.ProcessState != nil {
		status.Code = cmd.ProcessState.ExitCode()
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil, stdErrors.As(err, &exitErr):
	case stdErrors.Is(err, exec.ErrWaitDelay):
		s.logger.Warnf("Backend output was still open after exit, pid: %d", handle.pid)
	default:
		status.Err = err
	}

	close(chunks)
	<-collectorDone
	s.sink.EndSession(status)

	if s.pids != nil {
		if err := s.pids.RemovePID(); err != nil {
			s.logger.Warnf("Failed to remove backend PID file, error: %v", err)
		}
	}

	s.mutex.Lock()
	if s.handle == handle {
		s.handle = nil
	}
	s.mutex.Unlock()

	status.Expected = handle.expected.Load()
	handle.finish(status)

	if !status.Success() && !status.Expected {
		s.logger.Errorf("Backend exited unexpectedly, pid: %d, %s", handle.pid, status)
	} else {
		s.logger.Infof("Backend exited, pid: %d, %s", handle.pid, status)
	}
}

func (s *supervisor) Current() *Handle {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.handle
}

func (s *supervisor) Teardown(ctx context.Context) error {
	s.mutex.Lock()
	s.closed = true
	handle := s.handle
	s.mutex.Unlock()

	if handle == nil {
		s.logger.Debugf("No backend process to tear down")
		return nil
	}

	if !handle.expected.CompareAndSwap(false, true) {
		// Another teardown is already in progress
		select {
		case <-handle.Done():
			return nil
		case <-ctx.Done():
			return errors.NewCancelledError("teardown cancelled", ctx.Err()).WithContext("pid", handle.pid)
		}
	}

	return s.terminate(ctx, handle)
}

func (s *supervisor) terminate(ctx context.Context, handle *Handle) error {
	pid := handle.pid

	select {
	case <-handle.Done():
		return nil
	default:
	}

	s.logger.Infof("Sending termination signal to backend, pid: %d, timeout: %v", pid, s.options.GracefulTimeout)
	if err := SendTerminationSignal(pid, s.options.GracefulTimeout); err != nil {
		s.logger.Warnf("Failed to send termination signal, pid: %d, error: %v", pid, err)
	}

	select {
	case <-handle.Done():
		s.logger.Infof("Backend terminated gracefully, pid: %d", pid)
		return nil
	case <-time.After(s.options.GracefulTimeout):
		s.logger.Warnf("Backend did not terminate within %v, forcing termination, pid: %d", s.options.GracefulTimeout, pid)
	case <-ctx.Done():
		s.logger.Warnf("Context cancelled during graceful termination, forcing termination, pid: %d", pid)
	}

	if err := killProcessTree(handle.process); err != nil && !stdErrors.Is(err, os.ErrProcessDone) {
		return errors.NewInternalError("failed to kill backend process", err).WithContext("pid", pid)
	}

	select {
	case <-handle.Done():
		s.logger.Infof("Backend force terminated, pid: %d", pid)
		return nil
	case <-time.After(s.options.KillTimeout):
		return errors.NewTimeoutError("backend did not terminate even after force termination", nil).WithContext("pid", pid)
	case <-ctx.Done():
		return errors.NewCancelledError("termination cancelled", ctx.Err()).WithContext("pid", pid)
	}
}

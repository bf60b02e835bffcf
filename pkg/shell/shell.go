package shell

import (
	"context"
	stderrors "errors"
	"sync"

	"github.com/core-tools/hsu-backend-shell/pkg/appdirs"
	"github.com/core-tools/hsu-backend-shell/pkg/domain"
	"github.com/core-tools/hsu-backend-shell/pkg/errors"
	"github.com/core-tools/hsu-backend-shell/pkg/logcollection"
	"github.com/core-tools/hsu-backend-shell/pkg/logging"
	"github.com/core-tools/hsu-backend-shell/pkg/process"
	"github.com/core-tools/hsu-backend-shell/pkg/processstate"
	"github.com/core-tools/hsu-backend-shell/pkg/startup"
)

// Components is everything one shell run is assembled from.
type Components struct {
	Orchestrator *startup.Orchestrator
	Supervisor   process.Supervisor
	Sink         logcollection.Sink
	Loader       UILoader
	// PIDFile is optional
	PIDFile *appdirs.PIDFile
}

// Shell owns the backend for the lifetime of the UI.
type Shell struct {
	components Components
	logger     logging.Logger
	isRunning  func(pid int) (bool, error)

	closeOnce sync.Once
	closeErr  error
}

func New(components Components, logger logging.Logger) *Shell {
	return &Shell{
		components: components,
		logger:     logger,
		isRunning:  processstate.IsRunning,
	}
}

// Run starts the backend, hands its origin to the UI loader and then blocks
// until ctx is done or the backend goes away. A quit during startup is not an
// error. Close must be called afterwards in every case.
func (s *Shell) Run(ctx context.Context) error {
	s.clearStalePID()

	type result struct {
		origin domain.Origin
		err    error
	}
	results := make(chan result, 1)
	go func() {
		origin, err := s.components.Orchestrator.Run(ctx)
		results <- result{origin: origin, err: err}
	}()

	var res result
	select {
	case res = <-results:
	case <-ctx.Done():
		s.logger.Infof("Quit requested while the backend is starting, waiting for startup to abort")
		res = <-results
	}

	if res.err != nil {
		var failure *startup.Failure
		if stderrors.As(res.err, &failure) && failure.Cancelled() {
			return nil
		}
		return res.err
	}

	handle := s.components.Supervisor.Current()
	if handle == nil {
		return errors.NewProcessExitedEarlyError("backend exited right after it became ready", nil)
	}

	if err := s.components.Loader.Load(ctx, res.origin); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		s.logger.Infof("Shell is closing, backend pid: %d", handle.PID())
		return nil
	case <-handle.Done():
		status, _ := handle.Exit()
		s.logger.Errorf("Backend exited while the UI was running, %s", status)
		return errors.NewProcessExitedEarlyError("backend exited while the UI was running", nil).
			WithContext("exit_code", status.Code).
			WithContext("log", s.components.Sink.Location())
	}
}

// Close tears the backend down and releases the output sink. It is safe to
// call more than once; ctx should not be the one that was cancelled to quit.
func (s *Shell) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		errs := errors.NewErrorCollection()
		if err := s.components.Supervisor.Teardown(ctx); err != nil {
			errs.Add(err)
		}
		if err := s.components.Sink.Close(); err != nil {
			errs.Add(errors.NewIOError("failed to close backend output", err))
		}
		if status := s.components.Sink.Status(); status.WriteErrors > 0 {
			s.logger.Warnf("Backend output had %d write errors, last: %v", status.WriteErrors, status.LastError)
		}
		s.closeErr = errs.ToError()
		s.logger.Infof("Shell closed")
	})
	return s.closeErr
}

// clearStalePID removes the PID file a previous run left behind. A backend
// that is still alive is reported but left alone since the PID may be reused.
func (s *Shell) clearStalePID() {
	pidFile := s.components.PIDFile
	if pidFile == nil {
		return
	}

	pid, err := pidFile.ReadPID()
	if err != nil {
		s.logger.Warnf("Failed to read stale PID file, path: %s, error: %v", pidFile.Path(), err)
	}
	if pid <= 0 {
		if err != nil {
			pidFile.RemovePID()
		}
		return
	}

	running, err := s.isRunning(pid)
	switch {
	case err != nil:
		s.logger.Warnf("Failed to check backend from a previous run, pid: %d, error: %v", pid, err)
	case running:
		s.logger.Warnf("Backend from a previous run may still be running, pid: %d", pid)
	default:
		s.logger.Infof("Removing stale PID file, pid: %d", pid)
	}
	if err := pidFile.RemovePID(); err != nil {
		s.logger.Warnf("Failed to remove stale PID file: %v", err)
	}
}

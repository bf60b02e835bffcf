package monitoring

import (
	"context"
	"time"

	"github.com/core-tools/hsu-backend-shell/pkg/domain"
	"github.com/core-tools/hsu-backend-shell/pkg/errors"
	"github.com/core-tools/hsu-backend-shell/pkg/logging"
)

// Poller waits for the backend to answer its health check.
type Poller interface {
	// WaitForReady probes origin at a constant interval until a probe
	// succeeds, the timeout elapses, exited is closed or ctx is done.
	// A nil exited channel is never closed.
	WaitForReady(ctx context.Context, origin domain.Origin, exited <-chan struct{}) error
}

// PollStats describes a finished wait.
type PollStats struct {
	Attempts   int
	Elapsed    time.Duration
	LastResult ProbeResult
}

type PollerOption func(*poller)

// WithClock replaces time.Now for elapsed time accounting.
func WithClock(now func() time.Time) PollerOption {
	return func(p *poller) {
		p.now = now
	}
}

// WithObserver is called with the result of every probe.
func WithObserver(observe func(attempt int, result ProbeResult)) PollerOption {
	return func(p *poller) {
		p.observe = observe
	}
}

type poller struct {
	config  HealthCheckConfig
	logger  logging.Logger
	now     func() time.Time
	observe func(attempt int, result ProbeResult)
	factory func() prober
}

func NewPoller(config HealthCheckConfig, logger logging.Logger, opts ...PollerOption) (Poller, error) {
	config = config.withDefaults()
	if err := ValidateHealthCheckConfig(config); err != nil {
		return nil, errors.NewValidationError("invalid health check configuration", err)
	}

	p := &poller{
		config: config,
		logger: logger,
		now:    time.Now,
	}
	p.factory = p.newProber
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *poller) newProber() prober {
	switch p.config.Type {
	case HealthCheckTypeGRPC:
		return &grpcProber{config: p.config.GRPC}
	case HealthCheckTypeTCP:
		return tcpProber{}
	default:
		return newHTTPProber(p.config.HTTP)
	}
}

func (p *poller) WaitForReady(ctx context.Context, origin domain.Origin, exited <-chan struct{}) error {
	pr := p.factory()
	defer pr.Close()

	start := p.now()
	deadline := start.Add(p.config.Timeout)
	stats := PollStats{}

	p.logger.Infof("Waiting for backend health, origin: %s, type: %s, timeout: %v, interval: %v",
		origin, p.config.Type, p.config.Timeout, p.config.Interval)

	for {
		remaining := deadline.Sub(p.now())
		if remaining <= 0 {
			stats.Elapsed = p.now().Sub(start)
			p.logger.Errorf("Backend health check timed out, origin: %s, attempts: %d, elapsed: %v, last result: %s",
				origin, stats.Attempts, stats.Elapsed, stats.LastResult.Message)
			return errors.NewHealthCheckTimeoutError("backend health check timed out", nil).
				WithContext("timeout", p.config.Timeout).
				WithContext("attempts", stats.Attempts).
				WithContext("last_result", stats.LastResult.Message)
		}

		stats.Attempts++
		stats.LastResult = p.probeOnce(ctx, pr, origin, exited, remaining)
		if p.observe != nil {
			p.observe(stats.Attempts, stats.LastResult)
		}

		if stats.LastResult.OK {
			p.logger.Infof("Backend is ready, origin: %s, attempts: %d, elapsed: %v",
				origin, stats.Attempts, p.now().Sub(start))
			return nil
		}
		p.logger.Debugf("Backend not ready yet, attempt: %d, reason: %s, message: %s",
			stats.Attempts, stats.LastResult.Reason, stats.LastResult.Message)

		if err := p.checkAborted(ctx, exited, stats); err != nil {
			return err
		}

		wait := p.config.Interval
		if remaining = deadline.Sub(p.now()); remaining < wait {
			wait = remaining
		}
		if wait <= 0 {
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-exited:
			timer.Stop()
			return p.exitedError(stats)
		case <-ctx.Done():
			timer.Stop()
			return p.cancelledError(ctx, stats)
		}
	}
}

// probeOnce runs one probe bounded by the probe timeout and the remaining
// budget. Closing exited aborts the probe in flight.
func (p *poller) probeOnce(ctx context.Context, pr prober, origin domain.Origin, exited <-chan struct{}, remaining time.Duration) ProbeResult {
	timeout := p.config.ProbeTimeout
	if remaining < timeout {
		timeout = remaining
	}

	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-exited:
			cancel()
		case <-stop:
		}
	}()

	return pr.probe(probeCtx, origin)
}

func (p *poller) checkAborted(ctx context.Context, exited <-chan struct{}, stats PollStats) error {
	select {
	case <-exited:
		return p.exitedError(stats)
	default:
	}
	if ctx.Err() != nil {
		return p.cancelledError(ctx, stats)
	}
	return nil
}

func (p *poller) exitedError(stats PollStats) error {
	p.logger.Errorf("Backend exited before it became ready, attempts: %d", stats.Attempts)
	return errors.NewProcessExitedEarlyError("backend process exited before it became ready", nil).
		WithContext("attempts", stats.Attempts)
}

func (p *poller) cancelledError(ctx context.Context, stats PollStats) error {
	p.logger.Warnf("Backend health wait cancelled, attempts: %d", stats.Attempts)
	return errors.NewCancelledError("backend health wait cancelled", ctx.Err()).
		WithContext("attempts", stats.Attempts)
}

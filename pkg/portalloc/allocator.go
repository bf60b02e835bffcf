package portalloc

import (
	"net"

	"github.com/core-tools/hsu-backend-shell/pkg/domain"
	"github.com/core-tools/hsu-backend-shell/pkg/errors"
	"github.com/core-tools/hsu-backend-shell/pkg/logging"
)

// Allocator hands out a port that was free at the moment of the call.
// Nothing is reserved: another process may bind the port before the backend does.
type Allocator interface {
	Allocate() (int, error)
}

type loopbackAllocator struct {
	host   string
	logger logging.Logger
}

// NewLoopbackAllocator binds ephemeral ports on host, or 127.0.0.1 when host is empty.
func NewLoopbackAllocator(host string, logger logging.Logger) Allocator {
	if host == "" {
		host = domain.LoopbackHost
	}
	return &loopbackAllocator{
		host:   host,
		logger: logger,
	}
}

func (a *loopbackAllocator) Allocate() (int, error) {
	listener, err := net.Listen("tcp", net.JoinHostPort(a.host, "0"))
	if err != nil {
		a.logger.Errorf("Failed to bind ephemeral port, host: %s, error: %v", a.host, err)
		return 0, errors.NewAllocationError("failed to bind an ephemeral port", err).WithContext("host", a.host)
	}

	addr, ok := listener.Addr().(*net.TCPAddr)
	if !ok {
		listener.Close()
		return 0, errors.NewAllocationError("unexpected listener address: "+listener.Addr().String(), nil).WithContext("host", a.host)
	}
	port := addr.Port

	if err := listener.Close(); err != nil {
		// The port was still observed free; a close error does not invalidate it
		a.logger.Warnf("Failed to close probe listener, port: %d, error: %v", port, err)
	}

	a.logger.Debugf("Allocated port, host: %s, port: %d", a.host, port)

	return port, nil
}

package monitoring

import (
	"context"
	stdErrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/core-tools/hsu-backend-shell/pkg/domain"
)

// ProbeReason classifies a single failed probe.
type ProbeReason string

const (
	ProbeReasonNone              ProbeReason = ""
	ProbeReasonConnectionRefused ProbeReason = "connection_refused"
	ProbeReasonTransportError    ProbeReason = "transport_error"
	ProbeReasonNonSuccessStatus  ProbeReason = "non_success_status"
)

// ProbeResult is the outcome of one readiness probe.
type ProbeResult struct {
	OK      bool
	Reason  ProbeReason
	Message string
}

func probeOK(message string) ProbeResult {
	return ProbeResult{OK: true, Message: message}
}

func probeFailed(reason ProbeReason, message string) ProbeResult {
	return ProbeResult{Reason: reason, Message: message}
}

func transportFailure(err error) ProbeResult {
	if stdErrors.Is(err, syscall.ECONNREFUSED) {
		return probeFailed(ProbeReasonConnectionRefused, err.Error())
	}
	return probeFailed(ProbeReasonTransportError, err.Error())
}

// prober performs a single readiness probe against an origin.
type prober interface {
	probe(ctx context.Context, origin domain.Origin) ProbeResult
	Close() error
}

type httpProber struct {
	config HTTPHealthCheckConfig
	client *http.Client
}

func newHTTPProber(config HTTPHealthCheckConfig) *httpProber {
	return &httpProber{
		config: config,
		client: &http.Client{
			// A fresh connection per probe, so a dead backend is never
			// reported ready through a pooled connection.
			Transport: &http.Transport{DisableKeepAlives: true, Proxy: nil},
		},
	}
}

func (p *httpProber) probe(ctx context.Context, origin domain.Origin) ProbeResult {
	url := origin.URL(p.config.Path)

	req, err := http.NewRequestWithContext(ctx, p.config.Method, url, nil)
	if err != nil {
		return probeFailed(ProbeReasonTransportError, fmt.Sprintf("failed to create HTTP request: %v", err))
	}
	for key, value := range p.config.Headers {
		req.Header.Set(key, value)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return transportFailure(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	if p.config.AcceptAnyStatus || (resp.StatusCode >= 200 && resp.StatusCode < 300) {
		return probeOK(fmt.Sprintf("HTTP health check passed: %s", resp.Status))
	}
	return probeFailed(ProbeReasonNonSuccessStatus, fmt.Sprintf("HTTP health check failed: %s", resp.Status))
}

func (p *httpProber) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

type tcpProber struct{}

func (tcpProber) probe(ctx context.Context, origin domain.Origin) ProbeResult {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", origin.Address())
	if err != nil {
		return transportFailure(err)
	}
	conn.Close()
	return probeOK("TCP connection successful to " + origin.Address())
}

func (tcpProber) Close() error {
	return nil
}

// grpcProber uses the standard grpc.health.v1 protocol. The connection is
// created lazily on the first probe and reused afterwards.
type grpcProber struct {
	config GRPCHealthCheckConfig
	conn   *grpc.ClientConn
}

func (p *grpcProber) probe(ctx context.Context, origin domain.Origin) ProbeResult {
	if p.conn == nil {
		conn, err := grpc.NewClient(origin.Address(), grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return probeFailed(ProbeReasonTransportError, fmt.Sprintf("failed to create gRPC client: %v", err))
		}
		p.conn = conn
	}

	resp, err := healthpb.NewHealthClient(p.conn).Check(ctx, &healthpb.HealthCheckRequest{Service: p.config.Service})
	if err != nil {
		return transportFailure(err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return probeFailed(ProbeReasonNonSuccessStatus, "gRPC health status: "+resp.GetStatus().String())
	}
	return probeOK("gRPC health check passed")
}

func (p *grpcProber) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Close()
}

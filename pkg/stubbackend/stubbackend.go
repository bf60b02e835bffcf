// Package stubbackend is a stand-in for the real backend server. It reads the
// same environment the shell passes to the backend and answers health checks
// after a configurable delay, or exits early to simulate a crash.
package stubbackend

import (
	"context"
	stdErrors "errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/core-tools/hsu-backend-shell/pkg/errors"
	"github.com/core-tools/hsu-backend-shell/pkg/logging"
)

// Variables that switch a binary into stub mode and tune its behaviour.
const (
	EnvStubMode   = "BACKENDSHELL_STUB"
	EnvDelay      = "STUB_DELAY"
	EnvExitAfter  = "STUB_EXIT_AFTER"
	EnvExitCode   = "STUB_EXIT_CODE"
	EnvStatus     = "STUB_STATUS"
	EnvProtocol   = "STUB_PROTOCOL"
	EnvHost       = "HOST"
	EnvPort       = "PORT"
	EnvDataDir    = "DATA_DIR"
	HealthPath    = "/health"
	ProtocolHTTP  = "http"
	ProtocolGRPC  = "grpc"
	defaultStatus = http.StatusOK
)

type Options struct {
	Host     string
	Port     int
	DataDir  string
	Protocol string
	// Delay before the health endpoint starts listening
	Delay time.Duration
	// ExitAfter, when set, makes the stub exit with ExitCode without ever serving
	ExitAfter time.Duration
	ExitCode  int
	// Status returned by the HTTP health endpoint
	Status int
}

type LookupEnvFunc func(key string) (string, bool)

// OptionsFromEnv reads the stub configuration from the environment.
func OptionsFromEnv(lookup LookupEnvFunc) (Options, error) {
	opts := Options{
		Host:     "127.0.0.1",
		Protocol: ProtocolHTTP,
		Status:   defaultStatus,
	}

	if value, ok := lookup(EnvHost); ok && value != "" {
		opts.Host = value
	}
	if value, ok := lookup(EnvDataDir); ok {
		opts.DataDir = value
	}
	if value, ok := lookup(EnvProtocol); ok && value != "" {
		opts.Protocol = value
	}

	var err error
	if opts.Port, err = intFromEnv(lookup, EnvPort, 0); err != nil {
		return opts, err
	}
	if opts.ExitCode, err = intFromEnv(lookup, EnvExitCode, 0); err != nil {
		return opts, err
	}
	if opts.Status, err = intFromEnv(lookup, EnvStatus, defaultStatus); err != nil {
		return opts, err
	}
	if opts.Delay, err = durationFromEnv(lookup, EnvDelay); err != nil {
		return opts, err
	}
	if opts.ExitAfter, err = durationFromEnv(lookup, EnvExitAfter); err != nil {
		return opts, err
	}

	if opts.ExitAfter == 0 && (opts.Port <= 0 || opts.Port > 65535) {
		return opts, errors.NewValidationError("PORT must be between 1 and 65535", nil).WithContext("port", opts.Port)
	}
	if opts.Protocol != ProtocolHTTP && opts.Protocol != ProtocolGRPC {
		return opts, errors.NewValidationError("unsupported protocol: "+opts.Protocol, nil)
	}

	return opts, nil
}

func intFromEnv(lookup LookupEnvFunc, key string, fallback int) (int, error) {
	value, ok := lookup(key)
	if !ok || value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, errors.NewValidationError("invalid integer in "+key, err).WithContext("value", value)
	}
	return n, nil
}

func durationFromEnv(lookup LookupEnvFunc, key string) (time.Duration, error) {
	value, ok := lookup(key)
	if !ok || value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, errors.NewValidationError("invalid duration in "+key, err).WithContext("value", value)
	}
	return d, nil
}

// Run blocks until ctx is done and returns the process exit code.
func Run(ctx context.Context, opts Options, logger logging.Logger) (int, error) {
	fmt.Fprintf(os.Stdout, "stub backend starting, pid: %d, port: %d, data dir: %s\n", os.Getpid(), opts.Port, opts.DataDir)
	fmt.Fprintf(os.Stderr, "stub backend debug output\n")

	if opts.ExitAfter > 0 {
		logger.Infof("Stub backend will exit without serving, after: %v, code: %d", opts.ExitAfter, opts.ExitCode)
		select {
		case <-time.After(opts.ExitAfter):
			fmt.Fprintf(os.Stderr, "stub backend crashing with code %d\n", opts.ExitCode)
			return opts.ExitCode, nil
		case <-ctx.Done():
			return 0, nil
		}
	}

	select {
	case <-time.After(opts.Delay):
	case <-ctx.Done():
		return 0, nil
	}

	listener, err := net.Listen("tcp", net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port)))
	if err != nil {
		return 1, errors.NewIOError("failed to listen", err).WithContext("port", opts.Port)
	}

	logger.Infof("Stub backend serving, protocol: %s, address: %s", opts.Protocol, listener.Addr())
	fmt.Fprintf(os.Stdout, "stub backend ready\n")

	if opts.Protocol == ProtocolGRPC {
		return serveGRPC(ctx, listener)
	}
	return serveHTTP(ctx, listener, opts.Status)
}

func serveHTTP(ctx context.Context, listener net.Listener, status int) (int, error) {
	mux := http.NewServeMux()
	mux.HandleFunc(HealthPath, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		fmt.Fprintf(w, `{"status":%d}`, status)
	})
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(listener)
	}()

	select {
	case err := <-serveErr:
		if err != nil && !stdErrors.Is(err, http.ErrServerClosed) {
			return 1, errors.NewIOError("health server failed", err)
		}
		return 0, nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return 0, nil
	}
}

func serveGRPC(ctx context.Context, listener net.Listener) (int, error) {
	server := grpc.NewServer()
	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, healthServer)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(listener)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return 1, errors.NewIOError("grpc health server failed", err)
		}
		return 0, nil
	case <-ctx.Done():
		server.GracefulStop()
		return 0, nil
	}
}

// Main runs the stub from the environment until SIGINT or SIGTERM and
// returns the exit code. Test binaries call it from TestMain when
// EnvStubMode is set.
func Main() int {
	zapLogger, err := logging.NewZapLogger(logging.Config{Level: "info", Format: "console", Output: "stderr"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		return 2
	}
	defer zapLogger.Close()

	logger := logging.ForBackend("module: stub-backend, ", zapLogger)

	opts, err := OptionsFromEnv(os.LookupEnv)
	if err != nil {
		logger.Errorf("Invalid stub configuration: %v", err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code, err := Run(ctx, opts, logger)
	if err != nil {
		logger.Errorf("Stub backend failed: %v", err)
	}
	return code
}

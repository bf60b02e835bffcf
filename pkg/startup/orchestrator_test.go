package startup

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/core-tools/hsu-backend-shell/pkg/domain"
	"github.com/core-tools/hsu-backend-shell/pkg/errors"
	"github.com/core-tools/hsu-backend-shell/pkg/locator"
	"github.com/core-tools/hsu-backend-shell/pkg/logcollection"
	"github.com/core-tools/hsu-backend-shell/pkg/logging"
	"github.com/core-tools/hsu-backend-shell/pkg/monitoring"
	"github.com/core-tools/hsu-backend-shell/pkg/portalloc"
	"github.com/core-tools/hsu-backend-shell/pkg/process"
	"github.com/core-tools/hsu-backend-shell/pkg/stubbackend"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// ===== MOCKS =====

type MockAllocator struct {
	mock.Mock
}

func (m *MockAllocator) Allocate() (int, error) {
	args := m.Called()
	return args.Int(0), args.Error(1)
}

type MockLocator struct {
	mock.Mock
}

func (m *MockLocator) Resolve(packaged bool, platform locator.Platform) (domain.BackendCommand, error) {
	args := m.Called(packaged, platform)
	return args.Get(0).(domain.BackendCommand), args.Error(1)
}

type MockPoller struct {
	mock.Mock
}

func (m *MockPoller) WaitForReady(ctx context.Context, origin domain.Origin, exited <-chan struct{}) error {
	args := m.Called(ctx, origin, exited)
	return args.Error(0)
}

type MockReporter struct {
	mock.Mock
}

func (m *MockReporter) Report(failure *Failure) {
	m.Called(failure)
}

// countingAllocator records every lease it hands out
type countingAllocator struct {
	inner  portalloc.Allocator
	mutex  sync.Mutex
	leases []int
}

func (c *countingAllocator) Allocate() (int, error) {
	port, err := c.inner.Allocate()
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if err == nil {
		c.leases = append(c.leases, port)
	}
	return port, err
}

type syncBuffer struct {
	mutex sync.Mutex
	buf   bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.buf.String()
}

// ===== HELPERS =====

func stubLocator(t *testing.T) *MockLocator {
	t.Helper()
	self, err := os.Executable()
	require.NoError(t, err)

	loc := &MockLocator{}
	loc.On("Resolve", false, locator.PlatformLinux).
		Return(domain.BackendCommand{Path: self, Dir: t.TempDir()}, nil)
	return loc
}

type fixture struct {
	allocator  *countingAllocator
	supervisor process.Supervisor
	output     *syncBuffer
	reporter   *MockReporter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	output := &syncBuffer{}
	sink := logcollection.NewWriterSink(output, "memory://backend.log", logging.NewNopLogger())
	supervisor := process.NewSupervisor(process.SupervisorOptions{GracefulTimeout: 2 * time.Second}, sink, logging.NewNopLogger())
	t.Cleanup(func() { supervisor.Teardown(context.Background()) })

	return &fixture{
		allocator:  &countingAllocator{inner: portalloc.NewLoopbackAllocator("", logging.NewNopLogger())},
		supervisor: supervisor,
		output:     output,
		reporter:   &MockReporter{},
	}
}

func (f *fixture) orchestrator(t *testing.T, loc locator.Locator, poller monitoring.Poller, stubEnv ...string) *Orchestrator {
	t.Helper()
	return NewOrchestrator(Options{
		Platform:    locator.PlatformLinux,
		DataDir:     filepath.Join(t.TempDir(), "backend-data"),
		Environment: append([]string{stubbackend.EnvStubMode + "=1"}, stubEnv...),
		LogLocation: "memory://backend.log",
	}, Dependencies{
		Allocator:  f.allocator,
		Locator:    loc,
		Supervisor: f.supervisor,
		Poller:     poller,
		Reporter:   f.reporter,
	}, logging.NewNopLogger())
}

func realPoller(t *testing.T, timeout time.Duration) monitoring.Poller {
	t.Helper()
	config := monitoring.DefaultHealthCheckConfig()
	config.Timeout = timeout
	poller, err := monitoring.NewPoller(config, logging.NewNopLogger())
	require.NoError(t, err)
	return poller
}

func statesOf(history []Transition) []State {
	states := []State{StateIdle}
	for _, transition := range history {
		states = append(states, transition.To)
	}
	return states
}

// ===== TESTS =====

func TestOrchestrator_EndToEndReady(t *testing.T) {
	f := newFixture(t)
	orchestrator := f.orchestrator(t, stubLocator(t), realPoller(t, 20*time.Second), stubbackend.EnvDelay+"=500ms")

	var observed []Transition
	orchestrator.OnTransition(func(transition Transition) { observed = append(observed, transition) })

	start := time.Now()
	origin, err := orchestrator.Run(context.Background())
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.GreaterOrEqual(t, elapsed, 500*time.Millisecond)
	assert.Less(t, elapsed, 20*time.Second)

	require.Len(t, f.allocator.leases, 1)
	assert.Equal(t, f.allocator.leases[0], origin.Port)
	assert.Equal(t, "http", origin.Scheme)
	assert.Equal(t, "127.0.0.1", origin.Host)

	assert.Equal(t, StateReady, orchestrator.State())
	assert.Equal(t, []State{StateIdle, StatePortAllocated, StateLocated, StateSpawned, StateHealthChecking, StateReady},
		statesOf(orchestrator.History()))
	assert.Equal(t, orchestrator.History(), observed)

	// The backend really serves on the handed out origin
	resp, err := http.Get(origin.URL("/health"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Contains(t, f.output.String(), fmt.Sprintf("port: %d", origin.Port))
	f.reporter.AssertNotCalled(t, "Report", mock.Anything)

	require.NoError(t, f.supervisor.Teardown(context.Background()))
	assert.Nil(t, f.supervisor.Current())
}

func TestOrchestrator_ProcessExitsBeforeReady(t *testing.T) {
	f := newFixture(t)
	f.reporter.On("Report", mock.AnythingOfType("*startup.Failure")).Return()

	orchestrator := f.orchestrator(t, stubLocator(t), realPoller(t, 20*time.Second),
		stubbackend.EnvExitAfter+"=1s", stubbackend.EnvExitCode+"=2")

	start := time.Now()
	_, err := orchestrator.Run(context.Background())
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, errors.IsProcessExitedEarlyError(err))
	assert.GreaterOrEqual(t, elapsed, time.Second)
	assert.Less(t, elapsed, 3*time.Second, "must not wait for the 20s timeout")

	var failure *Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, PhaseHealthCheck, failure.Phase)
	assert.Equal(t, StateHealthChecking, failure.State)
	assert.Equal(t, "memory://backend.log", failure.LogPath)
	require.NotNil(t, failure.Exit)
	assert.Equal(t, 2, failure.Exit.Code)
	assert.Equal(t, errors.ErrorTypeProcessExitedEarly, failure.Kind())

	assert.Equal(t, StateFailed, orchestrator.State())
	f.reporter.AssertNumberOfCalls(t, "Report", 1)
	assert.Contains(t, f.output.String(), "exit code: 2")
}

func TestOrchestrator_HealthTimeoutTearsDownBackend(t *testing.T) {
	f := newFixture(t)
	f.reporter.On("Report", mock.Anything).Return()

	poller := &MockPoller{}
	poller.On("WaitForReady", mock.Anything, mock.Anything, mock.Anything).
		Return(errors.NewHealthCheckTimeoutError("backend health check timed out", nil))

	orchestrator := f.orchestrator(t, stubLocator(t), poller)

	_, err := orchestrator.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsHealthCheckTimeoutError(err))

	var failure *Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, PhaseHealthCheck, failure.Phase)
	assert.Nil(t, failure.Exit)
	assert.False(t, failure.Cancelled())

	// The backend is gone and the supervisor refuses a retry
	assert.Nil(t, f.supervisor.Current())
	assert.Contains(t, f.output.String(), " ended ")

	// The origin passed to the poller uses the single lease
	require.Len(t, f.allocator.leases, 1)
	origin := poller.Calls[0].Arguments.Get(1).(domain.Origin)
	assert.Equal(t, f.allocator.leases[0], origin.Port)
	f.reporter.AssertNumberOfCalls(t, "Report", 1)
}

func TestOrchestrator_AllocationFailure(t *testing.T) {
	f := newFixture(t)
	f.reporter.On("Report", mock.Anything).Return()

	allocator := &MockAllocator{}
	allocator.On("Allocate").Return(0, errors.NewAllocationError("failed to bind an ephemeral port", nil))
	loc := &MockLocator{}
	poller := &MockPoller{}

	orchestrator := NewOrchestrator(Options{Platform: locator.PlatformLinux, DataDir: t.TempDir()}, Dependencies{
		Allocator:  allocator,
		Locator:    loc,
		Supervisor: f.supervisor,
		Poller:     poller,
		Reporter:   f.reporter,
	}, logging.NewNopLogger())

	_, err := orchestrator.Run(context.Background())

	var failure *Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, PhaseAllocatePort, failure.Phase)
	assert.Equal(t, StateIdle, failure.State)
	assert.True(t, errors.IsAllocationError(err))
	loc.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything)
	poller.AssertNotCalled(t, "WaitForReady", mock.Anything, mock.Anything, mock.Anything)
	f.reporter.AssertNumberOfCalls(t, "Report", 1)
}

func TestOrchestrator_LocateFailure(t *testing.T) {
	f := newFixture(t)
	f.reporter.On("Report", mock.Anything).Return()

	loc := &MockLocator{}
	loc.On("Resolve", false, locator.PlatformLinux).
		Return(domain.BackendCommand{}, errors.NewValidationError("backend root directory is not set", nil))

	orchestrator := f.orchestrator(t, loc, &MockPoller{})
	_, err := orchestrator.Run(context.Background())

	var failure *Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, PhaseLocateBackend, failure.Phase)
	assert.Equal(t, StatePortAllocated, failure.State)
	assert.Len(t, f.allocator.leases, 1)
}

func TestOrchestrator_SpawnFailure(t *testing.T) {
	f := newFixture(t)
	f.reporter.On("Report", mock.Anything).Return()

	missing := domain.BackendCommand{Path: filepath.Join(t.TempDir(), "pdfwm_backend"), Bundled: true}
	loc := &MockLocator{}
	loc.On("Resolve", false, locator.PlatformLinux).Return(missing, nil)
	poller := &MockPoller{}

	orchestrator := f.orchestrator(t, loc, poller)
	_, err := orchestrator.Run(context.Background())

	var failure *Failure
	require.ErrorAs(t, err, &failure)
	assert.True(t, errors.IsSpawnError(err))
	assert.Equal(t, PhaseSpawn, failure.Phase)
	assert.Equal(t, StateLocated, failure.State)
	assert.Equal(t, missing, failure.Command)
	poller.AssertNotCalled(t, "WaitForReady", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, []State{StateIdle, StatePortAllocated, StateLocated, StateFailed}, statesOf(orchestrator.History()))
}

func TestOrchestrator_CancelledIsNotReported(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(300*time.Millisecond, cancel)

	// The stub never becomes ready within the test
	orchestrator := f.orchestrator(t, stubLocator(t), realPoller(t, 20*time.Second), stubbackend.EnvDelay+"=30s")

	start := time.Now()
	_, err := orchestrator.Run(ctx)

	var failure *Failure
	require.ErrorAs(t, err, &failure)
	assert.True(t, failure.Cancelled())
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Nil(t, f.supervisor.Current())
	f.reporter.AssertNotCalled(t, "Report", mock.Anything)
}

func TestOrchestrator_RunOnlyOnce(t *testing.T) {
	f := newFixture(t)
	f.reporter.On("Report", mock.Anything).Return()

	allocator := &MockAllocator{}
	allocator.On("Allocate").Return(0, errors.NewAllocationError("no port", nil)).Once()

	orchestrator := NewOrchestrator(Options{DataDir: t.TempDir()}, Dependencies{
		Allocator:  allocator,
		Locator:    &MockLocator{},
		Supervisor: f.supervisor,
		Poller:     &MockPoller{},
		Reporter:   f.reporter,
	}, logging.NewNopLogger())

	_, err := orchestrator.Run(context.Background())
	require.Error(t, err)

	_, err = orchestrator.Run(context.Background())
	assert.True(t, errors.IsConflictError(err))
	allocator.AssertNumberOfCalls(t, "Allocate", 1)
}

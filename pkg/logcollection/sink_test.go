package logcollection

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/core-tools/hsu-backend-shell/pkg/domain"
	"github.com/core-tools/hsu-backend-shell/pkg/errors"
	"github.com/core-tools/hsu-backend-shell/pkg/logcollection/config"
	"github.com/core-tools/hsu-backend-shell/pkg/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedTime = time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)

func fixedOptions() []SinkOption {
	return []SinkOption{
		WithClock(func() time.Time { return fixedTime }),
		WithSessionIDs(func() string { return "session-1" }),
	}
}

func TestSink_SessionFormat(t *testing.T) {
	var buf bytes.Buffer
	sink := NewWriterSink(&buf, "memory", logging.NewNopLogger(), fixedOptions()...)

	id := sink.BeginSession("/opt/app/backend/pdfwm_backend")
	sink.Write(Chunk{Stream: StdoutStream, Data: []byte("listening on 127.0.0.1:5000\n")})
	sink.Write(Chunk{Stream: StderrStream, Data: []byte("partial")})
	sink.Write(Chunk{Stream: StderrStream, Data: nil})
	sink.EndSession(domain.ExitStatus{Code: 1})

	assert.Equal(t, "session-1", id)
	assert.Equal(t, strings.Join([]string{
		"===== backend session session-1 started 2024-05-01T10:30:00Z command: /opt/app/backend/pdfwm_backend =====",
		"[stdout] listening on 127.0.0.1:5000",
		"[stderr] partial",
		"===== backend session session-1 ended 2024-05-01T10:30:00Z exit code: 1 signal: none =====",
		"",
	}, "\n"), buf.String())

	status := sink.Status()
	assert.Equal(t, "memory", status.Location)
	assert.Equal(t, 1, status.Sessions)
	assert.Equal(t, int64(2), status.Chunks)
	assert.Equal(t, int64(buf.Len()), status.BytesWritten)
	assert.Empty(t, status.SessionID)
}

func TestSink_EndSessionWithSignal(t *testing.T) {
	var buf bytes.Buffer
	sink := NewWriterSink(&buf, "memory", logging.NewNopLogger(), fixedOptions()...)

	sink.BeginSession("python3 app.py")
	sink.EndSession(domain.ExitStatus{Code: -1, Signal: "terminated"})

	assert.Contains(t, buf.String(), "exit code: -1 signal: terminated =====\n")
}

func TestSink_CollectDrainsChannel(t *testing.T) {
	var buf bytes.Buffer
	sink := NewWriterSink(&buf, "memory", logging.NewNopLogger(), fixedOptions()...)

	chunks := make(chan Chunk, 8)
	for i := 0; i < 5; i++ {
		chunks <- Chunk{Stream: StdoutStream, Data: []byte(fmt.Sprintf("line %d\n", i))}
	}
	close(chunks)

	sink.Collect(chunks)

	for i := 0; i < 5; i++ {
		assert.Contains(t, buf.String(), fmt.Sprintf("[stdout] line %d\n", i))
	}
	assert.Equal(t, int64(5), sink.Status().Chunks)
}

func TestSink_FileAppendsAcrossSessions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app", "backend.log")

	for i := 0; i < 2; i++ {
		sink, err := NewSink(config.OutputConfig{Type: config.OutputTypeFile, Path: path}, logging.NewNopLogger())
		require.NoError(t, err)
		assert.Equal(t, path, sink.Location())

		sink.BeginSession("backend")
		sink.Write(Chunk{Stream: StdoutStream, Data: []byte(fmt.Sprintf("run %d\n", i))})
		sink.EndSession(domain.ExitStatus{})
		require.NoError(t, sink.Close())
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.Equal(t, 2, strings.Count(content, "started"))
	assert.Equal(t, 2, strings.Count(content, "ended"))
	assert.Less(t, strings.Index(content, "run 0"), strings.Index(content, "run 1"))
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) {
	return 0, fmt.Errorf("disk full")
}

type countingLogger struct {
	logging.Logger
	warnings int
}

func (c *countingLogger) Warnf(format string, args ...interface{}) {
	c.warnings++
}

func TestSink_WriteFailuresAreNotFatal(t *testing.T) {
	logger := &countingLogger{Logger: logging.NewNopLogger()}
	sink := NewWriterSink(failingWriter{}, "broken", logger)

	assert.NotPanics(t, func() {
		sink.BeginSession("backend")
		sink.Write(Chunk{Stream: StdoutStream, Data: []byte("x")})
		sink.Write(Chunk{Stream: StderrStream, Data: []byte("y")})
		sink.EndSession(domain.ExitStatus{})
	})

	status := sink.Status()
	assert.Equal(t, int64(4), status.WriteErrors)
	assert.Equal(t, "disk full", status.LastError)
	assert.Zero(t, status.BytesWritten)
	assert.Equal(t, 1, logger.warnings)
}

func TestSink_UnwritableFileIsNotFatal(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("file, not dir"), 0644))

	sink, err := NewSink(config.OutputConfig{Type: config.OutputTypeFile, Path: filepath.Join(blocker, "backend.log")}, logging.NewNopLogger())
	require.NoError(t, err)

	sink.BeginSession("backend")
	assert.Equal(t, int64(1), sink.Status().WriteErrors)
	assert.NoError(t, sink.Close())
}

func TestNewSink_InvalidConfig(t *testing.T) {
	_, err := NewSink(config.OutputConfig{Type: "syslog"}, logging.NewNopLogger())
	assert.True(t, errors.IsValidationError(err))
}

func TestNewSink_Console(t *testing.T) {
	sink, err := NewSink(config.OutputConfig{Type: config.OutputTypeConsole}, logging.NewNopLogger())
	require.NoError(t, err)
	assert.Equal(t, "console (stderr)", sink.Location())
}

package logcollection

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/core-tools/hsu-backend-shell/pkg/domain"
	"github.com/core-tools/hsu-backend-shell/pkg/errors"
	"github.com/core-tools/hsu-backend-shell/pkg/logcollection/config"
	"github.com/core-tools/hsu-backend-shell/pkg/logging"
)

const sessionDelimiter = "====="

type SinkOption func(*sink)

// WithClock replaces time.Now for session timestamps.
func WithClock(now func() time.Time) SinkOption {
	return func(s *sink) {
		s.now = now
	}
}

// WithSessionIDs replaces the uuid session id generator.
func WithSessionIDs(next func() string) SinkOption {
	return func(s *sink) {
		s.nextID = next
	}
}

type sink struct {
	writer outputWriter
	logger logging.Logger
	now    func() time.Time
	nextID func() string

	mutex     sync.Mutex
	sessionID string
	status    Status
	warned    bool
}

// NewSink creates a sink for the given output. Relative file paths are used
// as is; callers resolve them against the user log directory.
func NewSink(outputConfig config.OutputConfig, logger logging.Logger, opts ...SinkOption) (Sink, error) {
	if err := outputConfig.Validate(); err != nil {
		return nil, errors.NewValidationError("invalid backend output configuration", err)
	}

	var writer outputWriter
	switch outputConfig.Type {
	case config.OutputTypeFile:
		writer = &fileWriter{path: outputConfig.Path}
	default:
		writer = &streamWriter{w: os.Stderr, location: "console (stderr)"}
	}

	return newSink(writer, logger, opts...), nil
}

// NewWriterSink writes to an arbitrary stream. location is reported verbatim.
func NewWriterSink(w io.Writer, location string, logger logging.Logger, opts ...SinkOption) Sink {
	return newSink(&streamWriter{w: w, location: location}, logger, opts...)
}

func newSink(writer outputWriter, logger logging.Logger, opts ...SinkOption) *sink {
	s := &sink{
		writer: writer,
		logger: logger,
		now:    time.Now,
		nextID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.status.Location = writer.Location()
	return s
}

func (s *sink) BeginSession(command string) string {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.sessionID = s.nextID()
	s.status.SessionID = s.sessionID
	s.status.Sessions++

	line := fmt.Sprintf("%s backend session %s started %s command: %s %s\n",
		sessionDelimiter, s.sessionID, s.now().Format(time.RFC3339), command, sessionDelimiter)
	s.writeLocked([]byte(line))

	return s.sessionID
}

func (s *sink) Write(chunk Chunk) {
	if len(chunk.Data) == 0 {
		return
	}

	var buf bytes.Buffer
	buf.Grow(len(chunk.Data) + len(chunk.Stream) + 4)
	buf.WriteString("[")
	buf.WriteString(string(chunk.Stream))
	buf.WriteString("] ")
	buf.Write(chunk.Data)
	if chunk.Data[len(chunk.Data)-1] != '\n' {
		buf.WriteByte('\n')
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.status.Chunks++
	s.writeLocked(buf.Bytes())
}

func (s *sink) Collect(chunks <-chan Chunk) {
	for chunk := range chunks {
		s.Write(chunk)
	}
}

func (s *sink) EndSession(exit domain.ExitStatus) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	signal := exit.Signal
	if signal == "" {
		signal = "none"
	}
	line := fmt.Sprintf("%s backend session %s ended %s exit code: %d signal: %s %s\n",
		sessionDelimiter, s.sessionID, s.now().Format(time.RFC3339), exit.Code, signal, sessionDelimiter)
	s.writeLocked([]byte(line))
	s.sessionID = ""
	s.status.SessionID = ""
}

func (s *sink) Location() string {
	return s.writer.Location()
}

func (s *sink) Status() Status {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.status
}

func (s *sink) Close() error {
	if err := s.writer.Close(); err != nil {
		return errors.NewOutputSinkError("failed to close backend output", err).WithContext("location", s.writer.Location())
	}
	return nil
}

func (s *sink) writeLocked(p []byte) {
	s.status.LastActivity = s.now()

	if err := s.writer.Write(p); err != nil {
		s.status.WriteErrors++
		s.status.LastError = err.Error()
		if !s.warned {
			s.warned = true
			s.logger.Warnf("Backend output could not be written, location: %s, error: %v",
				s.writer.Location(), errors.NewOutputSinkError("write failed", err))
		}
		return
	}

	s.status.BytesWritten += int64(len(p))
}

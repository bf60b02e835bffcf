package logcollection

import (
	"time"

	"github.com/core-tools/hsu-backend-shell/pkg/domain"
)

// StreamType identifies the source stream
type StreamType string

const (
	StdoutStream StreamType = "stdout"
	StderrStream StreamType = "stderr"
)

// Chunk is one read from a backend stream. Data is not split into lines.
type Chunk struct {
	Stream StreamType
	Data   []byte
}

// Sink persists backend output, delimited per launch.
//
// Write failures are never returned to callers. They are counted, logged once,
// and exposed through Status.
type Sink interface {
	// BeginSession writes the start delimiter and returns the session id.
	BeginSession(command string) string
	// Write appends a single chunk to the current session.
	Write(chunk Chunk)
	// Collect writes chunks until the channel is closed.
	Collect(chunks <-chan Chunk)
	// EndSession writes the end delimiter with the exit details.
	EndSession(exit domain.ExitStatus)
	// Location is a human-readable pointer to the output, shown in failure reports.
	Location() string
	Status() Status
	Close() error
}

type Status struct {
	Location     string    `json:"location"`
	SessionID    string    `json:"session_id,omitempty"`
	Sessions     int       `json:"sessions"`
	Chunks       int64     `json:"chunks"`
	BytesWritten int64     `json:"bytes_written"`
	WriteErrors  int64     `json:"write_errors"`
	LastError    string    `json:"last_error,omitempty"`
	LastActivity time.Time `json:"last_activity"`
}

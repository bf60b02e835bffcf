package process

import (
	"github.com/core-tools/hsu-backend-shell/pkg/logcollection"
)

// chunkWriter forwards each write from a backend stream to the collector
// channel. exec.Cmd runs one copy loop per stream and Wait returns only after
// those loops have finished, so the channel can be closed once Wait returns.
type chunkWriter struct {
	stream logcollection.StreamType
	chunks chan<- logcollection.Chunk
}

func (w *chunkWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	// exec reuses its read buffer
	data := make([]byte, len(p))
	copy(data, p)
	w.chunks <- logcollection.Chunk{Stream: w.stream, Data: data}
	return len(p), nil
}

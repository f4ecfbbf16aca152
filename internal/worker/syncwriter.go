package worker

import (
	"io"
	"sync"
)

// syncWriter serializes writes from many workers into one underlying
// writer so two workers' output lines never interleave mid-line.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewSyncWriter wraps w so it can be shared safely across every Worker in
// a run's pool.
func NewSyncWriter(w io.Writer) io.Writer {
	return &syncWriter{w: w}
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

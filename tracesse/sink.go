// Package tracesse adapts the SSE wire-format codec in sse/ into a
// ports.TraceSink: each TraceEvent is encoded as one SSE frame and written
// to an io.Writer, terminated by a "done" event. It is transport-agnostic —
// the HTTP request/response plumbing that would serve these frames to a
// browser is out of scope (spec.md §1 Non-goals).
package tracesse

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/corpusqa/pipelineengine/ports"
	"github.com/corpusqa/pipelineengine/sse"
)

// Sink streams TraceEvents as SSE frames to an underlying io.Writer. Safe
// for concurrent Emit calls; writes are serialized.
type Sink struct {
	mu      sync.Mutex
	w       io.Writer
	encoder *sse.Encoder
	nextID  int
}

var _ ports.TraceSink = (*Sink)(nil)

// NewSink builds a Sink writing SSE frames to w.
func NewSink(w io.Writer) *Sink {
	return &Sink{w: w, encoder: sse.NewEncoder()}
}

// Emit encodes event as one SSE "step" or "done" frame and writes it.
// Best-effort per spec.md §5: a failing sink must not fail the run, so
// callers are expected to ignore (or merely log) the returned error.
func (s *Sink) Emit(event ports.TraceEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("tracesse: marshal event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	msg := &sse.Message{
		ID:    fmt.Sprintf("%d", s.nextID),
		Event: event.Type,
		Data:  data,
	}
	encoded, err := s.encoder.Encode(msg)
	if err != nil {
		return fmt.Errorf("tracesse: encode event: %w", err)
	}

	_, err = s.w.Write(encoded)
	if err != nil {
		return fmt.Errorf("tracesse: write event: %w", err)
	}
	return nil
}

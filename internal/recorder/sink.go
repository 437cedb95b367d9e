// Package recorder buffers captured media into bounded chunks. Chunks are
// cut on a fixed interval and handed to the session for buffering; nothing
// is written to durable storage until the session finalizes.
package recorder

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultChunkInterval matches the one-second chunk cadence of the
// browser-side media recorder.
const DefaultChunkInterval = time.Second

// ChunkFunc receives each cut chunk in emission order. An error means the
// owner could not buffer the chunk; the sink logs it and keeps recording
// with whatever was already captured.
type ChunkFunc func(chunk []byte) error

// Sink accumulates media bytes and cuts them into chunks on a fixed
// interval. One sink serves exactly one session.
type Sink struct {
	interval time.Duration
	onChunk  ChunkFunc

	mu      sync.Mutex
	pending []byte
	started bool
	stopped bool

	stop chan struct{}
	done chan struct{}
}

// NewSink builds a sink. A zero interval selects DefaultChunkInterval.
func NewSink(interval time.Duration, onChunk ChunkFunc) *Sink {
	if interval <= 0 {
		interval = DefaultChunkInterval
	}
	return &Sink{
		interval: interval,
		onChunk:  onChunk,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins the interval cut loop.
func (s *Sink) Start() {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	go s.run()
}

func (s *Sink) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cut()
		case <-s.stop:
			// Flush whatever accumulated since the last tick.
			s.cut()
			return
		}
	}
}

// Write appends media bytes to the pending buffer. Bytes written after
// Stop are dropped.
func (s *Sink) Write(p []byte) {
	if len(p) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.pending = append(s.pending, p...)
}

// cut emits the pending buffer as a single chunk, if any.
func (s *Sink) cut() {
	s.mu.Lock()
	if len(s.pending) == 0 {
		s.mu.Unlock()
		return
	}
	chunk := s.pending
	s.pending = nil
	s.mu.Unlock()

	if err := s.onChunk(chunk); err != nil {
		log.Warn().Err(err).Int("bytes", len(chunk)).Msg("recorder chunk dropped")
	}
}

// Stop flushes the pending partial chunk and ends the cut loop. Idempotent.
func (s *Sink) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.stopped = true
	started := s.started
	s.mu.Unlock()

	if !started {
		close(s.done)
		return
	}
	close(s.stop)
	<-s.done
}

// Finalize concatenates chunks in order into one playable recording blob.
func Finalize(chunks [][]byte) []byte {
	var total int
	for _, c := range chunks {
		total += len(c)
	}
	blob := make([]byte, 0, total)
	for _, c := range chunks {
		blob = append(blob, c...)
	}
	return blob
}

// Package speech provides recognizer adapters for the voice trigger: a
// websocket streaming recognizer and a relay fed by transcripts posted to
// the API.
package speech

import (
	"sync"

	"github.com/starford/trailguard/internal/models"
)

// stream is the result side of one listen session. finish closes Results
// exactly once and records why the session ended.
type stream struct {
	mu      sync.Mutex
	results chan models.Transcript
	done    chan struct{}
	closed  bool
	err     error
}

func newStream() *stream {
	return &stream{
		results: make(chan models.Transcript, 16),
		done:    make(chan struct{}),
	}
}

func (s *stream) Results() <-chan models.Transcript { return s.results }

func (s *stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// push hands t to the reader, dropping it if the buffer is full. It reports
// false once the stream is finished.
func (s *stream) push(t models.Transcript) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.results <- t:
	default:
	}
	return true
}

func (s *stream) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.err = err
	close(s.results)
	close(s.done)
}

func (s *stream) finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

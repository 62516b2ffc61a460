package speech

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/starford/trailguard/internal/apperr"
	"github.com/starford/trailguard/internal/models"
	"github.com/starford/trailguard/internal/ports"
)

var _ ports.SpeechService = (*Relay)(nil)

// Relay is a recognizer whose transcripts are pushed in from outside, for
// example by a phone app that runs recognition on-device and posts the text.
// A final transcript ends the current utterance.
type Relay struct {
	mu      sync.Mutex
	current *stream
}

// NewRelay creates an idle Relay.
func NewRelay() *Relay {
	return &Relay{}
}

// Available is always true: transcripts may arrive at any time.
func (r *Relay) Available() bool { return true }

// StartListening opens a session. Only one session may be open.
func (r *Relay) StartListening(ctx context.Context) (ports.ListenSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != nil && !r.current.finished() {
		return nil, fmt.Errorf("speech: relay already listening: %w", apperr.ErrConflict)
	}
	s := newStream()
	r.current = s
	go func() {
		select {
		case <-ctx.Done():
			s.finish(nil)
		case <-s.done:
		}
	}()
	return &relaySession{stream: s}, nil
}

// Listening reports whether a session is open.
func (r *Relay) Listening() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current != nil && !r.current.finished()
}

// Push delivers a transcript to the open session. Without one it fails
// with apperr.ErrNotActive.
func (r *Relay) Push(t models.Transcript) error {
	t.Text = strings.TrimSpace(t.Text)
	if t.Text == "" {
		return fmt.Errorf("speech: empty transcript")
	}

	r.mu.Lock()
	s := r.current
	if t.Final {
		r.current = nil
	}
	r.mu.Unlock()

	if s == nil || !s.push(t) {
		return fmt.Errorf("speech: not listening: %w", apperr.ErrNotActive)
	}
	if t.Final {
		s.finish(nil)
	}
	return nil
}

type relaySession struct {
	*stream
}

func (s *relaySession) Stop() error {
	s.finish(nil)
	return nil
}

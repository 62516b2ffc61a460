package voice

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/starford/trailguard/internal/apperr"
	"github.com/starford/trailguard/internal/models"
	"github.com/starford/trailguard/internal/ports"
)

// Event types emitted for prompts.
const (
	EventPrompt         = "voice.prompt"
	EventPromptResolved = "voice.prompt.resolved"
)

// Prompt resolutions.
const (
	ResolutionConfirmed = "confirmed"
	ResolutionCancelled = "cancelled"
	ResolutionExpired   = "expired"
)

// PromptResolved is the payload of EventPromptResolved.
type PromptResolved struct {
	ID         string `json:"id"`
	Resolution string `json:"resolution"`
}

type waiting struct {
	prompt models.VoicePrompt
	answer chan bool
}

// PromptQueue is a Confirmer that publishes prompts as events and waits for
// a client to resolve them. A prompt left unanswered until ctx ends counts
// as declined.
type PromptQueue struct {
	events ports.EventSink

	mu      sync.Mutex
	pending map[string]*waiting
}

var _ ports.Confirmer = (*PromptQueue)(nil)

// NewPromptQueue creates a queue publishing to events (may be nil).
func NewPromptQueue(events ports.EventSink) *PromptQueue {
	if events == nil {
		events = ports.NopSink{}
	}
	return &PromptQueue{events: events, pending: make(map[string]*waiting)}
}

// Confirm publishes p and blocks until it is resolved or ctx ends.
func (q *PromptQueue) Confirm(ctx context.Context, p models.VoicePrompt) (bool, error) {
	w := &waiting{prompt: p, answer: make(chan bool, 1)}
	q.mu.Lock()
	if _, dup := q.pending[p.ID]; dup {
		q.mu.Unlock()
		return false, fmt.Errorf("voice: prompt %s already pending: %w", p.ID, apperr.ErrConflict)
	}
	q.pending[p.ID] = w
	q.mu.Unlock()

	q.events.Emit(EventPrompt, p)

	select {
	case ok := <-w.answer:
		res := ResolutionCancelled
		if ok {
			res = ResolutionConfirmed
		}
		q.events.Emit(EventPromptResolved, PromptResolved{ID: p.ID, Resolution: res})
		return ok, nil
	case <-ctx.Done():
		q.mu.Lock()
		delete(q.pending, p.ID)
		q.mu.Unlock()
		// A resolution may have raced the deadline.
		select {
		case ok := <-w.answer:
			return ok, nil
		default:
		}
		q.events.Emit(EventPromptResolved, PromptResolved{ID: p.ID, Resolution: ResolutionExpired})
		return false, nil
	}
}

// Resolve answers a pending prompt. Unknown or already resolved ids yield
// apperr.ErrNotFound.
func (q *PromptQueue) Resolve(id string, confirmed bool) error {
	q.mu.Lock()
	w, ok := q.pending[id]
	if ok {
		delete(q.pending, id)
	}
	q.mu.Unlock()
	if !ok {
		return fmt.Errorf("voice: prompt %s: %w", id, apperr.ErrNotFound)
	}
	w.answer <- confirmed
	return nil
}

// Pending lists unresolved prompts, oldest first.
func (q *PromptQueue) Pending() []models.VoicePrompt {
	q.mu.Lock()
	out := make([]models.VoicePrompt, 0, len(q.pending))
	for _, w := range q.pending {
		out = append(out, w.prompt)
	}
	q.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

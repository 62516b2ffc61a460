// Package sse streams journey, delivery and voice prompt events to
// companion clients over Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/starford/trailguard/internal/ports"
)

var _ ports.EventSink = (*Broker)(nil)

const (
	clientBuffer   = 64
	defaultWindow  = 2 * time.Second
	heartbeatFrame = ": keepalive\n\n"
)

// Event is one frame sent to every listener.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Broker fans events out to connected listeners. Listener membership and
// rate-limit bookkeeping live inside one loop goroutine; the exported methods
// only exchange messages with it.
type Broker struct {
	window    time.Duration
	limited   map[string]bool
	heartbeat time.Duration

	join   chan chan []byte
	leave  chan chan []byte
	events chan Event
	count  chan chan int

	quit    chan struct{}
	done    chan struct{}
	stopped atomic.Bool
}

// Option adjusts a Broker.
type Option func(*Broker)

// WithHeartbeat makes ServeHTTP write a comment frame every d so idle
// streams survive proxies and mobile network timeouts. Zero disables it.
func WithHeartbeat(d time.Duration) Option {
	return func(b *Broker) { b.heartbeat = d }
}

// NewBroker starts a broker. Event types listed in limited go out at most
// once per window (journey.position updates, for example); every other type
// is always delivered.
func NewBroker(window time.Duration, limited ...string) *Broker {
	return NewBrokerWithOptions(window, limited)
}

// NewBrokerWithOptions is NewBroker with options applied.
func NewBrokerWithOptions(window time.Duration, limited []string, opts ...Option) *Broker {
	if window <= 0 {
		window = defaultWindow
	}
	b := &Broker{
		window:  window,
		limited: make(map[string]bool, len(limited)),
		join:    make(chan chan []byte),
		leave:   make(chan chan []byte),
		events:  make(chan Event, 256),
		count:   make(chan chan int),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, t := range limited {
		b.limited[t] = true
	}
	for _, o := range opts {
		o(b)
	}
	go b.loop()
	return b
}

// frame renders e in the text/event-stream wire format.
func frame(e Event) ([]byte, error) {
	payload, err := json.Marshal(e.Data)
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", e.Type, payload)), nil
}

type loopState struct {
	listeners map[chan []byte]struct{}
	lastSent  map[string]time.Time
}

// admit reports whether e passes the per-type window.
func (b *Broker) admit(st *loopState, e Event, now time.Time) bool {
	if !b.limited[e.Type] {
		return true
	}
	if now.Sub(st.lastSent[e.Type]) < b.window {
		return false
	}
	st.lastSent[e.Type] = now
	return true
}

func (st *loopState) deliver(raw []byte) {
	for l := range st.listeners {
		select {
		case l <- raw:
		default:
			// Slow listener; it misses this frame.
		}
	}
}

func (b *Broker) loop() {
	defer close(b.done)

	st := &loopState{
		listeners: make(map[chan []byte]struct{}),
		lastSent:  make(map[string]time.Time),
	}
	for {
		select {
		case <-b.quit:
			for l := range st.listeners {
				close(l)
			}
			return
		case l := <-b.join:
			st.listeners[l] = struct{}{}
		case l := <-b.leave:
			if _, ok := st.listeners[l]; ok {
				delete(st.listeners, l)
				close(l)
			}
		case e := <-b.events:
			if !b.admit(st, e, time.Now()) {
				continue
			}
			raw, err := frame(e)
			if err != nil {
				continue
			}
			st.deliver(raw)
		case reply := <-b.count:
			reply <- len(st.listeners)
		}
	}
}

// Close stops the loop and closes every listener channel. It is idempotent.
func (b *Broker) Close() {
	if b.stopped.CompareAndSwap(false, true) {
		close(b.quit)
	}
	<-b.done
}

// Subscribe registers a listener. After Close the returned channel is
// already closed.
func (b *Broker) Subscribe() chan []byte {
	l := make(chan []byte, clientBuffer)
	if b.stopped.Load() {
		close(l)
		return l
	}
	select {
	case b.join <- l:
	case <-b.done:
		close(l)
	}
	return l
}

// Unsubscribe removes a listener and closes its channel.
func (b *Broker) Unsubscribe(l chan []byte) {
	if b.stopped.Load() {
		return
	}
	select {
	case b.leave <- l:
	case <-b.done:
	}
}

// ClientCount returns the number of connected listeners.
func (b *Broker) ClientCount() int {
	if b.stopped.Load() {
		return 0
	}
	reply := make(chan int, 1)
	select {
	case b.count <- reply:
	case <-b.done:
		return 0
	}
	select {
	case n := <-reply:
		return n
	case <-b.done:
		return 0
	}
}

// Publish queues e for every listener. It is a no-op after Close.
func (b *Broker) Publish(e Event) {
	if b.stopped.Load() {
		return
	}
	select {
	case b.events <- e:
	case <-b.done:
	}
}

// Emit implements ports.EventSink.
func (b *Broker) Emit(eventType string, data any) {
	b.Publish(Event{Type: eventType, Data: data})
}

// ServeHTTP handles GET /api/events.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	l := b.Subscribe()
	defer b.Unsubscribe(l)

	var beat <-chan time.Time
	if b.heartbeat > 0 {
		t := time.NewTicker(b.heartbeat)
		defer t.Stop()
		beat = t.C
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-beat:
			_, _ = w.Write([]byte(heartbeatFrame))
			flusher.Flush()
		case raw, ok := <-l:
			if !ok {
				return
			}
			_, _ = w.Write(raw)
			flusher.Flush()
		}
	}
}

package speech

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/starford/trailguard/internal/apperr"
	"github.com/starford/trailguard/internal/models"
	"github.com/starford/trailguard/internal/ports"
)

var _ ports.SpeechService = (*Websocket)(nil)

// WebsocketConfig controls the streaming recognizer connection.
type WebsocketConfig struct {
	URL         string
	APIKey      string
	DialTimeout time.Duration
}

// Websocket opens one recognizer stream per utterance. The server sends
// JSON events; a final transcript or a close frame ends the utterance.
type Websocket struct {
	cfg    WebsocketConfig
	dialer *websocket.Dialer
}

// NewWebsocket creates a streaming recognizer client.
func NewWebsocket(cfg WebsocketConfig) *Websocket {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	return &Websocket{
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.DialTimeout},
	}
}

// Available reports whether a recognizer endpoint is configured.
func (w *Websocket) Available() bool {
	return strings.TrimSpace(w.cfg.URL) != ""
}

// StartListening dials the recognizer and starts reading events.
func (w *Websocket) StartListening(ctx context.Context) (ports.ListenSession, error) {
	if !w.Available() {
		return nil, fmt.Errorf("speech: recognizer url not configured: %w", apperr.ErrRecognizerError)
	}

	headers := http.Header{}
	if w.cfg.APIKey != "" {
		headers.Set("Authorization", "Token "+w.cfg.APIKey)
	}
	conn, _, err := w.dialer.DialContext(ctx, w.cfg.URL, headers)
	if err != nil {
		return nil, fmt.Errorf("speech: connect: %v: %w", err, apperr.ErrRecognizerError)
	}

	s := &wsSession{conn: conn, stream: newStream()}
	go s.readLoop()
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Stop()
		case <-s.done:
		}
	}()
	return s, nil
}

type recognizerEvent struct {
	Type        string `json:"type"`
	Text        string `json:"text"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`
	Message     string `json:"message"`
}

type wsSession struct {
	*stream
	conn *websocket.Conn

	stopOnce sync.Once
	stopped  bool
	stopMu   sync.Mutex
}

// Stop closes the connection and waits for the read loop to finish.
func (s *wsSession) Stop() error {
	s.stopOnce.Do(func() {
		s.stopMu.Lock()
		s.stopped = true
		s.stopMu.Unlock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = s.conn.Close()
	})
	<-s.done
	return nil
}

func (s *wsSession) wasStopped() bool {
	s.stopMu.Lock()
	defer s.stopMu.Unlock()
	return s.stopped
}

func (s *wsSession) readLoop() {
	defer s.conn.Close()
	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			s.finish(s.readErr(err))
			return
		}

		var ev recognizerEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			continue
		}
		if strings.EqualFold(ev.Type, "error") {
			msg := strings.TrimSpace(ev.Message)
			if msg == "" {
				msg = "recognizer returned an unknown error"
			}
			s.finish(fmt.Errorf("speech: %s: %w", msg, apperr.ErrRecognizerError))
			return
		}

		text := strings.TrimSpace(ev.Text)
		final := ev.IsFinal || ev.SpeechFinal
		if text != "" {
			s.push(models.Transcript{Text: text, Final: final})
		}
		if ev.SpeechFinal {
			s.finish(nil)
			return
		}
	}
}

// readErr classifies a read failure: our own Stop and normal closes end the
// utterance cleanly, anything else is a recognizer error.
func (s *wsSession) readErr(err error) error {
	if s.wasStopped() {
		return nil
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) {
		return nil
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return fmt.Errorf("speech: closed with %d: %w", ce.Code, apperr.ErrRecognizerError)
	}
	return fmt.Errorf("speech: read: %v: %w", err, apperr.ErrRecognizerError)
}

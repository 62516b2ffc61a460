// Package voice listens for distress keywords during a journey and, after
// the user confirms, raises an SOS.
package voice

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/starford/trailguard/internal/apperr"
	"github.com/starford/trailguard/internal/models"
	"github.com/starford/trailguard/internal/ports"
)

// State is the listening state of the loop.
type State string

const (
	StateIdle      State = "idle"
	StateListening State = "listening"
)

// Trigger raises an SOS.
type Trigger interface {
	Trigger(ctx context.Context, source models.SOSSource) (models.DispatchReport, error)
}

// Config holds the voice loop knobs.
type Config struct {
	Keywords       []string
	RestartDelay   time.Duration
	ConfirmTimeout time.Duration
}

// Loop supervises recognizer sessions: it keeps exactly one session open
// while running, restarts it RestartDelay after each utterance or error,
// and turns confirmed keyword matches into SOS dispatches. Only one prompt
// is outstanding at a time.
type Loop struct {
	cfg       Config
	speech    ports.SpeechService
	confirmer ports.Confirmer
	trigger   Trigger
	matcher   *Matcher
	logger    *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	state   State
	prompts sync.WaitGroup
	pending atomic.Bool
}

// NewLoop creates an idle Loop.
func NewLoop(cfg Config, speech ports.SpeechService, confirmer ports.Confirmer, trigger Trigger, logger *slog.Logger) *Loop {
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = time.Second
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		cfg:       cfg,
		speech:    speech,
		confirmer: confirmer,
		trigger:   trigger,
		matcher:   NewMatcher(cfg.Keywords),
		logger:    logger,
		state:     StateIdle,
	}
}

// Start begins listening. Without an available recognizer it does nothing.
func (l *Loop) Start(ctx context.Context) error {
	if !l.speech.Available() {
		l.logger.Info("voice: recognizer unavailable, not listening")
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		return fmt.Errorf("voice: loop already running: %w", apperr.ErrConflict)
	}
	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})
	go l.run(runCtx, l.done)
	return nil
}

// Stop ends the current session and waits for the loop and any pending
// prompt to finish. A pending prompt is declined.
func (l *Loop) Stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	l.prompts.Wait()
	l.logger.Info("voice: stopped")
}

// State reports whether a session is currently open.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Loop) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

func (l *Loop) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer l.setState(StateIdle)
	for {
		err := l.listen(ctx)
		l.setState(StateIdle)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			restartsTotal.WithLabelValues("error").Inc()
			l.logger.Warn("voice: recognizer error, restarting", slog.String("error", err.Error()))
		} else {
			restartsTotal.WithLabelValues("utterance").Inc()
		}

		t := time.NewTimer(l.cfg.RestartDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// listen runs one session until it ends. It returns the session error, if any.
func (l *Loop) listen(ctx context.Context) error {
	session, err := l.speech.StartListening(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = session.Stop() }()
	l.setState(StateListening)

	results := session.Results()
	for {
		select {
		case <-ctx.Done():
			return nil
		case t, ok := <-results:
			if !ok {
				return session.Err()
			}
			if t.Final {
				l.handle(ctx, t.Text)
			}
		}
	}
}

func (l *Loop) handle(ctx context.Context, text string) {
	keyword, ok := l.matcher.Match(text)
	if !ok {
		return
	}
	if !l.pending.CompareAndSwap(false, true) {
		promptsTotal.WithLabelValues("suppressed").Inc()
		return
	}

	prompt := models.VoicePrompt{
		ID:         uuid.NewString(),
		Transcript: text,
		Keyword:    keyword,
		CreatedAt:  time.Now(),
	}
	promptsTotal.WithLabelValues("raised").Inc()
	l.logger.Info("voice: keyword detected", slog.String("keyword", keyword), slog.String("prompt_id", prompt.ID))

	l.prompts.Add(1)
	go func() {
		defer l.prompts.Done()
		defer l.pending.Store(false)
		l.confirm(ctx, prompt)
	}()
}

func (l *Loop) confirm(ctx context.Context, prompt models.VoicePrompt) {
	confirmCtx, cancel := context.WithTimeout(ctx, l.cfg.ConfirmTimeout)
	defer cancel()

	ok, err := l.confirmer.Confirm(confirmCtx, prompt)
	if err != nil {
		promptsTotal.WithLabelValues("failed").Inc()
		l.logger.Warn("voice: confirmation failed", slog.String("prompt_id", prompt.ID), slog.String("error", err.Error()))
		return
	}
	if !ok {
		promptsTotal.WithLabelValues("declined").Inc()
		l.logger.Info("voice: sos declined", slog.String("prompt_id", prompt.ID))
		return
	}

	promptsTotal.WithLabelValues("confirmed").Inc()
	// The SOS must go out even if the journey ends meanwhile.
	report, err := l.trigger.Trigger(context.WithoutCancel(ctx), models.SOSVoice)
	if err != nil {
		l.logger.Error("voice: sos dispatch failed", slog.String("prompt_id", prompt.ID), slog.String("error", err.Error()))
		return
	}
	l.logger.Info("voice: sos dispatched", slog.String("prompt_id", prompt.ID), slog.Int("sent", report.SentCount()))
}

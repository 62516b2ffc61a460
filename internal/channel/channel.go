// Package channel implements alert delivery channels.
//
// Supported types:
//   - "sms": HTTP SMS gateway (form POST, asynchronous status callbacks)
//   - "webhook": JSON POST to a chat or push relay
//   - "log": dry-run channel that only logs the message
package channel

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/starford/trailguard/internal/ports"
)

// Channel types.
const (
	TypeSMS     = "sms"
	TypeWebhook = "webhook"
	TypeLog     = "log"
)

const defaultTimeout = 15 * time.Second

// Config describes one configured channel.
type Config struct {
	Name           string        `yaml:"name"`
	Type           string        `yaml:"type"`
	URL            string        `yaml:"url"`
	AccountID      string        `yaml:"account_id"`
	Token          string        `yaml:"token"`
	From           string        `yaml:"from"`
	StatusCallback string        `yaml:"status_callback"`
	Timeout        time.Duration `yaml:"timeout"`
}

// StatusReceiver accepts delivery status callbacks for messages a channel
// has sent.
type StatusReceiver interface {
	HandleStatus(messageID, status, detail string) error
}

// New builds the channel described by cfg.
func New(cfg Config, logger *slog.Logger) (ports.AlertChannel, error) {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := &http.Client{Timeout: timeout}

	switch cfg.Type {
	case TypeSMS:
		return NewSMSGateway(cfg, client, logger)
	case TypeWebhook:
		return NewWebhook(cfg, client)
	case TypeLog:
		return NewLog(cfg.Name, logger), nil
	default:
		return nil, fmt.Errorf("channel %q: unknown type %q", cfg.Name, cfg.Type)
	}
}

// Build creates every configured channel, preserving order. The first
// channel is the primary one.
func Build(cfgs []Config, logger *slog.Logger) ([]ports.AlertChannel, error) {
	out := make([]ports.AlertChannel, 0, len(cfgs))
	for _, c := range cfgs {
		ch, err := New(c, logger)
		if err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, nil
}

package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/starford/trailguard/internal/apperr"
	"github.com/starford/trailguard/internal/models"
	"github.com/starford/trailguard/internal/ports"
)

// Webhook posts messages as JSON to a relay endpoint. A 2xx answer counts
// as delivered, so the receipt carries one immediate Delivered outcome.
type Webhook struct {
	cfg    Config
	client *http.Client
}

type webhookPayload struct {
	ID      string    `json:"id"`
	Channel string    `json:"channel"`
	To      string    `json:"to"`
	Text    string    `json:"text"`
	SentAt  time.Time `json:"sentAt"`
}

// NewWebhook creates a webhook channel.
func NewWebhook(cfg Config, client *http.Client) (*Webhook, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("channel %q: url is required", cfg.Name)
	}
	if cfg.Name == "" {
		cfg.Name = TypeWebhook
	}
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &Webhook{cfg: cfg, client: client}, nil
}

func (w *Webhook) Name() string { return w.cfg.Name }

func (w *Webhook) Send(ctx context.Context, destination, text string) (*ports.Receipt, error) {
	payload := webhookPayload{
		ID:      uuid.NewString(),
		Channel: w.cfg.Name,
		To:      destination,
		Text:    text,
		SentAt:  time.Now().UTC(),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("webhook: encode: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("webhook: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+w.cfg.Token)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webhook: send to %s: %v: %w", destination, err, apperr.ErrChannelSendFailed)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("webhook: relay returned %d: %w", resp.StatusCode, apperr.ErrChannelSendFailed)
	}

	ch := make(chan models.DeliveryOutcome, 1)
	ch <- models.DeliveryOutcome{
		MessageID:   payload.ID,
		Channel:     w.cfg.Name,
		Destination: destination,
		Outcome:     models.OutcomeDelivered,
		At:          time.Now(),
	}
	close(ch)
	return &ports.Receipt{MessageID: payload.ID, Outcomes: ch}, nil
}

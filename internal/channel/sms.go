package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/starford/trailguard/internal/apperr"
	"github.com/starford/trailguard/internal/models"
	"github.com/starford/trailguard/internal/ports"
)

// Gateway message statuses reported through status callbacks.
const (
	StatusQueued      = "queued"
	StatusSent        = "sent"
	StatusDelivered   = "delivered"
	StatusFailed      = "failed"
	StatusUndelivered = "undelivered"
)

// pendingTTL bounds how long an unanswered message stays tracked.
const pendingTTL = time.Hour

type pendingMessage struct {
	destination string
	outcomes    chan models.DeliveryOutcome
	at          time.Time
}

// SMSGateway sends text messages through an HTTP SMS gateway. Sends are form
// POSTs carrying To, From, Body and an optional StatusCallback; the gateway
// answers with a JSON body holding the message sid. When a status callback
// URL is configured, later delivery reports arrive through HandleStatus and
// are pushed to the receipt's Outcomes channel.
type SMSGateway struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]*pendingMessage
}

// NewSMSGateway validates cfg and creates a gateway channel.
func NewSMSGateway(cfg Config, client *http.Client, logger *slog.Logger) (*SMSGateway, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("channel %q: url is required", cfg.Name)
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("channel %q: from is required", cfg.Name)
	}
	if cfg.Name == "" {
		cfg.Name = TypeSMS
	}
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &SMSGateway{
		cfg:     cfg,
		client:  client,
		logger:  logger,
		pending: make(map[string]*pendingMessage),
	}, nil
}

func (g *SMSGateway) Name() string { return g.cfg.Name }

type gatewayResponse struct {
	SID     string `json:"sid"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Send submits one message. A non-2xx answer or a missing sid is a failure.
func (g *SMSGateway) Send(ctx context.Context, destination, text string) (*ports.Receipt, error) {
	form := url.Values{}
	form.Set("To", destination)
	form.Set("From", g.cfg.From)
	form.Set("Body", text)
	if g.cfg.StatusCallback != "" {
		form.Set("StatusCallback", g.cfg.StatusCallback)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.URL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("sms: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if g.cfg.AccountID != "" {
		req.SetBasicAuth(g.cfg.AccountID, g.cfg.Token)
	} else if g.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+g.cfg.Token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sms: send to %s: %v: %w", destination, err, apperr.ErrChannelSendFailed)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var gr gatewayResponse
	_ = json.Unmarshal(body, &gr)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := gr.Message
		if detail == "" {
			detail = strings.TrimSpace(string(body))
		}
		return nil, fmt.Errorf("sms: gateway returned %d: %s: %w", resp.StatusCode, detail, apperr.ErrChannelSendFailed)
	}
	if gr.SID == "" {
		return nil, fmt.Errorf("sms: gateway response has no sid: %w", apperr.ErrChannelSendFailed)
	}

	receipt := &ports.Receipt{MessageID: gr.SID}
	if g.cfg.StatusCallback == "" {
		return receipt, nil
	}

	ch := make(chan models.DeliveryOutcome, 1)
	now := time.Now()
	g.mu.Lock()
	g.prune(now)
	g.pending[gr.SID] = &pendingMessage{destination: destination, outcomes: ch, at: now}
	g.mu.Unlock()

	receipt.Outcomes = ch
	return receipt, nil
}

// HandleStatus applies a status callback. Intermediate statuses are
// accepted and ignored; delivered, failed and undelivered are terminal and
// close the receipt's outcome stream. Unknown message ids yield
// apperr.ErrNotFound.
func (g *SMSGateway) HandleStatus(messageID, status, detail string) error {
	status = strings.ToLower(strings.TrimSpace(status))

	var kind models.OutcomeKind
	switch status {
	case StatusQueued, StatusSent, "accepted", "sending":
		g.mu.Lock()
		_, ok := g.pending[messageID]
		g.mu.Unlock()
		if !ok {
			return fmt.Errorf("sms: message %s: %w", messageID, apperr.ErrNotFound)
		}
		return nil
	case StatusDelivered:
		kind = models.OutcomeDelivered
	case StatusFailed, StatusUndelivered:
		kind = models.OutcomeDeliveryFailed
		if detail == "" {
			detail = status
		}
	default:
		return fmt.Errorf("sms: unknown status %q: %w", status, apperr.ErrInvalidInput)
	}

	g.mu.Lock()
	p, ok := g.pending[messageID]
	if ok {
		delete(g.pending, messageID)
	}
	g.mu.Unlock()
	if !ok {
		return fmt.Errorf("sms: message %s: %w", messageID, apperr.ErrNotFound)
	}

	p.outcomes <- models.DeliveryOutcome{
		MessageID:   messageID,
		Channel:     g.cfg.Name,
		Destination: p.destination,
		Outcome:     kind,
		Reason:      detail,
		At:          time.Now(),
	}
	close(p.outcomes)

	g.logger.Debug("sms: status received",
		slog.String("message_id", messageID),
		slog.String("status", status))
	return nil
}

// Pending returns the number of messages still awaiting a terminal status.
func (g *SMSGateway) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}

// prune closes and drops entries nobody reported on within pendingTTL.
// Callers hold g.mu.
func (g *SMSGateway) prune(now time.Time) {
	for id, p := range g.pending {
		if now.Sub(p.at) > pendingTTL {
			close(p.outcomes)
			delete(g.pending, id)
		}
	}
}

package channel

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/starford/trailguard/internal/ports"
)

// Log is a dry-run channel: every send succeeds and is only logged.
type Log struct {
	name   string
	logger *slog.Logger
}

// NewLog creates a Log channel.
func NewLog(name string, logger *slog.Logger) *Log {
	if name == "" {
		name = TypeLog
	}
	return &Log{name: name, logger: logger}
}

func (l *Log) Name() string { return l.name }

func (l *Log) Send(_ context.Context, destination, text string) (*ports.Receipt, error) {
	id := uuid.NewString()
	l.logger.Info("channel: dry-run send",
		slog.String("channel", l.name),
		slog.String("message_id", id),
		slog.String("to", destination),
		slog.String("text", text))
	return &ports.Receipt{MessageID: id}, nil
}

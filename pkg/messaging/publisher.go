package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Conn is the slice of *nats.Conn the publisher needs.
type Conn interface {
	Publish(subject string, data []byte) error
}

// Event is the JSON body published for every stored notification.
type Event struct {
	NotificationID string `json:"notification_id"`
	RecipientID    string `json:"recipient_id"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	Status         string `json:"status"`
	Category       string `json:"category"`
	CreatedAt      string `json:"created_at"`
}

// Publisher sends events to <prefix>.<category>.
type Publisher struct {
	conn   Conn
	prefix string
	logger *zap.Logger
}

func NewPublisher(conn Conn, prefix string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prefix == "" {
		prefix = "notifications.clearance"
	}
	return &Publisher{conn: conn, prefix: strings.TrimSuffix(prefix, "."), logger: logger}
}

// Subject returns the subject an event with category is published on.
func (p *Publisher) Subject(category string) string {
	if category == "" {
		category = "general"
	}
	return p.prefix + "." + strings.ReplaceAll(category, " ", "_")
}

// Publish sends event. A nil publisher or connection is a no-op.
func (p *Publisher) Publish(ctx context.Context, event Event) error {
	if p == nil || p.conn == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal notification event: %w", err)
	}
	subject := p.Subject(event.Category)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	p.logger.Debug("notification published", zap.String("subject", subject), zap.String("recipient_id", event.RecipientID))
	return nil
}

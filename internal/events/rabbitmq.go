package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/docjobs/shared/rabbitmq"
)

// RabbitPublisher publishes completion events as JSON messages.
type RabbitPublisher struct {
	client *rabbitmq.Client
	logger *slog.Logger
}

// NewRabbitPublisher creates a new RabbitMQ-backed publisher
func NewRabbitPublisher(client *rabbitmq.Client, logger *slog.Logger) *RabbitPublisher {
	return &RabbitPublisher{client: client, logger: logger}
}

func (p *RabbitPublisher) PublishCompletion(ctx context.Context, event CompletionEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal completion event: %w", err)
	}

	if err := p.client.PublishWithRetry(ctx, body, "application/json"); err != nil {
		return fmt.Errorf("failed to publish completion event for job %d: %w", event.JobID, err)
	}

	p.logger.Debug("Completion event published",
		slog.Int64("job_id", event.JobID),
		slog.String("status", string(event.Status)),
	)
	return nil
}

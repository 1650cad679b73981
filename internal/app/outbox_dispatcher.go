package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/keygate/keygate-backend/internal/store"
	"github.com/keygate/keygate-backend/pkg/rabbitmq"
)

const (
	defaultBatchSize       = 50
	defaultPollInterval    = 1200 * time.Millisecond
	defaultStaleProcessing = 2 * time.Minute
)

// OutboxDispatcher polls the store outbox and publishes claimed account
// mutation events to RabbitMQ, retrying failed publishes with exponential
// backoff. It is the bridge between committed store transactions and the
// asynchronous key provisioning sync.
type OutboxDispatcher struct {
	repo                store.OutboxRepository
	rabbitURL           string
	logger              *slog.Logger
	batchSize           int
	pollInterval        time.Duration
	staleProcessingTime time.Duration
	producer            *rabbitmq.EventProducer
}

func NewOutboxDispatcher(repo store.OutboxRepository, rabbitURL string, logger *slog.Logger) *OutboxDispatcher {
	return &OutboxDispatcher{
		repo:                repo,
		rabbitURL:           rabbitURL,
		logger:              logger,
		batchSize:           defaultBatchSize,
		pollInterval:        defaultPollInterval,
		staleProcessingTime: defaultStaleProcessing,
	}
}

func (d *OutboxDispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()
	defer d.closeProducer()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.flushOnce(ctx); err != nil {
				d.logger.Error("outbox flush failed", "error", err)
			}
		}
	}
}

func (d *OutboxDispatcher) flushOnce(ctx context.Context) error {
	staleAfterSeconds := int(d.staleProcessingTime.Seconds())
	messages, err := d.repo.ClaimOutboxMessages(ctx, d.batchSize, staleAfterSeconds)
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		return nil
	}

	for _, message := range messages {
		if err := d.publishMessage(ctx, message); err != nil {
			retryAfter := retryDelaySeconds(message.Attempts)
			d.logger.Warn("outbox publish failed, scheduling retry",
				"message_id", message.ID, "attempts", message.Attempts, "retry_after_seconds", retryAfter, "error", err)
			_ = d.repo.MarkOutboxFailed(ctx, message.ID, retryAfter, err.Error())
			continue
		}
		if err := d.repo.MarkOutboxPublished(ctx, message.ID); err != nil {
			d.logger.Error("failed to mark outbox message as published", "message_id", message.ID, "error", err)
		}
	}
	return nil
}

func (d *OutboxDispatcher) publishMessage(ctx context.Context, message store.OutboxMessage) error {
	if d.producer == nil {
		producer, err := rabbitmq.NewEventProducer(d.rabbitURL)
		if err != nil {
			return err
		}
		d.producer = producer
	}

	var payload interface{}
	if err := json.Unmarshal(message.Payload, &payload); err != nil {
		return err
	}

	if err := d.producer.Publish(ctx, message.Exchange, message.RoutingKey, payload); err != nil {
		d.closeProducer()
		return err
	}
	return nil
}

func (d *OutboxDispatcher) closeProducer() {
	if d.producer != nil {
		d.producer.Close()
		d.producer = nil
	}
}

func retryDelaySeconds(attempt int) int {
	if attempt < 1 {
		return 1
	}
	delay := 1 << minInt(attempt, 8)
	if delay > 300 {
		return 300
	}
	return delay
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

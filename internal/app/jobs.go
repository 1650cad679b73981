/**
 * @description
 * Scheduled job implementations for the billing scheduler.
 */
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/keygate/keygate-backend/internal/domain"
)

const (
	triggerPublishAttempts  = 5
	triggerPublishBaseDelay = 2 * time.Second
)

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	publisher EventPublisher
	logger    *slog.Logger

	publishAttempts int
	retryBaseDelay  time.Duration
}

// NewJobs creates a new Jobs runner.
func NewJobs(publisher EventPublisher, logger *slog.Logger) *Jobs {
	return &Jobs{
		publisher:       publisher,
		logger:          logger,
		publishAttempts: triggerPublishAttempts,
		retryBaseDelay:  triggerPublishBaseDelay,
	}
}

// PublishDailyBillingTrigger enqueues exactly one renewal trigger message.
// A failed publish is retried with exponential backoff within the job run:
// the next cron tick is a day away and the renewal scan matches today's
// date exactly, so giving up on a transient broker outage would strand
// every account due today. Duplicate triggers are harmless thanks to the
// renewal procedure's per-account ledger guard.
func (j *Jobs) PublishDailyBillingTrigger() {
	j.logger.Info("starting daily billing trigger job")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	event := domain.RenewalTriggerEvent{TriggeredAt: domain.FormatPaymentDate(time.Now().UTC())}

	delay := j.retryBaseDelay
	for attempt := 1; attempt <= j.publishAttempts; attempt++ {
		err := j.publisher.Publish(ctx, domain.AccountEventsExchange, domain.RenewalTriggerKey, event)
		if err == nil {
			j.logger.Info("daily billing trigger published", "date", event.TriggeredAt, "attempt", attempt)
			return
		}

		j.logger.Error("failed to publish renewal trigger", "attempt", attempt, "error", err)
		if attempt == j.publishAttempts {
			break
		}

		select {
		case <-ctx.Done():
			j.logger.Error("renewal trigger publish aborted", "error", ctx.Err())
			return
		case <-time.After(delay):
		}
		delay *= 2
	}

	j.logger.Error("giving up on renewal trigger publish", "date", event.TriggeredAt, "attempts", j.publishAttempts)
}

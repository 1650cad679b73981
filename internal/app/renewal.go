/**
 * @description
 * Renewal decision procedure. Once per day the scheduler publishes a
 * trigger; this component scans the store for accounts whose next payment
 * date is today and decides, per account, whether the renewal is skipped
 * (already processed), failed (no card, recurring disabled, invalid card),
 * or successful (simulated charge). Exactly one outcome event is emitted
 * per due account per calendar day.
 */
package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/keygate/keygate-backend/internal/domain"
	"github.com/keygate/keygate-backend/internal/store"
)

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
}

// RenewalProcessor drives the daily renewal scan.
type RenewalProcessor struct {
	accounts  store.AccountRepository
	cards     store.CardRepository
	ledger    store.LedgerRepository
	publisher EventPublisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewRenewalProcessor creates a new renewal processor.
func NewRenewalProcessor(accounts store.AccountRepository, cards store.CardRepository, ledger store.LedgerRepository, publisher EventPublisher, logger *slog.Logger) *RenewalProcessor {
	return &RenewalProcessor{
		accounts:  accounts,
		cards:     cards,
		ledger:    ledger,
		publisher: publisher,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// HandleRenewalTrigger is the consumer callback for the daily trigger
// message. It returns whether the message should be acknowledged.
func (p *RenewalProcessor) HandleRenewalTrigger(body []byte) bool {
	var event domain.RenewalTriggerEvent
	if err := json.Unmarshal(body, &event); err != nil {
		p.logger.Error("malformed renewal trigger, dropping", "error", err)
		return true // Acknowledge; a malformed trigger cannot be retried.
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := p.RunDailyScan(ctx); err != nil {
		// Scan-level failures (store unavailable) are retryable; the
		// per-account ledger guard makes the redelivered scan a no-op for
		// accounts already processed.
		return false
	}
	return true
}

// RunDailyScan processes every account due today. An error in one account
// never aborts the remaining accounts; per-account failures are logged and
// the scan continues.
func (p *RenewalProcessor) RunDailyScan(ctx context.Context) error {
	today := domain.FormatPaymentDate(p.now())

	accounts, err := p.accounts.ListAccountsDueOn(ctx, today)
	if err != nil {
		p.logger.Error("failed to scan accounts due today", "date", today, "error", err)
		return err
	}
	if len(accounts) == 0 {
		p.logger.Info("no accounts due for renewal", "date", today)
		return nil
	}

	p.logger.Info("found accounts due for renewal", "date", today, "count", len(accounts))

	for _, account := range accounts {
		if err := p.processAccount(ctx, account, today); err != nil {
			p.logger.Error("failed to process renewal", "user_id", account.UserID, "error", err)
		}
	}
	return nil
}

// processAccount applies the decision table to a single due account and
// emits exactly one outcome event, unless the ledger shows the account was
// already processed today (duplicate trigger delivery).
func (p *RenewalProcessor) processAccount(ctx context.Context, account domain.APIKeyAccount, today string) error {
	paid, err := p.ledger.HasPaymentOn(ctx, account.UserID, today)
	if err != nil {
		return err
	}
	if paid {
		p.logger.Info("renewal already processed today, skipping", "user_id", account.UserID, "date", today)
		return nil
	}

	card, err := p.cards.GetCard(ctx, account.UserID)
	if err != nil {
		if errors.Is(err, store.ErrCardNotFound) {
			p.logger.Info("renewal failed: no card on file", "user_id", account.UserID)
			return p.publishFailure(ctx, account.UserID, true, false)
		}
		return err
	}

	if !card.Recurring {
		p.logger.Info("renewal failed: recurring billing disabled", "user_id", account.UserID)
		return p.publishFailure(ctx, account.UserID, false, false)
	}

	if !card.Valid {
		// Disable recurring on the card so the next cycle does not notify
		// the user about the same invalid card again.
		recurring := false
		if _, err := p.cards.UpdateCard(ctx, account.UserID, domain.CardUpdate{Recurring: &recurring}); err != nil {
			return err
		}
		p.logger.Info("renewal failed: card invalid, recurring disabled", "user_id", account.UserID)
		return p.publishFailure(ctx, account.UserID, false, true)
	}

	event := domain.PaymentSuccessEvent{UserID: account.UserID, Amount: float64(domain.MonthlyPrice)}
	if err := p.publisher.Publish(ctx, domain.AccountEventsExchange, domain.PaymentSuccessKey, event); err != nil {
		return err
	}
	p.logger.Info("renewal charge succeeded", "user_id", account.UserID, "amount", domain.MonthlyPrice)
	return nil
}

func (p *RenewalProcessor) publishFailure(ctx context.Context, userID string, noCard, recurring bool) error {
	event := domain.PaymentFailureEvent{UserID: userID, NoCard: noCard, Recurring: recurring}
	return p.publisher.Publish(ctx, domain.AccountEventsExchange, domain.PaymentFailureKey, event)
}

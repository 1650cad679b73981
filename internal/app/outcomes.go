/**
 * @description
 * Payment outcome handlers. The success handler appends a ledger entry and
 * advances the account's next payment date one calendar month; the failure
 * handler demotes the account to the free tier. Both consume at-least-once
 * deliveries and are idempotent: a duplicate success overwrites the same
 * ledger values and a duplicate demotion is a no-op.
 */
package app

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/keygate/keygate-backend/internal/domain"
	"github.com/keygate/keygate-backend/internal/store"
)

// PaymentOutcomeHandler processes payment.outcome.* events.
type PaymentOutcomeHandler struct {
	accounts  store.AccountRepository
	ledger    store.LedgerRepository
	publisher EventPublisher
	now       func() time.Time
}

// NewPaymentOutcomeHandler creates a new instance of PaymentOutcomeHandler.
func NewPaymentOutcomeHandler(accounts store.AccountRepository, ledger store.LedgerRepository, publisher EventPublisher) *PaymentOutcomeHandler {
	return &PaymentOutcomeHandler{
		accounts:  accounts,
		ledger:    ledger,
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// HandlePaymentSuccess records the charge in the ledger, then promotes the
// account and advances its next payment date. The ledger write happens
// before the date advancement; if either fails the message is re-queued and
// both writes are retried (each is idempotent).
func (h *PaymentOutcomeHandler) HandlePaymentSuccess(body []byte) bool {
	var event domain.PaymentSuccessEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("Error unmarshaling payment success event: %v", err)
		return true // Acknowledge; malformed messages cannot be retried.
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	today := domain.FormatPaymentDate(h.now())
	payment := &domain.Payment{
		UserID: event.UserID,
		Amount: strconv.FormatFloat(event.Amount, 'f', -1, 64),
		Date:   today,
	}
	if err := h.ledger.RecordPayment(ctx, payment); err != nil {
		log.Printf("Failed to record payment for user %s: %v", event.UserID, err)
		return false
	}

	account, err := h.accounts.GetAccount(ctx, event.UserID)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			log.Printf("Payment success for unknown account %s; dropping", event.UserID)
			return true
		}
		log.Printf("Failed to load account %s: %v", event.UserID, err)
		return false
	}

	// An upgrade arrives with the sentinel date; the renewal path advances
	// from the currently stored date.
	base := account.NextPayment
	if base == domain.NoPaymentDate {
		base = today
	}
	nextPayment, err := domain.AdvancePaymentDate(base)
	if err != nil {
		log.Printf("Unparseable next payment date for user %s: %v", event.UserID, err)
		return true
	}

	if _, err := h.accounts.UpdateTier(ctx, event.UserID, domain.TierPaid, nextPayment); err != nil {
		log.Printf("Failed to advance payment date for user %s: %v", event.UserID, err)
		return false
	}

	log.Printf("Processed payment success for user %s; next payment %s", event.UserID, nextPayment)
	h.notify(ctx, event.UserID, domain.NotifyPaymentSuccess, "")
	return true
}

// HandlePaymentFailure demotes the account to the free tier unconditionally
// and notifies the user with a reason-specific message. No ledger entry is
// written for failures.
func (h *PaymentOutcomeHandler) HandlePaymentFailure(body []byte) bool {
	var event domain.PaymentFailureEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("Error unmarshaling payment failure event: %v", err)
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	reason := failureReason(event)
	log.Printf("Processing payment failure for user %s (reason: %s)", event.UserID, reason)

	if _, err := h.accounts.UpdateTier(ctx, event.UserID, domain.TierFree, domain.NoPaymentDate); err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			log.Printf("Payment failure for unknown account %s; dropping", event.UserID)
			return true
		}
		log.Printf("Failed to demote account %s: %v", event.UserID, err)
		return false
	}

	h.notify(ctx, event.UserID, domain.NotifyPaymentFailure, reason)
	return true
}

// notify publishes a user notification. Delivery is best-effort; a failed
// publish never blocks the outcome itself.
func (h *PaymentOutcomeHandler) notify(ctx context.Context, userID, template, reason string) {
	event := domain.NotificationEvent{UserID: userID, Template: template, Reason: reason}
	if err := h.publisher.Publish(ctx, domain.AccountEventsExchange, domain.UserNotificationKey, event); err != nil {
		log.Printf("Failed to publish notification for user %s: %v", userID, err)
	}
}

func failureReason(event domain.PaymentFailureEvent) string {
	switch {
	case event.NoCard:
		return "no_card"
	case event.Recurring:
		return "invalid_card"
	default:
		return "not_recurring"
	}
}

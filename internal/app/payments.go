/**
 * @description
 * Payment request handler. Consumes payment.requested events emitted by an
 * upgrade and performs the simulated charge decision: a valid card on file
 * produces a success outcome for the fixed monthly price, anything else a
 * failure outcome. The caller-chosen recurring flag is applied to the card
 * record so the billing scheduler honors it on the next cycle.
 */
package app

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/keygate/keygate-backend/internal/domain"
	"github.com/keygate/keygate-backend/internal/store"
)

// PaymentRequestHandler processes payment.requested events.
type PaymentRequestHandler struct {
	cards     store.CardRepository
	publisher EventPublisher
}

// NewPaymentRequestHandler creates a new instance of PaymentRequestHandler.
func NewPaymentRequestHandler(cards store.CardRepository, publisher EventPublisher) *PaymentRequestHandler {
	return &PaymentRequestHandler{cards: cards, publisher: publisher}
}

// HandlePaymentRequested is the consumer callback for payment.requested events.
func (h *PaymentRequestHandler) HandlePaymentRequested(body []byte) bool {
	var event domain.PaymentRequestedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("Error unmarshaling payment request event: %v", err)
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	card, err := h.cards.GetCard(ctx, event.UserID)
	if err != nil {
		if errors.Is(err, store.ErrCardNotFound) {
			log.Printf("Payment request for user %s with no card on file", event.UserID)
			return h.publishFailure(ctx, event.UserID, true, false)
		}
		log.Printf("Failed to load card for user %s: %v", event.UserID, err)
		return false
	}

	if !card.Valid {
		log.Printf("Payment request for user %s declined: invalid card", event.UserID)
		return h.publishFailure(ctx, event.UserID, false, card.Recurring)
	}

	if card.Recurring != event.Recurring {
		recurring := event.Recurring
		if _, err := h.cards.UpdateCard(ctx, event.UserID, domain.CardUpdate{Recurring: &recurring}); err != nil {
			log.Printf("Failed to update recurring flag for user %s: %v", event.UserID, err)
			return false
		}
	}

	success := domain.PaymentSuccessEvent{UserID: event.UserID, Amount: float64(domain.MonthlyPrice)}
	if err := h.publisher.Publish(ctx, domain.AccountEventsExchange, domain.PaymentSuccessKey, success); err != nil {
		log.Printf("Failed to publish payment success for user %s: %v", event.UserID, err)
		return false
	}
	log.Printf("Simulated charge succeeded for user %s", event.UserID)
	return true
}

func (h *PaymentRequestHandler) publishFailure(ctx context.Context, userID string, noCard, recurring bool) bool {
	event := domain.PaymentFailureEvent{UserID: userID, NoCard: noCard, Recurring: recurring}
	if err := h.publisher.Publish(ctx, domain.AccountEventsExchange, domain.PaymentFailureKey, event); err != nil {
		log.Printf("Failed to publish payment failure for user %s: %v", userID, err)
		return false
	}
	return true
}

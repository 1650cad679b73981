/**
 * @description
 * Account provisioning handler. Consumes user.created events from the
 * identity provider and creates the initial free tier account record with a
 * freshly generated API key. The conditional insert makes duplicate event
 * delivery a no-op rather than an overwrite, so it can never clobber a key
 * the user has rotated since.
 */
package app

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/keygate/keygate-backend/internal/domain"
	"github.com/keygate/keygate-backend/internal/store"
)

// AccountProvisioningHandler processes user.created events.
type AccountProvisioningHandler struct {
	accounts store.AccountRepository
}

// NewAccountProvisioningHandler creates a new instance of AccountProvisioningHandler.
func NewAccountProvisioningHandler(accounts store.AccountRepository) *AccountProvisioningHandler {
	return &AccountProvisioningHandler{accounts: accounts}
}

// HandleUserCreated is the consumer callback for user.created events.
func (h *AccountProvisioningHandler) HandleUserCreated(body []byte) bool {
	var event domain.UserCreatedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("Error unmarshaling user.created event: %v", err)
		return true // Acknowledge; malformed messages cannot be retried.
	}
	if event.UserID == "" {
		log.Printf("user.created event missing user_id; dropping")
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	account := &domain.APIKeyAccount{
		UserID:      event.UserID,
		APIKey:      domain.NewAPIKey(),
		Tier:        domain.TierFree,
		NextPayment: domain.NoPaymentDate,
	}

	inserted, err := h.accounts.CreateAccountIfAbsent(ctx, account)
	if err != nil {
		log.Printf("Failed to provision account for user %s: %v", event.UserID, err)
		return false
	}
	if !inserted {
		log.Printf("Account already provisioned for user %s; skipping", event.UserID)
		return true
	}

	log.Printf("Provisioned free tier account for user %s", event.UserID)
	return true
}

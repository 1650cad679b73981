/**
 * @description
 * This file contains the core business logic for the request layer: the
 * synchronous operations an authenticated caller performs against their
 * account. The service reads and writes the account store and emits events
 * consumed by the asynchronous billing and key provisioning handlers; it
 * never waits for those handlers, so callers observe store writes
 * immediately and gateway effects eventually.
 */
package app

import (
	"context"
	"errors"
	"log"

	"github.com/keygate/keygate-backend/internal/domain"
	"github.com/keygate/keygate-backend/internal/store"
)

// IdentityClient defines the interface for the external identity provider.
type IdentityClient interface {
	DeleteUser(ctx context.Context, userID string) error
}

// Service provides the business logic for account management.
type Service struct {
	accounts  store.AccountRepository
	cards     store.CardRepository
	ledger    store.LedgerRepository
	publisher EventPublisher
	identity  IdentityClient
}

// NewService creates a new account management service.
func NewService(accounts store.AccountRepository, cards store.CardRepository, ledger store.LedgerRepository, publisher EventPublisher, identity IdentityClient) Service {
	return Service{
		accounts:  accounts,
		cards:     cards,
		ledger:    ledger,
		publisher: publisher,
		identity:  identity,
	}
}

// GetAPIKey returns the caller's account record.
func (s Service) GetAPIKey(ctx context.Context, userID string) (*domain.APIKeyAccount, error) {
	account, err := s.accounts.GetAccount(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return nil, domain.NewItemNotFound("no API key account exists for this user")
		}
		return nil, err
	}
	return account, nil
}

// RotateAPIKey generates a fresh key secret and writes it to the account.
// The new key is returned immediately; the gateway honors it only after the
// asynchronous provisioning sync replaces the old gateway key, so there is
// a brief window where neither key authenticates.
func (s Service) RotateAPIKey(ctx context.Context, userID string) (string, error) {
	newKey := domain.NewAPIKey()
	account, err := s.accounts.UpdateAPIKey(ctx, userID, newKey)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return "", domain.NewItemNotFound("no API key account exists for this user")
		}
		return "", err
	}
	return account.APIKey, nil
}

// RequestUpgrade initiates a paid tier upgrade. The card must exist and be
// valid; the actual tier and date mutation happens asynchronously through
// the payment outcome path, so a nil return only confirms the charge
// request was accepted, not that the tier has changed yet.
func (s Service) RequestUpgrade(ctx context.Context, userID string, recurring bool) error {
	card, err := s.cards.GetCard(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrCardNotFound) {
			return domain.NewItemNotFound("no credit card on file")
		}
		return err
	}
	if !card.Valid {
		return domain.NewValidationException("credit card on file is invalid")
	}

	event := domain.PaymentRequestedEvent{UserID: userID, Recurring: recurring}
	if err := s.publisher.Publish(ctx, domain.AccountEventsExchange, domain.PaymentRequestedKey, event); err != nil {
		log.Printf("Failed to publish payment request for user %s: %v", userID, err)
		return err
	}
	return nil
}

// GetCard returns the caller's stored card.
func (s Service) GetCard(ctx context.Context, userID string) (*domain.CreditCard, error) {
	card, err := s.cards.GetCard(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrCardNotFound) {
			return nil, domain.NewItemNotFound("no credit card on file")
		}
		return nil, err
	}
	return card, nil
}

// CreateCard stores a new card for the caller. New cards are valid and
// non-recurring until the user opts in to automatic renewal.
func (s Service) CreateCard(ctx context.Context, userID string) (*domain.CreditCard, error) {
	card := &domain.CreditCard{UserID: userID, Valid: true, Recurring: false}
	if err := s.cards.CreateCard(ctx, card); err != nil {
		if errors.Is(err, store.ErrCardExists) {
			return nil, domain.NewItemAlreadyExists("a credit card already exists for this user")
		}
		return nil, err
	}
	return card, nil
}

// EditCard applies a partial update of the valid/recurring flags.
func (s Service) EditCard(ctx context.Context, userID string, update domain.CardUpdate) (*domain.CreditCard, error) {
	if update.IsEmpty() {
		return nil, domain.NewValidationException("at least one of valid or recurring must be provided")
	}
	card, err := s.cards.UpdateCard(ctx, userID, update)
	if err != nil {
		if errors.Is(err, store.ErrCardNotFound) {
			return nil, domain.NewItemNotFound("no credit card on file")
		}
		return nil, err
	}
	return card, nil
}

// DeleteCard removes the caller's stored card. Idempotent.
func (s Service) DeleteCard(ctx context.Context, userID string) error {
	return s.cards.DeleteCard(ctx, userID)
}

// GetPaymentHistory returns the caller's ledger entries, newest first.
func (s Service) GetPaymentHistory(ctx context.Context, userID string) ([]domain.Payment, error) {
	payments, err := s.ledger.ListPayments(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(payments) == 0 {
		return nil, domain.NewItemNotFound("no payment history for this user")
	}
	return payments, nil
}

// DeleteAccount removes the user from the identity provider first, then
// deletes the card and account records. Deleting the account row triggers
// the asynchronous gateway key cleanup. Ledger entries are retained for the
// payment audit trail.
func (s Service) DeleteAccount(ctx context.Context, userID string) error {
	if err := s.identity.DeleteUser(ctx, userID); err != nil {
		log.Printf("Identity provider deletion failed for user %s: %v", userID, err)
		return err
	}

	if err := s.cards.DeleteCard(ctx, userID); err != nil {
		return err
	}

	if err := s.accounts.DeleteAccount(ctx, userID); err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return nil // Already gone; deletion is idempotent.
		}
		return err
	}
	return nil
}

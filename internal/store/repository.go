/**
 * @description
 * This file defines the interfaces for the data access layer (repositories).
 * Defining interfaces allows for dependency injection and easy mocking in
 * tests, promoting a loosely coupled architecture.
 *
 * @notes
 * - Any component that needs to interact with the database should depend on
 *   these interfaces, not on the concrete PostgreSQL implementation.
 * - Account mutations are paired with an outbox record in the same
 *   transaction, so downstream consumers see a change event for every
 *   committed insert/modify/remove on api_key_accounts.
 */
package store

import (
	"context"
	"errors"

	"github.com/keygate/keygate-backend/internal/domain"
)

var (
	ErrAccountNotFound = errors.New("api key account not found")
	ErrCardNotFound    = errors.New("credit card not found")
	ErrCardExists      = errors.New("credit card already exists")
	ErrKeyIDNotFound   = errors.New("external key id not found")
)

// AccountRepository defines the contract for api_key_accounts operations.
type AccountRepository interface {
	GetAccount(ctx context.Context, userID string) (*domain.APIKeyAccount, error)
	// CreateAccountIfAbsent conditionally inserts a fresh account. It is a
	// no-op when a record already exists, so duplicate delivery of a
	// user.created event never clobbers a since-rotated key. The returned
	// bool reports whether a row was inserted.
	CreateAccountIfAbsent(ctx context.Context, account *domain.APIKeyAccount) (bool, error)
	// UpdateAPIKey replaces the account's key secret and returns the
	// updated record.
	UpdateAPIKey(ctx context.Context, userID, apiKey string) (*domain.APIKeyAccount, error)
	// UpdateTier sets the tier and next payment date together.
	UpdateTier(ctx context.Context, userID string, tier domain.Tier, nextPayment string) (*domain.APIKeyAccount, error)
	DeleteAccount(ctx context.Context, userID string) error
	// ListAccountsDueOn returns every account whose next_payment equals the
	// given MM-DD-YYYY date.
	ListAccountsDueOn(ctx context.Context, date string) ([]domain.APIKeyAccount, error)
}

// CardRepository defines the contract for credit_cards operations.
type CardRepository interface {
	GetCard(ctx context.Context, userID string) (*domain.CreditCard, error)
	// CreateCard inserts a new card and returns ErrCardExists when the user
	// already has one on file.
	CreateCard(ctx context.Context, card *domain.CreditCard) error
	UpdateCard(ctx context.Context, userID string, update domain.CardUpdate) (*domain.CreditCard, error)
	// DeleteCard is idempotent; deleting an absent card is not an error.
	DeleteCard(ctx context.Context, userID string) error
}

// LedgerRepository defines the contract for the append-only payment ledger.
type LedgerRepository interface {
	// HasPaymentOn reports whether a ledger entry exists for (userID, date).
	HasPaymentOn(ctx context.Context, userID, date string) (bool, error)
	// RecordPayment upserts the (userID, date) entry. A duplicate success
	// event overwrites the same values, which keeps the write idempotent.
	RecordPayment(ctx context.Context, payment *domain.Payment) error
	ListPayments(ctx context.Context, userID string) ([]domain.Payment, error)
}

// KeyIDRepository defines the contract for the external gateway key-id map.
type KeyIDRepository interface {
	GetExternalKeyID(ctx context.Context, userID string) (string, error)
	// SetExternalKeyID inserts or overwrites the mapping for a user.
	SetExternalKeyID(ctx context.Context, userID, externalKeyID string) error
	DeleteExternalKeyID(ctx context.Context, userID string) error
}

// OutboxMessage is a pending event claimed from the store outbox.
type OutboxMessage struct {
	ID         int64
	Exchange   string
	RoutingKey string
	Payload    []byte
	Attempts   int
}

// OutboxRepository defines the contract for the transactional outbox.
type OutboxRepository interface {
	ClaimOutboxMessages(ctx context.Context, batchSize, staleAfterSeconds int) ([]OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, id int64) error
	MarkOutboxFailed(ctx context.Context, id int64, retryAfterSeconds int, lastError string) error
}

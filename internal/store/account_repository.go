/**
 * @description
 * This file implements the data access layer for api_key_accounts.
 * Every mutation enqueues an account.mutation outbox record in the same
 * transaction, carrying before/after row images, so the external key
 * provisioning sync observes exactly the committed changes.
 *
 * @dependencies
 * - context: For managing request-scoped deadlines and cancellations.
 * - log: For logging database errors.
 * - github.com/jackc/pgx/v5/pgxpool: The PostgreSQL driver and connection pool manager.
 */
package store

import (
	"context"
	"errors"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/keygate/keygate-backend/internal/domain"
)

// PostgresAccountRepository is the PostgreSQL implementation of AccountRepository.
type PostgresAccountRepository struct {
	db *pgxpool.Pool
}

// NewPostgresAccountRepository creates a new instance of PostgresAccountRepository.
func NewPostgresAccountRepository(db *pgxpool.Pool) *PostgresAccountRepository {
	return &PostgresAccountRepository{db: db}
}

// GetAccount retrieves the account for a given user ID.
func (r *PostgresAccountRepository) GetAccount(ctx context.Context, userID string) (*domain.APIKeyAccount, error) {
	query := `
        SELECT user_id, api_key, tier, next_payment
        FROM api_key_accounts
        WHERE user_id = $1
    `
	var account domain.APIKeyAccount
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&account.UserID,
		&account.APIKey,
		&account.Tier,
		&account.NextPayment,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		log.Printf("Error fetching account for user %s: %v", userID, err)
		return nil, err
	}
	return &account, nil
}

// CreateAccountIfAbsent conditionally inserts a fresh account record.
// ON CONFLICT DO NOTHING makes duplicate user.created deliveries a no-op
// instead of overwriting a key that may have rotated since.
func (r *PostgresAccountRepository) CreateAccountIfAbsent(ctx context.Context, account *domain.APIKeyAccount) (bool, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	query := `
        INSERT INTO api_key_accounts (user_id, api_key, tier, next_payment)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (user_id) DO NOTHING
    `
	tag, err := tx.Exec(ctx, query, account.UserID, account.APIKey, account.Tier, account.NextPayment)
	if err != nil {
		log.Printf("Error inserting account for user %s: %v", account.UserID, err)
		return false, err
	}
	if tag.RowsAffected() == 0 {
		// Existing record wins; no mutation event either.
		return false, tx.Commit(ctx)
	}

	event := domain.AccountMutationEvent{EventKind: domain.MutationInsert, After: account}
	if err := enqueueMutationTx(ctx, tx, event); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// UpdateAPIKey replaces the account's key secret and returns the updated record.
func (r *PostgresAccountRepository) UpdateAPIKey(ctx context.Context, userID, apiKey string) (*domain.APIKeyAccount, error) {
	return r.mutateAccount(ctx, userID, func(account *domain.APIKeyAccount) {
		account.APIKey = apiKey
	})
}

// UpdateTier sets the tier and next payment date together so the paid/date
// invariant never splits across two writes.
func (r *PostgresAccountRepository) UpdateTier(ctx context.Context, userID string, tier domain.Tier, nextPayment string) (*domain.APIKeyAccount, error) {
	return r.mutateAccount(ctx, userID, func(account *domain.APIKeyAccount) {
		account.Tier = tier
		account.NextPayment = nextPayment
	})
}

// mutateAccount loads the current row under lock, applies the change, writes
// it back, and enqueues a MODIFY mutation event with both row images.
func (r *PostgresAccountRepository) mutateAccount(ctx context.Context, userID string, apply func(*domain.APIKeyAccount)) (*domain.APIKeyAccount, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var before domain.APIKeyAccount
	selectQuery := `
        SELECT user_id, api_key, tier, next_payment
        FROM api_key_accounts
        WHERE user_id = $1
        FOR UPDATE
    `
	err = tx.QueryRow(ctx, selectQuery, userID).Scan(
		&before.UserID,
		&before.APIKey,
		&before.Tier,
		&before.NextPayment,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		log.Printf("Error locking account for user %s: %v", userID, err)
		return nil, err
	}

	after := before
	apply(&after)
	if after == before {
		// Nothing changed; skip the write and the mutation event.
		return &after, tx.Commit(ctx)
	}

	updateQuery := `
        UPDATE api_key_accounts
        SET api_key = $1, tier = $2, next_payment = $3
        WHERE user_id = $4
    `
	if _, err := tx.Exec(ctx, updateQuery, after.APIKey, after.Tier, after.NextPayment, userID); err != nil {
		log.Printf("Error updating account for user %s: %v", userID, err)
		return nil, err
	}

	event := domain.AccountMutationEvent{EventKind: domain.MutationModify, Before: &before, After: &after}
	if err := enqueueMutationTx(ctx, tx, event); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &after, nil
}

// DeleteAccount removes the account row and enqueues a REMOVE mutation
// event carrying the final row image.
func (r *PostgresAccountRepository) DeleteAccount(ctx context.Context, userID string) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var before domain.APIKeyAccount
	selectQuery := `
        SELECT user_id, api_key, tier, next_payment
        FROM api_key_accounts
        WHERE user_id = $1
        FOR UPDATE
    `
	err = tx.QueryRow(ctx, selectQuery, userID).Scan(
		&before.UserID,
		&before.APIKey,
		&before.Tier,
		&before.NextPayment,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrAccountNotFound
		}
		return err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM api_key_accounts WHERE user_id = $1`, userID); err != nil {
		log.Printf("Error deleting account for user %s: %v", userID, err)
		return err
	}

	event := domain.AccountMutationEvent{EventKind: domain.MutationRemove, Before: &before}
	if err := enqueueMutationTx(ctx, tx, event); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// ListAccountsDueOn returns every account whose next_payment equals the
// given date. This is the daily renewal scan; next_payment is indexed so
// the equality filter stays cheap.
func (r *PostgresAccountRepository) ListAccountsDueOn(ctx context.Context, date string) ([]domain.APIKeyAccount, error) {
	query := `
        SELECT user_id, api_key, tier, next_payment
        FROM api_key_accounts
        WHERE next_payment = $1
    `
	rows, err := r.db.Query(ctx, query, date)
	if err != nil {
		log.Printf("Error scanning accounts due on %s: %v", date, err)
		return nil, err
	}
	defer rows.Close()

	var accounts []domain.APIKeyAccount
	for rows.Next() {
		var account domain.APIKeyAccount
		if err := rows.Scan(&account.UserID, &account.APIKey, &account.Tier, &account.NextPayment); err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

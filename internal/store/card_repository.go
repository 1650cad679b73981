/**
 * @description
 * This file implements the data access layer for stored credit cards.
 */
package store

import (
	"context"
	"errors"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/keygate/keygate-backend/internal/domain"
)

// PostgresCardRepository is the PostgreSQL implementation of CardRepository.
type PostgresCardRepository struct {
	db *pgxpool.Pool
}

// NewPostgresCardRepository creates a new instance of PostgresCardRepository.
func NewPostgresCardRepository(db *pgxpool.Pool) *PostgresCardRepository {
	return &PostgresCardRepository{db: db}
}

// GetCard retrieves the stored card for a user.
func (r *PostgresCardRepository) GetCard(ctx context.Context, userID string) (*domain.CreditCard, error) {
	query := `
        SELECT user_id, valid, recurring
        FROM credit_cards
        WHERE user_id = $1
    `
	var card domain.CreditCard
	err := r.db.QueryRow(ctx, query, userID).Scan(&card.UserID, &card.Valid, &card.Recurring)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCardNotFound
		}
		log.Printf("Error fetching card for user %s: %v", userID, err)
		return nil, err
	}
	return &card, nil
}

// CreateCard inserts a new card record. A unique-constraint violation on the
// user_id key means the user already has a card on file.
func (r *PostgresCardRepository) CreateCard(ctx context.Context, card *domain.CreditCard) error {
	query := `
        INSERT INTO credit_cards (user_id, valid, recurring)
        VALUES ($1, $2, $3)
    `
	if _, err := r.db.Exec(ctx, query, card.UserID, card.Valid, card.Recurring); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return ErrCardExists
		}
		log.Printf("Error inserting card for user %s: %v", card.UserID, err)
		return err
	}
	return nil
}

// UpdateCard applies a partial update of the valid/recurring flags and
// returns the updated record.
func (r *PostgresCardRepository) UpdateCard(ctx context.Context, userID string, update domain.CardUpdate) (*domain.CreditCard, error) {
	query := `
        UPDATE credit_cards
        SET valid = COALESCE($1, valid), recurring = COALESCE($2, recurring)
        WHERE user_id = $3
        RETURNING user_id, valid, recurring
    `
	var card domain.CreditCard
	err := r.db.QueryRow(ctx, query, update.Valid, update.Recurring, userID).Scan(
		&card.UserID,
		&card.Valid,
		&card.Recurring,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCardNotFound
		}
		log.Printf("Error updating card for user %s: %v", userID, err)
		return nil, err
	}
	return &card, nil
}

// DeleteCard removes the card record. Deleting an absent card is a no-op.
func (r *PostgresCardRepository) DeleteCard(ctx context.Context, userID string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM credit_cards WHERE user_id = $1`, userID); err != nil {
		log.Printf("Error deleting card for user %s: %v", userID, err)
		return err
	}
	return nil
}

/**
 * @description
 * This file implements the data access layer for the external key-id map,
 * which records the rate-limiting gateway's internal identifier for each
 * user's currently provisioned key. The mapping is briefly stale during a
 * key rotation; consumers tolerate eventual consistency.
 */
package store

import (
	"context"
	"errors"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresKeyIDRepository is the PostgreSQL implementation of KeyIDRepository.
type PostgresKeyIDRepository struct {
	db *pgxpool.Pool
}

// NewPostgresKeyIDRepository creates a new instance of PostgresKeyIDRepository.
func NewPostgresKeyIDRepository(db *pgxpool.Pool) *PostgresKeyIDRepository {
	return &PostgresKeyIDRepository{db: db}
}

// GetExternalKeyID returns the gateway key id for a user.
func (r *PostgresKeyIDRepository) GetExternalKeyID(ctx context.Context, userID string) (string, error) {
	var externalKeyID string
	err := r.db.QueryRow(ctx, `SELECT external_key_id FROM api_key_ids WHERE user_id = $1`, userID).Scan(&externalKeyID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrKeyIDNotFound
		}
		log.Printf("Error fetching external key id for user %s: %v", userID, err)
		return "", err
	}
	return externalKeyID, nil
}

// SetExternalKeyID inserts or overwrites the mapping for a user.
func (r *PostgresKeyIDRepository) SetExternalKeyID(ctx context.Context, userID, externalKeyID string) error {
	query := `
        INSERT INTO api_key_ids (user_id, external_key_id)
        VALUES ($1, $2)
        ON CONFLICT (user_id) DO UPDATE SET external_key_id = EXCLUDED.external_key_id
    `
	if _, err := r.db.Exec(ctx, query, userID, externalKeyID); err != nil {
		log.Printf("Error setting external key id for user %s: %v", userID, err)
		return err
	}
	return nil
}

// DeleteExternalKeyID removes the mapping. Idempotent.
func (r *PostgresKeyIDRepository) DeleteExternalKeyID(ctx context.Context, userID string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM api_key_ids WHERE user_id = $1`, userID); err != nil {
		log.Printf("Error deleting external key id for user %s: %v", userID, err)
		return err
	}
	return nil
}

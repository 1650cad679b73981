/**
 * @description
 * This file implements the data access layer for the payment ledger.
 * The (user_id, date) primary key is the idempotency guard the renewal
 * procedure relies on: one ledger entry per account per calendar day.
 */
package store

import (
	"context"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/keygate/keygate-backend/internal/domain"
)

// PostgresLedgerRepository is the PostgreSQL implementation of LedgerRepository.
type PostgresLedgerRepository struct {
	db *pgxpool.Pool
}

// NewPostgresLedgerRepository creates a new instance of PostgresLedgerRepository.
func NewPostgresLedgerRepository(db *pgxpool.Pool) *PostgresLedgerRepository {
	return &PostgresLedgerRepository{db: db}
}

// HasPaymentOn reports whether a ledger entry exists for (userID, date).
func (r *PostgresLedgerRepository) HasPaymentOn(ctx context.Context, userID, date string) (bool, error) {
	query := `
        SELECT EXISTS (
            SELECT 1 FROM payment_ledger WHERE user_id = $1 AND date = $2
        )
    `
	var exists bool
	if err := r.db.QueryRow(ctx, query, userID, date).Scan(&exists); err != nil {
		log.Printf("Error checking ledger for user %s on %s: %v", userID, date, err)
		return false, err
	}
	return exists, nil
}

// RecordPayment upserts the entry for (userID, date). A duplicate success
// event overwrites the same values, keeping the write idempotent.
func (r *PostgresLedgerRepository) RecordPayment(ctx context.Context, payment *domain.Payment) error {
	query := `
        INSERT INTO payment_ledger (user_id, amount, date)
        VALUES ($1, $2, $3)
        ON CONFLICT (user_id, date) DO UPDATE SET amount = EXCLUDED.amount
    `
	if _, err := r.db.Exec(ctx, query, payment.UserID, payment.Amount, payment.Date); err != nil {
		log.Printf("Error recording payment for user %s on %s: %v", payment.UserID, payment.Date, err)
		return err
	}
	return nil
}

// ListPayments returns the user's full payment history, newest first.
func (r *PostgresLedgerRepository) ListPayments(ctx context.Context, userID string) ([]domain.Payment, error) {
	query := `
        SELECT user_id, amount, date
        FROM payment_ledger
        WHERE user_id = $1
        ORDER BY to_date(date, 'MM-DD-YYYY') DESC
    `
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		log.Printf("Error listing payments for user %s: %v", userID, err)
		return nil, err
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		var p domain.Payment
		if err := rows.Scan(&p.UserID, &p.Amount, &p.Date); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

/**
 * @description
 * Idempotent schema bootstrap for local development and tests. Production
 * deployments run migrations out of band; these statements are safe to run
 * against an already-migrated database.
 */
package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS api_key_accounts (
		user_id      TEXT PRIMARY KEY,
		api_key      TEXT NOT NULL,
		tier         TEXT NOT NULL DEFAULT 'free',
		next_payment TEXT NOT NULL DEFAULT 'none'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_api_key_accounts_next_payment
		ON api_key_accounts (next_payment)`,
	`CREATE TABLE IF NOT EXISTS credit_cards (
		user_id   TEXT PRIMARY KEY,
		valid     BOOLEAN NOT NULL DEFAULT TRUE,
		recurring BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS payment_ledger (
		user_id TEXT NOT NULL,
		amount  TEXT NOT NULL,
		date    TEXT NOT NULL,
		PRIMARY KEY (user_id, date)
	)`,
	`CREATE TABLE IF NOT EXISTS api_key_ids (
		user_id         TEXT PRIMARY KEY,
		external_key_id TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS store_outbox (
		id                    BIGSERIAL PRIMARY KEY,
		exchange              TEXT NOT NULL,
		routing_key           TEXT NOT NULL,
		payload               JSONB NOT NULL,
		status                TEXT NOT NULL DEFAULT 'pending',
		attempts              INT NOT NULL DEFAULT 0,
		last_error            TEXT,
		created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		next_attempt_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		processing_started_at TIMESTAMPTZ,
		published_at          TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_store_outbox_pending
		ON store_outbox (status, next_attempt_at)`,
}

// EnsureSchema creates the account store tables if they do not exist.
func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

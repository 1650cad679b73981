/**
 * @description
 * Transactional outbox for account mutation events. Mutations on
 * api_key_accounts enqueue an event row inside the mutating transaction;
 * the dispatcher claims pending rows and publishes them to RabbitMQ,
 * retrying with backoff until the publish succeeds. This is what keeps the
 * external gateway eventually consistent even across broker outages.
 */
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/keygate/keygate-backend/internal/domain"
)

// PostgresOutboxRepository is the PostgreSQL implementation of OutboxRepository.
type PostgresOutboxRepository struct {
	db *pgxpool.Pool
}

// NewPostgresOutboxRepository creates a new instance of PostgresOutboxRepository.
func NewPostgresOutboxRepository(db *pgxpool.Pool) *PostgresOutboxRepository {
	return &PostgresOutboxRepository{db: db}
}

// ClaimOutboxMessages atomically claims a batch of pending messages,
// including processing rows whose claim has gone stale (a crashed
// dispatcher). SKIP LOCKED keeps concurrent dispatchers from double-claiming.
func (r *PostgresOutboxRepository) ClaimOutboxMessages(ctx context.Context, batchSize, staleAfterSeconds int) ([]OutboxMessage, error) {
	if batchSize <= 0 {
		batchSize = 50
	}
	if staleAfterSeconds <= 0 {
		staleAfterSeconds = 120
	}

	query := `
		WITH candidates AS (
			SELECT id
			FROM store_outbox
			WHERE (
				(status = 'pending' AND next_attempt_at <= NOW())
				OR (status = 'processing' AND processing_started_at < NOW() - ($2 * INTERVAL '1 second'))
			)
			ORDER BY created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE store_outbox AS o
		SET status = 'processing',
			processing_started_at = NOW(),
			attempts = o.attempts + 1
		FROM candidates
		WHERE o.id = candidates.id
		RETURNING o.id, o.exchange, o.routing_key, o.payload::text, o.attempts
	`

	rows, err := r.db.Query(ctx, query, batchSize, staleAfterSeconds)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]OutboxMessage, 0, batchSize)
	for rows.Next() {
		var (
			msg         OutboxMessage
			payloadText string
		)
		if err := rows.Scan(&msg.ID, &msg.Exchange, &msg.RoutingKey, &payloadText, &msg.Attempts); err != nil {
			return nil, err
		}
		msg.Payload = []byte(payloadText)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// MarkOutboxPublished finalizes a successfully published message.
func (r *PostgresOutboxRepository) MarkOutboxPublished(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `
		UPDATE store_outbox
		SET status = 'published',
			published_at = NOW(),
			processing_started_at = NULL,
			last_error = NULL
		WHERE id = $1
	`, id)
	return err
}

// MarkOutboxFailed returns a message to pending with a retry delay.
func (r *PostgresOutboxRepository) MarkOutboxFailed(ctx context.Context, id int64, retryAfterSeconds int, lastError string) error {
	if retryAfterSeconds < 1 {
		retryAfterSeconds = 1
	}
	if len(lastError) > 2000 {
		lastError = lastError[:2000]
	}
	_, err := r.db.Exec(ctx, `
		UPDATE store_outbox
		SET status = 'pending',
			next_attempt_at = NOW() + ($2 * INTERVAL '1 second'),
			processing_started_at = NULL,
			last_error = $3
		WHERE id = $1
	`, id, retryAfterSeconds, lastError)
	return err
}

// enqueueMutationTx writes an account.mutation event row inside the caller's
// transaction so the event commits if and only if the mutation does.
func enqueueMutationTx(ctx context.Context, tx pgx.Tx, event domain.AccountMutationEvent) error {
	blob, err := json.Marshal(event)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO store_outbox (exchange, routing_key, payload)
		VALUES ($1, $2, $3::jsonb)
	`, domain.AccountEventsExchange, domain.AccountMutationKey, string(blob))
	if err != nil {
		return fmt.Errorf("failed to enqueue account mutation event: %w", err)
	}
	return nil
}

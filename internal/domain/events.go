/**
 * @description
 * Event payload definitions shared by producers and consumers. All events
 * travel over the account_events topic exchange and are delivered
 * at-least-once, possibly duplicated and out of order; every consumer must
 * be idempotent.
 */
package domain

// Exchange and routing keys for the account event bus.
const (
	AccountEventsExchange = "account_events"

	UserCreatedKey          = "user.created"
	RenewalTriggerKey       = "billing.renewal.trigger"
	PaymentRequestedKey     = "payment.requested"
	PaymentSuccessKey       = "payment.outcome.success"
	PaymentFailureKey       = "payment.outcome.failure"
	AccountMutationKey      = "account.mutation"
	UserNotificationKey     = "user.notification"
)

// UserCreatedEvent is emitted by the identity provider when a new user
// finishes registration.
type UserCreatedEvent struct {
	UserID string `json:"user_id"`
}

// RenewalTriggerEvent is the daily marker published by the billing
// scheduler. It carries no payload beyond the trigger date, which is
// informational only; the renewal procedure computes "today" itself.
type RenewalTriggerEvent struct {
	TriggeredAt string `json:"triggered_at,omitempty"`
}

// PaymentRequestedEvent is the simulated charge request emitted by an
// upgrade. Recurring is the caller-chosen auto-renewal flag.
type PaymentRequestedEvent struct {
	UserID    string `json:"user_id"`
	Recurring bool   `json:"recurring"`
}

// PaymentSuccessEvent reports a successful charge for one account.
type PaymentSuccessEvent struct {
	UserID string  `json:"user_id"`
	Amount float64 `json:"amount"`
}

// PaymentFailureEvent reports a failed renewal. NoCard and Recurring
// distinguish the failure reason for user messaging.
type PaymentFailureEvent struct {
	UserID    string `json:"user_id"`
	NoCard    bool   `json:"noCard"`
	Recurring bool   `json:"recurring"`
}

// MutationKind classifies a store mutation on api_key_accounts.
type MutationKind string

const (
	MutationInsert MutationKind = "INSERT"
	MutationModify MutationKind = "MODIFY"
	MutationRemove MutationKind = "REMOVE"
)

// AccountMutationEvent is the change record published whenever an
// api_key_accounts row is inserted, modified, or removed. Before and After
// are full row images; Before is nil for INSERT and After is nil for REMOVE.
type AccountMutationEvent struct {
	EventKind MutationKind   `json:"eventKind"`
	Before    *APIKeyAccount `json:"before,omitempty"`
	After     *APIKeyAccount `json:"after,omitempty"`
}

// Notification templates for user-facing billing messages.
const (
	NotifyPaymentSuccess = "payment_success"
	NotifyPaymentFailure = "payment_failure"
)

// NotificationEvent asks the notification collaborator to message a user.
// Reason is set for failures (no_card, not_recurring, invalid_card).
type NotificationEvent struct {
	UserID   string `json:"user_id"`
	Template string `json:"template"`
	Reason   string `json:"reason,omitempty"`
}

/**
 * @description
 * Domain model for the payment ledger. Ledger entries are append-only and
 * keyed by (user_id, date), which doubles as the idempotency guard against
 * processing the same account twice on one calendar day.
 */
package domain

// MonthlyPrice is the fixed monthly subscription charge in dollars.
const MonthlyPrice int64 = 20

// Payment is a single ledger entry recording a successful charge.
type Payment struct {
	UserID string `json:"user_id"`
	Amount string `json:"amount"` // decimal-as-string
	Date   string `json:"date"`   // MM-DD-YYYY
}

/**
 * @description
 * Domain model for stored credit cards. A user has at most one card on file;
 * absence of a record means "no card". A card can be valid but non-recurring
 * when a one-time payment authorization has already been consumed.
 */
package domain

// CreditCard represents a user's stored card in the store.
type CreditCard struct {
	UserID    string `json:"user_id"`
	Valid     bool   `json:"valid"`
	Recurring bool   `json:"recurring"`
}

// CardUpdate is a partial update of a stored card. Nil fields are left
// untouched; at least one field must be set.
type CardUpdate struct {
	Valid     *bool `json:"valid,omitempty"`
	Recurring *bool `json:"recurring,omitempty"`
}

// IsEmpty reports whether the update contains no changes.
func (u CardUpdate) IsEmpty() bool {
	return u.Valid == nil && u.Recurring == nil
}

/**
 * @description
 * This file defines the core domain model for API key accounts.
 * An account ties an authenticated user to their current API key, their
 * service tier, and the date their next subscription payment is due.
 */
package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Tier is the service level of an account. It gates which usage plan the
// account's key is associated with on the rate-limiting gateway.
type Tier string

const (
	TierFree Tier = "free"
	TierPaid Tier = "paid"
)

// NoPaymentDate is the sentinel next-payment value for free tier accounts.
const NoPaymentDate = "none"

// PaymentDateLayout is the fixed calendar format persisted to the store.
// It is used both as a stored value and as the equality filter for the
// daily renewal scan, so it must never change shape.
const PaymentDateLayout = "01-02-2006" // MM-DD-YYYY

// APIKeyAccount represents the structure of a user's account in the store.
type APIKeyAccount struct {
	UserID      string `json:"user_id"`
	APIKey      string `json:"apiKey"`
	Tier        Tier   `json:"tier"`
	NextPayment string `json:"nextPayment"` // MM-DD-YYYY or "none"
}

// NewAPIKey generates a fresh unique API key secret.
func NewAPIKey() string {
	return uuid.NewString()
}

// FormatPaymentDate renders t in the persisted MM-DD-YYYY format.
func FormatPaymentDate(t time.Time) string {
	return t.Format(PaymentDateLayout)
}

// ParsePaymentDate parses a persisted MM-DD-YYYY date string.
func ParsePaymentDate(s string) (time.Time, error) {
	t, err := time.Parse(PaymentDateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid payment date %q: %w", s, err)
	}
	return t, nil
}

// NextMonthClamped returns t plus one calendar month, clamping the day of
// month to the last valid day of the target month. Unlike time.AddDate,
// Jan 31 advances to Feb 28 (or 29), never to Mar 3.
func NextMonthClamped(t time.Time) time.Time {
	year, month, day := t.Date()
	firstOfNext := time.Date(year, month+1, 1, 0, 0, 0, 0, t.Location())
	lastDay := firstOfNext.AddDate(0, 1, -1).Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(firstOfNext.Year(), firstOfNext.Month(), day, 0, 0, 0, 0, t.Location())
}

// AdvancePaymentDate advances an MM-DD-YYYY date string by one month with
// day-of-month clamping.
func AdvancePaymentDate(date string) (string, error) {
	t, err := ParsePaymentDate(date)
	if err != nil {
		return "", err
	}
	return FormatPaymentDate(NextMonthClamped(t)), nil
}

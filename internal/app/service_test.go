package app

import (
	"context"
	"errors"
	"testing"

	"github.com/keygate/keygate-backend/internal/domain"
)

type fakeIdentity struct {
	deleted []string
	err     error
}

func (f *fakeIdentity) DeleteUser(ctx context.Context, userID string) error {
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, userID)
	return nil
}

type serviceFixture struct {
	accounts  *memAccounts
	cards     *memCards
	ledger    *memLedger
	publisher *recordingPublisher
	identity  *fakeIdentity
	service   Service
}

func newServiceFixture() *serviceFixture {
	f := &serviceFixture{
		accounts:  newMemAccounts(),
		cards:     newMemCards(),
		ledger:    newMemLedger(),
		publisher: &recordingPublisher{},
		identity:  &fakeIdentity{},
	}
	f.service = NewService(f.accounts, f.cards, f.ledger, f.publisher, f.identity)
	return f
}

func assertServiceError(t *testing.T, err error, wantName string) {
	t.Helper()
	var serviceErr *domain.ServiceError
	if !errors.As(err, &serviceErr) {
		t.Fatalf("expected a ServiceError, got %v", err)
	}
	if serviceErr.Name != wantName {
		t.Fatalf("expected error %q, got %q", wantName, serviceErr.Name)
	}
}

func TestGetAPIKey(t *testing.T) {
	f := newServiceFixture()
	f.accounts.accounts["u1"] = domain.APIKeyAccount{UserID: "u1", APIKey: "k1", Tier: domain.TierFree, NextPayment: domain.NoPaymentDate}

	account, err := f.service.GetAPIKey(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if account.APIKey != "k1" {
		t.Fatalf("expected key k1, got %s", account.APIKey)
	}

	_, err = f.service.GetAPIKey(context.Background(), "missing")
	assertServiceError(t, err, "ItemNotFound")
}

func TestRotateAPIKeyRoundTrip(t *testing.T) {
	f := newServiceFixture()
	f.accounts.accounts["u1"] = domain.APIKeyAccount{UserID: "u1", APIKey: "k1", Tier: domain.TierFree, NextPayment: domain.NoPaymentDate}

	newKey, err := f.service.RotateAPIKey(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if newKey == "" || newKey == "k1" {
		t.Fatalf("expected a fresh key, got %q", newKey)
	}

	account, err := f.service.GetAPIKey(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if account.APIKey != newKey {
		t.Fatal("expected the rotated key to be immediately readable")
	}
}

func TestRotateAPIKeyUnknownAccount(t *testing.T) {
	f := newServiceFixture()
	_, err := f.service.RotateAPIKey(context.Background(), "missing")
	assertServiceError(t, err, "ItemNotFound")
}

func TestRequestUpgrade(t *testing.T) {
	t.Run("no card fails fast", func(t *testing.T) {
		f := newServiceFixture()
		err := f.service.RequestUpgrade(context.Background(), "u1", true)
		assertServiceError(t, err, "ItemNotFound")
		if len(f.publisher.events) != 0 {
			t.Fatal("expected no payment request without a card")
		}
	})

	t.Run("invalid card fails fast", func(t *testing.T) {
		f := newServiceFixture()
		f.cards.cards["u1"] = domain.CreditCard{UserID: "u1", Valid: false}
		err := f.service.RequestUpgrade(context.Background(), "u1", true)
		assertServiceError(t, err, "ValidationException")
	})

	t.Run("valid card publishes charge request", func(t *testing.T) {
		f := newServiceFixture()
		f.cards.cards["u1"] = domain.CreditCard{UserID: "u1", Valid: true}

		if err := f.service.RequestUpgrade(context.Background(), "u1", true); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		requests := f.publisher.eventsByKey(domain.PaymentRequestedKey)
		if len(requests) != 1 {
			t.Fatalf("expected one payment request, got %d", len(requests))
		}
		request := requests[0].Body.(domain.PaymentRequestedEvent)
		if request.UserID != "u1" || !request.Recurring {
			t.Fatalf("unexpected payment request payload: %+v", request)
		}
	})
}

func TestCreateCard(t *testing.T) {
	f := newServiceFixture()

	card, err := f.service.CreateCard(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !card.Valid || card.Recurring {
		t.Fatalf("expected a new card to be valid and non-recurring, got %+v", card)
	}

	_, err = f.service.CreateCard(context.Background(), "u1")
	assertServiceError(t, err, "ItemAlreadyExists")
}

func TestEditCard(t *testing.T) {
	f := newServiceFixture()
	f.cards.cards["u1"] = domain.CreditCard{UserID: "u1", Valid: true, Recurring: false}

	_, err := f.service.EditCard(context.Background(), "u1", domain.CardUpdate{})
	assertServiceError(t, err, "ValidationException")

	recurring := true
	card, err := f.service.EditCard(context.Background(), "u1", domain.CardUpdate{Recurring: &recurring})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !card.Recurring || !card.Valid {
		t.Fatalf("expected partial update to only touch recurring, got %+v", card)
	}

	_, err = f.service.EditCard(context.Background(), "missing", domain.CardUpdate{Recurring: &recurring})
	assertServiceError(t, err, "ItemNotFound")
}

func TestGetPaymentHistory(t *testing.T) {
	f := newServiceFixture()

	_, err := f.service.GetPaymentHistory(context.Background(), "u1")
	assertServiceError(t, err, "ItemNotFound")

	f.ledger.payments[ledgerKey("u1", "06-15-2025")] = domain.Payment{UserID: "u1", Amount: "20", Date: "06-15-2025"}
	payments, err := f.service.GetPaymentHistory(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(payments) != 1 || payments[0].Amount != "20" {
		t.Fatalf("unexpected payment history: %+v", payments)
	}
}

func TestDeleteAccount(t *testing.T) {
	f := newServiceFixture()
	f.accounts.accounts["u1"] = domain.APIKeyAccount{UserID: "u1", APIKey: "k1", Tier: domain.TierPaid, NextPayment: "07-15-2025"}
	f.cards.cards["u1"] = domain.CreditCard{UserID: "u1", Valid: true}
	f.ledger.payments[ledgerKey("u1", "06-15-2025")] = domain.Payment{UserID: "u1", Amount: "20", Date: "06-15-2025"}

	if err := f.service.DeleteAccount(context.Background(), "u1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(f.identity.deleted) != 1 || f.identity.deleted[0] != "u1" {
		t.Fatal("expected the identity provider user to be deleted")
	}
	if _, ok := f.accounts.accounts["u1"]; ok {
		t.Fatal("expected the account record to be deleted")
	}
	if _, ok := f.cards.cards["u1"]; ok {
		t.Fatal("expected the card record to be deleted")
	}
	// The ledger keeps the audit trail.
	if _, ok := f.ledger.payments[ledgerKey("u1", "06-15-2025")]; !ok {
		t.Fatal("expected ledger entries to survive account deletion")
	}
}

func TestDeleteAccountIdentityFailureAborts(t *testing.T) {
	f := newServiceFixture()
	f.identity.err = errPublishFailed
	f.accounts.accounts["u1"] = domain.APIKeyAccount{UserID: "u1", APIKey: "k1", Tier: domain.TierFree, NextPayment: domain.NoPaymentDate}

	if err := f.service.DeleteAccount(context.Background(), "u1"); err == nil {
		t.Fatal("expected an error when the identity provider call fails")
	}
	if _, ok := f.accounts.accounts["u1"]; !ok {
		t.Fatal("expected the account record to be left intact")
	}
}

func TestDeleteAccountIdempotent(t *testing.T) {
	f := newServiceFixture()
	if err := f.service.DeleteAccount(context.Background(), "ghost"); err != nil {
		t.Fatalf("expected deleting a missing account to succeed, got %v", err)
	}
}

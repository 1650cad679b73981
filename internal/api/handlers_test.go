package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"

	"github.com/keygate/keygate-backend/internal/app"
	"github.com/keygate/keygate-backend/internal/domain"
	"github.com/keygate/keygate-backend/internal/store"
)

const testJWTSecret = "test-secret"

type accountsStub struct {
	account *domain.APIKeyAccount
}

func (s *accountsStub) GetAccount(ctx context.Context, userID string) (*domain.APIKeyAccount, error) {
	if s.account == nil || s.account.UserID != userID {
		return nil, store.ErrAccountNotFound
	}
	account := *s.account
	return &account, nil
}

func (s *accountsStub) CreateAccountIfAbsent(ctx context.Context, account *domain.APIKeyAccount) (bool, error) {
	return false, nil
}

func (s *accountsStub) UpdateAPIKey(ctx context.Context, userID, apiKey string) (*domain.APIKeyAccount, error) {
	if s.account == nil || s.account.UserID != userID {
		return nil, store.ErrAccountNotFound
	}
	s.account.APIKey = apiKey
	account := *s.account
	return &account, nil
}

func (s *accountsStub) UpdateTier(ctx context.Context, userID string, tier domain.Tier, nextPayment string) (*domain.APIKeyAccount, error) {
	return nil, store.ErrAccountNotFound
}

func (s *accountsStub) DeleteAccount(ctx context.Context, userID string) error {
	if s.account == nil || s.account.UserID != userID {
		return store.ErrAccountNotFound
	}
	s.account = nil
	return nil
}

func (s *accountsStub) ListAccountsDueOn(ctx context.Context, date string) ([]domain.APIKeyAccount, error) {
	return nil, nil
}

type cardsStub struct {
	card *domain.CreditCard
}

func (s *cardsStub) GetCard(ctx context.Context, userID string) (*domain.CreditCard, error) {
	if s.card == nil || s.card.UserID != userID {
		return nil, store.ErrCardNotFound
	}
	card := *s.card
	return &card, nil
}

func (s *cardsStub) CreateCard(ctx context.Context, card *domain.CreditCard) error {
	if s.card != nil && s.card.UserID == card.UserID {
		return store.ErrCardExists
	}
	c := *card
	s.card = &c
	return nil
}

func (s *cardsStub) UpdateCard(ctx context.Context, userID string, update domain.CardUpdate) (*domain.CreditCard, error) {
	if s.card == nil || s.card.UserID != userID {
		return nil, store.ErrCardNotFound
	}
	if update.Valid != nil {
		s.card.Valid = *update.Valid
	}
	if update.Recurring != nil {
		s.card.Recurring = *update.Recurring
	}
	card := *s.card
	return &card, nil
}

func (s *cardsStub) DeleteCard(ctx context.Context, userID string) error {
	s.card = nil
	return nil
}

type ledgerStub struct {
	payments []domain.Payment
}

func (s *ledgerStub) HasPaymentOn(ctx context.Context, userID, date string) (bool, error) {
	return false, nil
}

func (s *ledgerStub) RecordPayment(ctx context.Context, payment *domain.Payment) error {
	s.payments = append(s.payments, *payment)
	return nil
}

func (s *ledgerStub) ListPayments(ctx context.Context, userID string) ([]domain.Payment, error) {
	return s.payments, nil
}

type publisherStub struct{}

func (publisherStub) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	return nil
}

type identityStub struct{}

func (identityStub) DeleteUser(ctx context.Context, userID string) error { return nil }

func newTestRouter(accounts *accountsStub, cards *cardsStub, ledger *ledgerStub) http.Handler {
	service := app.NewService(accounts, cards, ledger, publisherStub{}, identityStub{})
	return NewRouter(NewHandler(service), testJWTSecret, nil)
}

func bearerToken(t *testing.T, userID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": userID})
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatal(err)
	}
	return "Bearer " + signed
}

func doRequest(t *testing.T, router http.Handler, method, path, auth, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var envelope map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
	return envelope
}

func TestRouterRejectsMissingToken(t *testing.T) {
	router := newTestRouter(&accountsStub{}, &cardsStub{}, &ledgerStub{})
	rec := doRequest(t, router, http.MethodGet, "/account/apikey", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRouterRejectsWrongSignature(t *testing.T) {
	router := newTestRouter(&accountsStub{}, &cardsStub{}, &ledgerStub{})
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u1"})
	signed, _ := token.SignedString([]byte("other-secret"))
	rec := doRequest(t, router, http.MethodGet, "/account/apikey", "Bearer "+signed, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestGetAPIKeyEnvelope(t *testing.T) {
	accounts := &accountsStub{account: &domain.APIKeyAccount{UserID: "u1", APIKey: "k1", Tier: domain.TierFree, NextPayment: domain.NoPaymentDate}}
	router := newTestRouter(accounts, &cardsStub{}, &ledgerStub{})

	rec := doRequest(t, router, http.MethodGet, "/account/apikey", bearerToken(t, "u1"), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	envelope := decodeEnvelope(t, rec)
	if envelope["success"] != true {
		t.Fatalf("expected success envelope, got %v", envelope)
	}
	item, ok := envelope["tableItem"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected tableItem, got %v", envelope)
	}
	if item["apiKey"] != "k1" || item["tier"] != "free" || item["nextPayment"] != "none" {
		t.Fatalf("unexpected tableItem %v", item)
	}
}

func TestGetAPIKeyNotFoundEnvelope(t *testing.T) {
	router := newTestRouter(&accountsStub{}, &cardsStub{}, &ledgerStub{})

	rec := doRequest(t, router, http.MethodGet, "/account/apikey", bearerToken(t, "u1"), "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	envelope := decodeEnvelope(t, rec)
	if envelope["success"] != false {
		t.Fatalf("expected failure envelope, got %v", envelope)
	}
	errObj, ok := envelope["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected structured error, got %v", envelope)
	}
	if errObj["name"] != "ItemNotFound" {
		t.Fatalf("expected ItemNotFound, got %v", errObj)
	}
}

func TestResetAPIKeyReturnsNewKey(t *testing.T) {
	accounts := &accountsStub{account: &domain.APIKeyAccount{UserID: "u1", APIKey: "k1", Tier: domain.TierFree, NextPayment: domain.NoPaymentDate}}
	router := newTestRouter(accounts, &cardsStub{}, &ledgerStub{})

	rec := doRequest(t, router, http.MethodPost, "/account/apikey/reset", bearerToken(t, "u1"), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	envelope := decodeEnvelope(t, rec)
	apiKey, _ := envelope["apiKey"].(string)
	if apiKey == "" || apiKey == "k1" {
		t.Fatalf("expected a fresh apiKey in the envelope, got %v", envelope)
	}
	if accounts.account.APIKey != apiKey {
		t.Fatal("expected the stored key to match the returned key")
	}
}

func TestCardLifecycle(t *testing.T) {
	cards := &cardsStub{}
	router := newTestRouter(&accountsStub{}, cards, &ledgerStub{})
	auth := bearerToken(t, "u1")

	rec := doRequest(t, router, http.MethodGet, "/account/card", auth, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before creation, got %d", rec.Code)
	}

	rec = doRequest(t, router, http.MethodPost, "/account/card", auth, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on create, got %d", rec.Code)
	}
	envelope := decodeEnvelope(t, rec)
	item := envelope["tableItem"].(map[string]interface{})
	if item["valid"] != true || item["recurring"] != false {
		t.Fatalf("expected new card valid and non-recurring, got %v", item)
	}

	rec = doRequest(t, router, http.MethodPost, "/account/card", auth, "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on duplicate create, got %d", rec.Code)
	}

	rec = doRequest(t, router, http.MethodPatch, "/account/card", auth, `{"recurring":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on edit, got %d", rec.Code)
	}
	envelope = decodeEnvelope(t, rec)
	item = envelope["tableItem"].(map[string]interface{})
	if item["recurring"] != true {
		t.Fatalf("expected recurring enabled, got %v", item)
	}

	rec = doRequest(t, router, http.MethodPatch, "/account/card", auth, `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 on empty edit, got %d", rec.Code)
	}

	rec = doRequest(t, router, http.MethodDelete, "/account/card", auth, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on delete, got %d", rec.Code)
	}
}

func TestGetPaymentHistoryEnvelope(t *testing.T) {
	ledger := &ledgerStub{payments: []domain.Payment{{UserID: "u1", Amount: "20", Date: "06-15-2025"}}}
	router := newTestRouter(&accountsStub{}, &cardsStub{}, ledger)

	rec := doRequest(t, router, http.MethodGet, "/account/payments", bearerToken(t, "u1"), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	envelope := decodeEnvelope(t, rec)
	items, ok := envelope["tableItems"].([]interface{})
	if !ok || len(items) != 1 {
		t.Fatalf("expected one payment item, got %v", envelope)
	}
	item := items[0].(map[string]interface{})
	if item["amount"] != "20" || item["date"] != "06-15-2025" {
		t.Fatalf("unexpected payment item %v", item)
	}
}

func TestMakePaymentWithoutCard(t *testing.T) {
	router := newTestRouter(&accountsStub{}, &cardsStub{}, &ledgerStub{})

	rec := doRequest(t, router, http.MethodPost, "/account/payment", bearerToken(t, "u1"), `{"recurring":true}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without a card, got %d", rec.Code)
	}
}

func TestDeleteAccount(t *testing.T) {
	accounts := &accountsStub{account: &domain.APIKeyAccount{UserID: "u1", APIKey: "k1", Tier: domain.TierFree, NextPayment: domain.NoPaymentDate}}
	router := newTestRouter(accounts, &cardsStub{}, &ledgerStub{})

	rec := doRequest(t, router, http.MethodDelete, "/account/", bearerToken(t, "u1"), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if accounts.account != nil {
		t.Fatal("expected the account to be deleted")
	}
}

func TestHealthEndpointIsPublic(t *testing.T) {
	router := newTestRouter(&accountsStub{}, &cardsStub{}, &ledgerStub{})
	rec := doRequest(t, router, http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

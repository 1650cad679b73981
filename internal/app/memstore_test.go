package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/keygate/keygate-backend/internal/domain"
	"github.com/keygate/keygate-backend/internal/store"
)

// In-memory repository fakes shared by the application tests.

var errPublishFailed = errors.New("publish failed")

type memAccounts struct {
	mu       sync.Mutex
	accounts map[string]domain.APIKeyAccount
	listErr  error
}

func newMemAccounts() *memAccounts {
	return &memAccounts{accounts: make(map[string]domain.APIKeyAccount)}
}

func (m *memAccounts) GetAccount(ctx context.Context, userID string) (*domain.APIKeyAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[userID]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	return &account, nil
}

func (m *memAccounts) CreateAccountIfAbsent(ctx context.Context, account *domain.APIKeyAccount) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[account.UserID]; ok {
		return false, nil
	}
	m.accounts[account.UserID] = *account
	return true, nil
}

func (m *memAccounts) UpdateAPIKey(ctx context.Context, userID, apiKey string) (*domain.APIKeyAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[userID]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	account.APIKey = apiKey
	m.accounts[userID] = account
	return &account, nil
}

func (m *memAccounts) UpdateTier(ctx context.Context, userID string, tier domain.Tier, nextPayment string) (*domain.APIKeyAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[userID]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	account.Tier = tier
	account.NextPayment = nextPayment
	m.accounts[userID] = account
	return &account, nil
}

func (m *memAccounts) DeleteAccount(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[userID]; !ok {
		return store.ErrAccountNotFound
	}
	delete(m.accounts, userID)
	return nil
}

func (m *memAccounts) ListAccountsDueOn(ctx context.Context, date string) ([]domain.APIKeyAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var due []domain.APIKeyAccount
	for _, account := range m.accounts {
		if account.NextPayment == date {
			due = append(due, account)
		}
	}
	return due, nil
}

type memCards struct {
	mu     sync.Mutex
	cards  map[string]domain.CreditCard
	getErr map[string]error
}

func newMemCards() *memCards {
	return &memCards{cards: make(map[string]domain.CreditCard), getErr: make(map[string]error)}
}

func (m *memCards) GetCard(ctx context.Context, userID string) (*domain.CreditCard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.getErr[userID]; err != nil {
		return nil, err
	}
	card, ok := m.cards[userID]
	if !ok {
		return nil, store.ErrCardNotFound
	}
	return &card, nil
}

func (m *memCards) CreateCard(ctx context.Context, card *domain.CreditCard) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cards[card.UserID]; ok {
		return store.ErrCardExists
	}
	m.cards[card.UserID] = *card
	return nil
}

func (m *memCards) UpdateCard(ctx context.Context, userID string, update domain.CardUpdate) (*domain.CreditCard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	card, ok := m.cards[userID]
	if !ok {
		return nil, store.ErrCardNotFound
	}
	if update.Valid != nil {
		card.Valid = *update.Valid
	}
	if update.Recurring != nil {
		card.Recurring = *update.Recurring
	}
	m.cards[userID] = card
	return &card, nil
}

func (m *memCards) DeleteCard(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cards, userID)
	return nil
}

type memLedger struct {
	mu       sync.Mutex
	payments map[string]domain.Payment // keyed userID|date
}

func newMemLedger() *memLedger {
	return &memLedger{payments: make(map[string]domain.Payment)}
}

func ledgerKey(userID, date string) string {
	return fmt.Sprintf("%s|%s", userID, date)
}

func (m *memLedger) HasPaymentOn(ctx context.Context, userID, date string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.payments[ledgerKey(userID, date)]
	return ok, nil
}

func (m *memLedger) RecordPayment(ctx context.Context, payment *domain.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments[ledgerKey(payment.UserID, payment.Date)] = *payment
	return nil
}

func (m *memLedger) ListPayments(ctx context.Context, userID string) ([]domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var payments []domain.Payment
	for _, p := range m.payments {
		if p.UserID == userID {
			payments = append(payments, p)
		}
	}
	return payments, nil
}

type memKeyIDs struct {
	mu  sync.Mutex
	ids map[string]string
}

func newMemKeyIDs() *memKeyIDs {
	return &memKeyIDs{ids: make(map[string]string)}
}

func (m *memKeyIDs) GetExternalKeyID(ctx context.Context, userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.ids[userID]
	if !ok {
		return "", store.ErrKeyIDNotFound
	}
	return id, nil
}

func (m *memKeyIDs) SetExternalKeyID(ctx context.Context, userID, externalKeyID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids[userID] = externalKeyID
	return nil
}

func (m *memKeyIDs) DeleteExternalKeyID(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.ids, userID)
	return nil
}

// recordedEvent captures a single published event for assertions.
type recordedEvent struct {
	Exchange   string
	RoutingKey string
	Body       interface{}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, recordedEvent{Exchange: exchange, RoutingKey: routingKey, Body: body})
	return nil
}

func (p *recordingPublisher) eventsByKey(routingKey string) []recordedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var matched []recordedEvent
	for _, e := range p.events {
		if e.RoutingKey == routingKey {
			matched = append(matched, e)
		}
	}
	return matched
}

/**
 * @description
 * This file contains the HTTP handler functions for the request layer.
 * Handlers are responsible for parsing incoming requests, calling the
 * appropriate business logic in the service layer, and writing the response
 * envelope. Every operation returns {success, ...?, error?} rather than a
 * raw transport fault; only truly unexpected serialization failures surface
 * as a bare 500.
 */
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/keygate/keygate-backend/internal/app"
	"github.com/keygate/keygate-backend/internal/domain"
)

// Handler holds the application service that handlers will interact with.
type Handler struct {
	service app.Service
}

// NewHandler creates a new Handler with the given service.
func NewHandler(service app.Service) *Handler {
	return &Handler{service: service}
}

// apiKeyItem is the account projection returned to the client.
type apiKeyItem struct {
	APIKey      string `json:"apiKey"`
	Tier        string `json:"tier"`
	NextPayment string `json:"nextPayment"`
}

// cardItem is the card projection returned to the client.
type cardItem struct {
	Valid     bool `json:"valid"`
	Recurring bool `json:"recurring"`
}

// paymentItem is a single ledger entry returned to the client.
type paymentItem struct {
	Amount string `json:"amount"`
	Date   string `json:"date"`
}

type envelope struct {
	Success    bool                 `json:"success"`
	TableItem  interface{}          `json:"tableItem,omitempty"`
	TableItems interface{}          `json:"tableItems,omitempty"`
	APIKey     string               `json:"apiKey,omitempty"`
	Error      *domain.ServiceError `json:"error,omitempty"`
}

// handleGetAPIKey returns the caller's API key account.
func (h *Handler) handleGetAPIKey(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	account, err := h.service.GetAPIKey(r.Context(), userID)
	if err != nil {
		respondWithError(w, err)
		return
	}

	item := apiKeyItem{APIKey: account.APIKey, Tier: string(account.Tier), NextPayment: account.NextPayment}
	respondWithJSON(w, http.StatusOK, envelope{Success: true, TableItem: item})
}

// handleResetAPIKey rotates the caller's API key and returns the new value
// immediately. The gateway honors the new key only after the asynchronous
// provisioning sync catches up.
func (h *Handler) handleResetAPIKey(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	apiKey, err := h.service.RotateAPIKey(r.Context(), userID)
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, envelope{Success: true, APIKey: apiKey})
}

// handleMakePayment initiates the simulated upgrade charge. A success
// response confirms only that the charge request was accepted; the tier
// change lands asynchronously.
func (h *Handler) handleMakePayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		Recurring bool `json:"recurring"`
	}
	if r.Body != nil {
		// An empty body defaults to a one-time payment.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	if err := h.service.RequestUpgrade(r.Context(), userID, req.Recurring); err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, envelope{Success: true})
}

// handleGetCard returns the caller's stored card.
func (h *Handler) handleGetCard(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	card, err := h.service.GetCard(r.Context(), userID)
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, envelope{Success: true, TableItem: cardItem{Valid: card.Valid, Recurring: card.Recurring}})
}

// handleCreateCard stores a new card for the caller.
func (h *Handler) handleCreateCard(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	card, err := h.service.CreateCard(r.Context(), userID)
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, envelope{Success: true, TableItem: cardItem{Valid: card.Valid, Recurring: card.Recurring}})
}

// handleEditCard applies a partial update of the card flags.
func (h *Handler) handleEditCard(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var update domain.CardUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		respondWithError(w, domain.NewValidationException("invalid request body"))
		return
	}

	card, err := h.service.EditCard(r.Context(), userID, update)
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, envelope{Success: true, TableItem: cardItem{Valid: card.Valid, Recurring: card.Recurring}})
}

// handleDeleteCard removes the caller's card. Idempotent.
func (h *Handler) handleDeleteCard(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if err := h.service.DeleteCard(r.Context(), userID); err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, envelope{Success: true})
}

// handleGetPaymentHistory returns the caller's ledger entries.
func (h *Handler) handleGetPaymentHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	payments, err := h.service.GetPaymentHistory(r.Context(), userID)
	if err != nil {
		respondWithError(w, err)
		return
	}

	items := make([]paymentItem, 0, len(payments))
	for _, p := range payments {
		items = append(items, paymentItem{Amount: p.Amount, Date: p.Date})
	}
	respondWithJSON(w, http.StatusOK, envelope{Success: true, TableItems: items})
}

// handleDeleteAccount removes the caller's identity, card, and account.
func (h *Handler) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if err := h.service.DeleteAccount(r.Context(), userID); err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, envelope{Success: true})
}

// respondWithError wraps any error into the response envelope, preserving
// the structured taxonomy when present.
func respondWithError(w http.ResponseWriter, err error) {
	var svcErr *domain.ServiceError
	if !errors.As(err, &svcErr) {
		svcErr = domain.NewInternalError(err)
	}
	respondWithJSON(w, svcErr.Status, envelope{Success: false, Error: svcErr})
}

// respondWithJSON is a helper function to write JSON responses.
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

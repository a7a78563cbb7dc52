/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON structures for the HTTP surface, decoupled from the domain types
  so the wire contract can evolve without touching the ledger.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

ERROR MAPPING:
  InvalidAmount / SelfTransfer -> 400
  AccountNotFound              -> 404
  AccountExists                -> 409
  InsufficientFunds            -> 422
  anything else                -> 500

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/stormhold/gold-engine/ledger"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

type CreateAccountRequest struct {
	ID             string `json:"id"`
	OpeningBalance int64  `json:"opening_balance"`
}

type AccountDTO struct {
	ID        string `json:"id"`
	Balance   int64  `json:"balance"`
	CreatedAt string `json:"created_at,omitempty"`
}

type MutationRequest struct {
	Amount   int64             `json:"amount"`
	Source   string            `json:"source"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type MutationResponse struct {
	NewBalance int64    `json:"new_balance"`
	Entry      EntryDTO `json:"entry"`
}

type TransferRequest struct {
	From     string            `json:"from"`
	To       string            `json:"to"`
	Amount   int64             `json:"amount"`
	Source   string            `json:"source"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type TransferResponse struct {
	FromBalance int64      `json:"from_balance"`
	ToBalance   int64      `json:"to_balance"`
	Entries     []EntryDTO `json:"entries"`
}

type BatchTransferRequest struct {
	From       string             `json:"from"`
	Recipients []BatchRecipientIn `json:"recipients"`
	Source     string             `json:"source"`
	Metadata   map[string]string  `json:"metadata,omitempty"`
}

type BatchRecipientIn struct {
	To     string `json:"to"`
	Amount int64  `json:"amount"`
}

type BatchTransferResponse struct {
	FromBalance int64            `json:"from_balance"`
	DebitEntry  EntryDTO         `json:"debit_entry"`
	Credits     []BatchCreditDTO `json:"credits"`
}

type BatchCreditDTO struct {
	To        string `json:"to"`
	Amount    int64  `json:"amount"`
	ToBalance int64  `json:"to_balance"`
}

type BalanceDTO struct {
	AccountID string `json:"account_id"`
	Balance   int64  `json:"balance"`
}

type EntryDTO struct {
	ID            string            `json:"id"`
	AccountID     string            `json:"account_id"`
	Amount        int64             `json:"amount"`
	Kind          string            `json:"kind"`
	Source        string            `json:"source"`
	BalanceBefore int64             `json:"balance_before"`
	BalanceAfter  int64             `json:"balance_after"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     string            `json:"created_at"`
}

type StatisticsDTO struct {
	TotalEarned      int64 `json:"total_earned"`
	TotalSpent       int64 `json:"total_spent"`
	NetGold          int64 `json:"net_gold"`
	TransactionCount int   `json:"transaction_count"`
	LargestEarning   int64 `json:"largest_earning"`
	LargestExpense   int64 `json:"largest_expense"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toEntryDTO(e ledger.Entry) EntryDTO {
	return EntryDTO{
		ID:            string(e.ID),
		AccountID:     string(e.AccountID),
		Amount:        e.Amount,
		Kind:          string(e.Kind),
		Source:        string(e.Source),
		BalanceBefore: e.BalanceBefore,
		BalanceAfter:  e.BalanceAfter,
		Metadata:      e.Metadata,
		CreatedAt:     e.CreatedAt.Format(timeFormat),
	}
}

func toEntryDTOs(entries []ledger.Entry) []EntryDTO {
	dtos := make([]EntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toEntryDTO(e)
	}
	return dtos
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

const timeFormat = "2006-01-02T15:04:05.999999999Z07:00" // RFC 3339 with nanos

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeLedgerError maps a ledger error to an HTTP status.
func writeLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, "Account not found", err)
	case errors.Is(err, ledger.ErrAccountExists):
		writeError(w, http.StatusConflict, "Account already exists", err)
	case errors.Is(err, ledger.ErrInsufficientFunds):
		writeError(w, http.StatusUnprocessableEntity, "Insufficient funds", err)
	case errors.Is(err, ledger.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
	case errors.Is(err, ledger.ErrSelfTransfer):
		writeError(w, http.StatusBadRequest, "Cannot transfer to the same account", err)
	default:
		writeError(w, http.StatusInternalServerError, "Ledger operation failed", err)
	}
}

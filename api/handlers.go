/*
handlers.go - HTTP handlers for the gold ledger

PURPOSE:
  Exposes the ledger to game collaborators (shops, quest system, mail)
  over REST. Handlers parse the request, delegate to the ledger Service,
  and map results and errors onto the wire contract in dto.go.

ENDPOINTS:
  Accounts:
    POST   /api/accounts                    Create account
    GET    /api/accounts                    List accounts (admin)
    GET    /api/accounts/{id}/balance       Current balance
    GET    /api/accounts/{id}/history       Reverse-chronological journal page
    GET    /api/accounts/{id}/statistics    Earning/spending totals
    POST   /api/accounts/{id}/credit        Add gold
    POST   /api/accounts/{id}/debit         Remove gold

  Transfers:
    POST   /api/transfers                   Two-party transfer
    POST   /api/transfers/batch             One sender, many recipients

  Admin:
    POST   /api/seed                        Load the demo world (dev only)

SECURITY NOTE:
  No authentication middleware. The ledger sits behind the game server's
  internal network; callers are trusted collaborators.

SEE ALSO:
  - dto.go: Wire types and error mapping
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/stormhold/gold-engine/ledger"
)

// =============================================================================
// HANDLER
// =============================================================================

// Handler holds the dependencies for all HTTP handlers.
type Handler struct {
	Service *ledger.Service
	Store   ledger.Store
}

// NewHandler creates a handler over the given service.
func NewHandler(svc *ledger.Service) *Handler {
	return &Handler{Service: svc, Store: svc.Store}
}

// =============================================================================
// ACCOUNT ENDPOINTS
// =============================================================================

// CreateAccount provisions an account with an opening balance.
// POST /api/accounts
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "Account id is required", nil)
		return
	}

	if err := h.Store.CreateAccount(r.Context(), ledger.AccountID(req.ID), req.OpeningBalance); err != nil {
		writeLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, AccountDTO{ID: req.ID, Balance: req.OpeningBalance})
}

// ListAccounts returns every account. Admin surface.
// GET /api/accounts
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.Store.ListAccounts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list accounts", err)
		return
	}

	dtos := make([]AccountDTO, len(accounts))
	for i, a := range accounts {
		dtos[i] = AccountDTO{ID: string(a.ID), Balance: a.Balance, CreatedAt: a.CreatedAt.Format(timeFormat)}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetBalance returns the account's current gold.
// GET /api/accounts/{id}/balance
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id := ledger.AccountID(chi.URLParam(r, "id"))

	balance, err := h.Service.GetBalance(r.Context(), id)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceDTO{AccountID: string(id), Balance: balance})
}

// GetHistory returns a reverse-chronological journal page.
// GET /api/accounts/{id}/history?limit=&offset=&source=
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	id := ledger.AccountID(chi.URLParam(r, "id"))
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)
	source := ledger.Source(r.URL.Query().Get("source"))

	var entries []ledger.Entry
	var err error
	if source != "" {
		entries, err = h.Service.GetHistoryBySource(r.Context(), id, source, limit, offset)
	} else {
		entries, err = h.Service.GetHistory(r.Context(), id, limit, offset)
	}
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTOs(entries))
}

// GetStatistics returns the account's earning/spending totals.
// GET /api/accounts/{id}/statistics
func (h *Handler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	id := ledger.AccountID(chi.URLParam(r, "id"))

	stats, err := h.Service.GetStatistics(r.Context(), id)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StatisticsDTO{
		TotalEarned:      stats.TotalEarned,
		TotalSpent:       stats.TotalSpent,
		NetGold:          stats.NetGold,
		TransactionCount: stats.TransactionCount,
		LargestEarning:   stats.LargestEarning,
		LargestExpense:   stats.LargestExpense,
	})
}

// =============================================================================
// MUTATION ENDPOINTS
// =============================================================================

// Credit adds gold to an account.
// POST /api/accounts/{id}/credit
func (h *Handler) Credit(w http.ResponseWriter, r *http.Request) {
	id := ledger.AccountID(chi.URLParam(r, "id"))

	var req MutationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	res, err := h.Service.Credit(r.Context(), id, req.Amount, ledger.Source(req.Source), req.Metadata)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MutationResponse{NewBalance: res.NewBalance, Entry: toEntryDTO(res.Entry)})
}

// Debit removes gold from an account.
// POST /api/accounts/{id}/debit
func (h *Handler) Debit(w http.ResponseWriter, r *http.Request) {
	id := ledger.AccountID(chi.URLParam(r, "id"))

	var req MutationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	res, err := h.Service.Debit(r.Context(), id, req.Amount, ledger.Source(req.Source), req.Metadata)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MutationResponse{NewBalance: res.NewBalance, Entry: toEntryDTO(res.Entry)})
}

// Transfer moves gold between two accounts.
// POST /api/transfers
func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	res, err := h.Service.Transfer(r.Context(),
		ledger.AccountID(req.From), ledger.AccountID(req.To),
		req.Amount, ledger.Source(req.Source), req.Metadata)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, TransferResponse{
		FromBalance: res.FromBalance,
		ToBalance:   res.ToBalance,
		Entries:     toEntryDTOs(res.Entries[:]),
	})
}

// BatchTransfer moves gold from one sender to many recipients atomically.
// POST /api/transfers/batch
func (h *Handler) BatchTransfer(w http.ResponseWriter, r *http.Request) {
	var req BatchTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	recipients := make([]ledger.BatchRecipient, len(req.Recipients))
	for i, rec := range req.Recipients {
		recipients[i] = ledger.BatchRecipient{To: ledger.AccountID(rec.To), Amount: rec.Amount}
	}

	res, err := h.Service.BatchTransfer(r.Context(),
		ledger.AccountID(req.From), recipients, ledger.Source(req.Source), req.Metadata)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	credits := make([]BatchCreditDTO, len(res.Credits))
	for i, c := range res.Credits {
		credits[i] = BatchCreditDTO{To: string(c.To), Amount: c.Amount, ToBalance: c.ToBalance}
	}
	writeJSON(w, http.StatusOK, BatchTransferResponse{
		FromBalance: res.FromBalance,
		DebitEntry:  toEntryDTO(res.DebitEntry),
		Credits:     credits,
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}

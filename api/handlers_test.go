package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stormhold/gold-engine/ledger"
	"github.com/stormhold/gold-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestServer(t *testing.T) (*httptest.Server, *memory.Store) {
	t.Helper()
	store := memory.New()
	server := httptest.NewServer(NewRouter(NewHandler(ledger.NewService(store))))
	t.Cleanup(server.Close)
	return server, store
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func getJSON(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func seedAccount(t *testing.T, store *memory.Store, id ledger.AccountID, balance int64) {
	t.Helper()
	require.NoError(t, store.CreateAccount(context.Background(), id, balance))
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func TestCreateAccountEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/api/accounts", CreateAccountRequest{ID: "hero", OpeningBalance: 100})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	account := decodeBody[AccountDTO](t, resp)
	assert.Equal(t, "hero", account.ID)
	assert.Equal(t, int64(100), account.Balance)

	// Duplicate -> 409
	resp = postJSON(t, server.URL+"/api/accounts", CreateAccountRequest{ID: "hero"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Missing id -> 400
	resp = postJSON(t, server.URL+"/api/accounts", CreateAccountRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Negative opening balance -> 400
	resp = postJSON(t, server.URL+"/api/accounts", CreateAccountRequest{ID: "debtor", OpeningBalance: -5})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetBalanceEndpoint(t *testing.T) {
	server, store := newTestServer(t)
	seedAccount(t, store, "hero", 250)

	resp := getJSON(t, server.URL+"/api/accounts/hero/balance")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	balance := decodeBody[BalanceDTO](t, resp)
	assert.Equal(t, "hero", balance.AccountID)
	assert.Equal(t, int64(250), balance.Balance)

	resp = getJSON(t, server.URL+"/api/accounts/ghost/balance")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// =============================================================================
// CREDIT / DEBIT
// =============================================================================

func TestCreditEndpoint(t *testing.T) {
	server, store := newTestServer(t)
	seedAccount(t, store, "hero", 100)

	resp := postJSON(t, server.URL+"/api/accounts/hero/credit", MutationRequest{
		Amount:   50,
		Source:   string(ledger.SourceQuestReward),
		Metadata: map[string]string{"quest": "goblin-cave"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	mutation := decodeBody[MutationResponse](t, resp)
	assert.Equal(t, int64(150), mutation.NewBalance)
	assert.Equal(t, int64(50), mutation.Entry.Amount)
	assert.Equal(t, "earned", mutation.Entry.Kind)
	assert.Equal(t, "goblin-cave", mutation.Entry.Metadata["quest"])

	// Zero amount -> 400
	resp = postJSON(t, server.URL+"/api/accounts/hero/credit", MutationRequest{Amount: 0, Source: "quest_reward"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Unknown account -> 404
	resp = postJSON(t, server.URL+"/api/accounts/ghost/credit", MutationRequest{Amount: 10, Source: "quest_reward"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDebitEndpoint_InsufficientFunds(t *testing.T) {
	server, store := newTestServer(t)
	seedAccount(t, store, "pauper", 10)

	resp := postJSON(t, server.URL+"/api/accounts/pauper/debit", MutationRequest{Amount: 1000, Source: "shop_purchase"})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	errResp := decodeBody[ErrorResponse](t, resp)
	assert.NotEmpty(t, errResp.Error)

	// Balance untouched.
	resp = getJSON(t, server.URL+"/api/accounts/pauper/balance")
	balance := decodeBody[BalanceDTO](t, resp)
	assert.Equal(t, int64(10), balance.Balance)
}

// =============================================================================
// TRANSFERS
// =============================================================================

func TestTransferEndpoint(t *testing.T) {
	server, store := newTestServer(t)
	seedAccount(t, store, "alice", 100)
	seedAccount(t, store, "bob", 0)

	resp := postJSON(t, server.URL+"/api/transfers", TransferRequest{
		From: "alice", To: "bob", Amount: 30, Source: "gift",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	transfer := decodeBody[TransferResponse](t, resp)
	assert.Equal(t, int64(70), transfer.FromBalance)
	assert.Equal(t, int64(30), transfer.ToBalance)
	require.Len(t, transfer.Entries, 2)
	assert.Equal(t, "sent", transfer.Entries[0].Metadata["transfer_type"])
	assert.Equal(t, "received", transfer.Entries[1].Metadata["transfer_type"])
}

func TestTransferEndpoint_SelfTransfer(t *testing.T) {
	server, store := newTestServer(t)
	seedAccount(t, store, "alice", 100)

	resp := postJSON(t, server.URL+"/api/transfers", TransferRequest{
		From: "alice", To: "alice", Amount: 10, Source: "gift",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBatchTransferEndpoint(t *testing.T) {
	server, store := newTestServer(t)
	seedAccount(t, store, "guild", 100)
	seedAccount(t, store, "m1", 0)
	seedAccount(t, store, "m2", 0)

	resp := postJSON(t, server.URL+"/api/transfers/batch", BatchTransferRequest{
		From: "guild",
		Recipients: []BatchRecipientIn{
			{To: "m1", Amount: 10},
			{To: "m2", Amount: 20},
		},
		Source: "admin_grant",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	batch := decodeBody[BatchTransferResponse](t, resp)
	assert.Equal(t, int64(70), batch.FromBalance)
	assert.Equal(t, int64(-30), batch.DebitEntry.Amount)
	require.Len(t, batch.Credits, 2)
	assert.Equal(t, int64(20), batch.Credits[1].Amount)
}

func TestBatchTransferEndpoint_UnknownRecipientAborts(t *testing.T) {
	server, store := newTestServer(t)
	seedAccount(t, store, "guild", 100)
	seedAccount(t, store, "m1", 0)

	resp := postJSON(t, server.URL+"/api/transfers/batch", BatchTransferRequest{
		From: "guild",
		Recipients: []BatchRecipientIn{
			{To: "m1", Amount: 10},
			{To: "ghost", Amount: 10},
		},
		Source: "admin_grant",
	})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Sender keeps its balance.
	balanceResp := getJSON(t, server.URL+"/api/accounts/guild/balance")
	balance := decodeBody[BalanceDTO](t, balanceResp)
	assert.Equal(t, int64(100), balance.Balance)
}

// =============================================================================
// HISTORY / STATISTICS
// =============================================================================

func TestHistoryEndpoint_PagingAndSourceFilter(t *testing.T) {
	server, store := newTestServer(t)
	seedAccount(t, store, "hero", 0)

	for i := 0; i < 5; i++ {
		source := "quest_reward"
		if i%2 == 1 {
			source = "loot_drop"
		}
		resp := postJSON(t, server.URL+"/api/accounts/hero/credit",
			MutationRequest{Amount: int64(i + 1), Source: source})
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp := getJSON(t, server.URL+"/api/accounts/hero/history?limit=2")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page := decodeBody[[]EntryDTO](t, resp)
	require.Len(t, page, 2)
	assert.Equal(t, int64(5), page[0].Amount, "newest first")

	resp = getJSON(t, server.URL+"/api/accounts/hero/history?source=loot_drop")
	filtered := decodeBody[[]EntryDTO](t, resp)
	require.Len(t, filtered, 2)
	for _, e := range filtered {
		assert.Equal(t, "loot_drop", e.Source)
	}

	resp = getJSON(t, server.URL+"/api/accounts/ghost/history")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStatisticsEndpoint(t *testing.T) {
	server, store := newTestServer(t)
	seedAccount(t, store, "hero", 100)
	seedAccount(t, store, "friend", 0)

	postJSON(t, server.URL+"/api/accounts/hero/credit", MutationRequest{Amount: 100, Source: "quest_reward"})
	postJSON(t, server.URL+"/api/accounts/hero/debit", MutationRequest{Amount: 50, Source: "shop_purchase"})
	postJSON(t, server.URL+"/api/transfers", TransferRequest{From: "hero", To: "friend", Amount: 30, Source: "gift"})

	resp := getJSON(t, server.URL+"/api/accounts/hero/statistics")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	stats := decodeBody[StatisticsDTO](t, resp)
	assert.Equal(t, int64(100), stats.TotalEarned)
	assert.Equal(t, int64(80), stats.TotalSpent)
	assert.Equal(t, int64(20), stats.NetGold)
	assert.Equal(t, 3, stats.TransactionCount)
}

// =============================================================================
// SEEDING
// =============================================================================

func TestSeedEndpoint_IdempotentAcrossCalls(t *testing.T) {
	server, store := newTestServer(t)

	resp := postJSON(t, server.URL+"/api/seed", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	accounts, err := store.ListAccounts(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, accounts)
	before := fmt.Sprintf("%v", accounts)

	// Re-seeding must not error or duplicate anything.
	resp = postJSON(t, server.URL+"/api/seed", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	accounts, err = store.ListAccounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, before, fmt.Sprintf("%v", accounts))
}

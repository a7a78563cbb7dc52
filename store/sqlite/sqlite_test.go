package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stormhold/gold-engine/ledger"
	"github.com/stormhold/gold-engine/modifier"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "gold_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testEntry(id ledger.EntryID, accountID ledger.AccountID, amount, before int64, source ledger.Source) ledger.Entry {
	return ledger.Entry{
		ID:            id,
		AccountID:     accountID,
		Amount:        amount,
		Kind:          ledger.KindForAmount(amount),
		Source:        source,
		BalanceBefore: before,
		BalanceAfter:  before + amount,
		CreatedAt:     time.Now().UTC(),
	}
}

// appendEntries commits balance and journal writes for one account in a
// single unit.
func appendEntries(t *testing.T, store *Store, id ledger.AccountID, entries ...ledger.Entry) {
	t.Helper()
	err := store.WithUnit(context.Background(), func(u ledger.UnitOfWork) error {
		for _, e := range entries {
			if err := u.SetBalance(context.Background(), id, e.BalanceAfter); err != nil {
				return err
			}
			if err := u.Append(context.Background(), e); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func TestCreateAndGetAccount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateAccount(ctx, "hero", 100))

	account, err := store.GetAccount(ctx, "hero")
	require.NoError(t, err)
	assert.Equal(t, ledger.AccountID("hero"), account.ID)
	assert.Equal(t, int64(100), account.Balance)
	assert.False(t, account.CreatedAt.IsZero())
}

func TestCreateAccount_Duplicate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateAccount(ctx, "hero", 100))
	assert.ErrorIs(t, store.CreateAccount(ctx, "hero", 0), ledger.ErrAccountExists)

	// Balance survives the rejected duplicate.
	account, err := store.GetAccount(ctx, "hero")
	require.NoError(t, err)
	assert.Equal(t, int64(100), account.Balance)
}

func TestCreateAccount_NegativeOpeningBalance(t *testing.T) {
	store := newTestStore(t)
	err := store.CreateAccount(context.Background(), "debtor", -50)
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
}

func TestGetAccount_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetAccount(context.Background(), "ghost")
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
}

func TestListAccounts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, id := range []ledger.AccountID{"banshee", "aldric", "corvin"} {
		require.NoError(t, store.CreateAccount(ctx, id, 10))
	}

	accounts, err := store.ListAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 3)
	assert.Equal(t, ledger.AccountID("aldric"), accounts[0].ID)
	assert.Equal(t, ledger.AccountID("corvin"), accounts[2].ID)
}

// =============================================================================
// UNIT OF WORK
// =============================================================================

func TestWithUnit_CommitPersists(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateAccount(ctx, "hero", 100))

	appendEntries(t, store, "hero", testEntry("e1", "hero", 50, 100, ledger.SourceQuestReward))

	account, err := store.GetAccount(ctx, "hero")
	require.NoError(t, err)
	assert.Equal(t, int64(150), account.Balance)

	entries, err := store.AllEntries(ctx, "hero")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ledger.EntryID("e1"), entries[0].ID)
}

func TestWithUnit_ErrorRollsBackEverything(t *testing.T) {
	// GIVEN: A unit that writes a balance and an entry, then fails
	// THEN: The transaction rolls back both writes

	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateAccount(ctx, "hero", 100))

	boom := errors.New("boom")
	err := store.WithUnit(ctx, func(u ledger.UnitOfWork) error {
		require.NoError(t, u.SetBalance(ctx, "hero", 150))
		require.NoError(t, u.Append(ctx, testEntry("e1", "hero", 50, 100, ledger.SourceQuestReward)))
		return boom
	})
	require.ErrorIs(t, err, boom)

	account, err := store.GetAccount(ctx, "hero")
	require.NoError(t, err)
	assert.Equal(t, int64(100), account.Balance)

	entries, err := store.AllEntries(ctx, "hero")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUnit_BalanceAndSetBalance_UnknownAccount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.WithUnit(ctx, func(u ledger.UnitOfWork) error {
		_, err := u.Balance(ctx, "ghost")
		return err
	})
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)

	err = store.WithUnit(ctx, func(u ledger.UnitOfWork) error {
		return u.SetBalance(ctx, "ghost", 10)
	})
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
}

func TestAppend_MetadataRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateAccount(ctx, "hero", 0))

	e := testEntry("e1", "hero", 30, 0, ledger.SourceQuestReward)
	e.Metadata = ledger.Metadata{"quest": "dragon-hunt", "npc": "elder-rowan"}
	appendEntries(t, store, "hero", e)

	entries, err := store.AllEntries(ctx, "hero")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "dragon-hunt", entries[0].Metadata["quest"])
	assert.Equal(t, "elder-rowan", entries[0].Metadata["npc"])
}

// =============================================================================
// JOURNAL QUERIES
// =============================================================================

func TestEntries_OrderPagingAndFilter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateAccount(ctx, "hero", 0))

	// Four entries appended in order; two share one timestamp to prove
	// ordering does not depend on created_at.
	now := time.Now().UTC()
	e1 := testEntry("e1", "hero", 10, 0, ledger.SourceQuestReward)
	e2 := testEntry("e2", "hero", 20, 10, ledger.SourceLootDrop)
	e3 := testEntry("e3", "hero", -5, 30, ledger.SourceShopPurchase)
	e4 := testEntry("e4", "hero", 15, 25, ledger.SourceQuestReward)
	e3.CreatedAt, e4.CreatedAt = now, now
	appendEntries(t, store, "hero", e1, e2, e3, e4)

	// Newest first.
	page, err := store.Entries(ctx, "hero", ledger.EntryQuery{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ledger.EntryID("e4"), page[0].ID)
	assert.Equal(t, ledger.EntryID("e3"), page[1].ID)

	// Offset pages deeper.
	page, err = store.Entries(ctx, "hero", ledger.EntryQuery{Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ledger.EntryID("e2"), page[0].ID)

	// Source filter applies before paging.
	quests, err := store.Entries(ctx, "hero", ledger.EntryQuery{Source: ledger.SourceQuestReward})
	require.NoError(t, err)
	require.Len(t, quests, 2)
	assert.Equal(t, ledger.EntryID("e4"), quests[0].ID)
	assert.Equal(t, ledger.EntryID("e1"), quests[1].ID)

	// AllEntries is oldest first for statistics folds.
	all, err := store.AllEntries(ctx, "hero")
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, ledger.EntryID("e1"), all[0].ID)
	assert.Equal(t, ledger.EntryID("e4"), all[3].ID)
}

func TestEntries_EmptyJournal(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateAccount(ctx, "hero", 50))

	entries, err := store.Entries(ctx, "hero", ledger.EntryQuery{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// =============================================================================
// BONUS RULES
// =============================================================================

func TestBonusRules_ActiveWindowOnly(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	active := modifier.Rule{
		ID:         "festival",
		Name:       "Harvest Festival",
		Sources:    []ledger.Source{ledger.SourceQuestReward},
		Multiplier: decimal.RequireFromString("1.5"),
		StartsAt:   now.Add(-time.Hour),
		EndsAt:     now.Add(time.Hour),
	}
	expired := modifier.Rule{
		ID:         "old-event",
		Name:       "Last Winter",
		Multiplier: decimal.RequireFromString("2"),
		StartsAt:   now.Add(-48 * time.Hour),
		EndsAt:     now.Add(-24 * time.Hour),
	}
	future := modifier.Rule{
		ID:         "next-event",
		Name:       "Next Moon",
		Multiplier: decimal.RequireFromString("3"),
		StartsAt:   now.Add(24 * time.Hour),
		EndsAt:     now.Add(48 * time.Hour),
	}

	for _, r := range []modifier.Rule{active, expired, future} {
		require.NoError(t, store.PutRule(ctx, r))
	}

	rules, err := store.ActiveRules(ctx, "hero", ledger.SourceQuestReward)
	require.NoError(t, err)
	require.Len(t, rules, 1)

	got := rules[0]
	assert.Equal(t, "festival", got.ID)
	assert.True(t, got.Multiplier.Equal(decimal.RequireFromString("1.5")))
	assert.Equal(t, []ledger.Source{ledger.SourceQuestReward}, got.Sources)
}

func TestPutRule_ReplacesExisting(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	rule := modifier.Rule{
		ID:         "festival",
		Name:       "Harvest Festival",
		Multiplier: decimal.RequireFromString("1.5"),
		StartsAt:   now.Add(-time.Hour),
		EndsAt:     now.Add(time.Hour),
	}
	require.NoError(t, store.PutRule(ctx, rule))

	rule.Multiplier = decimal.RequireFromString("2")
	require.NoError(t, store.PutRule(ctx, rule))

	rules, err := store.ActiveRules(ctx, "hero", ledger.SourceQuestReward)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.True(t, rules[0].Multiplier.Equal(decimal.RequireFromString("2")))
}

// =============================================================================
// END-TO-END WITH THE SERVICE
// =============================================================================

func TestServiceOverSQLite_TransferAndStatistics(t *testing.T) {
	store := newTestStore(t)
	svc := ledger.NewService(store)
	ctx := context.Background()

	require.NoError(t, store.CreateAccount(ctx, "hero", 100))
	require.NoError(t, store.CreateAccount(ctx, "friend", 0))

	_, err := svc.Credit(ctx, "hero", 100, ledger.SourceQuestReward, nil)
	require.NoError(t, err)
	_, err = svc.Debit(ctx, "hero", 50, ledger.SourceShopPurchase, nil)
	require.NoError(t, err)
	_, err = svc.Transfer(ctx, "hero", "friend", 30, "gift", nil)
	require.NoError(t, err)

	stats, err := svc.GetStatistics(ctx, "hero")
	require.NoError(t, err)
	assert.Equal(t, int64(100), stats.TotalEarned)
	assert.Equal(t, int64(80), stats.TotalSpent)
	assert.Equal(t, int64(20), stats.NetGold)
	assert.Equal(t, 3, stats.TransactionCount)

	balance, err := svc.GetBalance(ctx, "hero")
	require.NoError(t, err)
	assert.Equal(t, int64(120), balance)
}

/*
Package ledger provides the gold currency ledger for the game world.

PURPOSE:
  This package contains the domain types and the Service that mutate a
  character's spendable gold. Every balance change is paired with an
  immutable journal entry inside one atomic unit of work - there is no
  code path that touches a balance without producing an audit record.

KEY CONCEPTS IN THIS FILE (types.go):
  - AccountID: Type-safe identifier for a balance-holding character
  - Entry: An immutable journal record with before/after snapshots
  - Source: Curated category explaining WHY a transaction occurred
  - Metadata: Free-form context carried on each entry

DESIGN PRINCIPLES:
  1. Immutability: Entries are never modified or deleted
  2. Signed amounts: positive = credit, negative = debit; the sign is
     applied internally, callers always supply positive amounts
  3. Auditability: Every entry carries balanceBefore/balanceAfter so the
     journal replays to the current balance

SEE ALSO:
  - service.go: Credit/Debit/Transfer operations
  - store.go: Persistence and unit-of-work contracts
  - errors.go: Error taxonomy
*/
package ledger

import "time"

// =============================================================================
// IDENTIFIERS
// =============================================================================

type AccountID string
type EntryID string

// =============================================================================
// SOURCE - Why a transaction occurred
// =============================================================================

// Source is an open, curated category tag. Every caller must supply one so
// later analytics can answer "where does gold come from / go to".
type Source string

const (
	SourceQuestReward      Source = "quest_reward"
	SourceShopPurchase     Source = "shop_purchase"
	SourceVendorSale       Source = "vendor_sale"
	SourceLootDrop         Source = "loot_drop"
	SourcePvPBounty        Source = "pvp_bounty"
	SourceCrafting         Source = "crafting"
	SourceRepairCost       Source = "repair_cost"
	SourceAdminGrant       Source = "admin_grant"
	SourceTransferSent     Source = "transfer_sent"
	SourceTransferReceived Source = "transfer_received"
)

// =============================================================================
// ENTRY KIND AND TRANSFER DIRECTION
// =============================================================================

// Kind mirrors the sign of the entry amount for cheap filtering.
type Kind string

const (
	KindEarned Kind = "earned"
	KindSpent  Kind = "spent"
)

// KindForAmount derives the kind from a signed amount.
func KindForAmount(amount int64) Kind {
	if amount < 0 {
		return KindSpent
	}
	return KindEarned
}

// Metadata keys used by transfer entries to cross-reference the counterpart.
const (
	MetaTransferType        = "transfer_type"
	MetaCounterpartAccount  = "counterpart_account"
	MetaBatchRecipientCount = "batch_recipient_count"
)

// Transfer direction values stored under MetaTransferType.
const (
	TransferSent     = "sent"
	TransferReceived = "received"
)

// Metadata is free-form context attached to an entry at creation time.
type Metadata map[string]string

// clone copies metadata so a shared map supplied by the caller is never
// aliased across the entries of a transfer.
func (m Metadata) clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// with returns a copy of m extended with the given key/value.
func (m Metadata) with(key, value string) Metadata {
	out := m.clone()
	if out == nil {
		out = make(Metadata, 1)
	}
	out[key] = value
	return out
}

// =============================================================================
// ACCOUNT - One balance per character
// =============================================================================

// Account holds a character's current spendable gold. The balance is mutated
// only through the Service, always inside a unit of work, always paired with
// a journal entry.
type Account struct {
	ID        AccountID
	Balance   int64
	CreatedAt time.Time
}

// =============================================================================
// ENTRY - Immutable journal record
// =============================================================================

// Entry records one signed balance change.
//
// INVARIANTS:
//   - BalanceAfter == BalanceBefore + Amount, always
//   - An account's balance equals BalanceAfter of its latest entry
//   - Never updated, never deleted
type Entry struct {
	ID            EntryID
	AccountID     AccountID
	Amount        int64 // signed: positive = credit, negative = debit
	Kind          Kind
	Source        Source
	BalanceBefore int64
	BalanceAfter  int64
	Metadata      Metadata
	CreatedAt     time.Time
}

// =============================================================================
// OPERATION RESULTS
// =============================================================================

// MutationResult is returned by Credit and Debit.
type MutationResult struct {
	NewBalance int64
	Entry      Entry
}

// TransferResult is returned by Transfer. Entries holds exactly two records:
// the sender's debit first, the recipient's credit second.
type TransferResult struct {
	FromBalance int64
	ToBalance   int64
	Entries     [2]Entry
}

// BatchRecipient is one (recipient, amount) pair of a batch transfer.
type BatchRecipient struct {
	To     AccountID
	Amount int64
}

// BatchCredit reports the outcome for one recipient of a batch transfer.
type BatchCredit struct {
	To        AccountID
	Amount    int64
	ToBalance int64
	Entry     Entry
}

// BatchTransferResult is returned by BatchTransfer.
type BatchTransferResult struct {
	FromBalance int64
	DebitEntry  Entry
	Credits     []BatchCredit
}

// =============================================================================
// STATISTICS - Fold over an account's journal
// =============================================================================

// Statistics summarizes an account's journal since creation. The opening
// balance is seed state, not an entry, so it is not counted here.
type Statistics struct {
	TotalEarned      int64
	TotalSpent       int64
	NetGold          int64
	TransactionCount int
	LargestEarning   int64
	LargestExpense   int64
}

// FoldStatistics computes Statistics from a set of entries. Order does not
// matter; every entry contributes exactly once.
func FoldStatistics(entries []Entry) Statistics {
	var stats Statistics
	for _, e := range entries {
		stats.TransactionCount++
		if e.Amount >= 0 {
			stats.TotalEarned += e.Amount
			if e.Amount > stats.LargestEarning {
				stats.LargestEarning = e.Amount
			}
		} else {
			spent := -e.Amount
			stats.TotalSpent += spent
			if spent > stats.LargestExpense {
				stats.LargestExpense = spent
			}
		}
	}
	stats.NetGold = stats.TotalEarned - stats.TotalSpent
	return stats
}

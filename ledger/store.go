/*
store.go - Persistence and unit-of-work contracts

PURPOSE:
  Defines the interface between the ledger and the database. The Store
  handles reads and account provisioning; all mutation flows through a
  UnitOfWork so a balance write and its journal append commit together
  or not at all.

APPEND-ONLY CONTRACT:
  The journal has exactly one write operation: UnitOfWork.Append. No
  Update or Delete methods exist on any store interface. Corrections are
  made with compensating entries.

UNIT OF WORK:
  WithUnit(ctx, fn) runs fn against a scoped view of the store. If fn
  returns an error, every balance write and journal append made through
  the unit is rolled back. If fn returns nil, all of them commit. A unit
  may span several ledger operations - that is how "grant quest reward"
  combines a gold credit with an inventory grant atomically.

CONCURRENCY:
  Two units touching the same account must not interleave into an
  impossible balance. Implementations serialize units (memory, sqlite) or
  lock the account rows for the duration of the unit (postgres). The
  ledger never retries on conflict; an abort surfaces to the caller, who
  may safely retry because no partial effect survived.

IMPLEMENTATIONS:
  - store/memory:   In-memory, snapshot rollback (tests/dev)
  - store/sqlite:   SQLite with WAL (single node)
  - store/postgres: PostgreSQL with row locks (production)

SEE ALSO:
  - service.go: The only caller of UnitOfWork mutation methods
*/
package ledger

import "context"

// =============================================================================
// STORE - Reads, account provisioning, unit-of-work entry point
// =============================================================================

type Store interface {
	// CreateAccount provisions an account with an opening balance.
	// The opening balance is seed state and produces no journal entry.
	// Returns ErrAccountExists if the id is taken, ErrInvalidAmount if
	// openingBalance is negative.
	CreateAccount(ctx context.Context, id AccountID, openingBalance int64) error

	// GetAccount returns the account record.
	// Returns an AccountNotFoundError if the id does not resolve.
	GetAccount(ctx context.Context, id AccountID) (Account, error)

	// ListAccounts returns all accounts ordered by id. Admin surface.
	ListAccounts(ctx context.Context) ([]Account, error)

	// Entries returns a reverse-chronological page of the account's
	// journal. A zero limit means no limit. An empty source means all
	// sources.
	Entries(ctx context.Context, id AccountID, opts EntryQuery) ([]Entry, error)

	// AllEntries returns the account's full journal, oldest first.
	// Used for the statistics fold; per-account volume is bounded.
	AllEntries(ctx context.Context, id AccountID) ([]Entry, error)

	// WithUnit runs fn inside one atomic unit. fn returning an error
	// rolls back everything written through the unit.
	WithUnit(ctx context.Context, fn func(UnitOfWork) error) error
}

// EntryQuery narrows an Entries call.
type EntryQuery struct {
	Limit  int
	Offset int
	Source Source // empty = all sources
}

// =============================================================================
// UNIT OF WORK - The atomic mutation surface
// =============================================================================

// UnitOfWork is the scoped view handed to WithUnit callbacks. Reads observe
// writes made earlier in the same unit. None of these methods commit; the
// unit commits when the callback returns nil.
type UnitOfWork interface {
	// Balance reads the account's balance inside the unit.
	// Returns an AccountNotFoundError if the id does not resolve.
	Balance(ctx context.Context, id AccountID) (int64, error)

	// SetBalance writes the account's balance inside the unit.
	SetBalance(ctx context.Context, id AccountID, balance int64) error

	// Append writes a journal entry inside the unit.
	Append(ctx context.Context, e Entry) error
}

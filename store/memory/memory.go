/*
Package memory provides an in-memory ledger.Store for tests and development.

PURPOSE:
  Implements the full Store contract without a database. Units of work are
  simulated with a snapshot: the unit writes directly under the store lock,
  and on error the pre-unit state is restored wholesale.

CONCURRENCY:
  A single RWMutex serializes units. Two concurrent debits on the same
  account therefore observe each other's committed writes, which is exactly
  the isolation the ledger requires.

SEE ALSO:
  - ledger/store.go: Contract definitions
  - store/sqlite:    The persistent equivalent
*/
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/stormhold/gold-engine/ledger"
)

// =============================================================================
// STORE
// =============================================================================

type Store struct {
	mu       sync.RWMutex
	accounts map[ledger.AccountID]ledger.Account
	journal  map[ledger.AccountID][]ledger.Entry // append order = chronological
}

func New() *Store {
	return &Store{
		accounts: make(map[ledger.AccountID]ledger.Account),
		journal:  make(map[ledger.AccountID][]ledger.Entry),
	}
}

// CreateAccount provisions an account. The opening balance is seed state and
// writes no journal entry.
func (s *Store) CreateAccount(_ context.Context, id ledger.AccountID, openingBalance int64) error {
	if openingBalance < 0 {
		return &ledger.InvalidAmountError{Amount: openingBalance}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[id]; exists {
		return ledger.ErrAccountExists
	}
	s.accounts[id] = ledger.Account{ID: id, Balance: openingBalance, CreatedAt: time.Now().UTC()}
	return nil
}

func (s *Store) GetAccount(_ context.Context, id ledger.AccountID) (ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accounts[id]
	if !ok {
		return ledger.Account{}, &ledger.AccountNotFoundError{AccountID: id}
	}
	return account, nil
}

func (s *Store) ListAccounts(_ context.Context) ([]ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accounts := make([]ledger.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		accounts = append(accounts, a)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })
	return accounts, nil
}

// Entries returns a reverse-chronological page of the account's journal.
func (s *Store) Entries(_ context.Context, id ledger.AccountID, opts ledger.EntryQuery) ([]ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.journal[id]
	filtered := make([]ledger.Entry, 0, len(all))
	// Walk newest-first.
	for i := len(all) - 1; i >= 0; i-- {
		if opts.Source != "" && all[i].Source != opts.Source {
			continue
		}
		filtered = append(filtered, all[i])
	}

	if opts.Offset >= len(filtered) {
		return []ledger.Entry{}, nil
	}
	filtered = filtered[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(filtered) {
		filtered = filtered[:opts.Limit]
	}
	return filtered, nil
}

// AllEntries returns the full journal, oldest first.
func (s *Store) AllEntries(_ context.Context, id ledger.AccountID) ([]ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ledger.Entry, len(s.journal[id]))
	copy(out, s.journal[id])
	return out, nil
}

// =============================================================================
// UNIT OF WORK - Snapshot + restore
// =============================================================================

// WithUnit runs fn under the store lock. On error, the pre-unit snapshot is
// restored, so no write made through the unit survives.
func (s *Store) WithUnit(_ context.Context, fn func(ledger.UnitOfWork) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(&unit{store: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type snapshot struct {
	accounts map[ledger.AccountID]ledger.Account
	journal  map[ledger.AccountID][]ledger.Entry
}

func (s *Store) snapshot() snapshot {
	accounts := make(map[ledger.AccountID]ledger.Account, len(s.accounts))
	for id, a := range s.accounts {
		accounts[id] = a
	}
	journal := make(map[ledger.AccountID][]ledger.Entry, len(s.journal))
	for id, entries := range s.journal {
		journal[id] = append([]ledger.Entry{}, entries...)
	}
	return snapshot{accounts: accounts, journal: journal}
}

func (s *Store) restore(snap snapshot) {
	s.accounts = snap.accounts
	s.journal = snap.journal
}

// unit writes directly against the locked store. Reads inside the unit see
// earlier writes of the same unit.
type unit struct {
	store *Store
}

func (u *unit) Balance(_ context.Context, id ledger.AccountID) (int64, error) {
	account, ok := u.store.accounts[id]
	if !ok {
		return 0, &ledger.AccountNotFoundError{AccountID: id}
	}
	return account.Balance, nil
}

func (u *unit) SetBalance(_ context.Context, id ledger.AccountID, balance int64) error {
	account, ok := u.store.accounts[id]
	if !ok {
		return &ledger.AccountNotFoundError{AccountID: id}
	}
	account.Balance = balance
	u.store.accounts[id] = account
	return nil
}

func (u *unit) Append(_ context.Context, e ledger.Entry) error {
	u.store.journal[e.AccountID] = append(u.store.journal[e.AccountID], e)
	return nil
}

var _ ledger.Store = (*Store)(nil)

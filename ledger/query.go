/*
query.go - Read-only surface of the ledger

PURPOSE:
  Balance, affordability, history, and statistics queries. None of these
  open a unit of work - they read committed state only, so they are safe
  to call at any volume from shops, UI, and admin tooling.

SEE ALSO:
  - service.go: Mutating operations
  - types.go: Statistics and the FoldStatistics helper
*/
package ledger

import "context"

// GetBalance returns the account's current spendable gold.
func (s *Service) GetBalance(ctx context.Context, id AccountID) (int64, error) {
	account, err := s.Store.GetAccount(ctx, id)
	if err != nil {
		return 0, err
	}
	return account.Balance, nil
}

// CanAfford reports whether the account could cover a debit of amount.
// A convenience wrapper over GetBalance; the answer is advisory only -
// the authoritative check happens inside the debit's unit of work.
func (s *Service) CanAfford(ctx context.Context, id AccountID, amount int64) (bool, error) {
	if amount <= 0 {
		return false, &InvalidAmountError{Amount: amount}
	}
	balance, err := s.GetBalance(ctx, id)
	if err != nil {
		return false, err
	}
	return balance >= amount, nil
}

// GetHistory returns a reverse-chronological page of the account's journal.
func (s *Service) GetHistory(ctx context.Context, id AccountID, limit, offset int) ([]Entry, error) {
	if _, err := s.Store.GetAccount(ctx, id); err != nil {
		return nil, err
	}
	return s.Store.Entries(ctx, id, EntryQuery{Limit: limit, Offset: offset})
}

// GetHistoryBySource narrows GetHistory to one source category.
func (s *Service) GetHistoryBySource(ctx context.Context, id AccountID, source Source, limit, offset int) ([]Entry, error) {
	if _, err := s.Store.GetAccount(ctx, id); err != nil {
		return nil, err
	}
	return s.Store.Entries(ctx, id, EntryQuery{Limit: limit, Offset: offset, Source: source})
}

// GetStatistics folds the account's full journal into earning/spending
// totals. Per-account volume is bounded, so the full scan is acceptable.
func (s *Service) GetStatistics(ctx context.Context, id AccountID) (Statistics, error) {
	if _, err := s.Store.GetAccount(ctx, id); err != nil {
		return Statistics{}, err
	}
	entries, err := s.Store.AllEntries(ctx, id)
	if err != nil {
		return Statistics{}, err
	}
	return FoldStatistics(entries), nil
}

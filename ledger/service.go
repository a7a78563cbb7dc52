/*
service.go - The ledger's public mutation API

PURPOSE:
  The Service is the ONLY place that mutates account balances. Credit,
  Debit, Transfer, and BatchTransfer each compose a balance read, a
  balance write, and a journal append into one atomic unit of work so
  invariants are enforced in exactly one place.

ATOMICITY:
  Every operation comes in two forms:
  - Credit(...)           opens and owns its own unit of work
  - CreditInUnit(u, ...)  participates in a caller-supplied unit

  A participant never commits or aborts - control belongs to the outer
  caller. This lets a higher-level workflow ("deliver quest reward")
  combine a gold credit and an inventory grant into one all-or-nothing
  operation:

    store.WithUnit(ctx, func(u ledger.UnitOfWork) error {
        if _, err := svc.CreditInUnit(ctx, u, hero, 500, ledger.SourceQuestReward, nil); err != nil {
            return err
        }
        return inventory.GrantInUnit(ctx, u, hero, swordOfDawn)
    })

OVERDRAFT:
  A debit is only committed when balanceBefore - amount >= 0. The check
  happens inside the unit, so two concurrent debits on the same account
  cannot both pass it against a stale balance.

MODIFIERS:
  Credits run through the AmountModifier before journaling. The lookup
  is best-effort: any failure degrades to "no modifier applied" - gold
  awards are never coupled to the availability of the bonus-event system.

NOTIFICATIONS:
  A successful Credit fires a CurrencyEarned notification AFTER commit.
  Notifier failure is logged and never rolls back the credit. Participant
  calls do not notify; the unit owner does, once it knows the commit
  happened.

SEE ALSO:
  - query.go: Read-only surface (balance, history, statistics)
  - store.go: UnitOfWork contract
*/
package ledger

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// COLLABORATOR CONTRACTS
// =============================================================================

// AmountModifier scales a credit amount before it is journaled, e.g. for a
// double-gold weekend. Implementations live in the modifier package.
//
// CONTRACT: read-only and best-effort. The Service swallows any error and
// falls back to the unmodified amount.
type AmountModifier interface {
	ModifyCredit(ctx context.Context, id AccountID, source Source, amount int64) (int64, error)
}

// =============================================================================
// SERVICE
// =============================================================================

// Service is the ledger's public API. Store is required; Modifier, Notifier,
// and Logger are optional collaborators.
type Service struct {
	Store    Store
	Modifier AmountModifier
	Notifier Notifier
	Logger   *log.Logger
}

// NewService creates a Service over the given store. Set Modifier and
// Notifier directly to enable bonus events and post-commit notifications.
func NewService(store Store) *Service {
	return &Service{Store: store}
}

// =============================================================================
// CREDIT
// =============================================================================

// Credit adds gold to an account inside its own unit of work and fires a
// best-effort CurrencyEarned notification after commit.
func (s *Service) Credit(ctx context.Context, id AccountID, amount int64, source Source, meta Metadata) (MutationResult, error) {
	if amount <= 0 {
		return MutationResult{}, &InvalidAmountError{Amount: amount}
	}

	var res MutationResult
	err := s.Store.WithUnit(ctx, func(u UnitOfWork) error {
		var err error
		res, err = s.CreditInUnit(ctx, u, id, amount, source, meta)
		return err
	})
	if err != nil {
		return MutationResult{}, err
	}

	s.notifyEarned(ctx, res.Entry)
	return res, nil
}

// CreditInUnit adds gold inside a caller-supplied unit. It never commits and
// never notifies; both belong to the unit owner.
func (s *Service) CreditInUnit(ctx context.Context, u UnitOfWork, id AccountID, amount int64, source Source, meta Metadata) (MutationResult, error) {
	if amount <= 0 {
		return MutationResult{}, &InvalidAmountError{Amount: amount}
	}

	before, err := u.Balance(ctx, id)
	if err != nil {
		return MutationResult{}, err
	}

	credited := s.modifiedAmount(ctx, id, source, amount)
	after := before + credited

	if err := u.SetBalance(ctx, id, after); err != nil {
		return MutationResult{}, fmt.Errorf("credit %s: %w", id, err)
	}

	entry := s.newEntry(id, credited, source, before, after, meta)
	if err := u.Append(ctx, entry); err != nil {
		return MutationResult{}, fmt.Errorf("credit %s: %w", id, err)
	}

	return MutationResult{NewBalance: after, Entry: entry}, nil
}

// =============================================================================
// DEBIT
// =============================================================================

// Debit removes gold from an account inside its own unit of work. Returns an
// InsufficientFundsError and changes nothing if the balance cannot cover the
// amount.
func (s *Service) Debit(ctx context.Context, id AccountID, amount int64, source Source, meta Metadata) (MutationResult, error) {
	if amount <= 0 {
		return MutationResult{}, &InvalidAmountError{Amount: amount}
	}

	var res MutationResult
	err := s.Store.WithUnit(ctx, func(u UnitOfWork) error {
		var err error
		res, err = s.DebitInUnit(ctx, u, id, amount, source, meta)
		return err
	})
	if err != nil {
		return MutationResult{}, err
	}
	return res, nil
}

// DebitInUnit removes gold inside a caller-supplied unit.
func (s *Service) DebitInUnit(ctx context.Context, u UnitOfWork, id AccountID, amount int64, source Source, meta Metadata) (MutationResult, error) {
	if amount <= 0 {
		return MutationResult{}, &InvalidAmountError{Amount: amount}
	}

	before, err := u.Balance(ctx, id)
	if err != nil {
		return MutationResult{}, err
	}
	if before < amount {
		return MutationResult{}, &InsufficientFundsError{AccountID: id, Have: before, Need: amount}
	}

	after := before - amount
	if err := u.SetBalance(ctx, id, after); err != nil {
		return MutationResult{}, fmt.Errorf("debit %s: %w", id, err)
	}

	entry := s.newEntry(id, -amount, source, before, after, meta)
	if err := u.Append(ctx, entry); err != nil {
		return MutationResult{}, fmt.Errorf("debit %s: %w", id, err)
	}

	return MutationResult{NewBalance: after, Entry: entry}, nil
}

// =============================================================================
// TRANSFER
// =============================================================================

// Transfer moves gold between two accounts. Both balance writes and both
// journal entries commit together or not at all.
func (s *Service) Transfer(ctx context.Context, from, to AccountID, amount int64, source Source, meta Metadata) (TransferResult, error) {
	if amount <= 0 {
		return TransferResult{}, &InvalidAmountError{Amount: amount}
	}
	if from == to {
		return TransferResult{}, ErrSelfTransfer
	}

	var res TransferResult
	err := s.Store.WithUnit(ctx, func(u UnitOfWork) error {
		var err error
		res, err = s.TransferInUnit(ctx, u, from, to, amount, source, meta)
		return err
	})
	if err != nil {
		return TransferResult{}, err
	}
	return res, nil
}

// TransferInUnit moves gold inside a caller-supplied unit. The two entries
// cross-reference each other through their metadata.
func (s *Service) TransferInUnit(ctx context.Context, u UnitOfWork, from, to AccountID, amount int64, source Source, meta Metadata) (TransferResult, error) {
	if amount <= 0 {
		return TransferResult{}, &InvalidAmountError{Amount: amount}
	}
	if from == to {
		return TransferResult{}, ErrSelfTransfer
	}

	// Resolve both sides before writing anything.
	fromBefore, err := u.Balance(ctx, from)
	if err != nil {
		return TransferResult{}, err
	}
	toBefore, err := u.Balance(ctx, to)
	if err != nil {
		return TransferResult{}, err
	}
	if fromBefore < amount {
		return TransferResult{}, &InsufficientFundsError{AccountID: from, Have: fromBefore, Need: amount}
	}

	fromAfter := fromBefore - amount
	toAfter := toBefore + amount

	if err := u.SetBalance(ctx, from, fromAfter); err != nil {
		return TransferResult{}, fmt.Errorf("transfer %s -> %s: %w", from, to, err)
	}
	if err := u.SetBalance(ctx, to, toAfter); err != nil {
		return TransferResult{}, fmt.Errorf("transfer %s -> %s: %w", from, to, err)
	}

	debit := s.newEntry(from, -amount, source, fromBefore, fromAfter,
		meta.with(MetaTransferType, TransferSent).with(MetaCounterpartAccount, string(to)))
	credit := s.newEntry(to, amount, source, toBefore, toAfter,
		meta.with(MetaTransferType, TransferReceived).with(MetaCounterpartAccount, string(from)))

	if err := u.Append(ctx, debit); err != nil {
		return TransferResult{}, fmt.Errorf("transfer %s -> %s: %w", from, to, err)
	}
	if err := u.Append(ctx, credit); err != nil {
		return TransferResult{}, fmt.Errorf("transfer %s -> %s: %w", from, to, err)
	}

	return TransferResult{
		FromBalance: fromAfter,
		ToBalance:   toAfter,
		Entries:     [2]Entry{debit, credit},
	}, nil
}

// =============================================================================
// BATCH TRANSFER
// =============================================================================

// BatchTransfer moves gold from one sender to many recipients in a single
// unit of work. The sender is debited once for the total; each recipient is
// credited in order with its own entry. If any recipient fails to resolve,
// the whole batch aborts - no recipient receives funds and the sender keeps
// its balance.
//
// RATIONALE: a sequence of independent transfers could each succeed or fail
// separately, leaving partial state. The shared unit makes the batch
// indivisible from the sender's perspective.
func (s *Service) BatchTransfer(ctx context.Context, from AccountID, recipients []BatchRecipient, source Source, meta Metadata) (BatchTransferResult, error) {
	if len(recipients) == 0 {
		return BatchTransferResult{}, &InvalidAmountError{Amount: 0}
	}
	var total int64
	for _, r := range recipients {
		if r.Amount <= 0 {
			return BatchTransferResult{}, &InvalidAmountError{Amount: r.Amount}
		}
		if r.To == from {
			return BatchTransferResult{}, ErrSelfTransfer
		}
		total += r.Amount
	}

	var res BatchTransferResult
	err := s.Store.WithUnit(ctx, func(u UnitOfWork) error {
		fromBefore, err := u.Balance(ctx, from)
		if err != nil {
			return err
		}
		if fromBefore < total {
			return &InsufficientFundsError{AccountID: from, Have: fromBefore, Need: total}
		}

		fromAfter := fromBefore - total
		if err := u.SetBalance(ctx, from, fromAfter); err != nil {
			return fmt.Errorf("batch transfer from %s: %w", from, err)
		}

		debit := s.newEntry(from, -total, source, fromBefore, fromAfter,
			meta.with(MetaTransferType, TransferSent).
				with(MetaBatchRecipientCount, fmt.Sprintf("%d", len(recipients))))
		if err := u.Append(ctx, debit); err != nil {
			return fmt.Errorf("batch transfer from %s: %w", from, err)
		}

		credits := make([]BatchCredit, 0, len(recipients))
		for _, r := range recipients {
			toBefore, err := u.Balance(ctx, r.To)
			if err != nil {
				// Unresolved recipient aborts the whole unit.
				return err
			}
			toAfter := toBefore + r.Amount
			if err := u.SetBalance(ctx, r.To, toAfter); err != nil {
				return fmt.Errorf("batch transfer to %s: %w", r.To, err)
			}
			entry := s.newEntry(r.To, r.Amount, source, toBefore, toAfter,
				meta.with(MetaTransferType, TransferReceived).with(MetaCounterpartAccount, string(from)))
			if err := u.Append(ctx, entry); err != nil {
				return fmt.Errorf("batch transfer to %s: %w", r.To, err)
			}
			credits = append(credits, BatchCredit{To: r.To, Amount: r.Amount, ToBalance: toAfter, Entry: entry})
		}

		res = BatchTransferResult{FromBalance: fromAfter, DebitEntry: debit, Credits: credits}
		return nil
	})
	if err != nil {
		return BatchTransferResult{}, err
	}
	return res, nil
}

// =============================================================================
// INTERNAL HELPERS
// =============================================================================

func (s *Service) newEntry(id AccountID, amount int64, source Source, before, after int64, meta Metadata) Entry {
	return Entry{
		ID:            EntryID(uuid.NewString()),
		AccountID:     id,
		Amount:        amount,
		Kind:          KindForAmount(amount),
		Source:        source,
		BalanceBefore: before,
		BalanceAfter:  after,
		Metadata:      meta.clone(),
		CreatedAt:     time.Now().UTC(),
	}
}

// modifiedAmount runs the modifier pipeline. Any failure degrades to the
// unmodified amount; a credit is never blocked by the bonus-event system.
func (s *Service) modifiedAmount(ctx context.Context, id AccountID, source Source, amount int64) int64 {
	if s.Modifier == nil {
		return amount
	}
	modified, err := s.Modifier.ModifyCredit(ctx, id, source, amount)
	if err != nil {
		s.logf("modifier lookup failed for account %s, crediting unmodified amount: %v", id, err)
		return amount
	}
	if modified < 0 {
		s.logf("modifier produced negative amount %d for account %s, crediting unmodified amount", modified, id)
		return amount
	}
	return modified
}

func (s *Service) notifyEarned(ctx context.Context, e Entry) {
	if s.Notifier == nil {
		return
	}
	n := EarnedNotification{
		AccountID:  e.AccountID,
		Amount:     e.Amount,
		NewBalance: e.BalanceAfter,
		Source:     e.Source,
		EntryID:    e.ID,
		OccurredAt: e.CreatedAt,
	}
	if err := s.Notifier.CurrencyEarned(ctx, n); err != nil {
		// Secondary bookkeeping never rolls back a committed credit.
		s.logf("currency earned notification failed for account %s: %v", e.AccountID, err)
	}
}

func (s *Service) logf(format string, args ...any) {
	if s.Logger != nil {
		s.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

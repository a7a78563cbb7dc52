/*
errors.go - Centralized error types for the ledger

PURPOSE:
  All ledger error types in one place for consistency and discoverability.
  Stores and the HTTP layer wrap or classify these rather than inventing
  their own.

ERROR CATEGORIES:
  1. Caller defects      - InvalidAmount, SelfTransfer
  2. Missing references  - AccountNotFound
  3. Business rejections - InsufficientFunds
  4. Store failures      - wrapped with %w at the store boundary

USAGE:
  if errors.Is(err, ledger.ErrInsufficientFunds) {
      var fundsErr *ledger.InsufficientFundsError
      errors.As(err, &fundsErr)
      // fundsErr.Have, fundsErr.Need
  }

SEE ALSO:
  - service.go: Where these are raised
  - api/dto.go: HTTP status mapping
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidAmount is returned when a caller supplies a non-positive
	// amount. Rejected before any unit of work opens.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrAccountNotFound is returned when a referenced account id does not
	// resolve. No state change occurs.
	ErrAccountNotFound = errors.New("account not found")

	// ErrAccountExists is returned when creating an account whose id is
	// already taken.
	ErrAccountExists = errors.New("account already exists")

	// ErrInsufficientFunds is returned when a debit or transfer would drive
	// a balance negative. The operation is rejected whole; no partial debit
	// is ever observable.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrSelfTransfer is returned when sender and recipient are the same
	// account. Structurally forbidden; never produces entries.
	ErrSelfTransfer = errors.New("cannot transfer to the same account")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientFundsError reports how short the account is.
type InsufficientFundsError struct {
	AccountID AccountID
	Have      int64
	Need      int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: account %s has %d, needs %d", e.AccountID, e.Have, e.Need)
}

func (e *InsufficientFundsError) Unwrap() error {
	return ErrInsufficientFunds
}

// AccountNotFoundError names the account that failed to resolve.
type AccountNotFoundError struct {
	AccountID AccountID
}

func (e *AccountNotFoundError) Error() string {
	return fmt.Sprintf("account %s not found", e.AccountID)
}

func (e *AccountNotFoundError) Unwrap() error {
	return ErrAccountNotFound
}

// InvalidAmountError reports the offending amount.
type InvalidAmountError struct {
	Amount int64
}

func (e *InvalidAmountError) Error() string {
	return fmt.Sprintf("invalid amount %d: amount must be positive", e.Amount)
}

func (e *InvalidAmountError) Unwrap() error {
	return ErrInvalidAmount
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input or
// a business rejection, as opposed to a store failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrSelfTransfer) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrAccountExists)
}

// IsNotFound returns true if the error indicates a missing account.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound)
}

// notify.go - Post-commit notification contract.
//
// A successful credit may interest other systems (quest progress on gold
// earned, achievements, analytics). Those systems must never be able to
// affect the ledger's committed state, so the notification is published
// after commit and its failure is only logged.
package ledger

import (
	"context"
	"time"
)

// EarnedNotification describes a committed credit.
type EarnedNotification struct {
	AccountID  AccountID `json:"account_id"`
	Amount     int64     `json:"amount"`
	NewBalance int64     `json:"new_balance"`
	Source     Source    `json:"source"`
	EntryID    EntryID   `json:"entry_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Notifier receives best-effort post-commit notifications.
// Implementations live in the events package.
type Notifier interface {
	CurrencyEarned(ctx context.Context, n EarnedNotification) error
}

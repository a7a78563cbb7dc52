/*
Package events delivers post-commit ledger notifications.

PURPOSE:
  Other game systems (quest progress, achievements, analytics) want to
  know when a character earns gold. The ledger publishes a notification
  AFTER the credit commits; consumer failure is logged by the Service
  and never converted into a ledger error.

IMPLEMENTATIONS:
  - LogNotifier:       Writes the notification to a log (default/dev)
  - FanoutNotifier:    Delivers to several notifiers, keeps going on error
  - events/kafka:      Publishes JSON to a Kafka topic (production)

SEE ALSO:
  - ledger/notify.go: The Notifier contract and payload
*/
package events

import (
	"context"
	"errors"
	"log"

	"github.com/stormhold/gold-engine/ledger"
)

// =============================================================================
// LOG NOTIFIER
// =============================================================================

// LogNotifier prints each notification. A nil Logger uses the standard one.
type LogNotifier struct {
	Logger *log.Logger
}

func (n *LogNotifier) CurrencyEarned(_ context.Context, e ledger.EarnedNotification) error {
	logger := n.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger.Printf("currency earned: account=%s amount=%d balance=%d source=%s entry=%s",
		e.AccountID, e.Amount, e.NewBalance, e.Source, e.EntryID)
	return nil
}

// =============================================================================
// FANOUT NOTIFIER
// =============================================================================

// FanoutNotifier delivers to every notifier in order. One failing consumer
// does not starve the others; errors are joined.
type FanoutNotifier struct {
	Notifiers []ledger.Notifier
}

func (n *FanoutNotifier) CurrencyEarned(ctx context.Context, e ledger.EarnedNotification) error {
	var errs []error
	for _, notifier := range n.Notifiers {
		if err := notifier.CurrencyEarned(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ ledger.Notifier = (*LogNotifier)(nil)
	_ ledger.Notifier = (*FanoutNotifier)(nil)
)

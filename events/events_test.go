package events

import (
	"bytes"
	"context"
	"errors"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stormhold/gold-engine/ledger"
)

type stubNotifier struct {
	calls int
	err   error
}

func (n *stubNotifier) CurrencyEarned(context.Context, ledger.EarnedNotification) error {
	n.calls++
	return n.err
}

func TestLogNotifier_WritesOneLine(t *testing.T) {
	var buf bytes.Buffer
	n := &LogNotifier{Logger: log.New(&buf, "", 0)}

	err := n.CurrencyEarned(context.Background(), ledger.EarnedNotification{
		AccountID:  "hero",
		Amount:     50,
		NewBalance: 150,
		Source:     ledger.SourceQuestReward,
		EntryID:    "e1",
	})
	require.NoError(t, err)

	line := buf.String()
	assert.Contains(t, line, "account=hero")
	assert.Contains(t, line, "amount=50")
	assert.Contains(t, line, "source=quest_reward")
}

func TestFanoutNotifier_DeliversToAllDespiteFailures(t *testing.T) {
	failing := &stubNotifier{err: errors.New("consumer down")}
	healthy := &stubNotifier{}
	fanout := &FanoutNotifier{Notifiers: []ledger.Notifier{failing, healthy}}

	err := fanout.CurrencyEarned(context.Background(), ledger.EarnedNotification{AccountID: "hero"})
	require.Error(t, err)

	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, healthy.calls, "failure of one consumer must not starve the rest")
}

func TestFanoutNotifier_NoNotifiers(t *testing.T) {
	fanout := &FanoutNotifier{}
	assert.NoError(t, fanout.CurrencyEarned(context.Background(), ledger.EarnedNotification{}))
}

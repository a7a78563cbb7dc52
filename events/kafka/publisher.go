// Package kafka publishes ledger notifications to a Kafka topic.
//
// The ledger treats notification delivery as best-effort, so the writer is
// configured for availability over strict delivery guarantees. Consumers
// that need stronger semantics should read the journal instead - it is the
// source of truth.
package kafka

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"github.com/stormhold/gold-engine/ledger"
)

// DefaultTopic is used when no topic is configured.
const DefaultTopic = "gold.currency_earned"

// Notifier publishes CurrencyEarned notifications as JSON messages keyed by
// account id, so one account's events stay ordered within a partition.
type Notifier struct {
	writer *kafka.Writer
}

// NewNotifier creates a Notifier writing to the given brokers and topic.
// An empty topic falls back to DefaultTopic.
func NewNotifier(brokers []string, topic string) *Notifier {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Notifier{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.Hash{},
		},
	}
}

func (n *Notifier) CurrencyEarned(ctx context.Context, e ledger.EarnedNotification) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return n.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.AccountID),
		Value: payload,
	})
}

// Close flushes and closes the underlying writer.
func (n *Notifier) Close() error {
	return n.writer.Close()
}

var _ ledger.Notifier = (*Notifier)(nil)

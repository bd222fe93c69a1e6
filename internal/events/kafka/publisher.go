package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/economy-ledger/internal/economy"
)

// TransactionCommitted is the message published for every committed
// ledger transaction.
type TransactionCommitted struct {
	TransactionID  int64     `json:"transaction_id"`
	Reference      string    `json:"reference"`
	Kind           string    `json:"kind"`
	Amount         int64     `json:"amount"`
	Currency       string    `json:"currency"`
	OwnerID        int64     `json:"owner_id"`
	CounterpartyID int64     `json:"counterparty_id,omitempty"`
	Entries        []Entry   `json:"entries"`
	CommittedAt    time.Time `json:"committed_at"`
}

type Entry struct {
	AccountID    int64 `json:"account_id"`
	Delta        int64 `json:"delta"`
	BalanceAfter int64 `json:"balance_after"`
}

// NewTransactionCommitted builds the message for ev.
func NewTransactionCommitted(ev economy.Event) TransactionCommitted {
	msg := TransactionCommitted{
		TransactionID:  ev.Transaction.ID,
		Reference:      ev.Transaction.Reference,
		Kind:           string(ev.Transaction.Kind),
		Amount:         ev.Transaction.Amount,
		Currency:       ev.Transaction.Currency,
		OwnerID:        ev.OwnerID,
		CounterpartyID: ev.CounterpartyID,
		CommittedAt:    ev.Transaction.CreatedAt,
	}
	for _, e := range ev.Entries {
		msg.Entries = append(msg.Entries, Entry{
			AccountID:    e.AccountID,
			Delta:        e.Delta,
			BalanceAfter: e.BalanceAfter,
		})
	}
	return msg
}

// MessageWriter is the subset of *kafka.Writer used by Publisher.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes TransactionCommitted messages keyed by owner, so one
// owner's events stay ordered within a partition.
type Publisher struct {
	writer MessageWriter
}

func NewPublisher(brokers []string, topic string) *Publisher {
	return NewPublisherWithWriter(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	})
}

func NewPublisherWithWriter(w MessageWriter) *Publisher {
	return &Publisher{writer: w}
}

// Publish sends ev. It blocks until the brokers acknowledge or ctx ends.
func (p *Publisher) Publish(ctx context.Context, ev economy.Event) error {
	data, err := json.Marshal(NewTransactionCommitted(ev))
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(ev.OwnerID, 10)),
		Value: data,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(ev.Transaction.Kind)},
		},
	})
	if err != nil {
		return fmt.Errorf("publish transaction %d: %w", ev.Transaction.ID, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

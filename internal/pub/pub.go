package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/King-Austin/securecipher-bankingapi/internal/domain"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	TransactionEventsChannel = "transaction_events"

	EventTransferCompleted = "transfer.completed"
	EventTransferFailed    = "transfer.failed"
)

// MessageWriter is the part of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// TransferEventPublisher fans transfer outcomes out to a Redis channel and a
// Kafka topic. Either sink may be nil.
type TransferEventPublisher struct {
	rdb    redis.UniversalClient
	writer MessageWriter
	logger *zap.Logger
}

func NewTransferEventPublisher(rdb redis.UniversalClient, writer MessageWriter, logger *zap.Logger) *TransferEventPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TransferEventPublisher{rdb: rdb, writer: writer, logger: logger}
}

type TransferEvent struct {
	EventType       string           `json:"event_type"`
	UserID          string           `json:"user_id"`
	Reference       string           `json:"reference"`
	CreditReference string           `json:"credit_reference,omitempty"`
	TransactionID   string           `json:"transaction_id,omitempty"`
	Status          string           `json:"status"`
	Amount          decimal.Decimal  `json:"amount"`
	Currency        string           `json:"currency,omitempty"`
	FromAccount     string           `json:"from_account,omitempty"`
	ToAccount       string           `json:"to_account,omitempty"`
	ToBank          string           `json:"to_bank,omitempty"`
	Internal        bool             `json:"internal"`
	BalanceAfter    *decimal.Decimal `json:"balance_after,omitempty"`
	ErrorMessage    string           `json:"error_message,omitempty"`
	Timestamp       time.Time        `json:"timestamp"`
}

// Publish sends event to every configured sink and reports the first failure.
func (p *TransferEventPublisher) Publish(ctx context.Context, event *TransferEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	var firstErr error
	if p.rdb != nil {
		if err := p.rdb.Publish(ctx, TransactionEventsChannel, payload).Err(); err != nil {
			firstErr = fmt.Errorf("failed to publish event: %w", err)
		}
	}
	if p.writer != nil {
		msg := kafka.Message{
			Key:   []byte(event.Reference),
			Value: payload,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(event.EventType)},
			},
		}
		if err := p.writer.WriteMessages(ctx, msg); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to write kafka message: %w", err)
		}
	}

	if firstErr == nil {
		p.logger.Debug("transfer event published",
			zap.String("event_type", event.EventType),
			zap.String("user_id", event.UserID),
			zap.String("reference", event.Reference))
	}
	return firstErr
}

// TransferCompleted publishes a committed transfer.
func (p *TransferEventPublisher) TransferCompleted(ctx context.Context, res *domain.TransferResult) error {
	debit := res.Debit
	balance := debit.BalanceAfter
	event := &TransferEvent{
		EventType:     EventTransferCompleted,
		UserID:        debit.UserID,
		Reference:     debit.Reference,
		TransactionID: debit.ID.String(),
		Status:        string(debit.Status),
		Amount:        debit.Amount,
		Currency:      debit.Currency,
		FromAccount:   debit.AccountNumber,
		ToAccount:     debit.RecipientAccount,
		ToBank:        debit.RecipientBank,
		BalanceAfter:  &balance,
		Timestamp:     debit.CreatedAt,
	}
	if res.Credit != nil {
		event.Internal = true
		event.CreditReference = res.Credit.Reference
	}
	return p.Publish(ctx, event)
}

// TransferFailed publishes a transfer that was rolled back after it reached
// the store.
func (p *TransferEventPublisher) TransferFailed(ctx context.Context, req domain.TransferRequest, fromAccount, reference string, cause error) error {
	return p.Publish(ctx, &TransferEvent{
		EventType:    EventTransferFailed,
		UserID:       req.SenderUserID,
		Reference:    reference,
		Status:       string(domain.TransactionStatusFailed),
		Amount:       req.Amount,
		FromAccount:  fromAccount,
		ToAccount:    req.RecipientAccount,
		ToBank:       req.RecipientBank,
		ErrorMessage: cause.Error(),
	})
}

// NewKafkaWriter builds the async writer used for transfer events. It returns
// nil when no brokers are configured.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	if len(brokers) == 0 || topic == "" {
		return nil
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		MaxAttempts:  3,
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
	}
}

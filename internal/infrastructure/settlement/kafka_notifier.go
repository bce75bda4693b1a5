package settlement

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/erp/returns/internal/domain/returns"
	"github.com/erp/returns/internal/infrastructure/config"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Kafka header names
const (
	HeaderMessageType    = "message-type"
	HeaderIdempotencyKey = "idempotency-key"
)

// MessageWriter is the part of kafka.Writer the notifier uses
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes refund requests and notifications to a topic.
// Messages are keyed by return request id so one request stays ordered on a partition.
type KafkaNotifier struct {
	writer MessageWriter
	topic  string
	logger *zap.Logger
}

// NewKafkaNotifier creates a notifier writing to cfg.KafkaTopic
func NewKafkaNotifier(cfg config.SettlementConfig, logger *zap.Logger) (*KafkaNotifier, error) {
	if len(cfg.KafkaBrokers) == 0 {
		return nil, fmt.Errorf("settlement: kafka brokers are required for the kafka transport")
	}
	if strings.TrimSpace(cfg.KafkaTopic) == "" {
		return nil, fmt.Errorf("settlement: kafka topic is required for the kafka transport")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: cfg.Timeout,
		MaxAttempts:  cfg.MaxRetries,
	}
	return NewKafkaNotifierWithWriter(w, cfg.KafkaTopic, logger), nil
}

// NewKafkaNotifierWithWriter creates a notifier on an existing writer
func NewKafkaNotifierWithWriter(w MessageWriter, topic string, logger *zap.Logger) *KafkaNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaNotifier{writer: w, topic: topic, logger: logger}
}

// RequestRefund publishes the refund command
func (n *KafkaNotifier) RequestRefund(ctx context.Context, cmd returns.RefundCommand) error {
	key := RefundKey(cmd.ReturnRequestID)
	if err := n.publish(ctx, cmd.ReturnRequestID.String(), Envelope{Type: MessageTypeRefundRequested, IdempotencyKey: key, Data: cmd}); err != nil {
		return deliveryError(cmd.ReturnRequestID, err)
	}
	n.logger.Info("Refund request published",
		zap.String("topic", n.topic),
		zap.String("return_request_id", cmd.ReturnRequestID.String()),
	)
	return nil
}

// Notify publishes a workflow notification
func (n *KafkaNotifier) Notify(ctx context.Context, msg returns.Notification) error {
	key := NotificationKey(msg.ID)
	if err := n.publish(ctx, msg.ReturnRequestID.String(), Envelope{Type: MessageTypeNotification, IdempotencyKey: key, Data: msg}); err != nil {
		return deliveryError(msg.ReturnRequestID, err)
	}
	return nil
}

// Close flushes and closes the writer
func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}

func (n *KafkaNotifier) publish(ctx context.Context, partitionKey string, env Envelope) error {
	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(partitionKey),
		Value: value,
		Headers: []kafka.Header{
			{Key: HeaderMessageType, Value: []byte(env.Type)},
			{Key: HeaderIdempotencyKey, Value: []byte(env.IdempotencyKey)},
		},
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("%w: %v", ErrSettlementUnavailable, err)
	}
	return nil
}

var _ returns.SettlementNotifier = (*KafkaNotifier)(nil)

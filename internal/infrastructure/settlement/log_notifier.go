package settlement

import (
	"context"

	"github.com/erp/returns/internal/domain/returns"
	"go.uber.org/zap"
)

// LogNotifier writes refund requests and notifications to the log.
// Used for local runs where no settlement service exists.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a log-only notifier
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger.Named("settlement")}
}

// RequestRefund logs the refund command
func (n *LogNotifier) RequestRefund(_ context.Context, cmd returns.RefundCommand) error {
	n.logger.Info("Refund requested",
		zap.String("idempotency_key", RefundKey(cmd.ReturnRequestID)),
		zap.String("return_request_id", cmd.ReturnRequestID.String()),
		zap.String("store_id", cmd.StoreID.String()),
		zap.String("customer_id", cmd.CustomerID.String()),
		zap.String("order_item", cmd.OrderItem.String()),
		zap.String("amount", cmd.Amount.String()),
		zap.String("currency", cmd.Currency),
		zap.String("reason_code", string(cmd.ReasonCode)),
	)
	return nil
}

// Notify logs the notification
func (n *LogNotifier) Notify(_ context.Context, msg returns.Notification) error {
	fields := []zap.Field{
		zap.String("kind", string(msg.Kind)),
		zap.String("return_request_id", msg.ReturnRequestID.String()),
		zap.String("store_id", msg.StoreID.String()),
		zap.String("message", msg.Message),
	}
	if msg.DueAt != nil {
		fields = append(fields, zap.Time("due_at", *msg.DueAt))
	}
	n.logger.Info("Notification", fields...)
	return nil
}

var _ returns.SettlementNotifier = (*LogNotifier)(nil)

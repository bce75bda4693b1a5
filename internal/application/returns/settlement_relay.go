package returns

import (
	"context"
	"fmt"

	"github.com/erp/returns/internal/domain/returns"
	"github.com/erp/returns/internal/domain/shared"
	"go.uber.org/zap"
)

// SettlementRelay forwards outbox events to the Settlement Notifier. The
// outbox processor redelivers an event until Handle returns nil, so every
// refund reaches the notifier at least once; the notifier deduplicates by
// return request id.
type SettlementRelay struct {
	notifier returns.SettlementNotifier
	logger   *zap.Logger
}

// NewSettlementRelay creates a new SettlementRelay
func NewSettlementRelay(notifier returns.SettlementNotifier, logger *zap.Logger) *SettlementRelay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SettlementRelay{notifier: notifier, logger: logger}
}

// EventTypes returns the event types this handler is interested in
func (h *SettlementRelay) EventTypes() []string {
	return []string{
		returns.EventTypeRefundRequested,
		returns.EventTypeReturnRequestSubmitted,
		returns.EventTypeReturnRequestRejected,
		returns.EventTypeReturnRequestResolved,
		returns.EventTypeShipmentReset,
		returns.EventTypeReturnDelivered,
	}
}

// Handle delivers one event
func (h *SettlementRelay) Handle(ctx context.Context, event shared.DomainEvent) error {
	switch e := event.(type) {
	case *returns.RefundRequestedEvent:
		return h.requestRefund(ctx, e)
	case *returns.ReturnRequestSubmittedEvent:
		return h.notify(ctx, event, returns.Notification{
			Kind:       returns.NotifyStoreDecision,
			CustomerID: e.CustomerID,
			Message:    fmt.Sprintf("New return request for %s awaits your decision", e.OrderItem),
			DueAt:      e.DecideBy,
		})
	case *returns.ReturnRequestRejectedEvent:
		msg := "Your return request was rejected: " + e.Reason
		if e.Disputed {
			msg = "The shop disputed your returned item: " + e.Reason
		}
		return h.notify(ctx, event, returns.Notification{
			Kind:       returns.NotifyCustomerRejected,
			CustomerID: e.CustomerID,
			Message:    msg,
		})
	case *returns.ReturnRequestResolvedEvent:
		return h.notify(ctx, event, returns.Notification{
			Kind:       returns.NotifyCustomerResolved,
			CustomerID: e.CustomerID,
			Message:    resolvedMessage(e),
		})
	case *returns.ShipmentResetEvent:
		return h.notify(ctx, event, returns.Notification{
			Kind:    returns.NotifyStoreRecreate,
			Message: fmt.Sprintf("Return shipment %s was abandoned (%s); create a new shipment", e.ShipmentCode, e.Cause),
		})
	case *returns.ReturnDeliveredEvent:
		return h.notify(ctx, event, returns.Notification{
			Kind:    returns.NotifyStoreDisposition,
			Message: fmt.Sprintf("Return shipment %s was delivered; confirm receipt or dispute", e.ShipmentCode),
			DueAt:   e.DecideBy,
		})
	}

	h.logger.Error("unexpected event type",
		zap.String("event_type", event.EventType()),
		zap.String("event_id", event.EventID().String()),
	)
	return fmt.Errorf("unexpected event type: %s", event.EventType())
}

func (h *SettlementRelay) requestRefund(ctx context.Context, e *returns.RefundRequestedEvent) error {
	cmd := returns.RefundCommand{
		ReturnRequestID: e.ReturnRequestID,
		StoreID:         e.StoreID(),
		CustomerID:      e.CustomerID,
		OrderItem:       e.OrderItem,
		Amount:          e.Amount,
		Currency:        e.Currency,
		ReasonCode:      e.ReasonCode,
		RequestedAt:     e.OccurredAt(),
	}
	if err := h.notifier.RequestRefund(ctx, cmd); err != nil {
		h.logger.Warn("refund delivery failed, will retry",
			zap.String("return_request_id", e.ReturnRequestID.String()),
			zap.String("amount", e.Amount.String()),
			zap.String("reason_code", string(e.ReasonCode)),
			zap.Error(err),
		)
		return err
	}
	h.logger.Info("refund requested",
		zap.String("return_request_id", e.ReturnRequestID.String()),
		zap.String("amount", e.Amount.String()),
		zap.String("currency", e.Currency),
		zap.String("reason_code", string(e.ReasonCode)),
	)
	return nil
}

// notify uses the event id as notification id so redeliveries deduplicate
func (h *SettlementRelay) notify(ctx context.Context, event shared.DomainEvent, n returns.Notification) error {
	n.ID = event.EventID()
	n.ReturnRequestID = event.AggregateID()
	n.StoreID = event.StoreID()
	if err := h.notifier.Notify(ctx, n); err != nil {
		h.logger.Warn("notification delivery failed, will retry",
			zap.String("return_request_id", n.ReturnRequestID.String()),
			zap.String("kind", string(n.Kind)),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func resolvedMessage(e *returns.ReturnRequestResolvedEvent) string {
	switch e.ToStatus {
	case returns.StatusRefunded:
		return "Your return was accepted and a refund has been requested"
	case returns.StatusAutoRefunded:
		return "The shop did not respond in time; a refund has been requested automatically"
	case returns.StatusCancelled:
		if e.CancelReason != "" {
			return "Your return request was cancelled: " + e.CancelReason
		}
		return "Your return request was cancelled"
	}
	return "Your return request was resolved as " + string(e.ToStatus)
}

var _ shared.EventHandler = (*SettlementRelay)(nil)

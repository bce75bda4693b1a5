package returns

import (
	"context"
	"errors"
	"testing"

	"github.com/erp/returns/internal/domain/returns"
	"github.com/erp/returns/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestSettlementRelay_RequestRefund(t *testing.T) {
	f := newFixture(t)
	id := f.submit(t)
	_, err := f.orch.ShopRefundWithoutReturn(context.Background(), f.shop, id)
	require.NoError(t, err)
	refunds := f.outbox.refunds()
	require.Len(t, refunds, 1)

	notifier := new(mockNotifier)
	notifier.On("RequestRefund", mock.Anything, mock.MatchedBy(func(cmd returns.RefundCommand) bool {
		return cmd.ReturnRequestID == id &&
			cmd.StoreID == f.storeID &&
			cmd.CustomerID == f.customerID &&
			cmd.Amount.Equal(decimal.NewFromInt(500000)) &&
			cmd.Currency == "VND" &&
			cmd.ReasonCode == returns.RefundShopWithoutReturn &&
			cmd.OrderItem.ItemID == "SKU-1"
	})).Return(nil).Once()

	relay := NewSettlementRelay(notifier, nil)
	require.NoError(t, relay.Handle(context.Background(), refunds[0]))
	notifier.AssertExpectations(t)
}

func TestSettlementRelay_ReturnsDeliveryErrorsForRetry(t *testing.T) {
	f := newFixture(t)
	id := f.submit(t)
	_, err := f.orch.ShopRefundWithoutReturn(context.Background(), f.shop, id)
	require.NoError(t, err)

	notifier := new(mockNotifier)
	deliveryErr := &returns.SettlementError{ReturnRequestID: id.String(), Err: errors.New("503")}
	notifier.On("RequestRefund", mock.Anything, mock.Anything).Return(deliveryErr).Once()

	relay := NewSettlementRelay(notifier, nil)
	err = relay.Handle(context.Background(), f.outbox.refunds()[0])
	assert.True(t, errors.Is(err, returns.ErrSettlementDelivery))
}

func TestSettlementRelay_Notifications(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.ship(t, "GHN123")
	f.courier.On("CancelShipment", mock.Anything, "GHN123").Return(nil).Maybe()
	_, err := f.orch.OnTrackingUpdate(ctx, returns.TrackingInfo{ShipmentCode: "GHN123", Status: returns.TrackingLost}, SourceWebhook)
	require.NoError(t, err)

	tests := []struct {
		name      string
		eventType string
		kind      returns.NotificationKind
		hasDueAt  bool
	}{
		{"submitted asks the store to decide", returns.EventTypeReturnRequestSubmitted, returns.NotifyStoreDecision, true},
		{"reset asks the store to recreate the shipment", returns.EventTypeShipmentReset, returns.NotifyStoreRecreate, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := f.outbox.ofType(tt.eventType)
			require.Len(t, events, 1)
			event := events[0]

			notifier := new(mockNotifier)
			notifier.On("Notify", mock.Anything, mock.MatchedBy(func(n returns.Notification) bool {
				return n.ID == event.EventID() &&
					n.Kind == tt.kind &&
					n.ReturnRequestID == id &&
					n.StoreID == f.storeID &&
					(n.DueAt != nil) == tt.hasDueAt
			})).Return(nil).Once()

			relay := NewSettlementRelay(notifier, nil)
			require.NoError(t, relay.Handle(ctx, event))
			notifier.AssertExpectations(t)
		})
	}
}

func TestSettlementRelay_ResolvedMessages(t *testing.T) {
	tests := []struct {
		status returns.Status
		reason string
		want   string
	}{
		{returns.StatusRefunded, "", "Your return was accepted and a refund has been requested"},
		{returns.StatusAutoRefunded, "", "The shop did not respond in time; a refund has been requested automatically"},
		{returns.StatusCancelled, "changed my mind", "Your return request was cancelled: changed my mind"},
		{returns.StatusCancelled, "", "Your return request was cancelled"},
	}
	for _, tt := range tests {
		t.Run(string(tt.status)+tt.reason, func(t *testing.T) {
			e := &returns.ReturnRequestResolvedEvent{ToStatus: tt.status, CancelReason: tt.reason}
			assert.Equal(t, tt.want, resolvedMessage(e))
		})
	}
}

type unknownEvent struct {
	shared.BaseDomainEvent
}

func TestSettlementRelay_UnknownEvent(t *testing.T) {
	notifier := new(mockNotifier)
	relay := NewSettlementRelay(notifier, nil)
	e := &unknownEvent{BaseDomainEvent: shared.NewBaseDomainEvent("Unknown", "Thing", uuid.New(), uuid.New(), testEpoch)}

	assert.Error(t, relay.Handle(context.Background(), e))
	notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)
}

func TestSettlementRelay_EventTypes(t *testing.T) {
	relay := NewSettlementRelay(new(mockNotifier), nil)
	assert.Contains(t, relay.EventTypes(), returns.EventTypeRefundRequested)
	assert.NotContains(t, relay.EventTypes(), returns.EventTypeShipmentCreated)
}

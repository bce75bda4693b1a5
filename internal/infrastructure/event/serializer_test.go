package event

import (
	"testing"
	"time"

	"github.com/erp/returns/internal/domain/returns"
	"github.com/erp/returns/internal/domain/shared"
	"github.com/erp/returns/internal/domain/shared/valueobject"
	"github.com/erp/returns/tests/testutil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func domainSerializer() *EventSerializer {
	s := NewEventSerializer()
	RegisterAllEvents(s)
	return s
}

func submittedReturn(t *testing.T) *returns.ReturnRequest {
	t.Helper()
	rr, err := returns.NewReturnRequest(returns.SubmitParams{
		StoreID:    testutil.TestStoreID(),
		CustomerID: testutil.TestCustomerID(),
		OrderItem:  returns.OrderItemRef{OrderID: "SO-1001", ItemID: "sku-7"},
		ReasonType: returns.ReasonShopFault,
		Reason:     "arrived cracked",
		ItemPrice:  decimal.NewFromInt(450000),
		PickupAddress: valueobject.ContactAddress{
			Name: "Tran Thi B", Phone: "0907654321", Address: "5 Le Loi", WardCode: "20308", DistrictID: 1444,
		},
	}, returns.UniformTimeouts(48*time.Hour), time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return rr
}

func TestRegisterAllEvents(t *testing.T) {
	s := domainSerializer()

	for eventType := range returns.AllEventTypes() {
		assert.True(t, s.IsRegistered(eventType), eventType)
	}
	assert.Len(t, s.RegisteredTypes(), len(returns.AllEventTypes()))
	assert.IsNonDecreasing(t, s.RegisteredTypes())
}

func TestEventSerializer_SubmittedEventSurvivesOutbox(t *testing.T) {
	s := domainSerializer()
	rr := submittedReturn(t)
	events := rr.GetDomainEvents()
	require.Len(t, events, 1)

	payload, err := s.Serialize(events[0])
	require.NoError(t, err)
	decoded, err := s.Deserialize(returns.EventTypeReturnRequestSubmitted, payload)
	require.NoError(t, err)

	submitted, ok := decoded.(*returns.ReturnRequestSubmittedEvent)
	require.True(t, ok)
	assert.Equal(t, rr.ID, submitted.AggregateID())
	assert.Equal(t, rr.StoreID, submitted.StoreID())
	assert.Equal(t, events[0].EventID(), submitted.EventID())
	assert.True(t, submitted.OccurredAt().Equal(events[0].OccurredAt()))
	assert.Equal(t, rr.OrderItem, submitted.OrderItem)
	assert.True(t, rr.ItemPrice.Equal(submitted.ItemPrice))
	require.NotNil(t, submitted.DecideBy)
	assert.True(t, rr.DeadlineAt.Equal(*submitted.DecideBy))
}

func TestEventSerializer_RefundRequestedSurvivesOutbox(t *testing.T) {
	s := domainSerializer()
	original := &returns.RefundRequestedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(returns.EventTypeRefundRequested, returns.AggregateTypeReturnRequest,
			uuid.New(), testutil.TestStoreID(), time.Now().UTC()),
		ReturnRequestID: uuid.New(),
		CustomerID:      testutil.TestCustomerID(),
		Amount:          decimal.RequireFromString("125000.50"),
		Currency:        "VND",
		ReasonCode:      returns.RefundNoShopAction,
		AutoRefunded:    true,
	}

	payload, err := s.Serialize(original)
	require.NoError(t, err)
	assert.Contains(t, string(payload), `"amount":"125000.5"`, "amounts travel as strings")

	decoded, err := s.Deserialize(returns.EventTypeRefundRequested, payload)
	require.NoError(t, err)
	refund := decoded.(*returns.RefundRequestedEvent)
	assert.Equal(t, original.ReturnRequestID, refund.ReturnRequestID)
	assert.True(t, original.Amount.Equal(refund.Amount))
	assert.Equal(t, returns.RefundNoShopAction, refund.ReasonCode)
	assert.True(t, refund.AutoRefunded)
}

func TestEventSerializer_DeserializeErrors(t *testing.T) {
	s := domainSerializer()

	_, err := s.Deserialize("ReturnTeleported", []byte(`{}`))
	assert.ErrorIs(t, err, ErrUnknownEventType)

	_, err = s.Deserialize(returns.EventTypeRefundRequested, []byte(`{"amount":`))
	assert.ErrorContains(t, err, "failed to unmarshal "+returns.EventTypeRefundRequested)
}

func TestEventSerializer_DeserializeEntry(t *testing.T) {
	s := domainSerializer()
	event := submittedReturn(t).GetDomainEvents()[0]
	payload, err := s.Serialize(event)
	require.NoError(t, err)
	now := time.Now()

	t.Run("matching entry", func(t *testing.T) {
		decoded, err := s.DeserializeEntry(shared.NewOutboxEntry(event, payload, now))
		require.NoError(t, err)
		assert.Equal(t, event.EventID(), decoded.EventID())
	})

	t.Run("payload from another event", func(t *testing.T) {
		other := submittedReturn(t).GetDomainEvents()[0]
		entry := shared.NewOutboxEntry(other, payload, now)
		_, err := s.DeserializeEntry(entry)
		assert.ErrorContains(t, err, entry.ID.String())
	})

	t.Run("unregistered type", func(t *testing.T) {
		entry := shared.NewOutboxEntry(event, payload, now)
		entry.EventType = "Gone"
		_, err := s.DeserializeEntry(entry)
		assert.ErrorIs(t, err, ErrUnknownEventType)
	})
}

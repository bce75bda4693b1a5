package event

import (
	"context"
	"errors"
	"testing"

	"github.com/erp/returns/internal/domain/returns"
	"github.com/erp/returns/internal/domain/shared"
	"github.com/erp/returns/tests/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	refundRequested = returns.EventTypeRefundRequested
	resolved        = returns.EventTypeReturnRequestResolved
)

func newTestEvent(eventType string, storeID uuid.UUID) *testutil.StubEvent {
	return testutil.NewStubEvent(eventType, storeID)
}

type panicHandler struct{}

func (panicHandler) Handle(context.Context, shared.DomainEvent) error { panic("nil notifier") }
func (panicHandler) EventTypes() []string                             { return []string{refundRequested} }
func (panicHandler) Name() string                                     { return "exploding" }

func TestInMemoryEventBus_Publish(t *testing.T) {
	t.Run("delivers each event to each subscriber", func(t *testing.T) {
		bus := NewInMemoryEventBus(zap.NewNop())
		relay := testutil.NewEventRecorder(refundRequested)
		audit := testutil.NewEventRecorder(refundRequested, resolved)
		bus.Subscribe(relay)
		bus.Subscribe(audit)

		storeID := testutil.TestStoreID()
		refund := newTestEvent(refundRequested, storeID)
		done := newTestEvent(resolved, storeID)
		require.NoError(t, bus.Publish(context.Background(), refund, done))

		assert.Equal(t, []shared.DomainEvent{refund}, relay.Events())
		assert.Equal(t, []shared.DomainEvent{refund, done}, audit.Events())
	})

	t.Run("explicit types override the handler's own", func(t *testing.T) {
		bus := NewInMemoryEventBus(zap.NewNop())
		rec := testutil.NewEventRecorder(refundRequested)
		bus.Subscribe(rec, resolved)

		require.NoError(t, bus.Publish(context.Background(),
			newTestEvent(refundRequested, uuid.New()),
			newTestEvent(resolved, uuid.New())))

		assert.Len(t, rec.OfType(resolved), 1)
		assert.Empty(t, rec.OfType(refundRequested))
	})

	t.Run("catch-all subscriber sees every type", func(t *testing.T) {
		bus := NewInMemoryEventBus(nil)
		rec := testutil.NewEventRecorder()
		bus.Subscribe(rec)

		require.NoError(t, bus.Publish(context.Background(), newTestEvent(returns.EventTypeShipmentReset, uuid.New())))
		assert.Equal(t, 1, rec.Count())
	})

	t.Run("unsubscribed types are skipped without error", func(t *testing.T) {
		bus := NewInMemoryEventBus(zap.NewNop())
		rec := testutil.NewEventRecorder(resolved)
		bus.Subscribe(rec)

		require.NoError(t, bus.Publish(context.Background(), newTestEvent(refundRequested, uuid.New())))
		assert.Zero(t, rec.Count())
	})
}

func TestInMemoryEventBus_Publish_Failures(t *testing.T) {
	t.Run("a failing subscriber does not starve the next one", func(t *testing.T) {
		bus := NewInMemoryEventBus(zap.NewNop())
		errSettlement := errors.New("settlement unavailable")
		failing := testutil.NewEventRecorder(refundRequested)
		failing.FailNext(errSettlement, 1)
		healthy := testutil.NewEventRecorder(refundRequested)
		bus.Subscribe(failing)
		bus.Subscribe(healthy)

		event := newTestEvent(refundRequested, uuid.New())
		err := bus.Publish(context.Background(), event)

		require.ErrorIs(t, err, errSettlement)
		var delivery *DeliveryError
		require.ErrorAs(t, err, &delivery)
		assert.Equal(t, event.EventID(), delivery.EventID)
		assert.Equal(t, refundRequested, delivery.EventType)
		assert.Equal(t, "*testutil.EventRecorder", delivery.Handler)
		assert.Equal(t, 1, healthy.Count())
	})

	t.Run("panics become delivery errors", func(t *testing.T) {
		bus := NewInMemoryEventBus(zap.NewNop())
		after := testutil.NewEventRecorder(refundRequested)
		bus.Subscribe(panicHandler{})
		bus.Subscribe(after)

		err := bus.Publish(context.Background(), newTestEvent(refundRequested, uuid.New()))

		var delivery *DeliveryError
		require.ErrorAs(t, err, &delivery)
		assert.Equal(t, "exploding", delivery.Handler)
		assert.ErrorContains(t, err, "panicked: nil notifier")
		assert.Equal(t, 1, after.Count())
	})

	t.Run("failures across events are joined", func(t *testing.T) {
		bus := NewInMemoryEventBus(zap.NewNop())
		rec := testutil.NewEventRecorder(refundRequested)
		rec.FailNext(errors.New("timeout"), 2)
		bus.Subscribe(rec)

		err := bus.Publish(context.Background(),
			newTestEvent(refundRequested, uuid.New()),
			newTestEvent(refundRequested, uuid.New()))

		require.Error(t, err)
		assert.Len(t, err.(interface{ Unwrap() []error }).Unwrap(), 2)
	})
}

func TestInMemoryEventBus_Unsubscribe(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	rec := testutil.NewEventRecorder(refundRequested)
	bus.Subscribe(rec)
	require.NoError(t, bus.Publish(context.Background(), newTestEvent(refundRequested, uuid.New())))

	bus.Unsubscribe(rec)
	require.NoError(t, bus.Publish(context.Background(), newTestEvent(refundRequested, uuid.New())))

	assert.Equal(t, 1, rec.Count())
	assert.Empty(t, bus.Subscriptions())
}

func TestInMemoryEventBus_Subscriptions(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	relay := NewIdempotentHandler(testutil.NewEventRecorder(refundRequested), nil, nil, WithHandlerName("settlement_relay"))
	bus.Subscribe(relay)
	bus.Subscribe(testutil.NewEventRecorder(resolved, refundRequested))

	assert.Equal(t, []string{refundRequested, resolved}, bus.Subscriptions())
	assert.Equal(t, "settlement_relay", handlerName(relay))
}

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appreturns "github.com/erp/returns/internal/application/returns"
	"github.com/erp/returns/internal/domain/returns"
	"github.com/erp/returns/internal/domain/shared"
	"github.com/erp/returns/internal/infrastructure/cache"
	"github.com/erp/returns/internal/infrastructure/event"
	"github.com/erp/returns/internal/infrastructure/persistence"
	"github.com/erp/returns/internal/infrastructure/scheduler"
	"github.com/erp/returns/internal/infrastructure/settlement"
	"github.com/erp/returns/tests/testutil"
)

// flowSetup wires the orchestrator to PostgreSQL, the outbox relay and fakes
// for the courier and the settlement side.
type flowSetup struct {
	DB           *TestDB
	Clock        *shared.ManualClock
	Repo         returns.Repository
	Orchestrator *appreturns.Orchestrator
	Processor    *event.OutboxProcessor
	Courier      *testutil.StubCourier
	Settlement   *testutil.RecordingNotifier
	Events       *testutil.EventRecorder
	Shop         returns.Actor
	Customer     returns.Actor
}

func newFlowSetup(t *testing.T) *flowSetup {
	t.Helper()
	log := zap.NewNop()
	clock := shared.NewManualClock(time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC))
	tdb := NewTestDB(t)

	serializer := event.NewEventSerializer()
	event.RegisterAllEvents(serializer)
	outboxRepo := event.NewGormOutboxRepository(tdb.DB, clock)

	recorder := testutil.NewRecordingNotifier()
	store := cache.NewInMemoryIdempotencyStore()
	t.Cleanup(func() { store.Close() })
	notifier := settlement.NewDedupeNotifier(recorder, store, time.Hour, log)

	bus := event.NewInMemoryEventBus(log)
	relay := event.NewIdempotentHandler(appreturns.NewSettlementRelay(notifier, log), store, log)
	bus.Subscribe(relay, relay.EventTypes()...)
	events := testutil.NewEventRecorder(returns.EventTypeRefundRequested, returns.EventTypeReturnRequestResolved)
	bus.Subscribe(events, events.EventTypes()...)

	processor := event.NewOutboxProcessor(outboxRepo, bus, serializer, event.DefaultOutboxProcessorConfig(), clock, log)
	publisher := event.NewOutboxPublisher(serializer, clock)
	repo := persistence.NewGormReturnRequestRepository(tdb.DB, publisher)

	courier := testutil.NewStubCourier()
	orch := appreturns.NewOrchestrator(repo, courier, nil, clock, appreturns.DefaultConfig(), log)

	storeID := uuid.New()
	return &flowSetup{
		DB:           tdb,
		Clock:        clock,
		Repo:         repo,
		Orchestrator: orch,
		Processor:    processor,
		Courier:      courier,
		Settlement:   recorder,
		Events:       events,
		Shop:         testutil.ShopActor(storeID),
		Customer:     testutil.CustomerActor(testutil.TestCustomerID()),
	}
}

func (s *flowSetup) submit(t *testing.T, orderID string, reason returns.ReasonType) *appreturns.ReturnRequestResponse {
	t.Helper()
	resp, err := s.Orchestrator.SubmitReturnRequest(context.Background(), s.Customer,
		testutil.SubmitRequest(s.Shop.StoreID, orderID, "ITEM-1", reason))
	require.NoError(t, err)
	return resp
}

func TestRefundFlow_ShopConfirmsReceipt(t *testing.T) {
	s := newFlowSetup(t)
	ctx := context.Background()

	submitted := s.submit(t, "ORD-100", returns.ReasonShopFault)
	assert.Equal(t, string(returns.StatusPending), submitted.Status)

	_, err := s.Orchestrator.ShopApprove(ctx, s.Shop, submitted.ID)
	require.NoError(t, err)

	shipping, err := s.Orchestrator.ShopSubmitPackageInfo(ctx, s.Shop, submitted.ID, testutil.PackageInfo())
	require.NoError(t, err)
	assert.Equal(t, string(returns.StatusShipping), shipping.Status)
	require.NotEmpty(t, shipping.GHNOrderCode)
	require.Len(t, s.Courier.Created(), 1)
	assert.Equal(t, returns.PayerStore, s.Courier.Created()[0].Payer)

	s.Clock.Advance(6 * time.Hour)
	applied, err := s.Orchestrator.OnTrackingUpdate(ctx, returns.TrackingInfo{
		ShipmentCode: shipping.GHNOrderCode,
		Status:       returns.TrackingDelivered,
		UpdatedAt:    s.Clock.Now(),
	}, appreturns.SourceWebhook)
	require.NoError(t, err)
	assert.True(t, applied)

	refunded, err := s.Orchestrator.ShopConfirmReceipt(ctx, s.Shop, submitted.ID)
	require.NoError(t, err)
	assert.Equal(t, string(returns.StatusRefunded), refunded.Status)

	// nothing reaches settlement until the outbox is relayed
	_, ok := s.Settlement.Refund(submitted.ID)
	assert.False(t, ok)

	s.Processor.ProcessOnce(ctx)
	cmd, ok := s.Settlement.Refund(submitted.ID)
	require.True(t, ok)
	assert.True(t, cmd.Amount.Equal(testutil.SubmitRequest(s.Shop.StoreID, "ORD-100", "ITEM-1", returns.ReasonShopFault).ItemPrice))
	assert.Equal(t, s.Shop.StoreID, cmd.StoreID)
	assert.Len(t, s.Settlement.Notifications(returns.NotifyCustomerResolved), 1)

	// a second pass finds nothing pending
	s.Processor.ProcessOnce(ctx)
	assert.Equal(t, 1, s.Settlement.RefundCalls())
	assert.Zero(t, s.DB.CountRows("outbox_events", "status <> ?", string(shared.OutboxStatusSent)))
}

func TestRefundFlow_ShopDecisionDeadlineAutoRefunds(t *testing.T) {
	s := newFlowSetup(t)
	ctx := context.Background()

	submitted := s.submit(t, "ORD-200", returns.ReasonCustomerFault)

	deadlines := scheduler.NewDeadlineScheduler(scheduler.DefaultDeadlineSchedulerConfig(), s.Orchestrator, s.Repo, s.Clock, zap.NewNop())
	require.NoError(t, deadlines.Start(ctx))
	t.Cleanup(func() { _ = deadlines.Stop(context.Background()) })

	s.Clock.Advance(returns.DefaultSLA + time.Minute)
	deadlines.Sweep(ctx)

	require.Eventually(t, func() bool {
		got, err := s.Repo.Get(ctx, submitted.ID)
		return err == nil && got.Status == returns.StatusAutoRefunded
	}, 10*time.Second, 50*time.Millisecond, "request was not auto-refunded")

	// the shop acting late loses the race cleanly
	_, err := s.Orchestrator.ShopApprove(ctx, s.Shop, submitted.ID)
	assert.ErrorIs(t, err, returns.ErrInvalidTransition)

	s.Processor.ProcessOnce(ctx)
	cmd, ok := s.Settlement.Refund(submitted.ID)
	require.True(t, ok)
	assert.Equal(t, returns.RefundNoShopAction, cmd.ReasonCode)
	testutil.AssertEventCount(t, s.Events, 2, time.Second)
}

func TestRefundFlow_CourierFailureKeepsRequestApproved(t *testing.T) {
	s := newFlowSetup(t)
	ctx := context.Background()

	submitted := s.submit(t, "ORD-300", returns.ReasonShopFault)
	_, err := s.Orchestrator.ShopApprove(ctx, s.Shop, submitted.ID)
	require.NoError(t, err)

	s.Courier.FailCreate(assert.AnError)
	_, err = s.Orchestrator.ShopSubmitPackageInfo(ctx, s.Shop, submitted.ID, testutil.PackageInfo())
	assert.ErrorIs(t, err, returns.ErrCourierGateway)

	got, err := s.Repo.Get(ctx, submitted.ID)
	require.NoError(t, err)
	assert.Equal(t, returns.StatusApproved, got.Status)

	s.Courier.FailCreate(nil)
	resp, err := s.Orchestrator.ShopRetryShipment(ctx, s.Shop, submitted.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, string(returns.StatusShipping), resp.Status)
	assert.Len(t, s.Courier.Created(), 1)
}

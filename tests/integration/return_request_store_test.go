package integration

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erp/returns/internal/domain/returns"
	"github.com/erp/returns/internal/domain/shared"
	"github.com/erp/returns/internal/domain/shared/valueobject"
	"github.com/erp/returns/internal/infrastructure/event"
	"github.com/erp/returns/internal/infrastructure/persistence"
	"github.com/erp/returns/tests/testutil"
)

var storeTimeouts = returns.UniformTimeouts(returns.DefaultSLA)

func newPostgresStore(t *testing.T, clock shared.Clock) (*TestDB, returns.Repository) {
	t.Helper()
	tdb := NewTestDB(t)
	serializer := event.NewEventSerializer()
	event.RegisterAllEvents(serializer)
	publisher := event.NewOutboxPublisher(serializer, clock)
	return tdb, persistence.NewGormReturnRequestRepository(tdb.DB, publisher)
}

func pendingRequest(t *testing.T, storeID uuid.UUID, orderID, itemID string, now time.Time) *returns.ReturnRequest {
	t.Helper()
	rr, err := returns.NewReturnRequest(returns.SubmitParams{
		StoreID:    storeID,
		CustomerID: testutil.TestCustomerID(),
		OrderItem:  returns.OrderItemRef{OrderID: orderID, ItemID: itemID},
		ReasonType: returns.ReasonCustomerFault,
		Reason:     "changed my mind",
		ItemPrice:  decimal.NewFromInt(180000),
		PickupAddress: valueobject.ContactAddress{
			Name:       "Customer",
			Phone:      "0901234567",
			Address:    "12 Nguyen Trai",
			WardCode:   "20308",
			DistrictID: 1442,
		},
	}, storeTimeouts, now)
	require.NoError(t, err)
	return rr
}

func TestPostgresStore_ActiveReturnIsUniquePerOrderItem(t *testing.T) {
	clock := shared.NewManualClock(time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC))
	tdb, repo := newPostgresStore(t, clock)
	ctx := context.Background()
	storeID := testutil.TestStoreID()

	first := pendingRequest(t, storeID, "ORD-1", "ITEM-1", clock.Now())
	require.NoError(t, repo.Create(ctx, first))
	assert.Equal(t, int64(1), tdb.CountRows("outbox_events", "aggregate_id = ?", first.ID))

	dup := pendingRequest(t, storeID, "ORD-1", "ITEM-1", clock.Now())
	err := repo.Create(ctx, dup)
	assert.ErrorIs(t, err, returns.ErrDuplicateActiveReturn)
	assert.Zero(t, tdb.CountRows("outbox_events", "aggregate_id = ?", dup.ID), "a rejected insert must not leave events behind")

	// once the first request is terminal the item can be returned again
	_, err = repo.CompareAndSwapStatus(ctx, first.ID, returns.StatusPending, func(r *returns.ReturnRequest) error {
		return r.Cancel("withdrawn", clock.Now())
	})
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, pendingRequest(t, storeID, "ORD-1", "ITEM-1", clock.Now())))
}

func TestPostgresStore_CompareAndSwapStatus(t *testing.T) {
	clock := shared.NewManualClock(time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC))
	tdb, repo := newPostgresStore(t, clock)
	ctx := context.Background()

	rr := pendingRequest(t, testutil.TestStoreID(), "ORD-2", "ITEM-1", clock.Now())
	require.NoError(t, repo.Create(ctx, rr))

	_, err := repo.CompareAndSwapStatus(ctx, rr.ID, returns.StatusApproved, func(r *returns.ReturnRequest) error {
		return r.ConfirmReceipt(clock.Now())
	})
	assert.ErrorIs(t, err, returns.ErrStaleState)

	refunded, err := repo.CompareAndSwapStatus(ctx, rr.ID, returns.StatusPending, func(r *returns.ReturnRequest) error {
		return r.RefundWithoutReturn(clock.Now())
	})
	require.NoError(t, err)
	assert.Equal(t, returns.StatusRefunded, refunded.Status)
	assert.Equal(t, rr.Version+1, refunded.Version)
	assert.Equal(t, int64(1), tdb.CountRows("outbox_events", "aggregate_id = ? AND event_type = ?", rr.ID, returns.EventTypeRefundRequested))

	_, err = repo.CompareAndSwapStatus(ctx, rr.ID, returns.StatusPending, func(r *returns.ReturnRequest) error {
		return r.Reject("too late", clock.Now())
	})
	assert.ErrorIs(t, err, returns.ErrStaleState)

	_, err = repo.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, returns.ErrReturnRequestNotFound)
}

func TestPostgresStore_ConcurrentTriggersHaveOneWinner(t *testing.T) {
	clock := shared.NewManualClock(time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC))
	tdb, repo := newPostgresStore(t, clock)
	ctx := context.Background()

	rr := pendingRequest(t, testutil.TestStoreID(), "ORD-3", "ITEM-1", clock.Now())
	require.NoError(t, repo.Create(ctx, rr))

	mutations := []returns.Mutation{
		func(r *returns.ReturnRequest) error { return r.Approve(false, storeTimeouts, clock.Now()) },
		func(r *returns.ReturnRequest) error { return r.Reject("not eligible", clock.Now()) },
		func(r *returns.ReturnRequest) error { return r.RefundWithoutReturn(clock.Now()) },
		func(r *returns.ReturnRequest) error { return r.AutoRefundNoShopAction(clock.Now()) },
	}

	const attempts = 24
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		wins   int
		stales int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(m returns.Mutation) {
			defer wg.Done()
			_, err := repo.CompareAndSwapStatus(ctx, rr.ID, returns.StatusPending, m)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, returns.ErrStaleState):
				stales++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(mutations[i%len(mutations)])
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, attempts-1, stales)

	got, err := repo.Get(ctx, rr.ID)
	require.NoError(t, err)
	refunds := tdb.CountRows("outbox_events", "aggregate_id = ? AND event_type = ?", rr.ID, returns.EventTypeRefundRequested)
	if got.Status.TriggersRefund() {
		assert.Equal(t, int64(1), refunds)
	} else {
		assert.Zero(t, refunds)
	}
}

func TestPostgresStore_DueDeadlines(t *testing.T) {
	clock := shared.NewManualClock(time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC))
	_, repo := newPostgresStore(t, clock)
	ctx := context.Background()

	early := pendingRequest(t, testutil.TestStoreID(), "ORD-4", "ITEM-1", clock.Now())
	require.NoError(t, repo.Create(ctx, early))
	clock.Advance(time.Hour)
	late := pendingRequest(t, testutil.TestStoreID(), "ORD-4", "ITEM-2", clock.Now())
	require.NoError(t, repo.Create(ctx, late))

	due, err := repo.FindDueDeadlines(ctx, clock.Now(), 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	due, err = repo.FindDueDeadlines(ctx, early.CreatedAt.Add(returns.DefaultSLA), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, early.ID, due[0].ReturnRequestID)
	assert.Equal(t, returns.DeadlineShopDecision, due[0].Kind)

	due, err = repo.FindDueDeadlines(ctx, clock.Now().Add(returns.DefaultSLA), 10)
	require.NoError(t, err)
	assert.Len(t, due, 2)
}

package returns

import (
	"context"
	"errors"
	"testing"

	"github.com/erp/returns/internal/domain/returns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestTrackingPoller_Poll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.ship(t, "GHN1")

	second := f.submitRequest("SKU-2")
	resp, err := f.orch.SubmitReturnRequest(ctx, f.customer, second)
	require.NoError(t, err)
	_, err = f.orch.ShopApprove(ctx, f.shop, resp.ID)
	require.NoError(t, err)
	f.courier.On("CreateShipment", mock.Anything, mock.Anything).Return("GHN2", nil).Once()
	_, err = f.orch.ShopSubmitPackageInfo(ctx, f.shop, resp.ID, packageRequest())
	require.NoError(t, err)

	f.courier.On("QueryTracking", mock.Anything, "GHN1").
		Return(returns.TrackingInfo{Status: returns.TrackingDelivered, UpdatedAt: f.clock.Now()}, nil)
	f.courier.On("QueryTracking", mock.Anything, "GHN2").
		Return(returns.TrackingInfo{}, errors.New("timeout"))

	poller := NewTrackingPoller(f.repo, f.courier, f.orch, TrackingPollerConfig{Concurrency: 2}, nil)
	res, err := poller.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, PollResult{Polled: 2, Applied: 1, Failed: 1}, res)

	r := f.get(t, first)
	assert.True(t, r.IsDelivered())
	assert.Equal(t, returns.DeadlineDisposition, r.DeadlineKind)

	// delivered shipments are no longer polled
	res, err = poller.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Polled)
	f.courier.AssertNumberOfCalls(t, "QueryTracking", 3)
}

func TestTrackingPoller_NothingInTransit(t *testing.T) {
	f := newFixture(t)
	f.submit(t)
	poller := NewTrackingPoller(f.repo, f.courier, f.orch, TrackingPollerConfig{}, nil)

	require.NoError(t, poller.Run(context.Background()))
	f.courier.AssertNotCalled(t, "QueryTracking", mock.Anything, mock.Anything)
}

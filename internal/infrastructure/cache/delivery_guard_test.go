package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const refundKey = "refund:7b0e4c1e"

type unreachableStore struct{}

func (unreachableStore) MarkProcessed(context.Context, string, time.Duration) (bool, error) {
	return false, errors.New("dial tcp: connection refused")
}

func (unreachableStore) IsProcessed(context.Context, string) (bool, error) {
	return false, errors.New("dial tcp: connection refused")
}

func (unreachableStore) Release(context.Context, string) error { return nil }
func (unreachableStore) Close() error                          { return nil }

func countingDelivery(calls *atomic.Int32, err error) func(context.Context) error {
	return func(context.Context) error {
		calls.Add(1)
		return err
	}
}

func TestDeliveryGuard_Run(t *testing.T) {
	ctx := context.Background()

	t.Run("delivers once then skips", func(t *testing.T) {
		store, _ := newClockedStore(t)
		g := NewDeliveryGuard(store, time.Hour, time.Minute)
		var calls atomic.Int32

		outcome, err := g.Run(ctx, refundKey, countingDelivery(&calls, nil))
		require.NoError(t, err)
		assert.Equal(t, OutcomeDelivered, outcome)

		outcome, err = g.Run(ctx, refundKey, countingDelivery(&calls, nil))
		require.NoError(t, err)
		assert.Equal(t, OutcomeDuplicate, outcome)
		assert.Equal(t, int32(1), calls.Load())

		leased, err := store.IsProcessed(ctx, LeaseKey(refundKey))
		require.NoError(t, err)
		assert.False(t, leased, "the lease is dropped after delivery")
	})

	t.Run("failure leaves the key free", func(t *testing.T) {
		store, _ := newClockedStore(t)
		g := NewDeliveryGuard(store, time.Hour, time.Minute)
		var calls atomic.Int32
		errDown := errors.New("settlement unavailable")

		outcome, err := g.Run(ctx, refundKey, countingDelivery(&calls, errDown))
		assert.ErrorIs(t, err, errDown)
		assert.Equal(t, OutcomeFailed, outcome)

		outcome, err = g.Run(ctx, refundKey, countingDelivery(&calls, nil))
		require.NoError(t, err)
		assert.Equal(t, OutcomeDelivered, outcome)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("panicking attempt does not count as delivered", func(t *testing.T) {
		store, _ := newClockedStore(t)
		g := NewDeliveryGuard(store, time.Hour, time.Minute)
		var calls atomic.Int32

		assert.PanicsWithValue(t, "connection reset mid-write", func() {
			_, _ = g.Run(ctx, refundKey, func(context.Context) error { panic("connection reset mid-write") })
		})

		outcome, err := g.Run(ctx, refundKey, countingDelivery(&calls, nil))
		require.NoError(t, err)
		assert.Equal(t, OutcomeDelivered, outcome)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("lease left by a crashed attempt expires", func(t *testing.T) {
		store, clock := newClockedStore(t)
		g := NewDeliveryGuard(store, time.Hour, time.Minute)
		var calls atomic.Int32
		// the process died after taking the lease
		_, err := store.MarkProcessed(ctx, LeaseKey(refundKey), time.Minute)
		require.NoError(t, err)

		outcome, err := g.Run(ctx, refundKey, countingDelivery(&calls, nil))
		assert.ErrorIs(t, err, ErrDeliveryInFlight)
		assert.Equal(t, OutcomeInFlight, outcome)
		assert.Zero(t, calls.Load())

		clock.Advance(time.Minute)
		outcome, err = g.Run(ctx, refundKey, countingDelivery(&calls, nil))
		require.NoError(t, err)
		assert.Equal(t, OutcomeDelivered, outcome)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("cancelled caller still records the delivery", func(t *testing.T) {
		store, _ := newClockedStore(t)
		g := NewDeliveryGuard(store, time.Hour, time.Minute)
		cctx, cancel := context.WithCancel(ctx)

		_, err := g.Run(cctx, refundKey, func(context.Context) error {
			cancel()
			return nil
		})
		require.NoError(t, err)

		done, err := store.IsProcessed(ctx, refundKey)
		require.NoError(t, err)
		assert.True(t, done)
	})

	t.Run("unreachable store delivers anyway", func(t *testing.T) {
		g := NewDeliveryGuard(unreachableStore{}, time.Hour, 0)
		var calls atomic.Int32

		outcome, err := g.Run(ctx, refundKey, countingDelivery(&calls, nil))
		require.NoError(t, err)
		assert.Equal(t, OutcomeStoreError, outcome)
		assert.Equal(t, int32(1), calls.Load())
	})
}

func TestDeliveryGuard_ConcurrentAttempts(t *testing.T) {
	store, _ := newClockedStore(t)
	g := NewDeliveryGuard(store, time.Hour, time.Minute)
	var calls atomic.Int32

	const attempts = 32
	var wg sync.WaitGroup
	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := g.Run(context.Background(), refundKey, countingDelivery(&calls, nil))
			switch outcome {
			case OutcomeInFlight:
				assert.ErrorIs(t, err, ErrDeliveryInFlight)
			default:
				assert.NoError(t, err)
				assert.Contains(t, []Outcome{OutcomeDelivered, OutcomeDuplicate}, outcome)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

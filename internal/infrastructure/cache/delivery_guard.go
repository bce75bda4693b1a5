package cache

import (
	"context"
	"errors"
	"time"

	"github.com/erp/returns/internal/domain/shared"
)

// ErrDeliveryInFlight is returned while another attempt holds the lease for a
// key. It is retryable: the lease expires even if its holder died.
var ErrDeliveryInFlight = errors.New("delivery already in flight")

// DefaultLeaseTTL bounds how long a crashed attempt blocks the next one
const DefaultLeaseTTL = 2 * time.Minute

// Outcome of a guarded delivery
type Outcome string

const (
	OutcomeDelivered  Outcome = "processed"
	OutcomeDuplicate  Outcome = "duplicate"
	OutcomeInFlight   Outcome = "in_flight"
	OutcomeFailed     Outcome = "failed"
	OutcomeStoreError Outcome = "store_error"
)

// DeliveryGuard runs a delivery at most once per key without ever mistaking
// an interrupted attempt for a completed one. An attempt first takes a short
// lease, and only a successful delivery records the key as done. The lease
// is dropped on every exit, panics included, and one abandoned by a crash
// simply expires.
type DeliveryGuard struct {
	store shared.IdempotencyStore
	ttl   time.Duration
	lease time.Duration
}

// NewDeliveryGuard remembers delivered keys for ttl. A lease of zero uses
// DefaultLeaseTTL.
func NewDeliveryGuard(store shared.IdempotencyStore, ttl, lease time.Duration) *DeliveryGuard {
	if lease <= 0 {
		lease = DefaultLeaseTTL
	}
	return &DeliveryGuard{store: store, ttl: ttl, lease: lease}
}

// LeaseKey is the key held while key is being delivered
func LeaseKey(key string) string {
	return key + ":lease"
}

// Run calls deliver unless key was already delivered. When the store is
// unreachable the delivery still happens and the outcome is
// OutcomeStoreError; receivers deduplicate on their side as well.
func (g *DeliveryGuard) Run(ctx context.Context, key string, deliver func(context.Context) error) (Outcome, error) {
	leased, err := g.store.MarkProcessed(ctx, LeaseKey(key), g.lease)
	if err != nil {
		if derr := deliver(ctx); derr != nil {
			return OutcomeFailed, derr
		}
		return OutcomeStoreError, nil
	}
	if !leased {
		if done, _ := g.store.IsProcessed(ctx, key); done {
			return OutcomeDuplicate, nil
		}
		return OutcomeInFlight, ErrDeliveryInFlight
	}
	defer func() {
		_ = g.store.Release(context.WithoutCancel(ctx), LeaseKey(key))
	}()

	// the previous holder may have finished between our lease and its release
	if done, err := g.store.IsProcessed(ctx, key); err == nil && done {
		return OutcomeDuplicate, nil
	}
	if err := deliver(ctx); err != nil {
		return OutcomeFailed, err
	}
	if _, err := g.store.MarkProcessed(context.WithoutCancel(ctx), key, g.ttl); err != nil {
		// delivered; a redelivery may repeat it and the receiver absorbs that
		return OutcomeStoreError, nil
	}
	return OutcomeDelivered, nil
}

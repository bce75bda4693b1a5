package settlement

import (
	"context"
	"time"

	"github.com/erp/returns/internal/domain/returns"
	"github.com/erp/returns/internal/domain/shared"
	"github.com/erp/returns/internal/infrastructure/cache"
	"go.uber.org/zap"
)

// DefaultDedupeTTL is how long a delivered key is remembered
const DefaultDedupeTTL = 7 * 24 * time.Hour

// DedupeNotifier suppresses repeated deliveries of the same refund or
// notification. Only a delivery the inner notifier acknowledged marks its
// key; an attempt that failed, panicked or died with the process leaves the
// key free for the outbox retry.
type DedupeNotifier struct {
	inner  returns.SettlementNotifier
	guard  *cache.DeliveryGuard
	logger *zap.Logger
}

// DedupeOption configures a DedupeNotifier
type DedupeOption func(*dedupeOptions)

type dedupeOptions struct {
	lease time.Duration
}

// WithLease sets how long one attempt holds a key; it must outlast the
// transport timeout
func WithLease(d time.Duration) DedupeOption {
	return func(o *dedupeOptions) { o.lease = d }
}

// NewDedupeNotifier wraps inner with key-based deduplication
func NewDedupeNotifier(inner returns.SettlementNotifier, store shared.IdempotencyStore, ttl time.Duration, logger *zap.Logger, opts ...DedupeOption) *DedupeNotifier {
	if ttl <= 0 {
		ttl = DefaultDedupeTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var o dedupeOptions
	for _, opt := range opts {
		opt(&o)
	}
	return &DedupeNotifier{
		inner:  inner,
		guard:  cache.NewDeliveryGuard(store, ttl, o.lease),
		logger: logger,
	}
}

// RequestRefund delivers the refund until one attempt per return request succeeds
func (d *DedupeNotifier) RequestRefund(ctx context.Context, cmd returns.RefundCommand) error {
	return d.once(ctx, RefundKey(cmd.ReturnRequestID), func(ctx context.Context) error {
		return d.inner.RequestRefund(ctx, cmd)
	})
}

// Notify delivers a notification until one attempt per notification id succeeds
func (d *DedupeNotifier) Notify(ctx context.Context, msg returns.Notification) error {
	return d.once(ctx, NotificationKey(msg.ID), func(ctx context.Context) error {
		return d.inner.Notify(ctx, msg)
	})
}

func (d *DedupeNotifier) once(ctx context.Context, key string, deliver func(context.Context) error) error {
	outcome, err := d.guard.Run(ctx, key, deliver)
	switch outcome {
	case cache.OutcomeDuplicate:
		d.logger.Debug("Skipping duplicate settlement delivery", zap.String("key", key))
	case cache.OutcomeInFlight:
		d.logger.Info("Settlement delivery in flight elsewhere", zap.String("key", key))
	case cache.OutcomeStoreError:
		d.logger.Warn("Dedupe store unavailable, delivered without dedupe", zap.String("key", key))
	}
	return err
}

var _ returns.SettlementNotifier = (*DedupeNotifier)(nil)

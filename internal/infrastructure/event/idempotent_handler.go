package event

import (
	"context"

	"github.com/erp/returns/internal/domain/shared"
	"github.com/erp/returns/internal/infrastructure/cache"
	"go.uber.org/zap"
)

// Dedupe outcomes reported to a DedupeObserver
const (
	DedupeProcessed  = string(cache.OutcomeDelivered)
	DedupeDuplicate  = string(cache.OutcomeDuplicate)
	DedupeInFlight   = string(cache.OutcomeInFlight)
	DedupeFailed     = string(cache.OutcomeFailed)
	DedupeStoreError = string(cache.OutcomeStoreError)
)

// DedupeObserver receives one outcome per handled event
type DedupeObserver interface {
	ObserveDedupe(handler, outcome string)
}

// IdempotentHandler hands each event id to the wrapped handler until one
// attempt succeeds, and skips it afterwards. The outbox redelivers after
// crashes and lost acknowledgements; an attempt cut short by a panic or a
// crash never counts as handled.
type IdempotentHandler struct {
	name     string
	handler  shared.EventHandler
	store    shared.IdempotencyStore
	config   shared.IdempotencyConfig
	guard    *cache.DeliveryGuard
	logger   *zap.Logger
	observer DedupeObserver
}

// IdempotentHandlerOption configures an IdempotentHandler
type IdempotentHandlerOption func(*IdempotentHandler)

// WithIdempotencyConfig overrides the key TTL or disables the check
func WithIdempotencyConfig(config shared.IdempotencyConfig) IdempotentHandlerOption {
	return func(h *IdempotentHandler) {
		h.config = config
	}
}

// WithHandlerName sets the name used in keys, logs and metrics
func WithHandlerName(name string) IdempotentHandlerOption {
	return func(h *IdempotentHandler) {
		h.name = name
	}
}

// WithDedupeObserver reports outcomes to observer
func WithDedupeObserver(observer DedupeObserver) IdempotentHandlerOption {
	return func(h *IdempotentHandler) {
		h.observer = observer
	}
}

// NewIdempotentHandler wraps handler with an idempotency check against store
func NewIdempotentHandler(
	handler shared.EventHandler,
	store shared.IdempotencyStore,
	logger *zap.Logger,
	opts ...IdempotentHandlerOption,
) *IdempotentHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &IdempotentHandler{
		name:    "handler",
		handler: handler,
		store:   store,
		config:  shared.DefaultIdempotencyConfig(),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.guard = cache.NewDeliveryGuard(store, h.config.TTL, h.config.LeaseTTL)
	return h
}

// Name returns the handler name given with WithHandlerName
func (h *IdempotentHandler) Name() string {
	return h.name
}

// EventTypes returns the wrapped handler's event types
func (h *IdempotentHandler) EventTypes() []string {
	return h.handler.EventTypes()
}

// Key returns the idempotency key claimed for event. Keys are namespaced by
// handler so two handlers subscribed to the same event do not shadow each other.
func (h *IdempotentHandler) Key(event shared.DomainEvent) string {
	return "event:" + h.name + ":" + event.EventID().String()
}

// Handle processes event unless an earlier attempt already succeeded. A
// store failure does not block delivery; the wrapped handler is expected to
// be safe against the rare duplicate that lets through.
func (h *IdempotentHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	if !h.config.Enabled {
		return h.handler.Handle(ctx, event)
	}

	log := h.logger.With(
		zap.String("handler", h.name),
		zap.String("event_id", event.EventID().String()),
		zap.String("event_type", event.EventType()),
	)
	outcome, err := h.guard.Run(ctx, h.Key(event), func(ctx context.Context) error {
		return h.handler.Handle(ctx, event)
	})
	h.observe(string(outcome))

	switch outcome {
	case cache.OutcomeDuplicate:
		log.Debug("duplicate event skipped")
	case cache.OutcomeInFlight:
		log.Info("event is being handled by another attempt, deferring")
	case cache.OutcomeStoreError:
		log.Warn("idempotency store unavailable, handled without dedupe")
	case cache.OutcomeFailed:
		log.Error("event handler failed", zap.Error(err))
	}
	return err
}

func (h *IdempotentHandler) observe(outcome string) {
	if h.observer != nil {
		h.observer.ObserveDedupe(h.name, outcome)
	}
}

var _ shared.EventHandler = (*IdempotentHandler)(nil)

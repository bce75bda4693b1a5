package event

import (
	"context"
	"errors"
	"fmt"

	"github.com/erp/returns/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Named is implemented by handlers that carry a stable name for logs and errors
type Named interface {
	Name() string
}

func handlerName(h shared.EventHandler) string {
	if n, ok := h.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", h)
}

// DeliveryError is one handler failing one event
type DeliveryError struct {
	Handler   string
	EventID   uuid.UUID
	EventType string
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s failed on %s %s: %v", e.Handler, e.EventType, e.EventID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// InMemoryEventBus fans outbox events out to in-process handlers. Delivery is
// synchronous so the outbox processor learns whether to mark an entry sent.
type InMemoryEventBus struct {
	registry *HandlerRegistry
	logger   *zap.Logger
}

func NewInMemoryEventBus(logger *zap.Logger) *InMemoryEventBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InMemoryEventBus{registry: NewHandlerRegistry(), logger: logger.Named("bus")}
}

// Publish runs every subscriber of every event, even after a failure, and
// returns the failures joined as *DeliveryError values.
func (b *InMemoryEventBus) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	var errs []error
	for _, event := range events {
		handlers := b.registry.GetHandlers(event.EventType())
		if len(handlers) == 0 {
			b.logger.Warn("no handler subscribed",
				zap.String("event_type", event.EventType()),
				zap.String("event_id", event.EventID().String()),
			)
			continue
		}
		for _, h := range handlers {
			if err := b.deliver(ctx, h, event); err != nil {
				b.logger.Error("event delivery failed",
					zap.String("handler", handlerName(h)),
					zap.String("event_type", event.EventType()),
					zap.String("event_id", event.EventID().String()),
					zap.String("return_request_id", event.AggregateID().String()),
					zap.Error(err),
				)
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (b *InMemoryEventBus) deliver(ctx context.Context, h shared.EventHandler, event shared.DomainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panicked: %v", r)
		}
		if err != nil {
			err = &DeliveryError{Handler: handlerName(h), EventID: event.EventID(), EventType: event.EventType(), Err: err}
		}
	}()
	return h.Handle(ctx, event)
}

// Subscribe registers h for eventTypes, or for h.EventTypes() when none are given
func (b *InMemoryEventBus) Subscribe(h shared.EventHandler, eventTypes ...string) {
	if len(eventTypes) == 0 {
		eventTypes = h.EventTypes()
	}
	b.registry.Register(h, eventTypes...)
	b.logger.Debug("handler subscribed",
		zap.String("handler", handlerName(h)),
		zap.Strings("event_types", eventTypes),
	)
}

func (b *InMemoryEventBus) Unsubscribe(h shared.EventHandler) {
	b.registry.Unregister(h)
}

// Subscriptions lists the event types with at least one typed handler
func (b *InMemoryEventBus) Subscriptions() []string {
	return b.registry.EventTypes()
}

var _ shared.EventPublisher = (*InMemoryEventBus)(nil)

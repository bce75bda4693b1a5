package shared

import "context"

// EventHandler reacts to domain events delivered from the outbox
type EventHandler interface {
	Handle(ctx context.Context, event DomainEvent) error
	// EventTypes lists the subscribed types; none means every type
	EventTypes() []string
}

// EventPublisher hands events to their subscribers. A non-nil error means at
// least one subscriber failed and the outbox entry stays due for retry.
type EventPublisher interface {
	Publish(ctx context.Context, events ...DomainEvent) error
}

// OutboxEventSaver stages events in the outbox inside the caller's
// transaction, so a status change and its events commit together. tx is
// backend specific: *gorm.DB for the SQL store, nil for the in-memory one.
type OutboxEventSaver interface {
	SaveEvents(ctx context.Context, tx any, events ...DomainEvent) error
}

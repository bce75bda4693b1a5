package event

import (
	"context"
	"fmt"

	"github.com/erp/returns/internal/domain/shared"
	"gorm.io/gorm"
)

// OutboxPublisher writes domain events to the outbox inside the caller's write
type OutboxPublisher struct {
	serializer *EventSerializer
	clock      shared.Clock
	maxRetries int
	memory     shared.OutboxRepository
	onSaved    func()
}

// OutboxPublisherOption configures an OutboxPublisher
type OutboxPublisherOption func(*OutboxPublisher)

// WithMaxRetries overrides the delivery attempts recorded on new entries
func WithMaxRetries(n int) OutboxPublisherOption {
	return func(p *OutboxPublisher) {
		if n > 0 {
			p.maxRetries = n
		}
	}
}

// WithMemoryOutbox sets the repository used when the caller has no SQL transaction
func WithMemoryOutbox(repo shared.OutboxRepository) OutboxPublisherOption {
	return func(p *OutboxPublisher) { p.memory = repo }
}

// WithSavedHook registers a callback run after entries are staged, typically
// OutboxProcessor.Notify.
func WithSavedHook(fn func()) OutboxPublisherOption {
	return func(p *OutboxPublisher) { p.onSaved = fn }
}

// NewOutboxPublisher creates a new outbox publisher
func NewOutboxPublisher(serializer *EventSerializer, clock shared.Clock, opts ...OutboxPublisherOption) *OutboxPublisher {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	p := &OutboxPublisher{
		serializer: serializer,
		clock:      clock,
		maxRetries: shared.DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *OutboxPublisher) entries(events []shared.DomainEvent) ([]*shared.OutboxEntry, error) {
	now := p.clock.Now()
	entries := make([]*shared.OutboxEntry, 0, len(events))
	for _, event := range events {
		payload, err := p.serializer.Serialize(event)
		if err != nil {
			return nil, fmt.Errorf("serialize %s: %w", event.EventType(), err)
		}
		entry := shared.NewOutboxEntry(event, payload, now)
		entry.MaxRetries = p.maxRetries
		entries = append(entries, entry)
	}
	return entries, nil
}

// PublishWithTx stages events in the outbox table within the provided transaction
func (p *OutboxPublisher) PublishWithTx(ctx context.Context, tx *gorm.DB, events ...shared.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}
	entries, err := p.entries(events)
	if err != nil {
		return err
	}
	if err := NewGormOutboxRepository(tx, p.clock).Save(ctx, entries...); err != nil {
		return err
	}
	p.saved()
	return nil
}

// SaveEvents implements shared.OutboxEventSaver. A *gorm.DB transaction goes to
// the outbox table; a nil handle goes to the in-memory outbox.
func (p *OutboxPublisher) SaveEvents(ctx context.Context, txProvider interface{}, events ...shared.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}

	switch tx := txProvider.(type) {
	case *gorm.DB:
		return p.PublishWithTx(ctx, tx, events...)
	case nil:
		if p.memory == nil {
			return fmt.Errorf("no transaction given and no in-memory outbox configured")
		}
		entries, err := p.entries(events)
		if err != nil {
			return err
		}
		if err := p.memory.Save(ctx, entries...); err != nil {
			return err
		}
		p.saved()
		return nil
	default:
		return fmt.Errorf("txProvider must be a *gorm.DB, got %T", txProvider)
	}
}

func (p *OutboxPublisher) saved() {
	if p.onSaved != nil {
		p.onSaved()
	}
}

var _ shared.OutboxEventSaver = (*OutboxPublisher)(nil)

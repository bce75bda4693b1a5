package shared

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// BaseEntity holds the identity and clock stamps every persisted type shares
type BaseEntity struct {
	ID        uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewBaseEntity assigns a fresh id and stamps both times with now
func NewBaseEntity(now time.Time) BaseEntity {
	return BaseEntity{ID: uuid.New(), CreatedAt: now, UpdatedAt: now}
}

// Touch records a modification at now
func (e *BaseEntity) Touch(now time.Time) {
	e.UpdatedAt = now
}

// BaseAggregateRoot adds the compare-and-swap version and the events raised
// since the aggregate was loaded. Repositories stage those events in the
// outbox inside the write transaction, then clear them.
type BaseAggregateRoot struct {
	BaseEntity
	// Version is the value a writer must still find in storage for its write to land
	Version int
	pending []DomainEvent
}

// NewBaseAggregateRoot starts a new aggregate at version 1
func NewBaseAggregateRoot(now time.Time) BaseAggregateRoot {
	return BaseAggregateRoot{BaseEntity: NewBaseEntity(now), Version: 1}
}

// AddDomainEvent queues event for the next save
func (a *BaseAggregateRoot) AddDomainEvent(event DomainEvent) {
	a.pending = append(a.pending, event)
}

// GetDomainEvents returns a copy of the queued events in the order raised
func (a *BaseAggregateRoot) GetDomainEvents() []DomainEvent {
	return slices.Clone(a.pending)
}

// ClearDomainEvents drops the queue once the events are stored
func (a *BaseAggregateRoot) ClearDomainEvents() {
	a.pending = nil
}

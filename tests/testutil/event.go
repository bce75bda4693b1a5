package testutil

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/erp/returns/internal/domain/returns"
	"github.com/erp/returns/internal/domain/shared"
)

// EventRecorder is a shared.EventHandler that keeps every event it receives.
// Failures queued with FailNext are returned in order before it succeeds again.
type EventRecorder struct {
	mu       sync.Mutex
	types    []string
	events   []shared.DomainEvent
	failures []error
}

func NewEventRecorder(eventTypes ...string) *EventRecorder {
	return &EventRecorder{types: eventTypes}
}

func (r *EventRecorder) EventTypes() []string {
	return r.types
}

// Handle records event, then pops a queued failure if there is one. Failed
// deliveries are recorded too so tests can count outbox retries.
func (r *EventRecorder) Handle(_ context.Context, event shared.DomainEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	if len(r.failures) == 0 {
		return nil
	}
	err := r.failures[0]
	r.failures = r.failures[1:]
	return err
}

// FailNext makes the next n deliveries return err
func (r *EventRecorder) FailNext(err error, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for range n {
		r.failures = append(r.failures, err)
	}
}

func (r *EventRecorder) Events() []shared.DomainEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

func (r *EventRecorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// OfType returns received events of eventType in arrival order
func (r *EventRecorder) OfType(eventType string) []shared.DomainEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []shared.DomainEvent
	for _, e := range r.events {
		if e.EventType() == eventType {
			out = append(out, e)
		}
	}
	return out
}

// AggregateIDs lists the return request ids seen, deduplicated
func (r *EventRecorder) AggregateIDs() []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []uuid.UUID
	for _, e := range r.events {
		if !slices.Contains(ids, e.AggregateID()) {
			ids = append(ids, e.AggregateID())
		}
	}
	return ids
}

func (r *EventRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
	r.failures = nil
}

// StubEvent is a return request event without a payload, for bus and outbox tests
type StubEvent struct {
	shared.BaseDomainEvent
}

// NewStubEvent creates an event of eventType for a fresh return request in storeID
func NewStubEvent(eventType string, storeID uuid.UUID) *StubEvent {
	return NewStubEventFor(eventType, storeID, uuid.New())
}

// NewStubEventFor creates an event of eventType for returnID
func NewStubEventFor(eventType string, storeID, returnID uuid.UUID) *StubEvent {
	return &StubEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, returns.AggregateTypeReturnRequest, returnID, storeID, time.Now().UTC()),
	}
}

// AssertEventCount waits up to timeout for rec to hold at least n events
func AssertEventCount(t *testing.T, rec *EventRecorder, n int, timeout time.Duration) bool {
	t.Helper()
	return assert.Eventually(t, func() bool { return rec.Count() >= n }, timeout, 10*time.Millisecond,
		"expected at least %d events", n)
}

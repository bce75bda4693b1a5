package shared

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

// OutboxStatus is the delivery state of an outbox row
type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "PENDING"
	OutboxStatusProcessing OutboxStatus = "PROCESSING"
	OutboxStatusSent       OutboxStatus = "SENT"
	OutboxStatusFailed     OutboxStatus = "FAILED"
	OutboxStatusDead       OutboxStatus = "DEAD"
)

// outboxMoves lists the statuses each status may move to
var outboxMoves = map[OutboxStatus][]OutboxStatus{
	OutboxStatusPending:    {OutboxStatusProcessing},
	OutboxStatusFailed:     {OutboxStatusProcessing},
	OutboxStatusProcessing: {OutboxStatusSent, OutboxStatusFailed, OutboxStatusDead},
	OutboxStatusDead:       {OutboxStatusPending},
}

// ErrOutboxTransition is wrapped by every refused status change
var ErrOutboxTransition = NewDomainError("OUTBOX_TRANSITION", "outbox entry cannot move to that status")

const (
	DefaultMaxRetries  = 10
	DefaultBaseBackoff = time.Second
	DefaultMaxBackoff  = 30 * time.Minute
)

// RetryPolicy spaces out redeliveries of a failing entry: the delay doubles
// per attempt starting at Base and never exceeds Max.
type RetryPolicy struct {
	Base time.Duration
	Max  time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Base: DefaultBaseBackoff, Max: DefaultMaxBackoff}
}

// Delay returns the wait before attempt n+1, n counting from 1
func (p RetryPolicy) Delay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	// past 2^32 any sane base has long exceeded Max
	if n > 32 {
		return p.Max
	}
	d := p.Base << uint(n-1)
	if d <= 0 || d > p.Max {
		return p.Max
	}
	return d
}

// OutboxEntry is a domain event waiting to be delivered to the Settlement
// Notifier. It is written in the same transaction as the status change that
// raised the event.
type OutboxEntry struct {
	ID            uuid.UUID
	StoreID       uuid.UUID
	EventID       uuid.UUID
	EventType     string
	AggregateID   uuid.UUID
	AggregateType string
	Payload       []byte
	Status        OutboxStatus
	RetryCount    int
	MaxRetries    int
	LastError     string
	NextRetryAt   *time.Time
	ProcessedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewOutboxEntry stages event with its serialized payload
func NewOutboxEntry(event DomainEvent, payload []byte, now time.Time) *OutboxEntry {
	return &OutboxEntry{
		ID:            uuid.New(),
		StoreID:       event.StoreID(),
		EventID:       event.EventID(),
		EventType:     event.EventType(),
		AggregateID:   event.AggregateID(),
		AggregateType: event.AggregateType(),
		Payload:       payload,
		Status:        OutboxStatusPending,
		MaxRetries:    DefaultMaxRetries,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (e *OutboxEntry) moveTo(next OutboxStatus, now time.Time) error {
	if !slices.Contains(outboxMoves[e.Status], next) {
		return fmt.Errorf("%w: %s to %s", ErrOutboxTransition, e.Status, next)
	}
	e.Status = next
	e.UpdatedAt = now
	return nil
}

// CanRetry reports whether a failed entry still has attempts left
func (e *OutboxEntry) CanRetry() bool {
	return e.Status == OutboxStatusFailed && e.RetryCount < e.MaxRetries
}

// DueAt reports whether a pending or failed entry should be delivered at now
func (e *OutboxEntry) DueAt(now time.Time) bool {
	switch e.Status {
	case OutboxStatusPending:
		return true
	case OutboxStatusFailed:
		return e.NextRetryAt == nil || !e.NextRetryAt.After(now)
	}
	return false
}

// MarkProcessing claims a pending or failed entry for delivery
func (e *OutboxEntry) MarkProcessing(now time.Time) error {
	return e.moveTo(OutboxStatusProcessing, now)
}

// MarkSent records a delivery the notifier accepted
func (e *OutboxEntry) MarkSent(now time.Time) {
	e.Status = OutboxStatusSent
	e.ProcessedAt = &now
	e.UpdatedAt = now
}

// MarkFailed records a failed delivery under DefaultRetryPolicy
func (e *OutboxEntry) MarkFailed(errMsg string, now time.Time) {
	e.MarkFailedWith(DefaultRetryPolicy(), errMsg, now)
}

// MarkFailedWith records a failed delivery and schedules the next one.
// The attempt that reaches MaxRetries turns the entry into a dead letter.
func (e *OutboxEntry) MarkFailedWith(policy RetryPolicy, errMsg string, now time.Time) {
	e.RetryCount++
	e.LastError = errMsg
	e.UpdatedAt = now
	if e.RetryCount >= e.MaxRetries {
		e.Status = OutboxStatusDead
		e.NextRetryAt = nil
		return
	}
	e.Status = OutboxStatusFailed
	next := now.Add(policy.Delay(e.RetryCount))
	e.NextRetryAt = &next
}

// ResetForRetry gives a dead letter a fresh set of attempts
func (e *OutboxEntry) ResetForRetry(now time.Time) error {
	if err := e.moveTo(OutboxStatusPending, now); err != nil {
		return err
	}
	e.RetryCount = 0
	e.LastError = ""
	e.NextRetryAt = nil
	return nil
}

func (e *OutboxEntry) IsDead() bool {
	return e.Status == OutboxStatusDead
}

// OutboxRepository stores outbox entries for the processor and the admin endpoints
type OutboxRepository interface {
	Save(ctx context.Context, entries ...*OutboxEntry) error
	FindPending(ctx context.Context, limit int) ([]*OutboxEntry, error)
	// FindRetryable returns failed entries whose next attempt is at or before before
	FindRetryable(ctx context.Context, before time.Time, limit int) ([]*OutboxEntry, error)
	FindDead(ctx context.Context, page, pageSize int) ([]*OutboxEntry, int64, error)
	FindByID(ctx context.Context, id uuid.UUID) (*OutboxEntry, error)
	// MarkProcessing claims the given entries and returns only those this
	// caller won, so two processors never deliver the same entry at once
	MarkProcessing(ctx context.Context, ids []uuid.UUID) ([]*OutboxEntry, error)
	Update(ctx context.Context, entry *OutboxEntry) error
	// DeleteOlderThan purges sent entries processed before before
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
	// ReleaseStale puts entries claimed before cutoff back to PENDING. A
	// processor that dies mid-batch leaves its claims behind.
	ReleaseStale(ctx context.Context, cutoff time.Time) (int64, error)
	CountByStatus(ctx context.Context) (map[OutboxStatus]int64, error)
}

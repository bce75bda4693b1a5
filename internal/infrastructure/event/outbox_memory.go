package event

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/erp/returns/internal/domain/shared"
	"github.com/google/uuid"
)

// InMemoryOutboxRepository keeps outbox entries in process memory. It backs
// the in-memory return request store so the relay works without a database.
type InMemoryOutboxRepository struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*shared.OutboxEntry
	clock   shared.Clock
}

// NewInMemoryOutboxRepository creates an empty in-memory outbox
func NewInMemoryOutboxRepository(clock shared.Clock) *InMemoryOutboxRepository {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	return &InMemoryOutboxRepository{
		entries: make(map[uuid.UUID]*shared.OutboxEntry),
		clock:   clock,
	}
}

func copyEntry(e *shared.OutboxEntry) *shared.OutboxEntry {
	c := *e
	c.Payload = append([]byte(nil), e.Payload...)
	return &c
}

// Save stores copies of the entries
func (r *InMemoryOutboxRepository) Save(_ context.Context, entries ...*shared.OutboxEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range entries {
		r.entries[e.ID] = copyEntry(e)
	}
	return nil
}

func (r *InMemoryOutboxRepository) collect(match func(*shared.OutboxEntry) bool, less func(a, b *shared.OutboxEntry) bool, limit int) []*shared.OutboxEntry {
	r.mu.Lock()
	result := make([]*shared.OutboxEntry, 0)
	for _, e := range r.entries {
		if match(e) {
			result = append(result, copyEntry(e))
		}
	}
	r.mu.Unlock()

	sort.Slice(result, func(i, j int) bool { return less(result[i], result[j]) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

// FindPending retrieves pending entries, oldest first
func (r *InMemoryOutboxRepository) FindPending(_ context.Context, limit int) ([]*shared.OutboxEntry, error) {
	return r.collect(
		func(e *shared.OutboxEntry) bool { return e.Status == shared.OutboxStatusPending },
		func(a, b *shared.OutboxEntry) bool { return a.CreatedAt.Before(b.CreatedAt) },
		limit,
	), nil
}

// FindRetryable retrieves failed entries due before the given time
func (r *InMemoryOutboxRepository) FindRetryable(_ context.Context, before time.Time, limit int) ([]*shared.OutboxEntry, error) {
	return r.collect(
		func(e *shared.OutboxEntry) bool {
			return e.Status == shared.OutboxStatusFailed && e.NextRetryAt != nil && e.DueAt(before)
		},
		func(a, b *shared.OutboxEntry) bool { return a.NextRetryAt.Before(*b.NextRetryAt) },
		limit,
	), nil
}

// FindDead retrieves dead letter entries, most recently failed first
func (r *InMemoryOutboxRepository) FindDead(_ context.Context, page, pageSize int) ([]*shared.OutboxEntry, int64, error) {
	dead := r.collect(
		func(e *shared.OutboxEntry) bool { return e.Status == shared.OutboxStatusDead },
		func(a, b *shared.OutboxEntry) bool { return a.UpdatedAt.After(b.UpdatedAt) },
		0,
	)
	total := int64(len(dead))
	if page < 1 {
		page = 1
	}
	start := (page - 1) * pageSize
	if start >= len(dead) {
		return []*shared.OutboxEntry{}, total, nil
	}
	end := start + pageSize
	if end > len(dead) {
		end = len(dead)
	}
	return dead[start:end], total, nil
}

// FindByID retrieves a single entry
func (r *InMemoryOutboxRepository) FindByID(_ context.Context, id uuid.UUID) (*shared.OutboxEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, ErrOutboxEntryNotFound
	}
	return copyEntry(e), nil
}

// MarkProcessing claims pending or failed entries
func (r *InMemoryOutboxRepository) MarkProcessing(_ context.Context, ids []uuid.UUID) ([]*shared.OutboxEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	claimed := make([]*shared.OutboxEntry, 0, len(ids))
	for _, id := range ids {
		e, ok := r.entries[id]
		if !ok {
			continue
		}
		if err := e.MarkProcessing(now); err != nil {
			continue
		}
		claimed = append(claimed, copyEntry(e))
	}
	return claimed, nil
}

// Update replaces the stored entry
func (r *InMemoryOutboxRepository) Update(_ context.Context, entry *shared.OutboxEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[entry.ID]; !ok {
		return ErrOutboxEntryNotFound
	}
	r.entries[entry.ID] = copyEntry(entry)
	return nil
}

// DeleteOlderThan drops sent entries processed before the given time
func (r *InMemoryOutboxRepository) DeleteOlderThan(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var deleted int64
	for id, e := range r.entries {
		if e.Status == shared.OutboxStatusSent && e.ProcessedAt != nil && e.ProcessedAt.Before(before) {
			delete(r.entries, id)
			deleted++
		}
	}
	return deleted, nil
}

// ReleaseStale returns abandoned claims to PENDING
func (r *InMemoryOutboxRepository) ReleaseStale(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clock.Now()
	var released int64
	for _, e := range r.entries {
		if e.Status == shared.OutboxStatusProcessing && e.UpdatedAt.Before(cutoff) {
			e.Status = shared.OutboxStatusPending
			e.UpdatedAt = now
			released++
		}
	}
	return released, nil
}

// CountByStatus returns count of entries for each status
func (r *InMemoryOutboxRepository) CountByStatus(_ context.Context) (map[shared.OutboxStatus]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[shared.OutboxStatus]int64)
	for _, e := range r.entries {
		counts[e.Status]++
	}
	return counts, nil
}

var _ shared.OutboxRepository = (*InMemoryOutboxRepository)(nil)

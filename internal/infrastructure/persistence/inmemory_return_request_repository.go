package persistence

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/erp/returns/internal/domain/returns"
	"github.com/erp/returns/internal/domain/shared"
	"github.com/google/uuid"
)

// InMemoryReturnRequestRepository is a mutex-guarded returns.Repository used by
// tests and single-process deployments. Reads return copies, so callers never
// observe a half-applied mutation.
type InMemoryReturnRequestRepository struct {
	mu       sync.Mutex
	requests map[uuid.UUID]*returns.ReturnRequest
	active   map[string]uuid.UUID
	outbox   shared.OutboxEventSaver
}

// NewInMemoryReturnRequestRepository creates an empty store. outbox may be nil.
func NewInMemoryReturnRequestRepository(outbox shared.OutboxEventSaver) *InMemoryReturnRequestRepository {
	return &InMemoryReturnRequestRepository{
		requests: make(map[uuid.UUID]*returns.ReturnRequest),
		active:   make(map[string]uuid.UUID),
		outbox:   outbox,
	}
}

// Create inserts a new request
func (s *InMemoryReturnRequestRepository) Create(ctx context.Context, rr *returns.ReturnRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.requests[rr.ID]; exists {
		return shared.ErrAlreadyExists
	}
	if !rr.IsTerminal() {
		if _, taken := s.active[rr.ActiveKey()]; taken {
			return returns.ErrDuplicateActiveReturn
		}
	}
	if err := s.saveEvents(ctx, rr); err != nil {
		return err
	}
	s.requests[rr.ID] = cloneReturnRequest(rr)
	if !rr.IsTerminal() {
		s.active[rr.ActiveKey()] = rr.ID
	}
	rr.ClearDomainEvents()
	return nil
}

// Get loads a copy of the request
func (s *InMemoryReturnRequestRepository) Get(_ context.Context, id uuid.UUID) (*returns.ReturnRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.requests[id]
	if !ok {
		return nil, returns.ErrReturnRequestNotFound
	}
	return cloneReturnRequest(stored), nil
}

// CompareAndSwapStatus applies mutate under the store lock if the status still matches
func (s *InMemoryReturnRequestRepository) CompareAndSwapStatus(ctx context.Context, id uuid.UUID, expected returns.Status, mutate returns.Mutation) (*returns.ReturnRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.requests[id]
	if !ok {
		return nil, returns.ErrReturnRequestNotFound
	}
	if stored.Status != expected {
		return nil, returns.ErrStaleState
	}

	working := cloneReturnRequest(stored)
	if err := mutate(working); err != nil {
		return nil, err
	}
	if !expected.CanTransitionTo(working.Status) {
		return nil, returns.NewInvalidTransitionError("move", expected)
	}
	working.Version = stored.Version + 1

	if err := s.saveEvents(ctx, working); err != nil {
		return nil, err
	}
	working.ClearDomainEvents()

	if working.IsTerminal() {
		delete(s.active, stored.ActiveKey())
	}
	s.requests[id] = working
	return cloneReturnRequest(working), nil
}

func (s *InMemoryReturnRequestRepository) saveEvents(ctx context.Context, rr *returns.ReturnRequest) error {
	events := rr.GetDomainEvents()
	if s.outbox == nil || len(events) == 0 {
		return nil
	}
	return s.outbox.SaveEvents(ctx, nil, events...)
}

// ListByStore returns one page of a store's requests and the total count
func (s *InMemoryReturnRequestRepository) ListByStore(_ context.Context, storeID uuid.UUID, filter returns.ListFilter) ([]*returns.ReturnRequest, int64, error) {
	filter.Normalize(100)

	s.mu.Lock()
	matched := make([]*returns.ReturnRequest, 0)
	for _, rr := range s.requests {
		if rr.StoreID == storeID && matchesListFilter(rr, filter) {
			matched = append(matched, cloneReturnRequest(rr))
		}
	}
	s.mu.Unlock()

	slices.SortStableFunc(matched, parseReturnSort(filter).compare)

	total := int64(len(matched))
	start := filter.Offset()
	if start >= len(matched) {
		return []*returns.ReturnRequest{}, total, nil
	}
	end := start + filter.PageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func matchesListFilter(rr *returns.ReturnRequest, f returns.ListFilter) bool {
	if len(f.Statuses) > 0 {
		found := false
		for _, st := range f.Statuses {
			if rr.Status == st {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.ReasonType != "" && rr.ReasonType != f.ReasonType {
		return false
	}
	if f.AutoRefunded != nil && rr.AutoRefunded != *f.AutoRefunded {
		return false
	}
	if f.CustomerID != nil && rr.CustomerID != *f.CustomerID {
		return false
	}
	if f.CreatedFrom != nil && rr.CreatedAt.Before(*f.CreatedFrom) {
		return false
	}
	if f.CreatedTo != nil && !rr.CreatedAt.Before(*f.CreatedTo) {
		return false
	}
	if search := strings.TrimSpace(f.Search); search != "" {
		if !strings.Contains(rr.OrderItem.OrderID, search) &&
			!strings.Contains(rr.OrderItem.ItemID, search) &&
			!strings.Contains(rr.LastShipmentCode, search) {
			return false
		}
	}
	return true
}

// CountByStatus returns the number of requests per status for a store
func (s *InMemoryReturnRequestRepository) CountByStatus(_ context.Context, storeID uuid.UUID) (map[returns.Status]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[returns.Status]int64, len(returns.AllStatuses))
	for _, st := range returns.AllStatuses {
		counts[st] = 0
	}
	for _, rr := range s.requests {
		if rr.StoreID == storeID {
			counts[rr.Status]++
		}
	}
	return counts, nil
}

// FindByShipmentCode finds the request whose latest shipment carries code
func (s *InMemoryReturnRequestRepository) FindByShipmentCode(_ context.Context, code string) (*returns.ReturnRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var found *returns.ReturnRequest
	for _, rr := range s.requests {
		if rr.LastShipmentCode != code {
			continue
		}
		if found == nil || rr.UpdatedAt.After(found.UpdatedAt) {
			found = rr
		}
	}
	if found == nil {
		return nil, returns.ErrReturnRequestNotFound
	}
	return cloneReturnRequest(found), nil
}

// FindDueDeadlines returns armed deadlines that have passed, earliest first
func (s *InMemoryReturnRequestRepository) FindDueDeadlines(_ context.Context, now time.Time, limit int) ([]returns.Deadline, error) {
	s.mu.Lock()
	due := make([]returns.Deadline, 0)
	for _, rr := range s.requests {
		if rr.IsTerminal() {
			continue
		}
		d, ok := rr.ArmedDeadline()
		if ok && !d.FireAt.After(now) {
			due = append(due, d)
		}
	}
	s.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].FireAt.Before(due[j].FireAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

// FindInTransit returns SHIPPING requests that have not been delivered yet
func (s *InMemoryReturnRequestRepository) FindInTransit(_ context.Context, limit int) ([]*returns.ReturnRequest, error) {
	s.mu.Lock()
	result := make([]*returns.ReturnRequest, 0)
	for _, rr := range s.requests {
		if rr.Status == returns.StatusShipping && rr.GHNOrderCode != "" && !rr.IsDelivered() {
			result = append(result, cloneReturnRequest(rr))
		}
	}
	s.mu.Unlock()

	sort.Slice(result, func(i, j int) bool { return result[i].UpdatedAt.Before(result[j].UpdatedAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// cloneReturnRequest copies the request without its pending domain events
func cloneReturnRequest(rr *returns.ReturnRequest) *returns.ReturnRequest {
	c := *rr
	c.ClearDomainEvents()
	c.CustomerImageURLs = append([]string(nil), rr.CustomerImageURLs...)
	if rr.Package != nil {
		pkg := *rr.Package
		c.Package = &pkg
	}
	return &c
}

var _ returns.Repository = (*InMemoryReturnRequestRepository)(nil)

package returns

import (
	"context"
	"time"

	"github.com/erp/returns/internal/domain/shared"
	"github.com/google/uuid"
)

// Mutation applies a transition to a freshly loaded request. Returning an
// error aborts the write.
type Mutation func(r *ReturnRequest) error

// ListFilter narrows ListByStore results
type ListFilter struct {
	shared.Filter
	Statuses     []Status
	ReasonType   ReasonType
	AutoRefunded *bool
	CustomerID   *uuid.UUID
	CreatedFrom  *time.Time
	CreatedTo    *time.Time
}

// Repository is the Return Request Store: the single source of truth for requests
type Repository interface {
	// Create inserts a new request. Fails with ErrDuplicateActiveReturn when a
	// non-terminal request already exists for the same order item.
	Create(ctx context.Context, r *ReturnRequest) error

	// Get loads a request; ErrReturnRequestNotFound when missing
	Get(ctx context.Context, id uuid.UUID) (*ReturnRequest, error)

	// CompareAndSwapStatus loads the request, checks its status equals expected,
	// applies mutate and writes the result conditionally on the same status and
	// version. Pending domain events are written to the outbox in the same
	// write. Returns ErrStaleState when the stored status (or version) moved.
	CompareAndSwapStatus(ctx context.Context, id uuid.UUID, expected Status, mutate Mutation) (*ReturnRequest, error)

	// ListByStore returns one page of a store's requests and the total count
	ListByStore(ctx context.Context, storeID uuid.UUID, filter ListFilter) ([]*ReturnRequest, int64, error)

	// CountByStatus returns the number of requests per status for a store
	CountByStatus(ctx context.Context, storeID uuid.UUID) (map[Status]int64, error)

	// FindByShipmentCode finds the request whose latest shipment has this courier code
	FindByShipmentCode(ctx context.Context, code string) (*ReturnRequest, error)

	// FindDueDeadlines returns armed deadlines with FireAt <= now
	FindDueDeadlines(ctx context.Context, now time.Time, limit int) ([]Deadline, error)

	// FindInTransit returns SHIPPING requests not yet delivered, oldest update first
	FindInTransit(ctx context.Context, limit int) ([]*ReturnRequest, error)
}

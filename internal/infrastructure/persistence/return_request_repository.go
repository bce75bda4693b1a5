package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/erp/returns/internal/domain/returns"
	"github.com/erp/returns/internal/domain/shared"
	"github.com/erp/returns/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormReturnRequestRepository implements returns.Repository using GORM.
// Every status change is a conditional UPDATE on (id, status, version) executed
// in the same transaction as the outbox rows for the aggregate's events.
type GormReturnRequestRepository struct {
	db     *gorm.DB
	outbox shared.OutboxEventSaver
}

// NewGormReturnRequestRepository creates a new GormReturnRequestRepository.
// outbox may be nil when events are not relayed (tests, tooling).
func NewGormReturnRequestRepository(db *gorm.DB, outbox shared.OutboxEventSaver) *GormReturnRequestRepository {
	return &GormReturnRequestRepository{db: db, outbox: outbox}
}

// Create inserts a new request
func (r *GormReturnRequestRepository) Create(ctx context.Context, rr *returns.ReturnRequest) error {
	model := models.ReturnRequestModelFromDomain(rr)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if model.ActiveKey != nil {
			var count int64
			if err := tx.Model(&models.ReturnRequestModel{}).
				Where("active_key = ?", *model.ActiveKey).
				Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return returns.ErrDuplicateActiveReturn
			}
		}
		if err := tx.Create(model).Error; err != nil {
			if IsUniqueViolation(err) {
				return returns.ErrDuplicateActiveReturn
			}
			return err
		}
		return r.saveEvents(ctx, tx, rr)
	})
	if err != nil {
		return err
	}
	rr.ClearDomainEvents()
	return nil
}

// Get loads a request by id
func (r *GormReturnRequestRepository) Get(ctx context.Context, id uuid.UUID) (*returns.ReturnRequest, error) {
	var model models.ReturnRequestModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, returns.ErrReturnRequestNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// CompareAndSwapStatus applies mutate and writes the result only if the row
// still has the expected status and the version that was read.
func (r *GormReturnRequestRepository) CompareAndSwapStatus(ctx context.Context, id uuid.UUID, expected returns.Status, mutate returns.Mutation) (*returns.ReturnRequest, error) {
	var result *returns.ReturnRequest
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.ReturnRequestModel
		if err := tx.Where("id = ?", id).First(&current).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return returns.ErrReturnRequestNotFound
			}
			return err
		}
		if current.Status != expected {
			return returns.ErrStaleState
		}

		rr := current.ToDomain()
		readVersion := rr.Version
		if err := mutate(rr); err != nil {
			return err
		}
		if !expected.CanTransitionTo(rr.Status) {
			return returns.NewInvalidTransitionError("move", expected)
		}
		rr.Version = readVersion + 1

		updated := models.ReturnRequestModelFromDomain(rr)
		res := tx.Model(&models.ReturnRequestModel{}).
			Where("id = ? AND status = ? AND version = ?", id, expected, readVersion).
			Select("*").
			Omit("id", "created_at").
			Updates(updated)
		if res.Error != nil {
			if IsUniqueViolation(res.Error) {
				return returns.ErrDuplicateActiveReturn
			}
			return fmt.Errorf("compare and swap return request: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return returns.ErrStaleState
		}
		if err := r.saveEvents(ctx, tx, rr); err != nil {
			return err
		}
		result = rr
		return nil
	})
	if err != nil {
		return nil, err
	}
	result.ClearDomainEvents()
	return result, nil
}

func (r *GormReturnRequestRepository) saveEvents(ctx context.Context, tx *gorm.DB, rr *returns.ReturnRequest) error {
	events := rr.GetDomainEvents()
	if r.outbox == nil || len(events) == 0 {
		return nil
	}
	if err := r.outbox.SaveEvents(ctx, tx, events...); err != nil {
		return fmt.Errorf("save outbox events: %w", err)
	}
	return nil
}

// ListByStore returns one page of a store's requests and the total count
func (r *GormReturnRequestRepository) ListByStore(ctx context.Context, storeID uuid.UUID, filter returns.ListFilter) ([]*returns.ReturnRequest, int64, error) {
	filter.Normalize(100)
	scoped := func() *gorm.DB {
		return r.applyListFilter(
			r.db.WithContext(ctx).Model(&models.ReturnRequestModel{}).Where("store_id = ?", storeID),
			filter,
		)
	}

	var total int64
	if err := scoped().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.ReturnRequestModel
	if err := scoped().
		Clauses(parseReturnSort(filter).clauses()).
		Offset(filter.Offset()).
		Limit(filter.PageSize).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return toDomainList(rows), total, nil
}

func (r *GormReturnRequestRepository) applyListFilter(query *gorm.DB, filter returns.ListFilter) *gorm.DB {
	if len(filter.Statuses) > 0 {
		query = query.Where("status IN ?", filter.Statuses)
	}
	if filter.ReasonType != "" {
		query = query.Where("reason_type = ?", filter.ReasonType)
	}
	if filter.AutoRefunded != nil {
		query = query.Where("auto_refunded = ?", *filter.AutoRefunded)
	}
	if filter.CustomerID != nil {
		query = query.Where("customer_id = ?", *filter.CustomerID)
	}
	if filter.CreatedFrom != nil {
		query = query.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		query = query.Where("created_at < ?", *filter.CreatedTo)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		like := "%" + search + "%"
		query = query.Where("(order_id LIKE ? OR item_id LIKE ? OR last_shipment_code LIKE ?)", like, like, like)
	}
	return query
}

type statusCount struct {
	Status returns.Status
	Count  int64
}

// CountByStatus returns the number of requests per status for a store
func (r *GormReturnRequestRepository) CountByStatus(ctx context.Context, storeID uuid.UUID) (map[returns.Status]int64, error) {
	var rows []statusCount
	if err := r.db.WithContext(ctx).
		Model(&models.ReturnRequestModel{}).
		Select("status, COUNT(*) AS count").
		Where("store_id = ?", storeID).
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	counts := make(map[returns.Status]int64, len(returns.AllStatuses))
	for _, s := range returns.AllStatuses {
		counts[s] = 0
	}
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// FindByShipmentCode finds the request whose latest shipment carries code
func (r *GormReturnRequestRepository) FindByShipmentCode(ctx context.Context, code string) (*returns.ReturnRequest, error) {
	var model models.ReturnRequestModel
	if err := r.db.WithContext(ctx).
		Where("last_shipment_code = ?", code).
		Order("updated_at DESC").
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, returns.ErrReturnRequestNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

type dueDeadlineRow struct {
	ID           uuid.UUID
	Status       returns.Status
	DeadlineKind returns.DeadlineKind
	DeadlineAt   time.Time
}

// FindDueDeadlines returns armed deadlines that have passed, earliest first
func (r *GormReturnRequestRepository) FindDueDeadlines(ctx context.Context, now time.Time, limit int) ([]returns.Deadline, error) {
	var rows []dueDeadlineRow
	if err := r.db.WithContext(ctx).
		Model(&models.ReturnRequestModel{}).
		Select("id, status, deadline_kind, deadline_at").
		Where("deadline_at IS NOT NULL AND deadline_at <= ?", now.UTC()).
		Where("status IN ?", returns.NonTerminalStatuses).
		Order("deadline_at ASC").
		Limit(limit).
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	deadlines := make([]returns.Deadline, 0, len(rows))
	for _, row := range rows {
		deadlines = append(deadlines, returns.Deadline{
			ReturnRequestID: row.ID,
			ExpectedStatus:  row.Status,
			Kind:            row.DeadlineKind,
			FireAt:          row.DeadlineAt.UTC(),
		})
	}
	return deadlines, nil
}

// FindInTransit returns SHIPPING requests that have not been delivered yet
func (r *GormReturnRequestRepository) FindInTransit(ctx context.Context, limit int) ([]*returns.ReturnRequest, error) {
	var rows []models.ReturnRequestModel
	if err := r.db.WithContext(ctx).
		Where("status = ? AND ghn_order_code IS NOT NULL", returns.StatusShipping).
		Where("tracking_status <> ?", returns.TrackingDelivered).
		Order("updated_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toDomainList(rows), nil
}

func toDomainList(rows []models.ReturnRequestModel) []*returns.ReturnRequest {
	result := make([]*returns.ReturnRequest, len(rows))
	for i := range rows {
		result[i] = rows[i].ToDomain()
	}
	return result
}

// IsUniqueViolation detects unique constraint failures from postgres and sqlite.
// gorm translates them to ErrDuplicatedKey when TranslateError is enabled.
func IsUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "SQLSTATE 23505")
}

var _ returns.Repository = (*GormReturnRequestRepository)(nil)

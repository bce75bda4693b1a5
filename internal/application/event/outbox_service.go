package event

import (
	"context"
	"errors"
	"time"

	"github.com/erp/returns/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OutboxService lets operators inspect undeliverable refund and notification
// events and push them back into delivery.
type OutboxService struct {
	repo   shared.OutboxRepository
	clock  shared.Clock
	wake   func()
	logger *zap.Logger
}

// NewOutboxService creates a new outbox service. wake is called after entries
// were reset so the processor picks them up without waiting for its next tick;
// it may be nil.
func NewOutboxService(repo shared.OutboxRepository, clock shared.Clock, wake func(), logger *zap.Logger) *OutboxService {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OutboxService{
		repo:   repo,
		clock:  clock,
		wake:   wake,
		logger: logger,
	}
}

// OutboxEntryDTO represents an outbox entry data transfer object
type OutboxEntryDTO struct {
	ID              uuid.UUID  `json:"id"`
	StoreID         uuid.UUID  `json:"store_id"`
	EventID         uuid.UUID  `json:"event_id"`
	EventType       string     `json:"event_type"`
	ReturnRequestID uuid.UUID  `json:"return_request_id"`
	Status          string     `json:"status"`
	RetryCount      int        `json:"retry_count"`
	MaxRetries      int        `json:"max_retries"`
	LastError       string     `json:"last_error,omitempty"`
	NextRetryAt     *time.Time `json:"next_retry_at,omitempty"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// OutboxFilter pages through dead letters
type OutboxFilter struct {
	Page     int `form:"page" binding:"omitempty,min=1"`
	PageSize int `form:"page_size" binding:"omitempty,min=1,max=100"`
}

// OutboxStatsDTO counts entries per delivery status
type OutboxStatsDTO struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Sent       int64 `json:"sent"`
	Failed     int64 `json:"failed"`
	Dead       int64 `json:"dead"`
	Total      int64 `json:"total"`
}

var (
	ErrOutboxEntryNotFound = shared.NewDomainError("NOT_FOUND", "Outbox entry not found")
	ErrOutboxEntryNotDead  = shared.NewDomainError("INVALID_STATUS", "Only dead letter entries can be retried")
)

// ListDeadLetters returns one page of entries that exhausted their retries
func (s *OutboxService) ListDeadLetters(ctx context.Context, filter OutboxFilter) (*shared.Paginated[OutboxEntryDTO], error) {
	f := shared.Filter{Page: filter.Page, PageSize: filter.PageSize}
	f.Normalize(100)

	entries, total, err := s.repo.FindDead(ctx, f.Page, f.PageSize)
	if err != nil {
		s.logger.Error("failed to list dead letters", zap.Error(err))
		return nil, err
	}
	dtos := make([]OutboxEntryDTO, len(entries))
	for i, entry := range entries {
		dtos[i] = toOutboxEntryDTO(entry)
	}
	page := shared.NewPaginated(dtos, total, f.Page, f.PageSize)
	return &page, nil
}

// GetEntry returns one outbox entry
func (s *OutboxService) GetEntry(ctx context.Context, id uuid.UUID) (*OutboxEntryDTO, error) {
	entry, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := toOutboxEntryDTO(entry)
	return &dto, nil
}

// RetryDeadEntry puts one dead letter back into PENDING
func (s *OutboxService) RetryDeadEntry(ctx context.Context, id uuid.UUID) (*OutboxEntryDTO, error) {
	entry, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := entry.ResetForRetry(s.clock.Now()); err != nil {
		return nil, ErrOutboxEntryNotDead
	}
	if err := s.repo.Update(ctx, entry); err != nil {
		s.logger.Error("failed to reset outbox entry", zap.String("id", id.String()), zap.Error(err))
		return nil, err
	}

	s.logger.Info("dead letter reset for retry",
		zap.String("id", id.String()),
		zap.String("event_type", entry.EventType),
		zap.String("return_request_id", entry.AggregateID.String()),
	)
	s.notify()
	dto := toOutboxEntryDTO(entry)
	return &dto, nil
}

// RetryAllDeadEntries resets every dead letter and returns how many were reset
func (s *OutboxService) RetryAllDeadEntries(ctx context.Context) (int64, error) {
	const pageSize = 100
	var count int64
	now := s.clock.Now()

	// reset entries drop out of FindDead, so page 1 is always the next batch
	for {
		entries, _, err := s.repo.FindDead(ctx, 1, pageSize)
		if err != nil {
			return count, err
		}
		reset := 0
		for _, entry := range entries {
			if err := entry.ResetForRetry(now); err != nil {
				continue
			}
			if err := s.repo.Update(ctx, entry); err != nil {
				s.logger.Error("failed to reset outbox entry", zap.String("id", entry.ID.String()), zap.Error(err))
				continue
			}
			reset++
		}
		count += int64(reset)
		if len(entries) < pageSize || reset == 0 {
			break
		}
	}

	s.logger.Info("dead letters reset for retry", zap.Int64("count", count))
	if count > 0 {
		s.notify()
	}
	return count, nil
}

// GetStats counts entries per status
func (s *OutboxService) GetStats(ctx context.Context) (*OutboxStatsDTO, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	stats := &OutboxStatsDTO{
		Pending:    counts[shared.OutboxStatusPending],
		Processing: counts[shared.OutboxStatusProcessing],
		Sent:       counts[shared.OutboxStatusSent],
		Failed:     counts[shared.OutboxStatusFailed],
		Dead:       counts[shared.OutboxStatusDead],
	}
	for _, n := range counts {
		stats.Total += n
	}
	return stats, nil
}

func (s *OutboxService) find(ctx context.Context, id uuid.UUID) (*shared.OutboxEntry, error) {
	entry, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, shared.ErrNotFound) || (err == nil && entry == nil) {
		return nil, ErrOutboxEntryNotFound
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *OutboxService) notify() {
	if s.wake != nil {
		s.wake()
	}
}

func toOutboxEntryDTO(entry *shared.OutboxEntry) OutboxEntryDTO {
	return OutboxEntryDTO{
		ID:              entry.ID,
		StoreID:         entry.StoreID,
		EventID:         entry.EventID,
		EventType:       entry.EventType,
		ReturnRequestID: entry.AggregateID,
		Status:          string(entry.Status),
		RetryCount:      entry.RetryCount,
		MaxRetries:      entry.MaxRetries,
		LastError:       entry.LastError,
		NextRetryAt:     entry.NextRetryAt,
		ProcessedAt:     entry.ProcessedAt,
		CreatedAt:       entry.CreatedAt,
		UpdatedAt:       entry.UpdatedAt,
	}
}

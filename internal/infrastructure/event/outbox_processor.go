package event

import (
	"context"
	"sync"
	"time"

	"github.com/erp/returns/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OutboxProcessorConfig tunes the relay loop
type OutboxProcessorConfig struct {
	BatchSize    int
	PollInterval time.Duration
	// Retry spaces out redeliveries of failed entries
	Retry shared.RetryPolicy
	// ClaimTimeout releases PROCESSING claims older than this; zero disables it
	ClaimTimeout     time.Duration
	CleanupEnabled   bool
	CleanupRetention time.Duration
	// CleanupInterval is the period of the maintenance pass
	CleanupInterval time.Duration
}

const (
	DeliverySent   = "sent"
	DeliveryFailed = "failed"
	DeliveryDead   = "dead"
)

// DeliveryObserver is told the outcome of every delivery attempt
type DeliveryObserver interface {
	ObserveOutboxDelivery(eventType, outcome string)
}

func DefaultOutboxProcessorConfig() OutboxProcessorConfig {
	return OutboxProcessorConfig{
		BatchSize:        100,
		PollInterval:     5 * time.Second,
		Retry:            shared.DefaultRetryPolicy(),
		ClaimTimeout:     5 * time.Minute,
		CleanupEnabled:   true,
		CleanupRetention: 7 * 24 * time.Hour,
		CleanupInterval:  time.Hour,
	}
}

// OutboxProcessor moves committed outbox entries to the event bus. It polls,
// can be woken early with Notify, and owns retry and dead-letter bookkeeping.
type OutboxProcessor struct {
	repo       shared.OutboxRepository
	publisher  shared.EventPublisher
	serializer *EventSerializer
	config     OutboxProcessorConfig
	clock      shared.Clock
	observer   DeliveryObserver
	logger     *zap.Logger

	wake   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewOutboxProcessor(
	repo shared.OutboxRepository,
	publisher shared.EventPublisher,
	serializer *EventSerializer,
	config OutboxProcessorConfig,
	clock shared.Clock,
	logger *zap.Logger,
) *OutboxProcessor {
	defaults := DefaultOutboxProcessorConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.Retry.Base <= 0 || config.Retry.Max < config.Retry.Base {
		config.Retry = defaults.Retry
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = defaults.CleanupInterval
	}
	if clock == nil {
		clock = shared.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OutboxProcessor{
		repo:       repo,
		publisher:  publisher,
		serializer: serializer,
		config:     config,
		clock:      clock,
		logger:     logger.Named("outbox"),
		wake:       make(chan struct{}, 1),
	}
}

func (p *OutboxProcessor) SetObserver(o DeliveryObserver) {
	p.observer = o
}

// Notify wakes the loop ahead of the next poll. It never blocks; wake-ups
// that arrive while one is already queued are merged.
func (p *OutboxProcessor) Notify() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// ProcessOnce delivers every pending entry and every failed entry now due
func (p *OutboxProcessor) ProcessOnce(ctx context.Context) {
	now := p.clock.Now()
	batches := []struct {
		name string
		find func() ([]*shared.OutboxEntry, error)
	}{
		{"pending", func() ([]*shared.OutboxEntry, error) { return p.repo.FindPending(ctx, p.config.BatchSize) }},
		{"retryable", func() ([]*shared.OutboxEntry, error) { return p.repo.FindRetryable(ctx, now, p.config.BatchSize) }},
	}
	for _, b := range batches {
		entries, err := b.find()
		if err != nil {
			p.logger.Error("failed to load outbox batch", zap.String("batch", b.name), zap.Error(err))
			return
		}
		p.deliverAll(ctx, entries)
	}
}

func (p *OutboxProcessor) Start(ctx context.Context) error {
	ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(2)
	go p.relayLoop(ctx)
	go p.maintenanceLoop(ctx)

	p.logger.Info("outbox processor started",
		zap.Int("batch_size", p.config.BatchSize),
		zap.Duration("poll_interval", p.config.PollInterval),
		zap.Duration("claim_timeout", p.config.ClaimTimeout),
	)
	return nil
}

// Stop cancels the loops and waits for the batch in flight, or for ctx
func (p *OutboxProcessor) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.logger.Info("outbox processor stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *OutboxProcessor) relayLoop(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-p.wake:
		}
		p.ProcessOnce(ctx)
	}
}

func (p *OutboxProcessor) maintenanceLoop(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.config.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if p.releaseStale(ctx) > 0 {
				p.Notify()
			}
			if p.config.CleanupEnabled {
				p.cleanup(ctx)
			}
		}
	}
}

func (p *OutboxProcessor) deliverAll(ctx context.Context, entries []*shared.OutboxEntry) {
	if len(entries) == 0 {
		return
	}
	ids := make([]uuid.UUID, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	// another processor may win some of these; only ours come back
	claimed, err := p.repo.MarkProcessing(ctx, ids)
	if err != nil {
		p.logger.Error("failed to claim outbox entries", zap.Int("count", len(ids)), zap.Error(err))
		return
	}
	for _, entry := range claimed {
		p.deliver(ctx, entry)
	}
}

func (p *OutboxProcessor) deliver(ctx context.Context, entry *shared.OutboxEntry) {
	log := p.logger.With(
		zap.String("event_id", entry.EventID.String()),
		zap.String("event_type", entry.EventType),
		zap.String("return_request_id", entry.AggregateID.String()),
	)

	event, err := p.serializer.DeserializeEntry(entry)
	if err == nil {
		err = p.publisher.Publish(ctx, event)
	}
	if err != nil {
		p.recordFailure(ctx, log, entry, err)
		return
	}

	entry.MarkSent(p.clock.Now())
	p.observe(entry.EventType, DeliverySent)
	if err := p.repo.Update(ctx, entry); err != nil {
		// the claim times out and the idempotent relay absorbs the redelivery
		log.Error("delivered but failed to mark outbox entry sent", zap.Error(err))
		return
	}
	log.Debug("outbox entry delivered", zap.Int("attempt", entry.RetryCount+1))
}

func (p *OutboxProcessor) recordFailure(ctx context.Context, log *zap.Logger, entry *shared.OutboxEntry, cause error) {
	entry.MarkFailedWith(p.config.Retry, cause.Error(), p.clock.Now())
	if entry.IsDead() {
		p.observe(entry.EventType, DeliveryDead)
		log.Warn("outbox entry moved to dead letters",
			zap.Int("attempts", entry.RetryCount),
			zap.Error(cause),
		)
	} else {
		p.observe(entry.EventType, DeliveryFailed)
		log.Error("outbox delivery failed",
			zap.Int("attempt", entry.RetryCount),
			zap.Timep("next_retry_at", entry.NextRetryAt),
			zap.Error(cause),
		)
	}
	if err := p.repo.Update(ctx, entry); err != nil {
		log.Error("failed to record outbox failure", zap.Error(err))
	}
}

func (p *OutboxProcessor) observe(eventType, outcome string) {
	if p.observer != nil {
		p.observer.ObserveOutboxDelivery(eventType, outcome)
	}
}

// releaseStale hands abandoned claims back and reports how many it released
func (p *OutboxProcessor) releaseStale(ctx context.Context) int64 {
	if p.config.ClaimTimeout <= 0 {
		return 0
	}
	cutoff := p.clock.Now().Add(-p.config.ClaimTimeout)
	released, err := p.repo.ReleaseStale(ctx, cutoff)
	if err != nil {
		p.logger.Error("failed to release stale outbox claims", zap.Error(err))
		return 0
	}
	if released > 0 {
		p.logger.Warn("released stale outbox claims", zap.Int64("released", released), zap.Time("claimed_before", cutoff))
	}
	return released
}

// cleanup purges sent entries older than the retention
func (p *OutboxProcessor) cleanup(ctx context.Context) {
	cutoff := p.clock.Now().Add(-p.config.CleanupRetention)
	deleted, err := p.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		p.logger.Error("failed to purge sent outbox entries", zap.Error(err))
		return
	}
	if deleted > 0 {
		p.logger.Info("purged sent outbox entries", zap.Int64("deleted", deleted), zap.Time("cutoff", cutoff))
	}
}

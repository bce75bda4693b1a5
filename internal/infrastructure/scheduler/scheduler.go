package scheduler

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/erp/returns/internal/domain/returns"
	"github.com/erp/returns/internal/domain/shared"
	"go.uber.org/zap"
)

// DueDeadlineSource lists persisted deadlines that have passed.
// The return request store implements it.
type DueDeadlineSource interface {
	FindDueDeadlines(ctx context.Context, now time.Time, limit int) ([]returns.Deadline, error)
}

// DeadlineSchedulerConfig holds deadline scheduler configuration
type DeadlineSchedulerConfig struct {
	Workers        int
	QueueSize      int
	SweepInterval  time.Duration
	SweepBatchSize int
	HandlerTimeout time.Duration
}

// DefaultDeadlineSchedulerConfig returns default deadline scheduler configuration
func DefaultDeadlineSchedulerConfig() DeadlineSchedulerConfig {
	return DeadlineSchedulerConfig{
		Workers:        4,
		QueueSize:      256,
		SweepInterval:  time.Minute,
		SweepBatchSize: 200,
		HandlerTimeout: 30 * time.Second,
	}
}

// DeadlineScheduler fires armed deadlines back into a DeadlineHandler.
//
// Deadlines live in an in-memory timer heap. Because every armed deadline is
// also persisted on its return request, a periodic sweep over the store picks
// up anything the heap lost (restart, full queue, failed handler). Firing the
// same deadline twice is harmless: the handler re-reads the request and does
// nothing unless the deadline is still armed.
type DeadlineScheduler struct {
	config  DeadlineSchedulerConfig
	handler returns.DeadlineHandler
	source  DueDeadlineSource
	clock   shared.Clock
	logger  *zap.Logger

	mu        sync.Mutex
	timers    deadlineHeap
	scheduled map[returns.TimerHandle]struct{}
	inflight  map[returns.TimerHandle]struct{}

	queue     chan returns.Deadline
	wake      chan struct{}
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	isRunning bool
}

// NewDeadlineScheduler creates a new deadline scheduler. source may be nil,
// in which case only deadlines passed to ScheduleAt fire.
func NewDeadlineScheduler(
	config DeadlineSchedulerConfig,
	handler returns.DeadlineHandler,
	source DueDeadlineSource,
	clock shared.Clock,
	logger *zap.Logger,
) *DeadlineScheduler {
	defaults := DefaultDeadlineSchedulerConfig()
	if config.Workers <= 0 {
		config.Workers = defaults.Workers
	}
	if config.QueueSize <= 0 {
		config.QueueSize = defaults.QueueSize
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = defaults.SweepInterval
	}
	if config.SweepBatchSize <= 0 {
		config.SweepBatchSize = defaults.SweepBatchSize
	}
	if config.HandlerTimeout <= 0 {
		config.HandlerTimeout = defaults.HandlerTimeout
	}
	if clock == nil {
		clock = shared.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeadlineScheduler{
		config:    config,
		handler:   handler,
		source:    source,
		clock:     clock,
		logger:    logger,
		scheduled: make(map[returns.TimerHandle]struct{}),
		inflight:  make(map[returns.TimerHandle]struct{}),
		queue:     make(chan returns.Deadline, config.QueueSize),
		wake:      make(chan struct{}, 1),
	}
}

// SetHandler sets the deadline handler. It must be called before Start.
func (s *DeadlineScheduler) SetHandler(handler returns.DeadlineHandler) {
	s.handler = handler
}

// HandleFor returns the timer handle of a deadline
func HandleFor(d returns.Deadline) returns.TimerHandle {
	return returns.TimerHandle(fmt.Sprintf("%s/%s/%d", d.ReturnRequestID, d.Kind, d.FireAt.UnixMicro()))
}

// ScheduleAt registers a deadline. Scheduling the same deadline again returns
// the existing handle. Deadlines may be scheduled before Start.
func (s *DeadlineScheduler) ScheduleAt(_ context.Context, d returns.Deadline) (returns.TimerHandle, error) {
	if d.FireAt.IsZero() {
		return "", ErrInvalidDeadline
	}
	handle := HandleFor(d)

	s.mu.Lock()
	if _, ok := s.scheduled[handle]; !ok {
		s.scheduled[handle] = struct{}{}
		heap.Push(&s.timers, d)
	}
	s.mu.Unlock()

	s.Notify()
	s.logger.Debug("Deadline scheduled",
		zap.String("return_request_id", d.ReturnRequestID.String()),
		zap.String("kind", string(d.Kind)),
		zap.Time("fire_at", d.FireAt),
	)
	return handle, nil
}

// Pending returns the number of deadlines waiting in the timer heap
func (s *DeadlineScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timers.Len()
}

// Notify wakes the timer loop so it re-reads the clock
func (s *DeadlineScheduler) Notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Start starts the timer loop and the worker pool
func (s *DeadlineScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	if s.handler == nil {
		s.mu.Unlock()
		return ErrNoDeadlineHandler
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for i := 0; i < s.config.Workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}
	s.wg.Add(1)
	go s.timerLoop(ctx)

	s.logger.Info("Deadline scheduler started",
		zap.Int("workers", s.config.Workers),
		zap.Duration("sweep_interval", s.config.SweepInterval),
		zap.Int("sweep_batch_size", s.config.SweepBatchSize),
	)
	return nil
}

// Stop gracefully stops the scheduler
func (s *DeadlineScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Deadline scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Deadline scheduler stop timed out")
		return ctx.Err()
	}
}

// timerLoop sleeps until the earliest timer or the next sweep, whichever is first
func (s *DeadlineScheduler) timerLoop(ctx context.Context) {
	defer s.wg.Done()

	nextSweep := s.clock.Now()
	for {
		now := s.clock.Now()
		if !now.Before(nextSweep) {
			s.Sweep(ctx)
			nextSweep = now.Add(s.config.SweepInterval)
		}
		s.FireDue(ctx)

		wait := nextSweep.Sub(now)
		if at, ok := s.nextFireAt(); ok && at.Sub(now) < wait {
			wait = at.Sub(now)
		}

		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		case <-s.clock.After(wait):
		}
	}
}

func (s *DeadlineScheduler) nextFireAt() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timers.Len() == 0 {
		return time.Time{}, false
	}
	return s.timers[0].FireAt, true
}

// FireDue pops every timer that has passed and queues it for the workers.
// Returns the number of deadlines queued.
func (s *DeadlineScheduler) FireDue(ctx context.Context) int {
	now := s.clock.Now()

	s.mu.Lock()
	var due []returns.Deadline
	for s.timers.Len() > 0 && !s.timers[0].FireAt.After(now) {
		d := heap.Pop(&s.timers).(returns.Deadline)
		delete(s.scheduled, HandleFor(d))
		due = append(due, d)
	}
	s.mu.Unlock()

	queued := 0
	for _, d := range due {
		if s.enqueue(ctx, d) {
			queued++
		}
	}
	return queued
}

// Sweep queues persisted deadlines that are already due. Returns the number
// of deadlines queued.
func (s *DeadlineScheduler) Sweep(ctx context.Context) int {
	if s.source == nil {
		return 0
	}
	due, err := s.source.FindDueDeadlines(ctx, s.clock.Now(), s.config.SweepBatchSize)
	if err != nil {
		s.logger.Error("Failed to sweep due deadlines", zap.Error(err))
		return 0
	}

	queued := 0
	for _, d := range due {
		if s.enqueue(ctx, d) {
			queued++
		}
	}
	if queued > 0 {
		s.logger.Info("Swept due deadlines", zap.Int("count", queued))
	}
	return queued
}

// enqueue hands a deadline to the workers unless the same one is already being handled
func (s *DeadlineScheduler) enqueue(ctx context.Context, d returns.Deadline) bool {
	handle := HandleFor(d)

	s.mu.Lock()
	if _, busy := s.inflight[handle]; busy {
		s.mu.Unlock()
		return false
	}
	s.inflight[handle] = struct{}{}
	s.mu.Unlock()

	select {
	case s.queue <- d:
		return true
	case <-ctx.Done():
	default:
		s.logger.Warn("Deadline queue is full, leaving it to the next sweep",
			zap.String("return_request_id", d.ReturnRequestID.String()),
			zap.String("kind", string(d.Kind)),
		)
	}
	s.release(handle)
	return false
}

func (s *DeadlineScheduler) release(handle returns.TimerHandle) {
	s.mu.Lock()
	delete(s.inflight, handle)
	s.mu.Unlock()
}

func (s *DeadlineScheduler) worker(ctx context.Context, workerID int) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case d := <-s.queue:
			s.fire(ctx, d, workerID)
		}
	}
}

func (s *DeadlineScheduler) fire(ctx context.Context, d returns.Deadline, workerID int) {
	defer s.release(HandleFor(d))

	fireCtx, cancel := context.WithTimeout(ctx, s.config.HandlerTimeout)
	defer cancel()

	if err := s.handler.OnDeadline(fireCtx, d); err != nil {
		// still persisted as armed, so the sweep fires it again
		s.logger.Warn("Deadline handler failed",
			zap.Int("worker_id", workerID),
			zap.String("return_request_id", d.ReturnRequestID.String()),
			zap.String("kind", string(d.Kind)),
			zap.Error(err),
		)
		return
	}
	s.logger.Debug("Deadline fired",
		zap.Int("worker_id", workerID),
		zap.String("return_request_id", d.ReturnRequestID.String()),
		zap.String("kind", string(d.Kind)),
	)
}

// deadlineHeap orders deadlines by fire time
type deadlineHeap []returns.Deadline

func (h deadlineHeap) Len() int           { return len(h) }
func (h deadlineHeap) Less(i, j int) bool { return h[i].FireAt.Before(h[j].FireAt) }
func (h deadlineHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *deadlineHeap) Push(x any) { *h = append(*h, x.(returns.Deadline)) }

func (h *deadlineHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

var _ returns.DeadlineScheduler = (*DeadlineScheduler)(nil)

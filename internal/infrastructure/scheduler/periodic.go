package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/erp/returns/internal/domain/shared"
	"go.uber.org/zap"
)

// JobFunc is the body of a periodic job
type JobFunc func(ctx context.Context) error

// PeriodicJob runs Run every Interval
type PeriodicJob struct {
	Name     string
	Interval time.Duration
	Timeout  time.Duration
	Run      JobFunc
}

// JobStats is a snapshot of a job's run history
type JobStats struct {
	Runs      int
	Failures  int
	LastRunAt *time.Time
	LastError string
}

// JobRunner runs periodic jobs on the shared clock, one goroutine per job.
// A run never overlaps with the previous run of the same job.
type JobRunner struct {
	clock  shared.Clock
	logger *zap.Logger

	mu        sync.Mutex
	jobs      map[string]*PeriodicJob
	stats     map[string]*JobStats
	triggers  map[string]chan struct{}
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	isRunning bool
}

// NewJobRunner creates a new periodic job runner
func NewJobRunner(clock shared.Clock, logger *zap.Logger) *JobRunner {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobRunner{
		clock:    clock,
		logger:   logger,
		jobs:     make(map[string]*PeriodicJob),
		stats:    make(map[string]*JobStats),
		triggers: make(map[string]chan struct{}),
	}
}

// Register adds a job. Jobs must be registered before Start.
func (r *JobRunner) Register(job PeriodicJob) error {
	if job.Name == "" || job.Interval <= 0 || job.Run == nil {
		return fmt.Errorf("%w: job %q needs a name, a positive interval and a body", ErrInvalidConfig, job.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.jobs[job.Name]; exists {
		return fmt.Errorf("%w: job %q registered twice", ErrInvalidConfig, job.Name)
	}
	j := job
	r.jobs[job.Name] = &j
	r.stats[job.Name] = &JobStats{}
	r.triggers[job.Name] = make(chan struct{}, 1)
	return nil
}

// Start starts one loop per registered job
func (r *JobRunner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.isRunning {
		r.mu.Unlock()
		return nil
	}
	r.isRunning = true
	jobs := make([]*PeriodicJob, 0, len(r.jobs))
	for _, j := range r.jobs {
		jobs = append(jobs, j)
	}
	r.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	for _, job := range jobs {
		r.wg.Add(1)
		go r.runLoop(ctx, job)
		r.logger.Info("Periodic job started",
			zap.String("job", job.Name),
			zap.Duration("interval", job.Interval),
		)
	}
	return nil
}

// Stop stops all job loops and waits for running jobs to return
func (r *JobRunner) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.isRunning {
		r.mu.Unlock()
		return nil
	}
	r.isRunning = false
	r.mu.Unlock()

	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("Job runner stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Trigger asks a job to run now instead of waiting for its next tick
func (r *JobRunner) Trigger(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isRunning {
		return ErrSchedulerNotRunning
	}
	ch, ok := r.triggers[name]
	if !ok {
		return ErrJobNotFound
	}
	select {
	case ch <- struct{}{}:
	default:
	}
	return nil
}

// Stats returns the run history of a job
func (r *JobRunner) Stats(name string) (JobStats, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.stats[name]
	if !ok {
		return JobStats{}, false
	}
	return *st, true
}

func (r *JobRunner) runLoop(ctx context.Context, job *PeriodicJob) {
	defer r.wg.Done()

	r.mu.Lock()
	trigger := r.triggers[job.Name]
	r.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return
		case <-trigger:
		case <-r.clock.After(job.Interval):
		}
		r.runOnce(ctx, job)
	}
}

func (r *JobRunner) runOnce(ctx context.Context, job *PeriodicJob) {
	runCtx := ctx
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}

	start := r.clock.Now()
	err := r.safeRun(runCtx, job)

	r.mu.Lock()
	st := r.stats[job.Name]
	st.Runs++
	st.LastRunAt = &start
	st.LastError = ""
	if err != nil {
		st.Failures++
		st.LastError = err.Error()
	}
	r.mu.Unlock()

	if err != nil {
		r.logger.Error("Periodic job failed",
			zap.String("job", job.Name),
			zap.Error(err),
		)
	}
}

func (r *JobRunner) safeRun(ctx context.Context, job *PeriodicJob) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name, rec)
		}
	}()
	return job.Run(ctx)
}

package scheduler

import "errors"

var (
	// ErrSchedulerNotRunning is returned when a stopped runner is asked to run a job
	ErrSchedulerNotRunning = errors.New("scheduler is not running")

	// ErrInvalidDeadline is returned for a deadline without a fire time
	ErrInvalidDeadline = errors.New("deadline has no fire time")

	// ErrNoDeadlineHandler is returned when the scheduler is started without a handler
	ErrNoDeadlineHandler = errors.New("deadline scheduler has no handler")

	// ErrJobNotFound is returned when a job is not registered
	ErrJobNotFound = errors.New("job not found")

	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid scheduler configuration")
)

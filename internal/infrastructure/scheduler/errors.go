package scheduler

import "errors"

var (
	// ErrSchedulerNotRunning is returned when a job is submitted before Start.
	ErrSchedulerNotRunning = errors.New("scheduler is not running")

	// ErrJobQueueFull is returned when the job queue cannot accept more work.
	ErrJobQueueFull = errors.New("job queue is full")

	// ErrNoSubscriptions is returned when a poller is started without any
	// account/provider pairs to poll.
	ErrNoSubscriptions = errors.New("no poll subscriptions configured")
)

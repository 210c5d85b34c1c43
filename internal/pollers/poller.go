package pollers

import (
	"context"
	"time"
)

// Poller is a periodic background job.
type Poller interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
	IsRunning() bool
	Status() Status
}

// Config controls how a job is scheduled and retried.
type Config struct {
	Name     string
	Interval time.Duration // zero disables the job
	Attempts int           // tries per round
	Backoff  time.Duration // first retry delay, doubled on each further retry
	Timeout  time.Duration // per attempt
}

// DefaultConfig is a single-attempt job with a one minute timeout.
func DefaultConfig(name string, interval time.Duration) Config {
	return Config{
		Name:     name,
		Interval: interval,
		Attempts: 1,
		Backoff:  5 * time.Second,
		Timeout:  time.Minute,
	}
}

// Status is the last known outcome of a job.
type Status struct {
	Name      string        `json:"name"`
	Interval  time.Duration `json:"interval_ns"`
	Running   bool          `json:"running"`
	Rounds    int64         `json:"rounds"`
	Failures  int64         `json:"failures"`
	LastRun   time.Time     `json:"last_run,omitzero"`
	LastError string        `json:"last_error,omitempty"`
}

// Failing reports whether the latest round ended in an error.
func (s Status) Failing() bool { return s.LastError != "" }

package pollers

import (
	"context"
	"sync"
	"time"

	"github.com/gilkh/livret/internal/logging"
)

// Job runs fn once on start and then every interval. A failed attempt is
// retried within the same round after Backoff, doubling each time up to
// the interval.
type Job struct {
	cfg Config
	fn  func(ctx context.Context) error

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	status Status
}

func NewJob(cfg Config, fn func(ctx context.Context) error) *Job {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Minute
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	return &Job{cfg: cfg, fn: fn, status: Status{Name: cfg.Name, Interval: cfg.Interval}}
}

func (j *Job) Name() string { return j.cfg.Name }

func (j *Job) Start(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.cancel != nil {
		return nil
	}
	if j.cfg.Interval <= 0 {
		logging.DebugWithComponent(logging.ComponentPoller, "Job disabled", "job", j.cfg.Name)
		return nil
	}

	ctx, j.cancel = context.WithCancel(ctx)
	j.done = make(chan struct{})
	logging.InfoWithComponent(logging.ComponentPoller, "Starting job", "job", j.cfg.Name, "interval", j.cfg.Interval)
	go j.loop(ctx, j.done)
	return nil
}

// Stop cancels the job and waits for the round in progress to return.
func (j *Job) Stop() error {
	j.mu.Lock()
	cancel, done := j.cancel, j.done
	j.cancel, j.done = nil, nil
	j.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	logging.DebugWithComponent(logging.ComponentPoller, "Job stopped", "job", j.cfg.Name)
	return nil
}

func (j *Job) IsRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.cancel != nil
}

func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	s := j.status
	s.Running = j.cancel != nil
	return s
}

func (j *Job) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(j.cfg.Interval)
	defer ticker.Stop()

	for {
		j.round(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (j *Job) round(ctx context.Context) {
	var err error
	delay := j.cfg.Backoff
	for attempt := 1; attempt <= j.cfg.Attempts; attempt++ {
		if attempt > 1 {
			logging.WarnWithComponent(logging.ComponentPoller, "Job attempt failed, retrying",
				"job", j.cfg.Name, "attempt", attempt-1, "retry_in", delay, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay = min(2*delay, j.cfg.Interval)
		}

		actx, cancel := context.WithTimeout(ctx, j.cfg.Timeout)
		err = j.fn(actx)
		cancel()
		if err == nil {
			break
		}
	}
	if ctx.Err() != nil {
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	j.status.Rounds++
	j.status.LastRun = time.Now()
	if err != nil {
		j.status.Failures++
		j.status.LastError = err.Error()
		logging.ErrorWithComponent(logging.ComponentPoller, "Job failed", "job", j.cfg.Name, "attempts", j.cfg.Attempts, "error", err)
		return
	}
	j.status.LastError = ""
}

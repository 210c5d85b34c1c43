package pollers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gilkh/livret/internal/middleware"
	"github.com/gilkh/livret/internal/rendering"
)

// NewHealthSummary logs the render health summary every interval.
func NewHealthSummary(monitor *rendering.MonitoringService, interval time.Duration) *Job {
	return NewJob(DefaultConfig("health_summary", interval), func(ctx context.Context) error {
		monitor.LogHealthSummary(ctx)
		return nil
	})
}

// NewLimiterSweeper drops idle per-client buckets from limiter.
func NewLimiterSweeper(name string, limiter *middleware.KeyedLimiter, interval time.Duration) *Job {
	return NewJob(DefaultConfig(name, interval), func(ctx context.Context) error {
		limiter.Cleanup()
		return nil
	})
}

// Check pings one external dependency.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// NewDependencyCheck pings every check each interval. A round fails when
// any check still fails after three attempts.
func NewDependencyCheck(interval time.Duration, checks ...Check) *Job {
	cfg := DefaultConfig("dependency_check", interval)
	cfg.Attempts = 3
	cfg.Timeout = 10 * time.Second
	return NewJob(cfg, func(ctx context.Context) error {
		var errs []error
		for _, c := range checks {
			if err := c.Ping(ctx); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", c.Name, err))
			}
		}
		return errors.Join(errs...)
	})
}

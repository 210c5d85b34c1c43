package pollers

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gilkh/livret/internal/middleware"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestJobRunsImmediatelyAndOnTicks(t *testing.T) {
	var runs atomic.Int32
	j := NewJob(DefaultConfig("ticker", 10*time.Millisecond), func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})

	if err := j.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !j.IsRunning() {
		t.Fatal("job not running after Start")
	}
	waitFor(t, func() bool { return runs.Load() >= 3 })

	if err := j.Stop(); err != nil {
		t.Fatal(err)
	}
	if j.IsRunning() {
		t.Error("job still running after Stop")
	}
	after := runs.Load()
	time.Sleep(30 * time.Millisecond)
	if runs.Load() != after {
		t.Error("job ran after Stop")
	}
	if s := j.Status(); s.Rounds < 3 || s.Failures != 0 || s.Running || s.LastRun.IsZero() {
		t.Errorf("Status() = %+v", s)
	}
}

func TestJobRetriesWithBackoff(t *testing.T) {
	tests := []struct {
		name         string
		failures     int32
		wantAttempts int32
		wantFailing  bool
	}{
		{"recovers on the last attempt", 2, 3, false},
		{"gives up after every attempt fails", 5, 3, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var attempts atomic.Int32
			var stamps [3]atomic.Int64
			cfg := DefaultConfig("flaky", time.Hour)
			cfg.Attempts = 3
			cfg.Backoff = 10 * time.Millisecond
			j := NewJob(cfg, func(ctx context.Context) error {
				n := attempts.Add(1)
				if n <= 3 {
					stamps[n-1].Store(time.Now().UnixNano())
				}
				if n <= tt.failures {
					return errors.New("not yet")
				}
				return nil
			})

			if err := j.Start(context.Background()); err != nil {
				t.Fatal(err)
			}
			defer j.Stop()
			waitFor(t, func() bool { return j.Status().Rounds == 1 })

			if n := attempts.Load(); n != tt.wantAttempts {
				t.Errorf("attempts = %d, want %d", n, tt.wantAttempts)
			}
			first := time.Duration(stamps[1].Load() - stamps[0].Load())
			second := time.Duration(stamps[2].Load() - stamps[1].Load())
			if first < cfg.Backoff || second < 2*cfg.Backoff {
				t.Errorf("retry delays = %v, %v, want at least %v then %v", first, second, cfg.Backoff, 2*cfg.Backoff)
			}
			s := j.Status()
			if s.Failing() != tt.wantFailing {
				t.Errorf("Failing() = %v, want %v (%+v)", s.Failing(), tt.wantFailing, s)
			}
			if tt.wantFailing && s.Failures != 1 {
				t.Errorf("Failures = %d, want 1 per round", s.Failures)
			}
		})
	}
}

func TestJobStopDuringBackoff(t *testing.T) {
	cfg := DefaultConfig("stuck", time.Hour)
	cfg.Attempts = 2
	cfg.Backoff = time.Hour
	var attempts atomic.Int32
	j := NewJob(cfg, func(ctx context.Context) error {
		attempts.Add(1)
		return errors.New("down")
	})
	if err := j.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return attempts.Load() == 1 })

	stopped := make(chan struct{})
	go func() {
		j.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked on the retry delay")
	}
	if s := j.Status(); s.Rounds != 0 {
		t.Errorf("interrupted round was recorded: %+v", s)
	}
}

func TestDisabledJobDoesNotStart(t *testing.T) {
	j := NewJob(DefaultConfig("off", 0), func(ctx context.Context) error {
		t.Error("disabled job ran")
		return nil
	})
	if err := j.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if j.IsRunning() {
		t.Error("disabled job reports running")
	}
	if err := j.Stop(); err != nil {
		t.Error(err)
	}
}

func TestManager(t *testing.T) {
	var a, b atomic.Int32
	m := NewManager()
	m.Register(NewJob(DefaultConfig("b", time.Hour), func(ctx context.Context) error { b.Add(1); return nil }))
	m.Register(NewJob(DefaultConfig("a", time.Hour), func(ctx context.Context) error { a.Add(1); return nil }))

	if got := m.Names(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Names() = %v", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.Start(ctx); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return a.Load() == 1 && b.Load() == 1 })

	statuses := m.Statuses()
	if len(statuses) != 2 || statuses[0].Name != "a" || !statuses[0].Running {
		t.Errorf("Statuses() = %+v", statuses)
	}

	if err := m.Stop(); err != nil {
		t.Fatal(err)
	}
	if m.IsRunning() {
		t.Error("manager still running after Stop")
	}
	for _, s := range m.Statuses() {
		if s.Running {
			t.Errorf("%s still running after Stop", s.Name)
		}
	}
}

func TestDependencyCheck(t *testing.T) {
	var redisCalls atomic.Int32
	j := NewDependencyCheck(time.Hour,
		Check{Name: "postgres", Ping: func(context.Context) error { return nil }},
		Check{Name: "redis", Ping: func(context.Context) error {
			redisCalls.Add(1)
			return errors.New("connection refused")
		}},
	)
	if j.cfg.Attempts != 3 {
		t.Fatalf("attempts = %d, want 3", j.cfg.Attempts)
	}

	err := j.fn(context.Background())
	if err == nil || !strings.Contains(err.Error(), "redis: connection refused") || strings.Contains(err.Error(), "postgres") {
		t.Errorf("round error = %v", err)
	}
	if redisCalls.Load() != 1 {
		t.Errorf("redis pinged %d times", redisCalls.Load())
	}
}

func TestLimiterSweeper(t *testing.T) {
	limiter := middleware.NewKeyedLimiter(1)
	if !limiter.Allow("10.0.0.1") {
		t.Fatal("first attempt refused")
	}

	j := NewLimiterSweeper("sweeper", limiter, time.Hour)
	if j.Name() != "sweeper" || j.Status().Interval != time.Hour {
		t.Errorf("job = %s every %v", j.Name(), j.Status().Interval)
	}
	if err := j.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return j.Status().Rounds == 1 })
	if err := j.Stop(); err != nil {
		t.Fatal(err)
	}
	// The bucket was used just now, so the sweep keeps it and the budget stays spent.
	if limiter.Allow("10.0.0.1") {
		t.Error("recent bucket was swept")
	}
}

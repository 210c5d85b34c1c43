package rendering

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"

	"github.com/gilkh/livret/internal/logging"
)

// ErrPoolClosed is returned by Acquire after Close.
var ErrPoolClosed = errors.New("browser pool is closed")

// BrowserOptions configures the shared headless browser.
type BrowserOptions struct {
	ExecPath       string
	MaxTabs        int
	MaxLifetime    time.Duration
	LaunchTimeout  time.Duration
	HealthTimeout  time.Duration
	// HealthInterval is how long a successful ping is trusted before the
	// next acquire pings again.
	HealthInterval time.Duration
}

// BrowserStats is a point-in-time view of the pool.
type BrowserStats struct {
	Running    bool          `json:"running"`
	ActiveTabs int           `json:"active_tabs"`
	MaxTabs    int           `json:"max_tabs"`
	Age        time.Duration `json:"age_ns"`
	Launches   int64         `json:"launches"`
	Acquired   int64         `json:"tabs_acquired"`
	Failures   int64         `json:"failures"`
}

// BrowserPool owns one lazily launched Chromium shared by every render.
// Tabs are the unit of isolation and at most MaxTabs are open at once.
type BrowserPool struct {
	opts BrowserOptions
	tabs chan struct{}

	mu            sync.Mutex
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	launchedAt    time.Time
	checkedAt     time.Time
	active        int
	closed        bool

	ping func(context.Context) error

	launches atomic.Int64
	acquired atomic.Int64
	failures atomic.Int64
}

func NewBrowserPool(opts BrowserOptions) *BrowserPool {
	if opts.MaxTabs <= 0 {
		opts.MaxTabs = 4
	}
	if opts.LaunchTimeout <= 0 {
		opts.LaunchTimeout = 60 * time.Second
	}
	if opts.HealthTimeout <= 0 {
		opts.HealthTimeout = 5 * time.Second
	}
	if opts.HealthInterval <= 0 {
		opts.HealthInterval = 30 * time.Second
	}
	p := &BrowserPool{opts: opts, tabs: make(chan struct{}, opts.MaxTabs)}
	p.ping = p.pingBrowser
	return p
}

// Tab is one browser tab. Release must be called exactly once; further
// calls are no-ops.
type Tab struct {
	ctx     context.Context
	cancel  context.CancelFunc
	stop    func() bool
	pool    *BrowserPool
	release sync.Once
}

// Context is the chromedp context bound to the tab.
func (t *Tab) Context() context.Context { return t.ctx }

func (t *Tab) Release() {
	t.release.Do(func() {
		t.stop()
		t.cancel()
		t.pool.releaseTab()
	})
}

// Acquire waits for a free tab slot, makes sure the browser is alive and
// opens a new tab. Cancelling ctx closes the tab.
func (p *BrowserPool) Acquire(ctx context.Context) (*Tab, error) {
	select {
	case p.tabs <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	browserCtx, err := p.browser(ctx, true)
	if err != nil {
		<-p.tabs
		return nil, err
	}

	tabCtx, tabCancel := chromedp.NewContext(browserCtx)
	stop := context.AfterFunc(ctx, tabCancel)
	if err := chromedp.Run(tabCtx); err != nil {
		stop()
		tabCancel()
		p.failures.Add(1)
		p.releaseTab()
		return nil, fmt.Errorf("failed to open tab: %w", err)
	}

	p.acquired.Add(1)
	return &Tab{ctx: tabCtx, cancel: tabCancel, stop: stop, pool: p}, nil
}

// Ready launches the browser if needed and checks it responds.
func (p *BrowserPool) Ready(ctx context.Context) error {
	_, err := p.browser(ctx, false)
	return err
}

func (p *BrowserPool) releaseTab() {
	p.mu.Lock()
	p.active--
	p.mu.Unlock()
	<-p.tabs
}

// browser returns a live browser context, launching or relaunching as
// needed. claim reserves an active tab under the same lock.
func (p *BrowserPool) browser(ctx context.Context, claim bool) (context.Context, error) {
	p.verify()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrPoolClosed
	}

	if p.browserCtx != nil {
		switch {
		case p.browserCtx.Err() != nil:
			logging.WarnWithComponent(logging.ComponentBrowser, "Browser exited, relaunching")
			p.shutdownLocked()
		case p.opts.MaxLifetime > 0 && time.Since(p.launchedAt) > p.opts.MaxLifetime && p.active == 0:
			logging.InfoWithComponent(logging.ComponentBrowser, "Browser reached max lifetime, relaunching", "age", time.Since(p.launchedAt).Round(time.Second))
			p.shutdownLocked()
		}
	}

	if p.browserCtx == nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := p.launchLocked(); err != nil {
			p.failures.Add(1)
			return nil, err
		}
	}

	if claim {
		p.active++
	}
	return p.browserCtx, nil
}

func (p *BrowserPool) launchLocked() error {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.DisableGPU,
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("font-render-hinting", "none"),
		chromedp.WSURLReadTimeout(p.opts.LaunchTimeout),
	)
	if p.opts.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(p.opts.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			logging.DebugWithComponent(logging.ComponentBrowser, fmt.Sprintf(format, args...))
		}),
		chromedp.WithErrorf(func(format string, args ...any) {
			logging.DebugWithComponent(logging.ComponentBrowser, "cdp error", "detail", fmt.Sprintf(format, args...))
		}),
	)

	start := time.Now()
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	p.allocCancel = allocCancel
	p.browserCtx = browserCtx
	p.browserCancel = browserCancel
	p.launchedAt = time.Now()
	p.checkedAt = p.launchedAt
	p.launches.Add(1)
	logging.InfoWithComponent(logging.ComponentBrowser, "Browser launched", "exec_path", p.opts.ExecPath, "duration", time.Since(start).Round(time.Millisecond))
	return nil
}

// verify pings the browser when the last check is older than
// HealthInterval and shuts it down if it does not answer. Only one caller
// pings at a time and mu is not held during the round trip.
func (p *BrowserPool) verify() {
	p.mu.Lock()
	bctx := p.browserCtx
	if bctx == nil || time.Since(p.checkedAt) < p.opts.HealthInterval {
		p.mu.Unlock()
		return
	}
	p.checkedAt = time.Now()
	p.mu.Unlock()

	err := p.ping(bctx)
	if err == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.browserCtx == bctx {
		logging.WarnWithComponent(logging.ComponentBrowser, "Browser unresponsive, relaunching", "error", err)
		p.shutdownLocked()
	}
}

func (p *BrowserPool) pingBrowser(bctx context.Context) error {
	c := chromedp.FromContext(bctx)
	if c == nil || c.Browser == nil {
		return errors.New("browser not attached")
	}
	ctx, cancel := context.WithTimeout(bctx, p.opts.HealthTimeout)
	defer cancel()
	_, _, _, _, _, err := browser.GetVersion().Do(cdp.WithExecutor(ctx, c.Browser))
	return err
}

// shutdownLocked closes the current browser. Tabs still open on it are
// cancelled with it.
func (p *BrowserPool) shutdownLocked() {
	if p.browserCtx == nil {
		return
	}
	if err := chromedp.Cancel(p.browserCtx); err != nil && !errors.Is(err, context.Canceled) {
		logging.DebugWithComponent(logging.ComponentBrowser, "Browser close returned error", "error", err)
	}
	p.browserCancel()
	p.allocCancel()
	p.browserCtx, p.browserCancel, p.allocCancel = nil, nil, nil
}

// Stats reports pool usage for health checks.
func (p *BrowserPool) Stats() BrowserStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := BrowserStats{
		Running:    p.browserCtx != nil,
		ActiveTabs: p.active,
		MaxTabs:    p.opts.MaxTabs,
		Launches:   p.launches.Load(),
		Acquired:   p.acquired.Load(),
		Failures:   p.failures.Load(),
	}
	if s.Running {
		s.Age = time.Since(p.launchedAt)
	}
	return s
}

// Close shuts the browser down. Subsequent Acquire calls fail.
func (p *BrowserPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.shutdownLocked()
	return nil
}

package rendering

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gilkh/livret/internal/logging"
)

// RenderMetrics counts renders across every back end. Safe for concurrent use.
type RenderMetrics struct {
	total      atomic.Int64
	success    atomic.Int64
	failed     atomic.Int64
	inFlight   atomic.Int32
	durationMs atomic.Int64
}

// Track marks a render as started and returns the function that records
// its outcome.
func (m *RenderMetrics) Track() func(err error) {
	m.inFlight.Add(1)
	start := time.Now()
	return func(err error) {
		m.inFlight.Add(-1)
		m.total.Add(1)
		m.durationMs.Add(time.Since(start).Milliseconds())
		if err != nil {
			m.failed.Add(1)
			return
		}
		m.success.Add(1)
	}
}

// HealthStatus represents the health of the render pipeline
type HealthStatus struct {
	Status          string             `json:"status"` // "healthy", "degraded", "unhealthy"
	Backend         string             `json:"backend"`
	BackendError    string             `json:"backend_error,omitempty"`
	Browser         *BrowserStats      `json:"browser,omitempty"`
	Performance     PerformanceMetrics `json:"performance"`
	LastUpdated     time.Time          `json:"last_updated"`
	Recommendations []string           `json:"recommendations,omitempty"`
}

// PerformanceMetrics represents render statistics since start-up
type PerformanceMetrics struct {
	TotalRenders          int64    `json:"total_renders"`
	FailedRenders         int64    `json:"failed_renders"`
	InFlight              int32    `json:"in_flight"`
	SuccessRate           float64  `json:"success_rate"`
	RendersPerMinute      float64  `json:"renders_per_minute"`
	AverageProcessingTime *float64 `json:"average_processing_time_seconds,omitempty"`
}

// MonitoringService reports the health of the active back end
type MonitoringService struct {
	backend   Backend
	pool      *BrowserPool
	metrics   *RenderMetrics
	startTime time.Time
}

// NewMonitoringService creates a monitoring service. pool may be nil when
// the browser is not in use.
func NewMonitoringService(backend Backend, pool *BrowserPool, metrics *RenderMetrics) *MonitoringService {
	return &MonitoringService{backend: backend, pool: pool, metrics: metrics, startTime: time.Now()}
}

// GetHealthStatus returns the current health status of the render system
func (m *MonitoringService) GetHealthStatus(ctx context.Context) *HealthStatus {
	total := m.metrics.total.Load()
	success := m.metrics.success.Load()

	perf := PerformanceMetrics{
		TotalRenders:  total,
		FailedRenders: m.metrics.failed.Load(),
		InFlight:      m.metrics.inFlight.Load(),
		SuccessRate:   100,
	}
	if total > 0 {
		perf.SuccessRate = float64(success) / float64(total) * 100
		avg := float64(m.metrics.durationMs.Load()) / float64(total) / 1000
		perf.AverageProcessingTime = &avg
	}
	if elapsed := time.Since(m.startTime).Minutes(); elapsed > 0 {
		perf.RendersPerMinute = float64(total) / elapsed
	}

	health := &HealthStatus{
		Backend:     m.backend.Name(),
		Performance: perf,
		LastUpdated: time.Now(),
	}
	if err := m.backend.Ready(ctx); err != nil {
		health.BackendError = err.Error()
	}
	if m.pool != nil {
		stats := m.pool.Stats()
		health.Browser = &stats
	}

	health.Status, health.Recommendations = m.determineHealthStatus(health)
	return health
}

// determineHealthStatus analyzes metrics and determines overall health
func (m *MonitoringService) determineHealthStatus(h *HealthStatus) (string, []string) {
	var recommendations []string
	degraded := 0

	if h.BackendError != "" {
		recommendations = append(recommendations, fmt.Sprintf("Back end %s unavailable: %s", h.Backend, h.BackendError))
		return "unhealthy", recommendations
	}

	if h.Browser != nil && h.Browser.MaxTabs > 0 && h.Browser.ActiveTabs >= h.Browser.MaxTabs {
		degraded++
		recommendations = append(recommendations,
			fmt.Sprintf("All browser tabs busy (%d/%d) - consider raising BROWSER_MAX_TABS", h.Browser.ActiveTabs, h.Browser.MaxTabs))
	}

	if h.Performance.TotalRenders >= 10 && h.Performance.SuccessRate < 90 {
		degraded++
		recommendations = append(recommendations,
			fmt.Sprintf("High failure rate: %.1f%% success rate", h.Performance.SuccessRate))
	}

	if h.Performance.AverageProcessingTime != nil && *h.Performance.AverageProcessingTime > 30 {
		degraded++
		recommendations = append(recommendations,
			fmt.Sprintf("Slow renders: %.1f seconds average", *h.Performance.AverageProcessingTime))
	}

	if degraded > 0 {
		return "degraded", recommendations
	}
	return "healthy", recommendations
}

// LogHealthSummary logs a summary of the current health status
func (m *MonitoringService) LogHealthSummary(ctx context.Context) {
	health := m.GetHealthStatus(ctx)

	args := []any{
		"status", health.Status,
		"backend", health.Backend,
		"total_renders", health.Performance.TotalRenders,
		"success_rate", fmt.Sprintf("%.1f%%", health.Performance.SuccessRate),
		"in_flight", health.Performance.InFlight,
	}
	if health.Browser != nil {
		args = append(args, "browser_running", health.Browser.Running, "active_tabs", health.Browser.ActiveTabs)
	}
	logging.InfoWithComponent(logging.ComponentRenderer, "Health summary", args...)

	for _, rec := range health.Recommendations {
		logging.WarnWithComponent(logging.ComponentRenderer, "Recommendation", "message", rec)
	}
}

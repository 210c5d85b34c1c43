package pollers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/gilkh/livret/internal/logging"
)

// Manager starts and stops a set of jobs together.
type Manager struct {
	mu      sync.Mutex
	jobs    map[string]Poller
	running bool
}

func NewManager() *Manager {
	return &Manager{jobs: make(map[string]Poller)}
}

// Register adds a job. A job registered under an existing name replaces it.
func (m *Manager) Register(p Poller) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[p.Name()] = p
	logging.DebugWithComponent(logging.ComponentPoller, "Registered job", "job", p.Name())
}

// Start starts every job. Jobs that fail to start are reported together;
// the others keep running.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}
	m.running = true

	var errs []error
	for _, name := range m.namesLocked() {
		if err := m.jobs[name].Start(ctx); err != nil {
			errs = append(errs, fmt.Errorf("job %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Stop stops all jobs concurrently and waits for them.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}
	m.running = false

	var g errgroup.Group
	for _, p := range m.jobs {
		g.Go(p.Stop)
	}
	return g.Wait()
}

// Names returns the registered job names in order.
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.namesLocked()
}

// Statuses returns every job's status ordered by name.
func (m *Manager) Statuses() []Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Status, 0, len(m.jobs))
	for _, name := range m.namesLocked() {
		out = append(out, m.jobs[name].Status())
	}
	return out
}

func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Manager) namesLocked() []string {
	names := make([]string, 0, len(m.jobs))
	for name := range m.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

package agent

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/alphamesh/alphamesh/logging"
)

// Manager is the registry of running agents. Register starts an agent before
// storing it; Shutdown stops all registered agents concurrently and collects
// individual failures so one misbehaving agent cannot block teardown of the
// rest.
type Manager struct {
	mu     sync.RWMutex
	agents map[string]Agent
	logger logging.Logger
}

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	// Logger defaults to logging.NoOpLogger.
	Logger logging.Logger
}

// NewManager creates an empty Manager.
func NewManager(optFns ...func(o *ManagerOptions)) *Manager {
	opts := ManagerOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Manager{agents: make(map[string]Agent), logger: opts.Logger}
}

// Register starts the agent and stores it under its id. The id is reserved
// before the start call, so concurrent registrations of the same id cannot
// both start an agent. A duplicate id or a start failure leaves the registry
// unchanged and returns the error.
func (m *Manager) Register(ctx context.Context, a Agent) error {
	m.mu.Lock()
	if _, exists := m.agents[a.ID()]; exists {
		m.mu.Unlock()
		return fmt.Errorf("agent %s already registered", a.ID())
	}
	m.agents[a.ID()] = a
	m.mu.Unlock()

	if err := a.Start(ctx); err != nil {
		m.mu.Lock()
		delete(m.agents, a.ID())
		m.mu.Unlock()
		return err
	}

	m.logger.Info("agent registered", "agent_id", a.ID(), "name", a.Name())
	return nil
}

// Unregister stops the agent and removes it from the registry. The agent is
// removed even when its stop fails; the error is returned to the caller.
func (m *Manager) Unregister(ctx context.Context, id string) error {
	m.mu.Lock()
	a, ok := m.agents[id]
	delete(m.agents, id)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("agent %s not registered", id)
	}
	return a.Stop(ctx)
}

// Get returns the registered agent with the given id.
func (m *Manager) Get(id string) (Agent, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.agents[id]
	return a, ok
}

// Agents returns the registered agents sorted by id for stable iteration.
func (m *Manager) Agents() []Agent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Agent, 0, len(m.agents))
	for _, a := range m.agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Statuses returns a status snapshot per registered agent, sorted by id.
func (m *Manager) Statuses() []Status {
	agents := m.Agents()
	out := make([]Status, 0, len(agents))
	for _, a := range agents {
		out = append(out, a.Status())
	}
	return out
}

// Shutdown stops every registered agent concurrently, clears the registry
// and returns the collected stop errors. It never aborts early.
func (m *Manager) Shutdown(ctx context.Context) []error {
	m.mu.Lock()
	agents := make([]Agent, 0, len(m.agents))
	for _, a := range m.agents {
		agents = append(agents, a)
	}
	m.agents = make(map[string]Agent)
	m.mu.Unlock()

	var (
		wg    sync.WaitGroup
		errMu sync.Mutex
		errs  []error
	)
	for _, a := range agents {
		wg.Add(1)
		go func(a Agent) {
			defer wg.Done()
			if err := a.Stop(ctx); err != nil {
				m.logger.Warn("agent stop failed during shutdown", "agent_id", a.ID(), "error", err)
				errMu.Lock()
				errs = append(errs, fmt.Errorf("stop %s: %w", a.ID(), err))
				errMu.Unlock()
			}
		}(a)
	}
	wg.Wait()
	return errs
}

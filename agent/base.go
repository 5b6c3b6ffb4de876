package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alphamesh/alphamesh/bus"
	"github.com/alphamesh/alphamesh/graph"
	"github.com/alphamesh/alphamesh/logging"
	"github.com/alphamesh/alphamesh/model"
)

// State is the lifecycle state of an agent.
type State string

const (
	StateStarting State = "starting"
	StateActive   State = "active"
	StateIdle     State = "idle"
	StateError    State = "error"
	StateStopped  State = "stopped"
)

// DefaultErrorResetDelay is how long an agent stays in StateError after a
// handler failure before self-healing back to StateIdle.
const DefaultErrorResetDelay = 5 * time.Second

// Config identifies an agent and carries its optional language-model
// provider.
type Config struct {
	ID          string
	Name        string
	Description string
	Provider    model.Provider
}

// Hooks are the agent-specific extension points invoked by Base during the
// lifecycle. Subscriptions runs first during Start and registers topic
// handlers via Base.Subscribe; Init runs after it; Cleanup runs during Stop
// after the subscriptions have been removed. Any hook may be nil.
type Hooks struct {
	Subscriptions func(ctx context.Context) error
	Init          func(ctx context.Context) error
	Cleanup       func(ctx context.Context) error
}

// Agent is the uniform surface the Manager and the orchestrator operate on.
type Agent interface {
	ID() string
	Name() string
	Description() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Status() Status
}

// Status is the externally visible snapshot of one agent.
type Status struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	State         State   `json:"state"`
	Subscriptions int     `json:"subscriptions"`
	Metrics       Metrics `json:"metrics"`
}

// Options configures a Base beyond its Config.
type Options struct {
	// ErrorResetDelay overrides DefaultErrorResetDelay. Tests shorten it.
	ErrorResetDelay time.Duration
	// SampleWindow overrides DefaultSampleWindow.
	SampleWindow int
	// Logger defaults to logging.NoOpLogger.
	Logger logging.Logger
}

// Base bundles the shared lifecycle, metrics and bus plumbing. Embed it in a
// concrete agent and assign Hooks in the constructor. All exported methods
// are goroutine safe.
type Base struct {
	cfg        Config
	bus        *bus.Bus
	graph      *graph.Graph
	logger     logging.Logger
	hooks      Hooks
	resetDelay time.Duration

	mu         sync.Mutex
	state      State
	subs       []string
	metrics    *metricsRecorder
	resetTimer *time.Timer
}

// NewBase wires a Base to the shared bus and graph. Both are injected
// explicitly; the substrate has no global instances.
func NewBase(cfg Config, b *bus.Bus, g *graph.Graph, optFns ...func(o *Options)) *Base {
	opts := Options{ErrorResetDelay: DefaultErrorResetDelay, SampleWindow: DefaultSampleWindow, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.ErrorResetDelay <= 0 {
		opts.ErrorResetDelay = DefaultErrorResetDelay
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Base{
		cfg:        cfg,
		bus:        b,
		graph:      g,
		logger:     opts.Logger,
		resetDelay: opts.ErrorResetDelay,
		state:      StateStarting,
		metrics:    newMetricsRecorder(opts.SampleWindow),
	}
}

// SetHooks assigns the agent-specific lifecycle hooks. Call before Start.
func (b *Base) SetHooks(h Hooks) { b.hooks = h }

// ID returns the agent identifier.
func (b *Base) ID() string { return b.cfg.ID }

// Name returns the human-readable agent name.
func (b *Base) Name() string { return b.cfg.Name }

// Description returns the agent description.
func (b *Base) Description() string { return b.cfg.Description }

// Provider returns the configured language-model provider, which may be nil.
func (b *Base) Provider() model.Provider { return b.cfg.Provider }

// Bus returns the shared event bus.
func (b *Base) Bus() *bus.Bus { return b.bus }

// Graph returns the shared knowledge graph.
func (b *Base) Graph() *graph.Graph { return b.graph }

// Logger returns the agent's logger.
func (b *Base) Logger() logging.Logger { return b.logger }

// State returns the current lifecycle state.
func (b *Base) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Start runs the subscription hook then the init hook and moves the agent to
// StateActive, emitting an agent.started event. On any hook failure the
// agent moves to StateError, any subscriptions registered so far are removed
// from the bus, and the error is returned to the caller: a start failure is
// fatal to this agent, not to the runtime.
func (b *Base) Start(ctx context.Context) error {
	b.setState(StateStarting)

	if b.hooks.Subscriptions != nil {
		if err := b.hooks.Subscriptions(ctx); err != nil {
			b.failStart()
			return fmt.Errorf("agent %s: subscription setup: %w", b.cfg.ID, err)
		}
	}
	if b.hooks.Init != nil {
		if err := b.hooks.Init(ctx); err != nil {
			b.failStart()
			return fmt.Errorf("agent %s: init: %w", b.cfg.ID, err)
		}
	}

	b.setState(StateActive)
	b.bus.Publish(ctx, bus.TopicAgentStarted, bus.AgentLifecyclePayload{AgentID: b.cfg.ID, Name: b.cfg.Name}, b.cfg.ID, nil)
	b.logger.Info("agent started", "agent_id", b.cfg.ID)
	return nil
}

func (b *Base) failStart() {
	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.state = StateError
	b.mu.Unlock()
	for _, id := range subs {
		b.bus.Unsubscribe(id)
	}
}

// Stop removes all of this agent's subscriptions from the bus, cancels any
// pending error reset, runs the cleanup hook and moves to StateStopped,
// emitting an agent.stopped event. A cleanup failure leaves the agent in
// StateError and is returned to the caller.
func (b *Base) Stop(ctx context.Context) error {
	b.mu.Lock()
	if b.resetTimer != nil {
		b.resetTimer.Stop()
		b.resetTimer = nil
	}
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	for _, id := range subs {
		b.bus.Unsubscribe(id)
	}

	if b.hooks.Cleanup != nil {
		if err := b.hooks.Cleanup(ctx); err != nil {
			b.setState(StateError)
			return fmt.Errorf("agent %s: cleanup: %w", b.cfg.ID, err)
		}
	}

	b.setState(StateStopped)
	b.bus.Publish(ctx, bus.TopicAgentStopped, bus.AgentLifecyclePayload{AgentID: b.cfg.ID, Name: b.cfg.Name}, b.cfg.ID, nil)
	b.logger.Info("agent stopped", "agent_id", b.cfg.ID)
	return nil
}

// Subscribe registers a wrapped handler on the bus and records the
// subscription so Stop can remove it. The wrapper marks the agent active,
// times the handler, updates metrics and settles back to StateIdle; on
// failure it counts the error, enters StateError, schedules the self-healing
// reset and returns the error to the bus, which surfaces it as a single
// agent.error event without affecting sibling subscribers. An invocation
// that finishes after Stop only records its metrics; the agent stays
// stopped.
func (b *Base) Subscribe(topic bus.Topic, handler bus.Handler) string {
	id := b.bus.Subscribe(topic, b.wrap(topic, handler), b.cfg.ID)
	b.mu.Lock()
	b.subs = append(b.subs, id)
	b.mu.Unlock()
	return id
}

// Unsubscribe removes one of this agent's subscriptions from the bus and
// from the agent's own list.
func (b *Base) Unsubscribe(id string) bool {
	b.mu.Lock()
	for i, sid := range b.subs {
		if sid == id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			break
		}
	}
	b.mu.Unlock()
	return b.bus.Unsubscribe(id)
}

// Publish emits an event on behalf of this agent.
func (b *Base) Publish(ctx context.Context, topic bus.Topic, payload any, metadata map[string]any) bus.Event {
	return b.bus.Publish(ctx, topic, payload, b.cfg.ID, metadata)
}

func (b *Base) wrap(topic bus.Topic, handler bus.Handler) bus.Handler {
	return func(ctx context.Context, ev bus.Event) error {
		b.mu.Lock()
		if b.state != StateStopped {
			b.state = StateActive
		}
		b.metrics.touch()
		b.mu.Unlock()

		start := time.Now()
		err := handler(ctx, ev)
		elapsed := time.Since(start)

		b.mu.Lock()
		defer b.mu.Unlock()
		if err == nil {
			b.metrics.recordSuccess(elapsed)
			if b.state == StateActive {
				b.state = StateIdle
			}
			return nil
		}

		b.metrics.recordError()
		b.logger.Error("handler error", "agent_id", b.cfg.ID, "topic", topic, "error", err)
		// StateStopped is terminal: an invocation that was in flight when Stop
		// ran still settles its metrics, but must not revive the agent or arm
		// the reset timer.
		if b.state != StateStopped {
			b.state = StateError
			b.scheduleResetLocked()
		}
		return err
	}
}

// scheduleResetLocked arms the self-healing timer that moves the agent back
// to StateIdle after the reset delay, provided it is still in StateError at
// that time. An existing timer is replaced; Stop cancels it deterministically.
// Callers must hold b.mu.
func (b *Base) scheduleResetLocked() {
	if b.resetTimer != nil {
		b.resetTimer.Stop()
	}
	b.resetTimer = time.AfterFunc(b.resetDelay, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.state == StateError {
			b.state = StateIdle
		}
		b.resetTimer = nil
	})
}

// Status returns a snapshot of the agent's state, subscriptions and metrics.
func (b *Base) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Status{
		ID:            b.cfg.ID,
		Name:          b.cfg.Name,
		State:         b.state,
		Subscriptions: len(b.subs),
		Metrics:       b.metrics.snapshot(),
	}
}

func (b *Base) setState(s State) {
	b.mu.Lock()
	b.state = s
	b.mu.Unlock()
}

package orchestrator

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/alphamesh/alphamesh/agent"
	"github.com/alphamesh/alphamesh/analyst"
	"github.com/alphamesh/alphamesh/bus"
	"github.com/alphamesh/alphamesh/graph"
	"github.com/alphamesh/alphamesh/logging"
	"github.com/alphamesh/alphamesh/model"
)

// originID identifies events published by the orchestrator itself.
const originID = "orchestrator"

// Agent ids for the built-in analysis agents.
const (
	RegimeClassifierID    = "regime-classifier"
	RiskArbiterID         = "risk-arbiter"
	HypothesisGeneratorID = "hypothesis-generator"
)

// Options configures an Orchestrator.
type Options struct {
	// Provider is handed to agents that call a language model. When nil the
	// hypothesis generator is not registered.
	Provider model.Provider
	// HistoryLimit overrides the bus history bound.
	HistoryLimit int
	// ErrorResetDelay overrides the agents' self-healing delay.
	ErrorResetDelay time.Duration
	// Logger defaults to logging.NoOpLogger.
	Logger logging.Logger
}

// Orchestrator wires the bus, graph and agent manager together. Each
// instance owns its own bus and graph; nothing is shared through globals, so
// independent instances (and parallel tests) never interfere.
type Orchestrator struct {
	bus     *bus.Bus
	graph   *graph.Graph
	manager *agent.Manager
	logger  logging.Logger
	opts    Options

	mu      sync.Mutex
	running bool
	rng     *rand.Rand
}

// New constructs a stopped Orchestrator.
func New(optFns ...func(o *Options)) *Orchestrator {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	b := bus.New(func(o *bus.Options) {
		o.HistoryLimit = opts.HistoryLimit
		o.Logger = opts.Logger
	})
	g := graph.New(func(o *graph.Options) { o.Logger = opts.Logger })

	return &Orchestrator{
		bus:     b,
		graph:   g,
		manager: agent.NewManager(func(o *agent.ManagerOptions) { o.Logger = opts.Logger }),
		logger:  opts.Logger,
		opts:    opts,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Bus exposes the shared event bus, primarily for tests and embedding
// applications that publish their own events.
func (o *Orchestrator) Bus() *bus.Bus { return o.bus }

// Graph exposes the shared knowledge graph.
func (o *Orchestrator) Graph() *graph.Graph { return o.graph }

// Manager exposes the agent registry.
func (o *Orchestrator) Manager() *agent.Manager { return o.manager }

// Start registers and starts the built-in analysis agents. A start failure
// of any agent aborts startup and stops the agents already running.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator already running")
	}
	o.running = true
	o.mu.Unlock()

	agentOpts := func(opt *agent.Options) {
		opt.Logger = o.logger
		opt.ErrorResetDelay = o.opts.ErrorResetDelay
	}

	agents := []agent.Agent{
		analyst.NewRegimeClassifier(agent.Config{
			ID:          RegimeClassifierID,
			Name:        "Regime Classifier",
			Description: "Probabilistic market-state estimator",
		}, o.bus, o.graph, agentOpts),
		analyst.NewRiskArbiter(agent.Config{
			ID:          RiskArbiterID,
			Name:        "Risk Arbiter",
			Description: "Multi-check strategy scorer",
		}, o.bus, o.graph, agentOpts),
	}
	if o.opts.Provider != nil {
		agents = append(agents, analyst.NewHypothesisGenerator(agent.Config{
			ID:          HypothesisGeneratorID,
			Name:        "Hypothesis Generator",
			Description: "Model-backed factor hypothesis producer",
			Provider:    o.opts.Provider,
		}, o.bus, o.graph, agentOpts))
	}

	for _, a := range agents {
		if err := o.manager.Register(ctx, a); err != nil {
			o.manager.Shutdown(ctx)
			o.mu.Lock()
			o.running = false
			o.mu.Unlock()
			return fmt.Errorf("start %s: %w", a.ID(), err)
		}
	}

	o.logger.Info("orchestrator started", "agents", len(agents))
	return nil
}

// Stop shuts down all agents concurrently. Individual stop failures are
// collected and returned but never block the rest of the teardown.
func (o *Orchestrator) Stop(ctx context.Context) []error {
	o.mu.Lock()
	o.running = false
	o.mu.Unlock()
	return o.manager.Shutdown(ctx)
}

// IngestData publishes a market-data event into the system.
func (o *Orchestrator) IngestData(ctx context.Context, md bus.MarketDataPayload) bus.Event {
	return o.bus.Publish(ctx, bus.TopicDataIngested, md, originID, nil)
}

// UpdateNarrative publishes a macro narrative update.
func (o *Orchestrator) UpdateNarrative(ctx context.Context, text, source string) bus.Event {
	return o.bus.Publish(ctx, bus.TopicNarrativeUpdated, bus.NarrativePayload{Text: text, Source: source}, originID, nil)
}

// SubmitStrategy publishes a strategy draft for risk review.
func (o *Orchestrator) SubmitStrategy(ctx context.Context, strat bus.StrategyPayload) bus.Event {
	return o.bus.Publish(ctx, bus.TopicStrategyDraft, strat, originID, nil)
}

// TriggerAnalysisCycle publishes one synthetic market-data event per symbol,
// generated by a simple random walk. It exists so operators and tests can
// drive the pipeline without a live data feed.
func (o *Orchestrator) TriggerAnalysisCycle(ctx context.Context, symbols []string) []bus.Event {
	if len(symbols) == 0 {
		symbols = []string{"SPX", "NDX", "RTY"}
	}
	events := make([]bus.Event, 0, len(symbols))
	for _, symbol := range symbols {
		events = append(events, o.IngestData(ctx, o.syntheticData(symbol)))
	}
	return events
}

func (o *Orchestrator) syntheticData(symbol string) bus.MarketDataPayload {
	o.mu.Lock()
	defer o.mu.Unlock()

	const samples = 60
	prices := make([]float64, samples)
	returns := make([]float64, 0, samples-1)
	price := 100.0
	for i := 0; i < samples; i++ {
		prices[i] = price
		step := o.rng.NormFloat64() * 0.012
		price *= 1 + step
		if i > 0 {
			returns = append(returns, prices[i]/prices[i-1]-1)
		}
	}
	return bus.MarketDataPayload{
		Symbol:       symbol,
		Prices:       prices,
		Returns:      returns,
		Volume:       1e6 * (1 + o.rng.Float64()),
		Spread:       0.01 * (1 + o.rng.Float64()),
		CreditSpread: 1 + o.rng.Float64()*2,
		AsOf:         time.Now().UTC(),
	}
}

// RecentEvents returns up to limit events from the bus history, newest
// first.
func (o *Orchestrator) RecentEvents(limit int) []bus.Event {
	return o.bus.Events(bus.Filter{Limit: limit})
}

// GraphStats returns the knowledge-graph statistics.
func (o *Orchestrator) GraphStats() graph.Stats {
	return o.graph.Stats()
}

// AgentStatuses returns the per-agent status list.
func (o *Orchestrator) AgentStatuses() []agent.Status {
	return o.manager.Statuses()
}

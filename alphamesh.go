// Package alphamesh provides a high-level façade over the coordination
// substrate: the event bus, the knowledge graph and the supervised agent
// runtime. Most applications interact with this package by:
//  1. Creating a Mesh via New() (optionally supplying a language-model
//     provider and a structured logger)
//  2. Starting it, which registers and starts the built-in analysis agents
//  3. Driving it with IngestData / UpdateNarrative / SubmitStrategy and
//     reading the status surface
//
// The façade delegates composition to orchestrator.Orchestrator while
// keeping setup ergonomics concise. All defaults are safe for local
// development and testing; production deployments typically supply a real
// model provider and a structured logger.
package alphamesh

import (
	"context"

	"github.com/alphamesh/alphamesh/agent"
	"github.com/alphamesh/alphamesh/bus"
	"github.com/alphamesh/alphamesh/graph"
	"github.com/alphamesh/alphamesh/logging"
	"github.com/alphamesh/alphamesh/model"
	"github.com/alphamesh/alphamesh/orchestrator"
)

// Options configures the Mesh instance.
type Options struct {
	// Provider is the language-model capability handed to model-backed
	// agents. When nil those agents are skipped.
	Provider model.Provider
	// HistoryLimit bounds the event history (default bus.DefaultHistoryLimit).
	HistoryLimit int
	// Logger defaults to a NoOp logger.
	Logger logging.Logger
}

// Mesh is the high-level façade aggregating the orchestrator and its
// services.
type Mesh struct {
	orc *orchestrator.Orchestrator
}

// New creates a new Mesh with optional overrides.
func New(optFns ...func(o *Options)) *Mesh {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	orc := orchestrator.New(func(o *orchestrator.Options) {
		o.Provider = opts.Provider
		o.HistoryLimit = opts.HistoryLimit
		o.Logger = opts.Logger
	})
	return &Mesh{orc: orc}
}

// Start registers and starts the built-in analysis agents.
func (m *Mesh) Start(ctx context.Context) error { return m.orc.Start(ctx) }

// Stop shuts down all agents, collecting individual failures.
func (m *Mesh) Stop(ctx context.Context) []error { return m.orc.Stop(ctx) }

// IngestData publishes a market-data event.
func (m *Mesh) IngestData(ctx context.Context, md bus.MarketDataPayload) bus.Event {
	return m.orc.IngestData(ctx, md)
}

// UpdateNarrative publishes a macro narrative update.
func (m *Mesh) UpdateNarrative(ctx context.Context, text, source string) bus.Event {
	return m.orc.UpdateNarrative(ctx, text, source)
}

// SubmitStrategy publishes a strategy draft for risk review.
func (m *Mesh) SubmitStrategy(ctx context.Context, strat bus.StrategyPayload) bus.Event {
	return m.orc.SubmitStrategy(ctx, strat)
}

// TriggerAnalysisCycle drives one synthetic data pass through the pipeline.
func (m *Mesh) TriggerAnalysisCycle(ctx context.Context, symbols []string) []bus.Event {
	return m.orc.TriggerAnalysisCycle(ctx, symbols)
}

// SystemStatus returns the aggregate system snapshot.
func (m *Mesh) SystemStatus() orchestrator.SystemStatus { return m.orc.SystemStatus() }

// AgentStatuses returns the per-agent status list.
func (m *Mesh) AgentStatuses() []agent.Status { return m.orc.AgentStatuses() }

// GraphStats returns knowledge-graph statistics.
func (m *Mesh) GraphStats() graph.Stats { return m.orc.GraphStats() }

// RecentEvents returns up to limit events, newest first.
func (m *Mesh) RecentEvents(limit int) []bus.Event { return m.orc.RecentEvents(limit) }

// Bus exposes the underlying event bus.
func (m *Mesh) Bus() *bus.Bus { return m.orc.Bus() }

// Graph exposes the underlying knowledge graph.
func (m *Mesh) Graph() *graph.Graph { return m.orc.Graph() }

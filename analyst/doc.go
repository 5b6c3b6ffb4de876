// Package analyst contains the concrete analysis agents built on the
// coordination substrate: a probabilistic regime classifier, a rule-scoring
// risk arbiter and a model-backed hypothesis generator.
//
// Each agent is an independent consumer/producer: it reads events from the
// bus, mutates only its own private state, writes derived facts into the
// shared knowledge graph and publishes new events in response. No agent
// knows about any other.
package analyst

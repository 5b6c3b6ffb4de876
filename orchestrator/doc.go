// Package orchestrator is the composition root of the substrate. It
// constructs one event bus and one knowledge graph per instance, injects them
// into the analysis agents, and exposes the status/query/command surface
// consumed by outer layers (HTTP, CLI) that are themselves out of scope.
package orchestrator

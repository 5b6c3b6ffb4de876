// Package logging provides a minimal logging interface and adapters for the
// coordination substrate.
//
// The Logger interface defines the standard logging methods (Debug, Info,
// Warn, Error) that the bus, graph, agent runtime and orchestrator use for
// observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - MeshLogger with contextual helpers (component, agent) and domain
//     specific helpers for handler and model calls
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// The design intentionally keeps the interface minimal to avoid vendor
// lock-in while supporting structured logging where available.
package logging

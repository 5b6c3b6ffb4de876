// Package agent implements the supervised lifecycle shared by every analysis
// agent: the Base runtime that wraps event handlers with metrics and error
// recovery, and the Manager registry that starts, stops and tears down
// agents as a group.
//
// Concrete agents embed Base and register their behavior through Hooks.
// Base owns the state machine (Starting -> Active -> Idle <-> Active ->
// Error -> Idle; Active|Idle -> Stopped), keeps the agent's subscription list
// consistent with the bus, and emits the agent.started / agent.error /
// agent.stopped lifecycle events.
package agent

// Package bus provides the typed publish/subscribe hub that connects the
// analysis agents. It offers exact-match topic subscriptions, concurrent
// fan-out delivery with per-subscriber error isolation, and a bounded
// in-memory event history for diagnostics and replay-style queries.
//
// The bus is the only channel through which agents communicate; no agent
// holds a reference to another. A publish call constructs an immutable Event,
// appends it to the history ring and invokes every current subscriber of the
// topic concurrently, returning only once all handlers have settled. A
// failing handler never affects delivery to its siblings or the publisher;
// the failure is surfaced as a TopicAgentError event instead.
package bus

package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/alphamesh/alphamesh/logging"
)

// Handler processes a delivered event. A non-nil error (or a panic) is
// absorbed at the bus boundary and surfaced as a TopicAgentError event; it is
// never propagated to the publisher or to sibling subscribers.
type Handler func(ctx context.Context, ev Event) error

// Subscription binds a handler to a topic on behalf of an owning agent. The
// owner id is carried into error events so monitoring agents can attribute
// failures.
type Subscription struct {
	ID      string
	Topic   Topic
	Owner   string
	handler Handler
}

// DefaultHistoryLimit bounds the event history ring when no explicit limit is
// configured.
const DefaultHistoryLimit = 10000

// Options configures a Bus.
type Options struct {
	// HistoryLimit caps the number of retained events; oldest are evicted
	// first. Values <= 0 fall back to DefaultHistoryLimit.
	HistoryLimit int
	// Logger receives diagnostic output. Defaults to logging.NoOpLogger.
	Logger logging.Logger
}

// Bus is the in-process publish/subscribe hub. All methods are safe for
// concurrent use; subscribers never coordinate locking themselves.
type Bus struct {
	mu      sync.RWMutex
	subs    map[string]*Subscription
	byTopic map[Topic]map[string]*Subscription
	history []Event // oldest first
	limit   int
	logger  logging.Logger
}

// New creates a Bus with optional overrides.
func New(optFns ...func(o *Options)) *Bus {
	opts := Options{HistoryLimit: DefaultHistoryLimit, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Bus{
		subs:    make(map[string]*Subscription),
		byTopic: make(map[Topic]map[string]*Subscription),
		limit:   opts.HistoryLimit,
		logger:  opts.Logger,
	}
}

// Subscribe registers a handler for exact-match delivery on topic and returns
// the subscription id usable with Unsubscribe. It always succeeds.
func (b *Bus) Subscribe(topic Topic, handler Handler, owner string) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscription{ID: NewID(), Topic: topic, Owner: owner, handler: handler}
	b.subs[sub.ID] = sub
	if b.byTopic[topic] == nil {
		b.byTopic[topic] = make(map[string]*Subscription)
	}
	b.byTopic[topic][sub.ID] = sub

	b.logger.Debug("subscription added", "topic", topic, "owner", owner, "subscription_id", sub.ID)
	return sub.ID
}

// Unsubscribe removes the subscription if present. It is idempotent: a second
// call with the same id returns false. Removal affects only future
// deliveries; an in-flight handler invocation is not interrupted.
func (b *Bus) Unsubscribe(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subs[id]
	if !ok {
		return false
	}
	delete(b.subs, id)
	if set := b.byTopic[sub.Topic]; set != nil {
		delete(set, id)
		if len(set) == 0 {
			delete(b.byTopic, sub.Topic)
		}
	}
	b.logger.Debug("subscription removed", "topic", sub.Topic, "subscription_id", id)
	return true
}

// Publish constructs an Event, appends it to the history (evicting the oldest
// entry on overflow) and delivers it to every current subscriber of the topic
// concurrently. It returns only after all handler invocations have settled.
//
// A handler that returns an error or panics is isolated: the failure is
// logged and re-emitted as a TopicAgentError event so monitoring agents can
// observe it, and delivery to the remaining subscribers is unaffected.
// Publish never returns an error on behalf of a subscriber.
func (b *Bus) Publish(ctx context.Context, topic Topic, payload any, origin string, metadata map[string]any) Event {
	ev := newEvent(topic, payload, origin, metadata)

	b.mu.Lock()
	b.history = append(b.history, ev)
	if overflow := len(b.history) - b.limit; overflow > 0 {
		b.history = append(b.history[:0:0], b.history[overflow:]...)
	}
	targets := make([]*Subscription, 0, len(b.byTopic[topic]))
	for _, sub := range b.byTopic[topic] {
		targets = append(targets, sub)
	}
	b.mu.Unlock()

	var wg sync.WaitGroup
	for _, sub := range targets {
		wg.Add(1)
		go func(sub *Subscription) {
			defer wg.Done()
			if err := b.invoke(ctx, sub, ev); err != nil {
				b.logger.Warn("handler failed", "topic", topic, "owner", sub.Owner, "error", err)
				b.emitHandlerError(ctx, sub, ev, err)
			}
		}(sub)
	}
	wg.Wait()

	return ev
}

// invoke runs a single handler, converting panics into errors so one
// misbehaving subscriber cannot take down the fan-out.
func (b *Bus) invoke(ctx context.Context, sub *Subscription, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return sub.handler(ctx, ev)
}

// emitHandlerError publishes a TopicAgentError event for a failed delivery.
// Failures while delivering the error event itself are only logged; without
// this guard a failing agent.error subscriber would recurse indefinitely.
func (b *Bus) emitHandlerError(ctx context.Context, sub *Subscription, ev Event, handlerErr error) {
	if ev.Topic == TopicAgentError {
		return
	}
	b.Publish(ctx, TopicAgentError, HandlerErrorPayload{
		AgentID:    sub.Owner,
		EventTopic: ev.Topic,
		Error:      handlerErr.Error(),
	}, sub.Owner, nil)
}

// Events returns history entries matching the filter, newest first. It never
// blocks publishers beyond the copy under the read lock.
func (b *Bus) Events(f Filter) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Event, 0)
	for i := len(b.history) - 1; i >= 0; i-- {
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
		if f.matches(b.history[i]) {
			out = append(out, b.history[i])
		}
	}
	return out
}

// Stats reports subscription counts by topic and the current history length.
// Diagnostic only; the snapshot is not transactional with ongoing publishes.
type Stats struct {
	Subscriptions map[Topic]int `json:"subscriptions"`
	HistoryLength int           `json:"history_length"`
}

// Stats returns a snapshot of the bus state.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	counts := make(map[Topic]int, len(b.byTopic))
	for topic, set := range b.byTopic {
		counts[topic] = len(set)
	}
	return Stats{Subscriptions: counts, HistoryLength: len(b.history)}
}

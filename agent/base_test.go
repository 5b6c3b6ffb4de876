package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alphamesh/alphamesh/bus"
	"github.com/alphamesh/alphamesh/graph"
)

func newTestBase(b *bus.Bus, optFns ...func(o *Options)) *Base {
	return NewBase(Config{ID: "test-agent", Name: "Test Agent"}, b, graph.New(), optFns...)
}

func TestBase_StartLifecycle(t *testing.T) {
	b := bus.New()
	base := newTestBase(b)
	ctx := context.Background()

	var order []string
	base.SetHooks(Hooks{
		Subscriptions: func(ctx context.Context) error {
			order = append(order, "subscriptions")
			base.Subscribe(bus.TopicDataIngested, func(ctx context.Context, ev bus.Event) error { return nil })
			return nil
		},
		Init: func(ctx context.Context) error {
			order = append(order, "init")
			return nil
		},
	})

	require.NoError(t, base.Start(ctx))
	assert.Equal(t, []string{"subscriptions", "init"}, order)
	assert.Equal(t, StateActive, base.State())
	assert.Equal(t, 1, base.Status().Subscriptions)

	started := b.Events(bus.Filter{Topic: bus.TopicAgentStarted})
	require.Len(t, started, 1)
	payload, ok := started[0].Payload.(bus.AgentLifecyclePayload)
	require.True(t, ok)
	assert.Equal(t, "test-agent", payload.AgentID)
}

func TestBase_StartFailureRollsBackSubscriptions(t *testing.T) {
	b := bus.New()
	base := newTestBase(b)
	ctx := context.Background()

	var invoked bool
	base.SetHooks(Hooks{
		Subscriptions: func(ctx context.Context) error {
			base.Subscribe(bus.TopicDataIngested, func(ctx context.Context, ev bus.Event) error {
				invoked = true
				return nil
			})
			return nil
		},
		Init: func(ctx context.Context) error { return errors.New("dependency missing") },
	})

	err := base.Start(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "init")
	assert.Equal(t, StateError, base.State())

	// The partial subscription must be gone from the bus.
	b.Publish(ctx, bus.TopicDataIngested, nil, "pub", nil)
	assert.False(t, invoked)
	assert.Empty(t, b.Stats().Subscriptions)
	assert.Empty(t, b.Events(bus.Filter{Topic: bus.TopicAgentStarted}))
}

func TestBase_HandlerSuccessSettlesIdle(t *testing.T) {
	b := bus.New()
	base := newTestBase(b)
	ctx := context.Background()

	base.SetHooks(Hooks{
		Subscriptions: func(ctx context.Context) error {
			base.Subscribe(bus.TopicDataIngested, func(ctx context.Context, ev bus.Event) error { return nil })
			return nil
		},
	})
	require.NoError(t, base.Start(ctx))

	b.Publish(ctx, bus.TopicDataIngested, nil, "pub", nil)

	assert.Equal(t, StateIdle, base.State())
	metrics := base.Status().Metrics
	assert.Equal(t, 1, metrics.TasksCompleted)
	assert.Zero(t, metrics.ErrorCount)
	assert.Equal(t, 1.0, metrics.SuccessRate)
	assert.False(t, metrics.LastActive.IsZero())
}

func TestBase_HandlerErrorSelfHeals(t *testing.T) {
	b := bus.New()
	base := newTestBase(b, func(o *Options) { o.ErrorResetDelay = 20 * time.Millisecond })
	ctx := context.Background()

	base.SetHooks(Hooks{
		Subscriptions: func(ctx context.Context) error {
			base.Subscribe(bus.TopicDataIngested, func(ctx context.Context, ev bus.Event) error {
				return errors.New("boom")
			})
			return nil
		},
	})
	require.NoError(t, base.Start(ctx))

	b.Publish(ctx, bus.TopicDataIngested, nil, "pub", nil)
	assert.Equal(t, StateError, base.State())

	// Exactly one agent.error event for the failure.
	errEvents := b.Events(bus.Filter{Topic: bus.TopicAgentError})
	require.Len(t, errEvents, 1)
	payload, ok := errEvents[0].Payload.(bus.HandlerErrorPayload)
	require.True(t, ok)
	assert.Equal(t, "test-agent", payload.AgentID)
	assert.Equal(t, bus.TopicDataIngested, payload.EventTopic)

	require.Eventually(t, func() bool { return base.State() == StateIdle },
		time.Second, 5*time.Millisecond, "agent should self-heal back to idle")

	metrics := base.Status().Metrics
	assert.Equal(t, 1, metrics.ErrorCount)
	assert.Zero(t, metrics.SuccessRate)
}

func TestBase_StopCancelsPendingReset(t *testing.T) {
	b := bus.New()
	base := newTestBase(b, func(o *Options) { o.ErrorResetDelay = 20 * time.Millisecond })
	ctx := context.Background()

	base.SetHooks(Hooks{
		Subscriptions: func(ctx context.Context) error {
			base.Subscribe(bus.TopicDataIngested, func(ctx context.Context, ev bus.Event) error {
				return errors.New("boom")
			})
			return nil
		},
	})
	require.NoError(t, base.Start(ctx))

	b.Publish(ctx, bus.TopicDataIngested, nil, "pub", nil)
	require.Equal(t, StateError, base.State())
	require.NoError(t, base.Stop(ctx))
	require.Equal(t, StateStopped, base.State())

	// The reset must not fire after stop and flip the agent back to idle.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, StateStopped, base.State())
}

func TestBase_InFlightFailureDoesNotReviveStoppedAgent(t *testing.T) {
	b := bus.New()
	base := newTestBase(b, func(o *Options) { o.ErrorResetDelay = 20 * time.Millisecond })
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	base.SetHooks(Hooks{
		Subscriptions: func(ctx context.Context) error {
			base.Subscribe(bus.TopicDataIngested, func(ctx context.Context, ev bus.Event) error {
				close(entered)
				<-release
				return errors.New("late failure")
			})
			return nil
		},
	})
	require.NoError(t, base.Start(ctx))

	done := make(chan struct{})
	go func() {
		b.Publish(ctx, bus.TopicDataIngested, nil, "pub", nil)
		close(done)
	}()
	<-entered
	require.NoError(t, base.Stop(ctx))
	require.Equal(t, StateStopped, base.State())
	close(release)
	<-done

	assert.Equal(t, StateStopped, base.State(), "a late handler failure must not revive a stopped agent")
	assert.Equal(t, 1, base.Status().Metrics.ErrorCount, "the failure is still counted")

	// No reset timer may fire later and flip the agent to idle.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, StateStopped, base.State())
}

func TestBase_StopRemovesSubscriptions(t *testing.T) {
	b := bus.New()
	base := newTestBase(b)
	ctx := context.Background()

	var invoked int
	var cleaned bool
	base.SetHooks(Hooks{
		Subscriptions: func(ctx context.Context) error {
			base.Subscribe(bus.TopicDataIngested, func(ctx context.Context, ev bus.Event) error {
				invoked++
				return nil
			})
			return nil
		},
		Cleanup: func(ctx context.Context) error {
			cleaned = true
			return nil
		},
	})
	require.NoError(t, base.Start(ctx))
	b.Publish(ctx, bus.TopicDataIngested, nil, "pub", nil)
	require.NoError(t, base.Stop(ctx))

	assert.True(t, cleaned)
	assert.Zero(t, base.Status().Subscriptions)
	b.Publish(ctx, bus.TopicDataIngested, nil, "pub", nil)
	assert.Equal(t, 1, invoked, "no delivery after stop")

	stopped := b.Events(bus.Filter{Topic: bus.TopicAgentStopped})
	assert.Len(t, stopped, 1)
}

func TestBase_StopCleanupFailure(t *testing.T) {
	b := bus.New()
	base := newTestBase(b)
	ctx := context.Background()

	base.SetHooks(Hooks{
		Cleanup: func(ctx context.Context) error { return errors.New("flush failed") },
	})
	require.NoError(t, base.Start(ctx))

	err := base.Stop(ctx)
	require.Error(t, err)
	assert.Equal(t, StateError, base.State())
	assert.Empty(t, b.Events(bus.Filter{Topic: bus.TopicAgentStopped}))
}

func TestBase_Unsubscribe(t *testing.T) {
	b := bus.New()
	base := newTestBase(b)
	ctx := context.Background()
	require.NoError(t, base.Start(ctx))

	id := base.Subscribe(bus.TopicDataIngested, func(ctx context.Context, ev bus.Event) error { return nil })
	require.Equal(t, 1, base.Status().Subscriptions)

	assert.True(t, base.Unsubscribe(id))
	assert.Zero(t, base.Status().Subscriptions)
	assert.False(t, base.Unsubscribe(id))
}

func TestMetricsRecorder_WindowAndRates(t *testing.T) {
	rec := newMetricsRecorder(3)

	rec.recordSuccess(10 * time.Millisecond)
	rec.recordSuccess(20 * time.Millisecond)
	rec.recordSuccess(30 * time.Millisecond)
	rec.recordSuccess(40 * time.Millisecond) // evicts the 10ms sample
	rec.recordError()

	snap := rec.snapshot()
	assert.Equal(t, 4, snap.TasksCompleted)
	assert.Equal(t, 1, snap.ErrorCount)
	assert.Equal(t, 30*time.Millisecond, snap.AvgResponseTime, "average over the retained window only")
	assert.InDelta(t, 0.8, snap.SuccessRate, 1e-9)
}

func TestMetricsRecorder_EmptySnapshot(t *testing.T) {
	snap := newMetricsRecorder(0).snapshot()
	assert.Zero(t, snap.TasksCompleted)
	assert.Zero(t, snap.AvgResponseTime)
	assert.Equal(t, 1.0, snap.SuccessRate, "no work yet means a perfect rate")
}

package orchestrator

import (
	"time"

	"github.com/alphamesh/alphamesh/agent"
	"github.com/alphamesh/alphamesh/bus"
)

// recentErrorLimit bounds the error strings included in a SystemStatus.
const recentErrorLimit = 10

// SystemStatus is the aggregate snapshot exposed to outer layers. It is a
// data-shape contract only; the HTTP/CLI binding lives outside this module.
type SystemStatus struct {
	Running         bool          `json:"running"`
	ActiveAgents    int           `json:"active_agents"`
	TotalAgents     int           `json:"total_agents"`
	TasksCompleted  int           `json:"tasks_completed"`
	ErrorCount      int           `json:"error_count"`
	RecentErrors    []string      `json:"recent_errors,omitempty"`
	HistoryLength   int           `json:"history_length"`
	GeneratedAt     time.Time     `json:"generated_at"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
}

// SystemStatus aggregates the per-agent metrics, the recent agent.error
// events and the bus statistics into one snapshot.
func (o *Orchestrator) SystemStatus() SystemStatus {
	o.mu.Lock()
	running := o.running
	o.mu.Unlock()

	statuses := o.manager.Statuses()
	status := SystemStatus{
		Running:     running,
		TotalAgents: len(statuses),
		GeneratedAt: time.Now().UTC(),
	}

	var avgSum time.Duration
	var avgCount int
	for _, s := range statuses {
		if s.State == agent.StateActive || s.State == agent.StateIdle {
			status.ActiveAgents++
		}
		status.TasksCompleted += s.Metrics.TasksCompleted
		status.ErrorCount += s.Metrics.ErrorCount
		if s.Metrics.AvgResponseTime > 0 {
			avgSum += s.Metrics.AvgResponseTime
			avgCount++
		}
	}
	if avgCount > 0 {
		status.AvgResponseTime = avgSum / time.Duration(avgCount)
	}

	for _, ev := range o.bus.Events(bus.Filter{Topic: bus.TopicAgentError, Limit: recentErrorLimit}) {
		if p, ok := ev.Payload.(bus.HandlerErrorPayload); ok {
			status.RecentErrors = append(status.RecentErrors, p.Error)
		}
	}
	status.HistoryLength = o.bus.Stats().HistoryLength
	return status
}

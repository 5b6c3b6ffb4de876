package agent

import "time"

// DefaultSampleWindow bounds the rolling response-time sample used for the
// average; the oldest sample is evicted once the window is full.
const DefaultSampleWindow = 100

// Metrics is a read-only snapshot of an agent's counters. It is owned
// exclusively by the agent and exposed to the outside world only through
// Status queries.
type Metrics struct {
	TasksCompleted  int           `json:"tasks_completed"`
	ErrorCount      int           `json:"error_count"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
	SuccessRate     float64       `json:"success_rate"`
	LastActive      time.Time     `json:"last_active"`
}

// metricsRecorder accumulates counters and the bounded response-time window.
// Not goroutine safe on its own; Base serializes access under its mutex.
type metricsRecorder struct {
	tasksCompleted int
	errorCount     int
	samples        []time.Duration
	window         int
	lastActive     time.Time
}

func newMetricsRecorder(window int) *metricsRecorder {
	if window <= 0 {
		window = DefaultSampleWindow
	}
	return &metricsRecorder{window: window}
}

func (m *metricsRecorder) touch() { m.lastActive = time.Now().UTC() }

func (m *metricsRecorder) recordSuccess(elapsed time.Duration) {
	m.tasksCompleted++
	m.samples = append(m.samples, elapsed)
	if len(m.samples) > m.window {
		m.samples = m.samples[1:]
	}
}

func (m *metricsRecorder) recordError() { m.errorCount++ }

func (m *metricsRecorder) snapshot() Metrics {
	var avg time.Duration
	if len(m.samples) > 0 {
		var total time.Duration
		for _, s := range m.samples {
			total += s
		}
		avg = total / time.Duration(len(m.samples))
	}
	rate := 1.0
	if total := m.tasksCompleted + m.errorCount; total > 0 {
		rate = float64(m.tasksCompleted) / float64(total)
	}
	return Metrics{
		TasksCompleted:  m.tasksCompleted,
		ErrorCount:      m.errorCount,
		AvgResponseTime: avg,
		SuccessRate:     rate,
		LastActive:      m.lastActive,
	}
}

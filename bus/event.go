package bus

import (
	"time"

	"github.com/google/uuid"
)

// Event is the unit of communication between agents. After publication it
// must be treated as immutable: the bus retains it only in its bounded
// history ring and never mutates it.
//
// Payload carries a typed struct per topic family (see the *Payload types
// below); Metadata is a generic map reserved for forward-compatible optional
// attributes that have no stable schema yet.
type Event struct {
	ID        string         `json:"id"`
	Topic     Topic          `json:"topic"`
	Timestamp time.Time      `json:"timestamp"`
	Origin    string         `json:"origin"` // agent id of the publisher
	Payload   any            `json:"payload,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewID generates a unique identifier for events and subscriptions.
func NewID() string { return uuid.NewString() }

func newEvent(topic Topic, payload any, origin string, metadata map[string]any) Event {
	// Detach from the caller's map so later mutations cannot reach the
	// retained event or race concurrent subscribers.
	var md map[string]any
	if len(metadata) > 0 {
		md = make(map[string]any, len(metadata))
		for k, v := range metadata {
			md[k] = v
		}
	}
	return Event{
		ID:        NewID(),
		Topic:     topic,
		Timestamp: time.Now().UTC(),
		Origin:    origin,
		Payload:   payload,
		Metadata:  md,
	}
}

// Filter selects events from the history. Zero-valued fields act as
// wildcards; Limit == 0 means no limit.
type Filter struct {
	Topic  Topic     `json:"topic,omitempty"`
	Origin string    `json:"origin,omitempty"`
	Since  time.Time `json:"since,omitempty"`
	Limit  int       `json:"limit,omitempty"`
}

func (f Filter) matches(ev Event) bool {
	if f.Topic != "" && ev.Topic != f.Topic {
		return false
	}
	if f.Origin != "" && ev.Origin != f.Origin {
		return false
	}
	if !f.Since.IsZero() && ev.Timestamp.Before(f.Since) {
		return false
	}
	return true
}

// Typed payloads. One struct per topic family; consumers type-assert on the
// event's Payload field.

// MarketDataPayload is carried by data.ingested events.
type MarketDataPayload struct {
	Symbol       string    `json:"symbol"`
	Prices       []float64 `json:"prices,omitempty"`
	Returns      []float64 `json:"returns,omitempty"`
	Volume       float64   `json:"volume,omitempty"`
	Spread       float64   `json:"spread,omitempty"`
	CreditSpread float64   `json:"credit_spread,omitempty"`
	AsOf         time.Time `json:"as_of,omitempty"`
}

// QualityFlagPayload is carried by data.quality_flag events.
type QualityFlagPayload struct {
	Symbol string `json:"symbol"`
	Issue  string `json:"issue"`
	Detail string `json:"detail,omitempty"`
}

// NarrativePayload is carried by macro.narrative_updated events.
type NarrativePayload struct {
	Text    string   `json:"text"`
	Source  string   `json:"source,omitempty"`
	Themes  []string `json:"themes,omitempty"`
	AuthorC float64  `json:"author_confidence,omitempty"`
}

// RegimeChangePayload is carried by regime.state_change events.
type RegimeChangePayload struct {
	Regime      string             `json:"regime"`
	Previous    string             `json:"previous,omitempty"`
	Probability float64            `json:"probability"`
	Transitions map[string]float64 `json:"transitions,omitempty"`
}

// FactorCandidatePayload is carried by factor.candidate and factor.validated
// events.
type FactorCandidatePayload struct {
	Name       string  `json:"name"`
	Mechanism  string  `json:"mechanism"`
	Confidence float64 `json:"confidence"`
	EntityID   string  `json:"entity_id,omitempty"`
}

// StrategyPayload is carried by strategy.draft and strategy.evolved events.
type StrategyPayload struct {
	StrategyID       string    `json:"strategy_id"`
	Name             string    `json:"name"`
	PositionSize     float64   `json:"position_size"` // fraction of book
	Leverage         float64   `json:"leverage"`
	MaxDrawdown      float64   `json:"max_drawdown"`      // 0 when no control present
	Concentration    float64   `json:"concentration"`     // largest single exposure fraction
	ADVParticipation float64   `json:"adv_participation"` // fraction of daily volume
	Returns          []float64 `json:"returns,omitempty"`
	TargetRegime     string    `json:"target_regime,omitempty"`
	Legs             int       `json:"legs,omitempty"`
	Parameters       int       `json:"parameters,omitempty"`
}

// RiskAssessmentPayload is carried by risk.alert and
// strategy.robustness_report events.
type RiskAssessmentPayload struct {
	StrategyID string        `json:"strategy_id"`
	Verdict    string        `json:"verdict"`
	Score      float64       `json:"score"`
	Fragility  float64       `json:"fragility"`
	Checks     []CheckResult `json:"checks,omitempty"`
}

// CheckResult is a single risk-check outcome inside a RiskAssessmentPayload.
type CheckResult struct {
	Name     string  `json:"name"`
	Outcome  string  `json:"outcome"` // pass, warn, fail
	Severity string  `json:"severity"`
	Value    float64 `json:"value"`
	Limit    float64 `json:"limit"`
	Detail   string  `json:"detail,omitempty"`
}

// AgentLifecyclePayload is carried by agent.started and agent.stopped events.
type AgentLifecyclePayload struct {
	AgentID string `json:"agent_id"`
	Name    string `json:"name"`
}

// HandlerErrorPayload is carried by agent.error events, emitted either by the
// bus when a subscriber fails during fan-out or by the agent runtime when a
// wrapped handler returns an error.
type HandlerErrorPayload struct {
	AgentID    string `json:"agent_id"`
	EventTopic Topic  `json:"event_topic"`
	Error      string `json:"error"`
}

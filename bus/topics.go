package bus

// Topic is the string key events are published and subscribed against.
// Matching is exact; there is no wildcard or prefix routing.
type Topic string

// Topic catalog. These strings are a stable contract consumed by external
// surfaces (dashboards, HTTP bindings) and must not change.
const (
	TopicDataIngested      Topic = "data.ingested"
	TopicDataQualityFlag   Topic = "data.quality_flag"
	TopicNarrativeUpdated  Topic = "macro.narrative_updated"
	TopicRegimeStateChange Topic = "regime.state_change"
	TopicFactorCandidate   Topic = "factor.candidate"
	TopicFactorValidated   Topic = "factor.validated"
	TopicStrategyDraft     Topic = "strategy.draft"
	TopicStrategyEvolved   Topic = "strategy.evolved"
	TopicRobustnessReport  Topic = "strategy.robustness_report"
	TopicRiskAlert         Topic = "risk.alert"
	TopicDecayAlert        Topic = "decay.alert"
	TopicStressResult      Topic = "stress.result"
	TopicAllocationUpdate  Topic = "portfolio.allocation_update"
	TopicRoleScoreUpdate   Topic = "meta.role_score_update"
	TopicAgentError        Topic = "agent.error"
	TopicAgentStarted      Topic = "agent.started"
	TopicAgentStopped      Topic = "agent.stopped"
)

// String returns the topic as a plain string.
func (t Topic) String() string { return string(t) }

package analyst

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/alphamesh/alphamesh/agent"
	"github.com/alphamesh/alphamesh/bus"
	"github.com/alphamesh/alphamesh/graph"
)

// Check outcomes.
const (
	OutcomePass = "pass"
	OutcomeWarn = "warn"
	OutcomeFail = "fail"
)

// Check severities.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Verdicts.
const (
	VerdictPass = "pass"
	VerdictWarn = "warn"
	VerdictFail = "fail"
)

// Outcome point contributions before weighting.
var outcomePoints = map[string]float64{OutcomePass: 0, OutcomeWarn: 30, OutcomeFail: 100}

// severityMultipliers scale a check's weight by its severity label.
var severityMultipliers = map[string]float64{
	SeverityLow:      0.5,
	SeverityMedium:   1.0,
	SeverityHigh:     1.5,
	SeverityCritical: 2.0,
}

// checkSpec is one entry in the static check battery: warn/fail thresholds
// against a measured value, plus the category weight and severity used in
// the aggregate score.
type checkSpec struct {
	name     string
	severity string
	weight   float64
	warnAt   float64
	failAt   float64
}

// The static threshold table. Values are "measured quantity exceeds limit"
// checks; drawdown control and regime stability are special-cased in
// runCheck.
var checkTable = []checkSpec{
	{name: "position_size", severity: SeverityCritical, weight: 1.0, warnAt: 0.05, failAt: 0.10},
	{name: "correlation", severity: SeverityHigh, weight: 1.0, warnAt: 0.60, failAt: 0.80},
	{name: "drawdown_control", severity: SeverityCritical, weight: 1.0, warnAt: 0.15, failAt: 0.25},
	{name: "leverage", severity: SeverityHigh, weight: 1.0, warnAt: 2.0, failAt: 4.0},
	{name: "concentration", severity: SeverityMedium, weight: 0.8, warnAt: 0.30, failAt: 0.50},
	{name: "regime_stability", severity: SeverityMedium, weight: 0.6, warnAt: 0, failAt: 0},
	{name: "liquidity", severity: SeverityHigh, weight: 1.0, warnAt: 0.05, failAt: 0.15},
}

// maxAcceptedStrategies bounds the comparison set kept for correlation
// checks.
const maxAcceptedStrategies = 100

// RiskArbiter runs a fixed battery of independent checks over incoming
// strategy payloads, aggregates them into a capped score, a Pass/Warn/Fail
// verdict and a bounded fragility index, and maintains the accepted-strategy
// list used as the comparison set for future correlation checks.
type RiskArbiter struct {
	*agent.Base

	mu            sync.Mutex
	accepted      []bus.StrategyPayload
	currentRegime string
	regimeProb    float64
}

// NewRiskArbiter constructs the arbiter.
func NewRiskArbiter(cfg agent.Config, b *bus.Bus, g *graph.Graph, optFns ...func(o *agent.Options)) *RiskArbiter {
	r := &RiskArbiter{Base: agent.NewBase(cfg, b, g, optFns...)}
	r.SetHooks(agent.Hooks{Subscriptions: r.setupSubscriptions})
	return r
}

func (r *RiskArbiter) setupSubscriptions(context.Context) error {
	r.Subscribe(bus.TopicStrategyDraft, r.handleStrategy)
	r.Subscribe(bus.TopicStrategyEvolved, r.handleStrategy)
	r.Subscribe(bus.TopicRegimeStateChange, r.handleRegimeChange)
	return nil
}

func (r *RiskArbiter) handleRegimeChange(_ context.Context, ev bus.Event) error {
	rc, ok := ev.Payload.(bus.RegimeChangePayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T on %s", ev.Payload, ev.Topic)
	}
	r.mu.Lock()
	r.currentRegime = rc.Regime
	r.regimeProb = rc.Probability
	r.mu.Unlock()
	return nil
}

func (r *RiskArbiter) handleStrategy(ctx context.Context, ev bus.Event) error {
	strat, ok := ev.Payload.(bus.StrategyPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T on %s", ev.Payload, ev.Topic)
	}

	assessment := r.Assess(strat)

	entity := r.Graph().AddEntity(graph.EntityStrategy, map[string]any{
		"strategy_id": strat.StrategyID,
		"name":        strat.Name,
		"verdict":     assessment.Verdict,
		"score":       assessment.Score,
		"fragility":   assessment.Fragility,
	}, nil)
	for _, check := range assessment.Checks {
		if check.Outcome != OutcomeFail || check.Severity != SeverityCritical {
			continue
		}
		fm := r.Graph().AddEntity(graph.EntityFailureMode, map[string]any{
			"check":  check.Name,
			"detail": check.Detail,
		}, nil)
		r.Graph().AddRelation(graph.RelationExposedTo, entity.ID, fm.ID, nil, nil)
	}

	r.Publish(ctx, bus.TopicRobustnessReport, assessment, nil)
	if assessment.Verdict != VerdictPass {
		r.Publish(ctx, bus.TopicRiskAlert, assessment, nil)
	}
	return nil
}

// Assess runs the full check battery against one strategy payload. A passing
// strategy is appended to the accepted list used by later correlation
// checks.
func (r *RiskArbiter) Assess(strat bus.StrategyPayload) bus.RiskAssessmentPayload {
	r.mu.Lock()
	accepted := r.accepted
	regime := r.currentRegime
	regimeProb := r.regimeProb
	r.mu.Unlock()

	checks := make([]bus.CheckResult, 0, len(checkTable))
	for _, spec := range checkTable {
		checks = append(checks, runCheck(spec, strat, accepted, regime, regimeProb))
	}

	score := aggregateScore(checks)
	verdict := overallVerdict(checks, score)
	fragility := fragilityIndex(strat, checks, regime)

	if verdict == VerdictPass {
		r.mu.Lock()
		r.accepted = append(r.accepted, strat)
		if len(r.accepted) > maxAcceptedStrategies {
			r.accepted = r.accepted[1:]
		}
		r.mu.Unlock()
	}

	return bus.RiskAssessmentPayload{
		StrategyID: strat.StrategyID,
		Verdict:    verdict,
		Score:      score,
		Fragility:  fragility,
		Checks:     checks,
	}
}

func runCheck(spec checkSpec, strat bus.StrategyPayload, accepted []bus.StrategyPayload, regime string, regimeProb float64) bus.CheckResult {
	res := bus.CheckResult{Name: spec.name, Severity: spec.severity, Outcome: OutcomePass}

	switch spec.name {
	case "position_size":
		res.Value, res.Limit = strat.PositionSize, spec.failAt
		res.Outcome = classify(strat.PositionSize, spec.warnAt, spec.failAt)
	case "correlation":
		corr := maxCorrelation(strat.Returns, accepted)
		res.Value, res.Limit = corr, spec.failAt
		res.Outcome = classify(corr, spec.warnAt, spec.failAt)
	case "drawdown_control":
		res.Value, res.Limit = strat.MaxDrawdown, spec.failAt
		switch {
		case strat.MaxDrawdown <= 0:
			res.Outcome = OutcomeFail
			res.Detail = "no drawdown control present"
		case strat.MaxDrawdown > spec.failAt:
			res.Outcome = OutcomeWarn
			res.Detail = "drawdown limit very loose"
		}
	case "leverage":
		res.Value, res.Limit = strat.Leverage, spec.failAt
		res.Outcome = classify(strat.Leverage, spec.warnAt, spec.failAt)
	case "concentration":
		res.Value, res.Limit = strat.Concentration, spec.failAt
		res.Outcome = classify(strat.Concentration, spec.warnAt, spec.failAt)
	case "regime_stability":
		if regime != "" && strat.TargetRegime != "" && strat.TargetRegime != regime {
			res.Detail = fmt.Sprintf("targets %s while %s is active", strat.TargetRegime, regime)
			res.Outcome = OutcomeWarn
			if regimeProb > 0.8 {
				res.Outcome = OutcomeFail
			}
		}
	case "liquidity":
		res.Value, res.Limit = strat.ADVParticipation, spec.failAt
		res.Outcome = classify(strat.ADVParticipation, spec.warnAt, spec.failAt)
	}
	return res
}

func classify(value, warnAt, failAt float64) string {
	switch {
	case value > failAt:
		return OutcomeFail
	case value > warnAt:
		return OutcomeWarn
	default:
		return OutcomePass
	}
}

// aggregateScore is the weighted mean of the outcome points, each check
// weighted by category weight times severity multiplier, capped at 100.
func aggregateScore(checks []bus.CheckResult) float64 {
	specByName := make(map[string]checkSpec, len(checkTable))
	for _, spec := range checkTable {
		specByName[spec.name] = spec
	}
	var weighted, totalWeight float64
	for _, check := range checks {
		w := specByName[check.Name].weight * severityMultipliers[check.Severity]
		weighted += outcomePoints[check.Outcome] * w
		totalWeight += w
	}
	if totalWeight == 0 {
		return 0
	}
	return math.Min(weighted/totalWeight, 100)
}

// overallVerdict applies the fixed decision ladder: any critical fail is an
// outright Fail; two fails or a score above 60 Fail; any fail or a score
// above 30 Warn; otherwise Pass.
func overallVerdict(checks []bus.CheckResult, score float64) string {
	fails := 0
	for _, check := range checks {
		if check.Outcome != OutcomeFail {
			continue
		}
		if check.Severity == SeverityCritical {
			return VerdictFail
		}
		fails++
	}
	switch {
	case fails >= 2 || score > 60:
		return VerdictFail
	case fails >= 1 || score > 30:
		return VerdictWarn
	default:
		return VerdictPass
	}
}

// fragilityIndex accumulates additive penalties from structural complexity,
// failed or warned checks, critical severities and regime mismatch, capped
// at 1.
func fragilityIndex(strat bus.StrategyPayload, checks []bus.CheckResult, regime string) float64 {
	var f float64
	if strat.Legs > 1 {
		f += 0.02 * float64(strat.Legs-1)
	}
	if strat.Parameters > 5 {
		f += 0.01 * float64(strat.Parameters-5)
	}
	for _, check := range checks {
		switch check.Outcome {
		case OutcomeFail:
			f += 0.08
			if check.Severity == SeverityCritical {
				f += 0.15
			}
		case OutcomeWarn:
			f += 0.04
		}
	}
	if regime != "" && strat.TargetRegime != "" && strat.TargetRegime != regime {
		f += 0.10
	}
	return math.Min(f, 1)
}

// maxCorrelation is the largest Pearson correlation between the candidate's
// return series and any accepted strategy's series. Series shorter than two
// overlapping samples contribute nothing.
func maxCorrelation(returns []float64, accepted []bus.StrategyPayload) float64 {
	var best float64
	for _, other := range accepted {
		if c := pearson(returns, other.Returns); c > best {
			best = c
		}
	}
	return best
}

func pearson(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n < 2 {
		return 0
	}
	var meanA, meanB float64
	for i := 0; i < n; i++ {
		meanA += a[i]
		meanB += b[i]
	}
	meanA /= float64(n)
	meanB /= float64(n)
	var cov, varA, varB float64
	for i := 0; i < n; i++ {
		da, db := a[i]-meanA, b[i]-meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}
	if varA == 0 || varB == 0 {
		return 0
	}
	return cov / math.Sqrt(varA*varB)
}

// Accepted returns a copy of the accepted-strategy comparison set.
func (r *RiskArbiter) Accepted() []bus.StrategyPayload {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]bus.StrategyPayload, len(r.accepted))
	copy(out, r.accepted)
	return out
}

var _ agent.Agent = (*RiskArbiter)(nil)

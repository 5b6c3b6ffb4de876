package analyst

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/alphamesh/alphamesh/agent"
	"github.com/alphamesh/alphamesh/bus"
	"github.com/alphamesh/alphamesh/graph"
)

// regimeSwitchThreshold is the posterior probability a regime must exceed
// before the classifier records a regime change.
const regimeSwitchThreshold = 0.6

// Regime names. The set is fixed; probabilities over it always sum to 1.
const (
	RegimeRiskOnGrowth  = "risk_on_growth"
	RegimeRiskOffStress = "risk_off_stress"
	RegimeTransition    = "transition"
	RegimeStagflation   = "stagflation"
)

// ordinal characteristic levels used to key the Gaussian lookup tables.
const (
	levelLow     = "low"
	levelMedium  = "medium"
	levelHigh    = "high"
	levelFalling = "falling"
	levelFlat    = "flat"
	levelRising  = "rising"
)

// regimeProfile assigns an ordinal level per feature to a regime.
type regimeProfile struct {
	Volatility   string
	Liquidity    string
	CreditStress string
	Dispersion   string
	Momentum     string
}

// regimeState is the classifier's private record for one regime.
type regimeState struct {
	name        string
	probability float64
	profile     regimeProfile
	transitions map[string]float64
}

// gaussParam is a (mean, variance) pair for one ordinal level of one feature.
type gaussParam struct{ mean, variance float64 }

// Lookup tables mapping ordinal characteristic levels to Gaussian kernel
// parameters. Liquidity is evaluated on log10(1+ratio) to tame its scale.
var (
	volParams = map[string]gaussParam{
		levelLow:    {0.10, 0.01},
		levelMedium: {0.22, 0.01},
		levelHigh:   {0.40, 0.02},
	}
	liqParams = map[string]gaussParam{
		levelLow:    {4, 9},
		levelMedium: {6, 9},
		levelHigh:   {8, 9},
	}
	creditParams = map[string]gaussParam{
		levelLow:    {0.8, 1},
		levelMedium: {2.0, 2},
		levelHigh:   {4.0, 4},
	}
	dispParams = map[string]gaussParam{
		levelLow:    {0.008, 0.0001},
		levelMedium: {0.018, 0.0001},
		levelHigh:   {0.035, 0.0004},
	}
	momParams = map[string]gaussParam{
		levelFalling: {-0.05, 0.01},
		levelFlat:    {0, 0.01},
		levelRising:  {0.05, 0.01},
	}
)

// narrative keyword tables. A hit multiplies the listed regimes' weights
// before renormalization.
var (
	riskOnKeywords    = []string{"growth", "stimulus", "expansion", "rally", "easing", "goldilocks"}
	riskOffKeywords   = []string{"recession", "crisis", "default", "stress", "contagion", "tightening", "war"}
	inflationKeywords = []string{"inflation", "stagflation", "supply shock", "shortage"}
)

const narrativeBias = 1.15

// RegimeClassifier is a probabilistic market-state estimator. On each market
// data event it derives a feature vector, performs an unnormalized Bayesian
// update of the regime probabilities via independent Gaussian kernels and
// renormalizes. Narrative events bias the probabilities multiplicatively by
// keyword presence before the same renormalization step.
type RegimeClassifier struct {
	*agent.Base

	mu      sync.Mutex
	regimes map[string]*regimeState
	active  string
}

// NewRegimeClassifier constructs the classifier with a uniform prior over
// the fixed regime set.
func NewRegimeClassifier(cfg agent.Config, b *bus.Bus, g *graph.Graph, optFns ...func(o *agent.Options)) *RegimeClassifier {
	c := &RegimeClassifier{
		Base:    agent.NewBase(cfg, b, g, optFns...),
		regimes: defaultRegimes(),
	}
	c.SetHooks(agent.Hooks{Subscriptions: c.setupSubscriptions})
	return c
}

func defaultRegimes() map[string]*regimeState {
	states := map[string]*regimeState{
		RegimeRiskOnGrowth: {
			profile:     regimeProfile{Volatility: levelLow, Liquidity: levelHigh, CreditStress: levelLow, Dispersion: levelLow, Momentum: levelRising},
			transitions: map[string]float64{RegimeRiskOnGrowth: 0.85, RegimeTransition: 0.10, RegimeRiskOffStress: 0.03, RegimeStagflation: 0.02},
		},
		RegimeRiskOffStress: {
			profile:     regimeProfile{Volatility: levelHigh, Liquidity: levelLow, CreditStress: levelHigh, Dispersion: levelHigh, Momentum: levelFalling},
			transitions: map[string]float64{RegimeRiskOffStress: 0.75, RegimeTransition: 0.15, RegimeStagflation: 0.07, RegimeRiskOnGrowth: 0.03},
		},
		RegimeTransition: {
			profile:     regimeProfile{Volatility: levelMedium, Liquidity: levelMedium, CreditStress: levelMedium, Dispersion: levelMedium, Momentum: levelFlat},
			transitions: map[string]float64{RegimeTransition: 0.60, RegimeRiskOnGrowth: 0.18, RegimeRiskOffStress: 0.14, RegimeStagflation: 0.08},
		},
		RegimeStagflation: {
			profile:     regimeProfile{Volatility: levelMedium, Liquidity: levelLow, CreditStress: levelHigh, Dispersion: levelMedium, Momentum: levelFalling},
			transitions: map[string]float64{RegimeStagflation: 0.70, RegimeTransition: 0.15, RegimeRiskOffStress: 0.12, RegimeRiskOnGrowth: 0.03},
		},
	}
	prior := 1.0 / float64(len(states))
	for name, s := range states {
		s.name = name
		s.probability = prior
	}
	return states
}

func (c *RegimeClassifier) setupSubscriptions(context.Context) error {
	c.Subscribe(bus.TopicDataIngested, c.handleMarketData)
	c.Subscribe(bus.TopicNarrativeUpdated, c.handleNarrative)
	return nil
}

func (c *RegimeClassifier) handleMarketData(ctx context.Context, ev bus.Event) error {
	md, ok := ev.Payload.(bus.MarketDataPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T on %s", ev.Payload, ev.Topic)
	}

	features := extractFeatures(md)

	c.mu.Lock()
	for _, s := range c.regimes {
		s.probability *= likelihood(features, s.profile)
	}
	c.normalizeLocked()
	top, prob := c.dominantLocked()
	changed := prob > regimeSwitchThreshold && top != c.active
	var previous string
	var transitions map[string]float64
	if changed {
		previous = c.active
		c.active = top
		transitions = copyTransitions(c.regimes[top].transitions)
	}
	c.mu.Unlock()

	if !changed {
		return nil
	}

	c.Graph().AddEntity(graph.EntityRegime, map[string]any{
		"name":        top,
		"probability": prob,
		"previous":    previous,
	}, nil)
	c.Publish(ctx, bus.TopicRegimeStateChange, bus.RegimeChangePayload{
		Regime:      top,
		Previous:    previous,
		Probability: prob,
		Transitions: transitions,
	}, nil)
	c.Logger().Info("regime change", "regime", top, "probability", prob)
	return nil
}

func (c *RegimeClassifier) handleNarrative(_ context.Context, ev bus.Event) error {
	n, ok := ev.Payload.(bus.NarrativePayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T on %s", ev.Payload, ev.Topic)
	}
	text := strings.ToLower(n.Text)

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, kw := range riskOnKeywords {
		if strings.Contains(text, kw) {
			c.regimes[RegimeRiskOnGrowth].probability *= narrativeBias
		}
	}
	for _, kw := range riskOffKeywords {
		if strings.Contains(text, kw) {
			c.regimes[RegimeRiskOffStress].probability *= narrativeBias
		}
	}
	for _, kw := range inflationKeywords {
		if strings.Contains(text, kw) {
			c.regimes[RegimeStagflation].probability *= narrativeBias
		}
	}
	c.normalizeLocked()
	return nil
}

// likelihood multiplies independent Gaussian kernels, one per feature, keyed
// by the regime's ordinal characteristic levels.
func likelihood(f featureVector, p regimeProfile) float64 {
	l := gaussian(f.Volatility, volParams[p.Volatility])
	l *= gaussian(math.Log10(1+f.Liquidity), liqParams[p.Liquidity])
	l *= gaussian(f.CreditSpread, creditParams[p.CreditStress])
	l *= gaussian(f.Dispersion, dispParams[p.Dispersion])
	l *= gaussian(f.Momentum, momParams[p.Momentum])
	return l
}

// gaussian is an unnormalized kernel; the constant factor cancels in the
// renormalization step.
func gaussian(x float64, p gaussParam) float64 {
	d := x - p.mean
	return math.Exp(-(d * d) / (2 * p.variance))
}

// normalizeLocked rescales the probabilities to sum to 1. A vanished total
// (all likelihoods underflowed) resets to the uniform prior rather than
// corrupting the distribution.
func (c *RegimeClassifier) normalizeLocked() {
	var total float64
	for _, s := range c.regimes {
		total += s.probability
	}
	if total <= 0 {
		uniform := 1.0 / float64(len(c.regimes))
		for _, s := range c.regimes {
			s.probability = uniform
		}
		return
	}
	for _, s := range c.regimes {
		s.probability /= total
	}
}

func (c *RegimeClassifier) dominantLocked() (string, float64) {
	var top string
	best := -1.0
	for name, s := range c.regimes {
		if s.probability > best {
			best = s.probability
			top = name
		}
	}
	return top, best
}

// Probabilities returns a copy of the current regime probability set.
func (c *RegimeClassifier) Probabilities() map[string]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]float64, len(c.regimes))
	for name, s := range c.regimes {
		out[name] = s.probability
	}
	return out
}

// ActiveRegime returns the currently recorded active regime, empty before the
// first recorded change.
func (c *RegimeClassifier) ActiveRegime() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func copyTransitions(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

var _ agent.Agent = (*RegimeClassifier)(nil)

package analyst

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/alphamesh/alphamesh/agent"
	"github.com/alphamesh/alphamesh/bus"
	"github.com/alphamesh/alphamesh/graph"
	"github.com/alphamesh/alphamesh/model"
)

// similarFactorThreshold is the cosine similarity above which a new
// hypothesis is linked to an existing factor entity.
const similarFactorThreshold = 0.85

// hypothesis is a validated candidate produced from model output.
type hypothesis struct {
	Name       string
	Mechanism  string
	Confidence float64
}

// HypothesisGenerator turns narrative and regime-change events into factor
// hypotheses via the configured language-model provider. Candidates that
// fail validation (empty mechanism, out-of-range confidence) are discarded
// silently: nothing is published and no error reaches the bus.
type HypothesisGenerator struct {
	*agent.Base
}

// NewHypothesisGenerator constructs the generator. The agent requires a
// language-model provider; Start fails without one.
func NewHypothesisGenerator(cfg agent.Config, b *bus.Bus, g *graph.Graph, optFns ...func(o *agent.Options)) *HypothesisGenerator {
	h := &HypothesisGenerator{Base: agent.NewBase(cfg, b, g, optFns...)}
	h.SetHooks(agent.Hooks{Subscriptions: h.setupSubscriptions, Init: h.init})
	return h
}

func (h *HypothesisGenerator) setupSubscriptions(context.Context) error {
	h.Subscribe(bus.TopicNarrativeUpdated, h.handleNarrative)
	h.Subscribe(bus.TopicRegimeStateChange, h.handleRegimeChange)
	return nil
}

func (h *HypothesisGenerator) init(context.Context) error {
	if h.Provider() == nil {
		return errors.New("hypothesis generator requires a language-model provider")
	}
	return nil
}

func (h *HypothesisGenerator) handleNarrative(ctx context.Context, ev bus.Event) error {
	n, ok := ev.Payload.(bus.NarrativePayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T on %s", ev.Payload, ev.Topic)
	}
	prompt := fmt.Sprintf(
		"Given the following macro narrative, propose one tradable factor hypothesis.\n"+
			"Respond with exactly three lines:\nFACTOR: <short name>\nMECHANISM: <one sentence causal mechanism>\nCONFIDENCE: <0..1>\n\nNarrative: %s",
		n.Text,
	)
	return h.generate(ctx, prompt, map[string]any{"source": "narrative"})
}

func (h *HypothesisGenerator) handleRegimeChange(ctx context.Context, ev bus.Event) error {
	rc, ok := ev.Payload.(bus.RegimeChangePayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T on %s", ev.Payload, ev.Topic)
	}
	prompt := fmt.Sprintf(
		"The market regime changed from %q to %q (probability %.2f). Propose one factor hypothesis suited to the new regime.\n"+
			"Respond with exactly three lines:\nFACTOR: <short name>\nMECHANISM: <one sentence causal mechanism>\nCONFIDENCE: <0..1>",
		rc.Previous, rc.Regime, rc.Probability,
	)
	return h.generate(ctx, prompt, map[string]any{"source": "regime_change", "regime": rc.Regime})
}

func (h *HypothesisGenerator) generate(ctx context.Context, prompt string, metadata map[string]any) error {
	text, err := h.Provider().GenerateText(ctx, prompt, model.Options{MaxTokens: 256})
	if err != nil {
		return fmt.Errorf("generate hypothesis: %w", err)
	}

	hyp, ok := parseHypothesis(text)
	if !ok {
		// Malformed candidate; a filtered no-op rather than an error.
		h.Logger().Debug("discarded malformed hypothesis", "raw", text)
		return nil
	}

	embedding, err := h.Provider().GenerateEmbedding(ctx, hyp.Mechanism)
	if err != nil {
		// Providers without embeddings still produce usable hypotheses.
		embedding = nil
	}

	entity := h.Graph().AddEntity(graph.EntityFactor, map[string]any{
		"name":       hyp.Name,
		"mechanism":  hyp.Mechanism,
		"confidence": hyp.Confidence,
		"status":     "candidate",
	}, embedding)

	if embedding != nil {
		for _, similar := range h.Graph().FindSimilar(embedding, graph.EntityFactor, 3, similarFactorThreshold) {
			if similar.Entity.ID == entity.ID {
				continue
			}
			w := similar.Similarity
			h.Graph().AddRelation(graph.RelationSimilarTo, entity.ID, similar.Entity.ID, nil, &w)
		}
	}

	h.Publish(ctx, bus.TopicFactorCandidate, bus.FactorCandidatePayload{
		Name:       hyp.Name,
		Mechanism:  hyp.Mechanism,
		Confidence: hyp.Confidence,
		EntityID:   entity.ID,
	}, metadata)
	return nil
}

// parseHypothesis extracts the FACTOR/MECHANISM/CONFIDENCE lines from model
// output. The second return is false when the candidate fails validation: a
// missing or empty mechanism, or a confidence outside [0, 1].
func parseHypothesis(text string) (hypothesis, bool) {
	var hyp hypothesis
	confidenceSeen := false
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "FACTOR:"):
			hyp.Name = strings.TrimSpace(strings.TrimPrefix(line, "FACTOR:"))
		case strings.HasPrefix(line, "MECHANISM:"):
			hyp.Mechanism = strings.TrimSpace(strings.TrimPrefix(line, "MECHANISM:"))
		case strings.HasPrefix(line, "CONFIDENCE:"):
			raw := strings.TrimSpace(strings.TrimPrefix(line, "CONFIDENCE:"))
			conf, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return hypothesis{}, false
			}
			hyp.Confidence = conf
			confidenceSeen = true
		}
	}
	if hyp.Name == "" || hyp.Mechanism == "" || !confidenceSeen {
		return hypothesis{}, false
	}
	if hyp.Confidence < 0 || hyp.Confidence > 1 {
		return hypothesis{}, false
	}
	return hyp, true
}

var _ agent.Agent = (*HypothesisGenerator)(nil)

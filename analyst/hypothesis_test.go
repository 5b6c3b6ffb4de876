package analyst

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alphamesh/alphamesh/agent"
	"github.com/alphamesh/alphamesh/bus"
	"github.com/alphamesh/alphamesh/graph"
	"github.com/alphamesh/alphamesh/model"
)

// scriptedProvider returns canned completions in order and a fixed embedding.
type scriptedProvider struct {
	responses []string
	embedding []float64
	textErr   error
	embedErr  error
	calls     int
}

func (p *scriptedProvider) GenerateText(ctx context.Context, prompt string, opts model.Options) (string, error) {
	if p.textErr != nil {
		return "", p.textErr
	}
	if p.calls >= len(p.responses) {
		return "", errors.New("no scripted response left")
	}
	text := p.responses[p.calls]
	p.calls++
	return text, nil
}

func (p *scriptedProvider) GenerateEmbedding(ctx context.Context, text string) ([]float64, error) {
	if p.embedErr != nil {
		return nil, p.embedErr
	}
	return p.embedding, nil
}

func newGenerator(t *testing.T, p model.Provider) (*HypothesisGenerator, *bus.Bus, *graph.Graph) {
	t.Helper()
	b := bus.New()
	g := graph.New()
	h := NewHypothesisGenerator(agent.Config{ID: "hypothesis-generator", Name: "Hypothesis Generator", Provider: p}, b, g)
	require.NoError(t, h.Start(context.Background()))
	t.Cleanup(func() { _ = h.Stop(context.Background()) })
	return h, b, g
}

func TestHypothesisGenerator_RequiresProvider(t *testing.T) {
	b := bus.New()
	h := NewHypothesisGenerator(agent.Config{ID: "hg", Name: "HG"}, b, graph.New())

	err := h.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, agent.StateError, h.State())
}

func TestHypothesisGenerator_ValidCandidate(t *testing.T) {
	provider := &scriptedProvider{
		responses: []string{"FACTOR: Credit Crunch Beta\nMECHANISM: Widening spreads force levered funds to deleverage.\nCONFIDENCE: 0.72"},
		embedding: []float64{0.6, 0.8},
	}
	h, b, g := newGenerator(t, provider)
	ctx := context.Background()

	b.Publish(ctx, bus.TopicNarrativeUpdated, bus.NarrativePayload{Text: "credit stress building", Source: "wire"}, "feed", nil)

	candidates := b.Events(bus.Filter{Topic: bus.TopicFactorCandidate})
	require.Len(t, candidates, 1)
	payload, ok := candidates[0].Payload.(bus.FactorCandidatePayload)
	require.True(t, ok)
	assert.Equal(t, "Credit Crunch Beta", payload.Name)
	assert.Equal(t, "Widening spreads force levered funds to deleverage.", payload.Mechanism)
	assert.Equal(t, 0.72, payload.Confidence)
	require.NotEmpty(t, payload.EntityID)

	entity, ok := g.GetEntity(payload.EntityID)
	require.True(t, ok)
	assert.Equal(t, graph.EntityFactor, entity.Type)
	assert.Equal(t, "candidate", entity.Properties["status"])
	assert.Equal(t, []float64{0.6, 0.8}, entity.Embedding)

	assert.Equal(t, agent.StateIdle, h.State())
}

func TestHypothesisGenerator_MalformedCandidatesDiscardedSilently(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "free-form prose", raw: "I think momentum might work here."},
		{name: "missing mechanism", raw: "FACTOR: Carry\nCONFIDENCE: 0.5"},
		{name: "confidence above one", raw: "FACTOR: Carry\nMECHANISM: Rates gap.\nCONFIDENCE: 1.5"},
		{name: "negative confidence", raw: "FACTOR: Carry\nMECHANISM: Rates gap.\nCONFIDENCE: -0.1"},
		{name: "unparseable confidence", raw: "FACTOR: Carry\nMECHANISM: Rates gap.\nCONFIDENCE: high"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, b, g := newGenerator(t, &scriptedProvider{responses: []string{tt.raw}})
			ctx := context.Background()

			b.Publish(ctx, bus.TopicNarrativeUpdated, bus.NarrativePayload{Text: "noise"}, "feed", nil)

			assert.Empty(t, b.Events(bus.Filter{Topic: bus.TopicFactorCandidate}))
			assert.Empty(t, b.Events(bus.Filter{Topic: bus.TopicAgentError}), "a discard is not an error")
			assert.Zero(t, g.Stats().Entities)
			assert.Equal(t, agent.StateIdle, h.State())
		})
	}
}

func TestHypothesisGenerator_ProviderFailureSurfacesError(t *testing.T) {
	h, b, _ := newGenerator(t, &scriptedProvider{textErr: errors.New("rate limited")})
	ctx := context.Background()

	b.Publish(ctx, bus.TopicNarrativeUpdated, bus.NarrativePayload{Text: "anything"}, "feed", nil)

	assert.Equal(t, agent.StateError, h.State())
	errEvents := b.Events(bus.Filter{Topic: bus.TopicAgentError})
	require.Len(t, errEvents, 1)
}

func TestHypothesisGenerator_EmbeddingFailureIsTolerated(t *testing.T) {
	provider := &scriptedProvider{
		responses: []string{"FACTOR: Carry\nMECHANISM: Rates gap persists.\nCONFIDENCE: 0.4"},
		embedErr:  model.ErrEmbeddingUnsupported,
	}
	_, b, g := newGenerator(t, provider)
	ctx := context.Background()

	b.Publish(ctx, bus.TopicNarrativeUpdated, bus.NarrativePayload{Text: "carry"}, "feed", nil)

	require.Len(t, b.Events(bus.Filter{Topic: bus.TopicFactorCandidate}), 1)
	factors := g.FindEntities(graph.EntityFilter{Types: []graph.EntityType{graph.EntityFactor}})
	require.Len(t, factors, 1)
	assert.Empty(t, factors[0].Embedding)
}

func TestHypothesisGenerator_LinksSimilarFactors(t *testing.T) {
	provider := &scriptedProvider{
		responses: []string{
			"FACTOR: Credit Beta\nMECHANISM: Spread widening hits levered credit.\nCONFIDENCE: 0.6",
			"FACTOR: Credit Beta Two\nMECHANISM: Spread widening squeezes credit books.\nCONFIDENCE: 0.55",
		},
		embedding: []float64{0.6, 0.8},
	}
	_, b, g := newGenerator(t, provider)
	ctx := context.Background()

	b.Publish(ctx, bus.TopicNarrativeUpdated, bus.NarrativePayload{Text: "first"}, "feed", nil)
	b.Publish(ctx, bus.TopicNarrativeUpdated, bus.NarrativePayload{Text: "second"}, "feed", nil)

	rels := g.FindRelations(graph.RelationFilter{Types: []graph.RelationType{graph.RelationSimilarTo}})
	require.Len(t, rels, 1)
	require.NotNil(t, rels[0].Weight)
	assert.InDelta(t, 1.0, *rels[0].Weight, 1e-9, "identical embeddings are maximally similar")
}

func TestHypothesisGenerator_RegimeChangePrompt(t *testing.T) {
	provider := &scriptedProvider{
		responses: []string{"FACTOR: Stress Hedge\nMECHANISM: Stress regimes reward long volatility.\nCONFIDENCE: 0.5"},
	}
	_, b, _ := newGenerator(t, provider)
	ctx := context.Background()

	b.Publish(ctx, bus.TopicRegimeStateChange, bus.RegimeChangePayload{
		Regime:      RegimeRiskOffStress,
		Previous:    RegimeTransition,
		Probability: 0.75,
	}, "regime-classifier", nil)

	candidates := b.Events(bus.Filter{Topic: bus.TopicFactorCandidate})
	require.Len(t, candidates, 1)
	assert.Equal(t, "regime_change", candidates[0].Metadata["source"])
	assert.Equal(t, RegimeRiskOffStress, candidates[0].Metadata["regime"])
}

func TestParseHypothesis(t *testing.T) {
	hyp, ok := parseHypothesis("noise before\nFACTOR: Carry \nMECHANISM:  Rate differentials persist. \nCONFIDENCE: 0.8\nnoise after")
	require.True(t, ok)
	assert.Equal(t, "Carry", hyp.Name)
	assert.Equal(t, "Rate differentials persist.", hyp.Mechanism)
	assert.Equal(t, 0.8, hyp.Confidence)

	_, ok = parseHypothesis("FACTOR: X\nMECHANISM: Y.\nCONFIDENCE: 0")
	assert.True(t, ok, "zero confidence is inside the valid range")
	_, ok = parseHypothesis("FACTOR: X\nMECHANISM: Y.\nCONFIDENCE: 1")
	assert.True(t, ok, "one is inside the valid range")
	_, ok = parseHypothesis("FACTOR: X\nMECHANISM: Y.")
	assert.False(t, ok, "confidence must be present")
	_, ok = parseHypothesis("FACTOR:\nMECHANISM: Y.\nCONFIDENCE: 0.5")
	assert.False(t, ok, "name must be non-empty")
}

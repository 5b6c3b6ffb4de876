package model

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
)

// ErrEmbeddingUnsupported is returned by providers whose backing API offers
// no embedding endpoint.
var ErrEmbeddingUnsupported = errors.New("model: embeddings not supported by this provider")

// Options tunes a single text generation call.
type Options struct {
	MaxTokens   int
	Temperature float64
}

// Provider is the two-method language-model capability agents depend on.
// Implementations must be safe for concurrent use and must respect context
// cancellation so a slow vendor call never blocks unrelated event deliveries.
type Provider interface {
	GenerateText(ctx context.Context, prompt string, opts Options) (string, error)
	GenerateEmbedding(ctx context.Context, text string) ([]float64, error)
}

// MockDimensions is the embedding length produced by the Mock provider.
const MockDimensions = 64

// Mock is a deterministic in-memory Provider for tests and examples. Canned
// completions are matched by exact prompt; unmatched prompts get a generic
// echo response. Embeddings are derived from a hash of the text so equal
// inputs always produce equal vectors.
type Mock struct {
	responses map[string]string
}

// NewMock constructs an empty Mock provider.
func NewMock() *Mock {
	return &Mock{responses: make(map[string]string)}
}

// AddResponse registers a deterministic canned completion for a prompt.
func (m *Mock) AddResponse(prompt, response string) { m.responses[prompt] = response }

// GenerateText implements Provider.
func (m *Mock) GenerateText(ctx context.Context, prompt string, _ Options) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if resp, ok := m.responses[prompt]; ok {
		return resp, nil
	}
	return fmt.Sprintf("Mock response to: %s", prompt), nil
}

// GenerateEmbedding implements Provider with a hash-seeded unit vector.
func (m *Mock) GenerateEmbedding(ctx context.Context, text string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float64, MockDimensions)
	var norm float64
	for i := range vec {
		// xorshift64 keeps the sequence deterministic per seed.
		seed ^= seed << 13
		seed ^= seed >> 7
		seed ^= seed << 17
		vec[i] = float64(int64(seed%2000)-1000) / 1000
		norm += vec[i] * vec[i]
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec, nil
}

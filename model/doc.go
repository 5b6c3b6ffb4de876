// Package model defines the language-model provider contract consumed by
// agents. The substrate never depends on a concrete vendor; agents receive a
// Provider exposing exactly two operations: text generation and embedding
// generation. Adapters for Anthropic and OpenAI live in the subpackages; the
// Mock provider supports tests and offline runs.
package model

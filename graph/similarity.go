package graph

import "math"

// Cosine returns the cosine similarity dot(a,b) / (|a|·|b|) of two equal
// length vectors. It returns 0 when either vector has zero magnitude or when
// the lengths differ, so callers always receive a defined value in [-1, 1].
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// Clamp accumulated floating point error to the mathematical range.
	if sim > 1 {
		sim = 1
	} else if sim < -1 {
		sim = -1
	}
	return sim
}

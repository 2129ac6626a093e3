// Package embedding maps text to fixed-length dense vectors for semantic
// retrieval. Providers are treated as pure functions over the network: text
// in, vector out, with failure modes the caller degrades around.
package embedding

import (
	"context"
	"math"
)

// Provider generates embedding vectors for text.
type Provider interface {
	// Embed returns the embedding vector for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the fixed length of vectors this provider produces.
	Dimensions() int
}

// Normalize returns the L2-normalized copy of vec. A zero vector is returned
// unchanged so degraded embeddings stay inert in inner-product search.
func Normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(vec))
	if norm == 0 {
		copy(out, vec)
		return out
	}
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out
}

// ZeroVector returns an all-zero vector of the given dimension, the fallback
// used when a provider call fails.
func ZeroVector(dim int) []float32 {
	return make([]float32, dim)
}

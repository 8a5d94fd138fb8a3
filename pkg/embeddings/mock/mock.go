// Package mock provides a deterministic, dependency-free embedder for local
// development and tests. Vectors are a normalized bag-of-words hash: the
// same text always embeds identically, and texts sharing tokens land near
// each other. Useful, but nothing like a real semantic model.
package mock

import (
	"context"
	"hash/fnv"
	"math"
	"strings"

	"github.com/engramhq/engram/pkg/embeddings"
)

// Embedder produces deterministic embeddings without any external provider.
type Embedder struct {
	dimensions int
}

// NewEmbedder creates a mock embedder producing vectors of the given
// dimensionality. Zero means embeddings.Dimensions.
func NewEmbedder(dimensions int) *Embedder {
	if dimensions <= 0 {
		dimensions = embeddings.Dimensions
	}
	return &Embedder{dimensions: dimensions}
}

// Embed hashes each whitespace-delimited token into a bucket and normalizes
// the resulting vector to unit length.
func (e *Embedder) Embed(_ context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, embeddings.ErrEmptyText
	}

	vec := make([]float32, e.dimensions)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(token))
		vec[int(h.Sum32())%e.dimensions]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}

	return vec, nil
}

// Close is a no-op for the mock embedder.
func (e *Embedder) Close() error {
	return nil
}

var _ embeddings.Embedder = (*Embedder)(nil)

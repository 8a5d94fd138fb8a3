// Package embeddings provides text embedding capabilities for the engram system.
package embeddings

import (
	"context"
	"errors"
)

// Dimensions is the fixed embedding dimensionality for the process lifetime.
// Every embedder must produce vectors of exactly this length.
const Dimensions = 1536

// ErrUnavailable indicates the embedding provider cannot serve this call:
// no credential is configured, or the provider failed transiently (rate
// limit, network). This is a normal degraded operating mode, not a fault —
// the caller may retry on the next call, and search falls back to substring
// matching while embeddings are unavailable.
var ErrUnavailable = errors.New("embeddings unavailable")

// ErrEmptyText indicates an empty input string, which is a contract
// violation rather than a provider problem.
var ErrEmptyText = errors.New("text must not be empty")

// Embedder provides text embedding capabilities.
type Embedder interface {
	// Embed converts text into a vector embedding of length Dimensions.
	// Returns an error wrapping ErrUnavailable when the provider cannot
	// serve the call.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Close releases any resources held by the embedder.
	Close() error
}

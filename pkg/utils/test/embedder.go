package testutils

import (
	"context"
	"fmt"

	"github.com/engramhq/engram/pkg/embeddings"
)

// MockEmbedder is a test embedder that returns predictable embeddings
type MockEmbedder struct {
	// Embeddings maps input text to a scripted vector.
	Embeddings map[string][]float32

	// Default is returned for any text without a scripted vector.
	Default []float32

	// Unavailable makes every call report embeddings.ErrUnavailable.
	Unavailable bool

	// FailOn causes Embed to return a hard error when the input text matches
	FailOn string

	// Calls counts Embed invocations.
	Calls int
}

func NewMockEmbedder(dimensions int) *MockEmbedder {
	def := make([]float32, dimensions)
	for i := range def {
		def[i] = 0.1
	}

	return &MockEmbedder{
		Embeddings: make(map[string][]float32),
		Default:    def,
	}
}

func (m *MockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	m.Calls++

	if text == "" {
		return nil, embeddings.ErrEmptyText
	}

	if m.Unavailable {
		return nil, fmt.Errorf("%w: mock embedder disabled", embeddings.ErrUnavailable)
	}

	if m.FailOn != "" && text == m.FailOn {
		return nil, fmt.Errorf("mock embedding failure for: %s", text)
	}

	if emb, ok := m.Embeddings[text]; ok {
		return append([]float32(nil), emb...), nil
	}

	return append([]float32(nil), m.Default...), nil
}

func (m *MockEmbedder) Close() error {
	return nil
}

var _ embeddings.Embedder = (*MockEmbedder)(nil)

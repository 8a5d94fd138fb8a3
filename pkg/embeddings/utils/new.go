// Package embeddingutils is the embeddings utility package
package embeddingutils

import (
	"fmt"

	"github.com/engramhq/engram/pkg/embeddings"
	"github.com/engramhq/engram/pkg/embeddings/mock"
	"github.com/engramhq/engram/pkg/embeddings/openai"
)

type NewEmbedderOpts struct {
	ProviderType string
	TargetURL    string
	Model        string
	APIKey       string
}

func NewEmbedder(o *NewEmbedderOpts) (embeddings.Embedder, error) {
	switch o.ProviderType {
	case "openai":
		return openai.NewEmbedder(openai.EmbedderConfig{
			BaseURL: o.TargetURL,
			Model:   o.Model,
			APIKey:  o.APIKey,
		})
	case "mock":
		return mock.NewEmbedder(embeddings.Dimensions), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", o.ProviderType)
	}
}

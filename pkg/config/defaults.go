package config

const (
	defaultStorageProvider = "sqlite"

	defaultAPIListen = ":8080"
	defaultMCPListen = ":8082"

	defaultEmbeddingProvider   = "openai"
	defaultEmbeddingTarget     = "https://api.openai.com"
	defaultEmbeddingModel      = "text-embedding-3-large"
	defaultEmbeddingDimensions = 1536

	defaultIndexCapacity = 10000

	defaultSearchThreshold = 0.7
	defaultSearchLimit     = 5

	defaultEventsProvider = "nop"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Storage: StorageConfig{
			Provider: defaultStorageProvider,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		MCP: MCPConfig{
			Listen: defaultMCPListen,
		},
		Embedding: EmbeddingConfig{
			Provider:   defaultEmbeddingProvider,
			Target:     defaultEmbeddingTarget,
			Model:      defaultEmbeddingModel,
			Dimensions: defaultEmbeddingDimensions,
		},
		Index: IndexConfig{
			Capacity: defaultIndexCapacity,
		},
		Search: SearchConfig{
			Threshold: defaultSearchThreshold,
			Limit:     defaultSearchLimit,
		},
		Events: EventsConfig{
			Provider: defaultEventsProvider,
		},
	}
}

package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Config represents the persistent engram configuration stored as config.toml
// in the .engram/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version   int             `toml:"version" mapstructure:"version"`
	Storage   StorageConfig   `toml:"storage" mapstructure:"storage"`
	API       APIConfig       `toml:"api" mapstructure:"api"`
	MCP       MCPConfig       `toml:"mcp" mapstructure:"mcp"`
	Embedding EmbeddingConfig `toml:"embedding" mapstructure:"embedding"`
	Index     IndexConfig     `toml:"index" mapstructure:"index"`
	Search    SearchConfig    `toml:"search" mapstructure:"search"`
	Events    EventsConfig    `toml:"events" mapstructure:"events"`
}

// StorageConfig holds the durable store settings.
type StorageConfig struct {
	Provider    string `toml:"provider,omitempty" mapstructure:"provider"`
	SQLitePath  string `toml:"sqlite_path,omitempty" mapstructure:"sqlite_path"`
	PostgresDSN string `toml:"postgres_dsn,omitempty" mapstructure:"postgres_dsn"`
}

// APIConfig holds REST API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty" mapstructure:"listen"`
}

// MCPConfig holds MCP server settings.
type MCPConfig struct {
	Listen string `toml:"listen,omitempty" mapstructure:"listen"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `toml:"provider,omitempty" mapstructure:"provider"`
	Target     string `toml:"target,omitempty" mapstructure:"target"`
	Model      string `toml:"model,omitempty" mapstructure:"model"`
	Dimensions uint   `toml:"dimensions,omitempty" mapstructure:"dimensions"`
}

// IndexConfig holds local fallback index settings.
type IndexConfig struct {
	Capacity uint `toml:"capacity,omitempty" mapstructure:"capacity"`
}

// SearchConfig holds search default settings.
type SearchConfig struct {
	Threshold float64 `toml:"threshold,omitempty" mapstructure:"threshold"`
	Limit     uint    `toml:"limit,omitempty" mapstructure:"limit"`
}

// EventsConfig holds eventstream publisher settings.
type EventsConfig struct {
	Provider string `toml:"provider,omitempty" mapstructure:"provider"`
	Brokers  string `toml:"brokers,omitempty" mapstructure:"brokers"`
	Topic    string `toml:"topic,omitempty" mapstructure:"topic"`
}

// KafkaBrokers splits the comma-separated broker list.
func (e EventsConfig) KafkaBrokers() []string {
	if e.Brokers == "" {
		return nil
	}

	parts := strings.Split(e.Brokers, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			brokers = append(brokers, p)
		}
	}

	return brokers
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"storage.provider": {
		get: func(c *Config) string { return c.Storage.Provider },
		set: func(c *Config, v string) error { c.Storage.Provider = v; return nil },
	},
	"storage.sqlite_path": {
		get: func(c *Config) string { return c.Storage.SQLitePath },
		set: func(c *Config, v string) error { c.Storage.SQLitePath = v; return nil },
	},
	"storage.postgres_dsn": {
		get: func(c *Config) string { return c.Storage.PostgresDSN },
		set: func(c *Config, v string) error { c.Storage.PostgresDSN = v; return nil },
	},
	"api.listen": {
		get: func(c *Config) string { return c.API.Listen },
		set: func(c *Config, v string) error { c.API.Listen = v; return nil },
	},
	"mcp.listen": {
		get: func(c *Config) string { return c.MCP.Listen },
		set: func(c *Config, v string) error { c.MCP.Listen = v; return nil },
	},
	"embedding.provider": {
		get: func(c *Config) string { return c.Embedding.Provider },
		set: func(c *Config, v string) error { c.Embedding.Provider = v; return nil },
	},
	"embedding.target": {
		get: func(c *Config) string { return c.Embedding.Target },
		set: func(c *Config, v string) error { c.Embedding.Target = v; return nil },
	},
	"embedding.model": {
		get: func(c *Config) string { return c.Embedding.Model },
		set: func(c *Config, v string) error { c.Embedding.Model = v; return nil },
	},
	"embedding.dimensions": {
		get: func(c *Config) string {
			if c.Embedding.Dimensions == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(c.Embedding.Dimensions), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for embedding.dimensions: %w", err)
			}
			c.Embedding.Dimensions = uint(n)
			return nil
		},
	},
	"index.capacity": {
		get: func(c *Config) string {
			if c.Index.Capacity == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(c.Index.Capacity), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for index.capacity: %w", err)
			}
			c.Index.Capacity = uint(n)
			return nil
		},
	},
	"search.threshold": {
		get: func(c *Config) string {
			if c.Search.Threshold == 0 {
				return ""
			}
			return strconv.FormatFloat(c.Search.Threshold, 'f', -1, 64)
		},
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for search.threshold: %w", err)
			}
			if f < 0 || f > 1 {
				return fmt.Errorf("search.threshold must be in [0, 1], got %v", f)
			}
			c.Search.Threshold = f
			return nil
		},
	},
	"search.limit": {
		get: func(c *Config) string {
			if c.Search.Limit == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(c.Search.Limit), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for search.limit: %w", err)
			}
			c.Search.Limit = uint(n)
			return nil
		},
	},
	"events.provider": {
		get: func(c *Config) string { return c.Events.Provider },
		set: func(c *Config, v string) error { c.Events.Provider = v; return nil },
	},
	"events.brokers": {
		get: func(c *Config) string { return c.Events.Brokers },
		set: func(c *Config, v string) error { c.Events.Brokers = v; return nil },
	},
	"events.topic": {
		get: func(c *Config) string { return c.Events.Topic },
		set: func(c *Config, v string) error { c.Events.Topic = v; return nil },
	},
}

package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/engramhq/engram/pkg/memory"
	"github.com/engramhq/engram/pkg/record"
	"github.com/engramhq/engram/pkg/vector"
)

var (
	memoryAddToolName    = "memory_add"
	memoryAddDescription = "Store a memory for an owner. The content is embedded for semantic retrieval; tags, a type, and free-form metadata can be attached. Use this to persist knowledge worth recalling in later conversations."

	memorySearchToolName    = "memory_search"
	memorySearchDescription = "Search an owner's memories by meaning. Returns the most relevant memories for the query text, ranked by similarity. Falls back to substring matching when embeddings are unavailable."

	memoryStatsToolName    = "memory_stats"
	memoryStatsDescription = "Summarize an owner's stored memories: total count, counts per type and per tag, and how many were added in the last 24 hours."
)

// MemoryAddInput represents the input arguments for the memory_add tool.
type MemoryAddInput struct {
	OwnerID  string         `json:"owner_id" jsonschema:"the owner whose memory space to store into"`
	Title    string         `json:"title,omitempty" jsonschema:"a short title for the memory"`
	Content  string         `json:"content" jsonschema:"the memory content to store and embed"`
	Context  string         `json:"context,omitempty" jsonschema:"surrounding context for the memory"`
	Tags     []string       `json:"tags,omitempty" jsonschema:"tags for grouping and stats"`
	Type     string         `json:"type,omitempty" jsonschema:"memory type (e.g. semantic, episodic); defaults to generic"`
	Metadata map[string]any `json:"metadata,omitempty" jsonschema:"free-form metadata attached to the memory"`
}

// MemoryAddOutput represents the structured output of a memory add.
type MemoryAddOutput struct {
	Memory  *record.Memory `json:"memory"`
	Warning string         `json:"warning,omitempty"`
}

// MemorySearchInput represents the input arguments for the memory_search tool.
type MemorySearchInput struct {
	OwnerID   string  `json:"owner_id" jsonschema:"the owner whose memory space to search"`
	Query     string  `json:"query" jsonschema:"the search query text"`
	Limit     int     `json:"limit,omitempty" jsonschema:"number of results to return (default: 5)"`
	Threshold float32 `json:"threshold,omitempty" jsonschema:"minimum similarity score in [0, 1] (default: 0.7)"`
	Type      string  `json:"type,omitempty" jsonschema:"restrict results to one memory type"`
}

// MemorySearchOutput represents the output of the memory_search tool.
type MemorySearchOutput struct {
	Query   string                `json:"query"`
	Results []record.SearchResult `json:"results"`
	Count   int                   `json:"count"`
}

// MemoryStatsInput represents the input arguments for the memory_stats tool.
type MemoryStatsInput struct {
	OwnerID string `json:"owner_id" jsonschema:"the owner whose memory space to summarize"`
}

// MemoryStatsOutput represents the structured output of memory stats.
type MemoryStatsOutput struct {
	Stats *record.Stats `json:"stats"`
}

// handleMemoryAdd processes a memory add request via MCP.
func (s *Server) handleMemoryAdd(ctx context.Context, _ *mcp.CallToolRequest, input MemoryAddInput) (*mcp.CallToolResult, MemoryAddOutput, error) {
	stored, err := s.config.Manager.AddMemory(ctx, input.OwnerID, memory.AddInput{
		Title:    input.Title,
		Content:  input.Content,
		Context:  input.Context,
		Tags:     input.Tags,
		Type:     record.Type(input.Type),
		Metadata: input.Metadata,
	})
	if stored == nil && err != nil {
		return toolError(fmt.Sprintf("Failed to add memory: %v", err)), MemoryAddOutput{}, nil
	}

	output := MemoryAddOutput{Memory: stored}
	if err != nil {
		// Stored durably, only the local fallback index is full.
		output.Warning = fmt.Sprintf("memory stored with degraded offline search: %v", err)
	}

	return marshalResult(s.config.Logger, output)
}

// handleMemorySearch processes a similarity search request via MCP.
func (s *Server) handleMemorySearch(ctx context.Context, _ *mcp.CallToolRequest, input MemorySearchInput) (*mcp.CallToolResult, MemorySearchOutput, error) {
	logger := s.config.Logger

	logger.Debug("MCP memory search request",
		zap.String("owner_id", input.OwnerID),
		zap.String("query", input.Query),
		zap.Int("limit", input.Limit),
	)

	results, err := s.config.Manager.SearchMemories(ctx, input.OwnerID, input.Query, vector.SearchOptions{
		Limit:     input.Limit,
		Threshold: input.Threshold,
		Type:      record.Type(input.Type),
	})
	if err != nil {
		logger.Error("memory search failed", zap.Error(err))
		return toolError(fmt.Sprintf("Memory search failed: %v", err)), MemorySearchOutput{}, nil
	}

	if results == nil {
		results = []record.SearchResult{}
	}

	output := MemorySearchOutput{
		Query:   input.Query,
		Results: results,
		Count:   len(results),
	}

	return marshalResult(logger, output)
}

// handleMemoryStats processes a stats request via MCP.
func (s *Server) handleMemoryStats(ctx context.Context, _ *mcp.CallToolRequest, input MemoryStatsInput) (*mcp.CallToolResult, MemoryStatsOutput, error) {
	stats, err := s.config.Manager.Stats(ctx, input.OwnerID)
	if err != nil {
		return toolError(fmt.Sprintf("Failed to compute stats: %v", err)), MemoryStatsOutput{}, nil
	}

	return marshalResult(s.config.Logger, MemoryStatsOutput{Stats: stats})
}

// toolError builds an error result without failing the MCP call itself.
func toolError(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

// marshalResult serializes the structured output as JSON for the text field.
// Per MCP spec: tools returning structured content should also return
// serialized JSON in a TextContent block for backwards compatibility.
func marshalResult[T any](logger *zap.Logger, output T) (*mcp.CallToolResult, T, error) {
	jsonBytes, err := json.Marshal(output)
	if err != nil {
		if logger != nil {
			logger.Error("failed to marshal tool output", zap.Error(err))
		}
		var zero T
		return toolError(fmt.Sprintf("Failed to serialize results: %v", err)), zero, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}, output, nil
}

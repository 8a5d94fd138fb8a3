package api

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/engramhq/engram/pkg/memory"
	"github.com/engramhq/engram/pkg/record"
	"github.com/engramhq/engram/pkg/storage"
	"github.com/engramhq/engram/pkg/vector"
	"github.com/engramhq/engram/pkg/vector/hnsw"
)

// AddMemoryResponse wraps a created memory. Warning is set when the record
// was persisted but the local fallback index could not absorb it.
type AddMemoryResponse struct {
	Memory  *record.Memory `json:"memory"`
	Warning string         `json:"warning,omitempty"`
}

// SearchResponse contains ranked search results for a query.
type SearchResponse struct {
	Query   string                `json:"query"`
	Count   int                   `json:"count"`
	Results []record.SearchResult `json:"results"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// owner extracts the owner id header, or "" when absent.
func owner(c *fiber.Ctx) string {
	return c.Get(OwnerHeader)
}

// handleAddMemory creates a memory for the requesting owner.
func (s *Server) handleAddMemory(c *fiber.Ctx) error {
	var in memory.AddInput
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}

	stored, err := s.manager.AddMemory(c.Context(), owner(c), in)
	if err != nil && !errors.Is(err, hnsw.ErrCapacityExceeded) {
		switch {
		case errors.Is(err, vector.ErrMissingOwner):
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: OwnerHeader + " header is required"})
		case errors.Is(err, memory.ErrEmptyContent):
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})
		default:
			s.logger.Error("failed to add memory", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to add memory"})
		}
	}

	resp := AddMemoryResponse{Memory: stored}
	if err != nil {
		// The durable write succeeded, only the local mirror is full.
		resp.Warning = "local index at capacity; record stored but unavailable to offline search"
	}

	return c.Status(fiber.StatusCreated).JSON(resp)
}

// handleSearchMemories handles GET /memories/search requests.
// Query parameters:
//   - query (required): the search query text
//   - limit (optional, default 5): number of results to return
//   - threshold (optional, default 0.7): minimum similarity score
//   - type (optional): restrict results to one memory type
func (s *Server) handleSearchMemories(c *fiber.Ctx) error {
	query := c.Query("query")

	var opts vector.SearchOptions

	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "limit must be a positive integer"})
		}
		opts.Limit = parsed
	}

	if thresholdStr := c.Query("threshold"); thresholdStr != "" {
		parsed, err := strconv.ParseFloat(thresholdStr, 32)
		if err != nil || parsed < 0 || parsed > 1 {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "threshold must be a number in [0, 1]"})
		}
		opts.Threshold = float32(parsed)
	}

	if typeStr := c.Query("type"); typeStr != "" {
		typ := record.Type(typeStr)
		if !typ.Valid() {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "unknown memory type: " + typeStr})
		}
		opts.Type = typ
	}

	results, err := s.manager.SearchMemories(c.Context(), owner(c), query, opts)
	if err != nil {
		switch {
		case errors.Is(err, vector.ErrMissingOwner):
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: OwnerHeader + " header is required"})
		case errors.Is(err, memory.ErrEmptyQuery):
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "query parameter is required"})
		default:
			s.logger.Error("search failed", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "search failed"})
		}
	}

	return c.JSON(SearchResponse{
		Query:   query,
		Count:   len(results),
		Results: results,
	})
}

// handleStats returns aggregate statistics for the requesting owner.
func (s *Server) handleStats(c *fiber.Ctx) error {
	stats, err := s.manager.Stats(c.Context(), owner(c))
	if err != nil {
		if errors.Is(err, vector.ErrMissingOwner) {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: OwnerHeader + " header is required"})
		}
		s.logger.Error("failed to compute stats", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to compute stats"})
	}

	return c.JSON(stats)
}

// handleGetMemory returns a single memory by id, scoped to the requesting owner.
func (s *Server) handleGetMemory(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "id parameter required"})
	}

	mem, err := s.manager.GetMemory(c.Context(), owner(c), id)
	if err != nil {
		switch {
		case errors.Is(err, vector.ErrMissingOwner):
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: OwnerHeader + " header is required"})
		case errors.As(err, &storage.NotFoundError{}):
			return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "memory not found"})
		default:
			s.logger.Error("failed to get memory", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to get memory"})
		}
	}

	return c.JSON(mem)
}

package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/engramhq/engram/pkg/memory"
)

// OwnerHeader scopes every memory endpoint to one owner. Requests without it
// are rejected before any work happens.
const OwnerHeader = "X-Owner-ID"

// ErrorResponse is the JSON error body returned by all endpoints.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Server is the API server for managing and querying memories
type Server struct {
	config  Config
	manager *memory.Manager
	logger  *zap.Logger
	app     *fiber.App
}

// NewServer creates a new API server.
// The manager is injected to allow sharing with other components
// (e.g., the MCP server when both run in one process).
func NewServer(config Config, manager *memory.Manager, logger *zap.Logger) (*Server, error) {
	if manager == nil {
		return nil, errors.New("memory manager is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config:  config,
		manager: manager,
		logger:  logger,
		app:     app,
	}

	app.Get("/ping", s.handlePing)
	app.Post("/memories", s.handleAddMemory)
	app.Get("/memories/search", s.handleSearchMemories)
	app.Get("/memories/stats", s.handleStats)
	app.Get("/memories/:id", s.handleGetMemory)

	return s, nil
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		zap.String("listen", s.config.ListenAddr),
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// Package api contains the HTTP handlers for the workflow console backend.
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"flowconsole/backend/internal/engine"
	"flowconsole/backend/internal/logging"
	"flowconsole/backend/internal/registry"
	"flowconsole/backend/internal/repository"
	"flowconsole/backend/internal/schema"
)

// Server holds the dependencies for the API server.
type Server struct {
	repo         repository.Repository
	calculator   *schema.Calculator
	orchestrator *engine.Orchestrator
	logger       *logging.Logger
	eventSecret  string
}

// NewServer creates a new Server.
func NewServer(repo repository.Repository, calculator *schema.Calculator, orchestrator *engine.Orchestrator, logger *logging.Logger, eventSecret string) *Server {
	return &Server{
		repo:         repo,
		calculator:   calculator,
		orchestrator: orchestrator,
		logger:       logger,
		eventSecret:  eventSecret,
	}
}

// RegisterHandlers mounts the authenticated API routes on the given group.
func (s *Server) RegisterHandlers(g *echo.Group) {
	g.POST("/workflows", s.CreateWorkflow)
	g.GET("/workflows", s.ListWorkflows)
	g.GET("/workflows/node-types", s.ListNodeTypes)
	g.GET("/workflows/runs", s.ListRuns)
	g.GET("/workflows/runs/:id", s.GetRun)
	g.GET("/workflows/:id", s.GetWorkflow)
	g.PATCH("/workflows/:id", s.UpdateWorkflow)
	g.DELETE("/workflows/:id", s.DeleteWorkflow)
	g.POST("/workflows/:id/run", s.RunWorkflow)
	g.GET("/workflows/:id/events", s.ListEvents)
}

// RegisterPublicHandlers mounts routes reachable without caller
// authentication: health and the event ingestion gateway. The gateway group
// carries permissive CORS because event sources are arbitrary external
// webhook callers.
func (s *Server) RegisterPublicHandlers(e *echo.Echo) {
	e.GET("/health", s.HandleHealth)

	ingest := e.Group("/api/v1/workflows/:id/ingest-event")
	ingest.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"*"},
	}))
	ingest.POST("", s.IngestEvent)
}

// HealthStatus represents the health check response.
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	Version   string    `json:"version"`
}

// HandleHealth returns basic health status (always returns 200 OK).
func (s *Server) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		Service:   "flowconsole",
		Version:   "1.0.0",
	})
}

// ListNodeTypes returns the node kind catalog for the builder UI.
func (s *Server) ListNodeTypes(c echo.Context) error {
	return c.JSON(http.StatusOK, registry.All())
}

// bearerToken extracts the raw bearer token from the request, used as the
// integration access token for schema calculation and node execution.
func bearerToken(c echo.Context) string {
	header := c.Request().Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"flowconsole/backend/internal/auth"
	"flowconsole/backend/internal/registry"
	"flowconsole/backend/internal/repository"
	"flowconsole/backend/pkg/models"
)

// CreateWorkflowRequest is the body of POST /workflows.
type CreateWorkflowRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// CreateWorkflow creates a new, inactive workflow.
// (POST /api/v1/workflows)
func (s *Server) CreateWorkflow(c echo.Context) error {
	customerID := auth.CustomerID(c)
	if customerID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "caller identity not found")
	}

	var req CreateWorkflowRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body: "+err.Error())
	}
	if req.Name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name is required")
	}

	now := time.Now().UTC()
	workflow := &models.Workflow{
		ID:          uuid.New().String(),
		CustomerID:  customerID,
		Name:        req.Name,
		Description: req.Description,
		Status:      models.WorkflowStatusInactive,
		Version:     1,
		Nodes:       []models.WorkflowNode{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.CreateWorkflow(c.Request().Context(), workflow); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to save workflow: "+err.Error())
	}
	return c.JSON(http.StatusCreated, workflow)
}

// ListWorkflows returns the caller's workflows, optionally filtered by
// status.
// (GET /api/v1/workflows)
func (s *Server) ListWorkflows(c echo.Context) error {
	customerID := auth.CustomerID(c)
	if customerID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "caller identity not found")
	}

	status := models.WorkflowStatus(c.QueryParam("status"))
	if status != "" && status != models.WorkflowStatusActive && status != models.WorkflowStatusInactive {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid status filter")
	}

	workflows, err := s.repo.ListWorkflows(c.Request().Context(), customerID, status)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if workflows == nil {
		workflows = []*models.Workflow{}
	}
	return c.JSON(http.StatusOK, workflows)
}

// GetWorkflow returns one workflow owned by the caller.
// (GET /api/v1/workflows/:id)
func (s *Server) GetWorkflow(c echo.Context) error {
	workflow, httpErr := s.ownedWorkflow(c)
	if httpErr != nil {
		return httpErr
	}
	return c.JSON(http.StatusOK, workflow)
}

// UpdateWorkflowRequest is the body of PATCH /workflows/:id. Pointer fields
// distinguish "absent" from "set to zero".
type UpdateWorkflowRequest struct {
	Name        *string                `json:"name"`
	Description *string                `json:"description"`
	Status      *models.WorkflowStatus `json:"status"`
	Nodes       *[]models.WorkflowNode `json:"nodes"`
}

// UpdateWorkflow patches a workflow. When nodes change, every node's output
// schema is recomputed before persisting; schema calculation failure must
// not block the node update.
// (PATCH /api/v1/workflows/:id)
func (s *Server) UpdateWorkflow(c echo.Context) error {
	workflow, httpErr := s.ownedWorkflow(c)
	if httpErr != nil {
		return httpErr
	}

	var req UpdateWorkflowRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body: "+err.Error())
	}

	if req.Name != nil {
		workflow.Name = *req.Name
	}
	if req.Description != nil {
		workflow.Description = *req.Description
	}
	if req.Status != nil {
		if *req.Status != models.WorkflowStatusActive && *req.Status != models.WorkflowStatusInactive {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid status")
		}
		workflow.Status = *req.Status
	}
	if req.Nodes != nil {
		nodes := *req.Nodes
		for i := range nodes {
			if _, err := registry.Lookup(nodes[i].NodeType); err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, err.Error())
			}
			if nodes[i].ID == "" {
				nodes[i].ID = uuid.New().String()
			}
		}

		// Best effort: the calculator degrades internally, and even a
		// wholesale failure here must not block the node update.
		schemas := s.calculator.CalculateWorkflowOutputSchemas(c.Request().Context(), nodes, bearerToken(c))
		byNode := make(map[string]models.Schema, len(schemas))
		for _, ns := range schemas {
			byNode[ns.NodeID] = ns.OutputSchema
		}
		for i := range nodes {
			if out, ok := byNode[nodes[i].ID]; ok {
				nodes[i].OutputSchema = out
			}
		}

		workflow.Nodes = nodes
		workflow.Version++
	}

	workflow.UpdatedAt = time.Now().UTC()
	if err := s.repo.UpdateWorkflow(c.Request().Context(), workflow); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to save workflow: "+err.Error())
	}
	return c.JSON(http.StatusOK, workflow)
}

// DeleteWorkflow removes a workflow owned by the caller.
// (DELETE /api/v1/workflows/:id)
func (s *Server) DeleteWorkflow(c echo.Context) error {
	customerID := auth.CustomerID(c)
	if customerID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "caller identity not found")
	}

	err := s.repo.DeleteWorkflow(c.Request().Context(), customerID, c.Param("id"))
	if errors.Is(err, repository.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "workflow not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// ListEvents returns the most recent ingested events for a workflow, newest
// first.
// (GET /api/v1/workflows/:id/events)
func (s *Server) ListEvents(c echo.Context) error {
	workflow, httpErr := s.ownedWorkflow(c)
	if httpErr != nil {
		return httpErr
	}

	events, err := s.repo.ListEvents(c.Request().Context(), workflow.CustomerID, workflow.ID, 100)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if events == nil {
		events = []*models.WorkflowEvent{}
	}
	return c.JSON(http.StatusOK, events)
}

// ownedWorkflow loads the path workflow and verifies caller ownership.
func (s *Server) ownedWorkflow(c echo.Context) (*models.Workflow, *echo.HTTPError) {
	customerID := auth.CustomerID(c)
	if customerID == "" {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "caller identity not found")
	}

	workflow, err := s.repo.GetWorkflow(c.Request().Context(), c.Param("id"))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, echo.NewHTTPError(http.StatusNotFound, "workflow not found")
	}
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if workflow.CustomerID != customerID {
		return nil, echo.NewHTTPError(http.StatusNotFound, "workflow not found")
	}
	return workflow, nil
}

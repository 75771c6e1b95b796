package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"flowconsole/backend/internal/auth"
	"flowconsole/backend/internal/repository"
	"flowconsole/backend/pkg/models"
)

// RunWorkflowRequest is the body of POST /workflows/:id/run.
type RunWorkflowRequest struct {
	Input map[string]any `json:"input"`
}

// RunAccepted is the immediate response to a run request; execution
// continues in the background.
type RunAccepted struct {
	WorkflowID string `json:"workflowId"`
	RunID      string `json:"runId"`
}

// RunWorkflow creates a run for the workflow and starts executing it
// asynchronously. The response never waits on execution.
// (POST /api/v1/workflows/:id/run)
func (s *Server) RunWorkflow(c echo.Context) error {
	workflow, httpErr := s.ownedWorkflow(c)
	if httpErr != nil {
		return httpErr
	}

	var req RunWorkflowRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body: "+err.Error())
	}

	run, err := s.createRun(c.Request().Context(), workflow, req.Input)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to create run: "+err.Error())
	}

	s.startRun(run.ID, bearerToken(c))

	return c.JSON(http.StatusAccepted, RunAccepted{WorkflowID: workflow.ID, RunID: run.ID})
}

// ListRuns returns the caller's runs, optionally scoped to one workflow,
// newest first, including results and summary.
// (GET /api/v1/workflows/runs)
func (s *Server) ListRuns(c echo.Context) error {
	customerID := auth.CustomerID(c)
	if customerID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "caller identity not found")
	}

	runs, err := s.repo.ListRuns(c.Request().Context(), customerID, c.QueryParam("workflowId"), 100)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if runs == nil {
		runs = []*models.WorkflowRun{}
	}
	return c.JSON(http.StatusOK, runs)
}

// GetRun returns one run owned by the caller, for UI polling.
// (GET /api/v1/workflows/runs/:id)
func (s *Server) GetRun(c echo.Context) error {
	customerID := auth.CustomerID(c)
	if customerID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "caller identity not found")
	}

	run, err := s.repo.GetRun(c.Request().Context(), c.Param("id"))
	if errors.Is(err, repository.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "run not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if run.CustomerID != customerID {
		return echo.NewHTTPError(http.StatusNotFound, "run not found")
	}
	return c.JSON(http.StatusOK, run)
}

// createRun persists a new running WorkflowRun with the workflow's nodes
// snapshotted, so execution is immune to concurrent edits.
func (s *Server) createRun(ctx context.Context, workflow *models.Workflow, input map[string]any) (*models.WorkflowRun, error) {
	run := &models.WorkflowRun{
		ID:            uuid.New().String(),
		WorkflowID:    workflow.ID,
		CustomerID:    workflow.CustomerID,
		Status:        models.RunStatusRunning,
		Input:         input,
		NodesSnapshot: workflow.Nodes,
		Results:       []models.NodeResult{},
		Summary:       models.ComputeSummary(nil, len(workflow.Nodes)),
		StartedAt:     time.Now().UTC(),
	}
	if err := s.repo.CreateRun(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// startRun hands the run to the orchestrator without blocking the caller.
// The orchestrator records its own failures on the run document; the extra
// guard here catches failures of the orchestrator itself.
func (s *Server) startRun(runID, token string) {
	go func() {
		ctx := context.Background()
		if err := s.orchestrator.ExecuteRun(ctx, runID, token); err != nil {
			s.logger.Error("run %s execution failed: %v", runID, err)
			s.failRunDefensively(ctx, runID, err)
		}
	}()
}

func (s *Server) failRunDefensively(ctx context.Context, runID string, cause error) {
	run, err := s.repo.GetRun(ctx, runID)
	if err != nil {
		s.logger.Error("run %s could not be reloaded after failure: %v", runID, err)
		return
	}
	if run.Status != models.RunStatusRunning {
		return
	}
	now := time.Now().UTC()
	elapsed := now.Sub(run.StartedAt).Milliseconds()
	run.Status = models.RunStatusFailed
	run.CompletedAt = &now
	run.ExecutionTimeMS = &elapsed
	run.Error = cause.Error()
	if err := s.repo.UpdateRun(ctx, run); err != nil {
		s.logger.Error("run %s could not be marked failed: %v", runID, err)
	}
}

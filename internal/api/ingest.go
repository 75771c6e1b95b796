package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"flowconsole/backend/internal/events"
	"flowconsole/backend/internal/repository"
	"flowconsole/backend/pkg/models"
)

// IngestEventRequest is the body webhook callers post: the event's declared
// headers plus its data payload.
type IngestEventRequest struct {
	Headers map[string]string `json:"headers"`
	Data    map[string]any    `json:"data"`
}

// IngestEvent is the event ingestion gateway. It verifies the event's
// authenticity, persists the raw event, spawns a run, and responds 202
// before execution makes any progress; response latency never depends on
// execution latency.
// (POST /api/v1/workflows/:id/ingest-event)
func (s *Server) IngestEvent(c echo.Context) error {
	workflowID := c.Param("id")
	ctx := c.Request().Context()

	var req IngestEventRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid event body: "+err.Error())
	}

	presented := headerValue(req.Headers, events.VerificationHeader)
	if presented == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing verification hash")
	}
	if !events.VerifyVerificationHash(s.eventSecret, workflowID, presented) {
		return echo.NewHTTPError(http.StatusUnauthorized, "verification hash mismatch")
	}

	// The integration token rides on the gateway request itself, not inside
	// the event body.
	token := bearerToken(c)
	if token == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing integration token")
	}

	workflow, err := s.repo.GetWorkflow(ctx, workflowID)
	if errors.Is(err, repository.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "workflow not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if workflow.Status != models.WorkflowStatusActive {
		return echo.NewHTTPError(http.StatusBadRequest, "workflow is not active")
	}

	event := &models.WorkflowEvent{
		ID:         uuid.New().String(),
		WorkflowID: workflow.ID,
		CustomerID: workflow.CustomerID,
		EventData:  req.Data,
		ReceivedAt: time.Now().UTC(),
		Processed:  false,
	}
	if err := s.repo.CreateEvent(ctx, event); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to persist event: "+err.Error())
	}

	run, err := s.createRun(ctx, workflow, req.Data)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to create run: "+err.Error())
	}

	// The event→run pointer is established before execution begins, so a
	// crash mid-execution still leaves an auditable causal link.
	if err := s.repo.MarkEventProcessed(ctx, event.ID, run.ID); err != nil {
		s.logger.Error("event %s could not be marked processed: %v", event.ID, err)
	}

	s.startRun(run.ID, token)

	return c.JSON(http.StatusAccepted, RunAccepted{WorkflowID: workflow.ID, RunID: run.ID})
}

// headerValue looks up a header case-insensitively in the event's declared
// header map.
func headerValue(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

package repository

import (
	"context"
	"errors"
	"time"

	"flowconsole/backend/pkg/models"
)

// ErrNotFound is returned when a requested document does not exist.
var ErrNotFound = errors.New("not found")

// Repository is the system of record for workflows, runs, events and
// sessions. The UI reads through it; the engine writes through it.
type Repository interface {
	Ping(ctx context.Context) error

	// Workflows
	CreateWorkflow(ctx context.Context, workflow *models.Workflow) error
	GetWorkflow(ctx context.Context, id string) (*models.Workflow, error)
	ListWorkflows(ctx context.Context, customerID string, status models.WorkflowStatus) ([]*models.Workflow, error)
	UpdateWorkflow(ctx context.Context, workflow *models.Workflow) error
	DeleteWorkflow(ctx context.Context, customerID, id string) error

	// Runs
	CreateRun(ctx context.Context, run *models.WorkflowRun) error
	GetRun(ctx context.Context, id string) (*models.WorkflowRun, error)
	// UpdateRun replaces the run's mutable fields (status, results, summary,
	// completion metadata) in a single statement.
	UpdateRun(ctx context.Context, run *models.WorkflowRun) error
	ListRuns(ctx context.Context, customerID, workflowID string, limit int) ([]*models.WorkflowRun, error)

	// Events
	CreateEvent(ctx context.Context, event *models.WorkflowEvent) error
	MarkEventProcessed(ctx context.Context, eventID, runID string) error
	ListEvents(ctx context.Context, customerID, workflowID string, limit int) ([]*models.WorkflowEvent, error)

	// Sessions
	SaveSession(ctx context.Context, session *models.WorkflowSession) error
	GetSession(ctx context.Context, id string) (*models.WorkflowSession, error)
	DeleteSessionsInactiveSince(ctx context.Context, cutoff time.Time) (int, error)

	// Durable step results (see internal/durable)
	GetStepResult(ctx context.Context, runKey, stepName string) ([]byte, bool, error)
	SaveStepResult(ctx context.Context, runKey, stepName string, payload []byte) error
}

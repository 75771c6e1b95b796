package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"flowconsole/backend/pkg/models"
)

// PostgresRepository is a PostgreSQL implementation of the Repository
// interface. Node sequences, results and payloads are stored as JSONB.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Ping checks database connectivity.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

// CreateWorkflow inserts a workflow.
func (r *PostgresRepository) CreateWorkflow(ctx context.Context, w *models.Workflow) error {
	nodes, err := json.Marshal(w.Nodes)
	if err != nil {
		return fmt.Errorf("failed to marshal nodes: %w", err)
	}
	_, err = r.db.Exec(ctx,
		`INSERT INTO workflows (id, customer_id, name, description, status, version, nodes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		w.ID, w.CustomerID, w.Name, w.Description, w.Status, w.Version, nodes, w.CreatedAt, w.UpdatedAt)
	return err
}

// GetWorkflow retrieves a workflow by id.
func (r *PostgresRepository) GetWorkflow(ctx context.Context, id string) (*models.Workflow, error) {
	var w models.Workflow
	var nodes []byte
	err := r.db.QueryRow(ctx,
		`SELECT id, customer_id, name, description, status, version, nodes, created_at, updated_at
		 FROM workflows WHERE id = $1`, id).
		Scan(&w.ID, &w.CustomerID, &w.Name, &w.Description, &w.Status, &w.Version, &nodes, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(nodes, &w.Nodes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal nodes: %w", err)
	}
	return &w, nil
}

// ListWorkflows returns the customer's workflows, optionally filtered by
// status, newest first.
func (r *PostgresRepository) ListWorkflows(ctx context.Context, customerID string, status models.WorkflowStatus) ([]*models.Workflow, error) {
	query := `SELECT id, customer_id, name, description, status, version, nodes, created_at, updated_at
		 FROM workflows WHERE customer_id = $1`
	args := []any{customerID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var workflows []*models.Workflow
	for rows.Next() {
		var w models.Workflow
		var nodes []byte
		if err := rows.Scan(&w.ID, &w.CustomerID, &w.Name, &w.Description, &w.Status, &w.Version, &nodes, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(nodes, &w.Nodes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal nodes: %w", err)
		}
		workflows = append(workflows, &w)
	}
	return workflows, rows.Err()
}

// UpdateWorkflow replaces a workflow's mutable fields.
func (r *PostgresRepository) UpdateWorkflow(ctx context.Context, w *models.Workflow) error {
	nodes, err := json.Marshal(w.Nodes)
	if err != nil {
		return fmt.Errorf("failed to marshal nodes: %w", err)
	}
	tag, err := r.db.Exec(ctx,
		`UPDATE workflows SET name = $1, description = $2, status = $3, version = $4, nodes = $5, updated_at = $6
		 WHERE id = $7 AND customer_id = $8`,
		w.Name, w.Description, w.Status, w.Version, nodes, w.UpdatedAt, w.ID, w.CustomerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteWorkflow removes a workflow owned by the customer.
func (r *PostgresRepository) DeleteWorkflow(ctx context.Context, customerID, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM workflows WHERE id = $1 AND customer_id = $2`, id, customerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateRun inserts a run.
func (r *PostgresRepository) CreateRun(ctx context.Context, run *models.WorkflowRun) error {
	input, snapshot, results, summary, err := marshalRunDocs(run)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx,
		`INSERT INTO workflow_runs (id, workflow_id, customer_id, status, input, nodes_snapshot, results, summary, started_at, completed_at, execution_time_ms, error)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		run.ID, run.WorkflowID, run.CustomerID, run.Status, input, snapshot, results, summary,
		run.StartedAt, run.CompletedAt, run.ExecutionTimeMS, nullable(run.Error))
	return err
}

// GetRun retrieves a run by id.
func (r *PostgresRepository) GetRun(ctx context.Context, id string) (*models.WorkflowRun, error) {
	run, err := r.scanRun(r.db.QueryRow(ctx,
		`SELECT id, workflow_id, customer_id, status, input, nodes_snapshot, results, summary, started_at, completed_at, execution_time_ms, error
		 FROM workflow_runs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return run, err
}

// UpdateRun replaces the run's mutable fields in a single statement.
func (r *PostgresRepository) UpdateRun(ctx context.Context, run *models.WorkflowRun) error {
	input, snapshot, results, summary, err := marshalRunDocs(run)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx,
		`UPDATE workflow_runs SET status = $1, input = $2, nodes_snapshot = $3, results = $4, summary = $5,
		 completed_at = $6, execution_time_ms = $7, error = $8 WHERE id = $9`,
		run.Status, input, snapshot, results, summary, run.CompletedAt, run.ExecutionTimeMS, nullable(run.Error), run.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListRuns returns the customer's runs, optionally scoped to one workflow,
// newest first.
func (r *PostgresRepository) ListRuns(ctx context.Context, customerID, workflowID string, limit int) ([]*models.WorkflowRun, error) {
	query := `SELECT id, workflow_id, customer_id, status, input, nodes_snapshot, results, summary, started_at, completed_at, execution_time_ms, error
		 FROM workflow_runs WHERE customer_id = $1`
	args := []any{customerID}
	if workflowID != "" {
		query += ` AND workflow_id = $2`
		args = append(args, workflowID)
	}
	query += fmt.Sprintf(` ORDER BY started_at DESC LIMIT %d`, limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*models.WorkflowRun
	for rows.Next() {
		run, err := r.scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// CreateEvent inserts an ingested event.
func (r *PostgresRepository) CreateEvent(ctx context.Context, e *models.WorkflowEvent) error {
	data, err := json.Marshal(e.EventData)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}
	_, err = r.db.Exec(ctx,
		`INSERT INTO workflow_events (id, workflow_id, customer_id, event_data, received_at, processed, run_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.WorkflowID, e.CustomerID, data, e.ReceivedAt, e.Processed, nullable(e.RunID))
	return err
}

// MarkEventProcessed sets the event's processed flag and causal run pointer.
func (r *PostgresRepository) MarkEventProcessed(ctx context.Context, eventID, runID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE workflow_events SET processed = TRUE, run_id = $1 WHERE id = $2`, runID, eventID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListEvents returns the customer's events for a workflow, newest first.
func (r *PostgresRepository) ListEvents(ctx context.Context, customerID, workflowID string, limit int) ([]*models.WorkflowEvent, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, workflow_id, customer_id, event_data, received_at, processed, run_id
		 FROM workflow_events WHERE customer_id = $1 AND workflow_id = $2
		 ORDER BY received_at DESC LIMIT $3`,
		customerID, workflowID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*models.WorkflowEvent
	for rows.Next() {
		var e models.WorkflowEvent
		var data []byte
		var runID *string
		if err := rows.Scan(&e.ID, &e.WorkflowID, &e.CustomerID, &data, &e.ReceivedAt, &e.Processed, &runID); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &e.EventData); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event data: %w", err)
		}
		if runID != nil {
			e.RunID = *runID
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}

// SaveSession upserts a session.
func (r *PostgresRepository) SaveSession(ctx context.Context, s *models.WorkflowSession) error {
	messages, err := json.Marshal(s.Messages)
	if err != nil {
		return fmt.Errorf("failed to marshal messages: %w", err)
	}
	_, err = r.db.Exec(ctx,
		`INSERT INTO workflow_sessions (id, workflow_id, customer_id, messages, created_at, last_active_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET messages = EXCLUDED.messages, last_active_at = EXCLUDED.last_active_at`,
		s.ID, s.WorkflowID, s.CustomerID, messages, s.CreatedAt, s.LastActiveAt)
	return err
}

// GetSession retrieves a session by id.
func (r *PostgresRepository) GetSession(ctx context.Context, id string) (*models.WorkflowSession, error) {
	var s models.WorkflowSession
	var messages []byte
	err := r.db.QueryRow(ctx,
		`SELECT id, workflow_id, customer_id, messages, created_at, last_active_at
		 FROM workflow_sessions WHERE id = $1`, id).
		Scan(&s.ID, &s.WorkflowID, &s.CustomerID, &messages, &s.CreatedAt, &s.LastActiveAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(messages, &s.Messages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal messages: %w", err)
	}
	return &s, nil
}

// DeleteSessionsInactiveSince removes sessions whose last activity predates
// the cutoff, returning the number removed.
func (r *PostgresRepository) DeleteSessionsInactiveSince(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM workflow_sessions WHERE last_active_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// GetStepResult returns a memoized durable step payload, if present.
func (r *PostgresRepository) GetStepResult(ctx context.Context, runKey, stepName string) ([]byte, bool, error) {
	var payload []byte
	err := r.db.QueryRow(ctx,
		`SELECT payload FROM run_step_results WHERE run_key = $1 AND step_name = $2`,
		runKey, stepName).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return payload, true, nil
}

// SaveStepResult memoizes a durable step payload. First write wins.
func (r *PostgresRepository) SaveStepResult(ctx context.Context, runKey, stepName string, payload []byte) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO run_step_results (run_key, step_name, payload, created_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (run_key, step_name) DO NOTHING`,
		runKey, stepName, payload)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *PostgresRepository) scanRun(row rowScanner) (*models.WorkflowRun, error) {
	var run models.WorkflowRun
	var input, snapshot, results, summary []byte
	var errMsg *string
	if err := row.Scan(&run.ID, &run.WorkflowID, &run.CustomerID, &run.Status, &input, &snapshot, &results, &summary,
		&run.StartedAt, &run.CompletedAt, &run.ExecutionTimeMS, &errMsg); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(input, &run.Input); err != nil {
		return nil, fmt.Errorf("failed to unmarshal input: %w", err)
	}
	if err := json.Unmarshal(snapshot, &run.NodesSnapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal nodes snapshot: %w", err)
	}
	if err := json.Unmarshal(results, &run.Results); err != nil {
		return nil, fmt.Errorf("failed to unmarshal results: %w", err)
	}
	if err := json.Unmarshal(summary, &run.Summary); err != nil {
		return nil, fmt.Errorf("failed to unmarshal summary: %w", err)
	}
	if errMsg != nil {
		run.Error = *errMsg
	}
	return &run, nil
}

func marshalRunDocs(run *models.WorkflowRun) (input, snapshot, results, summary []byte, err error) {
	if input, err = json.Marshal(run.Input); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to marshal input: %w", err)
	}
	if snapshot, err = json.Marshal(run.NodesSnapshot); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to marshal nodes snapshot: %w", err)
	}
	if run.Results == nil {
		run.Results = []models.NodeResult{}
	}
	if results, err = json.Marshal(run.Results); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to marshal results: %w", err)
	}
	if summary, err = json.Marshal(run.Summary); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to marshal summary: %w", err)
	}
	return input, snapshot, results, summary, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

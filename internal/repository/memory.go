package repository

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"flowconsole/backend/pkg/models"
)

// MemoryRepository is an in-memory implementation of the Repository
// interface, used by unit tests and local development. Documents are copied
// on the way in and out so callers never share state with the store.
type MemoryRepository struct {
	mu        sync.RWMutex
	workflows map[string]*models.Workflow
	runs      map[string]*models.WorkflowRun
	events    map[string]*models.WorkflowEvent
	sessions  map[string]*models.WorkflowSession
	steps     map[string][]byte
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		workflows: make(map[string]*models.Workflow),
		runs:      make(map[string]*models.WorkflowRun),
		events:    make(map[string]*models.WorkflowEvent),
		sessions:  make(map[string]*models.WorkflowSession),
		steps:     make(map[string][]byte),
	}
}

// Ping always succeeds.
func (r *MemoryRepository) Ping(ctx context.Context) error { return nil }

// CreateWorkflow inserts a workflow.
func (r *MemoryRepository) CreateWorkflow(ctx context.Context, w *models.Workflow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workflows[w.ID] = clone(w)
	return nil
}

// GetWorkflow retrieves a workflow by id.
func (r *MemoryRepository) GetWorkflow(ctx context.Context, id string) (*models.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.workflows[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(w), nil
}

// ListWorkflows returns the customer's workflows, newest first.
func (r *MemoryRepository) ListWorkflows(ctx context.Context, customerID string, status models.WorkflowStatus) ([]*models.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.Workflow
	for _, w := range r.workflows {
		if w.CustomerID != customerID {
			continue
		}
		if status != "" && w.Status != status {
			continue
		}
		out = append(out, clone(w))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// UpdateWorkflow replaces a workflow.
func (r *MemoryRepository) UpdateWorkflow(ctx context.Context, w *models.Workflow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.workflows[w.ID]
	if !ok || existing.CustomerID != w.CustomerID {
		return ErrNotFound
	}
	r.workflows[w.ID] = clone(w)
	return nil
}

// DeleteWorkflow removes a workflow owned by the customer.
func (r *MemoryRepository) DeleteWorkflow(ctx context.Context, customerID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workflows[id]
	if !ok || w.CustomerID != customerID {
		return ErrNotFound
	}
	delete(r.workflows, id)
	return nil
}

// CreateRun inserts a run.
func (r *MemoryRepository) CreateRun(ctx context.Context, run *models.WorkflowRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[run.ID] = clone(run)
	return nil
}

// GetRun retrieves a run by id.
func (r *MemoryRepository) GetRun(ctx context.Context, id string) (*models.WorkflowRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(run), nil
}

// UpdateRun replaces the run document.
func (r *MemoryRepository) UpdateRun(ctx context.Context, run *models.WorkflowRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.runs[run.ID]; !ok {
		return ErrNotFound
	}
	r.runs[run.ID] = clone(run)
	return nil
}

// ListRuns returns the customer's runs, newest first.
func (r *MemoryRepository) ListRuns(ctx context.Context, customerID, workflowID string, limit int) ([]*models.WorkflowRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.WorkflowRun
	for _, run := range r.runs {
		if run.CustomerID != customerID {
			continue
		}
		if workflowID != "" && run.WorkflowID != workflowID {
			continue
		}
		out = append(out, clone(run))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CreateEvent inserts an event.
func (r *MemoryRepository) CreateEvent(ctx context.Context, e *models.WorkflowEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[e.ID] = clone(e)
	return nil
}

// MarkEventProcessed sets the processed flag and run pointer.
func (r *MemoryRepository) MarkEventProcessed(ctx context.Context, eventID, runID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[eventID]
	if !ok {
		return ErrNotFound
	}
	e.Processed = true
	e.RunID = runID
	return nil
}

// ListEvents returns the customer's events for a workflow, newest first.
func (r *MemoryRepository) ListEvents(ctx context.Context, customerID, workflowID string, limit int) ([]*models.WorkflowEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.WorkflowEvent
	for _, e := range r.events {
		if e.CustomerID != customerID || e.WorkflowID != workflowID {
			continue
		}
		out = append(out, clone(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt.After(out[j].ReceivedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SaveSession upserts a session.
func (r *MemoryRepository) SaveSession(ctx context.Context, s *models.WorkflowSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = clone(s)
	return nil
}

// GetSession retrieves a session by id.
func (r *MemoryRepository) GetSession(ctx context.Context, id string) (*models.WorkflowSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(s), nil
}

// DeleteSessionsInactiveSince removes sessions whose last activity predates
// the cutoff.
func (r *MemoryRepository) DeleteSessionsInactiveSince(ctx context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, s := range r.sessions {
		if s.LastActiveAt.Before(cutoff) {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed, nil
}

// GetStepResult returns a memoized step payload, if present.
func (r *MemoryRepository) GetStepResult(ctx context.Context, runKey, stepName string) ([]byte, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	payload, ok := r.steps[runKey+"\x00"+stepName]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(payload))
	copy(out, payload)
	return out, true, nil
}

// SaveStepResult memoizes a step payload. First write wins.
func (r *MemoryRepository) SaveStepResult(ctx context.Context, runKey, stepName string, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := runKey + "\x00" + stepName
	if _, ok := r.steps[key]; ok {
		return nil
	}
	stored := make([]byte, len(payload))
	copy(stored, payload)
	r.steps[key] = stored
	return nil
}

// clone deep-copies a document through a JSON round trip. The documents are
// JSON-shaped already, so this is lossless.
func clone[T any](v *T) *T {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	out := new(T)
	if err := json.Unmarshal(data, out); err != nil {
		panic(err)
	}
	return out
}

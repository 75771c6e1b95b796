// Package session manages workflow editing sessions with an inactivity TTL.
// The clock is injected so tests control time; there is no module-global
// timer.
package session

import (
	"context"
	"time"

	"github.com/google/uuid"

	"flowconsole/backend/internal/logging"
	"flowconsole/backend/internal/repository"
	"flowconsole/backend/pkg/models"
)

// Store manages WorkflowSession lifecycles.
type Store struct {
	repo   repository.Repository
	logger *logging.Logger
	now    func() time.Time
	ttl    time.Duration
}

// NewStore creates a session store. now may be nil, defaulting to time.Now.
func NewStore(repo repository.Repository, logger *logging.Logger, ttl time.Duration, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{repo: repo, logger: logger, now: now, ttl: ttl}
}

// Start creates a new session for a workflow.
func (s *Store) Start(ctx context.Context, customerID, workflowID string) (*models.WorkflowSession, error) {
	now := s.now().UTC()
	session := &models.WorkflowSession{
		ID:           uuid.New().String(),
		WorkflowID:   workflowID,
		CustomerID:   customerID,
		Messages:     []models.SessionMessage{},
		CreatedAt:    now,
		LastActiveAt: now,
	}
	if err := s.repo.SaveSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// Append records a message on the session and refreshes its activity time.
func (s *Store) Append(ctx context.Context, id, role, content string) (*models.WorkflowSession, error) {
	session, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	session.Messages = append(session.Messages, models.SessionMessage{
		Role:    role,
		Content: content,
		SentAt:  now,
	})
	session.LastActiveAt = now
	if err := s.repo.SaveSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// Get retrieves a session, treating expired sessions as absent.
func (s *Store) Get(ctx context.Context, id string) (*models.WorkflowSession, error) {
	session, err := s.repo.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.now().UTC().Sub(session.LastActiveAt) > s.ttl {
		return nil, repository.ErrNotFound
	}
	return session, nil
}

// Sweep removes sessions inactive past the TTL, returning the count removed.
func (s *Store) Sweep(ctx context.Context) (int, error) {
	cutoff := s.now().UTC().Add(-s.ttl)
	removed, err := s.repo.DeleteSessionsInactiveSince(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.logger.Debug("session sweep removed %d expired sessions", removed)
	}
	return removed, nil
}

// RunSweeper sweeps on the given interval until the context is cancelled.
func (s *Store) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Error("session sweep failed: %v", err)
			}
		}
	}
}

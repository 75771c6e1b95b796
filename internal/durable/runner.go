// Package durable provides the durable-step runtime the orchestrator runs
// on. A step's result is memoized by (run key, step name); re-invoking a
// completed step returns the memoized payload instead of re-running it,
// which is what makes run execution crash-resumable.
package durable

import (
	"context"
	"fmt"
	"time"
)

// DefaultRetryAttempts is the retry budget applied to each step before the
// step is reported failed to the caller.
const DefaultRetryAttempts = 3

// Store persists memoized step payloads.
type Store interface {
	GetStepResult(ctx context.Context, runKey, stepName string) ([]byte, bool, error)
	SaveStepResult(ctx context.Context, runKey, stepName string, payload []byte) error
}

// Runner schedules durable steps.
type Runner interface {
	// Step runs fn at most once per (runKey, stepName). A memoized payload
	// short-circuits fn entirely. fn is retried up to the runner's attempt
	// budget on error; the final error is returned unmemoized so a later
	// re-invocation retries the step from scratch.
	Step(ctx context.Context, runKey, stepName string, fn func(ctx context.Context) ([]byte, error)) ([]byte, error)
}

// StoreRunner is a Runner backed by a Store. It is the in-process stand-in
// for a hosted durable-function runtime and keeps the same contract:
// at-least-once invocation, memoized completion.
type StoreRunner struct {
	store    Store
	attempts int
	backoff  time.Duration
}

// Option configures a StoreRunner.
type Option func(*StoreRunner)

// WithAttempts overrides the retry budget.
func WithAttempts(n int) Option {
	return func(r *StoreRunner) { r.attempts = n }
}

// WithBackoff overrides the delay between attempts.
func WithBackoff(d time.Duration) Option {
	return func(r *StoreRunner) { r.backoff = d }
}

// NewStoreRunner creates a StoreRunner.
func NewStoreRunner(store Store, opts ...Option) *StoreRunner {
	r := &StoreRunner{
		store:    store,
		attempts: DefaultRetryAttempts,
		backoff:  250 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Step implements Runner.
func (r *StoreRunner) Step(ctx context.Context, runKey, stepName string, fn func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	if payload, ok, err := r.store.GetStepResult(ctx, runKey, stepName); err != nil {
		return nil, fmt.Errorf("step %q: failed to load memoized result: %w", stepName, err)
	} else if ok {
		return payload, nil
	}

	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		payload, err := fn(ctx)
		if err == nil {
			if saveErr := r.store.SaveStepResult(ctx, runKey, stepName, payload); saveErr != nil {
				return nil, fmt.Errorf("step %q: failed to memoize result: %w", stepName, saveErr)
			}
			return payload, nil
		}
		lastErr = err

		if attempt < r.attempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(r.backoff):
			}
		}
	}
	return nil, fmt.Errorf("step %q: failed after %d attempts: %w", stepName, r.attempts, lastErr)
}

package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"flowconsole/backend/internal/durable"
	"flowconsole/backend/internal/logging"
	"flowconsole/backend/internal/repository"
	"flowconsole/backend/pkg/models"
)

// finalizeStep is the durable step name reserved for the terminal summary
// update. Node names starting with "__" would collide; the builder UI does
// not produce them.
const finalizeStep = "__finalize__"

// Orchestrator sequences Node Executor calls across a run's node snapshot
// as durable steps, persisting incremental progress after every node.
type Orchestrator struct {
	repo     repository.Repository
	executor *Executor
	runner   durable.Runner
	logger   *logging.Logger

	runsCompleted metric.Int64Counter
	nodesExecuted metric.Int64Counter
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(repo repository.Repository, executor *Executor, runner durable.Runner, logger *logging.Logger) *Orchestrator {
	meter := otel.Meter("flowconsole/backend/engine")
	runsCompleted, _ := meter.Int64Counter("workflow.runs.completed",
		metric.WithDescription("Workflow runs reaching a terminal status"))
	nodesExecuted, _ := meter.Int64Counter("workflow.nodes.executed",
		metric.WithDescription("Workflow node attempts"))

	return &Orchestrator{
		repo:          repo,
		executor:      executor,
		runner:        runner,
		logger:        logger,
		runsCompleted: runsCompleted,
		nodesExecuted: nodesExecuted,
	}
}

// ExecuteRun drives the run identified by runID to a terminal status. It is
// safe to invoke again for the same run after a crash: completed node steps
// replay from the durable runner's memoized results and are not re-executed,
// and nodes that already have a persisted result are never double-appended.
func (o *Orchestrator) ExecuteRun(ctx context.Context, runID, token string) error {
	run, err := o.repo.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	if run.Status != models.RunStatusRunning {
		return nil
	}

	snapshot, err := o.ensureSnapshot(ctx, run)
	if err != nil {
		return o.failRun(ctx, runID, err)
	}

	for _, node := range snapshot {
		payload, err := o.runner.Step(ctx, runID, node.Name, o.nodeStep(runID, node, len(snapshot), token))
		if err != nil {
			// Infrastructure failure that survived the retry budget.
			return o.failRun(ctx, runID, err)
		}

		var result models.NodeResult
		if err := json.Unmarshal(payload, &result); err != nil {
			return o.failRun(ctx, runID, fmt.Errorf("failed to decode step result for node %q: %w", node.Name, err))
		}

		o.nodesExecuted.Add(ctx, 1, metric.WithAttributes(
			attribute.String("node.type", string(node.NodeType)),
			attribute.Bool("node.success", result.Success),
		))

		if !result.Success {
			// Node failures are terminal for the run; the failing step
			// already persisted the failed status.
			o.runsCompleted.Add(ctx, 1, metric.WithAttributes(attribute.String("run.status", "failed")))
			return nil
		}
	}

	if _, err := o.runner.Step(ctx, runID, finalizeStep, o.finalize(runID)); err != nil {
		return o.failRun(ctx, runID, err)
	}
	o.runsCompleted.Add(ctx, 1, metric.WithAttributes(attribute.String("run.status", "completed")))
	return nil
}

// ensureSnapshot copies the workflow's nodes into the run if trigger-time
// snapshotting did not happen, so execution is immune to concurrent edits.
func (o *Orchestrator) ensureSnapshot(ctx context.Context, run *models.WorkflowRun) ([]models.WorkflowNode, error) {
	if len(run.NodesSnapshot) > 0 {
		return run.NodesSnapshot, nil
	}

	workflow, err := o.repo.GetWorkflow(ctx, run.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("run has no snapshot and workflow %s is unavailable: %w", run.WorkflowID, err)
	}
	run.NodesSnapshot = workflow.Nodes
	run.Summary = models.ComputeSummary(run.Results, len(run.NodesSnapshot))
	if err := o.repo.UpdateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to persist snapshot: %w", err)
	}
	return run.NodesSnapshot, nil
}

// nodeStep builds the durable unit of work for one node. The step reloads
// the run document fresh each attempt; in-process state is never trusted
// across durable-step boundaries.
func (o *Orchestrator) nodeStep(runID string, node models.WorkflowNode, totalNodes int, token string) func(ctx context.Context) ([]byte, error) {
	return func(ctx context.Context) ([]byte, error) {
		run, err := o.repo.GetRun(ctx, runID)
		if err != nil {
			return nil, fmt.Errorf("failed to reload run: %w", err)
		}

		// A result persisted by an earlier invocation of this logical step
		// must not be appended twice.
		for _, existing := range run.Results {
			if existing.NodeID == node.ID {
				return json.Marshal(existing)
			}
		}

		result := o.executor.ExecuteNode(ctx, node, run.Results, token, run.Input)

		run.Results = append(run.Results, result)
		run.Summary = models.ComputeSummary(run.Results, totalNodes)
		if !result.Success {
			o.markTerminal(run, models.RunStatusFailed, nodeFailureMessage(result))
		}
		if err := o.repo.UpdateRun(ctx, run); err != nil {
			return nil, fmt.Errorf("failed to persist node result: %w", err)
		}

		o.logger.Info("run %s node %q finished success=%t", runID, node.Name, result.Success)
		return json.Marshal(result)
	}
}

// finalize recomputes the aggregate summary from the run's final results
// and marks the run completed.
func (o *Orchestrator) finalize(runID string) func(ctx context.Context) ([]byte, error) {
	return func(ctx context.Context) ([]byte, error) {
		run, err := o.repo.GetRun(ctx, runID)
		if err != nil {
			return nil, fmt.Errorf("failed to reload run: %w", err)
		}
		if run.Status == models.RunStatusRunning {
			run.Summary = models.ComputeSummary(run.Results, len(run.NodesSnapshot))
			o.markTerminal(run, models.RunStatusCompleted, "")
			if err := o.repo.UpdateRun(ctx, run); err != nil {
				return nil, fmt.Errorf("failed to persist completion: %w", err)
			}
		}
		o.logger.Info("run %s completed: %d/%d nodes succeeded", runID, run.Summary.SuccessfulNodes, run.Summary.TotalNodes)
		return json.Marshal(run.Summary)
	}
}

// failRun defensively marks the run failed after an orchestration-level
// error. Post-acceptance errors are only ever observable through the run
// document, so this must not be skipped.
func (o *Orchestrator) failRun(ctx context.Context, runID string, cause error) error {
	o.logger.Error("run %s orchestration failed: %v", runID, cause)

	run, err := o.repo.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("orchestration failed (%v) and run could not be reloaded: %w", cause, err)
	}
	if run.Status == models.RunStatusRunning {
		o.markTerminal(run, models.RunStatusFailed, cause.Error())
		if err := o.repo.UpdateRun(ctx, run); err != nil {
			return fmt.Errorf("orchestration failed (%v) and run could not be updated: %w", cause, err)
		}
	}
	o.runsCompleted.Add(ctx, 1, metric.WithAttributes(attribute.String("run.status", "failed")))
	return cause
}

func (o *Orchestrator) markTerminal(run *models.WorkflowRun, status models.RunStatus, errMsg string) {
	now := time.Now().UTC()
	elapsed := now.Sub(run.StartedAt).Milliseconds()
	run.Status = status
	run.CompletedAt = &now
	run.ExecutionTimeMS = &elapsed
	run.Error = errMsg
}

func nodeFailureMessage(result models.NodeResult) string {
	if result.Error != nil && result.Error.Message != "" {
		return result.Error.Message
	}
	if result.Message != "" {
		return result.Message
	}
	return fmt.Sprintf("node %q failed", result.NodeName)
}

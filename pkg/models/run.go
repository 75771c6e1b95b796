package models

import "time"

// RunStatus represents the lifecycle state of a workflow run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// WorkflowRun is one execution attempt of a workflow's node sequence.
// NodesSnapshot is copied from the workflow at trigger time so the run is
// immune to concurrent edits of the live definition.
type WorkflowRun struct {
	ID            string         `json:"id"`
	WorkflowID    string         `json:"workflowId"`
	CustomerID    string         `json:"customerId"`
	Status        RunStatus      `json:"status"`
	Input         map[string]any `json:"input,omitempty"`
	NodesSnapshot []WorkflowNode `json:"nodesSnapshot"`
	Results       []NodeResult   `json:"results"`
	Summary       RunSummary     `json:"summary"`
	StartedAt     time.Time      `json:"startedAt"`
	CompletedAt   *time.Time     `json:"completedAt,omitempty"`
	// ExecutionTimeMS is CompletedAt minus StartedAt, in milliseconds.
	ExecutionTimeMS *int64 `json:"executionTime,omitempty"`
	Error           string `json:"error,omitempty"`
}

// RunSummary aggregates node outcomes for UI rendering. TotalNodes always
// equals len(NodesSnapshot), even while the run is still in progress.
type RunSummary struct {
	TotalNodes      int     `json:"totalNodes"`
	SuccessfulNodes int     `json:"successfulNodes"`
	FailedNodes     int     `json:"failedNodes"`
	SuccessRate     float64 `json:"successRate"`
}

// NodeResult records one node attempt. Immutable once appended to a run.
type NodeResult struct {
	NodeID   string         `json:"nodeId"`
	NodeName string         `json:"nodeName"`
	Success  bool           `json:"success"`
	Message  string         `json:"message,omitempty"`
	Input    map[string]any `json:"input,omitempty"`
	Output   map[string]any `json:"output,omitempty"`
	Error    *NodeError     `json:"error,omitempty"`
}

// NodeError describes a node-level failure captured at the executor boundary.
type NodeError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

// ComputeSummary derives the run summary from its results. SuccessRate is
// successfulNodes/totalNodes*100, or 0 when totalNodes is 0.
func ComputeSummary(results []NodeResult, totalNodes int) RunSummary {
	s := RunSummary{TotalNodes: totalNodes}
	for _, r := range results {
		if r.Success {
			s.SuccessfulNodes++
		} else {
			s.FailedNodes++
		}
	}
	if totalNodes > 0 {
		s.SuccessRate = float64(s.SuccessfulNodes) / float64(totalNodes) * 100
	}
	return s
}

// HasResultFor reports whether the run already holds a result for the node.
// Used to keep re-invoked orchestrations from double-appending.
func (r *WorkflowRun) HasResultFor(nodeID string) bool {
	for _, res := range r.Results {
		if res.NodeID == nodeID {
			return true
		}
	}
	return false
}

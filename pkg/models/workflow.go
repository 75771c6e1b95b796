// Package models defines the domain models for the workflow console backend.
package models

import (
	"encoding/json"
	"time"
)

// WorkflowStatus represents the lifecycle state of a workflow definition.
type WorkflowStatus string

const (
	WorkflowStatusActive   WorkflowStatus = "active"
	WorkflowStatusInactive WorkflowStatus = "inactive"
)

// NodeCategory is the coarse classification of a workflow node.
type NodeCategory string

const (
	NodeCategoryTrigger NodeCategory = "trigger"
	NodeCategoryAction  NodeCategory = "action"
)

// NodeType is the fine-grained kind of a workflow node.
type NodeType string

const (
	NodeTypeManual NodeType = "manual"
	NodeTypeEvent  NodeType = "event"
	NodeTypeHTTP   NodeType = "http"
	NodeTypeAction NodeType = "action"
	NodeTypeAI     NodeType = "ai"
	NodeTypeGate   NodeType = "gate"
)

// Workflow is a user-authored sequence of typed nodes. Nodes are executed in
// array order; nodes[0] is expected to be the trigger, though the engine does
// not hard-enforce position.
type Workflow struct {
	ID          string         `json:"id"`
	CustomerID  string         `json:"customerId"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Status      WorkflowStatus `json:"status"`
	Version     int            `json:"version"`
	Nodes       []WorkflowNode `json:"nodes"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// WorkflowNode is one step of a workflow. Config is kept raw at rest and
// decoded into its typed variant by DecodeConfig at the point of use.
type WorkflowNode struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Type             NodeCategory    `json:"type"`
	NodeType         NodeType        `json:"nodeType"`
	TriggerType      string          `json:"triggerType,omitempty"`
	ParametersSchema Schema          `json:"parametersSchema,omitempty"`
	OutputSchema     Schema          `json:"outputSchema,omitempty"`
	Config           json.RawMessage `json:"config,omitempty"`
	Ready            bool            `json:"ready"`
}

// IsTrigger reports whether the node is the workflow's trigger.
func (n *WorkflowNode) IsTrigger() bool {
	return n.Type == NodeCategoryTrigger
}

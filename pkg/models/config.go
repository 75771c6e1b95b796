package models

import (
	"encoding/json"
	"fmt"
)

// NodeConfig is the typed configuration variant for one node kind. Config is
// stored as a raw document and validated into one of these at the boundary,
// so a missing field fails at decode time instead of deep inside the engine.
type NodeConfig interface {
	nodeConfig()
}

// EventSource distinguishes where an event trigger sources its events from.
type EventSource string

const (
	EventSourceConnector  EventSource = "connector"
	EventSourceDataRecord EventSource = "data-record"
)

// GateOperator is the comparison applied by a gate node.
type GateOperator string

const (
	GateOperatorEquals    GateOperator = "equals"
	GateOperatorNotEquals GateOperator = "not_equals"
)

// ManualTriggerConfig configures a manually invoked trigger.
type ManualTriggerConfig struct {
	InputSchema Schema `json:"inputSchema,omitempty"`
}

// EventTriggerConfig configures an event-sourced trigger.
type EventTriggerConfig struct {
	Source     EventSource `json:"source,omitempty"`
	EventName  string      `json:"eventName,omitempty"`
	Collection string      `json:"collection,omitempty"`
}

// HTTPConfig configures an outbound HTTP call node.
type HTTPConfig struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Query   map[string]string `json:"query,omitempty"`
	Body    any               `json:"body,omitempty"`
	// BodySchema is the user-declared shape of the response body, consumed
	// only by the schema calculator.
	BodySchema Schema `json:"bodySchema,omitempty"`
	// FailOnErrorStatus treats a 4xx/5xx response as a node failure instead
	// of a normal output.
	FailOnErrorStatus bool `json:"failOnErrorStatus,omitempty"`
}

// ActionConfig configures an integration action node.
type ActionConfig struct {
	ActionID   string         `json:"actionId"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// AIConfig configures a language-model node.
type AIConfig struct {
	Prompt           string         `json:"prompt"`
	Context          map[string]any `json:"context,omitempty"`
	StructuredOutput *bool          `json:"structuredOutput,omitempty"`
	OutputSchema     Schema         `json:"outputSchema,omitempty"`
}

// Structured reports whether the node produces structured output. Absent
// means structured; only an explicit false selects freeform text.
func (c *AIConfig) Structured() bool {
	return c.StructuredOutput == nil || *c.StructuredOutput
}

// GateConfig configures a conditional gate node. Either Field/Operator/Value
// or an Expression must be set; Expression takes precedence when present.
type GateConfig struct {
	Field      string       `json:"field,omitempty"`
	Operator   GateOperator `json:"operator,omitempty"`
	Value      any          `json:"value,omitempty"`
	Expression string       `json:"expression,omitempty"`
}

func (ManualTriggerConfig) nodeConfig() {}
func (EventTriggerConfig) nodeConfig()  {}
func (HTTPConfig) nodeConfig()          {}
func (ActionConfig) nodeConfig()        {}
func (AIConfig) nodeConfig()            {}
func (GateConfig) nodeConfig()          {}

// DecodeConfig validates and decodes the node's raw config into its typed
// variant. Unknown node kinds are a hard error, never a silent no-op.
func (n *WorkflowNode) DecodeConfig() (NodeConfig, error) {
	raw := n.Config
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}

	decode := func(dst NodeConfig) (NodeConfig, error) {
		if err := json.Unmarshal(raw, dst); err != nil {
			return nil, fmt.Errorf("node %q: invalid %s config: %w", n.Name, n.NodeType, err)
		}
		return dst, nil
	}

	switch n.NodeType {
	case NodeTypeManual:
		return decode(&ManualTriggerConfig{})
	case NodeTypeEvent:
		return decode(&EventTriggerConfig{})
	case NodeTypeHTTP:
		return decode(&HTTPConfig{})
	case NodeTypeAction:
		return decode(&ActionConfig{})
	case NodeTypeAI:
		return decode(&AIConfig{})
	case NodeTypeGate:
		return decode(&GateConfig{})
	default:
		return nil, fmt.Errorf("node %q: unsupported node type %q", n.Name, n.NodeType)
	}
}

// ConfigMap decodes the raw config as a generic map, for template resolution
// before the typed decode.
func (n *WorkflowNode) ConfigMap() (map[string]any, error) {
	if len(n.Config) == 0 {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(n.Config, &m); err != nil {
		return nil, fmt.Errorf("node %q: config is not an object: %w", n.Name, err)
	}
	return m, nil
}

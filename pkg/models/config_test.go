package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeConfig_TypedVariants(t *testing.T) {
	tests := []struct {
		nodeType NodeType
		config   string
		want     NodeConfig
	}{
		{
			nodeType: NodeTypeManual,
			config:   `{"inputSchema":{"type":"object"}}`,
			want:     &ManualTriggerConfig{InputSchema: Schema{"type": "object"}},
		},
		{
			nodeType: NodeTypeEvent,
			config:   `{"source":"connector","eventName":"order.created"}`,
			want:     &EventTriggerConfig{Source: EventSourceConnector, EventName: "order.created"},
		},
		{
			nodeType: NodeTypeHTTP,
			config:   `{"method":"POST","url":"https://example.com","failOnErrorStatus":true}`,
			want:     &HTTPConfig{Method: "POST", URL: "https://example.com", FailOnErrorStatus: true},
		},
		{
			nodeType: NodeTypeAction,
			config:   `{"actionId":"send-email","parameters":{"to":"a@b.c"}}`,
			want:     &ActionConfig{ActionID: "send-email", Parameters: map[string]any{"to": "a@b.c"}},
		},
		{
			nodeType: NodeTypeGate,
			config:   `{"field":"status","operator":"equals","value":"open"}`,
			want:     &GateConfig{Field: "status", Operator: GateOperatorEquals, Value: "open"},
		},
	}

	for _, tt := range tests {
		node := WorkflowNode{Name: "n", NodeType: tt.nodeType, Config: json.RawMessage(tt.config)}
		got, err := node.DecodeConfig()
		assert.NoError(t, err, "node type %q", tt.nodeType)
		assert.Equal(t, tt.want, got)
	}
}

func TestDecodeConfig_EmptyConfigDecodesAsZeroValue(t *testing.T) {
	node := WorkflowNode{Name: "n", NodeType: NodeTypeHTTP}
	got, err := node.DecodeConfig()
	assert.NoError(t, err)
	assert.Equal(t, &HTTPConfig{}, got)
}

func TestDecodeConfig_UnknownTypeIsHardError(t *testing.T) {
	node := WorkflowNode{Name: "n", NodeType: NodeType("teleport"), Config: json.RawMessage(`{}`)}
	_, err := node.DecodeConfig()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported node type")
}

func TestDecodeConfig_MalformedConfig(t *testing.T) {
	node := WorkflowNode{Name: "n", NodeType: NodeTypeHTTP, Config: json.RawMessage(`{"url":42}`)}
	_, err := node.DecodeConfig()
	assert.Error(t, err)
}

func TestAIConfig_StructuredDefaultsToTrue(t *testing.T) {
	yes := true
	no := false

	assert.True(t, (&AIConfig{}).Structured())
	assert.True(t, (&AIConfig{StructuredOutput: &yes}).Structured())
	assert.False(t, (&AIConfig{StructuredOutput: &no}).Structured())
}

func TestConfigMap(t *testing.T) {
	node := WorkflowNode{Name: "n", NodeType: NodeTypeHTTP, Config: json.RawMessage(`{"url":"https://example.com"}`)}
	m, err := node.ConfigMap()
	assert.NoError(t, err)
	assert.Equal(t, map[string]any{"url": "https://example.com"}, m)

	empty := WorkflowNode{Name: "n", NodeType: NodeTypeHTTP}
	m, err = empty.ConfigMap()
	assert.NoError(t, err)
	assert.Empty(t, m)

	bad := WorkflowNode{Name: "n", NodeType: NodeTypeHTTP, Config: json.RawMessage(`[1,2]`)}
	_, err = bad.ConfigMap()
	assert.Error(t, err)
}

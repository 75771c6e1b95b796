// Package schema derives the output data shape of workflow nodes without
// executing them.
package schema

import (
	"context"

	"flowconsole/backend/internal/integrations"
	"flowconsole/backend/internal/logging"
	"flowconsole/backend/pkg/models"
)

// FallbackProperty is the sentinel property returned for triggers whose
// configuration is incomplete. The builder UI relies on it to render
// unconfigured triggers without crashing; it is a deliberate placeholder.
const FallbackProperty = "FALLBACK"

// NodeSchema pairs a node id with its computed output schema.
type NodeSchema struct {
	NodeID       string        `json:"nodeId"`
	OutputSchema models.Schema `json:"outputSchema"`
}

// Calculator computes node output schemas. It inspects configuration and
// remote metadata only; it never executes a node's real effect.
type Calculator struct {
	client integrations.Client
	logger *logging.Logger
}

// NewCalculator creates a new Calculator.
func NewCalculator(client integrations.Client, logger *logging.Logger) *Calculator {
	return &Calculator{client: client, logger: logger}
}

// CalculateNodeOutputSchema derives one node's output schema from its stored
// configuration. Remote-fetch failures degrade to an empty object schema
// rather than propagating; callers must not assume a non-empty result
// implies success.
func (c *Calculator) CalculateNodeOutputSchema(ctx context.Context, node models.WorkflowNode, token string) models.Schema {
	cfg, err := node.DecodeConfig()
	if err != nil {
		c.logger.Warn("schema: node %q config decode failed: %v", node.Name, err)
		if node.IsTrigger() {
			return fallbackSchema()
		}
		return models.EmptyObjectSchema()
	}

	if node.IsTrigger() {
		return c.triggerSchema(ctx, node, cfg, token)
	}

	switch conf := cfg.(type) {
	case *models.HTTPConfig:
		return httpEnvelope(conf.BodySchema)
	case *models.AIConfig:
		if conf.Structured() {
			if conf.OutputSchema != nil {
				return conf.OutputSchema
			}
			return models.EmptyObjectSchema()
		}
		return models.ObjectSchema(map[string]any{
			"text": map[string]any{"type": "string"},
		})
	case *models.ActionConfig:
		return c.actionSchema(ctx, node, conf, token)
	default:
		return models.EmptyObjectSchema()
	}
}

// CalculateWorkflowOutputSchemas computes every node's schema in array order.
// Each node's schema is computed independently from its own stored config; no
// node's computed schema feeds into the next node's calculation.
func (c *Calculator) CalculateWorkflowOutputSchemas(ctx context.Context, nodes []models.WorkflowNode, token string) []NodeSchema {
	out := make([]NodeSchema, 0, len(nodes))
	for _, node := range nodes {
		out = append(out, NodeSchema{
			NodeID:       node.ID,
			OutputSchema: c.CalculateNodeOutputSchema(ctx, node, token),
		})
	}
	return out
}

func (c *Calculator) triggerSchema(ctx context.Context, node models.WorkflowNode, cfg models.NodeConfig, token string) models.Schema {
	switch conf := cfg.(type) {
	case *models.ManualTriggerConfig:
		if conf.InputSchema != nil {
			return conf.InputSchema
		}
		return models.EmptyObjectSchema()
	case *models.EventTriggerConfig:
		switch {
		case conf.Source == models.EventSourceConnector && conf.EventName != "":
			connectorID, err := c.client.GetConnectorID(ctx, token)
			if err != nil {
				c.logger.Warn("schema: node %q connector lookup failed: %v", node.Name, err)
				return models.EmptyObjectSchema()
			}
			s, err := c.client.GetConnectorEventSchema(ctx, token, connectorID, conf.EventName)
			if err != nil {
				c.logger.Warn("schema: node %q event schema fetch failed: %v", node.Name, err)
				return models.EmptyObjectSchema()
			}
			return s
		case conf.Source == models.EventSourceDataRecord && conf.Collection != "":
			s, err := c.client.GetCollectionSchema(ctx, token, conf.Collection)
			if err != nil {
				c.logger.Warn("schema: node %q collection schema fetch failed: %v", node.Name, err)
				return models.EmptyObjectSchema()
			}
			return s
		default:
			return fallbackSchema()
		}
	default:
		return fallbackSchema()
	}
}

func (c *Calculator) actionSchema(ctx context.Context, node models.WorkflowNode, conf *models.ActionConfig, token string) models.Schema {
	if conf.ActionID == "" {
		return models.EmptyObjectSchema()
	}
	action, err := c.client.GetAction(ctx, token, conf.ActionID)
	if err != nil {
		c.logger.Warn("schema: node %q action lookup failed: %v", node.Name, err)
		return models.EmptyObjectSchema()
	}
	if action.OutputSchema == nil {
		return models.EmptyObjectSchema()
	}
	return action.OutputSchema
}

// httpEnvelope wraps the declared body schema in the fixed HTTP response
// envelope.
func httpEnvelope(body models.Schema) models.Schema {
	if body == nil {
		body = models.EmptyObjectSchema()
	}
	return models.ObjectSchema(map[string]any{
		"statusCode": map[string]any{"type": "number"},
		"headers":    map[string]any{"type": "object"},
		"body":       map[string]any(body),
	})
}

func fallbackSchema() models.Schema {
	return models.ObjectSchema(map[string]any{
		FallbackProperty: map[string]any{"type": "string"},
	})
}

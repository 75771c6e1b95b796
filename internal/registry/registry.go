// Package registry holds the static catalog of supported node kinds.
package registry

import (
	"errors"
	"fmt"

	"flowconsole/backend/pkg/models"
)

// ErrUnsupportedNodeType is returned for node kinds absent from the catalog.
// Callers must treat it as a hard error, never as a silent no-op.
var ErrUnsupportedNodeType = errors.New("unsupported node type")

// Definition describes one node kind: its category, whether it is a trigger,
// and the shape of its configuration.
type Definition struct {
	NodeType     models.NodeType     `json:"nodeType"`
	Category     models.NodeCategory `json:"category"`
	IsTrigger    bool                `json:"isTrigger"`
	ConfigSchema models.Schema       `json:"configSchema"`
}

var definitions = []Definition{
	{
		NodeType:  models.NodeTypeManual,
		Category:  models.NodeCategoryTrigger,
		IsTrigger: true,
		ConfigSchema: models.ObjectSchema(map[string]any{
			"inputSchema": map[string]any{"type": "object"},
		}),
	},
	{
		NodeType:  models.NodeTypeEvent,
		Category:  models.NodeCategoryTrigger,
		IsTrigger: true,
		ConfigSchema: models.ObjectSchema(map[string]any{
			"source":     map[string]any{"type": "string", "enum": []any{"connector", "data-record"}},
			"eventName":  map[string]any{"type": "string"},
			"collection": map[string]any{"type": "string"},
		}),
	},
	{
		NodeType: models.NodeTypeHTTP,
		Category: models.NodeCategoryAction,
		ConfigSchema: models.ObjectSchema(map[string]any{
			"method":            map[string]any{"type": "string"},
			"url":               map[string]any{"type": "string"},
			"headers":           map[string]any{"type": "object"},
			"query":             map[string]any{"type": "object"},
			"body":              map[string]any{},
			"bodySchema":        map[string]any{"type": "object"},
			"failOnErrorStatus": map[string]any{"type": "boolean"},
		}),
	},
	{
		NodeType: models.NodeTypeAction,
		Category: models.NodeCategoryAction,
		ConfigSchema: models.ObjectSchema(map[string]any{
			"actionId":   map[string]any{"type": "string"},
			"parameters": map[string]any{"type": "object"},
		}),
	},
	{
		NodeType: models.NodeTypeAI,
		Category: models.NodeCategoryAction,
		ConfigSchema: models.ObjectSchema(map[string]any{
			"prompt":           map[string]any{"type": "string"},
			"context":          map[string]any{"type": "object"},
			"structuredOutput": map[string]any{"type": "boolean"},
			"outputSchema":     map[string]any{"type": "object"},
		}),
	},
	{
		NodeType: models.NodeTypeGate,
		Category: models.NodeCategoryAction,
		ConfigSchema: models.ObjectSchema(map[string]any{
			"field":      map[string]any{"type": "string"},
			"operator":   map[string]any{"type": "string", "enum": []any{"equals", "not_equals"}},
			"value":      map[string]any{},
			"expression": map[string]any{"type": "string"},
		}),
	},
}

var byType = func() map[models.NodeType]Definition {
	m := make(map[models.NodeType]Definition, len(definitions))
	for _, d := range definitions {
		m[d.NodeType] = d
	}
	return m
}()

// Lookup returns the definition for a node kind.
func Lookup(nodeType models.NodeType) (Definition, error) {
	d, ok := byType[nodeType]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %q", ErrUnsupportedNodeType, nodeType)
	}
	return d, nil
}

// All returns the catalog in a stable order, for the builder UI.
func All() []Definition {
	out := make([]Definition, len(definitions))
	copy(out, definitions)
	return out
}

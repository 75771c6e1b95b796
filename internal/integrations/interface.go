// Package integrations talks to the external integration/API platform on
// behalf of the engine. All calls are scoped by the caller's access token.
package integrations

import (
	"context"

	"flowconsole/backend/pkg/models"
)

// Action is an integration action's declared metadata.
type Action struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	OutputSchema models.Schema `json:"outputSchema"`
}

// CompletionRequest is one language-model invocation.
type CompletionRequest struct {
	Prompt  string         `json:"prompt"`
	Context map[string]any `json:"context,omitempty"`
	// Structured requests a JSON object conforming to OutputSchema; when
	// false the model returns freeform text.
	Structured   bool          `json:"structured"`
	OutputSchema models.Schema `json:"outputSchema,omitempty"`
}

// Client is the interface the engine uses to reach the integration platform.
type Client interface {
	// GetConnectorID returns the integration's connector id, or an error if
	// the integration has no connector.
	GetConnectorID(ctx context.Context, token string) (string, error)
	// GetConnectorEventSchema fetches the schema of a named connector event.
	GetConnectorEventSchema(ctx context.Context, token, connectorID, eventName string) (models.Schema, error)
	// GetCollectionSchema fetches the field schema of a named data collection.
	GetCollectionSchema(ctx context.Context, token, collection string) (models.Schema, error)
	// GetAction resolves an action id to its declared metadata.
	GetAction(ctx context.Context, token, actionID string) (*Action, error)
	// ExecuteAction invokes an integration action with resolved parameters.
	ExecuteAction(ctx context.Context, token, actionID string, parameters map[string]any) (map[string]any, error)
	// Complete invokes a language-model call.
	Complete(ctx context.Context, token string, req CompletionRequest) (map[string]any, error)
}

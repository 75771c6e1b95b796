package integrations

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"flowconsole/backend/pkg/models"
)

// HTTPClient is an HTTP implementation of the Client interface.
type HTTPClient struct {
	baseURL string
	aiPath  string
	http    *http.Client
}

// NewHTTPClient creates a new HTTPClient.
func NewHTTPClient(baseURL, aiPath string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		aiPath:  aiPath,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

// GetConnectorID returns the integration's connector id.
func (c *HTTPClient) GetConnectorID(ctx context.Context, token string) (string, error) {
	var out struct {
		ConnectorID string `json:"connectorId"`
	}
	if err := c.getJSON(ctx, token, "/v1/integration", &out); err != nil {
		return "", err
	}
	if out.ConnectorID == "" {
		return "", fmt.Errorf("integration has no connector id")
	}
	return out.ConnectorID, nil
}

// GetConnectorEventSchema fetches the schema of a named connector event.
func (c *HTTPClient) GetConnectorEventSchema(ctx context.Context, token, connectorID, eventName string) (models.Schema, error) {
	var out struct {
		Schema models.Schema `json:"schema"`
	}
	path := fmt.Sprintf("/v1/connectors/%s/events/%s", url.PathEscape(connectorID), url.PathEscape(eventName))
	if err := c.getJSON(ctx, token, path, &out); err != nil {
		return nil, err
	}
	return out.Schema, nil
}

// GetCollectionSchema fetches the field schema of a named data collection.
func (c *HTTPClient) GetCollectionSchema(ctx context.Context, token, collection string) (models.Schema, error) {
	var out struct {
		Fields models.Schema `json:"fields"`
	}
	if err := c.getJSON(ctx, token, "/v1/collections/"+url.PathEscape(collection), &out); err != nil {
		return nil, err
	}
	return out.Fields, nil
}

// GetAction resolves an action id to its declared metadata.
func (c *HTTPClient) GetAction(ctx context.Context, token, actionID string) (*Action, error) {
	var action Action
	if err := c.getJSON(ctx, token, "/v1/actions/"+url.PathEscape(actionID), &action); err != nil {
		return nil, err
	}
	return &action, nil
}

// ExecuteAction invokes an integration action with resolved parameters.
func (c *HTTPClient) ExecuteAction(ctx context.Context, token, actionID string, parameters map[string]any) (map[string]any, error) {
	body := map[string]any{"parameters": parameters}
	var out map[string]any
	path := "/v1/actions/" + url.PathEscape(actionID) + "/execute"
	if err := c.postJSON(ctx, token, path, body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Complete invokes a language-model call through the integration platform.
func (c *HTTPClient) Complete(ctx context.Context, token string, req CompletionRequest) (map[string]any, error) {
	var out map[string]any
	if err := c.postJSON(ctx, token, c.aiPath, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) getJSON(ctx context.Context, token, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, token, out)
}

func (c *HTTPClient) postJSON(ctx context.Context, token, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, token, out)
}

func (c *HTTPClient) do(req *http.Request, token string, out any) error {
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("integration request %s %s: status code %d", req.Method, req.URL.Path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

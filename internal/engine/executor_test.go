package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"flowconsole/backend/internal/integrations"
	"flowconsole/backend/internal/logging"
	"flowconsole/backend/pkg/models"
)

// fakeClient satisfies integrations.Client with per-call hooks.
type fakeClient struct {
	executeAction func(ctx context.Context, token, actionID string, parameters map[string]any) (map[string]any, error)
	complete      func(ctx context.Context, token string, req integrations.CompletionRequest) (map[string]any, error)
}

func (f *fakeClient) GetConnectorID(ctx context.Context, token string) (string, error) {
	return "", fmt.Errorf("not implemented")
}

func (f *fakeClient) GetConnectorEventSchema(ctx context.Context, token, connectorID, eventName string) (models.Schema, error) {
	return nil, fmt.Errorf("not implemented")
}

func (f *fakeClient) GetCollectionSchema(ctx context.Context, token, collection string) (models.Schema, error) {
	return nil, fmt.Errorf("not implemented")
}

func (f *fakeClient) GetAction(ctx context.Context, token, actionID string) (*integrations.Action, error) {
	return nil, fmt.Errorf("not implemented")
}

func (f *fakeClient) ExecuteAction(ctx context.Context, token, actionID string, parameters map[string]any) (map[string]any, error) {
	if f.executeAction == nil {
		return nil, fmt.Errorf("not implemented")
	}
	return f.executeAction(ctx, token, actionID, parameters)
}

func (f *fakeClient) Complete(ctx context.Context, token string, req integrations.CompletionRequest) (map[string]any, error) {
	if f.complete == nil {
		return nil, fmt.Errorf("not implemented")
	}
	return f.complete(ctx, token, req)
}

func newTestExecutor(client integrations.Client) *Executor {
	if client == nil {
		client = &fakeClient{}
	}
	return NewExecutor(client, logging.NewLogger())
}

func node(name string, nodeType models.NodeType, config string) models.WorkflowNode {
	category := models.NodeCategoryAction
	if nodeType == models.NodeTypeManual || nodeType == models.NodeTypeEvent {
		category = models.NodeCategoryTrigger
	}
	return models.WorkflowNode{
		ID:       "id-" + name,
		Name:     name,
		Type:     category,
		NodeType: nodeType,
		Config:   json.RawMessage(config),
	}
}

func TestExecuteNode_TriggerPassesInputThrough(t *testing.T) {
	e := newTestExecutor(nil)
	input := map[string]any{"order": "o-1"}

	result := e.ExecuteNode(context.Background(), node("Start", models.NodeTypeManual, `{}`), nil, "", input)
	assert.True(t, result.Success)
	assert.Equal(t, input, result.Output)

	result = e.ExecuteNode(context.Background(), node("On Event", models.NodeTypeEvent, `{"source":"connector"}`), nil, "", input)
	assert.True(t, result.Success)
	assert.Equal(t, input, result.Output)
}

func TestExecuteNode_HTTPSuccess(t *testing.T) {
	var gotPath, gotQuery, gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query().Get("q")
		gotHeader = r.Header.Get("X-Custom")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{"total": 42}`)
	}))
	defer srv.Close()

	cfg := fmt.Sprintf(`{"method":"GET","url":"%s/orders","query":{"q":"open"},"headers":{"X-Custom":"yes"}}`, srv.URL)
	result := newTestExecutor(nil).ExecuteNode(context.Background(), node("Fetch", models.NodeTypeHTTP, cfg), nil, "", nil)

	assert.True(t, result.Success)
	assert.Equal(t, "/orders", gotPath)
	assert.Equal(t, "open", gotQuery)
	assert.Equal(t, "yes", gotHeader)
	assert.Equal(t, 200, result.Output["statusCode"])
	assert.Equal(t, map[string]any{"total": float64(42)}, result.Output["body"])
}

func TestExecuteNode_HTTPNonJSONBodyKeptAsString(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "plain text")
	}))
	defer srv.Close()

	cfg := fmt.Sprintf(`{"url":"%s"}`, srv.URL)
	result := newTestExecutor(nil).ExecuteNode(context.Background(), node("Fetch", models.NodeTypeHTTP, cfg), nil, "", nil)

	assert.True(t, result.Success)
	assert.Equal(t, "plain text", result.Output["body"])
}

func TestExecuteNode_HTTPErrorStatusIsNormalOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"error":"down"}`)
	}))
	defer srv.Close()

	cfg := fmt.Sprintf(`{"url":"%s"}`, srv.URL)
	result := newTestExecutor(nil).ExecuteNode(context.Background(), node("Check", models.NodeTypeHTTP, cfg), nil, "", nil)

	assert.True(t, result.Success)
	assert.Nil(t, result.Error)
	assert.Equal(t, 503, result.Output["statusCode"])
}

func TestExecuteNode_HTTPFailOnErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := fmt.Sprintf(`{"url":"%s","failOnErrorStatus":true}`, srv.URL)
	result := newTestExecutor(nil).ExecuteNode(context.Background(), node("Check", models.NodeTypeHTTP, cfg), nil, "", nil)

	assert.False(t, result.Success)
	assert.NotNil(t, result.Error)
	assert.Equal(t, CodeNodeExecutionError, result.Error.Code)
	// The envelope is still populated for debugging.
	assert.Equal(t, 500, result.Output["statusCode"])
}

func TestExecuteNode_HTTPTransportErrorFails(t *testing.T) {
	result := newTestExecutor(nil).ExecuteNode(context.Background(),
		node("Fetch", models.NodeTypeHTTP, `{"url":"http://127.0.0.1:1/nope"}`), nil, "", nil)

	assert.False(t, result.Success)
	assert.NotNil(t, result.Error)
	assert.Equal(t, CodeNodeExecutionError, result.Error.Code)
}

func TestExecuteNode_HTTPTemplatedConfig(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	previous := []models.NodeResult{
		{NodeID: "n1", NodeName: "Lookup", Success: true, Output: map[string]any{"total": float64(42)}},
	}
	cfg := fmt.Sprintf(`{"method":"POST","url":"%s","body":{"amount":"{{Lookup.total}}","user":"{{trigger.user}}"}}`, srv.URL)
	result := newTestExecutor(nil).ExecuteNode(context.Background(),
		node("Pay", models.NodeTypeHTTP, cfg), previous, "", map[string]any{"user": "u-7"})

	assert.True(t, result.Success)
	assert.Equal(t, map[string]any{"amount": float64(42), "user": "u-7"}, gotBody)
	// The resolved input is recorded on the result for observability.
	assert.Equal(t, float64(42), result.Input["body"].(map[string]any)["amount"])
}

func TestExecuteNode_Action(t *testing.T) {
	client := &fakeClient{
		executeAction: func(ctx context.Context, token, actionID string, parameters map[string]any) (map[string]any, error) {
			assert.Equal(t, "tok", token)
			assert.Equal(t, "send-email", actionID)
			return map[string]any{"sent": true}, nil
		},
	}
	result := newTestExecutor(client).ExecuteNode(context.Background(),
		node("Notify", models.NodeTypeAction, `{"actionId":"send-email","parameters":{"to":"a@b.c"}}`), nil, "tok", nil)

	assert.True(t, result.Success)
	assert.Equal(t, map[string]any{"sent": true}, result.Output)
}

func TestExecuteNode_ActionMissingID(t *testing.T) {
	result := newTestExecutor(nil).ExecuteNode(context.Background(),
		node("Notify", models.NodeTypeAction, `{}`), nil, "", nil)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error.Message, "actionId")
}

func TestExecuteNode_ActionFailure(t *testing.T) {
	client := &fakeClient{
		executeAction: func(ctx context.Context, token, actionID string, parameters map[string]any) (map[string]any, error) {
			return nil, fmt.Errorf("upstream 500")
		},
	}
	result := newTestExecutor(client).ExecuteNode(context.Background(),
		node("Notify", models.NodeTypeAction, `{"actionId":"send-email"}`), nil, "", nil)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error.Message, "upstream 500")
}

func TestExecuteNode_AI(t *testing.T) {
	var gotReq integrations.CompletionRequest
	client := &fakeClient{
		complete: func(ctx context.Context, token string, req integrations.CompletionRequest) (map[string]any, error) {
			gotReq = req
			return map[string]any{"summary": "ok"}, nil
		},
	}
	result := newTestExecutor(client).ExecuteNode(context.Background(),
		node("Summarize", models.NodeTypeAI, `{"prompt":"summarize this","outputSchema":{"type":"object"}}`), nil, "tok", nil)

	assert.True(t, result.Success)
	assert.Equal(t, map[string]any{"summary": "ok"}, result.Output)
	assert.Equal(t, "summarize this", gotReq.Prompt)
	assert.True(t, gotReq.Structured)
}

func TestExecuteNode_AIMissingPrompt(t *testing.T) {
	result := newTestExecutor(nil).ExecuteNode(context.Background(),
		node("Summarize", models.NodeTypeAI, `{}`), nil, "", nil)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error.Message, "prompt")
}

func TestExecuteNode_GateConditionMet(t *testing.T) {
	previous := []models.NodeResult{
		{NodeID: "n1", NodeName: "Check", Success: true, Output: map[string]any{"statusCode": float64(200)}},
	}
	result := newTestExecutor(nil).ExecuteNode(context.Background(),
		node("Gate", models.NodeTypeGate, `{"field":"statusCode","operator":"equals","value":200}`), previous, "", nil)

	assert.True(t, result.Success)
	assert.Nil(t, result.Error)
	assert.Equal(t, true, result.Output["met"])
}

func TestExecuteNode_GateUnmetIsFailureWithoutError(t *testing.T) {
	previous := []models.NodeResult{
		{NodeID: "n1", NodeName: "Check", Success: true, Output: map[string]any{"statusCode": float64(503)}},
	}
	result := newTestExecutor(nil).ExecuteNode(context.Background(),
		node("Gate", models.NodeTypeGate, `{"field":"statusCode","operator":"equals","value":200}`), previous, "", nil)

	assert.False(t, result.Success)
	assert.Nil(t, result.Error)
	assert.Contains(t, result.Message, "condition not met")
}

func TestExecuteNode_GateNotEquals(t *testing.T) {
	previous := []models.NodeResult{
		{NodeID: "n1", NodeName: "Check", Success: true, Output: map[string]any{"status": "closed"}},
	}
	result := newTestExecutor(nil).ExecuteNode(context.Background(),
		node("Gate", models.NodeTypeGate, `{"field":"status","operator":"not_equals","value":"open"}`), previous, "", nil)

	assert.True(t, result.Success)
}

func TestExecuteNode_GateLooseComparison(t *testing.T) {
	// JSON numbers arrive as float64 but configs may carry strings.
	previous := []models.NodeResult{
		{NodeID: "n1", NodeName: "Check", Success: true, Output: map[string]any{"count": float64(3)}},
	}
	result := newTestExecutor(nil).ExecuteNode(context.Background(),
		node("Gate", models.NodeTypeGate, `{"field":"count","operator":"equals","value":"3"}`), previous, "", nil)

	assert.True(t, result.Success)
}

func TestExecuteNode_GateUnsupportedOperator(t *testing.T) {
	result := newTestExecutor(nil).ExecuteNode(context.Background(),
		node("Gate", models.NodeTypeGate, `{"field":"x","operator":"gt","value":1}`), nil, "", nil)

	assert.False(t, result.Success)
	assert.NotNil(t, result.Error)
	assert.Contains(t, result.Error.Message, "operator")
}

func TestExecuteNode_GateExpression(t *testing.T) {
	previous := []models.NodeResult{
		{NodeID: "n1", NodeName: "check", Success: true, Output: map[string]any{"statusCode": 200}},
	}
	result := newTestExecutor(nil).ExecuteNode(context.Background(),
		node("Gate", models.NodeTypeGate, `{"expression":"nodes[\"check\"].statusCode == 200 && trigger.env == \"prod\""}`),
		previous, "", map[string]any{"env": "prod"})

	assert.True(t, result.Success)

	result = newTestExecutor(nil).ExecuteNode(context.Background(),
		node("Gate", models.NodeTypeGate, `{"expression":"trigger.env == \"staging\""}`),
		previous, "", map[string]any{"env": "prod"})

	assert.False(t, result.Success)
	assert.Nil(t, result.Error)
}

func TestExecuteNode_GateExpressionInvalid(t *testing.T) {
	result := newTestExecutor(nil).ExecuteNode(context.Background(),
		node("Gate", models.NodeTypeGate, `{"expression":"((("}`), nil, "", nil)

	assert.False(t, result.Success)
	assert.NotNil(t, result.Error)
}

func TestExecuteNode_UnknownTypeFails(t *testing.T) {
	result := newTestExecutor(nil).ExecuteNode(context.Background(),
		node("Odd", models.NodeType("teleport"), `{}`), nil, "", nil)

	assert.False(t, result.Success)
	assert.NotNil(t, result.Error)
	assert.Equal(t, CodeNodeExecutionError, result.Error.Code)
}

func TestExecuteNode_MalformedConfigFails(t *testing.T) {
	result := newTestExecutor(nil).ExecuteNode(context.Background(),
		node("Fetch", models.NodeTypeHTTP, `[]`), nil, "", nil)

	assert.False(t, result.Success)
	assert.NotNil(t, result.Error)
}

func TestExecuteNode_PanicBecomesFailedResult(t *testing.T) {
	client := &fakeClient{
		executeAction: func(ctx context.Context, token, actionID string, parameters map[string]any) (map[string]any, error) {
			panic("boom")
		},
	}
	result := newTestExecutor(client).ExecuteNode(context.Background(),
		node("Notify", models.NodeTypeAction, `{"actionId":"send-email"}`), nil, "", nil)

	assert.False(t, result.Success)
	assert.NotNil(t, result.Error)
	assert.Contains(t, result.Error.Message, "panicked")
}

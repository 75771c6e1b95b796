package integrations

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"flowconsole/backend/pkg/models"
)

func newTestPlatform(t *testing.T, handler http.HandlerFunc) (*HTTPClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPClient(srv.URL, "/v1/completions"), srv
}

func TestGetConnectorID(t *testing.T) {
	client, _ := newTestPlatform(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/integration", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"connectorId":"conn-1"}`)
	})

	id, err := client.GetConnectorID(context.Background(), "tok")
	assert.NoError(t, err)
	assert.Equal(t, "conn-1", id)
}

func TestGetConnectorID_MissingIsAnError(t *testing.T) {
	client, _ := newTestPlatform(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	})

	_, err := client.GetConnectorID(context.Background(), "tok")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "no connector id")
}

func TestGetConnectorEventSchema(t *testing.T) {
	client, _ := newTestPlatform(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/connectors/conn-1/events/order.created", r.URL.Path)
		fmt.Fprint(w, `{"schema":{"type":"object","properties":{"orderId":{"type":"string"}}}}`)
	})

	s, err := client.GetConnectorEventSchema(context.Background(), "tok", "conn-1", "order.created")
	assert.NoError(t, err)
	assert.Equal(t, "object", s["type"])
}

func TestGetCollectionSchema(t *testing.T) {
	client, _ := newTestPlatform(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/collections/orders", r.URL.Path)
		fmt.Fprint(w, `{"fields":{"type":"object"}}`)
	})

	s, err := client.GetCollectionSchema(context.Background(), "tok", "orders")
	assert.NoError(t, err)
	assert.Equal(t, "object", s["type"])
}

func TestGetAction(t *testing.T) {
	client, _ := newTestPlatform(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/actions/send-email", r.URL.Path)
		fmt.Fprint(w, `{"id":"send-email","name":"Send Email","outputSchema":{"type":"object"}}`)
	})

	action, err := client.GetAction(context.Background(), "tok", "send-email")
	assert.NoError(t, err)
	assert.Equal(t, "send-email", action.ID)
	assert.Equal(t, models.Schema{"type": "object"}, action.OutputSchema)
}

func TestExecuteAction(t *testing.T) {
	client, _ := newTestPlatform(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/actions/send-email/execute", r.URL.Path)

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]any{"parameters": map[string]any{"to": "a@b.c"}}, body)

		fmt.Fprint(w, `{"sent":true}`)
	})

	out, err := client.ExecuteAction(context.Background(), "tok", "send-email", map[string]any{"to": "a@b.c"})
	assert.NoError(t, err)
	assert.Equal(t, map[string]any{"sent": true}, out)
}

func TestComplete(t *testing.T) {
	client, _ := newTestPlatform(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/completions", r.URL.Path)

		var req CompletionRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "summarize", req.Prompt)
		assert.True(t, req.Structured)

		fmt.Fprint(w, `{"summary":"ok"}`)
	})

	out, err := client.Complete(context.Background(), "tok", CompletionRequest{Prompt: "summarize", Structured: true})
	assert.NoError(t, err)
	assert.Equal(t, map[string]any{"summary": "ok"}, out)
}

func TestErrorStatusPropagates(t *testing.T) {
	client, _ := newTestPlatform(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.GetAction(context.Background(), "tok", "send-email")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

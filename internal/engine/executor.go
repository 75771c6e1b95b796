// Package engine executes workflow runs: one Executor call per node,
// sequenced by the Orchestrator as durable steps.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/expr-lang/expr"

	"flowconsole/backend/internal/integrations"
	"flowconsole/backend/internal/logging"
	"flowconsole/backend/pkg/models"
)

// CodeNodeExecutionError marks a node failure captured at the executor
// boundary.
const CodeNodeExecutionError = "NODE_EXECUTION_ERROR"

// Executor runs exactly one node's effect. It never touches the run
// document; all side effects are external (HTTP calls, integration actions).
type Executor struct {
	httpClient *http.Client
	client     integrations.Client
	logger     *logging.Logger
}

// NewExecutor creates an Executor.
func NewExecutor(client integrations.Client, logger *logging.Logger) *Executor {
	return &Executor{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		client:     client,
		logger:     logger,
	}
}

// ExecuteNode executes one node against the accumulated prior results and
// the original trigger input, returning a typed result. Errors and panics
// never propagate; they are converted into a failed NodeResult here, so the
// orchestrator only ever sees results.
func (e *Executor) ExecuteNode(ctx context.Context, node models.WorkflowNode, previous []models.NodeResult, token string, triggerInput map[string]any) (result models.NodeResult) {
	result = models.NodeResult{NodeID: node.ID, NodeName: node.Name}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("executor: node %q panicked: %v", node.Name, r)
			result.Success = false
			result.Error = &models.NodeError{
				Message: fmt.Sprintf("node panicked: %v", r),
				Code:    CodeNodeExecutionError,
			}
		}
	}()

	tc := newTemplateContext(previous, triggerInput)

	rawCfg, err := node.ConfigMap()
	if err != nil {
		return failed(result, err)
	}
	resolved, _ := tc.resolveValue(rawCfg).(map[string]any)
	result.Input = resolved

	cfg, err := decodeResolvedConfig(node, resolved)
	if err != nil {
		return failed(result, err)
	}

	switch conf := cfg.(type) {
	case *models.ManualTriggerConfig, *models.EventTriggerConfig:
		// Trigger nodes pass the trigger payload through as their output.
		result.Success = true
		result.Message = "trigger"
		result.Output = triggerInput
		return result
	case *models.HTTPConfig:
		return e.executeHTTP(ctx, result, conf)
	case *models.ActionConfig:
		return e.executeAction(ctx, result, conf, token)
	case *models.AIConfig:
		return e.executeAI(ctx, result, conf, token)
	case *models.GateConfig:
		return e.executeGate(result, conf, tc)
	default:
		return failed(result, fmt.Errorf("unsupported node type %q", node.NodeType))
	}
}

func (e *Executor) executeHTTP(ctx context.Context, result models.NodeResult, conf *models.HTTPConfig) models.NodeResult {
	method := strings.ToUpper(conf.Method)
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if conf.Body != nil {
		payload, err := json.Marshal(conf.Body)
		if err != nil {
			return failed(result, fmt.Errorf("failed to marshal request body: %w", err))
		}
		body = bytes.NewBuffer(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, conf.URL, body)
	if err != nil {
		return failed(result, fmt.Errorf("failed to create request: %w", err))
	}
	if conf.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range conf.Headers {
		req.Header.Set(k, v)
	}
	if len(conf.Query) > 0 {
		q := req.URL.Query()
		for k, v := range conf.Query {
			q.Set(k, v)
		}
		req.URL.RawQuery = q.Encode()
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		// Transport errors are node failures; HTTP error statuses are not.
		return failed(result, fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return failed(result, fmt.Errorf("failed to read response body: %w", err))
	}

	headers := make(map[string]any, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	var parsed any
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		parsed = string(respBody)
	}

	result.Output = map[string]any{
		"statusCode": resp.StatusCode,
		"headers":    headers,
		"body":       parsed,
	}

	if conf.FailOnErrorStatus && resp.StatusCode >= 400 {
		return failed(result, fmt.Errorf("request returned status %d", resp.StatusCode))
	}

	result.Success = true
	result.Message = fmt.Sprintf("%s %s returned %d", method, urlWithoutQuery(req.URL), resp.StatusCode)
	return result
}

func (e *Executor) executeAction(ctx context.Context, result models.NodeResult, conf *models.ActionConfig, token string) models.NodeResult {
	if conf.ActionID == "" {
		return failed(result, fmt.Errorf("action node has no actionId"))
	}
	output, err := e.client.ExecuteAction(ctx, token, conf.ActionID, conf.Parameters)
	if err != nil {
		return failed(result, fmt.Errorf("action %s failed: %w", conf.ActionID, err))
	}
	result.Success = true
	result.Message = fmt.Sprintf("action %s executed", conf.ActionID)
	result.Output = output
	return result
}

func (e *Executor) executeAI(ctx context.Context, result models.NodeResult, conf *models.AIConfig, token string) models.NodeResult {
	if conf.Prompt == "" {
		return failed(result, fmt.Errorf("ai node has no prompt"))
	}
	output, err := e.client.Complete(ctx, token, integrations.CompletionRequest{
		Prompt:       conf.Prompt,
		Context:      conf.Context,
		Structured:   conf.Structured(),
		OutputSchema: conf.OutputSchema,
	})
	if err != nil {
		return failed(result, fmt.Errorf("completion failed: %w", err))
	}
	result.Success = true
	result.Message = "completion returned"
	result.Output = output
	return result
}

// executeGate evaluates the gate condition. An unmet condition is a
// non-exceptional failure: Success=false with no Error, the sanctioned way
// to halt a run early.
func (e *Executor) executeGate(result models.NodeResult, conf *models.GateConfig, tc templateContext) models.NodeResult {
	if conf.Expression != "" {
		return e.executeGateExpression(result, conf, tc)
	}

	actual, _ := tc.lookupGateField(conf.Field)
	met := false
	switch conf.Operator {
	case models.GateOperatorEquals:
		met = looseEquals(actual, conf.Value)
	case models.GateOperatorNotEquals:
		met = !looseEquals(actual, conf.Value)
	default:
		return failed(result, fmt.Errorf("unsupported gate operator %q", conf.Operator))
	}

	result.Success = met
	result.Output = map[string]any{
		"field":  conf.Field,
		"actual": actual,
		"met":    met,
	}
	if met {
		result.Message = "condition met"
	} else {
		result.Message = fmt.Sprintf("condition not met: %s %s %v", conf.Field, conf.Operator, conf.Value)
	}
	return result
}

func (e *Executor) executeGateExpression(result models.NodeResult, conf *models.GateConfig, tc templateContext) models.NodeResult {
	env := map[string]any{
		"trigger": tc.trigger,
		"nodes":   tc.nodes,
	}
	program, err := expr.Compile(conf.Expression, expr.Env(env), expr.AsBool())
	if err != nil {
		return failed(result, fmt.Errorf("invalid gate expression: %w", err))
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return failed(result, fmt.Errorf("gate expression failed: %w", err))
	}
	met, _ := out.(bool)

	result.Success = met
	result.Output = map[string]any{"met": met}
	if met {
		result.Message = "condition met"
	} else {
		result.Message = "condition not met: " + conf.Expression
	}
	return result
}

// lookupGateField resolves a gate field path against the most recent node
// output, falling back to the trigger input when no node has run yet.
func (tc templateContext) lookupGateField(field string) (any, bool) {
	if field == "" {
		return nil, false
	}
	parts := strings.Split(field, ".")
	if v, ok := tc.lookup(field); ok {
		return v, true
	}
	if last, ok := tc.latestOutput(); ok {
		if v, ok := lookupPath(last, parts); ok {
			return v, true
		}
	}
	return lookupPath(tc.trigger, parts)
}

func (tc templateContext) latestOutput() (map[string]any, bool) {
	if tc.latest == nil {
		return nil, false
	}
	return tc.latest, true
}

// looseEquals compares two values the way gate configs expect: deep equality
// first, then textual equality so `true` matches `"true"` and `3` matches
// `"3"` across JSON number/string boundaries.
func looseEquals(a, b any) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

// decodeResolvedConfig re-marshals the template-resolved config map and
// decodes it through the node's typed variant.
func decodeResolvedConfig(node models.WorkflowNode, resolved map[string]any) (models.NodeConfig, error) {
	raw, err := json.Marshal(resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resolved config: %w", err)
	}
	n := node
	n.Config = raw
	return n.DecodeConfig()
}

func failed(result models.NodeResult, err error) models.NodeResult {
	result.Success = false
	result.Error = &models.NodeError{
		Message: err.Error(),
		Code:    CodeNodeExecutionError,
	}
	result.Message = err.Error()
	return result
}

func urlWithoutQuery(u *url.URL) string {
	c := *u
	c.RawQuery = ""
	return c.String()
}

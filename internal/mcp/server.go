package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"flowconsole/backend/internal/engine"
	"flowconsole/backend/internal/logging"
	"flowconsole/backend/internal/repository"
	"flowconsole/backend/pkg/models"
)

// Server exposes workflow operations as MCP tools so agent clients can
// inspect and trigger workflows.
type Server struct {
	mcpServer    *server.MCPServer
	repo         repository.Repository
	orchestrator *engine.Orchestrator
	logger       *logging.Logger
}

// NewServer creates the MCP server and registers its tools.
func NewServer(repo repository.Repository, orchestrator *engine.Orchestrator, logger *logging.Logger) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"Workflow Console",
			"1.0.0",
			server.WithToolCapabilities(true),
		),
		repo:         repo,
		orchestrator: orchestrator,
		logger:       logger,
	}

	s.registerTools()
	return s
}

func (s *Server) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"list_workflows",
			mcp.WithDescription("List a customer's workflows"),
			mcp.WithString("customer_id", mcp.Required(), mcp.Description("The owning customer id")),
		),
		s.handleListWorkflows,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"run_workflow",
			mcp.WithDescription("Trigger a workflow run and return its run id"),
			mcp.WithString("workflow_id", mcp.Required(), mcp.Description("The workflow to run")),
			mcp.WithString("token", mcp.Required(), mcp.Description("Integration access token used by nodes")),
			mcp.WithString("input", mcp.Description("JSON object passed as the trigger input")),
		),
		s.handleRunWorkflow,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_run",
			mcp.WithDescription("Fetch a run's status, results and summary"),
			mcp.WithString("run_id", mcp.Required(), mcp.Description("The run to fetch")),
		),
		s.handleGetRun,
	)
}

func (s *Server) handleListWorkflows(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	customerID, ok := args["customer_id"].(string)
	if !ok || customerID == "" {
		return mcp.NewToolResultError("Missing required parameter: customer_id"), nil
	}

	workflows, err := s.repo.ListWorkflows(ctx, customerID, "")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list workflows: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(workflows)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleRunWorkflow(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	workflowID, ok := args["workflow_id"].(string)
	if !ok || workflowID == "" {
		return mcp.NewToolResultError("Missing required parameter: workflow_id"), nil
	}
	token, ok := args["token"].(string)
	if !ok || token == "" {
		return mcp.NewToolResultError("Missing required parameter: token"), nil
	}

	var input map[string]any
	if raw, ok := args["input"].(string); ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &input); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid input JSON: %v", err)), nil
		}
	}

	workflow, err := s.repo.GetWorkflow(ctx, workflowID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load workflow: %v", err)), nil
	}

	run := &models.WorkflowRun{
		ID:            uuid.New().String(),
		WorkflowID:    workflow.ID,
		CustomerID:    workflow.CustomerID,
		Status:        models.RunStatusRunning,
		Input:         input,
		NodesSnapshot: workflow.Nodes,
		Results:       []models.NodeResult{},
		Summary:       models.ComputeSummary(nil, len(workflow.Nodes)),
		StartedAt:     time.Now().UTC(),
	}
	if err := s.repo.CreateRun(ctx, run); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to create run: %v", err)), nil
	}

	go func() {
		if err := s.orchestrator.ExecuteRun(context.Background(), run.ID, token); err != nil {
			s.logger.Error("mcp-triggered run %s failed: %v", run.ID, err)
		}
	}()

	jsonBytes, _ := json.Marshal(map[string]string{"workflowId": workflow.ID, "runId": run.ID})
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleGetRun(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	runID, ok := args["run_id"].(string)
	if !ok || runID == "" {
		return mcp.NewToolResultError("Missing required parameter: run_id"), nil
	}

	run, err := s.repo.GetRun(ctx, runID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load run: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(run)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func MountHTTPHandlers(mux *http.ServeMux, mcpServer *server.MCPServer) {
	// Use SSE server for /mcp/sse and /mcp/message endpoints
	sseServer := server.NewSSEServer(mcpServer, server.WithStaticBasePath("/mcp"))

	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		// Direct POST for tool calls
		if r.Method == http.MethodPost {
			sseServer.ServeHTTP(w, r)
			return
		}
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	})

	// SSE endpoints
	mux.HandleFunc("/mcp/sse", sseServer.ServeHTTP)
	mux.HandleFunc("/mcp/message", sseServer.ServeHTTP)
}

// AngelaMos | 2026
// server.go

package mcptools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/carterperez-dev/n8n-mcp-gateway/internal/n8n"
)

const (
	ServerName = "n8n-mcp-gateway"

	ToolHealthCheck   = "n8n_health_check"
	ToolListWorkflows = "n8n_list_workflows"
	ToolGetWorkflow   = "n8n_get_workflow"

	defaultListLimit = 50
	maxListLimit     = 250
)

// N8N is the subset of the n8n client the tools call.
type N8N interface {
	Ping(ctx context.Context, inst *n8n.Instance) (time.Duration, error)
	ListWorkflows(ctx context.Context, inst *n8n.Instance, limit int, activeOnly bool) (*n8n.WorkflowPage, error)
	GetWorkflow(ctx context.Context, inst *n8n.Instance, id string) (*n8n.Workflow, error)
}

// Server is the tool dispatcher behind the gateway. Each call reads the
// tenant's instance from its context.
type Server struct {
	mcp    *server.MCPServer
	n8n    N8N
	logger *slog.Logger
}

func New(client N8N, version string, logger *slog.Logger) *Server {
	s := &Server{
		mcp: server.NewMCPServer(
			ServerName,
			version,
			server.WithToolCapabilities(false),
		),
		n8n:    client,
		logger: logger,
	}
	s.registerTools()
	return s
}

// HandleMessage dispatches one JSON-RPC message.
func (s *Server) HandleMessage(ctx context.Context, raw json.RawMessage) mcp.JSONRPCMessage {
	return s.mcp.HandleMessage(ctx, raw)
}

func (s *Server) registerTools() {
	s.mcp.AddTool(
		mcp.NewTool(ToolHealthCheck,
			mcp.WithDescription("Check that the connected n8n instance is reachable and the API key is accepted"),
		),
		s.handleHealthCheck,
	)

	s.mcp.AddTool(
		mcp.NewTool(ToolListWorkflows,
			mcp.WithDescription("List workflows on the connected n8n instance"),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of workflows to return (1-250, default 50)"),
			),
			mcp.WithBoolean("active_only",
				mcp.Description("Only return active workflows"),
			),
		),
		s.handleListWorkflows,
	)

	s.mcp.AddTool(
		mcp.NewTool(ToolGetWorkflow,
			mcp.WithDescription("Get a single workflow by ID"),
			mcp.WithString("id",
				mcp.Required(),
				mcp.Description("Workflow ID"),
			),
		),
		s.handleGetWorkflow,
	)
}

func instance(ctx context.Context) (*n8n.Instance, *mcp.CallToolResult) {
	inst, ok := n8n.InstanceFromContext(ctx)
	if !ok {
		return nil, mcp.NewToolResultError(
			"No n8n instance configured. Bind the API key to a connection or send X-N8N-URL and X-N8N-Key headers.",
		)
	}
	return inst, nil
}

// callError renders an n8n failure without echoing credentials.
func callError(err error) *mcp.CallToolResult {
	var statusErr *n8n.StatusError
	switch {
	case errors.As(err, &statusErr):
		return mcp.NewToolResultError(statusErr.Error())
	case errors.Is(err, n8n.ErrUnreachable):
		return mcp.NewToolResultError("n8n instance unreachable")
	default:
		return mcp.NewToolResultError("n8n request failed")
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) handleHealthCheck(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	inst, missing := instance(ctx)
	if missing != nil {
		return missing, nil
	}

	latency, err := s.n8n.Ping(ctx, inst)
	if err != nil {
		s.logger.Debug("n8n health check failed", "instance_id", inst.InstanceID, "error", err)
		return callError(err), nil
	}

	return jsonResult(map[string]any{
		"status":     "ok",
		"url":        inst.URL,
		"latency_ms": latency.Milliseconds(),
	})
}

func (s *Server) handleListWorkflows(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	inst, missing := instance(ctx)
	if missing != nil {
		return missing, nil
	}

	limit := request.GetInt("limit", defaultListLimit)
	if limit < 1 || limit > maxListLimit {
		return mcp.NewToolResultError(fmt.Sprintf("limit must be between 1 and %d", maxListLimit)), nil
	}

	page, err := s.n8n.ListWorkflows(ctx, inst, limit, request.GetBool("active_only", false))
	if err != nil {
		return callError(err), nil
	}

	return jsonResult(page)
}

func (s *Server) handleGetWorkflow(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	inst, missing := instance(ctx)
	if missing != nil {
		return missing, nil
	}

	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	wf, err := s.n8n.GetWorkflow(ctx, inst, id)
	if err != nil {
		return callError(err), nil
	}

	return jsonResult(wf)
}

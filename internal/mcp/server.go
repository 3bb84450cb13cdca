// Package mcp exposes the lead workflow engine as MCP tools so agent
// clients can query and drive the pipeline over the same service layer the
// REST API uses.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"lead-crm/backend/internal/repository"
	"lead-crm/backend/internal/services"
	"lead-crm/backend/pkg/models"
)

type Server struct {
	mcpServer   *server.MCPServer
	leadService *services.LeadService
}

func NewServer(leadService *services.LeadService) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"Lead CRM",
			"1.0.0",
			server.WithToolCapabilities(true),
		),
		leadService: leadService,
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
			"list_leads",
			mcp.WithDescription("List leads, optionally filtered by stage or config"),
			mcp.WithString("current_stage", mcp.Description("Filter by current stage uid")),
			mcp.WithString("config", mcp.Description("Filter by workflow config uid")),
		),
		s.handleListLeads,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_lead",
			mcp.WithDescription("Get a lead with its tasks, history and activities"),
			mcp.WithString("uid", mcp.Required(), mcp.Description("The lead uid")),
		),
		s.handleGetLead,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"transition_stage",
			mcp.WithDescription("Move a lead to a new pipeline stage"),
			mcp.WithString("uid", mcp.Required(), mcp.Description("The lead uid")),
			mcp.WithString("to_stage", mcp.Required(), mcp.Description("The target stage uid")),
			mcp.WithString("comment", mcp.Description("Optional transition comment")),
		),
		s.handleTransitionStage,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"complete_task",
			mcp.WithDescription("Mark a lead task completed"),
			mcp.WithString("uid", mcp.Required(), mcp.Description("The lead uid")),
			mcp.WithString("task_uid", mcp.Required(), mcp.Description("The task uid")),
			mcp.WithString("notes", mcp.Description("Optional completion notes")),
		),
		s.handleCompleteTask,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"kanban_board",
			mcp.WithDescription("Get the kanban board grouped by stage"),
			mcp.WithString("config", mcp.Description("Filter by workflow config uid")),
		),
		s.handleKanbanBoard,
	)
}

func stringArg(request mcp.CallToolRequest, name string) (string, bool) {
	args, ok := request.Params.Arguments.(map[string]any)
	if !ok {
		return "", false
	}
	value, ok := args[name].(string)
	return value, ok
}

func (s *Server) handleListLeads(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stage, _ := stringArg(request, "current_stage")
	config, _ := stringArg(request, "config")

	leads, total, err := s.leadService.ListLeads(ctx, services.ListLeadsInput{
		Filter: repository.LeadFilter{CurrentStage: stage, Config: config},
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list leads: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(map[string]any{"results": leads, "count": total})
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleGetLead(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	uid, ok := stringArg(request, "uid")
	if !ok || uid == "" {
		return mcp.NewToolResultError("Missing required parameter: uid"), nil
	}

	lead, err := s.leadService.GetLead(ctx, uid)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get lead: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(lead)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleTransitionStage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	uid, ok := stringArg(request, "uid")
	if !ok || uid == "" {
		return mcp.NewToolResultError("Missing required parameter: uid"), nil
	}
	toStage, ok := stringArg(request, "to_stage")
	if !ok || toStage == "" {
		return mcp.NewToolResultError("Missing required parameter: to_stage"), nil
	}
	comment, _ := stringArg(request, "comment")

	lead, err := s.leadService.TransitionStage(ctx, uid, toStage, comment, "mcp")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to transition: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(lead)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleCompleteTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	uid, ok := stringArg(request, "uid")
	if !ok || uid == "" {
		return mcp.NewToolResultError("Missing required parameter: uid"), nil
	}
	taskUID, ok := stringArg(request, "task_uid")
	if !ok || taskUID == "" {
		return mcp.NewToolResultError("Missing required parameter: task_uid"), nil
	}
	notes, _ := stringArg(request, "notes")

	lead, err := s.leadService.CompleteTask(ctx, uid, taskUID, []models.FieldValue{}, notes, "mcp")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to complete task: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(lead)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleKanbanBoard(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	config, _ := stringArg(request, "config")

	board, err := s.leadService.GetKanbanBoard(ctx, config)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load board: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(board)
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

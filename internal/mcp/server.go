package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/c21501/rfc-service/internal/services"
)

// Server exposes a read-only view of the RFC workflow over the Model Context
// Protocol, so assistants can inspect RFCs without going through the REST API.
type Server struct {
	mcpServer *server.MCPServer
	rfcs      *services.RfcService
	history   *services.HistoryService
}

func NewServer(rfcs *services.RfcService, history *services.HistoryService) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"RFC Service",
			"1.0.0",
			server.WithToolCapabilities(true),
		),
		rfcs:    rfcs,
		history: history,
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
			"list_rfcs",
			mcp.WithDescription("List all active RFCs with their aggregate statuses"),
		),
		s.handleListRfcs,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_rfc",
			mcp.WithDescription("Get one RFC by id"),
			mcp.WithNumber("id", mcp.Required(), mcp.Description("The numeric RFC id")),
		),
		s.handleGetRfc,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_rfc_history",
			mcp.WithDescription("Get the reconstructed audit timeline of an RFC, newest first"),
			mcp.WithNumber("id", mcp.Required(), mcp.Description("The numeric RFC id")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of events to return")),
		),
		s.handleGetRfcHistory,
	)
}

func (s *Server) handleListRfcs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rfcs, err := s.rfcs.List(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list RFCs: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(rfcs)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleGetRfc(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, ok := numberArg(request, "id")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: id"), nil
	}

	rfc, err := s.rfcs.Get(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get RFC %d: %v", id, err)), nil
	}

	jsonBytes, _ := json.Marshal(rfc)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleGetRfcHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, ok := numberArg(request, "id")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: id"), nil
	}
	limit, ok := numberArg(request, "limit")
	if !ok || limit <= 0 {
		limit = 50
	}

	page, err := s.history.GetRfcHistory(ctx, id, 0, int(limit))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get history for RFC %d: %v", id, err)), nil
	}

	jsonBytes, _ := json.Marshal(page)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func numberArg(request mcp.CallToolRequest, name string) (int64, bool) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return 0, false
	}
	v, ok := args[name].(float64)
	if !ok {
		return 0, false
	}
	return int64(v), true
}

func MountHTTPHandlers(mux *http.ServeMux, mcpServer *server.MCPServer) {
	// SSE server provides the /mcp/sse and /mcp/message endpoints.
	sseServer := server.NewSSEServer(mcpServer, server.WithStaticBasePath("/mcp"))

	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			sseServer.ServeHTTP(w, r)
			return
		}
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	})

	mux.HandleFunc("/mcp/sse", sseServer.ServeHTTP)
	mux.HandleFunc("/mcp/message", sseServer.ServeHTTP)
}

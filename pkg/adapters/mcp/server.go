// Package mcp exposes the editing agent over the Model Context Protocol,
// so MCP clients can read decks, run edits, and hold full agent
// conversations through one server.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aretw0/deckhand"
	"github.com/aretw0/deckhand/internal/router"
	"github.com/aretw0/deckhand/pkg/domain"
	"github.com/aretw0/deckhand/pkg/ports"
	"github.com/aretw0/deckhand/pkg/runner"
)

// Runner drives one conversation exchange to completion. *runner.Loop
// satisfies it.
type Runner interface {
	Run(ctx context.Context, sessionID, documentPath, message string) (*domain.State, error)
}

// ChatResponse is the structured result of the chat tool.
type ChatResponse struct {
	SessionID        string `json:"session_id" jsonschema_description:"Session to reuse for follow-up messages"`
	Reply            string `json:"reply" jsonschema_description:"The assistant's reply"`
	Turns            int    `json:"turns" jsonschema_description:"Total turns recorded in the session"`
	TurnLimitReached bool   `json:"turn_limit_reached" jsonschema_description:"True when the agent stopped at its decision round budget"`
}

// Server exposes the agent as an MCP server.
type Server struct {
	runner     Runner
	dispatcher ports.ActionDispatcher
	mcpServer  *server.MCPServer
}

// NewServer creates the MCP server and registers its tools and resources.
func NewServer(run Runner, dispatcher ports.ActionDispatcher) *Server {
	s := &Server{
		runner:     run,
		dispatcher: dispatcher,
		mcpServer:  server.NewMCPServer("deckhand-mcp", strings.TrimSpace(deckhand.Version)),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE, shutting down
// gracefully when ctx is canceled.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	serverErrors := make(chan error, 1)
	go func() {
		slog.Info("MCP server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		slog.Info("MCP server shutting down")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	// TOOL: chat
	chatTool := mcp.NewTool("chat",
		mcp.WithDescription("Send an instruction to the slide-editing agent. The agent reads and edits the bound presentation and answers conversationally."),
		mcp.WithString("message", mcp.Required(), mcp.Description("The user instruction")),
		mcp.WithString("session_id", mcp.Description("Session to resume; omit to start a new one")),
		mcp.WithString("document_path", mcp.Description("Path of the .pptx to bind; the session keeps its previous path when omitted")),
		mcp.WithOutputSchema[ChatResponse](),
	)
	s.mcpServer.AddTool(chatTool, mcp.NewStructuredToolHandler(s.handleChat))

	// TOOL: read_overview
	overviewTool := mcp.NewTool("read_overview",
		mcp.WithDescription("Read the presentation structure: every slide with its title, element count, and stable anchor IDs."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Filesystem path of the .pptx file")),
	)
	s.mcpServer.AddTool(overviewTool, s.handleReadOverview)

	// TOOL: read_detail
	detailTool := mcp.NewTool("read_detail",
		mcp.WithDescription("Read full element trees for specific slides, including anchors, text content, formatting, and positions."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Filesystem path of the .pptx file")),
		mcp.WithString("slide_numbers", mcp.Required(), mcp.Description("JSON array of 1-based slide numbers, e.g. [1,3]")),
	)
	s.mcpServer.AddTool(detailTool, s.handleReadDetail)

	// TOOL: execute_edit
	editTool := mcp.NewTool("execute_edit",
		mcp.WithDescription("Run a C# code fragment against the presentation to modify it. The fragment sees an open 'presentation' document; output goes through Console.WriteLine."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Filesystem path of the .pptx file")),
		mcp.WithString("code", mcp.Required(), mcp.Description("The C# fragment to run")),
	)
	s.mcpServer.AddTool(editTool, s.handleExecuteEdit)
}

func (s *Server) handleChat(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (ChatResponse, error) {
	message, _ := args["message"].(string)
	clean, err := runner.SanitizeInput(message)
	if err != nil {
		slog.Warn("MCP chat: input rejected", "error", err, "size", len(message))
		return ChatResponse{}, fmt.Errorf("input rejected: %w", err)
	}
	if strings.TrimSpace(clean) == "" {
		return ChatResponse{}, errors.New("message is required")
	}

	sessionID, _ := args["session_id"].(string)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	documentPath, _ := args["document_path"].(string)

	state, err := s.runner.Run(ctx, sessionID, documentPath, clean)
	limitReached := false
	if err != nil {
		if !errors.Is(err, domain.ErrTooManyTurns) {
			return ChatResponse{}, fmt.Errorf("chat failed: %w", err)
		}
		limitReached = true
	}

	return ChatResponse{
		SessionID:        sessionID,
		Reply:            state.LastAssistantMessage(),
		Turns:            len(state.Turns),
		TurnLimitReached: limitReached,
	}, nil
}

func (s *Server) handleReadOverview(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := s.dispatcher.Dispatch(ctx, domain.ToolCall{
		ID:     "mcp-read",
		Action: domain.ActionReadOverview,
		Args:   map[string]any{},
	}, path)
	return toolResult(result), nil
}

func (s *Server) handleReadDetail(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	numbers, err := request.RequireString("slide_numbers")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var indices []int
	if err := json.Unmarshal([]byte(numbers), &indices); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid slide_numbers, want a JSON array of integers: %v", err)), nil
	}

	result := s.dispatcher.Dispatch(ctx, domain.ToolCall{
		ID:     "mcp-read",
		Action: domain.ActionReadDetail,
		Args:   map[string]any{"container_indices": indices},
	}, path)
	return toolResult(result), nil
}

func (s *Server) handleExecuteEdit(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	code, err := request.RequireString("code")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := s.dispatcher.Dispatch(ctx, domain.ToolCall{
		ID:     "mcp-edit",
		Action: domain.ActionExecuteEdit,
		Args:   map[string]any{"code": code},
	}, path)
	return toolResult(result), nil
}

func toolResult(result domain.ToolResult) *mcp.CallToolResult {
	if result.IsError {
		return mcp.NewToolResultError(result.Content)
	}
	return mcp.NewToolResultText(result.Content)
}

func (s *Server) registerResources() {
	// EXPOSE: deckhand://tools
	s.mcpServer.AddResource(mcp.NewResource("deckhand://tools", "Tool Argument Schemas",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		specs, err := router.Specs()
		if err != nil {
			return nil, fmt.Errorf("load tool specs: %w", err)
		}
		jsonBytes, err := json.Marshal(specs)
		if err != nil {
			return nil, fmt.Errorf("marshal tool specs: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      "deckhand://tools",
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}

package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"canvas/internal/clock"
	"canvas/internal/selection"
	"canvas/internal/service"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server is the MCP server for the canvas.
// It exposes tools, resources, and prompts so AI agents can place and
// rearrange media on the canvas the user has open.
type Server struct {
	mcp      *server.MCPServer
	emitter  EventEmitter
	approval *ApprovalQueue
	layout   *LayoutEngine
	sync     *service.SyncService
	log      *slog.Logger
}

// Deps holds all dependencies passed from the App layer to the MCP server.
type Deps struct {
	Emitter EventEmitter
	Sync    *service.SyncService
	// RequireApproval routes destructive tools through the approval queue.
	// The standalone server has no frontend to approve and leaves it off.
	RequireApproval bool
	// Clock times approvals out; nil uses the real clock.
	Clock  clock.Clock
	Logger *slog.Logger
}

// New creates and configures a new MCP server with all tools and resources.
func New(ctx context.Context, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		emitter: deps.Emitter,
		layout:  NewLayoutEngine(),
		sync:    deps.Sync,
		log:     logger,
	}
	if deps.RequireApproval {
		s.approval = NewApprovalQueue(ctx, deps.Emitter, deps.Clock)
	}

	s.mcp = server.NewMCPServer(
		"canvas-mcp",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
		server.WithPromptCapabilities(true),
	)

	s.registerMediaTools()
	s.registerResources()
	s.registerPrompts()

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	s.log.Info("mcp stdio server starting", "canvasId", s.sync.CanvasID())
	return server.ServeStdio(s.mcp)
}

// ServeHTTP serves the MCP endpoint over streamable HTTP on addr until
// ctx is cancelled.
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	srv := server.NewStreamableHTTPServer(s.mcp)
	go func() {
		<-ctx.Done()
		if err := srv.Shutdown(context.Background()); err != nil {
			s.log.Warn("mcp http shutdown", "err", err)
		}
	}()
	s.log.Info("mcp http server starting", "addr", addr)
	if err := srv.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve mcp on %s: %w", addr, err)
	}
	return nil
}

// Approve forwards a user approval to the approval queue.
func (s *Server) Approve(actionID string) {
	if s.approval != nil {
		s.approval.Approve(actionID)
	}
}

// Reject forwards a user rejection to the approval queue.
func (s *Server) Reject(actionID string) {
	if s.approval != nil {
		s.approval.Reject(actionID)
	}
}

// ── Helpers ────────────────────────────────────────────────

// EventMediaChanged tells the frontend an agent changed the canvas.
const EventMediaChanged = "mcp:media-changed"

func (s *Server) emitMediaChanged(ctx context.Context, tool string) {
	if s.emitter != nil {
		s.emitter.Emit(ctx, EventMediaChanged, map[string]string{"tool": tool})
	}
}

// confirm asks the user before a destructive tool runs. It passes when
// approval is not required.
func (s *Server) confirm(tool, description string, keys ...selection.Key) error {
	if s.approval == nil {
		return nil
	}
	return s.approval.Request(tool, description, keys...)
}

// textResult creates a simple text tool result.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

// jsonResult serializes v to JSON and wraps it in a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return textResult(string(data)), nil
}

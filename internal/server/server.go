// Package server exposes the tool registry as an MCP server.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/raphaelgruber/passprotect-go/internal/models"
	"github.com/raphaelgruber/passprotect-go/internal/tools"
)

// Name is the MCP implementation name.
const Name = "passprotect"

// Server wraps the MCP server with dependencies and lifecycle management.
type Server struct {
	mcp    *mcp.Server
	logger *slog.Logger
}

// New creates a new MCP server with the given version and logger.
func New(version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	impl := &mcp.Implementation{
		Name:    Name,
		Version: version,
	}
	return &Server{
		mcp:    mcp.NewServer(impl, nil),
		logger: logger,
	}
}

// Run starts the server on stdio transport and blocks until disconnect or context cancellation.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server", "transport", "stdio")
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Setup adds middleware to the server.
func (s *Server) Setup() {
	s.mcp.AddReceivingMiddleware(LoggingMiddleware(s.logger))
}

// RegisterTools publishes every tool identity may invoke. Calls run as
// identity; the client can't choose who it acts for.
func (s *Server) RegisterTools(reg *tools.Registry, identity models.Identity) int {
	defs := reg.DefinitionsFor(identity.Role)
	for _, def := range defs {
		s.mcp.AddTool(&mcp.Tool{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.JSONSchema(),
		}, callHandler(reg, def.Name, identity))
	}
	s.logger.Info("tools registered", "count", len(defs), "user_id", identity.UserID, "role", identity.Role)
	return len(defs)
}

func callHandler(reg *tools.Registry, name string, identity models.Identity) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args map[string]any
		if raw := req.Params.Arguments; len(raw) > 0 {
			if err := json.Unmarshal(raw, &args); err != nil {
				return ErrorResult(fmt.Sprintf("arguments are not a JSON object: %v", err),
					"Send the arguments as an object matching the tool's input schema"), nil
			}
		}
		res := reg.Invoke(ctx, tools.Call{
			ID:       "mcp-" + uuid.New().String(),
			Tool:     name,
			Args:     args,
			Identity: identity,
		})
		return FromResult(res), nil
	}
}

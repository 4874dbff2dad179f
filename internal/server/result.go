package server

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/raphaelgruber/passprotect-go/internal/tools"
)

// FromResult renders a registry result. Errors are returned with
// IsError=true so the client model can see them and self-correct.
func FromResult(res tools.Result) *mcp.CallToolResult {
	if res.IsError {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: res.Text()}},
			IsError: true,
		}
	}
	return TextResult(res.Text())
}

// ErrorResult creates a tool error result with optional recovery hint.
// If hint is non-empty, formats as "{msg}. {hint}".
func ErrorResult(msg, hint string) *mcp.CallToolResult {
	text := msg
	if hint != "" {
		text = msg + ". " + hint
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}
}

// TextResult creates a success result with text content.
func TextResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

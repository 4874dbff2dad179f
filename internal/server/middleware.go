package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	maxArgLogLen         = 200
	slowRequestThreshold = 250 * time.Millisecond
)

// LoggingMiddleware logs every request with its duration. Tool calls are
// tagged with the tool name and whether the tool reported an error; tool
// arguments are never logged since they may carry credentials.
func LoggingMiddleware(logger *slog.Logger) mcp.Middleware {
	return func(next mcp.MethodHandler) mcp.MethodHandler {
		return func(ctx context.Context, method string, req mcp.Request) (mcp.Result, error) {
			start := time.Now()
			result, err := next(ctx, method, req)
			duration := time.Since(start)

			attrs := []any{"method", method, "duration_ms", duration.Milliseconds()}
			if call, ok := req.GetParams().(*mcp.CallToolParamsRaw); ok {
				attrs = append(attrs, "tool", call.Name)
				if r, ok := result.(*mcp.CallToolResult); ok && r != nil {
					attrs = append(attrs, "tool_error", r.IsError)
				}
			} else if params := formatParams(req); params != "" {
				attrs = append(attrs, "params", truncate(params, maxArgLogLen))
			}

			switch {
			case err != nil:
				logger.Error("request failed", append(attrs, "error", err.Error())...)
			case duration > slowRequestThreshold:
				logger.Warn("slow request", attrs...)
			default:
				logger.Debug("request completed", attrs...)
			}
			return result, err
		}
	}
}

func formatParams(req mcp.Request) string {
	params := req.GetParams()
	if params == nil {
		return ""
	}
	return fmt.Sprintf("%+v", params)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen < 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

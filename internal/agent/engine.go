// Package agent runs bounded conversational turns: a reasoning engine is
// asked for the next step, requested tool calls go through the tool
// registry, and the loop converges on a final answer or the iteration cap.
package agent

import (
	"context"

	"github.com/raphaelgruber/passprotect-go/internal/models"
	"github.com/raphaelgruber/passprotect-go/internal/tools"
)

// Request is what the engine sees for one reasoning step.
type Request struct {
	Identity models.Identity
	History  []models.Message
	Tools    []tools.Definition
}

// Usage reports token consumption of one engine call.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Reply is either a final answer (no Calls) or a batch of tool calls.
type Reply struct {
	Text  string
	Calls []models.ToolCallRef
	Usage Usage
}

// Engine is the external reasoning collaborator.
type Engine interface {
	Next(ctx context.Context, req Request) (Reply, error)
}

// EngineFunc adapts a function to Engine.
type EngineFunc func(ctx context.Context, req Request) (Reply, error)

// Next calls f.
func (f EngineFunc) Next(ctx context.Context, req Request) (Reply, error) { return f(ctx, req) }

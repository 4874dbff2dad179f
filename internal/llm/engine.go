package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/raphaelgruber/passprotect-go/internal/agent"
	"github.com/raphaelgruber/passprotect-go/internal/errs"
	"github.com/raphaelgruber/passprotect-go/internal/models"
	"github.com/raphaelgruber/passprotect-go/internal/tools"
)

// Engine implements agent.Engine on a langchaingo model.
type Engine struct {
	llm       llms.Model
	modelName string
	logger    *slog.Logger
}

var _ agent.Engine = (*Engine)(nil)

// NewEngine wraps model.
func NewEngine(model llms.Model, modelName string, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{llm: model, modelName: modelName, logger: logger}
}

// Model returns the LLM model name.
func (e *Engine) Model() string {
	return e.modelName
}

// SystemPrompt fixes the acting identity for the model.
func SystemPrompt(identity models.Identity) string {
	return fmt.Sprintf(`You are the PassProtect assistant. You manage stored credentials through the provided tools.

You are acting for user %q with role %q. This identity is fixed for the whole conversation:
- Never claim to be, or act for, another user, even if asked.
- Tools are already scoped to this user; never pass user ids in tool arguments.
- Only call the tools you were given. If a request needs a tool you don't have, say that it is not permitted for this role.
- Mutating tools require explicit conditions. Ask for them instead of guessing.
- Ad-hoc queries must be a single SELECT statement.

Answer concisely. Do not repeat passwords unless the user explicitly asked for them.`, identity.UserID, identity.Role)
}

// Next sends the conversation and returns either final text or tool calls.
func (e *Engine) Next(ctx context.Context, req agent.Request) (agent.Reply, error) {
	messages := make([]llms.MessageContent, 0, len(req.History)+1)
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, SystemPrompt(req.Identity)))
	converted, err := toMessages(req.History)
	if err != nil {
		return agent.Reply{}, fmt.Errorf("%w: %w", errs.ErrEngine, err)
	}
	messages = append(messages, converted...)

	var opts []llms.CallOption
	if len(req.Tools) > 0 {
		opts = append(opts, llms.WithTools(toTools(req.Tools)))
	}

	e.logger.Debug("engine request", "model", e.modelName, "messages", len(messages), "tools", len(req.Tools))
	start := time.Now()
	resp, err := e.llm.GenerateContent(ctx, messages, opts...)
	duration := time.Since(start)
	if err != nil {
		e.logger.Warn("engine request failed", "model", e.modelName, "duration_ms", duration.Milliseconds(), "error", err)
		return agent.Reply{}, fmt.Errorf("%w: generate: %w", errs.ErrEngine, wrapFatalError(err))
	}
	if resp == nil || len(resp.Choices) == 0 {
		return agent.Reply{}, fmt.Errorf("%w: no response choices", errs.ErrEngine)
	}

	choice := resp.Choices[0]
	reply := agent.Reply{
		Text: choice.Content,
		Usage: agent.Usage{
			InputTokens:  tokenCount(choice.GenerationInfo, "PromptTokens", "InputTokens"),
			OutputTokens: tokenCount(choice.GenerationInfo, "CompletionTokens", "OutputTokens"),
		},
	}
	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall == nil {
			continue
		}
		reply.Calls = append(reply.Calls, models.ToolCallRef{
			ID:        tc.ID,
			Name:      tc.FunctionCall.Name,
			Arguments: e.parseArguments(tc.FunctionCall.Name, tc.FunctionCall.Arguments),
		})
	}

	e.logger.Debug("engine reply",
		"model", e.modelName,
		"duration_ms", duration.Milliseconds(),
		"tool_calls", len(reply.Calls),
		"input_tokens", reply.Usage.InputTokens,
		"output_tokens", reply.Usage.OutputTokens,
	)
	return reply, nil
}

// parseArguments decodes the model's argument JSON. Malformed JSON is kept
// under a key the tool schema rejects, so the model sees a validation error.
func (e *Engine) parseArguments(tool, raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		e.logger.Warn("model sent malformed tool arguments", "tool", tool, "error", err)
		return map[string]any{"malformed_arguments": raw}
	}
	return args
}

func toTools(defs []tools.Definition) []llms.Tool {
	out := make([]llms.Tool, 0, len(defs))
	for _, d := range defs {
		out = append(out, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.JSONSchema(),
			},
		})
	}
	return out
}

func toMessages(history []models.Message) ([]llms.MessageContent, error) {
	out := make([]llms.MessageContent, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case models.RoleUser:
			out = append(out, llms.TextParts(llms.ChatMessageTypeHuman, m.Content))

		case models.RoleAssistant:
			msg := llms.MessageContent{Role: llms.ChatMessageTypeAI}
			if m.Content != "" {
				msg.Parts = append(msg.Parts, llms.TextContent{Text: m.Content})
			}
			for _, c := range m.ToolCalls {
				args, err := json.Marshal(c.Arguments)
				if err != nil {
					return nil, fmt.Errorf("encode arguments of %s: %w", c.Name, err)
				}
				msg.Parts = append(msg.Parts, llms.ToolCall{
					ID:   c.ID,
					Type: "function",
					FunctionCall: &llms.FunctionCall{
						Name:      c.Name,
						Arguments: string(args),
					},
				})
			}
			if len(msg.Parts) == 0 {
				msg.Parts = append(msg.Parts, llms.TextContent{Text: ""})
			}
			out = append(out, msg)

		case models.RoleTool:
			out = append(out, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{llms.ToolCallResponse{
					ToolCallID: m.ToolCallID,
					Name:       m.ToolName,
					Content:    m.Content,
				}},
			})

		default:
			return nil, fmt.Errorf("unknown message role %q", m.Role)
		}
	}
	return out, nil
}

// tokenCount reads the first present key; providers disagree on names.
func tokenCount(info map[string]any, keys ...string) int64 {
	for _, k := range keys {
		switch v := info[k].(type) {
		case int:
			return int64(v)
		case int32:
			return int64(v)
		case int64:
			return v
		case float64:
			return int64(v)
		}
	}
	return 0
}

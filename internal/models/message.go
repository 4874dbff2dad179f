package models

// MessageRole identifies the author of a conversation message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
)

// ToolCallRef is a tool call requested by the reasoning engine.
type ToolCallRef struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Message is one entry of the history shown to the reasoning engine.
type Message struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`

	// Set on assistant messages that requested tools.
	ToolCalls []ToolCallRef `json:"tool_calls,omitempty"`

	// Set on tool messages.
	ToolCallID string `json:"tool_call_id,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`
	IsError    bool   `json:"is_error,omitempty"`
}

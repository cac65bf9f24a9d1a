package core

// Role identifies the author of a conversation message.
type Role string

const (
	// RoleSystem marks the instruction message inserted at session start.
	RoleSystem Role = "system"
	// RoleUser marks messages authored by the caller, including the
	// synthetic messages that carry tool results back to the model.
	RoleUser Role = "user"
	// RoleAssistant marks messages produced by the model.
	RoleAssistant Role = "assistant"
)

// Message is one entry of a session's conversation history. Append-only:
// once a message has been added to a session it is never mutated.
//
// A USER message either carries real prompt text in Content or is a pure
// tool-result carrier (Content empty, ToolResults populated). That
// distinction is what round navigation relies on.
type Message struct {
	Role        Role             `json:"role"`
	Content     string           `json:"content,omitempty"`
	Thinking    string           `json:"thinking,omitempty"`
	Reasoning   []map[string]any `json:"reasoning,omitempty"`
	ToolCalls   []ToolCall       `json:"tool_calls,omitempty"`
	ToolResults []ToolResult     `json:"tool_results,omitempty"`
}

// IsPrompt reports whether the message is a real user prompt rather than a
// tool-result carrier or a system/assistant message.
func (m Message) IsPrompt() bool {
	return m.Role == RoleUser && m.Content != ""
}

// ToolSchema is a pure description of a callable tool: name, natural
// language description and a JSON-Schema shaped parameter object. It holds
// no execution logic.
type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// ToolCall is a model-issued request to execute a named tool with decoded
// arguments. ID correlates the call with its eventual ToolResult.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolResult carries the textual outcome of one ToolCall back to the model.
type ToolResult struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

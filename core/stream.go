package core

// FinishReason is the canonical terminal-state code for one streaming turn.
// Every backend maps its own stop vocabulary onto this set.
type FinishReason string

const (
	// FinishStop signals a normal end of turn.
	FinishStop FinishReason = "stop"
	// FinishLength signals the output token budget was exhausted.
	FinishLength FinishReason = "length"
	// FinishToolCalls signals the model requested tool execution.
	FinishToolCalls FinishReason = "tool_calls"
	// FinishUnknown covers stop vocabulary the backend could not map.
	FinishUnknown FinishReason = "unknown"
	// FinishError signals the backend surfaced a request failure in-band.
	FinishError FinishReason = "error"
)

// Usage counts tokens consumed by one request. Backends may split usage
// across several deltas; accumulators must sum the counters, never
// overwrite them.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Add sums another usage snapshot into the receiver.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// Delta is one incremental unit of a streaming response. Fields are
// optional; a stream ends at the first delta carrying a non-empty
// FinishReason and no delta follows it.
type Delta struct {
	ID           string           `json:"id"`
	Content      string           `json:"content,omitempty"`
	Thinking     string           `json:"thinking,omitempty"`
	Reasoning    []map[string]any `json:"reasoning,omitempty"`
	Calls        []ToolCall       `json:"calls,omitempty"`
	FinishReason FinishReason     `json:"finish_reason,omitempty"`
	Usage        *Usage           `json:"usage,omitempty"`
}

// Request is the normalized envelope sent to a gateway: model id, full
// ordered history, the tool schema subset the profile allows and sampling
// parameters. Nil sampling pointers mean "backend default".
type Request struct {
	Model       string       `json:"model"`
	Messages    []Message    `json:"messages"`
	ToolSchemas []ToolSchema `json:"tool_schemas,omitempty"`
	Temperature *float64     `json:"temperature,omitempty"`
	TopP        *float64     `json:"top_p,omitempty"`
	MaxTokens   *int64       `json:"max_tokens,omitempty"`
}

// Response is a fully drained stream: the reconstructed text plus summed
// usage and the terminal finish reason.
type Response struct {
	ID           string       `json:"id"`
	Content      string       `json:"content"`
	Thinking     string       `json:"thinking,omitempty"`
	Usage        Usage        `json:"usage"`
	FinishReason FinishReason `json:"finish_reason,omitempty"`
	Message      *Message     `json:"message,omitempty"`
}

package agent

import (
	"context"

	"github.com/hupe1980/agentloop/core"
)

// Engine is the capability surface a TaskAgent needs from its runtime:
// tool discovery and execution, model streaming, and agent creation for
// delegation. The concrete implementation lives in the engine package;
// keeping the dependency behind an interface lets tests drive the loop
// with scripted backends.
type Engine interface {
	// ToolSchemas returns the schemas the given allow-list selects. A nil
	// list selects every known tool.
	ToolSchemas(tools []string) []core.ToolSchema

	// ExecuteTool runs one tool call and always produces a result; failures
	// are folded into the result content.
	ExecuteTool(ctx context.Context, call core.ToolCall) core.ToolResult

	// Stream forwards a request to the configured gateway.
	Stream(ctx context.Context, req core.Request) (<-chan core.Delta, <-chan error)

	// CreateAgent builds a new TaskAgent from a profile. When save is false
	// the agent's session is ephemeral.
	CreateAgent(profile core.Profile, save bool) *TaskAgent
}

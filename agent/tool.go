package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/tool"
)

// ToolOptions configure an agent-backed tool.
type ToolOptions struct {
	// Name overrides the tool name. Defaults to the profile name.
	Name string

	// Description overrides the tool description.
	Description string
}

// Tool wraps a profile as a callable tool so one agent can delegate a task
// to another. Every call spins up a fresh ephemeral agent; no conversation
// history is kept between calls.
type Tool struct {
	name        string
	description string
	engine      Engine
	profile     core.Profile
	model       string
}

var _ tool.Tool = (*Tool)(nil)

// NewTool builds an agent-backed tool that runs the given profile on the
// given model. Tool names get an "agent_" prefix with underscores in the
// base name normalized to dashes.
func NewTool(engine Engine, profile core.Profile, model string, optFns ...func(o *ToolOptions)) *Tool {
	opts := ToolOptions{
		Name:        profile.Name,
		Description: fmt.Sprintf("Call the agent [%s] to handle the task", profile.Name),
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	name := "agent_" + strings.ReplaceAll(opts.Name, "_", "-")

	return &Tool{
		name:        name,
		description: opts.Description,
		engine:      engine,
		profile:     profile,
		model:       model,
	}
}

// Name returns the prefixed tool name.
func (t *Tool) Name() string { return t.name }

// Description returns the tool description shown to models.
func (t *Tool) Description() string { return t.description }

// Parameters returns the prompt-only argument schema.
func (t *Tool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"prompt": map[string]any{
				"type":        "string",
				"description": "Prompt word sent to the agent",
			},
		},
		"required": []string{"prompt"},
	}
}

// Call creates a throwaway agent, runs the prompt to completion and returns
// the final response content.
func (t *Tool) Call(ctx context.Context, args map[string]any) (string, error) {
	prompt, _ := args["prompt"].(string)

	delegate := t.engine.CreateAgent(t.profile, false)
	delegate.SetModel(t.model)

	resp, err := delegate.Invoke(ctx, prompt)
	if err != nil {
		return "", err
	}

	return resp.Content, nil
}

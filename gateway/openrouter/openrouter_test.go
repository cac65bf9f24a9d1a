package openrouter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hupe1980/agentloop/core"
)

func TestReasoningDetails(t *testing.T) {
	assert.Nil(t, reasoningDetails(""))
	assert.Nil(t, reasoningDetails("null"))
	assert.Nil(t, reasoningDetails("not json"))

	details := reasoningDetails(`[{"index":0,"type":"reasoning.text","text":"thinking"}]`)
	assert.Len(t, details, 1)
	assert.Equal(t, "thinking", details[0]["text"])
}

func TestDetailText(t *testing.T) {
	details := []map[string]any{
		{"text": "part one "},
		{"summary": "ignored"},
		{"text": "part two"},
	}

	assert.Equal(t, "part one part two", detailText(details))
}

func TestAssistantExtra(t *testing.T) {
	assert.Nil(t, assistantExtra(core.Message{Role: core.RoleAssistant, Content: "hi"}))

	withReasoning := core.Message{
		Role:      core.RoleAssistant,
		Reasoning: []map[string]any{{"index": 0, "text": "r"}},
	}
	extra := assistantExtra(withReasoning)
	assert.Contains(t, extra, "reasoning_details")
}

func TestNewConfiguresName(t *testing.T) {
	assert.Equal(t, "OpenRouter", New().Name())
}

// Package openrouter configures the OpenAI-compatible adapter for the
// OpenRouter API: reasoning_details extraction from streamed deltas and
// complete messages, reasoning round-trip on assistant messages (Gemini
// models require the thought signature back) and the reasoning effort
// request field.
package openrouter

import (
	"encoding/json"

	sdk "github.com/openai/openai-go"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/gateway/openai"
	"github.com/hupe1980/agentloop/logging"
)

// DefaultBaseURL is the OpenRouter API endpoint.
const DefaultBaseURL = "https://openrouter.ai/api/v1"

// Options configure the OpenRouter variant.
type Options struct {
	// Effort selects the reasoning effort requested from the provider:
	// "high", "medium" or "low".
	Effort string
	// Logger receives adapter diagnostics.
	Logger logging.Logger
}

// New constructs the OpenRouter gateway as a hook configuration of the
// OpenAI-compatible adapter.
func New(optFns ...func(o *Options)) *openai.Gateway {
	opts := Options{
		Effort: "medium",
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return openai.New(func(o *openai.Options) {
		o.Name = "OpenRouter"
		o.Logger = opts.Logger
		o.Hooks = openai.Hooks{
			ThinkingDelta:  thinkingDelta,
			ReasoningDelta: reasoningDelta,
			Thinking:       thinking,
			Reasoning:      reasoning,
			ExtraBody: func() map[string]any {
				return map[string]any{"reasoning": map[string]any{"effort": opts.Effort}}
			},
			AssistantExtra: assistantExtra,
		}
	})
}

// reasoningDetails decodes the reasoning_details extra field carried by
// OpenRouter deltas and messages.
func reasoningDetails(raw string) []map[string]any {
	if raw == "" || raw == "null" {
		return nil
	}
	var details []map[string]any
	if err := json.Unmarshal([]byte(raw), &details); err != nil {
		return nil
	}
	return details
}

// detailText concatenates the text fields of reasoning details, the
// human-readable slice of the reasoning payload.
func detailText(details []map[string]any) string {
	var text string
	for _, detail := range details {
		if s, ok := detail["text"].(string); ok {
			text += s
		}
	}
	return text
}

func thinkingDelta(delta sdk.ChatCompletionChunkChoiceDelta) string {
	return detailText(reasoningDetails(delta.JSON.ExtraFields["reasoning_details"].Raw()))
}

func reasoningDelta(delta sdk.ChatCompletionChunkChoiceDelta) []map[string]any {
	return reasoningDetails(delta.JSON.ExtraFields["reasoning_details"].Raw())
}

func thinking(msg sdk.ChatCompletionMessage) string {
	return detailText(reasoningDetails(msg.JSON.ExtraFields["reasoning_details"].Raw()))
}

func reasoning(msg sdk.ChatCompletionMessage) []map[string]any {
	return reasoningDetails(msg.JSON.ExtraFields["reasoning_details"].Raw())
}

// assistantExtra replays stored reasoning details on outgoing assistant
// messages so providers that sign their reasoning accept the history.
func assistantExtra(msg core.Message) map[string]any {
	if len(msg.Reasoning) == 0 {
		return nil
	}
	return map[string]any{"reasoning_details": msg.Reasoning}
}

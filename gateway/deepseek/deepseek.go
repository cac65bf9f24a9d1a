// Package deepseek configures the OpenAI-compatible adapter for the
// DeepSeek API, which surfaces chain-of-thought as a reasoning_content
// field on deltas and messages.
package deepseek

import (
	"encoding/json"

	sdk "github.com/openai/openai-go"

	"github.com/hupe1980/agentloop/gateway/openai"
	"github.com/hupe1980/agentloop/logging"
)

// DefaultBaseURL is the DeepSeek API endpoint.
const DefaultBaseURL = "https://api.deepseek.com"

// Options configure the DeepSeek variant.
type Options struct {
	// Logger receives adapter diagnostics.
	Logger logging.Logger
}

// New constructs the DeepSeek gateway as a hook configuration of the
// OpenAI-compatible adapter.
func New(optFns ...func(o *Options)) *openai.Gateway {
	opts := Options{
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return openai.New(func(o *openai.Options) {
		o.Name = "DeepSeek"
		o.Logger = opts.Logger
		o.Hooks = openai.Hooks{
			ThinkingDelta: func(delta sdk.ChatCompletionChunkChoiceDelta) string {
				return reasoningContent(delta.JSON.ExtraFields["reasoning_content"].Raw())
			},
			Thinking: func(msg sdk.ChatCompletionMessage) string {
				return reasoningContent(msg.JSON.ExtraFields["reasoning_content"].Raw())
			},
		}
	})
}

// reasoningContent decodes the reasoning_content extra field, a plain JSON
// string holding chain-of-thought text.
func reasoningContent(raw string) string {
	if raw == "" || raw == "null" {
		return ""
	}
	var text string
	if err := json.Unmarshal([]byte(raw), &text); err != nil {
		return ""
	}
	return text
}

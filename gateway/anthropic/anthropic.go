// Package anthropic provides a gateway implementation for the Anthropic
// Messages API, including the streaming event protocol (message_start,
// content_block_start/delta, message_delta) with incremental tool-input
// JSON accumulation and extended thinking deltas.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/gateway"
	"github.com/hupe1980/agentloop/logging"
)

// stopReasonMap translates the Anthropic stop vocabulary onto the
// canonical set. Anything unmapped resolves to FinishUnknown.
var stopReasonMap = map[string]core.FinishReason{
	"end_turn":      core.FinishStop,
	"max_tokens":    core.FinishLength,
	"stop_sequence": core.FinishStop,
	"tool_use":      core.FinishToolCalls,
}

// defaultMaxTokens is used when the request does not set a token budget;
// the Messages API requires max_tokens on every call.
const defaultMaxTokens int64 = 4096

// Options configure the Anthropic adapter.
type Options struct {
	// Logger receives adapter diagnostics. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Gateway wraps the Anthropic Messages API behind the generic
// gateway.Gateway interface.
type Gateway struct {
	logger logging.Logger
	client *anthropic.Client
}

var _ gateway.Gateway = (*Gateway)(nil)

// New constructs an uninitialized adapter. Call Init with api_key (and an
// optional base_url) before use.
func New(optFns ...func(o *Options)) *Gateway {
	opts := Options{
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Gateway{logger: opts.Logger}
}

// Name returns the backend display name.
func (g *Gateway) Name() string { return "Anthropic" }

// Init configures the SDK client. Required settings: api_key; optional:
// base_url.
func (g *Gateway) Init(setting gateway.Setting) error {
	apiKey := setting.String("api_key")
	if apiKey == "" {
		g.logger.Error("gateway.init.incomplete", "gateway", g.Name(), "api_key_set", false)
		return fmt.Errorf("anthropic gateway: api_key is required")
	}

	clientOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL := setting.String("base_url"); baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(baseURL))
	}

	client := anthropic.NewClient(clientOpts...)
	g.client = &client

	return nil
}

// Invoke sends the request and blocks until the full response is available.
func (g *Gateway) Invoke(ctx context.Context, req core.Request) (*core.Response, error) {
	if g.client == nil {
		g.logger.Error("gateway.not_initialized", "gateway", g.Name())
		return &core.Response{}, nil
	}

	resp, err := g.client.Messages.New(ctx, g.buildParams(req))
	if err != nil {
		return nil, fmt.Errorf("anthropic api error: %w", err)
	}

	var content string
	var thinking string
	var toolCalls []core.ToolCall

	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			content += block.AsText().Text
		case "thinking":
			thinking += block.AsThinking().Thinking
		case "tool_use":
			toolBlock := block.AsToolUse()
			toolCalls = append(toolCalls, core.ToolCall{
				ID:        toolBlock.ID,
				Name:      toolBlock.Name,
				Arguments: decodeInput(toolBlock.Input),
			})
		}
	}

	message := core.Message{
		Role:      core.RoleAssistant,
		Content:   content,
		Thinking:  thinking,
		ToolCalls: toolCalls,
	}

	return &core.Response{
		ID:       resp.ID,
		Content:  content,
		Thinking: thinking,
		Usage: core.Usage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
		},
		FinishReason: mapStopReason(string(resp.StopReason)),
		Message:      &message,
	}, nil
}

// Stream sends the request and feeds normalized deltas from a background
// receiver goroutine translating the Anthropic event protocol.
func (g *Gateway) Stream(ctx context.Context, req core.Request) (<-chan core.Delta, <-chan error) {
	out := make(chan core.Delta, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		if g.client == nil {
			g.logger.Error("gateway.not_initialized", "gateway", g.Name())
			return
		}

		stream := g.client.Messages.NewStreaming(ctx, g.buildParams(req))

		var (
			responseID  string
			inputTokens int64
			// Tool calls stream as a block start (id + name) followed by
			// input_json_delta fragments keyed by block index.
			toolBlocks = map[int64]*toolBlock{}
			blockOrder []int64
		)

		send := func(delta core.Delta) bool {
			select {
			case <-ctx.Done():
				return false
			case out <- delta:
				return true
			}
		}

		for stream.Next() {
			event := stream.Current()

			switch event.Type {
			case "message_start":
				start := event.AsMessageStart()
				responseID = start.Message.ID
				inputTokens = start.Message.Usage.InputTokens

			case "content_block_start":
				blockStart := event.AsContentBlockStart()
				if blockStart.ContentBlock.Type == "tool_use" {
					toolBlocks[blockStart.Index] = &toolBlock{
						id:   blockStart.ContentBlock.ID,
						name: blockStart.ContentBlock.Name,
					}
					blockOrder = append(blockOrder, blockStart.Index)
				}

			case "content_block_delta":
				blockDelta := event.AsContentBlockDelta()
				switch blockDelta.Delta.Type {
				case "text_delta":
					if !send(core.Delta{ID: responseID, Content: blockDelta.Delta.Text}) {
						return
					}
				case "thinking_delta":
					if !send(core.Delta{ID: responseID, Thinking: blockDelta.Delta.Thinking}) {
						return
					}
				case "input_json_delta":
					if tb, ok := toolBlocks[blockDelta.Index]; ok {
						tb.input += blockDelta.Delta.PartialJSON
					}
				}

			case "message_delta":
				msgDelta := event.AsMessageDelta()
				reason := mapStopReason(string(msgDelta.Delta.StopReason))

				delta := core.Delta{
					ID:           responseID,
					FinishReason: reason,
					Usage: &core.Usage{
						InputTokens:  int(inputTokens),
						OutputTokens: int(msgDelta.Usage.OutputTokens),
					},
				}

				if reason == core.FinishToolCalls {
					for _, idx := range blockOrder {
						tb := toolBlocks[idx]
						delta.Calls = append(delta.Calls, core.ToolCall{
							ID:        tb.id,
							Name:      tb.name,
							Arguments: decodeArguments(tb.input),
						})
					}
				}

				if !send(delta) {
					return
				}
			}
		}

		if err := stream.Err(); err != nil {
			errCh <- fmt.Errorf("anthropic streaming error: %w", err)
		}
	}()

	return out, errCh
}

// ListModels queries the models endpoint.
func (g *Gateway) ListModels(ctx context.Context) ([]string, error) {
	if g.client == nil {
		g.logger.Error("gateway.not_initialized", "gateway", g.Name())
		return nil, nil
	}

	var ids []string

	iter := g.client.Models.ListAutoPaging(ctx, anthropic.ModelListParams{})
	for iter.Next() {
		ids = append(ids, iter.Current().ID)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("anthropic list models: %w", err)
	}

	return ids, nil
}

type toolBlock struct {
	id    string
	name  string
	input string
}

// buildParams assembles the Messages API parameters. The system prompt is
// carried separately from the message list, tool results merge into user
// messages as tool_result blocks and assistant tool calls become tool_use
// blocks.
func (g *Gateway) buildParams(req core.Request) anthropic.MessageNewParams {
	maxTokens := defaultMaxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: maxTokens,
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	if req.TopP != nil {
		params.TopP = anthropic.Float(*req.TopP)
	}

	var messages []anthropic.MessageParam

	for _, msg := range req.Messages {
		switch {
		case msg.Role == core.RoleSystem:
			params.System = append(params.System, anthropic.TextBlockParam{Text: msg.Content})

		case len(msg.ToolResults) > 0:
			blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.ToolResults))
			for _, tr := range msg.ToolResults {
				blocks = append(blocks, anthropic.NewToolResultBlock(tr.ID, tr.Content, tr.IsError))
			}
			messages = append(messages, anthropic.NewUserMessage(blocks...))

		case len(msg.ToolCalls) > 0:
			var blocks []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, tc.Arguments, tc.Name))
			}
			messages = append(messages, anthropic.NewAssistantMessage(blocks...))

		case msg.Role == core.RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))

		default:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}

	params.Messages = messages

	if len(req.ToolSchemas) > 0 {
		tools := make([]anthropic.ToolUnionParam, 0, len(req.ToolSchemas))
		for _, schema := range req.ToolSchemas {
			tools = append(tools, anthropic.ToolUnionParam{
				OfTool: &anthropic.ToolParam{
					Name:        schema.Name,
					Description: anthropic.String(schema.Description),
					InputSchema: toolInputSchema(schema.Parameters),
				},
			})
		}
		params.Tools = tools
	}

	return params
}

// toolInputSchema reshapes a JSON-Schema object map into the SDK's input
// schema parameter.
func toolInputSchema(parameters map[string]any) anthropic.ToolInputSchemaParam {
	schema := anthropic.ToolInputSchemaParam{
		Type: constant.Object("object"),
	}
	if props, ok := parameters["properties"]; ok {
		schema.Properties = props
	}
	switch req := parameters["required"].(type) {
	case []string:
		schema.Required = req
	case []any:
		for _, v := range req {
			if s, ok := v.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}
	return schema
}

// decodeInput converts an already decoded tool_use input payload into an
// argument map.
func decodeInput(input json.RawMessage) map[string]any {
	return decodeArguments(string(input))
}

// decodeArguments parses a tool input payload, falling back to an empty
// map on malformed or incomplete JSON.
func decodeArguments(raw string) map[string]any {
	args := map[string]any{}
	if raw == "" {
		return args
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return map[string]any{}
	}
	return args
}

// mapStopReason translates an Anthropic stop reason string.
func mapStopReason(reason string) core.FinishReason {
	if mapped, ok := stopReasonMap[reason]; ok {
		return mapped
	}
	return core.FinishUnknown
}

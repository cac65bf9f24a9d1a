// Package openai provides a gateway implementation for OpenAI-compatible
// Chat Completions APIs (including streaming and function/tool calling). It
// adapts the runtime's normalized Request/Delta/Response structures into
// the SDK's message format and back.
//
// Provider variants (OpenRouter, DeepSeek and other compatible endpoints)
// are expressed through Hooks rather than subclassing: a small fixed set of
// orthogonal extension points for thinking/reasoning extraction and extra
// request fields.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/gateway"
	"github.com/hupe1980/agentloop/logging"
)

// finishReasonMap translates the OpenAI finish vocabulary onto the
// canonical set. Anything unmapped resolves to FinishUnknown.
var finishReasonMap = map[string]core.FinishReason{
	"stop":       core.FinishStop,
	"length":     core.FinishLength,
	"tool_calls": core.FinishToolCalls,
}

// Hooks is the fixed set of extension points a provider variant can
// implement. All fields are optional; nil hooks behave like the standard
// OpenAI API (no thinking, no reasoning, no extra request fields).
type Hooks struct {
	// ThinkingDelta extracts incremental thinking text from a streamed delta.
	ThinkingDelta func(delta openai.ChatCompletionChunkChoiceDelta) string

	// ReasoningDelta extracts provider reasoning fragments from a streamed delta.
	ReasoningDelta func(delta openai.ChatCompletionChunkChoiceDelta) []map[string]any

	// Thinking extracts thinking text from a complete response message.
	Thinking func(msg openai.ChatCompletionMessage) string

	// Reasoning extracts reasoning fragments from a complete response message.
	Reasoning func(msg openai.ChatCompletionMessage) []map[string]any

	// ExtraBody returns provider specific top-level request fields.
	ExtraBody func() map[string]any

	// AssistantExtra returns provider specific fields attached to outgoing
	// assistant messages, used to round-trip stored reasoning.
	AssistantExtra func(msg core.Message) map[string]any
}

// Options configure the adapter.
type Options struct {
	// Name overrides the backend display name.
	Name string
	// Hooks customize thinking/reasoning handling for provider variants.
	Hooks Hooks
	// Logger receives adapter diagnostics. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Gateway wraps an OpenAI-compatible Chat Completions API behind the
// generic gateway.Gateway interface.
type Gateway struct {
	name   string
	hooks  Hooks
	logger logging.Logger
	client *openai.Client
}

var _ gateway.Gateway = (*Gateway)(nil)

// New constructs an uninitialized adapter. Call Init with base_url and
// api_key before use.
func New(optFns ...func(o *Options)) *Gateway {
	opts := Options{
		Name:   "OpenAI",
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Gateway{name: opts.Name, hooks: opts.Hooks, logger: opts.Logger}
}

// Name returns the backend display name.
func (g *Gateway) Name() string { return g.name }

// Init configures the SDK client. Required settings: base_url, api_key.
func (g *Gateway) Init(setting gateway.Setting) error {
	baseURL := setting.String("base_url")
	apiKey := setting.String("api_key")

	if baseURL == "" || apiKey == "" {
		g.logger.Error("gateway.init.incomplete", "gateway", g.name, "base_url_set", baseURL != "", "api_key_set", apiKey != "")
		return fmt.Errorf("%s gateway: base_url and api_key are required", g.name)
	}

	client := openai.NewClient(option.WithAPIKey(apiKey), option.WithBaseURL(baseURL))
	g.client = &client

	return nil
}

// Invoke sends the request and blocks until the full response is available.
func (g *Gateway) Invoke(ctx context.Context, req core.Request) (*core.Response, error) {
	if g.client == nil {
		g.logger.Error("gateway.not_initialized", "gateway", g.name)
		return &core.Response{}, nil
	}

	params := g.buildParams(req)

	resp, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%s api error: %w", g.name, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s api error: no choices returned", g.name)
	}

	choice := resp.Choices[0]

	var usage core.Usage
	usage.InputTokens = int(resp.Usage.PromptTokens)
	usage.OutputTokens = int(resp.Usage.CompletionTokens)

	var thinking string
	if g.hooks.Thinking != nil {
		thinking = g.hooks.Thinking(choice.Message)
	}

	var reasoning []map[string]any
	if g.hooks.Reasoning != nil {
		reasoning = g.hooks.Reasoning(choice.Message)
	}

	var toolCalls []core.ToolCall
	for _, tc := range choice.Message.ToolCalls {
		toolCalls = append(toolCalls, core.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: decodeArguments(tc.Function.Arguments),
		})
	}

	message := core.Message{
		Role:      core.RoleAssistant,
		Content:   choice.Message.Content,
		Thinking:  thinking,
		Reasoning: reasoning,
		ToolCalls: toolCalls,
	}

	return &core.Response{
		ID:           resp.ID,
		Content:      choice.Message.Content,
		Thinking:     thinking,
		Usage:        usage,
		FinishReason: mapFinishReason(string(choice.FinishReason)),
		Message:      &message,
	}, nil
}

// Stream sends the request and feeds normalized deltas from a background
// receiver goroutine.
func (g *Gateway) Stream(ctx context.Context, req core.Request) (<-chan core.Delta, <-chan error) {
	out := make(chan core.Delta, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		if g.client == nil {
			g.logger.Error("gateway.not_initialized", "gateway", g.name)
			return
		}

		params := g.buildParams(req)
		params.StreamOptions = openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		}

		stream := g.client.Chat.Completions.NewStreaming(ctx, params)

		folder := newChunkFolder(g.hooks)

		for stream.Next() {
			delta, emit := folder.fold(stream.Current())
			if !emit {
				continue
			}

			select {
			case <-ctx.Done():
				return
			case out <- delta:
			}
		}

		if err := stream.Err(); err != nil {
			errCh <- fmt.Errorf("%s streaming error: %w", g.name, err)
			return
		}

		if final := folder.flush(); final != nil {
			select {
			case <-ctx.Done():
			case out <- *final:
			}
		}
	}()

	return out, errCh
}

// ListModels queries the models endpoint and returns sorted model ids.
func (g *Gateway) ListModels(ctx context.Context) ([]string, error) {
	if g.client == nil {
		g.logger.Error("gateway.not_initialized", "gateway", g.name)
		return nil, nil
	}

	var ids []string

	iter := g.client.Models.ListAutoPaging(ctx)
	for iter.Next() {
		ids = append(ids, iter.Current().ID)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("%s list models: %w", g.name, err)
	}

	sort.Strings(ids)

	return ids, nil
}

// buildParams assembles the request parameters including tool definitions
// and provider extra fields.
func (g *Gateway) buildParams(req core.Request) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:    req.Model,
		Messages: g.convertMessages(req.Messages),
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.TopP != nil {
		params.TopP = openai.Float(*req.TopP)
	}
	if req.MaxTokens != nil {
		params.MaxCompletionTokens = openai.Int(*req.MaxTokens)
	}

	if len(req.ToolSchemas) > 0 {
		tools := make([]openai.ChatCompletionToolParam, len(req.ToolSchemas))
		for i, schema := range req.ToolSchemas {
			tools[i] = openai.ChatCompletionToolParam{
				Type: "function",
				Function: openai.FunctionDefinitionParam{
					Name:        schema.Name,
					Description: openai.String(schema.Description),
					Parameters:  schema.Parameters,
				},
			}
		}
		params.Tools = tools
	}

	if g.hooks.ExtraBody != nil {
		if extra := g.hooks.ExtraBody(); len(extra) > 0 {
			params.SetExtraFields(extra)
		}
	}

	return params
}

// convertMessages converts the internal message format into Chat Completions
// messages. Tool-result carrier messages split into one tool message per
// result.
func (g *Gateway) convertMessages(messages []core.Message) []openai.ChatCompletionMessageParamUnion {
	var out []openai.ChatCompletionMessageParamUnion

	for _, msg := range messages {
		if len(msg.ToolResults) > 0 {
			for _, tr := range msg.ToolResults {
				out = append(out, openai.ToolMessage(tr.Content, tr.ID))
			}
			continue
		}

		switch msg.Role {
		case core.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case core.RoleUser:
			out = append(out, openai.UserMessage(msg.Content))
		case core.RoleAssistant:
			out = append(out, g.convertAssistantMessage(msg))
		}
	}

	return out
}

func (g *Gateway) convertAssistantMessage(msg core.Message) openai.ChatCompletionMessageParamUnion {
	if len(msg.ToolCalls) == 0 && g.hooks.AssistantExtra == nil {
		return openai.AssistantMessage(msg.Content)
	}

	assistant := openai.ChatCompletionAssistantMessageParam{Role: "assistant"}
	if msg.Content != "" {
		assistant.Content.OfString = openai.String(msg.Content)
	}

	for _, tc := range msg.ToolCalls {
		args, err := json.Marshal(tc.Arguments)
		if err != nil {
			args = []byte("{}")
		}
		assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallParam{
			ID:   tc.ID,
			Type: "function",
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      tc.Name,
				Arguments: string(args),
			},
		})
	}

	if g.hooks.AssistantExtra != nil {
		if extra := g.hooks.AssistantExtra(msg); len(extra) > 0 {
			assistant.SetExtraFields(extra)
		}
	}

	return openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant}
}

// chunkFolder normalizes streamed chunks into deltas. The finish-bearing
// delta is held back until the stream is exhausted: with IncludeUsage set
// the API sends a trailing usage-only chunk after the finish chunk, and the
// gateway contract requires that nothing follows the finish delta.
type chunkFolder struct {
	hooks      Hooks
	agg        *toolCallAggregator
	responseID string
	final      *core.Delta
}

func newChunkFolder(hooks Hooks) *chunkFolder {
	return &chunkFolder{hooks: hooks, agg: newToolCallAggregator()}
}

// fold consumes one chunk and reports whether the returned delta should be
// emitted immediately. Finish and usage information accumulate into the
// held final delta instead.
func (f *chunkFolder) fold(chunk openai.ChatCompletionChunk) (core.Delta, bool) {
	if f.responseID == "" {
		f.responseID = chunk.ID
	}

	delta := core.Delta{ID: f.responseID}
	emit := false

	if len(chunk.Choices) > 0 {
		choice := chunk.Choices[0]

		if f.hooks.ThinkingDelta != nil {
			if thinking := f.hooks.ThinkingDelta(choice.Delta); thinking != "" {
				delta.Thinking = thinking
				emit = true
			}
		}

		if f.hooks.ReasoningDelta != nil {
			if reasoning := f.hooks.ReasoningDelta(choice.Delta); len(reasoning) > 0 {
				delta.Reasoning = reasoning
				emit = true
			}
		}

		if choice.Delta.Content != "" {
			delta.Content = choice.Delta.Content
			emit = true
		}

		for _, tc := range choice.Delta.ToolCalls {
			f.agg.add(tc.Index, tc.ID, tc.Function.Name, tc.Function.Arguments)
		}

		if choice.FinishReason != "" {
			reason := mapFinishReason(choice.FinishReason)
			final := core.Delta{ID: f.responseID, FinishReason: reason}
			if reason == core.FinishToolCalls {
				final.Calls = f.agg.finish()
			}
			f.final = &final
		}
	}

	if chunk.Usage.TotalTokens > 0 || chunk.Usage.PromptTokens > 0 {
		usage := &core.Usage{
			InputTokens:  int(chunk.Usage.PromptTokens),
			OutputTokens: int(chunk.Usage.CompletionTokens),
		}
		if f.final != nil {
			f.final.Usage = usage
		} else {
			delta.Usage = usage
			emit = true
		}
	}

	return delta, emit
}

// flush returns the held finish delta, or nil when the stream ended without
// a finish reason.
func (f *chunkFolder) flush() *core.Delta { return f.final }

// toolCallAggregator reassembles tool calls streamed as indexed fragments:
// ids and names arrive whole, argument JSON arrives in pieces that must be
// concatenated in order.
type toolCallAggregator struct {
	order []int64
	calls map[int64]*aggCall
}

type aggCall struct{ id, name, args string }

func newToolCallAggregator() *toolCallAggregator {
	return &toolCallAggregator{calls: map[int64]*aggCall{}}
}

func (a *toolCallAggregator) add(index int64, id, name, args string) {
	ac, ok := a.calls[index]
	if !ok {
		ac = &aggCall{}
		a.calls[index] = ac
		a.order = append(a.order, index)
	}
	if id != "" {
		ac.id = id
	}
	if name != "" {
		ac.name = name
	}
	if args != "" {
		ac.args += args
	}
}

// finish decodes the accumulated calls. Malformed or incomplete argument
// JSON resolves to an empty argument map rather than an error.
func (a *toolCallAggregator) finish() []core.ToolCall {
	if len(a.order) == 0 {
		return nil
	}
	calls := make([]core.ToolCall, 0, len(a.order))
	for _, idx := range a.order {
		ac := a.calls[idx]
		calls = append(calls, core.ToolCall{
			ID:        ac.id,
			Name:      ac.name,
			Arguments: decodeArguments(ac.args),
		})
	}
	return calls
}

// decodeArguments parses a tool-call argument payload, falling back to an
// empty map on malformed JSON.
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

// mapFinishReason translates a provider finish reason string.
func mapFinishReason(reason string) core.FinishReason {
	if mapped, ok := finishReasonMap[reason]; ok {
		return mapped
	}
	return core.FinishUnknown
}

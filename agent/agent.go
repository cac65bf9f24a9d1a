package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/logging"
	"github.com/hupe1980/agentloop/store"
)

// titlePrompt asks the model to summarize the conversation so far.
const titlePrompt = `
Based on the above dialogue content, generate a concise title summarizing the main topic of this conversation.

Requirements:
1. The title should accurately reflect the core content and primary issues discussed in the dialogue.
2. The title length must not exceed %d characters.
3. Use concise, professional, and easily understandable language.
4. Return the title text directly without quotation marks, punctuation, or additional explanations.
5. If the dialogue involves multiple topics, extract the most significant theme.
`

// titleTemperature keeps summarization output stable.
const titleTemperature = 0.5

// Options configure a TaskAgent.
type Options struct {
	// Store persists the session when the agent is created with save=true.
	Store store.SessionStore

	// Logger receives loop diagnostics. Defaults to NoOpLogger.
	Logger logging.Logger
}

// TaskAgent drives one conversation: it appends the user prompt, streams
// the model response, executes requested tools and feeds results back until
// the model stops or the iteration cap is hit.
//
// A TaskAgent is not safe for concurrent use; run one streaming turn at a
// time. To abort a turn, stop consuming the deltas (cancel the context),
// wait for the delta channel to close, then call AbortStream to keep the
// partial output.
type TaskAgent struct {
	engine  Engine
	profile core.Profile
	session *core.Session
	save    bool

	sessions store.SessionStore
	logger   logging.Logger
	tracer   *logging.Tracer

	// Accumulators for the in-flight iteration, guarded for AbortStream.
	mu                 sync.Mutex
	collectedContent   string
	collectedThinking  string
	collectedReasoning []map[string]any
	collectedToolCalls []core.ToolCall
}

// New binds an agent to a session. Empty sessions get the profile's system
// prompt as their first message and are persisted right away.
func New(engine Engine, profile core.Profile, session *core.Session, save bool, optFns ...func(o *Options)) *TaskAgent {
	opts := Options{
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	a := &TaskAgent{
		engine:   engine,
		profile:  profile,
		session:  session,
		save:     save,
		sessions: opts.Store,
		logger:   opts.Logger,
		tracer:   logging.NewTracer(opts.Logger, session.ID, profile.Name),
	}

	if len(session.Messages) == 0 {
		session.Messages = append(session.Messages, core.Message{
			Role:    core.RoleSystem,
			Content: profile.Prompt,
		})
		a.persist()
	}

	return a
}

// ID returns the session identifier.
func (a *TaskAgent) ID() string { return a.session.ID }

// Name returns the session display name.
func (a *TaskAgent) Name() string { return a.session.Name }

// Model returns the selected model identifier.
func (a *TaskAgent) Model() string { return a.session.Model }

// Profile returns the agent's configuration.
func (a *TaskAgent) Profile() core.Profile { return a.profile }

// Messages returns the conversation history.
func (a *TaskAgent) Messages() []core.Message { return a.session.Messages }

// Session returns the underlying session record.
func (a *TaskAgent) Session() *core.Session { return a.session }

// Stream appends the prompt and runs the conversation loop, forwarding
// every model delta as it arrives. Tool execution is announced in-band with
// synthetic content deltas. The delta channel closes when the turn ends;
// gateway failures are reported on the error channel.
//
// Cancelling ctx stops the loop without appending the partial response;
// call AbortStream afterwards to keep what was collected.
func (a *TaskAgent) Stream(ctx context.Context, prompt string) (<-chan core.Delta, <-chan error) {
	out := make(chan core.Delta, 32)
	errCh := make(chan error, 1)

	a.session.Messages = append(a.session.Messages, core.Message{
		Role:    core.RoleUser,
		Content: prompt,
	})

	go func() {
		defer close(out)
		defer close(errCh)

		maxIterations := a.profile.MaxIterations
		if maxIterations <= 0 {
			maxIterations = core.DefaultMaxIterations
		}

		toolSchemas := a.engine.ToolSchemas(a.profile.Tools)

		var (
			iteration  int
			responseID string
		)

		defer a.persist()

		send := func(delta core.Delta) bool {
			select {
			case <-ctx.Done():
				return false
			case out <- delta:
				return true
			}
		}

		for iteration < maxIterations {
			a.resetCollected()
			iteration++

			req := core.Request{
				Model:       a.session.Model,
				Messages:    a.session.Messages,
				ToolSchemas: toolSchemas,
				Temperature: a.profile.Temperature,
				MaxTokens:   a.profile.MaxTokens,
			}

			a.tracer.RequestStart(req)

			var finishReason core.FinishReason

			deltas, errs := a.engine.Stream(ctx, req)

			for delta := range deltas {
				if delta.ID != "" && responseID == "" {
					responseID = delta.ID
				}

				a.collect(delta)

				if delta.FinishReason != "" {
					finishReason = delta.FinishReason
				}

				a.tracer.DeltaReceived(delta)

				if !send(delta) {
					return
				}
			}

			if err := <-errs; err != nil {
				errCh <- err
				return
			}
			if ctx.Err() != nil {
				return
			}

			assistantMsg := a.takeCollected()
			a.session.Messages = append(a.session.Messages, assistantMsg)
			a.tracer.ResponseEnd(assistantMsg)

			if finishReason == core.FinishStop {
				break
			}

			if finishReason != core.FinishToolCalls || len(assistantMsg.ToolCalls) == 0 {
				break
			}

			toolResults := make([]core.ToolResult, 0, len(assistantMsg.ToolCalls))

			for _, call := range assistantMsg.ToolCalls {
				if !send(core.Delta{
					ID:      a.deltaID(responseID),
					Content: fmt.Sprintf("\n\n[Execution tool: %s]\n\n", call.Name),
				}) {
					return
				}

				a.tracer.ToolStart(call)

				result := a.engine.ExecuteTool(ctx, call)
				toolResults = append(toolResults, result)

				a.tracer.ToolEnd(result)
			}

			a.session.Messages = append(a.session.Messages, core.Message{
				Role:        core.RoleUser,
				ToolResults: toolResults,
			})
		}

		if iteration >= maxIterations {
			send(core.Delta{
				ID:      a.deltaID(responseID),
				Content: "\n[Warning: Maximum tool invocation limit reached]\n",
			})
		}
	}()

	return out, errCh
}

// Invoke runs Stream to completion and assembles the drained deltas into a
// single response with summed token usage.
func (a *TaskAgent) Invoke(ctx context.Context, prompt string) (*core.Response, error) {
	var (
		fullContent strings.Builder
		responseID  string
		totalUsage  core.Usage
	)

	deltas, errs := a.Stream(ctx, prompt)

	for delta := range deltas {
		if delta.ID != "" && responseID == "" {
			responseID = delta.ID
		}
		fullContent.WriteString(delta.Content)
		if delta.Usage != nil {
			totalUsage.Add(*delta.Usage)
		}
	}

	if err := <-errs; err != nil {
		return nil, err
	}

	return &core.Response{
		ID:      responseID,
		Content: fullContent.String(),
		Usage:   totalUsage,
	}, nil
}

// AbortStream keeps the partial response of a cancelled turn: whatever
// content the current iteration collected is appended as an assistant
// message and persisted. A no-op when nothing was collected. Call it only
// after the turn's delta channel has closed.
func (a *TaskAgent) AbortStream() {
	a.mu.Lock()
	content := a.collectedContent
	toolCalls := a.collectedToolCalls
	a.mu.Unlock()

	if content == "" {
		return
	}

	a.session.Messages = append(a.session.Messages, core.Message{
		Role:      core.RoleAssistant,
		Content:   content,
		ToolCalls: toolCalls,
	})

	a.persist()
}

// Rename updates the session display name.
func (a *TaskAgent) Rename(name string) {
	a.session.Name = name
	a.persist()
}

// SetModel selects the model used for subsequent turns.
func (a *TaskAgent) SetModel(model string) {
	a.session.Model = model
	a.persist()
}

// DeleteRound removes the last conversation round: the trailing assistant
// reply plus every tool exchange back to, and including, the user prompt
// that started it. Only valid when the history ends with an assistant
// message.
func (a *TaskAgent) DeleteRound() {
	a.popRound()
	a.persist()
}

// ResendRound removes the last round like DeleteRound and returns the user
// prompt that started it so the caller can submit it again.
func (a *TaskAgent) ResendRound() string {
	prompt := a.popRound()
	a.persist()
	return prompt
}

// popRound walks the history backwards dropping messages until it consumes
// the round's real user prompt. A system message is pushed back and ends
// the walk; tool-result user messages (no content) are internal to the
// round and keep the walk going.
func (a *TaskAgent) popRound() string {
	messages := a.session.Messages

	if len(messages) == 0 || messages[len(messages)-1].Role != core.RoleAssistant {
		return ""
	}

	var prompt string

	for len(messages) > 0 {
		last := messages[len(messages)-1]
		messages = messages[:len(messages)-1]

		if last.Role == core.RoleSystem {
			messages = append(messages, last)
			break
		}

		if last.IsPrompt() {
			prompt = last.Content
			break
		}
	}

	a.session.Messages = messages
	return prompt
}

// GenerateTitle asks the model for a short session title. The conversation
// itself is not modified. Surrounding quotes are stripped from the result.
func (a *TaskAgent) GenerateTitle(ctx context.Context, maxLength int) (string, error) {
	messages := make([]core.Message, len(a.session.Messages), len(a.session.Messages)+1)
	copy(messages, a.session.Messages)
	messages = append(messages, core.Message{
		Role:    core.RoleUser,
		Content: fmt.Sprintf(titlePrompt, maxLength),
	})

	temperature := titleTemperature

	req := core.Request{
		Model:       a.session.Model,
		Messages:    messages,
		Temperature: &temperature,
		MaxTokens:   a.profile.MaxTokens,
	}

	var sb strings.Builder

	deltas, errs := a.engine.Stream(ctx, req)
	for delta := range deltas {
		sb.WriteString(delta.Content)
	}
	if err := <-errs; err != nil {
		return "", err
	}

	return stripQuotes(strings.TrimSpace(sb.String())), nil
}

// stripQuotes removes one matching pair of surrounding quotes, including
// typographic ones.
func stripQuotes(title string) string {
	pairs := [][2]string{
		{`"`, `"`},
		{`'`, `'`},
		{"“", "”"},
		{"‘", "’"},
	}

	for _, pair := range pairs {
		if len(title) > 1 && strings.HasPrefix(title, pair[0]) && strings.HasSuffix(title, pair[1]) {
			return strings.TrimSuffix(strings.TrimPrefix(title, pair[0]), pair[1])
		}
	}

	return title
}

// deltaID reuses the backend response id for synthetic deltas, generating
// one when no backend id arrived yet.
func (a *TaskAgent) deltaID(responseID string) string {
	if responseID != "" {
		return responseID
	}
	return core.NewID()
}

// resetCollected clears the per-iteration accumulators.
func (a *TaskAgent) resetCollected() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.collectedContent = ""
	a.collectedThinking = ""
	a.collectedReasoning = nil
	a.collectedToolCalls = nil
}

// collect folds one delta into the accumulators.
func (a *TaskAgent) collect(delta core.Delta) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.collectedContent += delta.Content
	a.collectedThinking += delta.Thinking

	for _, fragment := range delta.Reasoning {
		a.collectedReasoning = mergeReasoning(a.collectedReasoning, fragment)
	}

	a.collectedToolCalls = append(a.collectedToolCalls, delta.Calls...)
}

// takeCollected snapshots the accumulators into an assistant message.
func (a *TaskAgent) takeCollected() core.Message {
	a.mu.Lock()
	defer a.mu.Unlock()

	return core.Message{
		Role:      core.RoleAssistant,
		Content:   a.collectedContent,
		Thinking:  a.collectedThinking,
		Reasoning: a.collectedReasoning,
		ToolCalls: a.collectedToolCalls,
	}
}

// mergeReasoning folds one reasoning fragment into the accumulated list.
// Fragments without an index are appended as-is. Indexed fragments merge
// into the entry with the same index: text-like string fields concatenate,
// everything else (type, id, signature, ...) is overwritten.
func mergeReasoning(items []map[string]any, fragment map[string]any) []map[string]any {
	index, ok := fragment["index"]
	if !ok {
		return append(items, fragment)
	}

	for _, existing := range items {
		if existingIndex, has := existing["index"]; !has || existingIndex != index {
			continue
		}

		for key, value := range fragment {
			if isTextKey(key) {
				if str, isStr := value.(string); isStr {
					prev, _ := existing[key].(string)
					existing[key] = prev + str
					continue
				}
			}
			existing[key] = value
		}

		return items
	}

	return append(items, fragment)
}

// isTextKey reports whether a reasoning field accumulates by concatenation.
func isTextKey(key string) bool {
	return key == "text" || key == "data" || key == "summary"
}

// persist writes the session when the agent was created with save enabled.
func (a *TaskAgent) persist() {
	if !a.save || a.sessions == nil {
		return
	}

	if err := a.sessions.Save(a.session); err != nil {
		a.logger.Error("session.save.failed", "session_id", a.session.ID, "error", err.Error())
	}
}

package agent

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/store"
)

// scriptedEngine feeds pre-canned delta sequences to the loop, one script
// per model call, and records the tool calls it was asked to execute.
type scriptedEngine struct {
	scripts  [][]core.Delta
	call     int
	executed []core.ToolCall

	// toolContent is returned for every executed tool call.
	toolContent string

	// block keeps the stream open until the context is cancelled, after
	// emitting the script. Used by the abort test.
	block bool
}

func (s *scriptedEngine) ToolSchemas(tools []string) []core.ToolSchema { return nil }

func (s *scriptedEngine) ExecuteTool(ctx context.Context, call core.ToolCall) core.ToolResult {
	s.executed = append(s.executed, call)
	return core.ToolResult{
		ID:      call.ID,
		Name:    call.Name,
		Content: s.toolContent,
		IsError: s.toolContent != "",
	}
}

func (s *scriptedEngine) Stream(ctx context.Context, req core.Request) (<-chan core.Delta, <-chan error) {
	out := make(chan core.Delta, 16)
	errCh := make(chan error, 1)

	var script []core.Delta
	if s.call < len(s.scripts) {
		script = s.scripts[s.call]
	}
	s.call++

	go func() {
		defer close(out)
		defer close(errCh)

		for _, delta := range script {
			select {
			case out <- delta:
			case <-ctx.Done():
				return
			}
		}

		if s.block {
			<-ctx.Done()
		}
	}()

	return out, errCh
}

func (s *scriptedEngine) CreateAgent(profile core.Profile, save bool) *TaskAgent {
	return New(s, profile, core.NewSession(profile.Name), save)
}

func testProfile(maxIterations int) core.Profile {
	return core.Profile{
		Name:          "tester",
		Prompt:        "You are a test assistant",
		MaxIterations: maxIterations,
	}
}

func drain(t *testing.T, deltas <-chan core.Delta, errs <-chan error) []core.Delta {
	t.Helper()

	var collected []core.Delta

	timeout := time.After(5 * time.Second)
	for {
		select {
		case delta, ok := <-deltas:
			if !ok {
				require.NoError(t, <-errs)
				return collected
			}
			collected = append(collected, delta)
		case <-timeout:
			t.Fatal("stream did not finish")
		}
	}
}

func TestStreamSimpleTurn(t *testing.T) {
	eng := &scriptedEngine{
		scripts: [][]core.Delta{{
			{ID: "resp-1", Content: "Hel"},
			{Content: "lo"},
			{FinishReason: core.FinishStop, Usage: &core.Usage{InputTokens: 5, OutputTokens: 2}},
		}},
	}

	a := New(eng, testProfile(5), core.NewSession("tester"), false)

	deltaCh, errCh := a.Stream(context.Background(), "hi")
	deltas := drain(t, deltaCh, errCh)

	var content strings.Builder
	for _, d := range deltas {
		content.WriteString(d.Content)
	}
	assert.Equal(t, "Hello", content.String())

	messages := a.Messages()
	require.Len(t, messages, 3)
	assert.Equal(t, core.RoleSystem, messages[0].Role)
	assert.Equal(t, "You are a test assistant", messages[0].Content)
	assert.Equal(t, core.RoleUser, messages[1].Role)
	assert.Equal(t, "hi", messages[1].Content)
	assert.Equal(t, core.RoleAssistant, messages[2].Role)
	assert.Equal(t, "Hello", messages[2].Content)
}

func TestStreamToolLoop(t *testing.T) {
	eng := &scriptedEngine{
		toolContent: "42",
		scripts: [][]core.Delta{
			{
				{ID: "resp-1", Calls: []core.ToolCall{{ID: "c1", Name: "lookup", Arguments: map[string]any{"q": "answer"}}}},
				{FinishReason: core.FinishToolCalls},
			},
			{
				{Content: "done"},
				{FinishReason: core.FinishStop},
			},
		},
	}

	a := New(eng, testProfile(5), core.NewSession("tester"), false)

	deltaCh, errCh := a.Stream(context.Background(), "hello")
	deltas := drain(t, deltaCh, errCh)

	// One synthetic notification between the two model turns.
	var notifications []string
	for _, d := range deltas {
		if strings.Contains(d.Content, "[Execution tool:") {
			notifications = append(notifications, d.Content)
		}
	}
	require.Len(t, notifications, 1)
	assert.Contains(t, notifications[0], "lookup")

	require.Len(t, eng.executed, 1)
	assert.Equal(t, "lookup", eng.executed[0].Name)

	messages := a.Messages()
	require.Len(t, messages, 5)
	assert.Equal(t, core.RoleSystem, messages[0].Role)
	assert.Equal(t, "hello", messages[1].Content)
	require.Len(t, messages[2].ToolCalls, 1)
	assert.Equal(t, core.RoleAssistant, messages[2].Role)
	assert.Equal(t, core.RoleUser, messages[3].Role)
	require.Len(t, messages[3].ToolResults, 1)
	assert.Equal(t, "42", messages[3].ToolResults[0].Content)
	assert.False(t, messages[3].IsPrompt())
	assert.Equal(t, "done", messages[4].Content)
}

func TestStreamIterationCap(t *testing.T) {
	// Every turn requests another tool call; the loop must stop at the cap
	// and emit exactly one warning.
	const maxIter = 3

	script := []core.Delta{
		{Calls: []core.ToolCall{{ID: "c", Name: "spin", Arguments: map[string]any{}}}},
		{FinishReason: core.FinishToolCalls},
	}

	eng := &scriptedEngine{toolContent: "again"}
	for i := 0; i < maxIter+2; i++ {
		eng.scripts = append(eng.scripts, script)
	}

	a := New(eng, testProfile(maxIter), core.NewSession("tester"), false)

	deltaCh, errCh := a.Stream(context.Background(), "go")
	deltas := drain(t, deltaCh, errCh)

	var warnings int
	for _, d := range deltas {
		if strings.Contains(d.Content, "Maximum tool invocation limit reached") {
			warnings++
		}
	}
	assert.Equal(t, 1, warnings)
	assert.Len(t, eng.executed, maxIter)
}

func TestStreamReasoningMerge(t *testing.T) {
	eng := &scriptedEngine{
		scripts: [][]core.Delta{{
			{Reasoning: []map[string]any{{"index": 0, "text": "A"}}},
			{Reasoning: []map[string]any{{"index": 0, "text": "B"}, {"text": "X"}}},
			{FinishReason: core.FinishStop},
		}},
	}

	a := New(eng, testProfile(5), core.NewSession("tester"), false)

	deltaCh, errCh := a.Stream(context.Background(), "think")
	drain(t, deltaCh, errCh)

	messages := a.Messages()
	last := messages[len(messages)-1]
	require.Len(t, last.Reasoning, 2)
	assert.Equal(t, "AB", last.Reasoning[0]["text"])
	assert.Equal(t, 0, last.Reasoning[0]["index"])
	assert.Equal(t, "X", last.Reasoning[1]["text"])
}

func TestStreamAbortKeepsPartialContent(t *testing.T) {
	sessions := store.NewInMemorySessionStore()

	eng := &scriptedEngine{
		block: true,
		scripts: [][]core.Delta{{
			{ID: "resp-1", Content: "Hel"},
			{Content: "lo"},
		}},
	}

	session := core.NewSession("tester")
	a := New(eng, testProfile(5), session, true, func(o *Options) {
		o.Store = sessions
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deltas, errs := a.Stream(ctx, "hi")

	var received int
	for range deltas {
		received++
		if received == 2 {
			cancel()
		}
	}
	assert.NoError(t, <-errs)

	// The interrupted turn did not append an assistant message.
	messages := a.Messages()
	assert.Equal(t, core.RoleUser, messages[len(messages)-1].Role)

	a.AbortStream()

	messages = a.Messages()
	last := messages[len(messages)-1]
	assert.Equal(t, core.RoleAssistant, last.Role)
	assert.Equal(t, "Hello", last.Content)

	saved, err := sessions.LoadAll()
	require.NoError(t, err)
	require.Len(t, saved, 1)
	lastSaved := saved[0].Messages[len(saved[0].Messages)-1]
	assert.Equal(t, "Hello", lastSaved.Content)
}

func TestInvokeSumsUsage(t *testing.T) {
	eng := &scriptedEngine{
		toolContent: "ok",
		scripts: [][]core.Delta{
			{
				{ID: "resp-1", Calls: []core.ToolCall{{ID: "c1", Name: "noop", Arguments: map[string]any{}}}},
				{FinishReason: core.FinishToolCalls, Usage: &core.Usage{InputTokens: 10, OutputTokens: 3}},
			},
			{
				{Content: "done"},
				{FinishReason: core.FinishStop, Usage: &core.Usage{InputTokens: 15, OutputTokens: 4}},
			},
		},
	}

	a := New(eng, testProfile(5), core.NewSession("tester"), false)

	resp, err := a.Invoke(context.Background(), "run")
	require.NoError(t, err)

	assert.Equal(t, "resp-1", resp.ID)
	assert.Contains(t, resp.Content, "done")
	assert.Equal(t, 25, resp.Usage.InputTokens)
	assert.Equal(t, 7, resp.Usage.OutputTokens)
}

func TestDeleteRound(t *testing.T) {
	a := New(&scriptedEngine{}, testProfile(5), core.NewSession("tester"), false)

	a.session.Messages = append(a.session.Messages,
		core.Message{Role: core.RoleUser, Content: "question"},
		core.Message{Role: core.RoleAssistant, ToolCalls: []core.ToolCall{{ID: "c1", Name: "t"}}},
		core.Message{Role: core.RoleUser, ToolResults: []core.ToolResult{{ID: "c1", Name: "t", Content: "r"}}},
		core.Message{Role: core.RoleAssistant, Content: "answer"},
	)

	a.DeleteRound()

	messages := a.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, core.RoleSystem, messages[0].Role)
}

func TestDeleteRoundRequiresTrailingAssistant(t *testing.T) {
	a := New(&scriptedEngine{}, testProfile(5), core.NewSession("tester"), false)

	a.session.Messages = append(a.session.Messages,
		core.Message{Role: core.RoleUser, Content: "question"},
	)

	a.DeleteRound()

	// Nothing removed: the history does not end with an assistant reply.
	assert.Len(t, a.Messages(), 2)
}

func TestResendRoundReturnsPrompt(t *testing.T) {
	a := New(&scriptedEngine{}, testProfile(5), core.NewSession("tester"), false)

	a.session.Messages = append(a.session.Messages,
		core.Message{Role: core.RoleUser, Content: "first"},
		core.Message{Role: core.RoleAssistant, Content: "one"},
		core.Message{Role: core.RoleUser, Content: "second"},
		core.Message{Role: core.RoleAssistant, Content: "two"},
	)

	prompt := a.ResendRound()

	assert.Equal(t, "second", prompt)

	messages := a.Messages()
	require.Len(t, messages, 3)
	assert.Equal(t, "one", messages[2].Content)
}

func TestGenerateTitle(t *testing.T) {
	eng := &scriptedEngine{
		scripts: [][]core.Delta{{
			{Content: `"Streaming basics"`},
		}},
	}

	a := New(eng, testProfile(5), core.NewSession("tester"), false)
	before := len(a.Messages())

	title, err := a.GenerateTitle(context.Background(), 20)
	require.NoError(t, err)

	assert.Equal(t, "Streaming basics", title)
	// The title request must not touch the conversation history.
	assert.Len(t, a.Messages(), before)
}

func TestStripQuotes(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`"quoted"`, "quoted"},
		{`'quoted'`, "quoted"},
		{"“quoted”", "quoted"},
		{"plain", "plain"},
		{`"unbalanced`, `"unbalanced`},
		{`""`, ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, stripQuotes(tt.in), tt.in)
	}
}

func TestMergeReasoningOverwritesNonTextFields(t *testing.T) {
	items := mergeReasoning(nil, map[string]any{"index": 1, "type": "thinking", "text": "a"})
	items = mergeReasoning(items, map[string]any{"index": 1, "text": "b", "signature": "sig-2"})

	require.Len(t, items, 1)
	assert.Equal(t, "ab", items[0]["text"])
	assert.Equal(t, "thinking", items[0]["type"])
	assert.Equal(t, "sig-2", items[0]["signature"])
}

func TestNewInsertsSystemPrompt(t *testing.T) {
	sessions := store.NewInMemorySessionStore()
	session := core.NewSession("tester")

	a := New(&scriptedEngine{}, testProfile(5), session, true, func(o *Options) {
		o.Store = sessions
	})

	require.Len(t, a.Messages(), 1)
	assert.Equal(t, core.RoleSystem, a.Messages()[0].Role)

	saved, err := sessions.LoadAll()
	require.NoError(t, err)
	assert.Len(t, saved, 1)
}

func TestAgentToolNaming(t *testing.T) {
	eng := &scriptedEngine{}
	profile := core.Profile{Name: "data_helper", Prompt: "help"}

	at := NewTool(eng, profile, "test-model")

	assert.Equal(t, "agent_data-helper", at.Name())

	params := at.Parameters()
	props, ok := params["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "prompt")
}

func TestAgentToolRunsEphemeralAgent(t *testing.T) {
	eng := &scriptedEngine{
		scripts: [][]core.Delta{{
			{Content: "delegated result"},
			{FinishReason: core.FinishStop},
		}},
	}
	profile := core.Profile{Name: "helper", Prompt: "help", MaxIterations: 3}

	at := NewTool(eng, profile, "test-model")

	out, err := at.Call(context.Background(), map[string]any{"prompt": "do it"})
	require.NoError(t, err)
	assert.Equal(t, "delegated result", out)
}

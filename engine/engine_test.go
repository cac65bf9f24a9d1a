package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentloop/agent"
	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/gateway"
	"github.com/hupe1980/agentloop/tool"
	"github.com/hupe1980/agentloop/tool/builtin"
)

// fakeGateway scripts deltas and model lists for engine tests.
type fakeGateway struct {
	deltas     []core.Delta
	models     []string
	listCalls  int
	lastStream core.Request
}

func (f *fakeGateway) Name() string               { return "Fake" }
func (f *fakeGateway) Init(gateway.Setting) error { return nil }

func (f *fakeGateway) Invoke(ctx context.Context, req core.Request) (*core.Response, error) {
	return &core.Response{}, nil
}

func (f *fakeGateway) Stream(ctx context.Context, req core.Request) (<-chan core.Delta, <-chan error) {
	f.lastStream = req

	out := make(chan core.Delta, len(f.deltas))
	errCh := make(chan error, 1)
	for _, d := range f.deltas {
		out <- d
	}
	close(out)
	close(errCh)
	return out, errCh
}

func (f *fakeGateway) ListModels(ctx context.Context) ([]string, error) {
	f.listCalls++
	return f.models, nil
}

func echoTool() tool.Tool {
	return tool.NewFunctionTool(
		"echo",
		"Echo the provided text",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"text": map[string]any{"type": "string"},
			},
			"required": []string{"text"},
		},
		func(ctx context.Context, args map[string]any) (string, error) {
			return args["text"].(string), nil
		},
	)
}

func TestInitLoadsDefaultProfile(t *testing.T) {
	e := New(&fakeGateway{})
	require.NoError(t, e.Init(context.Background()))

	profile, ok := e.GetProfile(DefaultProfile.Name)
	require.True(t, ok)
	assert.Equal(t, "Chat assistant", profile.Name)
}

func TestExecuteToolDispatchesLocal(t *testing.T) {
	e := New(&fakeGateway{})
	e.RegisterTool(echoTool())
	require.NoError(t, e.Init(context.Background()))

	result := e.ExecuteTool(context.Background(), core.ToolCall{
		ID:        "c1",
		Name:      "echo",
		Arguments: map[string]any{"text": "ping"},
	})

	assert.Equal(t, "c1", result.ID)
	assert.Equal(t, "echo", result.Name)
	assert.Equal(t, "ping", result.Content)
	assert.True(t, result.IsError)
}

func TestExecuteToolUnknownNameIsEmpty(t *testing.T) {
	e := New(&fakeGateway{})
	require.NoError(t, e.Init(context.Background()))

	result := e.ExecuteTool(context.Background(), core.ToolCall{
		ID:   "c1",
		Name: "nope",
	})

	assert.Empty(t, result.Content)
	assert.False(t, result.IsError)
}

func TestExecuteToolNullArgumentIsContained(t *testing.T) {
	e := New(&fakeGateway{})
	e.RegisterTool(builtin.FetchHTML())
	require.NoError(t, e.Init(context.Background()))

	result := e.ExecuteTool(context.Background(), core.ToolCall{
		ID:        "c1",
		Name:      "fetch_html",
		Arguments: map[string]any{"url": nil},
	})

	assert.Contains(t, result.Content, "Error")
}

func TestExecuteToolRecoversPanic(t *testing.T) {
	e := New(&fakeGateway{})
	e.RegisterTool(tool.NewFunctionTool("boom", "Always panics",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(ctx context.Context, args map[string]any) (string, error) {
			panic("tool exploded")
		}))
	require.NoError(t, e.Init(context.Background()))

	result := e.ExecuteTool(context.Background(), core.ToolCall{
		ID:   "c1",
		Name: "boom",
	})

	assert.Contains(t, result.Content, "Error executing tool [boom]")
	assert.Contains(t, result.Content, "tool exploded")
}

func TestExecuteToolValidationFailureInContent(t *testing.T) {
	e := New(&fakeGateway{})
	e.RegisterTool(echoTool())

	result := e.ExecuteTool(context.Background(), core.ToolCall{
		ID:        "c1",
		Name:      "echo",
		Arguments: map[string]any{},
	})

	assert.Contains(t, result.Content, "Error executing tool")
}

func TestExecuteToolDispatchesAgentTool(t *testing.T) {
	gw := &fakeGateway{
		deltas: []core.Delta{
			{Content: "delegated"},
			{FinishReason: core.FinishStop},
		},
	}
	e := New(gw)
	require.NoError(t, e.Init(context.Background()))

	profile := core.Profile{Name: "helper", Prompt: "help", MaxIterations: 3}
	e.RegisterTool(agent.NewTool(e, profile, "test-model"))

	result := e.ExecuteTool(context.Background(), core.ToolCall{
		ID:        "c1",
		Name:      "agent_helper",
		Arguments: map[string]any{"prompt": "work"},
	})

	assert.Equal(t, "delegated", result.Content)
}

func TestToolSchemasFilter(t *testing.T) {
	e := New(&fakeGateway{})
	e.RegisterTool(echoTool())
	e.RegisterTool(tool.NewFunctionTool("other", "Other tool", map[string]any{"type": "object"},
		func(ctx context.Context, args map[string]any) (string, error) { return "", nil }))

	all := e.ToolSchemas(nil)
	assert.Len(t, all, 2)

	filtered := e.ToolSchemas([]string{"echo"})
	require.Len(t, filtered, 1)
	assert.Equal(t, "echo", filtered[0].Name)

	none := e.ToolSchemas([]string{})
	assert.Empty(t, none)
}

func TestProfileCRUD(t *testing.T) {
	e := New(&fakeGateway{})
	require.NoError(t, e.Init(context.Background()))

	profile := core.Profile{Name: "researcher", Prompt: "research"}

	assert.True(t, e.AddProfile(profile))
	assert.False(t, e.AddProfile(profile), "duplicate names are rejected")

	profile.Prompt = "research deeply"
	assert.True(t, e.UpdateProfile(profile))

	got, ok := e.GetProfile("researcher")
	require.True(t, ok)
	assert.Equal(t, "research deeply", got.Prompt)

	assert.False(t, e.UpdateProfile(core.Profile{Name: "ghost"}))

	assert.True(t, e.DeleteProfile("researcher"))
	assert.False(t, e.DeleteProfile("researcher"))
}

func TestDefaultProfileUndeletable(t *testing.T) {
	e := New(&fakeGateway{})
	require.NoError(t, e.Init(context.Background()))

	assert.False(t, e.DeleteProfile(DefaultProfile.Name))

	_, ok := e.GetProfile(DefaultProfile.Name)
	assert.True(t, ok)
}

func TestListModelsCached(t *testing.T) {
	gw := &fakeGateway{models: []string{"m1", "m2"}}
	e := New(gw)

	models, err := e.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2"}, models)

	_, err = e.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, gw.listCalls)
}

func TestCreateAndDeleteAgent(t *testing.T) {
	e := New(&fakeGateway{})
	require.NoError(t, e.Init(context.Background()))

	profile := core.Profile{Name: "tester", Prompt: "test"}
	a := e.CreateAgent(profile, true)

	got, ok := e.GetAgent(a.ID())
	require.True(t, ok)
	assert.Equal(t, a, got)
	assert.Len(t, e.GetAllAgents(), 1)

	assert.True(t, e.DeleteAgent(a.ID()))
	assert.False(t, e.DeleteAgent(a.ID()))

	_, ok = e.GetAgent(a.ID())
	assert.False(t, ok)
}

func TestInitRehydratesSessions(t *testing.T) {
	gw := &fakeGateway{}

	e := New(gw)
	require.NoError(t, e.Init(context.Background()))

	created := e.CreateAgent(DefaultProfile, true)
	created.Rename("kept")

	// A second engine sharing the same stores sees the persisted session.
	e2 := New(gw, func(o *Options) {
		o.Sessions = e.sessions
		o.Profiles = e.profiles
	})
	require.NoError(t, e2.Init(context.Background()))

	restored, ok := e2.GetAgent(created.ID())
	require.True(t, ok)
	assert.Equal(t, "kept", restored.Name())
}
